package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// maxDatagram 单个 UDP 报文上限
const maxDatagram = 64 * 1024

// UDPTransport UDP 收发：读协程只负责拷贝报文，状态修改全部交给调度协程
type UDPTransport struct {
	conn *net.UDPConn
	log  *zap.SugaredLogger
}

// ListenUDP 绑定 UDP 地址，如 ":9999"
func ListenUDP(addr string, log *zap.SugaredLogger) (*UDPTransport, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn, log: log}, nil
}

// LocalAddr 实际监听地址（端口为 0 时由系统分配）
func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Send 发送即返回，不等待确认
func (t *UDPTransport) Send(addr net.Addr, b []byte) error {
	_, err := t.conn.WriteTo(b, addr)
	return err
}

// Serve 读循环，直到 ctx 结束；每个报文拷贝一份交给 deliver
func (t *UDPTransport) Serve(ctx context.Context, deliver func(Datagram)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.Close()
		case <-stop:
		}
	}()

	t.log.Infof("udp listening on %s", t.conn.LocalAddr())
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// ICMP 不可达等瞬时错误，继续读
			t.log.Warnf("udp read: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		deliver(Datagram{Addr: addr, Payload: payload, ReceivedAt: time.Now()})
	}
}

// Close 关闭套接字
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

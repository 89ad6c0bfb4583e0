package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsAddr WebSocket 连接在协议层的地址，Network() 为 "ws"
type wsAddr string

func (a wsAddr) Network() string { return "ws" }
func (a wsAddr) String() string  { return string(a) }

var errUnknownEndpoint = errors.New("unknown websocket endpoint")

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性丢弃，防止阻塞调度协程
		return false
	}
}

// Close 关闭底层连接，可重复调用
func (c *ClientConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *ClientConn) writePump() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端报文，和 UDP 报文走同一个入口
func (c *ClientConn) readPump(addr wsAddr, deliver func(Datagram)) {
	defer c.Close()
	c.ws.SetReadLimit(maxDatagram)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		deliver(Datagram{Addr: addr, Payload: payload, ReceivedAt: time.Now()})
	}
}

// WSTransport 浏览器客户端的 WebSocket 网关，协议帧与 UDP 完全相同
// 连接断开只移除发送端，玩家状态仍交给心跳清理
type WSTransport struct {
	mu       sync.RWMutex
	conns    map[wsAddr]*ClientConn
	deliver  func(Datagram)
	log      *zap.SugaredLogger
	seq      atomic.Uint64
	upgrader websocket.Upgrader
}

// NewWSTransport deliver 一般为 Server.Deliver
func NewWSTransport(deliver func(Datagram), log *zap.SugaredLogger) *WSTransport {
	return &WSTransport{
		conns:   make(map[wsAddr]*ClientConn),
		deliver: deliver,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 演示环境：允许所有来源（生产环境需严格限制）
				return true
			},
		},
	}
}

// Send 实现 Transport
func (t *WSTransport) Send(addr net.Addr, b []byte) error {
	t.mu.RLock()
	c, ok := t.conns[wsAddr(addr.String())]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownEndpoint, addr)
	}
	if !c.Enqueue(b) {
		return fmt.Errorf("send queue full: %s", addr)
	}
	return nil
}

// ServeHTTP WebSocket 接入
func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warnf("upgrade error: %v", err)
		return
	}
	addr := wsAddr(fmt.Sprintf("%s#%d", r.RemoteAddr, t.seq.Add(1)))
	client := NewClientConn(ws)

	t.mu.Lock()
	t.conns[addr] = client
	t.mu.Unlock()
	t.log.Infof("ws client connected: %s", addr)

	go client.writePump()
	go func() {
		client.readPump(addr, t.deliver)
		t.mu.Lock()
		delete(t.conns, addr)
		t.mu.Unlock()
		t.log.Infof("ws client disconnected: %s", addr)
	}()
}

// Close 断开所有连接
func (t *WSTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, c := range t.conns {
		c.Close()
		delete(t.conns, addr)
	}
}

package server

import (
	"fmt"
	"net"
)

// Transport 网络边界：发送即返回，不等待对端确认
type Transport interface {
	Send(addr net.Addr, b []byte) error
}

// TransportMux 按地址的 Network() 选择具体传输层（udp / ws）
type TransportMux map[string]Transport

// Send 实现 Transport
func (m TransportMux) Send(addr net.Addr, b []byte) error {
	t, ok := m[addr.Network()]
	if !ok {
		return fmt.Errorf("no transport for network %q", addr.Network())
	}
	return t.Send(addr, b)
}

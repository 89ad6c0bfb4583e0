package server

import (
	"encoding/json"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tankarena/config"
)

type sentFrame struct {
	addr string
	raw  []byte
}

// fakeTransport 记录所有发出的报文
type fakeTransport struct {
	mu  sync.Mutex
	out []sentFrame
}

func (f *fakeTransport) Send(addr net.Addr, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.out = append(f.out, sentFrame{addr: addr.String(), raw: cp})
	return nil
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

// frames 发往 addr 且 action 匹配的报文
func (f *fakeTransport) frames(addr net.Addr, action string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, s := range f.out {
		if s.addr != addr.String() {
			continue
		}
		var head struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(s.raw, &head) == nil && head.Action == action {
			out = append(out, s.raw)
		}
	}
	return out
}

// last 解码发往 addr 的最后一条 action 报文
func last[T any](t *testing.T, f *fakeTransport, addr net.Addr, action string) T {
	t.Helper()
	frames := f.frames(addr, action)
	require.NotEmpty(t, frames, "no %s sent to %s", action, addr)
	var v T
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &v))
	return v
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	*testing.T
	srv   *Server
	tr    *fakeTransport
	clock *fakeClock
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	tr := &fakeTransport{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	srv := New(cfg, tr, zap.NewNop().Sugar(),
		WithClock(clock.now),
		WithRand(rand.New(rand.NewSource(1))),
	)
	return &harness{T: t, srv: srv, tr: tr, clock: clock}
}

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

// send 以 JSON 编码 frame 并交给分发器
func (h *harness) send(from net.Addr, frame map[string]any) {
	h.Helper()
	b, err := json.Marshal(frame)
	require.NoError(h, err)
	h.srv.HandleDatagram(from, b, h.clock.now())
}

func (h *harness) act(from net.Addr, pid, action string, extra ...map[string]any) {
	h.Helper()
	frame := map[string]any{"action": action, "player_id": pid}
	for _, e := range extra {
		for k, v := range e {
			frame[k] = v
		}
	}
	h.send(from, frame)
}

// roomOf 玩家所在房间，不存在则测试失败
func (h *harness) roomOf(pid string) *Room {
	h.Helper()
	r, ok := h.srv.rooms.RoomOf(PlayerID(pid))
	require.True(h, ok, "player %s not in any room", pid)
	return r
}

func (h *harness) player(pid string) *Player {
	h.Helper()
	return h.roomOf(pid).Players[PlayerID(pid)]
}

func (h *harness) requireInvariants() {
	h.Helper()
	require.NoError(h, h.srv.rooms.checkInvariants())
}

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeat_PingsEveryKnownEndpoint(t *testing.T) {
	h := newHarness(t)
	inRoom, lobby := addr(5001), addr(5002)
	h.act(inRoom, "alice", "join_room")
	h.act(lobby, "bob", "list_rooms")
	h.tr.reset()

	h.srv.Heartbeat(h.clock.now())

	assert.Len(t, h.tr.frames(inRoom, msgPing), 1)
	assert.Len(t, h.tr.frames(lobby, msgPing), 1)
	assert.Equal(t, int64(2), h.srv.metrics.PingsSent)
}

func TestHeartbeat_EvictsAfterTimeout(t *testing.T) {
	h := newHarness(t)
	alice, bob, carol := addr(5001), addr(5002), addr(5003)
	h.act(alice, "alice", "join_room")
	h.act(bob, "bob", "join_room")
	h.act(carol, "carol", "list_rooms")

	// 正好等于超时不清理
	h.clock.advance(30 * time.Second)
	h.srv.Heartbeat(h.clock.now())
	_, ok := h.srv.rooms.RoomOf("alice")
	require.True(t, ok)

	h.act(bob, "bob", "pong")
	h.clock.advance(10 * time.Second)
	h.tr.reset()
	h.srv.Heartbeat(h.clock.now())

	_, ok = h.srv.rooms.RoomOf("alice")
	assert.False(t, ok, "alice silent for 40s")
	r := h.roomOf("bob")
	assert.NotContains(t, r.WaitingRoom, PlayerID("alice"))
	_, ok = h.srv.rooms.pendingPlayer("carol")
	assert.False(t, ok, "lobby player dropped")
	assert.Equal(t, int64(2), h.srv.metrics.Evictions)

	upd := last[updateStateMessage](t, h.tr, bob, msgUpdateState)
	assert.NotContains(t, upd.GameState.Players, PlayerID("alice"))
	h.requireInvariants()
}

// 超时后在一个心跳周期内必然被清理
func TestHeartbeat_EvictionWithinOneInterval(t *testing.T) {
	h := newHarness(t)
	h.act(addr(5001), "alice", "join_room")
	interval := h.srv.heartbeat.Interval
	timeout := h.srv.heartbeat.Timeout

	deadline := h.clock.now().Add(timeout + interval)
	for h.clock.now().Before(deadline) {
		h.clock.advance(interval)
		h.srv.Heartbeat(h.clock.now())
	}
	_, ok := h.srv.rooms.RoomOf("alice")
	assert.False(t, ok)
}

func TestHeartbeat_PongKeepsPlayerAlive(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)
	h.act(a, "alice", "join_room")

	for i := 0; i < 10; i++ {
		h.clock.advance(10 * time.Second)
		h.srv.Heartbeat(h.clock.now())
		h.act(a, "alice", "pong")
	}

	_, ok := h.srv.rooms.RoomOf("alice")
	assert.True(t, ok)
	assert.Equal(t, int64(0), h.srv.metrics.Evictions)
}

func TestHeartbeat_EvictedPlayerRejoinsFresh(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)
	h.act(a, "alice", "join_room")
	h.player("alice").HP = 25

	h.clock.advance(31 * time.Second)
	h.srv.Heartbeat(h.clock.now())
	h.act(a, "alice", "join_room")

	assert.Equal(t, 100, h.player("alice").HP)
	h.requireInvariants()
}

package server

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankarena/config"
)

// 创建 arena 后两名玩家按名称加入，拿到同一个 room_id
func TestJoinRoomByName_SameRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(5001), addr(5002)

	h.act(alice, "alice", "create_room", map[string]any{"name": "arena"})
	created := last[roomResponse](t, h.tr, alice, msgCreateResponse)
	require.True(t, created.Success)

	h.act(alice, "alice", "join_room_by_name", map[string]any{"room_name": "arena"})
	h.act(bob, "bob", "join_room_by_name", map[string]any{"room_name": "arena"})

	ra := last[joinRoomResponse](t, h.tr, alice, msgJoinResponse)
	rb := last[joinRoomResponse](t, h.tr, bob, msgJoinResponse)
	assert.True(t, ra.Success)
	assert.True(t, rb.Success)
	assert.Equal(t, created.RoomID, ra.RoomID)
	assert.Equal(t, ra.RoomID, rb.RoomID)
	assert.Equal(t, "arena", rb.RoomName)
	h.requireInvariants()
}

func TestJoinRoomByName_UnknownRoom(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)

	h.act(a, "alice", "join_room_by_name", map[string]any{"room_name": "ghost"})

	resp := last[joinRoomResponse](t, h.tr, a, msgJoinResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, "room_name not found", resp.Error)
	assert.Equal(t, 0, h.srv.rooms.Len())
}

func TestJoinRoomByID_UnknownRoom(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)

	h.act(a, "alice", "join_room_by_id", map[string]any{"room_id": "nope"})

	resp := last[joinRoomResponse](t, h.tr, a, msgJoinResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, "room_id not found", resp.Error)
	assert.Equal(t, 0, h.srv.rooms.Len())
}

func TestJoinRoom_AutoCreatesDefaultRoom(t *testing.T) {
	h := newHarness(t)

	h.act(addr(5001), "alice", "join_room")
	h.act(addr(5002), "bob", "join_room")

	require.Equal(t, 1, h.srv.rooms.Len())
	r := h.roomOf("alice")
	assert.Equal(t, "lobby", r.Name)
	assert.Same(t, r, h.roomOf("bob"))
	assert.Equal(t, []PlayerID{"alice", "bob"}, r.WaitingRoom)

	p := h.player("alice")
	assert.Equal(t, 100, p.HP)
	assert.False(t, p.Ready)
	require.NotNil(t, p.Position)
	assert.True(t, p.Position.inside(800, 600))
	h.requireInvariants()
}

func TestJoinRoom_LegacyIDCreatesFallbackRoom(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)

	h.act(a, "alice", "join_room", map[string]any{"room_id": "room-7"})

	resp := last[joinRoomResponse](t, h.tr, a, msgJoinResponse)
	require.True(t, resp.Success)
	assert.Equal(t, RoomID("room-7"), resp.RoomID)
	assert.Equal(t, "room-7", resp.RoomName)

	// 第二个玩家用同一个 ID 进入同一房间
	h.act(addr(5002), "bob", "join_room", map[string]any{"room_id": "room-7"})
	assert.Same(t, h.roomOf("alice"), h.roomOf("bob"))
	assert.Equal(t, 1, h.srv.rooms.Len())
	h.requireInvariants()
}

func TestJoinRoom_LegacyIDMatchingExistingName(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)
	r, err := h.srv.rooms.CreateRoom("arena")
	require.NoError(t, err)

	h.act(a, "alice", "join_room", map[string]any{"room_id": "arena"})

	assert.Same(t, r, h.roomOf("alice"))
	assert.Equal(t, 1, h.srv.rooms.Len())
	h.requireInvariants()
}

func TestJoinRoom_MembershipExclusive(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(5001), addr(5002)
	h.act(alice, "alice", "create_room", map[string]any{"room_name": "one"})
	h.act(alice, "alice", "create_room", map[string]any{"room_name": "two"})

	h.act(alice, "alice", "join_room_by_name", map[string]any{"room_name": "one"})
	h.act(bob, "bob", "join_room_by_name", map[string]any{"room_name": "one"})
	h.tr.reset()

	h.act(alice, "alice", "join_room_by_name", map[string]any{"room_name": "two"})

	assert.Equal(t, "two", h.roomOf("alice").Name)
	one, _ := h.srv.rooms.Room(mustResolve(t, h.srv.rooms, "one"))
	assert.NotContains(t, one.Players, PlayerID("alice"))
	assert.NotContains(t, one.WaitingRoom, PlayerID("alice"))

	// bob 收到旧房间的更新：alice 已不在
	upd := last[updateStateMessage](t, h.tr, bob, msgUpdateState)
	assert.Equal(t, "one", upd.GameState.RoomName)
	assert.NotContains(t, upd.GameState.Players, PlayerID("alice"))
	h.requireInvariants()
}

func TestJoinRoom_FailedJoinKeepsCurrentRoom(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)
	h.act(a, "alice", "join_room")

	h.act(a, "alice", "join_room_by_name", map[string]any{"room_name": "ghost"})

	assert.Equal(t, "lobby", h.roomOf("alice").Name)
	h.requireInvariants()
}

func TestJoinRoom_ReconnectKeepsState(t *testing.T) {
	h := newHarness(t)
	h.act(addr(5001), "alice", "join_room")
	p := h.player("alice")
	p.HP = 40
	p.Ready = true
	pos := *p.Position
	h.clock.advance(5e9)

	h.act(addr(6001), "alice", "join_room")

	p = h.player("alice")
	assert.Equal(t, 40, p.HP)
	assert.True(t, p.Ready)
	assert.Equal(t, pos, *p.Position)
	assert.Equal(t, addr(6001).String(), p.Addr.String())
	assert.Equal(t, h.clock.now(), p.LastPong)
	assert.Len(t, h.roomOf("alice").WaitingRoom, 1)
	h.requireInvariants()
}

func TestJoinRoom_ClearsPending(t *testing.T) {
	h := newHarness(t)
	a := addr(5001)
	h.act(a, "alice", "list_rooms")
	_, ok := h.srv.rooms.pendingPlayer("alice")
	require.True(t, ok)

	h.act(a, "alice", "join_room")

	_, ok = h.srv.rooms.pendingPlayer("alice")
	assert.False(t, ok)
	h.requireInvariants()
}

func TestLeave_RoomKeptWhenEmpty(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(5001), addr(5002)
	h.act(alice, "alice", "join_room")
	h.act(bob, "bob", "join_room")
	h.tr.reset()

	h.act(alice, "alice", "leave")

	r := h.roomOf("bob")
	assert.NotContains(t, r.Players, PlayerID("alice"))
	assert.Equal(t, []PlayerID{"bob"}, r.WaitingRoom)
	upd := last[updateStateMessage](t, h.tr, bob, msgUpdateState)
	assert.Len(t, upd.GameState.Players, 1)
	assert.Empty(t, h.tr.frames(alice, msgUpdateState))

	h.act(bob, "bob", "leave")
	assert.Equal(t, 1, h.srv.rooms.Len())
	assert.Empty(t, r.Players)
	h.requireInvariants()
}

// 两人准备后开局清空等待室，第三人仍可加入
func TestStartGame_ThenLateJoin(t *testing.T) {
	h := newHarness(t)
	h.act(addr(5001), "alice", "join_room")
	h.act(addr(5002), "bob", "join_room")
	h.act(addr(5001), "alice", "set_ready")
	h.act(addr(5002), "bob", "set_ready")

	h.act(addr(5001), "alice", "start_game")

	r := h.roomOf("alice")
	assert.Empty(t, r.WaitingRoom)
	assert.True(t, r.Started)

	h.act(addr(5003), "carol", "join_room")
	resp := last[joinRoomResponse](t, h.tr, addr(5003), msgJoinResponse)
	assert.True(t, resp.Success)
	assert.Same(t, r, h.roomOf("carol"))
	assert.Equal(t, []PlayerID{"carol"}, r.WaitingRoom)
	assert.False(t, h.player("carol").Ready)
	h.requireInvariants()
}

func TestStartGame_ThresholdNotMet(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(5001), addr(5002)
	h.act(alice, "alice", "join_room")

	t.Run("single player", func(t *testing.T) {
		h.act(alice, "alice", "set_ready")
		h.tr.reset()
		h.act(alice, "alice", "start_game")
		assert.Equal(t, []PlayerID{"alice"}, h.roomOf("alice").WaitingRoom)
		assert.NotEmpty(t, h.tr.frames(alice, msgUpdateState), "broadcast regardless of threshold")
	})

	t.Run("not everyone ready", func(t *testing.T) {
		h.act(bob, "bob", "join_room")
		h.act(alice, "alice", "start_game")
		assert.Len(t, h.roomOf("alice").WaitingRoom, 2)
		assert.False(t, h.roomOf("alice").Started)
	})
}

func TestLateJoinPolicies(t *testing.T) {
	startedRoom := func(t *testing.T, policy string) *harness {
		h := newHarness(t, func(c *config.Config) { c.Game.LateJoin = policy })
		h.act(addr(5001), "alice", "join_room")
		h.act(addr(5002), "bob", "join_room")
		h.act(addr(5001), "alice", "set_ready")
		h.act(addr(5002), "bob", "set_ready")
		h.act(addr(5001), "alice", "start_game")
		require.True(t, h.roomOf("alice").Started)
		return h
	}

	t.Run("admit", func(t *testing.T) {
		h := startedRoom(t, config.LateJoinAdmit)
		h.act(addr(5003), "carol", "join_room")
		assert.False(t, h.player("carol").Ready)
		assert.Equal(t, []PlayerID{"carol"}, h.roomOf("carol").WaitingRoom)
	})

	t.Run("auto_ready", func(t *testing.T) {
		h := startedRoom(t, config.LateJoinAutoReady)
		h.act(addr(5003), "carol", "join_room")
		assert.True(t, h.player("carol").Ready)
		assert.Empty(t, h.roomOf("carol").WaitingRoom)
		h.requireInvariants()
	})

	t.Run("refuse", func(t *testing.T) {
		h := startedRoom(t, config.LateJoinRefuse)
		h.act(addr(5003), "carol", "join_room")
		resp := last[joinRoomResponse](t, h.tr, addr(5003), msgJoinResponse)
		assert.False(t, resp.Success)
		assert.Equal(t, "game already started", resp.Error)
		_, ok := h.srv.rooms.RoomOf("carol")
		assert.False(t, ok)

		// 已在房间里的玩家重连不受影响
		h.act(addr(6001), "alice", "join_room")
		assert.True(t, last[joinRoomResponse](t, h.tr, addr(6001), msgJoinResponse).Success)
		h.requireInvariants()
	})

	t.Run("refuse resets when room empties", func(t *testing.T) {
		h := startedRoom(t, config.LateJoinRefuse)
		h.act(addr(5001), "alice", "leave")
		h.act(addr(5002), "bob", "leave")
		h.act(addr(5003), "carol", "join_room")
		assert.True(t, last[joinRoomResponse](t, h.tr, addr(5003), msgJoinResponse).Success)
	})
}

// 随机操作序列下索引始终一致，玩家至多在一个房间
func TestSessionInvariantsUnderRandomOps(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(42))
	players := []string{"p0", "p1", "p2", "p3", "p4"}
	names := []string{"a", "b", "c"}

	for i := 0; i < 500; i++ {
		pid := players[rng.Intn(len(players))]
		from := addr(5000 + rng.Intn(len(players)))
		name := names[rng.Intn(len(names))]
		switch rng.Intn(8) {
		case 0:
			h.act(from, pid, "create_room", map[string]any{"room_name": name})
		case 1:
			h.act(from, pid, "join_room_by_name", map[string]any{"room_name": name})
		case 2:
			h.act(from, pid, "join_room")
		case 3:
			h.act(from, pid, "delete_room_by_name", map[string]any{"room_name": name})
		case 4:
			h.act(from, pid, "leave")
		case 5:
			h.act(from, pid, "join_room", map[string]any{"room_id": fmt.Sprintf("legacy-%d", rng.Intn(2))})
		case 6:
			h.act(from, pid, "shoot")
		default:
			h.srv.Tick(h.clock.now())
		}
		h.clock.advance(16e6)
		require.NoError(t, h.srv.rooms.checkInvariants(), "after op %d", i)
	}
}

func mustResolve(t *testing.T, m *RoomManager, name string) RoomID {
	t.Helper()
	id, err := m.ResolveName(name)
	require.NoError(t, err)
	return id
}

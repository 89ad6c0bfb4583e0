package server

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"
)

// 错误文本直接作为响应里的 error 字段返回给客户端
var (
	ErrRoomNameRequired = errors.New("room name is required")
	ErrRoomNameTaken    = errors.New("room name already exists")
	ErrRoomNameNotFound = errors.New("room_name not found")
	ErrRoomIDNotFound   = errors.New("room_id not found")
	ErrLastRoom         = errors.New("cannot delete the last room")
	ErrGameStarted      = errors.New("game already started")
)

// RoomManager 管理所有房间、名称索引、玩家所在房间索引以及大厅玩家
// 不加锁：只在 Server 的调度协程中访问
type RoomManager struct {
	rooms      map[RoomID]*Room
	nameIndex  map[string]RoomID
	order      []RoomID // 创建顺序，ListRooms 稳定输出
	playerRoom map[PlayerID]RoomID
	pending    map[PlayerID]*PendingPlayer

	newID func() RoomID
}

// NewRoomManager 创建空的房间管理器
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:      make(map[RoomID]*Room),
		nameIndex:  make(map[string]RoomID),
		playerRoom: make(map[PlayerID]RoomID),
		pending:    make(map[PlayerID]*PendingPlayer),
		newID:      func() RoomID { return RoomID(uuid.NewString()) },
	}
}

// Len 房间数量
func (m *RoomManager) Len() int { return len(m.rooms) }

// CreateRoom 按名称创建房间，生成不冲突的随机 ID
func (m *RoomManager) CreateRoom(name string) (*Room, error) {
	if name == "" {
		return nil, ErrRoomNameRequired
	}
	if _, ok := m.nameIndex[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNameTaken, name)
	}
	id := m.newID()
	for {
		if _, ok := m.rooms[id]; !ok {
			break
		}
		id = m.newID()
	}
	return m.register(id, name), nil
}

// createRoomWithID 旧版客户端直接指定 ID 加入时的兜底房间，名称即 ID
func (m *RoomManager) createRoomWithID(id RoomID) (*Room, error) {
	if _, ok := m.rooms[id]; ok {
		return nil, fmt.Errorf("room %s already exists", id)
	}
	if _, ok := m.nameIndex[string(id)]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNameTaken, id)
	}
	return m.register(id, string(id)), nil
}

// register 两张表一起写入
func (m *RoomManager) register(id RoomID, name string) *Room {
	r := NewRoom(id, name)
	m.rooms[id] = r
	m.nameIndex[name] = id
	m.order = append(m.order, id)
	return r
}

// DeleteRoomByID 删除房间；最后一个房间不可删除
// 房间内玩家转为大厅玩家，继续接收房间列表并参与心跳
func (m *RoomManager) DeleteRoomByID(id RoomID) (*Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomIDNotFound
	}
	if len(m.rooms) <= 1 {
		return nil, ErrLastRoom
	}
	m.unregister(r)
	return r, nil
}

// DeleteRoomByName 同 DeleteRoomByID，按名称定位
func (m *RoomManager) DeleteRoomByName(name string) (*Room, error) {
	id, ok := m.nameIndex[name]
	if !ok {
		return nil, ErrRoomNameNotFound
	}
	if len(m.rooms) <= 1 {
		return nil, ErrLastRoom
	}
	r := m.rooms[id]
	m.unregister(r)
	return r, nil
}

func (m *RoomManager) unregister(r *Room) {
	delete(m.rooms, r.ID)
	delete(m.nameIndex, r.Name)
	m.order = slices.DeleteFunc(m.order, func(id RoomID) bool { return id == r.ID })
	for id, p := range r.Players {
		delete(m.playerRoom, id)
		m.pending[id] = &PendingPlayer{ID: id, Addr: p.Addr, LastPong: p.LastPong}
	}
}

// ListRooms 按创建顺序列出房间
func (m *RoomManager) ListRooms() []RoomInfo {
	out := make([]RoomInfo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, RoomInfo{RoomID: id, RoomName: m.rooms[id].Name})
	}
	return out
}

// Rooms 按创建顺序返回房间
func (m *RoomManager) Rooms() []*Room {
	out := make([]*Room, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rooms[id])
	}
	return out
}

// ResolveName 名称 → ID
func (m *RoomManager) ResolveName(name string) (RoomID, error) {
	id, ok := m.nameIndex[name]
	if !ok {
		return "", ErrRoomNameNotFound
	}
	return id, nil
}

// Room 按 ID 查找
func (m *RoomManager) Room(id RoomID) (*Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomIDNotFound
	}
	return r, nil
}

// first 最早创建的房间
func (m *RoomManager) first() (*Room, bool) {
	if len(m.order) == 0 {
		return nil, false
	}
	return m.rooms[m.order[0]], true
}

// RoomOf 玩家当前所在房间
func (m *RoomManager) RoomOf(pid PlayerID) (*Room, bool) {
	id, ok := m.playerRoom[pid]
	if !ok {
		return nil, false
	}
	return m.rooms[id], true
}

// admit 把玩家放进房间并更新索引；调用方需先把玩家从旧房间移除
func (m *RoomManager) admit(r *Room, p *Player, waiting bool) {
	r.addPlayer(p, waiting)
	m.playerRoom[p.ID] = r.ID
	delete(m.pending, p.ID)
}

// removePlayer 从所在房间移除玩家，返回原房间
func (m *RoomManager) removePlayer(pid PlayerID) (*Room, bool) {
	r, ok := m.RoomOf(pid)
	if !ok {
		return nil, false
	}
	r.removePlayer(pid)
	delete(m.playerRoom, pid)
	return r, true
}

// touchPending 记录或刷新大厅玩家
func (m *RoomManager) touchPending(pid PlayerID, addr net.Addr, now time.Time) {
	if pp, ok := m.pending[pid]; ok {
		pp.Addr = addr
		pp.LastPong = now
		return
	}
	m.pending[pid] = &PendingPlayer{ID: pid, Addr: addr, LastPong: now}
}

func (m *RoomManager) pendingPlayer(pid PlayerID) (*PendingPlayer, bool) {
	pp, ok := m.pending[pid]
	return pp, ok
}

func (m *RoomManager) dropPending(pid PlayerID) {
	delete(m.pending, pid)
}

// pendingPlayers 排序后的大厅玩家
func (m *RoomManager) pendingPlayers() []*PendingPlayer {
	out := make([]*PendingPlayer, 0, len(m.pending))
	for _, pp := range m.pending {
		out = append(out, pp)
	}
	slices.SortFunc(out, func(a, b *PendingPlayer) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// endpoints 所有已知客户端地址（房间内 + 大厅），用于房间列表广播
func (m *RoomManager) endpoints() []net.Addr {
	var out []net.Addr
	for _, r := range m.Rooms() {
		for _, id := range r.playerIDs() {
			if a := r.Players[id].Addr; a != nil {
				out = append(out, a)
			}
		}
	}
	for _, pp := range m.pendingPlayers() {
		if pp.Addr != nil {
			out = append(out, pp.Addr)
		}
	}
	return out
}

// checkInvariants 校验索引一致性，测试使用
func (m *RoomManager) checkInvariants() error {
	if len(m.nameIndex) != len(m.rooms) || len(m.order) != len(m.rooms) {
		return fmt.Errorf("index sizes differ: rooms=%d names=%d order=%d", len(m.rooms), len(m.nameIndex), len(m.order))
	}
	for name, id := range m.nameIndex {
		r, ok := m.rooms[id]
		if !ok || r.Name != name {
			return fmt.Errorf("name index %q points at %q", name, id)
		}
	}
	seen := make(map[PlayerID]RoomID)
	for id, r := range m.rooms {
		if r.ID != id {
			return fmt.Errorf("room %q stored under %q", r.ID, id)
		}
		for pid := range r.Players {
			if other, dup := seen[pid]; dup {
				return fmt.Errorf("player %q in rooms %q and %q", pid, other, id)
			}
			seen[pid] = id
			if m.playerRoom[pid] != id {
				return fmt.Errorf("player index for %q = %q, want %q", pid, m.playerRoom[pid], id)
			}
			if _, ok := m.pending[pid]; ok {
				return fmt.Errorf("player %q both in room and pending", pid)
			}
		}
		for _, w := range r.WaitingRoom {
			if _, ok := r.Players[w]; !ok {
				return fmt.Errorf("waiting player %q not in room %q", w, id)
			}
		}
	}
	if len(seen) != len(m.playerRoom) {
		return fmt.Errorf("player index has %d entries, rooms hold %d players", len(m.playerRoom), len(seen))
	}
	return nil
}

package server

import (
	"net"
	"runtime/debug"
	"time"
)

// scope 决定动作在什么前提下执行
type scope int

const (
	scopeControl scope = iota // 心跳回应，不广播
	scopeLobby                // 房间发现与管理，无需在房间内
	scopeRoom                 // 房间内玩法动作，执行后广播房间状态
)

type lobbyHandler func(s *Server, f *Frame, addr net.Addr, now time.Time)
type roomHandler func(s *Server, r *Room, p *Player, f *Frame, now time.Time)

type route struct {
	scope scope
	lobby lobbyHandler
	room  roomHandler
}

// routes 动作分发表，覆盖 AllActions 中的每一个动作
var routes = map[Action]route{
	ActPong: {scope: scopeControl, lobby: (*Server).handlePong},

	ActListRooms:        {scope: scopeLobby, lobby: (*Server).handleListRooms},
	ActCreateRoom:       {scope: scopeLobby, lobby: (*Server).handleCreateRoom},
	ActJoinRoom:         {scope: scopeLobby, lobby: (*Server).handleJoinRoom},
	ActJoinRoomByName:   {scope: scopeLobby, lobby: (*Server).handleJoinRoomByName},
	ActJoinRoomByID:     {scope: scopeLobby, lobby: (*Server).handleJoinRoomByID},
	ActDeleteRoomByID:   {scope: scopeLobby, lobby: (*Server).handleDeleteRoomByID},
	ActDeleteRoomByName: {scope: scopeLobby, lobby: (*Server).handleDeleteRoomByName},

	ActSetReady:  {scope: scopeRoom, room: (*Server).handleSetReady},
	ActMove:      {scope: scopeRoom, room: (*Server).handleMove},
	ActShoot:     {scope: scopeRoom, room: (*Server).handleShoot},
	ActStartGame: {scope: scopeRoom, room: (*Server).handleStartGame},
	ActLeave:     {scope: scopeRoom, room: (*Server).handleLeave},
	ActRevive:    {scope: scopeRoom, room: (*Server).handleRevive},
	ActChat:      {scope: scopeRoom, room: (*Server).handleChat},
}

// HandleDatagram 处理一条入站报文；畸形报文静默丢弃
// 处理器中的任何 panic 都在这里兜住，不影响其他客户端
func (s *Server) HandleDatagram(addr net.Addr, payload []byte, now time.Time) {
	f, err := DecodeFrame(payload)
	if err != nil {
		s.metrics.IncMalformed()
		s.log.Debugf("drop malformed frame from %s: %v", addr, err)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.IncPanics()
			s.log.Errorw("handler panic",
				"action", f.Action,
				"player", f.PlayerID,
				"addr", addr.String(),
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	s.dispatch(f, addr, now)
}

func (s *Server) dispatch(f *Frame, addr net.Addr, now time.Time) {
	rt, ok := routes[f.Action]
	if !ok {
		s.metrics.IncUnknown()
		s.log.Debugf("drop unknown action %q from %s", f.Action, f.PlayerID)
		return
	}

	switch rt.scope {
	case scopeControl:
		rt.lobby(s, f, addr, now)
	case scopeLobby:
		if _, inRoom := s.rooms.RoomOf(f.PlayerID); !inRoom {
			s.rooms.touchPending(f.PlayerID, addr, now)
		}
		rt.lobby(s, f, addr, now)
	case scopeRoom:
		r, p, ok := s.locate(f)
		if !ok {
			if f.RoomID == "" {
				// 不在任何房间：记为大厅玩家并下发房间列表
				s.rooms.touchPending(f.PlayerID, addr, now)
				s.send(addr, s.roomsList())
			}
			return
		}
		rt.room(s, r, p, f, now)
		if f.Action != ActLeave {
			s.broadcastRoom(r, now)
		}
	}
}

// locate 优先使用报文里的 room_id，否则查玩家所在房间
func (s *Server) locate(f *Frame) (*Room, *Player, bool) {
	var r *Room
	if f.RoomID != "" {
		var err error
		if r, err = s.rooms.Room(f.RoomID); err != nil {
			return nil, nil, false
		}
	} else {
		var ok bool
		if r, ok = s.rooms.RoomOf(f.PlayerID); !ok {
			return nil, nil, false
		}
	}
	p, ok := r.Players[f.PlayerID]
	if !ok {
		return nil, nil, false
	}
	return r, p, true
}

func (s *Server) handlePong(f *Frame, _ net.Addr, now time.Time) {
	if r, ok := s.rooms.RoomOf(f.PlayerID); ok {
		r.Players[f.PlayerID].LastPong = now
		return
	}
	if pp, ok := s.rooms.pendingPlayer(f.PlayerID); ok {
		pp.LastPong = now
	}
}

func (s *Server) handleListRooms(_ *Frame, addr net.Addr, _ time.Time) {
	s.send(addr, s.roomsList())
}

func (s *Server) handleCreateRoom(f *Frame, addr net.Addr, now time.Time) {
	name := f.roomName()
	r, err := s.createRoom(name, now)
	if err != nil {
		s.log.Infof("create room %q refused: %v", name, err)
		s.send(addr, roomResponse{Action: msgCreateResponse, RoomName: name, Error: rootError(err).Error()})
		return
	}
	s.send(addr, roomResponse{Action: msgCreateResponse, Success: true, RoomID: r.ID, RoomName: r.Name})
	s.broadcastRoomsList()
}

func (s *Server) handleJoinRoom(f *Frame, addr net.Addr, now time.Time) {
	t := joinTarget{kind: targetAuto}
	switch {
	case f.RoomID != "":
		t = joinTarget{kind: targetLegacyID, id: f.RoomID}
	case f.RoomName != "":
		t = joinTarget{kind: targetLegacyName, name: f.RoomName}
	}
	s.joinRoom(f.PlayerID, addr, t, now)
}

func (s *Server) handleJoinRoomByName(f *Frame, addr net.Addr, now time.Time) {
	s.joinRoom(f.PlayerID, addr, joinTarget{kind: targetByName, name: f.RoomName}, now)
}

func (s *Server) handleJoinRoomByID(f *Frame, addr net.Addr, now time.Time) {
	s.joinRoom(f.PlayerID, addr, joinTarget{kind: targetByID, id: f.RoomID}, now)
}

func (s *Server) handleDeleteRoomByID(f *Frame, addr net.Addr, now time.Time) {
	r, err := s.rooms.DeleteRoomByID(f.RoomID)
	s.roomDeleted(r, err, roomResponse{RoomID: f.RoomID}, addr, now)
}

func (s *Server) handleDeleteRoomByName(f *Frame, addr net.Addr, now time.Time) {
	r, err := s.rooms.DeleteRoomByName(f.RoomName)
	s.roomDeleted(r, err, roomResponse{RoomName: f.RoomName}, addr, now)
}

func (s *Server) roomDeleted(r *Room, err error, resp roomResponse, addr net.Addr, now time.Time) {
	resp.Action = msgDeleteResponse
	if err != nil {
		s.log.Infof("delete room refused: id=%q name=%q err=%v", resp.RoomID, resp.RoomName, err)
		resp.Error = rootError(err).Error()
		s.send(addr, resp)
		return
	}
	s.log.Infof("room deleted: id=%s name=%s players=%d", r.ID, r.Name, len(r.Players))
	s.publish(Event{Type: EventRoomDeleted, RoomID: r.ID, RoomName: r.Name}, now)
	resp.Success, resp.RoomID, resp.RoomName = true, r.ID, r.Name
	s.send(addr, resp)
	s.broadcastRoomsList()
}

func (s *Server) handleSetReady(_ *Room, p *Player, _ *Frame, _ time.Time) {
	p.Ready = true
	p.Skin = 1 + s.rng.Intn(4)
	s.log.Debugf("player %s ready (skin=%d)", p.ID, p.Skin)
}

// handleMove 客户端上报位置，服务端裁剪到地图范围
func (s *Server) handleMove(_ *Room, p *Player, f *Frame, _ time.Time) {
	if p.HP <= 0 || f.Position == nil {
		return
	}
	dir, ok := ParseDirection(f.Direction)
	if !ok {
		return
	}
	pos := f.Position.clampTo(s.game.MapWidth, s.game.MapHeight)
	p.Position = &pos
	p.Dir = dir
}

func (s *Server) handleShoot(r *Room, p *Player, _ *Frame, now time.Time) {
	if p.HP <= 0 || p.Position == nil {
		return
	}
	r.Bullets = append(r.Bullets, &Bullet{
		Owner:     p.ID,
		Pos:       *p.Position,
		Dir:       p.Dir,
		CreatedAt: now,
	})
	s.metrics.IncFired()
}

// handleStartGame 人数与准备条件不满足时只广播，不报错
func (s *Server) handleStartGame(r *Room, p *Player, _ *Frame, _ time.Time) {
	if r.tryStart() {
		s.log.Infof("room %s started by %s (%d players)", r.Name, p.ID, len(r.Players))
	}
}

func (s *Server) handleLeave(_ *Room, p *Player, _ *Frame, now time.Time) {
	s.leave(p.ID, now)
}

func (s *Server) handleRevive(r *Room, p *Player, _ *Frame, _ time.Time) {
	p.HP = s.game.MaxHP
	s.log.Infof("player %s revived in room %s", p.ID, r.Name)
}

// handleChat 聊天内容只记日志，不进入房间状态
func (s *Server) handleChat(r *Room, p *Player, f *Frame, _ time.Time) {
	s.log.Infof("[chat] room=%s %s: %s", r.Name, p.ID, f.Message)
}

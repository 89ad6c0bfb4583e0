package server

import (
	"errors"
	"net"
	"time"

	"tankarena/config"
)

type targetKind int

const (
	targetAuto       targetKind = iota // 不指定：第一个房间，没有则创建默认房间
	targetByID                         // join_room_by_id
	targetByName                       // join_room_by_name
	targetLegacyID                     // join_room + room_id：不存在则以 ID 为名创建
	targetLegacyName                   // join_room + room_name：不存在则创建
)

// joinTarget 加入房间的目标
type joinTarget struct {
	kind targetKind
	id   RoomID
	name string
}

// resolveTarget 找到或创建目标房间
func (s *Server) resolveTarget(t joinTarget, now time.Time) (*Room, error) {
	switch t.kind {
	case targetByID:
		return s.rooms.Room(t.id)
	case targetByName:
		id, err := s.rooms.ResolveName(t.name)
		if err != nil {
			return nil, err
		}
		return s.rooms.Room(id)
	case targetLegacyID:
		if r, err := s.rooms.Room(t.id); err == nil {
			return r, nil
		}
		// 该 ID 已被某个房间用作名称时，直接进入那个房间，保持名称唯一
		if id, err := s.rooms.ResolveName(string(t.id)); err == nil {
			return s.rooms.Room(id)
		}
		r, err := s.rooms.createRoomWithID(t.id)
		if err != nil {
			return nil, err
		}
		s.roomCreated(r, now)
		return r, nil
	case targetLegacyName:
		if id, err := s.rooms.ResolveName(t.name); err == nil {
			return s.rooms.Room(id)
		}
		return s.createRoom(t.name, now)
	default:
		if r, ok := s.rooms.first(); ok {
			return r, nil
		}
		return s.createRoom(s.game.DefaultRoomName, now)
	}
}

func (s *Server) createRoom(name string, now time.Time) (*Room, error) {
	r, err := s.rooms.CreateRoom(name)
	if err != nil {
		return nil, err
	}
	s.roomCreated(r, now)
	return r, nil
}

func (s *Server) roomCreated(r *Room, now time.Time) {
	s.log.Infof("room created: id=%s name=%s", r.ID, r.Name)
	s.publish(Event{Type: EventRoomCreated, RoomID: r.ID, RoomName: r.Name}, now)
}

// joinRoom 加入房间：
// 目标解析失败时不改变任何状态；成功则先离开旧房间，再新建或刷新玩家记录
func (s *Server) joinRoom(pid PlayerID, addr net.Addr, t joinTarget, now time.Time) {
	r, err := s.resolveTarget(t, now)
	if err != nil {
		s.joinFailed(pid, addr, t, err)
		return
	}

	existing, isMember := r.Players[pid]
	if !isMember && r.Started && s.game.LateJoin == config.LateJoinRefuse {
		s.joinFailed(pid, addr, t, ErrGameStarted)
		return
	}

	// 一个玩家最多属于一个房间
	if old, ok := s.rooms.RoomOf(pid); ok && old != r {
		s.rooms.removePlayer(pid)
		s.log.Infof("player %s moved out of room %s", pid, old.Name)
		s.publish(Event{Type: EventPlayerLeft, RoomID: old.ID, RoomName: old.Name, PlayerID: pid}, now)
		s.broadcastRoom(old, now)
	}

	if isMember {
		// 重连：只刷新地址与心跳时间，不重置状态
		existing.Addr = addr
		existing.LastPong = now
		s.rooms.dropPending(pid)
	} else {
		p := &Player{
			ID:       pid,
			Position: s.spawnPoint(),
			Dir:      DirUp,
			HP:       s.game.MaxHP,
			Addr:     addr,
			LastPong: now,
		}
		waiting := true
		if r.Started && s.game.LateJoin == config.LateJoinAutoReady {
			p.Ready = true
			waiting = false
		}
		s.rooms.admit(r, p, waiting)
		s.log.Infof("player %s joined room %s (hp=%d)", pid, r.Name, p.HP)
		s.publish(Event{Type: EventPlayerJoined, RoomID: r.ID, RoomName: r.Name, PlayerID: pid}, now)
	}

	s.send(addr, joinRoomResponse{Action: msgJoinResponse, Success: true, RoomID: r.ID, RoomName: r.Name})
	s.broadcastRoom(r, now)
}

func (s *Server) joinFailed(pid PlayerID, addr net.Addr, t joinTarget, err error) {
	s.log.Infof("join failed: player=%s room_id=%q room_name=%q err=%v", pid, t.id, t.name, err)
	resp := joinRoomResponse{
		Action:   msgJoinResponse,
		RoomID:   t.id,
		RoomName: t.name,
		Error:    rootError(err).Error(),
	}
	s.send(addr, resp)
}

// leave 离开房间并广播剩余状态；空房间保留
func (s *Server) leave(pid PlayerID, now time.Time) {
	r, ok := s.rooms.removePlayer(pid)
	if !ok {
		return
	}
	s.log.Infof("player %s left room %s", pid, r.Name)
	s.publish(Event{Type: EventPlayerLeft, RoomID: r.ID, RoomName: r.Name, PlayerID: pid}, now)
	s.broadcastRoom(r, now)
}

// rootError 返回可以直接给客户端看的哨兵错误
func rootError(err error) error {
	for _, sentinel := range []error{
		ErrRoomNameRequired, ErrRoomNameTaken, ErrRoomNameNotFound,
		ErrRoomIDNotFound, ErrLastRoom, ErrGameStarted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

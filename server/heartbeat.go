package server

import (
	"encoding/json"
	"time"
)

// Heartbeat 一次心跳巡检：向所有已知地址发 ping，再清理超时未回 pong 的玩家
// 单次判定：只看距上次 pong 的时间，不计丢失次数，不重试
func (s *Server) Heartbeat(now time.Time) {
	ping, _ := json.Marshal(pingMessage{Action: msgPing})

	for _, r := range s.rooms.Rooms() {
		for _, id := range r.playerIDs() {
			if a := r.Players[id].Addr; a != nil {
				s.sendRaw(a, ping)
				s.metrics.IncPings()
			}
		}
	}
	for _, pp := range s.rooms.pendingPlayers() {
		if pp.Addr != nil {
			s.sendRaw(pp.Addr, ping)
			s.metrics.IncPings()
		}
	}

	for _, r := range s.rooms.Rooms() {
		evicted := 0
		for _, id := range r.playerIDs() {
			if now.Sub(r.Players[id].LastPong) <= s.heartbeat.Timeout {
				continue
			}
			s.rooms.removePlayer(id)
			evicted++
			s.metrics.IncEvictions()
			s.log.Infof("player %s disconnected due to timeout (room %s)", id, r.Name)
			s.publish(Event{Type: EventPlayerEvicted, RoomID: r.ID, RoomName: r.Name, PlayerID: id}, now)
		}
		if evicted > 0 {
			s.broadcastRoom(r, now)
		}
	}
	for _, pp := range s.rooms.pendingPlayers() {
		if now.Sub(pp.LastPong) <= s.heartbeat.Timeout {
			continue
		}
		s.rooms.dropPending(pp.ID)
		s.metrics.IncEvictions()
		s.log.Infof("lobby player %s dropped due to timeout", pp.ID)
		s.publish(Event{Type: EventPlayerEvicted, PlayerID: pp.ID}, now)
	}
}

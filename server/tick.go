package server

import "time"

// Tick 推进一帧：逐房间处理子弹，然后无条件广播房间完整状态
// 客户端把每一帧都当作完整重同步，而不是增量
func (s *Server) Tick(now time.Time) {
	start := time.Now()
	dt := s.game.TickInterval().Seconds()
	for _, r := range s.rooms.Rooms() {
		for _, h := range r.advanceBullets(now, dt, s.game) {
			s.metrics.IncHits()
			if h.Destroyed {
				s.metrics.IncKills()
				s.log.Infof("player %s was destroyed by %s in room %s", h.Target, h.Shooter, r.Name)
				s.publish(Event{Type: EventPlayerDestroyed, RoomID: r.ID, RoomName: r.Name, PlayerID: h.Target, By: h.Shooter}, now)
			} else {
				s.log.Debugf("player %s took %d damage from %s (hp=%d)", h.Target, s.game.BulletDamage, h.Shooter, h.HP)
			}
		}
		s.broadcastRoom(r, now)
	}
	s.metrics.AddTick(time.Since(start).Nanoseconds())
}

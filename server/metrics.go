package server

import (
	"sync/atomic"
)

// Metrics 记录服务端运行期的关键指标（用于监控与调试）
// 计数在调度协程和读协程中写入，管理接口读取，统一用原子操作
type Metrics struct {
	FramesReceived  int64 // 收到的报文数
	FramesMalformed int64 // 畸形报文（解码失败 / 缺字段）
	FramesUnknown   int64 // 未知动作
	InboxDropped    int64 // 入站队列满被丢弃
	DropsSimulated  int64 // 因模拟丢包被丢弃
	HandlerPanics   int64 // 处理器 panic 次数
	TickCount       int64
	TotalTickNs     int64
	BulletsFired    int64
	BulletHits      int64
	PlayersKilled   int64
	PingsSent       int64
	Evictions       int64
	SendErrors      int64
}

func (m *Metrics) IncReceived()       { atomic.AddInt64(&m.FramesReceived, 1) }
func (m *Metrics) IncMalformed()      { atomic.AddInt64(&m.FramesMalformed, 1) }
func (m *Metrics) IncUnknown()        { atomic.AddInt64(&m.FramesUnknown, 1) }
func (m *Metrics) IncInboxDropped()   { atomic.AddInt64(&m.InboxDropped, 1) }
func (m *Metrics) IncDropsSimulated() { atomic.AddInt64(&m.DropsSimulated, 1) }
func (m *Metrics) IncPanics()         { atomic.AddInt64(&m.HandlerPanics, 1) }
func (m *Metrics) IncFired()          { atomic.AddInt64(&m.BulletsFired, 1) }
func (m *Metrics) IncHits()           { atomic.AddInt64(&m.BulletHits, 1) }
func (m *Metrics) IncKills()          { atomic.AddInt64(&m.PlayersKilled, 1) }
func (m *Metrics) IncPings()          { atomic.AddInt64(&m.PingsSent, 1) }
func (m *Metrics) IncEvictions()      { atomic.AddInt64(&m.Evictions, 1) }
func (m *Metrics) IncSendErrors()     { atomic.AddInt64(&m.SendErrors, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"frames_received":  atomic.LoadInt64(&m.FramesReceived),
		"frames_malformed": atomic.LoadInt64(&m.FramesMalformed),
		"frames_unknown":   atomic.LoadInt64(&m.FramesUnknown),
		"inbox_dropped":    atomic.LoadInt64(&m.InboxDropped),
		"drops_simulated":  atomic.LoadInt64(&m.DropsSimulated),
		"handler_panics":   atomic.LoadInt64(&m.HandlerPanics),
		"tick_count":       tick,
		"avg_tick_ms":      avgMs,
		"bullets_fired":    atomic.LoadInt64(&m.BulletsFired),
		"bullet_hits":      atomic.LoadInt64(&m.BulletHits),
		"players_killed":   atomic.LoadInt64(&m.PlayersKilled),
		"pings_sent":       atomic.LoadInt64(&m.PingsSent),
		"evictions":        atomic.LoadInt64(&m.Evictions),
		"send_errors":      atomic.LoadInt64(&m.SendErrors),
	}
}

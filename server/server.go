package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"tankarena/config"
)

// Server 权威会话服务端
// 报文处理、Tick、心跳都在 Run 的单个协程里串行执行，每一步都完整跑完，
// 因此房间状态无需加锁
type Server struct {
	game      config.Game
	heartbeat config.Heartbeat

	rooms     *RoomManager
	transport Transport
	events    EventPublisher
	metrics   *Metrics
	log       *zap.SugaredLogger

	inbox chan any
	rng   *rand.Rand
	now   func() time.Time
}

// Option 可选依赖
type Option func(*Server)

// WithEvents 启用事件推送
func WithEvents(p EventPublisher) Option {
	return func(s *Server) { s.events = p }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRand 替换随机源（测试用）
func WithRand(rng *rand.Rand) Option {
	return func(s *Server) { s.rng = rng }
}

// New 创建服务端；传输层由调用方注入
func New(cfg *config.Config, transport Transport, log *zap.SugaredLogger, opts ...Option) *Server {
	s := &Server{
		game:      cfg.Game,
		heartbeat: cfg.Heartbeat,
		rooms:     NewRoomManager(),
		transport: transport,
		events:    nopPublisher{},
		metrics:   &Metrics{},
		log:       log,
		inbox:     make(chan any, cfg.Server.InboxSize),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rooms 房间管理器
func (s *Server) Rooms() *RoomManager { return s.rooms }

// Metrics 运行指标
func (s *Server) Metrics() *Metrics { return s.metrics }

// call 在调度协程中执行的闭包（管理接口使用）
type call struct {
	fn   func()
	done chan struct{}
}

// Deliver 入站报文进入队列（非阻塞，满则丢弃，与 UDP 丢包语义一致）
// 可在任意协程调用
func (s *Server) Deliver(d Datagram) {
	s.metrics.IncReceived()
	select {
	case s.inbox <- d:
	default:
		s.metrics.IncInboxDropped()
	}
}

// Exec 在调度协程中同步执行 fn，ctx 结束则放弃等待
func (s *Server) Exec(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case s.inbox <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 调度主循环：入站报文 / Tick / 心跳，直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	tick := time.NewTicker(s.game.TickInterval())
	defer tick.Stop()
	hb := time.NewTicker(s.heartbeat.Interval)
	defer hb.Stop()

	s.log.Infof("session loop started: tick=%dHz ping=%s timeout=%s",
		s.game.TickRate, s.heartbeat.Interval, s.heartbeat.Timeout)
	for {
		select {
		case <-ctx.Done():
			s.events.Close()
			s.log.Info("session loop stopped")
			return nil
		case in := <-s.inbox:
			switch v := in.(type) {
			case Datagram:
				s.receive(v)
			case call:
				v.fn()
				close(v.done)
			}
		case <-tick.C:
			s.Tick(s.now())
		case <-hb.C:
			s.Heartbeat(s.now())
		}
	}
}

// receive 模拟丢包后交给分发器
func (s *Server) receive(d Datagram) {
	if p := s.game.SimulateDropProb; p > 0 && s.rng.Float64() < p {
		s.metrics.IncDropsSimulated()
		return
	}
	now := d.ReceivedAt
	if now.IsZero() {
		now = s.now()
	}
	s.HandleDatagram(d.Addr, d.Payload, now)
}

// send 编码后单播，失败只记录
func (s *Server) send(addr net.Addr, v any) {
	if addr == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Errorf("encode outbound: %v", err)
		return
	}
	s.sendRaw(addr, b)
}

func (s *Server) sendRaw(addr net.Addr, b []byte) {
	if err := s.transport.Send(addr, b); err != nil {
		s.metrics.IncSendErrors()
		s.log.Debugf("send to %s: %v", addr, err)
	}
}

// broadcastRoom 把房间完整快照发给房间内每个玩家
func (s *Server) broadcastRoom(r *Room, now time.Time) {
	if len(r.Players) == 0 {
		return
	}
	b, err := json.Marshal(updateStateMessage{
		Action:    msgUpdateState,
		GameState: r.State(),
		Timestamp: unixSeconds(now),
	})
	if err != nil {
		s.log.Errorf("encode room %s: %v", r.ID, err)
		return
	}
	for _, id := range r.playerIDs() {
		if p := r.Players[id]; p.Addr != nil {
			s.sendRaw(p.Addr, b)
		}
	}
}

func (s *Server) roomsList() roomsListMessage {
	return roomsListMessage{Action: msgRoomsList, Rooms: s.rooms.ListRooms()}
}

// broadcastRoomsList 房间列表发给所有已知客户端（大厅 + 房间内）
func (s *Server) broadcastRoomsList() {
	b, err := json.Marshal(s.roomsList())
	if err != nil {
		s.log.Errorf("encode rooms list: %v", err)
		return
	}
	for _, addr := range s.rooms.endpoints() {
		s.sendRaw(addr, b)
	}
}

func (s *Server) publish(ev Event, now time.Time) {
	ev.At = now
	s.events.Publish(ev)
}

// spawnPoint 地图内随机出生点
func (s *Server) spawnPoint() *Vec2 {
	return &Vec2{
		X: s.rng.Float64() * s.game.MapWidth,
		Y: s.rng.Float64() * s.game.MapHeight,
	}
}

// GameConfig 当前玩法参数（需在调度协程中调用）
func (s *Server) GameConfig() config.Game { return s.game }

// SetGameConfig 热更新玩法参数（需在调度协程中调用）
// Tick 频率与地图尺寸不可热更新
func (s *Server) SetGameConfig(g config.Game) error {
	g.TickRate = s.game.TickRate
	g.MapWidth, g.MapHeight = s.game.MapWidth, s.game.MapHeight
	if err := g.Validate(); err != nil {
		return err
	}
	s.game = g
	return nil
}

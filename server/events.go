package server

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// 房间生命周期事件类型
const (
	EventRoomCreated     = "room_created"
	EventRoomDeleted     = "room_deleted"
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventPlayerEvicted   = "player_evicted"
	EventPlayerDestroyed = "player_destroyed"
)

// Event 对外推送的房间事件
type Event struct {
	Type     string    `json:"type"`
	RoomID   RoomID    `json:"room_id,omitempty"`
	RoomName string    `json:"room_name,omitempty"`
	PlayerID PlayerID  `json:"player_id,omitempty"`
	By       PlayerID  `json:"by,omitempty"`
	At       time.Time `json:"at"`
}

// EventPublisher 事件出口，发布失败不影响主流程
type EventPublisher interface {
	Publish(ev Event)
	Close()
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
func (nopPublisher) Close()        {}

// NATSPublisher 把事件以 JSON 发布到 <prefix>.<type>
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.SugaredLogger
}

// NewNATSPublisher 连接 NATS；断线后由客户端库自动重连
func NewNATSPublisher(url, prefix string, log *zap.SugaredLogger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tankarena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats reconnected: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: log}, nil
}

// Publish 实现 EventPublisher
func (p *NATSPublisher) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	if err := p.nc.Publish(p.prefix+"."+ev.Type, b); err != nil {
		p.log.Warnf("publish event %s: %v", ev.Type, err)
	}
}

// Close 刷出缓冲后断开
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

package server

import (
	"net"
	"time"
)

// PlayerID 玩家标识，由客户端自带（不做鉴权）
type PlayerID string

// RoomID 房间标识（随机生成，或旧版客户端指定）
type RoomID string

// Direction 朝向，四向移动，无斜向
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// ParseDirection 解析客户端传来的方向
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case DirUp, DirDown, DirLeft, DirRight:
		return d, true
	}
	return "", false
}

// delta 单位位移：up/down 改 y，left/right 改 x
func (d Direction) delta() (dx, dy float64) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	default:
		return 1, 0
	}
}

// Vec2 地图坐标
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// clampTo 裁剪到 [0,w]×[0,h]
func (v Vec2) clampTo(w, h float64) Vec2 {
	return Vec2{X: clamp(v.X, 0, w), Y: clamp(v.Y, 0, h)}
}

func (v Vec2) inside(w, h float64) bool {
	return v.X >= 0 && v.X <= w && v.Y >= 0 && v.Y <= h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Player 房间内的玩家实体（服务端权威状态）
// HP <= 0 视为被摧毁，但记录保留，可 revive
type Player struct {
	ID       PlayerID
	Ready    bool
	Position *Vec2 // nil 表示尚未出生
	Dir      Direction
	HP       int
	Addr     net.Addr // 最近一次收到报文的来源地址
	LastPong time.Time
	Skin     int
}

// Alive 存活且已出生才参与碰撞
func (p *Player) Alive() bool {
	return p.HP > 0 && p.Position != nil
}

// damage 扣血，下限为 0
func (p *Player) damage(n int) {
	p.HP -= n
	if p.HP < 0 {
		p.HP = 0
	}
}

// PendingPlayer 大厅中尚未进入任何房间的玩家，仅用于心跳探测与清理
type PendingPlayer struct {
	ID       PlayerID
	Addr     net.Addr
	LastPong time.Time
}

// Bullet 子弹，只属于所在房间
type Bullet struct {
	Owner     PlayerID
	Pos       Vec2
	Dir       Direction
	CreatedAt time.Time
}

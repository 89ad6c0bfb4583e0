package server

import (
	"math"
	"slices"
	"time"

	"tankarena/config"
)

// Room 一局独立的模拟：玩家、等待室与子弹
// 所有字段只在调度协程中修改
type Room struct {
	ID          RoomID
	Name        string
	WaitingRoom []PlayerID
	Players     map[PlayerID]*Player
	Bullets     []*Bullet
	// Started start_game 成功后置位，房间清空时复位
	Started bool
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id RoomID, name string) *Room {
	return &Room{
		ID:          id,
		Name:        name,
		WaitingRoom: make([]PlayerID, 0, 4),
		Players:     make(map[PlayerID]*Player),
	}
}

// addPlayer 放入房间；waiting 为 true 时追加到等待室
func (r *Room) addPlayer(p *Player, waiting bool) {
	r.Players[p.ID] = p
	if waiting && !slices.Contains(r.WaitingRoom, p.ID) {
		r.WaitingRoom = append(r.WaitingRoom, p.ID)
	}
}

// removePlayer 同时从 players 和等待室中移除
func (r *Room) removePlayer(id PlayerID) bool {
	if _, ok := r.Players[id]; !ok {
		return false
	}
	delete(r.Players, id)
	r.WaitingRoom = slices.DeleteFunc(r.WaitingRoom, func(w PlayerID) bool { return w == id })
	if len(r.Players) == 0 {
		r.Started = false
	}
	return true
}

// tryStart 等待室至少两人且全部准备时清空等待室
func (r *Room) tryStart() bool {
	if len(r.WaitingRoom) < 2 {
		return false
	}
	for _, id := range r.WaitingRoom {
		p, ok := r.Players[id]
		if !ok || !p.Ready {
			return false
		}
	}
	r.WaitingRoom = r.WaitingRoom[:0]
	r.Started = true
	return true
}

// bulletHit 一次命中记录，供日志与事件使用
type bulletHit struct {
	Shooter   PlayerID
	Target    PlayerID
	HP        int
	Destroyed bool
}

// advanceBullets 推进一帧子弹：过期 → 移动 → 越界 → 碰撞
// 每颗子弹最多命中一个玩家，命中即消失
func (r *Room) advanceBullets(now time.Time, dt float64, g config.Game) []bulletHit {
	var hits []bulletHit
	kept := r.Bullets[:0]
	for _, b := range r.Bullets {
		if now.Sub(b.CreatedAt) > g.BulletLifetime {
			continue
		}
		dx, dy := b.Dir.delta()
		step := g.BulletSpeed * dt
		b.Pos.X += dx * step
		b.Pos.Y += dy * step
		if !b.Pos.inside(g.MapWidth, g.MapHeight) {
			continue
		}
		if h, ok := r.collide(b, g); ok {
			hits = append(hits, h)
			continue
		}
		kept = append(kept, b)
	}
	// 清掉尾部引用，避免旧子弹无法回收
	for i := len(kept); i < len(r.Bullets); i++ {
		r.Bullets[i] = nil
	}
	r.Bullets = kept
	return hits
}

// collide 按稳定顺序找第一个被击中的非己方存活玩家
func (r *Room) collide(b *Bullet, g config.Game) (bulletHit, bool) {
	for _, id := range r.playerIDs() {
		if id == b.Owner {
			continue
		}
		p := r.Players[id]
		if !p.Alive() {
			continue
		}
		if math.Hypot(p.Position.X-b.Pos.X, p.Position.Y-b.Pos.Y) <= g.HitRadius {
			p.damage(g.BulletDamage)
			return bulletHit{Shooter: b.Owner, Target: id, HP: p.HP, Destroyed: p.HP <= 0}, true
		}
	}
	return bulletHit{}, false
}

// playerIDs 排序后的玩家列表，保证碰撞与广播顺序确定
func (r *Room) playerIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// State 构造广播用快照（深拷贝，不与房间共享内存）
func (r *Room) State() RoomState {
	st := RoomState{
		RoomID:      r.ID,
		RoomName:    r.Name,
		WaitingRoom: append([]PlayerID{}, r.WaitingRoom...),
		Started:     r.Started,
		Players:     make(map[PlayerID]PlayerState, len(r.Players)),
		Bullets:     make([]BulletState, 0, len(r.Bullets)),
	}
	for id, p := range r.Players {
		ps := PlayerState{
			Ready:     p.Ready,
			Direction: p.Dir,
			HP:        p.HP,
			LastPong:  unixSeconds(p.LastPong),
			Skin:      p.Skin,
		}
		if p.Position != nil {
			pos := *p.Position
			ps.Position = &pos
		}
		if p.Addr != nil {
			ps.Address = p.Addr.String()
		}
		st.Players[id] = ps
	}
	for _, b := range r.Bullets {
		st.Bullets = append(st.Bullets, BulletState{
			PlayerID:  b.Owner,
			Position:  b.Pos,
			Direction: b.Dir,
			Created:   unixSeconds(b.CreatedAt),
		})
	}
	return st
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

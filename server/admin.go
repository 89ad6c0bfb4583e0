package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// adminConfig 可热更新的玩法参数；字段为 nil 表示不修改
type adminConfig struct {
	BulletSpeed      *float64 `json:"bulletSpeed,omitempty"`
	BulletLifetimeMs *int64   `json:"bulletLifetimeMs,omitempty"`
	HitRadius        *float64 `json:"hitRadius,omitempty"`
	BulletDamage     *int     `json:"bulletDamage,omitempty"`
	LateJoin         *string  `json:"lateJoin,omitempty"`
	SimulateDropProb *float64 `json:"simulateDropProb,omitempty"`
}

// adminRoom 房间概况
type adminRoom struct {
	RoomID  RoomID `json:"room_id"`
	Name    string `json:"room_name"`
	Players int    `json:"players"`
	Waiting int    `json:"waiting"`
	Bullets int    `json:"bullets"`
	Started bool   `json:"game_started"`
}

// NewAdminHandler 管理与监控接口
// GET  /healthz
// GET  /metrics        运行指标
// GET  /admin/rooms    房间概况
// GET  /admin/config   当前玩法参数
// POST /admin/config   以 JSON 载荷更新部分字段
func NewAdminHandler(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.metrics.Snapshot())
	})
	mux.HandleFunc("/admin/rooms", s.handleAdminRooms)
	mux.HandleFunc("/admin/config", s.handleAdminConfig)
	return mux
}

func (s *Server) handleAdminRooms(w http.ResponseWriter, r *http.Request) {
	var out []adminRoom
	err := s.Exec(r.Context(), func() {
		out = make([]adminRoom, 0, s.rooms.Len())
		for _, room := range s.rooms.Rooms() {
			out = append(out, adminRoom{
				RoomID:  room.ID,
				Name:    room.Name,
				Players: len(room.Players),
				Waiting: len(room.WaitingRoom),
				Bullets: len(room.Bullets),
				Started: room.Started,
			})
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var cur adminConfig
		err := s.Exec(r.Context(), func() {
			g := s.GameConfig()
			lifetime := g.BulletLifetime.Milliseconds()
			cur = adminConfig{
				BulletSpeed:      &g.BulletSpeed,
				BulletLifetimeMs: &lifetime,
				HitRadius:        &g.HitRadius,
				BulletDamage:     &g.BulletDamage,
				LateJoin:         &g.LateJoin,
				SimulateDropProb: &g.SimulateDropProb,
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, cur)
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var updateErr error
		err := s.Exec(r.Context(), func() {
			g := s.GameConfig()
			if body.BulletSpeed != nil {
				g.BulletSpeed = *body.BulletSpeed
			}
			if body.BulletLifetimeMs != nil {
				g.BulletLifetime = time.Duration(*body.BulletLifetimeMs) * time.Millisecond
			}
			if body.HitRadius != nil {
				g.HitRadius = *body.HitRadius
			}
			if body.BulletDamage != nil {
				g.BulletDamage = *body.BulletDamage
			}
			if body.LateJoin != nil {
				g.LateJoin = *body.LateJoin
			}
			if body.SimulateDropProb != nil {
				g.SimulateDropProb = *body.SimulateDropProb
			}
			if updateErr = s.SetGameConfig(g); updateErr == nil {
				s.log.Infof("config updated: speed=%.1f lifetime=%s radius=%.1f damage=%d lateJoin=%s drop=%.2f",
					g.BulletSpeed, g.BulletLifetime, g.HitRadius, g.BulletDamage, g.LateJoin, g.SimulateDropProb)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if updateErr != nil {
			http.Error(w, updateErr.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

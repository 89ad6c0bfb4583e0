package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 迟到加入策略：开局后新玩家如何处理
const (
	LateJoinAdmit     = "admit"      // 正常加入等待室（未准备）
	LateJoinAutoReady = "auto_ready" // 直接标记准备，不进等待室
	LateJoinRefuse    = "refuse"     // 拒绝加入
)

// Config 服务端全部配置
type Config struct {
	Server    Server    `yaml:"server"`
	Game      Game      `yaml:"game"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Log       Log       `yaml:"log"`
	Events    Events    `yaml:"events"`
}

// Server 监听地址；WSAddr / AdminAddr 为空表示不启用
type Server struct {
	UDPAddr   string `yaml:"udp_addr"`
	WSAddr    string `yaml:"ws_addr"`
	AdminAddr string `yaml:"admin_addr"`
	InboxSize int    `yaml:"inbox_size"`
}

// Game 世界参数与玩法规则
type Game struct {
	MapWidth        float64       `yaml:"map_width"`
	MapHeight       float64       `yaml:"map_height"`
	TickRate        int           `yaml:"tick_rate"`
	BulletSpeed     float64       `yaml:"bullet_speed"`    // 像素/秒
	BulletLifetime  time.Duration `yaml:"bullet_lifetime"` // 子弹存活时间
	HitRadius       float64       `yaml:"hit_radius"`
	BulletDamage    int           `yaml:"bullet_damage"`
	MaxHP           int           `yaml:"max_hp"`
	DefaultRoomName string        `yaml:"default_room_name"`
	LateJoin        string        `yaml:"late_join"`
	// SimulateDropProb 以该概率丢弃入站报文，用于测试客户端的丢包容忍度
	SimulateDropProb float64 `yaml:"simulate_drop_prob"`
}

// Heartbeat ping/pong 存活探测
type Heartbeat struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Log 日志输出（lumberjack 滚动）
type Log struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Events 房间事件推送（NATS），URL 为空则关闭
type Events struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TickInterval 每个 Tick 的时长
func (g Game) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: Server{
			UDPAddr:   ":9999",
			InboxSize: 1024,
		},
		Game: Game{
			MapWidth:        800,
			MapHeight:       600,
			TickRate:        60,
			BulletSpeed:     300,
			BulletLifetime:  3 * time.Second,
			HitRadius:       20,
			BulletDamage:    25,
			MaxHP:           100,
			DefaultRoomName: "lobby",
			LateJoin:        LateJoinAdmit,
		},
		Heartbeat: Heartbeat{
			Interval: 10 * time.Second,
			Timeout:  30 * time.Second,
		},
		Log: Log{
			File:       "app.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Events: Events{
			SubjectPrefix: "tankarena",
		},
	}
}

// Load 按顺序叠加：默认值 → YAML 文件 → .env → 环境变量，最后校验
// path 为空时跳过文件
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env 可选，不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("TANKARENA_UDP_ADDR", &c.Server.UDPAddr)
	str("TANKARENA_WS_ADDR", &c.Server.WSAddr)
	str("TANKARENA_ADMIN_ADDR", &c.Server.AdminAddr)
	str("TANKARENA_LATE_JOIN", &c.Game.LateJoin)
	str("TANKARENA_LOG_FILE", &c.Log.File)
	str("TANKARENA_LOG_LEVEL", &c.Log.Level)
	str("TANKARENA_NATS_URL", &c.Events.NATSURL)

	if v, ok := os.LookupEnv("TANKARENA_TICK_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TANKARENA_TICK_RATE: %w", err)
		}
		c.Game.TickRate = n
	}
	for key, dst := range map[string]*time.Duration{
		"TANKARENA_PING_INTERVAL": &c.Heartbeat.Interval,
		"TANKARENA_PONG_TIMEOUT":  &c.Heartbeat.Timeout,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.UDPAddr == "" {
		return errors.New("server.udp_addr is required")
	}
	if c.Server.InboxSize <= 0 {
		return errors.New("server.inbox_size must be positive")
	}
	if err := c.Game.Validate(); err != nil {
		return err
	}
	if c.Heartbeat.Interval <= 0 || c.Heartbeat.Timeout <= 0 {
		return errors.New("heartbeat interval and timeout must be positive")
	}
	return nil
}

// Validate 校验玩法参数，管理接口热更新时也会调用
func (g Game) Validate() error {
	switch {
	case g.MapWidth <= 0 || g.MapHeight <= 0:
		return errors.New("game map size must be positive")
	case g.TickRate <= 0:
		return errors.New("game.tick_rate must be positive")
	case g.BulletSpeed < 0:
		return errors.New("game.bullet_speed must not be negative")
	case g.BulletLifetime <= 0:
		return errors.New("game.bullet_lifetime must be positive")
	case g.HitRadius < 0:
		return errors.New("game.hit_radius must not be negative")
	case g.BulletDamage < 0:
		return errors.New("game.bullet_damage must not be negative")
	case g.MaxHP <= 0:
		return errors.New("game.max_hp must be positive")
	case g.DefaultRoomName == "":
		return errors.New("game.default_room_name is required")
	case g.SimulateDropProb < 0 || g.SimulateDropProb > 1:
		return errors.New("game.simulate_drop_prob must be within [0,1]")
	}
	switch g.LateJoin {
	case LateJoinAdmit, LateJoinAutoReady, LateJoinRefuse:
	default:
		return fmt.Errorf("game.late_join: unknown policy %q", g.LateJoin)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	defaultSecret    = "change-me-session-secret"
	defaultJWTSecret = "change-me-jwt-secret"
)

type JWT struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Presence struct {
	// Backend is one of "db", "redis" or "none".
	Backend string `mapstructure:"backend"`
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type WS struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	AuthTimeout  time.Duration `mapstructure:"auth_timeout"`
	// Backpressure is "drop" or "kick".
	Backpressure string `mapstructure:"backpressure"`
}

type RateLimit struct {
	FramesPerSecond float64 `mapstructure:"frames_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type History struct {
	Limit int `mapstructure:"limit"`
}

type Session struct {
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Uploads are written below Dir and served back under URLPrefix.
type Uploads struct {
	Dir           string `mapstructure:"dir"`
	URLPrefix     string `mapstructure:"url_prefix"`
	MaxSize       int64  `mapstructure:"max_size"`
	AvatarMaxSize int64  `mapstructure:"avatar_max_size"`
}

type Config struct {
	Env        string        `mapstructure:"-"`
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	JWT        JWT       `mapstructure:"jwt"`
	Database   Database  `mapstructure:"database"`
	Presence   Presence  `mapstructure:"presence"`
	Redis      Redis     `mapstructure:"redis"`
	WS         WS        `mapstructure:"ws"`
	RateLimit  RateLimit `mapstructure:"ratelimit"`
	History    History   `mapstructure:"history"`
	Session    Session   `mapstructure:"session"`
	Uploads    Uploads   `mapstructure:"uploads"`
	ICEServers []string  `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", defaultSecret)

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.ttl", "30m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:chatrelay.db")

	v.SetDefault("presence.backend", "db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "chatrelay:presence:")

	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.write_timeout", "5s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.auth_timeout", "10s")
	v.SetDefault("ws.backpressure", "drop")

	v.SetDefault("ratelimit.frames_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("history.limit", 50)

	v.SetDefault("session.max_age", "168h")

	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.url_prefix", "/uploads")
	v.SetDefault("uploads.max_size", 500<<20)
	v.SetDefault("uploads.avatar_max_size", 5<<20)

	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// Any key can be overridden with a CHATRELAY_ prefixed variable,
// e.g. CHATRELAY_JWT_SECRET or CHATRELAY_DATABASE_DSN.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Env = env
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("db", cfg.Database.Driver).
		Str("presence", cfg.Presence.Backend).
		Msg("config ready")
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Presence.Backend {
	case "db", "redis", "none":
	default:
		return fmt.Errorf("unsupported presence backend %q", c.Presence.Backend)
	}
	switch c.WS.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("unsupported backpressure policy %q", c.WS.Backpressure)
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	if c.Uploads.Dir == "" || !strings.HasPrefix(c.Uploads.URLPrefix, "/") {
		return errors.New("uploads.dir and an absolute uploads.url_prefix are required")
	}
	if c.Uploads.MaxSize <= 0 || c.Uploads.AvatarMaxSize <= 0 {
		return errors.New("upload size limits must be positive")
	}
	if c.Env != "dev" && (c.JWT.Secret == defaultJWTSecret || c.Secret == defaultSecret) {
		return errors.New("default secrets are only allowed in dev")
	}
	return nil
}

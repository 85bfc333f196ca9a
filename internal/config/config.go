package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	Secret     string        `mapstructure:"secret"`

	// SendBuffer is the per-connection outbound frame queue.
	SendBuffer int `mapstructure:"send_buffer"`
	// MailboxSize is the per-participant signaling queue inside a session.
	MailboxSize int `mapstructure:"mailbox_size"`

	ClosedSessionTTL time.Duration `mapstructure:"closed_session_ttl"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`

	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Redis      RedisConfig       `mapstructure:"redis"`
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`

	iceServers []webrtc.ICEServer
}

type AuthConfig struct {
	// JWTSecret enables bearer-token identity. Empty means anonymous cookies.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PresenceKey string        `mapstructure:"presence_key"`
	Channel     string        `mapstructure:"channel"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	QueueOps int           `mapstructure:"queue_ops"`
	Interval time.Duration `mapstructure:"interval"`
}

// ICE returns the validated STUN/TURN list handed to clients as-is.
func (c *Config) ICE() []webrtc.ICEServer { return c.iceServers }

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName (missing is fine) on top of defaults and
// ROULETTE_* environment overrides.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("ROULETTE")
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Int("ice_servers", len(cfg.iceServers)).
		Bool("redis", cfg.Redis.Enabled).
		Bool("jwt", cfg.Auth.JWTSecret != "").
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("mailbox_size", 64)
	v.SetDefault("closed_session_ttl", "1m")
	v.SetDefault("reap_interval", "30s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.presence_key", "roulette:online")
	v.SetDefault("redis.channel", "roulette:presence")
	v.SetDefault("redis.timeout", "2s")
	v.SetDefault("rate_limit.queue_ops", 10)
	v.SetDefault("rate_limit.interval", "10s")
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	if c.SendBuffer <= 0 || c.MailboxSize <= 0 {
		return fmt.Errorf("send_buffer and mailbox_size must be positive")
	}
	servers, err := ParseICEServers(c.ICEServers)
	if err != nil {
		return fmt.Errorf("ice_servers: %w", err)
	}
	c.iceServers = servers
	return nil
}

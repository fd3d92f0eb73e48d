package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type HistoryConfig struct {
	// Path of the badger directory; empty keeps history in memory.
	Path  string `mapstructure:"path"`
	Limit int    `mapstructure:"limit"`
	Queue int    `mapstructure:"queue"`
}

type ChatConfig struct {
	MaxLength    int           `mapstructure:"max_length"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	QueueSize  int           `mapstructure:"queue_size"`
	History    HistoryConfig `mapstructure:"history"`
	Chat       ChatConfig    `mapstructure:"chat"`
	CORS       CORSConfig    `mapstructure:"cors"`
}

// PeerConfig drives the headless participant.
type PeerConfig struct {
	ServerURL        string        `mapstructure:"server_url"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	RecreateDelay    time.Duration `mapstructure:"recreate_delay"`
	NegotiateTimeout time.Duration `mapstructure:"negotiate_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
}

func newViper() (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)
	return v, fileName
}

func readIn(v *viper.Viper, fileName string) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
}

func Load() (*Config, error) {
	v, fileName := newViper()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("queue_size", 256)
	v.SetDefault("history.path", "")
	v.SetDefault("history.limit", 100)
	v.SetDefault("history.queue", 256)
	v.SetDefault("chat.max_length", 4000)
	v.SetDefault("chat.rate_limit", 20)
	v.SetDefault("chat.rate_interval", "10s")
	v.SetDefault("cors.allow_origins", []string{})

	readIn(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func LoadPeer() (*PeerConfig, error) {
	v, fileName := newViper()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("recreate_delay", "2s")
	v.SetDefault("negotiate_timeout", "10s")
	v.SetDefault("log_level", "info")

	readIn(v, fileName)

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	return &cfg, nil
}

// ParseLevel maps a config level to zerolog, falling back to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

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

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Telemetry struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type NATS struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	JWTSecret  string        `mapstructure:"jwt_secret"`

	MaxPlayersPerSpace int    `mapstructure:"max_players_per_space"`
	SQLitePath         string `mapstructure:"sqlite_path"`

	Redis     Redis     `mapstructure:"redis"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	NATS      NATS      `mapstructure:"nats"`
}

var ErrMissingSecret = errors.New("jwt_secret is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("max_players_per_space", 30)
	v.SetDefault("sqlite_path", "gather.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("telemetry.timeout", "2s")
	v.SetDefault("telemetry.probe_interval", "10s")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "spaces.changed")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults. GATHER_*
// environment variables win over both, e.g. GATHER_REDIS_ADDR.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("GATHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

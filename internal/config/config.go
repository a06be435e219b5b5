package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type ModerationConfig struct {
	Blocklist []string `mapstructure:"blocklist"`
	MaxLength int      `mapstructure:"max_length"`
}

type ArchiveConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	PerSec float64 `mapstructure:"per_sec"`
	Burst  int     `mapstructure:"burst"`
}

type Config struct {
	Mode            string           `mapstructure:"mode"`
	Port            int              `mapstructure:"port"`
	ReadLimit       int64            `mapstructure:"read_limit"`
	PingPeriod      time.Duration    `mapstructure:"ping_period"`
	PongWait        time.Duration    `mapstructure:"pong_wait"`
	WriteWait       time.Duration    `mapstructure:"write_wait"`
	IdleTimeout     time.Duration    `mapstructure:"idle_timeout"`
	SendBuffer      int              `mapstructure:"send_buffer"`
	AllowedOrigins  []string         `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
	JWT             JWTConfig        `mapstructure:"jwt"`
	Moderation      ModerationConfig `mapstructure:"moderation"`
	Archive         ArchiveConfig    `mapstructure:"archive"`
	RateLimit       RateLimitConfig  `mapstructure:"rate_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("idle_timeout", "0s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("shutdown_timeout", "10s")

	v.SetDefault("jwt.secret", "dev-insecure")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.ttl", "168h")

	v.SetDefault("moderation.blocklist", []string{})
	v.SetDefault("moderation.max_length", 2000)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.dsn", "chat.db")
	v.SetDefault("archive.timeout", "5s")

	v.SetDefault("rate_limit.per_sec", 5.0)
	v.SetDefault("rate_limit.burst", 10)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) on top of the
// defaults. Every key can be overridden from the environment with the RELAY_
// prefix, e.g. RELAY_JWT_SECRET or RELAY_ARCHIVE_DSN.
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

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Bool("archive", cfg.Archive.Enabled).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.Moderation.MaxLength <= 0 {
		return fmt.Errorf("moderation.max_length must be positive, got %d", c.Moderation.MaxLength)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	return nil
}

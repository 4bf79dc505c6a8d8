package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	pstrings "formvault/pkg/platform/strings"
)

const devSecretKey = "dev-secret-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr          string `validate:"required"`
	SecretKey     string `validate:"required,min=8"`
	MaxUploadMB   int    `validate:"min=1,max=512"`
	ShutdownGrace time.Duration

	// TrustedProxies lists the peers, as addresses or CIDR ranges, whose
	// X-Forwarded-For is believed. Empty means the socket peer is the client.
	TrustedProxies []string `validate:"dive,cidr|ip"`

	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Token     TokenConfig
	Log       LogConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig selects the SQL driver for the submission store.
type DatabaseConfig struct {
	Driver string `validate:"oneof=sqlite3 postgres"`
	URL    string `validate:"required"`
}

// RedisConfig configures the optional Redis session backend. An empty URL keeps
// sessions in process memory.
type RedisConfig struct {
	URL          string
	PoolSize     int `validate:"min=1"`
	MinIdleConns int `validate:"min=0"`
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionConfig controls the browser session cookie.
type SessionConfig struct {
	CookieName   string        `validate:"required"`
	TTL          time.Duration `validate:"gt=0"`
	CookieSecure bool
}

// TokenConfig controls retrieval token minting. A zero TTL issues tokens
// without an expiry.
type TokenConfig struct {
	Issuer string `validate:"required"`
	TTL    time.Duration
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// AuditConfig enables the Kafka audit sink when Brokers is non-empty.
type AuditConfig struct {
	Brokers []string
	Topic   string `validate:"required"`
}

// RateLimitConfig caps form posts per client address. Zero Posts disables it.
type RateLimitConfig struct {
	Posts  int           `validate:"min=0"`
	Window time.Duration `validate:"gte=0"`
}

// MaxUploadBytes is the request body limit applied to the register form.
func (s Server) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

// UsesDevSecret reports whether the built-in development secret is active.
func (s Server) UsesDevSecret() bool {
	return s.SecretKey == devSecretKey
}

// Default returns the configuration used when nothing is overridden.
func Default() Server {
	return Server{
		Addr:          ":8080",
		SecretKey:     devSecretKey,
		MaxUploadMB:   16,
		ShutdownGrace: 10 * time.Second,
		Database: DatabaseConfig{
			Driver: "sqlite3",
			URL:    "file:form-data.db?_foreign_keys=on",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Session: SessionConfig{
			CookieName: "formvault_session",
			TTL:        7 * 24 * time.Hour,
		},
		Token: TokenConfig{
			Issuer: "formvault",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			Topic: "formvault.audit",
		},
		RateLimit: RateLimitConfig{
			Posts:  30,
			Window: time.Hour,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order, then validates the result.
func Load(path string) (Server, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FORMVAULT_CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Server{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Server{}, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return Server{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv is Load without a config file.
func FromEnv() (Server, error) {
	return Load("")
}

type fileConfig struct {
	Addr           string   `yaml:"addr"`
	SecretKey      string   `yaml:"secret_key"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	ShutdownGrace  string   `yaml:"shutdown_grace"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	Database       struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL      string `yaml:"url"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Session struct {
		CookieName   string `yaml:"cookie_name"`
		TTL          string `yaml:"ttl"`
		CookieSecure *bool  `yaml:"cookie_secure"`
	} `yaml:"session"`
	Token struct {
		Issuer string `yaml:"issuer"`
		TTL    string `yaml:"ttl"`
	} `yaml:"token"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Audit struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"audit"`
	RateLimit struct {
		Posts  *int   `yaml:"posts"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`
}

func applyFile(cfg *Server, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.SecretKey, fc.SecretKey)
	if fc.MaxUploadMB != 0 {
		cfg.MaxUploadMB = fc.MaxUploadMB
	}
	setString(&cfg.Database.Driver, fc.Database.Driver)
	setString(&cfg.Database.URL, fc.Database.URL)
	setString(&cfg.Redis.URL, fc.Redis.URL)
	if fc.Redis.PoolSize != 0 {
		cfg.Redis.PoolSize = fc.Redis.PoolSize
	}
	setString(&cfg.Session.CookieName, fc.Session.CookieName)
	if fc.Session.CookieSecure != nil {
		cfg.Session.CookieSecure = *fc.Session.CookieSecure
	}
	setString(&cfg.Token.Issuer, fc.Token.Issuer)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	if len(fc.Audit.Brokers) > 0 {
		cfg.Audit.Brokers = fc.Audit.Brokers
	}
	if len(fc.TrustedProxies) > 0 {
		cfg.TrustedProxies = fc.TrustedProxies
	}
	setString(&cfg.Audit.Topic, fc.Audit.Topic)
	if fc.RateLimit.Posts != nil {
		cfg.RateLimit.Posts = *fc.RateLimit.Posts
	}

	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.ShutdownGrace, &cfg.ShutdownGrace, "shutdown_grace"},
		{fc.Session.TTL, &cfg.Session.TTL, "session.ttl"},
		{fc.Token.TTL, &cfg.Token.TTL, "token.ttl"},
		{fc.RateLimit.Window, &cfg.RateLimit.Window, "rate_limit.window"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *Server) error {
	setString(&cfg.Addr, os.Getenv("FORMVAULT_ADDR"))
	setString(&cfg.SecretKey, os.Getenv("SECRET_KEY"))
	setString(&cfg.Database.Driver, os.Getenv("DATABASE_DRIVER"))
	setString(&cfg.Database.URL, os.Getenv("DATABASE_URL"))
	setString(&cfg.Redis.URL, os.Getenv("REDIS_URL"))
	setString(&cfg.Session.CookieName, os.Getenv("SESSION_COOKIE_NAME"))
	setString(&cfg.Token.Issuer, os.Getenv("TOKEN_ISSUER"))
	setString(&cfg.Log.Level, strings.ToLower(os.Getenv("LOG_LEVEL")))
	setString(&cfg.Log.Format, strings.ToLower(os.Getenv("LOG_FORMAT")))
	setString(&cfg.Audit.Topic, os.Getenv("AUDIT_TOPIC"))
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Audit.Brokers = pstrings.SplitList(brokers, ",")
	}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = pstrings.SplitList(proxies, ",")
	}

	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
		}
		cfg.MaxUploadMB = n
	}
	if v := os.Getenv("RATE_LIMIT_POSTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RATE_LIMIT_POSTS: %w", err)
		}
		cfg.RateLimit.Posts = n
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_POOL_SIZE: %w", err)
		}
		cfg.Redis.PoolSize = n
	}
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SESSION_COOKIE_SECURE: %w", err)
		}
		cfg.Session.CookieSecure = b
	}

	durations := map[string]*time.Duration{
		"SESSION_TTL":       &cfg.Session.TTL,
		"TOKEN_TTL":         &cfg.Token.TTL,
		"SHUTDOWN_GRACE":    &cfg.ShutdownGrace,
		"RATE_LIMIT_WINDOW": &cfg.RateLimit.Window,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

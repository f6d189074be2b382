package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Upstream      UpstreamConfig      `mapstructure:"upstream" validate:"required"`
	Session       SessionConfig       `mapstructure:"session"`
	List          ListConfig          `mapstructure:"list"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type SecurityConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl" validate:"required,min=1m"`
}

// UpstreamConfig points at the REST backend that owns the panel's data.
type UpstreamConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// SessionStore names a session repository backend.
type SessionStore string

const (
	SessionStoreMemory   SessionStore = "memory"
	SessionStorePostgres SessionStore = "postgres"
	SessionStoreRedis    SessionStore = "redis"
)

type SessionConfig struct {
	Store SessionStore `mapstructure:"store" validate:"oneof=memory postgres redis"`
	// SweepInterval is how often forms and views of lapsed sessions are released.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ListConfig struct {
	DebounceWindow  time.Duration `mapstructure:"debounce_window"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Env    string `mapstructure:"env"`
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultDebounceWindow  = 400 * time.Millisecond
	DefaultCacheTTL        = 5 * time.Minute
	DefaultPageSize        = 10
	DefaultFetchTimeout    = 15 * time.Second
	DefaultUpstreamTimeout = 15 * time.Second
	DefaultSweepInterval   = time.Minute
)

// ApplyDefaults fills zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Session.Store == "" {
		c.Session.Store = SessionStoreMemory
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = DefaultSweepInterval
	}
	if c.Security.SessionTokenTTL == 0 {
		c.Security.SessionTokenTTL = 12 * time.Hour
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.List.DebounceWindow == 0 {
		c.List.DebounceWindow = DefaultDebounceWindow
	}
	if c.List.CacheTTL == 0 {
		c.List.CacheTTL = DefaultCacheTTL
	}
	if c.List.DefaultPageSize == 0 {
		c.List.DefaultPageSize = DefaultPageSize
	}
	if c.List.FetchTimeout == 0 {
		c.List.FetchTimeout = DefaultFetchTimeout
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "panel:session:"
	}
}

// ----------------- ENV -----------------

// LoadConfigFromEnv builds the configuration from plain environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Prefix: getEnv("REDIS_PREFIX", "panel:session:"),
		},
		Security: SecurityConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			SessionTokenTTL: getEnvAsDuration("SESSION_TOKEN_TTL", 12*time.Hour),
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", ""),
			Timeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
			RetryCount: getEnvAsInt("UPSTREAM_RETRY_COUNT", 0),
		},
		Session: SessionConfig{
			Store:         SessionStore(getEnv("SESSION_STORE", string(SessionStoreMemory))),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", DefaultSweepInterval),
		},
		List: ListConfig{
			DebounceWindow:  getEnvAsDuration("LIST_DEBOUNCE_WINDOW", DefaultDebounceWindow),
			CacheTTL:        getEnvAsDuration("LIST_CACHE_TTL", DefaultCacheTTL),
			DefaultPageSize: getEnvAsInt("LIST_DEFAULT_PAGE_SIZE", DefaultPageSize),
			FetchTimeout:    getEnvAsDuration("LIST_FETCH_TIMEOUT", DefaultFetchTimeout),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Env:    getEnv("APP_ENV", "production"),
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Upstream.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("upstream config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	switch c.Session.Store {
	case SessionStorePostgres:
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("database config: %v", err))
		}
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, "redis config: url is required when session store is redis")
		}
	}

	if c.List.DefaultPageSize < 0 {
		errs = append(errs, "list config: default_page_size cannot be negative")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters")
	}
	return nil
}

func (c *UpstreamConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	if c.RetryCount < 0 {
		return errors.New("retry_count cannot be negative")
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if c.SweepInterval <= 0 {
		return errors.New("sweep_interval must be positive")
	}
	switch c.Store {
	case SessionStoreMemory, SessionStorePostgres, SessionStoreRedis:
		return nil
	default:
		return fmt.Errorf("unknown session store %q", c.Store)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for both binaries.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	TicketStore  TicketStoreConfig
	Graph        GraphConfig
	Upload       UploadConfig
	Intake       IntakeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockTTLSec int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ServiceSubject        string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// TicketStoreConfig points the helpdesk at the primary ticket store.
type TicketStoreConfig struct {
	BaseURL              string
	ClientTimeoutSeconds int
}

// GraphConfig addresses the SharePoint list used as secondary system of record.
type GraphConfig struct {
	BaseURL              string
	SharePointSiteURL    string
	SiteID               string
	ListID               string
	ListTitle            string
	TenantID             string
	ClientID             string
	ClientSecret         string
	AccessToken          string
	ClientTimeoutSeconds int
}

// UploadConfig tunes the fallback attachment transport.
type UploadConfig struct {
	InitialDelayMillis int
	MaxDelayMillis     int
	Multiplier         float64
}

// IntakeConfig tunes conversation sessions.
type IntakeConfig struct {
	CatalogPath       string
	SessionTTLMinutes int
	CacheMaxMB        int
	MaxSessions       int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	multiplier, err := strconv.ParseFloat(getEnv("UPLOAD_RETRY_MULTIPLIER", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_RETRY_MULTIPLIER: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 0),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			LockTTLSec: getEnvAsInt("REDIS_RESOLUTION_LOCK_TTL_SECONDS", 120),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ServiceSubject:        getEnv("AUTH_SERVICE_SUBJECT", "helpdesk"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		TicketStore: TicketStoreConfig{
			BaseURL:              strings.TrimRight(getEnv("TICKET_STORE_URL", "http://127.0.0.1:8081"), "/"),
			ClientTimeoutSeconds: getEnvAsInt("HTTP_CLIENT_TIMEOUT_SECONDS", 30),
		},
		Graph: GraphConfig{
			BaseURL:              strings.TrimRight(getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"), "/"),
			SharePointSiteURL:    strings.TrimRight(os.Getenv("SHAREPOINT_SITE_URL"), "/"),
			SiteID:               os.Getenv("GRAPH_SITE_ID"),
			ListID:               os.Getenv("GRAPH_LIST_ID"),
			ListTitle:            getEnv("SHAREPOINT_LIST_TITLE", "Helpdesk"),
			TenantID:             os.Getenv("GRAPH_TENANT_ID"),
			ClientID:             os.Getenv("GRAPH_CLIENT_ID"),
			ClientSecret:         os.Getenv("GRAPH_CLIENT_SECRET"),
			AccessToken:          os.Getenv("GRAPH_ACCESS_TOKEN"),
			ClientTimeoutSeconds: getEnvAsInt("HTTP_CLIENT_TIMEOUT_SECONDS", 30),
		},
		Upload: UploadConfig{
			InitialDelayMillis: getEnvAsInt("UPLOAD_RETRY_INITIAL_DELAY_MS", 1500),
			MaxDelayMillis:     getEnvAsInt("UPLOAD_RETRY_MAX_DELAY_MS", 6000),
			Multiplier:         multiplier,
		},
		Intake: IntakeConfig{
			CatalogPath:       os.Getenv("INTAKE_CATALOG_PATH"),
			SessionTTLMinutes: getEnvAsInt("INTAKE_SESSION_TTL_MINUTES", 120),
			CacheMaxMB:        getEnvAsInt("INTAKE_CACHE_MAX_MB", 512),
			MaxSessions:       getEnvAsInt("INTAKE_MAX_SESSIONS", 10000),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ClientTimeout is the transport timeout for outbound store calls.
func (t TicketStoreConfig) ClientTimeout() time.Duration {
	return seconds(t.ClientTimeoutSeconds)
}

// ClientTimeout is the transport timeout for outbound Graph calls.
func (g GraphConfig) ClientTimeout() time.Duration {
	return seconds(g.ClientTimeoutSeconds)
}

// UsesClientCredentials reports whether a token should be fetched from the identity provider.
func (g GraphConfig) UsesClientCredentials() bool {
	return g.TenantID != "" && g.ClientID != "" && g.ClientSecret != ""
}

// InitialDelay is the wait before the first fallback attempt.
func (u UploadConfig) InitialDelay() time.Duration {
	return time.Duration(u.InitialDelayMillis) * time.Millisecond
}

// MaxDelay is the delay ceiling of the fallback retry policy.
func (u UploadConfig) MaxDelay() time.Duration {
	return time.Duration(u.MaxDelayMillis) * time.Millisecond
}

// SessionTTL bounds how long an idle conversation survives.
func (i IntakeConfig) SessionTTL() time.Duration {
	if i.SessionTTLMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(i.SessionTTLMinutes) * time.Minute
}

// LockTTL bounds how long a resolution lock may be held.
func (r RedisConfig) LockTTL() time.Duration {
	return seconds(r.LockTTLSec)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreSQLite   = "sqlite"
	SessionStoreMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Signaling SignalingConfig
	Sessions  SessionsConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	WebRTC    WebRTCConfig
	AWS       AWSConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	LogLevel           string
}

// SignalingConfig holds the WebSocket gateway settings.
type SignalingConfig struct {
	Path         string
	SendBuffer   int           // outbound frames queued per connection before dropping
	ReadLimit    int64         // max inbound frame size in bytes
	PingInterval time.Duration // 0 disables heartbeats
}

// SessionsConfig selects the recording-session store.
type SessionsConfig struct {
	Store           string // postgres | sqlite | memory
	SQLitePath      string
	FinalizeTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings for the REST API.
type JWTConfig struct {
	Enabled     bool
	Secret      string
	ExpireHours int
}

// WebRTCConfig holds STUN/TURN servers handed to clients.
type WebRTCConfig struct {
	ICEUrls        []string
	TURNUsername   string
	TURNCredential string
}

// AWSConfig holds AWS credentials and the session archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// ReconcileConfig drives the worker that completes orphaned sessions.
type ReconcileConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Signaling: SignalingConfig{
			Path:         getEnv("SIGNALING_PATH", "/ws/telemedicine"),
			SendBuffer:   getEnvInt("SIGNALING_SEND_BUFFER", 256),
			ReadLimit:    int64(getEnvInt("SIGNALING_READ_LIMIT", 1<<20)),
			PingInterval: getEnvDuration("SIGNALING_PING_INTERVAL", 0),
		},
		Sessions: SessionsConfig{
			Store:           strings.ToLower(getEnv("SESSION_STORE", SessionStorePostgres)),
			SQLitePath:      getEnv("SQLITE_PATH", "telehealth.db"),
			FinalizeTimeout: getEnvDuration("SESSION_FINALIZE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "telehealth"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Enabled:     getEnvBool("API_AUTH_ENABLED", false),
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		WebRTC: WebRTCConfig{
			ICEUrls:        splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
			TURNUsername:   getEnv("WEBRTC_TURN_USERNAME", ""),
			TURNCredential: getEnv("WEBRTC_TURN_CREDENTIAL", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", "telehealth-session-archive"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Reconcile: ReconcileConfig{
			Interval:   getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),
			StaleAfter: getEnvDuration("RECONCILE_STALE_AFTER", 12*time.Hour),
		},
	}

	switch cfg.Sessions.Store {
	case SessionStorePostgres, SessionStoreSQLite, SessionStoreMemory:
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.Sessions.Store)
	}
	if cfg.Signaling.SendBuffer <= 0 {
		return nil, fmt.Errorf("SIGNALING_SEND_BUFFER must be positive, got %d", cfg.Signaling.SendBuffer)
	}
	if !strings.HasPrefix(cfg.Signaling.Path, "/") {
		cfg.Signaling.Path = "/" + cfg.Signaling.Path
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

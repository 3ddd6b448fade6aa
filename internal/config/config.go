package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Firebase  FirebaseConfig
	Notify    NotifyConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Env         string
	Port        string
	LogLevel    string
	StoreDriver string // postgres | memory
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=" + d.TimeZone
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// IdentityTTL bounds how long resolved display names stay cached
	IdentityTTL time.Duration
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

type FirebaseConfig struct {
	CredentialsFile string
}

type NotifyConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type ReconcileConfig struct {
	Enabled   bool
	Cron      string
	BatchSize int
	Grace     time.Duration
}

// RateLimitConfig bounds how fast one user may send messages
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:         getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "talkcore"),
			Password: getEnv("DB_PASSWORD", "talkcore"),
			Name:     getEnv("DB_NAME", "talkcore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			IdentityTTL: getEnvDuration("IDENTITY_CACHE_TTL", 10*time.Minute),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Notify: NotifyConfig{
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 1024),
			Workers:   getEnvInt("NOTIFY_WORKERS", 4),
			Timeout:   getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Reconcile: ReconcileConfig{
			Enabled:   getEnv("RECONCILE_ENABLED", "true") == "true",
			Cron:      getEnv("RECONCILE_CRON", "*/5 * * * *"),
			BatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 200),
			Grace:     getEnvDuration("RECONCILE_GRACE", time.Minute),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("SEND_RATE_RPS", 5),
			Burst: getEnvInt("SEND_RATE_BURST", 10),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

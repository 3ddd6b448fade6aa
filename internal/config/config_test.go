package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.App.StoreDriver)
	assert.Equal(t, 4, cfg.Notify.Workers)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, "*/5 * * * *", cfg.Reconcile.Cron)
	assert.True(t, cfg.Reconcile.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "90m")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("RECONCILE_ENABLED", "false")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.JWT.Expiry)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.Origins)
	assert.False(t, cfg.Reconcile.Enabled)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestDBConnectionStrings(t *testing.T) {
	db := DBConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable", TimeZone: "UTC"}

	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", db.URL())
	assert.Contains(t, db.DSN(), "dbname=n")
	assert.Contains(t, db.DSN(), "TimeZone=UTC")
}

func TestRateLimitDefaults(t *testing.T) {
	t.Setenv("SEND_RATE_RPS", "0.5")

	cfg := Load()

	assert.Equal(t, 0.5, cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, time.Minute, cfg.Reconcile.Grace)
}

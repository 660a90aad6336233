package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEnv_Overlay(t *testing.T) {
	t.Setenv("ADDRESS", "127.0.0.1:9999")
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("SECRET_KEY", "env_secret")
	t.Setenv("ACCESS_TOKEN_VALIDITY", "45m")
	t.Setenv("SYNC_TIMEOUT", "5s")
	t.Setenv("TOMBSTONE_RETENTION_REVISIONS", "7")
	t.Setenv("TOKEN_RATE_LIMIT_RPS", "0.5")
	t.Setenv("TOKEN_RATE_LIMIT_BURST", "3")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "127.0.0.1:9999", cfg.EndpointAddrHTTP)
	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, "env_secret", cfg.SecretKey)
	assert.Equal(t, 45*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 5*time.Second, cfg.SyncTimeout)
	assert.Equal(t, int64(7), cfg.TombstoneRetentionRevisions)
	assert.Equal(t, 0.5, cfg.TokenRateLimitRPS)
	assert.Equal(t, 3, cfg.TokenRateLimitBurst)
}

func TestParseEnv_UnsetLeavesDefaults(t *testing.T) {
	t.Setenv("ADDRESS", "")
	t.Setenv("SYNC_TIMEOUT", "not-a-duration")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)
	assert.Equal(t, 30*time.Second, cfg.SyncTimeout)
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from the environment, after loading an
// optional .env file from the working directory. Unset variables leave the
// current values untouched; unparsable numeric values are ignored.
func parseEnv(config *Config) {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	if v := os.Getenv("ADDRESS"); v != "" {
		config.EndpointAddrHTTP = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		config.SecretKey = v
	}
	if v := os.Getenv("ACCESS_TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.AccessTokenValidityDuration = d
		}
	}
	if v := os.Getenv("SYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.SyncTimeout = d
		}
	}
	if v := os.Getenv("TOMBSTONE_RETENTION_REVISIONS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.TombstoneRetentionRevisions = n
		}
	}
	if v := os.Getenv("TOKEN_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.TokenRateLimitRPS = f
		}
	}
	if v := os.Getenv("TOKEN_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.TokenRateLimitBurst = n
		}
	}
	if v := os.Getenv("S3_ROOT_USER"); v != "" {
		config.S3RootUser = v
	}
	if v := os.Getenv("S3_ROOT_PASSWORD"); v != "" {
		config.S3RootPassword = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.S3Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		config.S3Region = v
	}
	if v := os.Getenv("S3_BASE_ENDPOINT"); v != "" {
		config.S3BaseEndpoint = v
	}
}

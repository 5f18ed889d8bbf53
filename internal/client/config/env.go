package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvFileVar names the variable that overrides the default ".env" path.
const EnvFileVar = "NW_ENV_FILE"

type envLookup func(key string) (string, bool)

// lookupEnv consults the process environment first and then the dotenv
// file, so exported variables always beat file entries.
func lookupEnv(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := dotenv()[key]
	return v, ok
}

var dotenv = func() map[string]string {
	path := os.Getenv(EnvFileVar)
	if path == "" {
		path = ".env"
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil
	}
	return m
}

// parseEnv overlays cfg with environment variables. NW_* names win over
// the EXPO_PUBLIC_* names kept for existing deployments.
func parseEnv(cfg *Config, env envLookup) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := env(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.BackendURL, "NW_BACKEND_URL", "EXPO_PUBLIC_SUPABASE_URL")
	str(&cfg.BackendKey, "NW_BACKEND_KEY", "EXPO_PUBLIC_SUPABASE_KEY")
	str(&cfg.SessionDBPath, "NW_SESSION_DB")
	str(&cfg.LogBackend, "NW_LOG_BACKEND")
	str(&cfg.LogLevel, "NW_LOG_LEVEL")
	str(&cfg.Storage.Endpoint, "NW_S3_ENDPOINT")
	str(&cfg.Storage.Region, "NW_S3_REGION")
	str(&cfg.Storage.Bucket, "NW_S3_BUCKET")
	str(&cfg.Storage.AccessKeyID, "NW_S3_ACCESS_KEY_ID")
	str(&cfg.Storage.SecretAccessKey, "NW_S3_SECRET_ACCESS_KEY")

	if v, ok := env("NW_AUTH_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AuthTimeout = d
		}
	}
	if v, ok := env("NW_PROFILE_FETCH_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProfileFetchAttempts = n
		}
	}
}

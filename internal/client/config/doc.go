// Package config loads runtime configuration for the neighborwatch client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults), including the
//     development backend URL and public key.
//  2. Optional JSON file selected with -c/-config or $NW_CONFIG.
//  3. Environment variables, with a ".env" file (or $NW_ENV_FILE) read
//     through godotenv as a fallback for unset variables.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-u string   backend base URL
//	-k string   backend public API key
//	-t int      auth check timeout (milliseconds)
//	-d string   session database path
//
// Environment
//
//	NW_BACKEND_URL, EXPO_PUBLIC_SUPABASE_URL
//	NW_BACKEND_KEY, EXPO_PUBLIC_SUPABASE_KEY
//	NW_SESSION_DB, NW_LOG_BACKEND, NW_LOG_LEVEL
//	NW_AUTH_TIMEOUT ("8s"), NW_PROFILE_FETCH_ATTEMPTS
//	NW_S3_ENDPOINT, NW_S3_REGION, NW_S3_BUCKET,
//	NW_S3_ACCESS_KEY_ID, NW_S3_SECRET_ACCESS_KEY
//
// # JSON schema
//
// Durations use timex.Duration and accept "8s" or integer nanoseconds:
//
//	{
//	  "backend_url": "https://project.supabase.co",
//	  "backend_key": "anon-key",
//	  "auth_timeout": "8s",
//	  "profile_fetch_attempts": 3,
//	  "profile_retry_delay": "100ms",
//	  "session_db_path": "neighborwatch.db",
//	  "log_backend": "logrus",
//	  "log_level": "debug",
//	  "storage": {"bucket": "reports", "region": "eu-central-1", "presign_ttl": "15m"}
//	}
package config

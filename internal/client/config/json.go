package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/neighborwatch/internal/flagx"
	"github.com/dmitrijs2005/neighborwatch/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer and zero
// values leave the corresponding Config field untouched.
type JsonConfig struct {
	BackendURL           string         `json:"backend_url"`
	BackendKey           string         `json:"backend_key"`
	AuthTimeout          timex.Duration `json:"auth_timeout"`
	ProfileFetchAttempts int            `json:"profile_fetch_attempts"`
	ProfileRetryDelay    timex.Duration `json:"profile_retry_delay"`
	RealtimeHeartbeat    timex.Duration `json:"realtime_heartbeat"`
	SessionDBPath        string         `json:"session_db_path"`
	LogBackend           string         `json:"log_backend"`
	LogLevel             string         `json:"log_level"`
	Storage              *struct {
		Endpoint        string         `json:"endpoint"`
		Region          string         `json:"region"`
		Bucket          string         `json:"bucket"`
		AccessKeyID     string         `json:"access_key_id"`
		SecretAccessKey string         `json:"secret_access_key"`
		PresignTTL      timex.Duration `json:"presign_ttl"`
	} `json:"storage"`
}

// parseJson overlays cfg with the file named by -c/-config (or $NW_CONFIG).
// It panics on read or decode errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.BackendKey, jc.BackendKey)
	setString(&cfg.SessionDBPath, jc.SessionDBPath)
	setString(&cfg.LogBackend, jc.LogBackend)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.AuthTimeout.Duration > 0 {
		cfg.AuthTimeout = jc.AuthTimeout.Duration
	}
	if jc.ProfileFetchAttempts > 0 {
		cfg.ProfileFetchAttempts = jc.ProfileFetchAttempts
	}
	if jc.ProfileRetryDelay.Duration > 0 {
		cfg.ProfileRetryDelay = jc.ProfileRetryDelay.Duration
	}
	if jc.RealtimeHeartbeat.Duration > 0 {
		cfg.RealtimeHeartbeat = jc.RealtimeHeartbeat.Duration
	}

	if s := jc.Storage; s != nil {
		setString(&cfg.Storage.Endpoint, s.Endpoint)
		setString(&cfg.Storage.Region, s.Region)
		setString(&cfg.Storage.Bucket, s.Bucket)
		setString(&cfg.Storage.AccessKeyID, s.AccessKeyID)
		setString(&cfg.Storage.SecretAccessKey, s.SecretAccessKey)
		if s.PresignTTL.Duration > 0 {
			cfg.Storage.PresignTTL = s.PresignTTL.Duration
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

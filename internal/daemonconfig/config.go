// Package daemonconfig reads the daemon's runtime tuning knobs from the
// environment, parsing-or-defaulting the way the teacher's rate limit
// config does — never panicking on a malformed value, just falling back.
package daemonconfig

import (
	"os"
	"strconv"
	"time"
)

// Config holds the daemon's session lifecycle and ops-surface settings.
type Config struct {
	// SessionIdleTimeout is how long a session may sit unused before the
	// reaper evicts it. Zero disables idle eviction.
	SessionIdleTimeout time.Duration

	// SessionMaxLifetime bounds how long a session may live regardless
	// of activity. Zero disables lifetime eviction.
	SessionMaxLifetime time.Duration

	// ReapInterval is how often the reaper sweeps for expired sessions.
	ReapInterval time.Duration

	// CatalogPath is the YAML file listing available environments.
	CatalogPath string

	// OpsAddr is the listen address for the unauthenticated /healthz and
	// /metrics endpoints.
	OpsAddr string
}

const (
	defaultSessionIdleTimeout = 300 * time.Second
	defaultSessionMaxLifetime = 3600 * time.Second
	defaultReapInterval       = 60 * time.Second
	defaultOpsAddr            = ":9090"
)

// FromEnv reads Config from the process environment, falling back to
// spec-mandated defaults for anything unset or malformed.
func FromEnv() Config {
	return Config{
		SessionIdleTimeout: envSeconds("SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout),
		SessionMaxLifetime: envSeconds("SESSION_MAX_LIFETIME", defaultSessionMaxLifetime),
		ReapInterval:       envSeconds("SESSION_REAP_INTERVAL", defaultReapInterval),
		CatalogPath:        envString("SANDBOXD_CATALOG", "catalog.yaml"),
		OpsAddr:            envString("SANDBOXD_OPS_ADDR", defaultOpsAddr),
	}
}

func envSeconds(name string, fallback time.Duration) time.Duration {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(val)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func envString(name, fallback string) string {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	return val
}

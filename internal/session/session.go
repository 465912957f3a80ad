// Package session implements the daemon side of session lifecycle (spec
// components C4 and C5): a Session owns one live interpreter process and
// serializes calls to it; a Manager owns the map of live sessions and
// their expiry.
package session

import (
	"sync"
	"time"

	"github.com/szaher/sandboxd/internal/transport"
	"github.com/szaher/sandboxd/internal/wire"
)

// Environment is the subset of a catalog entry a session needs to spawn
// its interpreter process. It is declared here, rather than imported from
// internal/catalog, so this package depends only on the shape it actually
// uses.
type Environment struct {
	Name            string
	InterpreterType string
	SessionExec     []string
}

// Session is one live interpreter process bound to one environment for
// its whole life. All transport I/O happens under mu, so a Session is
// single-exchange regardless of how many goroutines call Execute
// concurrently for the same id (spec.md §3, §5).
type Session struct {
	id              string
	envName         string
	interpreterType string
	createdAt       time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	transport  *transport.Transport
	requestSeq uint64
}

func newSession(id, envName, interpreterType string, tr *transport.Transport) *Session {
	now := time.Now()
	return &Session{
		id:              id,
		envName:         envName,
		interpreterType: interpreterType,
		createdAt:       now,
		lastUsedAt:      now,
		transport:       tr,
	}
}

// EnvName reports the environment this session is bound to.
func (s *Session) EnvName() string { return s.envName }

// Execute runs code against the session's interpreter and waits for the
// single response frame that answers it. A non-nil error here is always
// one of the transport's fatal error types; the caller (Manager) is
// responsible for evicting the session when that happens.
func (s *Session) Execute(code string) (stdout, stderr string, exitCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestSeq++
	resp, err := s.transport.RoundTrip(wire.Request{ID: s.requestSeq, Code: code})
	if err != nil {
		return "", "", 0, err
	}
	s.lastUsedAt = time.Now()
	return resp.Stdout, resp.Stderr, resp.ExitCode, nil
}

func (s *Session) idleSince(now time.Time, idleTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return idleTimeout > 0 && now.Sub(s.lastUsedAt) > idleTimeout
}

func (s *Session) olderThan(now time.Time, maxLifetime time.Duration) bool {
	return maxLifetime > 0 && now.Sub(s.createdAt) > maxLifetime
}

// Close terminates the session's interpreter process. It does not take
// mu: a session being reaped or shut down may still have an Execute call
// in flight, and that call should fail on its own rather than block the
// reaper on a session lock (spec.md §4.4's "reaper never holds session
// lock while terminating").
func (s *Session) Close() error {
	return s.transport.Shutdown()
}

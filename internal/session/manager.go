package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/szaher/sandboxd/internal/telemetry"
	"github.com/szaher/sandboxd/internal/transport"
)

// Manager owns the map of live sessions, keyed by the caller-supplied
// session id, behind a read-mostly RWMutex (spec.md §9's "owned manager
// behind a lock, no singletons"). It never invents session ids itself —
// those come from the MCP caller.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	resolveEnv func(name string) (Environment, bool)

	idleTimeout time.Duration
	maxLifetime time.Duration

	group  singleflight.Group
	logger *slog.Logger

	cron    *cron.Cron
	metrics *telemetry.Metrics
}

// NewManager builds a Manager. resolveEnv looks up the environment a new
// session should spawn against; the dispatcher is expected to have
// already validated the environment name exists before calling Execute,
// so a resolveEnv miss here is treated as an infra failure, not a
// user-facing UnknownEnv.
func NewManager(resolveEnv func(name string) (Environment, bool), idleTimeout, maxLifetime time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		resolveEnv:  resolveEnv,
		idleTimeout: idleTimeout,
		maxLifetime: maxLifetime,
		logger:      logger,
		metrics:     metrics,
	}
}

// StartReaper schedules periodic expiry sweeps at the given cadence. It
// must be called at most once.
func (m *Manager) StartReaper(interval time.Duration) error {
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", interval), m.reap); err != nil {
		return fmt.Errorf("session manager: schedule reaper: %w", err)
	}
	m.cron.Start()
	return nil
}

// Execute runs code against the named session, creating it against
// envName if it doesn't exist yet. If it exists under a different
// environment, it returns *EnvMismatchError without disturbing the
// existing session (spec.md §8's boundary behavior).
func (m *Manager) Execute(ctx context.Context, id, envName, code string) (stdout, stderr string, exitCode int, err error) {
	sess, err := m.getOrCreate(ctx, id, envName)
	if err != nil {
		return "", "", 0, err
	}

	stdout, stderr, exitCode, err = sess.Execute(code)
	if err != nil {
		if isFatal(err) {
			m.remove(id)
		}
		return "", "", 0, err
	}
	return stdout, stderr, exitCode, nil
}

func (m *Manager) getOrCreate(ctx context.Context, id, envName string) (*Session, error) {
	m.mu.RLock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.RUnlock()
		if sess.EnvName() != envName {
			return nil, &EnvMismatchError{SessionID: id, Bound: sess.EnvName(), Requested: envName}
		}
		return sess, nil
	}
	m.mu.RUnlock()

	result, err, _ := m.group.Do(id, func() (interface{}, error) {
		m.mu.RLock()
		if sess, ok := m.sessions[id]; ok {
			m.mu.RUnlock()
			return sess, nil
		}
		m.mu.RUnlock()

		env, ok := m.resolveEnv(envName)
		if !ok {
			return nil, &SpawnFailedError{EnvName: envName, Cause: fmt.Errorf("environment %q not found in catalog", envName)}
		}

		tr, err := transport.Spawn(ctx, env.SessionExec[0], env.SessionExec[1:]...)
		if err != nil {
			return nil, &SpawnFailedError{EnvName: envName, Cause: err}
		}

		sess := newSession(id, envName, env.InterpreterType, tr)
		m.mu.Lock()
		m.sessions[id] = sess
		m.mu.Unlock()
		m.metrics.SessionsCreatedTotal.Inc()
		m.metrics.SessionsActive.Inc()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	sess := result.(*Session)
	if sess.EnvName() != envName {
		return nil, &EnvMismatchError{SessionID: id, Bound: sess.EnvName(), Requested: envName}
	}
	return sess, nil
}

func isFatal(err error) bool {
	var closed *transport.TransportClosedError
	var tooLarge *transport.FrameTooLargeError
	var corrupt *transport.ProtocolCorruptionError
	return errors.As(err, &closed) || errors.As(err, &tooLarge) || errors.As(err, &corrupt)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.metrics.SessionsActive.Dec()
	if err := sess.Close(); err != nil {
		m.logger.Warn("session close failed", "session_id", id, "error", err)
	}
}

// reap evicts sessions past their idle timeout or max lifetime. It scans
// under a read lock and removes under a write lock per session, so it
// never holds any lock while a child process is being killed and waited
// on (spec.md §4.4).
func (m *Manager) reap() {
	now := time.Now()

	m.mu.RLock()
	var victims []string
	for id, sess := range m.sessions {
		if sess.idleSince(now, m.idleTimeout) || sess.olderThan(now, m.maxLifetime) {
			victims = append(victims, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range victims {
		m.logger.Info("reaping session", "session_id", id)
		m.remove(id)
		m.metrics.SessionsReapedTotal.Inc()
	}
}

// Shutdown stops the reaper, then removes and closes every remaining
// session. It is safe to call even if StartReaper was never called.
func (m *Manager) Shutdown() error {
	if m.cron != nil {
		m.cron.Stop()
	}

	m.mu.Lock()
	remaining := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for id, sess := range remaining {
		m.metrics.SessionsActive.Dec()
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %s: %w", id, err)
		}
	}
	return firstErr
}

// Count reports the number of live sessions. Used by the ops server's
// /healthz report.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

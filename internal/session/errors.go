package session

import "fmt"

// EnvMismatchError is returned when a call names an existing session but a
// different environment than the one it was created with. Sessions are
// bound to their environment for life (spec.md §3's env_name invariant);
// the message is user-facing and names both environments so the caller can
// self-correct.
type EnvMismatchError struct {
	SessionID string
	Bound     string
	Requested string
}

func (e *EnvMismatchError) Error() string {
	return fmt.Sprintf(
		"Session '%s' is bound to environment '%s', not '%s'.\nUse a different session ID, or omit session for ephemeral execution.",
		e.SessionID, e.Bound, e.Requested,
	)
}

// SpawnFailedError is returned when a new session's interpreter process
// could not be started. The session is never inserted into the manager's
// map on this path.
type SpawnFailedError struct {
	EnvName string
	Cause   error
}

func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("spawn session process for environment %q: %v", e.EnvName, e.Cause)
}

func (e *SpawnFailedError) Unwrap() error { return e.Cause }

// Package transport implements the daemon side of the pipe transport
// (spec component C3): length-prefixed framing over a child agent's stdio,
// exposing a single round-trip operation.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	json "github.com/segmentio/encoding/json"

	"github.com/szaher/sandboxd/internal/wire"
)

// MaxFrameSize is the daemon's configured cap on a single frame, per
// spec.md §4.1's suggested 16 MiB bound — tighter than wire.MaxMessageSize,
// which is only a last-resort safety valve against runaway allocation.
const MaxFrameSize = 16 * 1024 * 1024

// TransportClosedError is returned when the pipe is closed or the child is
// gone — a short read, a broken write, or EOF before a full frame.
type TransportClosedError struct {
	Cause error
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("transport: closed: %v", e.Cause)
}

func (e *TransportClosedError) Unwrap() error { return e.Cause }

// FrameTooLargeError is returned when a received length prefix exceeds the
// configured cap.
type FrameTooLargeError struct {
	Length uint32
	Max    uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("transport: frame too large: %d > %d", e.Length, e.Max)
}

// ProtocolCorruptionError is returned when a frame's body isn't valid JSON
// matching the response schema.
type ProtocolCorruptionError struct {
	Cause error
}

func (e *ProtocolCorruptionError) Error() string {
	return fmt.Sprintf("transport: protocol corruption: %v", e.Cause)
}

func (e *ProtocolCorruptionError) Unwrap() error { return e.Cause }

// Transport owns the writable end of a child's stdin and the readable end
// of its stdout. It is single-exchange: a RoundTrip is one send followed
// by one receive; concurrent round-trips are the caller's responsibility
// to forbid (spec.md §4.1 — enforced by the session's lock, not here).
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	mu     sync.Mutex
	dead   bool
}

// Spawn launches execPath with the given args, wires its stdin/stdout into
// a new Transport, and places it in its own process group so that killing
// it collects any grandchildren (spec.md §3, §9). Creation blocks only
// until the child is spawned and its stdio is wired — it does not wait for
// the interpreter inside to initialize.
func Spawn(ctx context.Context, execPath string, args ...string) (*Transport, error) {
	cmd := exec.CommandContext(ctx, execPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: spawn %s: %w", execPath, err)
	}

	return &Transport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// RoundTrip sends req and waits for exactly one response.
func (t *Transport) RoundTrip(req wire.Request) (wire.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dead {
		return wire.Response{}, &TransportClosedError{Cause: fmt.Errorf("transport already dead")}
	}

	if err := wire.WriteRequest(t.stdin, req); err != nil {
		t.dead = true
		return wire.Response{}, &TransportClosedError{Cause: err}
	}

	payload, err := t.readFrame()
	if err != nil {
		t.dead = true
		return wire.Response{}, err
	}

	var resp wire.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.dead = true
		return wire.Response{}, &ProtocolCorruptionError{Cause: err}
	}

	return resp, nil
}

// IsAlive reports whether the underlying process is still running.
func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dead || t.cmd.Process == nil {
		return false
	}
	return t.cmd.ProcessState == nil
}

// Shutdown kills the child's process group, closes the pipe and waits for
// the child. The kill happens before taking mu, so a RoundTrip blocked on
// its read fails with TransportClosedError instead of holding Shutdown up.
// The child's exit status after that kill is not reported as an error.
func (t *Transport) Shutdown() error {
	if t.cmd.Process != nil {
		_ = syscall.Kill(-t.cmd.Process.Pid, syscall.SIGKILL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dead = true
	_ = t.stdin.Close()
	err := t.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// readFrame reads one length-prefixed frame off stdout, enforcing
// MaxFrameSize before allocating the payload buffer.
func (t *Transport) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.stdout, lenBuf[:]); err != nil {
		return nil, &TransportClosedError{Cause: err}
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, &FrameTooLargeError{Length: length, Max: MaxFrameSize}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.stdout, payload); err != nil {
		return nil, &TransportClosedError{Cause: err}
	}
	return payload, nil
}

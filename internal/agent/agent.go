// Package agent implements the in-sandbox runtime (spec component C1): a
// process launched inside a sandboxed environment that speaks the framed
// JSON protocol on its real stdio and drives exactly one interpreter family,
// fixed at launch, for the lifetime of the session.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/szaher/sandboxd/internal/wire"
)

// Interpreter is implemented once per language family (Python, Bash,
// Node). Execute must be safe to call repeatedly against the same
// persistent interpreter state; Close releases any owned subprocess.
type Interpreter interface {
	Execute(ctx context.Context, code string) (stdout, stderr string, exitCode int, err error)
	Close() error
}

// Agent owns the interpreter and drives the request loop. The interpreter
// is constructed lazily on first use (spec.md §4.2 "lazy initialization"),
// so agent startup never blocks on subprocess spawn.
type Agent struct {
	logger    *slog.Logger
	newInterp func() (Interpreter, error)
	interp    Interpreter
}

// New creates an Agent that will build its interpreter on first request
// using newInterp.
func New(logger *slog.Logger, newInterp func() (Interpreter, error)) *Agent {
	return &Agent{logger: logger, newInterp: newInterp}
}

// ProtocolCorruptionError is returned when a frame cannot be parsed as the
// request schema — a required field is missing, or the payload isn't JSON.
type ProtocolCorruptionError struct {
	Reason string
}

func (e *ProtocolCorruptionError) Error() string {
	return fmt.Sprintf("agent: protocol corruption: %s", e.Reason)
}

// Run enters the request loop: read one framed request from stdin, produce
// one framed response on stdout, until EOF or a fatal parse error.
func (a *Agent) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	defer func() {
		if a.interp != nil {
			_ = a.interp.Close()
		}
	}()

	for {
		payload, err := wire.ReadMessage(stdin)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("agent: read request: %w", err)
		}

		req, err := decodeRequest(payload)
		if err != nil {
			return err
		}

		resp, err := a.handle(ctx, req)
		if err != nil {
			return fmt.Errorf("agent: handle request: %w", err)
		}

		if err := wire.WriteResponse(stdout, resp); err != nil {
			return fmt.Errorf("agent: write response: %w", err)
		}
	}
}

// decodeRequest pulls id and code leniently with gjson: unknown fields are
// ignored by construction, and a missing code field is ProtocolCorruption
// rather than a zero value (spec.md §9's "unknown fields ignored, missing
// required fields are ProtocolCorruption").
func decodeRequest(payload []byte) (wire.Request, error) {
	if !gjson.ValidBytes(payload) {
		return wire.Request{}, &ProtocolCorruptionError{Reason: "payload is not valid JSON"}
	}

	parsed := gjson.ParseBytes(payload)
	codeResult := parsed.Get("code")
	if !codeResult.Exists() {
		return wire.Request{}, &ProtocolCorruptionError{Reason: "missing required field \"code\""}
	}

	var id any
	if idResult := parsed.Get("id"); idResult.Exists() {
		id = idResult.Value()
	}

	return wire.Request{ID: id, Code: codeResult.String()}, nil
}

func (a *Agent) handle(ctx context.Context, req wire.Request) (wire.Response, error) {
	if a.interp == nil {
		interp, err := a.newInterp()
		if err != nil {
			return wire.Response{}, fmt.Errorf("construct interpreter: %w", err)
		}
		a.interp = interp
	}

	stdout, stderr, exitCode, err := a.interp.Execute(ctx, req.Code)
	if err != nil {
		return wire.Response{}, err
	}

	return wire.Response{
		ID:       req.ID,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}, nil
}

// Package dispatcher implements the tool dispatcher (spec component C6):
// the single MCP "run" tool, routing each call to either the ephemeral
// executor or the session manager depending on whether the caller
// supplied a session id.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/szaher/sandboxd/internal/catalog"
	"github.com/szaher/sandboxd/internal/ephemeral"
	"github.com/szaher/sandboxd/internal/session"
	"github.com/szaher/sandboxd/internal/telemetry"
)

// RunArgs is the run tool's input schema.
type RunArgs struct {
	Env     string `json:"env" jsonschema:"the environment to run code against"`
	Code    string `json:"code" jsonschema:"the code to execute"`
	Session string `json:"session,omitempty" jsonschema:"optional session id binding this call to a persistent interpreter"`
}

// RunResult is the run tool's structured output, alongside the text
// content every MCP result also carries.
type RunResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// UnknownEnvError is returned when the caller names an environment the
// catalog doesn't have. The message lists what is available so the
// caller can self-correct.
type UnknownEnvError struct {
	Env       string
	Available []string
}

func (e *UnknownEnvError) Error() string {
	return fmt.Sprintf("Unknown environment: '%s'. Available: %s", e.Env, strings.Join(e.Available, ", "))
}

// Dispatcher owns the catalog, the session manager, and the metrics
// needed to answer run-tool calls.
type Dispatcher struct {
	catalog  *catalog.Catalog
	sessions *session.Manager
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	logger   *slog.Logger
}

// New builds a Dispatcher. Spans are exported as debug-level log lines,
// since the daemon has no tracing backend wired in — the exporter is a
// seam for one, not a requirement to have one.
func New(cat *catalog.Catalog, sessions *session.Manager, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	tracer := telemetry.NewTracer(telemetry.SpanExporterFunc(func(span telemetry.Span) {
		logger.Debug("run span", "operation", span.Operation, "duration_ms", span.Duration.Milliseconds(), "status", span.Status, "tags", span.Tags)
	}))
	return &Dispatcher{catalog: cat, sessions: sessions, metrics: metrics, tracer: tracer, logger: logger}
}

// Register adds the run tool to srv.
func (d *Dispatcher) Register(srv *mcpsdk.Server) {
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "run",
		Description: "Execute code in a named sandboxed environment, optionally bound to a persistent session.",
	}, d.handleRun)
}

func (d *Dispatcher) handleRun(ctx context.Context, _ *mcpsdk.CallToolRequest, args RunArgs) (*mcpsdk.CallToolResult, RunResult, error) {
	start := time.Now()

	env, ok := d.catalog.Lookup(args.Env)
	if !ok {
		unknownErr := &UnknownEnvError{Env: args.Env, Available: d.catalog.Names()}
		return errorResult(unknownErr.Error()), RunResult{}, nil
	}

	mode := "ephemeral"
	if args.Session != "" {
		mode = "session"
	}
	logger := telemetry.RequestLogger(d.logger, ctx, args.Env)

	ctx, span := d.tracer.StartSpan(ctx, "run."+mode, telemetry.ExecutionTags(args.Env, args.Session, env.InterpreterType))

	var stdout, stderr string
	var exitCode int
	var runErr error

	if args.Session == "" {
		result, err := ephemeral.Run(ctx, env.EphemeralExec, args.Code, env.TimeoutSeconds)
		if err != nil {
			runErr = err
		} else {
			stdout, stderr, exitCode = result.Stdout, result.Stderr, result.ExitCode
		}
	} else {
		stdout, stderr, exitCode, runErr = d.sessions.Execute(ctx, args.Session, args.Env, args.Code)
	}

	status := "ok"
	if runErr != nil || exitCode != 0 {
		status = "error"
	}
	d.tracer.EndSpan(span, status)
	d.metrics.ObserveExecution(args.Env, mode, status, time.Since(start))

	if runErr != nil {
		logger.Warn("run failed", "mode", mode, "error", runErr)
		return errorResult(runErr.Error()), RunResult{}, nil
	}

	output := combineOutput(stdout, stderr)
	result := RunResult{Output: output, ExitCode: exitCode}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: output}},
		IsError: exitCode != 0,
	}, result, nil
}

// combineOutput joins stdout and stderr with a clear separator when both
// are present, so a single text block never silently drops one of them
// (spec.md §4.5's result formatting rule).
func combineOutput(stdout, stderr string) string {
	switch {
	case stdout != "" && stderr != "":
		return stdout + "\n--- stderr ---\n" + stderr
	case stderr != "":
		return stderr
	default:
		return stdout
	}
}

func errorResult(message string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: message}},
		IsError: true,
	}
}

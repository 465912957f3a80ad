package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// BashInterpreter drives a persistent `bash` subprocess in its own process
// group, using the nonce-based marker protocol (spec.md §4.2.1/§4.2.3) to
// separate user output from the control channel.
type BashInterpreter struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// NewBashInterpreter spawns the persistent shell. -i is deliberately
// omitted: interactive mode would emit PS1 prompts and command echoes on
// stderr, which the marker scan in scanUntilMarker would mistake for the
// real BEGIN_STDERR/END_STDERR lines. The shell stays alive on its stdin
// pipe without it.
func NewBashInterpreter() (Interpreter, error) {
	cmd := exec.Command("bash", "--norc", "--noprofile")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bash: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bash: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("bash: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bash: start: %w", err)
	}

	return &BashInterpreter{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

// Execute writes the user's code followed by marker-emitting commands to
// the shell's stdin, then drains stdout/stderr until both end markers are
// observed, per spec.md §4.2.3.
func (b *BashInterpreter) Execute(_ context.Context, code string) (string, string, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce, err := newNonce()
	if err != nil {
		return "", "", 0, err
	}

	script := fmt.Sprintf(
		"echo %s\necho %s >&2\n%s\n__sandboxd_exit__=$?\necho %s\necho %s >&2\necho %s$__sandboxd_exit__\n",
		beginStdoutMarker(nonce),
		beginStderrMarker(nonce),
		code,
		endStdoutMarker(nonce),
		endStderrMarker(nonce),
		exitSentinel(nonce),
	)

	if _, err := io.WriteString(b.stdin, script); err != nil {
		return "", "", 0, fmt.Errorf("bash: write script: %w", err)
	}

	result, err := drainUntilMarkers(b.stdout, b.stderr, nonce, true)
	if err != nil {
		return "", "", 0, err
	}
	return result.stdout, result.stderr, result.exitCode, nil
}

// Close terminates the shell's process group so hung children are
// collected too (spec.md §9, process-group based child termination).
func (b *BashInterpreter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.stdin.Close()
	if b.cmd.Process != nil {
		_ = syscall.Kill(-b.cmd.Process.Pid, syscall.SIGKILL)
	}
	return b.cmd.Wait()
}

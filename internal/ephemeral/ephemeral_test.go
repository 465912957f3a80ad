package ephemeral

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func requirePython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on this system")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requirePython(t)

	result, err := Run(context.Background(), []string{"python3", "-u", "-"}, "print(1+1)", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "2\n" || result.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunCapturesNonzeroExit(t *testing.T) {
	requirePython(t)

	result, err := Run(context.Background(), []string{"python3", "-u", "-"}, "import sys; sys.exit(3)", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("got exitCode=%d, want 3", result.ExitCode)
	}
}

func TestRunDefaultsTimeoutWhenUnset(t *testing.T) {
	requirePython(t)

	result, err := Run(context.Background(), []string{"python3", "-u", "-"}, "print('ok')", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "ok\n" {
		t.Fatalf("unexpected stdout: %q", result.Stdout)
	}
}

func TestRunTimesOutLongRunningCode(t *testing.T) {
	requirePython(t)

	start := time.Now()
	_, err := Run(context.Background(), []string{"python3", "-u", "-"}, "import time; time.sleep(10)", 1)
	elapsed := time.Since(start)

	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T (%v)", err, err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("expected timeout to fire promptly, took %v", elapsed)
	}
}

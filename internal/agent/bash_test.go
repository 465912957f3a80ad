package agent

import (
	"context"
	"os/exec"
	"testing"
)

func requireBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available on this system")
	}
}

func TestBashInterpreterExportPersists(t *testing.T) {
	requireBash(t)

	interp, err := NewBashInterpreter()
	if err != nil {
		t.Fatalf("NewBashInterpreter: %v", err)
	}
	defer interp.Close()

	if _, _, exitCode, err := interp.Execute(context.Background(), "export MY_VAR=hello"); err != nil || exitCode != 0 {
		t.Fatalf("first call: err=%v exitCode=%d", err, exitCode)
	}

	stdout, _, exitCode, err := interp.Execute(context.Background(), `echo "$MY_VAR"`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if stdout != "hello\n" || exitCode != 0 {
		t.Fatalf("got stdout=%q exitCode=%d, want %q/0", stdout, exitCode, "hello\n")
	}
}

func TestBashInterpreterNonzeroExit(t *testing.T) {
	requireBash(t)

	interp, err := NewBashInterpreter()
	if err != nil {
		t.Fatalf("NewBashInterpreter: %v", err)
	}
	defer interp.Close()

	_, _, exitCode, err := interp.Execute(context.Background(), "false")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exitCode != 1 {
		t.Fatalf("got exitCode=%d, want 1", exitCode)
	}
}

func TestBashInterpreterEmptyCode(t *testing.T) {
	requireBash(t)

	interp, err := NewBashInterpreter()
	if err != nil {
		t.Fatalf("NewBashInterpreter: %v", err)
	}
	defer interp.Close()

	stdout, stderr, exitCode, err := interp.Execute(context.Background(), "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if stdout != "" || stderr != "" || exitCode != 0 {
		t.Fatalf("expected all-empty result for empty code, got stdout=%q stderr=%q exitCode=%d", stdout, stderr, exitCode)
	}
}

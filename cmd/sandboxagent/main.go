// Command sandboxagent runs inside a session's sandboxed process: it
// speaks the length-prefixed wire protocol on stdin/stdout and drives one
// persistent interpreter, fixed at launch by --interpreter.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/sandboxd/internal/agent"
)

func main() {
	var interpreter string
	var scratchDir string

	root := &cobra.Command{
		Use:           "sandboxagent",
		Short:         "Session-side interpreter agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), interpreter, scratchDir)
		},
	}
	root.Flags().StringVar(&interpreter, "interpreter", "", "interpreter to drive: python, bash, or node")
	root.Flags().StringVar(&scratchDir, "scratch-dir", "", "writable scratch directory for interpreters that need one on disk")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, interpreter, scratchDir string) error {
	newInterp, err := builderFor(interpreter, scratchDir)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	a := agent.New(logger, newInterp)
	return a.Run(ctx, os.Stdin, os.Stdout)
}

func builderFor(interpreter, scratchDir string) (func() (agent.Interpreter, error), error) {
	switch interpreter {
	case "python":
		return agent.NewPythonInterpreter, nil
	case "bash":
		return agent.NewBashInterpreter, nil
	case "node":
		return agent.NewNodeInterpreter(scratchDir), nil
	default:
		return nil, fmt.Errorf("unknown --interpreter %q: want python, bash, or node", interpreter)
	}
}

package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// nodeBootstrap starts a REPL with no prompt and no result echo: the REPL's
// own output stream is a sink that discards everything, so only explicit
// process.stdout/console writes reach real stdout. Direct `node -e`
// invocation is rejected in favor of a file on disk — spec.md §4.2.4 notes
// that `-e` would not present stdin as a readable stream to the REPL.
//
// The custom eval function runs code against one vm.Context built with
// vm.createContext and reused across every call, so block-scoped let/const
// declarations persist the same way they would under the REPL's own
// default eval against its global object — but runInContext is always
// handed an actual contextified object (useGlobal is false, and the
// REPL-supplied context argument is ignored), which is what runInContext
// requires. console/process/require are copied onto the context so
// console.log and require still work inside evaluated code. A thrown
// error is written to stderr instead of being formatted onto the REPL's
// output stream, since the agent infers exit status from stderr.
const nodeBootstrap = `
const repl = require('repl');
const vm = require('vm');
const { Writable } = require('stream');

const sink = new Writable({ write(chunk, encoding, cb) { cb(); } });

const sandboxContext = vm.createContext({
  console, process, require, module, exports, __dirname, __filename,
  Buffer, setTimeout, clearTimeout, setInterval, clearInterval,
});

function sandboxEval(code, context, filename, callback) {
  try {
    const script = new vm.Script(code, { filename });
    const result = script.runInContext(sandboxContext);
    callback(null, result);
  } catch (e) {
    process.stderr.write((e && e.stack ? e.stack : String(e)) + '\n');
    callback(null, undefined);
  }
}

const r = repl.start({
  prompt: '',
  input: process.stdin,
  output: sink,
  terminal: false,
  useGlobal: false,
  writer: () => '',
  eval: sandboxEval,
});
`

// NodeInterpreter drives a persistent Node REPL subprocess invoked against
// a bootstrap script on disk.
type NodeInterpreter struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	scratchDir string
}

// NewNodeInterpreter writes the bootstrap script into scratchDir (the
// session's writable scratch area) and spawns node against it.
func NewNodeInterpreter(scratchDir string) func() (Interpreter, error) {
	return func() (Interpreter, error) {
		if scratchDir == "" {
			var err error
			scratchDir, err = os.MkdirTemp("", "sandboxd-node-*")
			if err != nil {
				return nil, fmt.Errorf("node: scratch dir: %w", err)
			}
		}

		scriptPath := filepath.Join(scratchDir, "repl_bootstrap.js")
		if err := os.WriteFile(scriptPath, []byte(nodeBootstrap), 0o600); err != nil {
			return nil, fmt.Errorf("node: write bootstrap: %w", err)
		}

		cmd := exec.Command("node", scriptPath)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("node: stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("node: stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("node: stderr pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("node: start: %w", err)
		}

		return &NodeInterpreter{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr, scratchDir: scratchDir}, nil
	}
}

// Execute sends user code directly to the REPL (not wrapped in try/catch,
// so that `let`/`const` declarations persist across calls — spec.md
// §4.2.4), followed by marker commands written with process.stdout.write /
// process.stderr.write so the REPL's writer cannot reformat or suppress
// them, then a `.break` to clear any pending multi-line state.
func (n *NodeInterpreter) Execute(_ context.Context, code string) (string, string, int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nonce, err := newNonce()
	if err != nil {
		return "", "", 0, err
	}

	script := fmt.Sprintf(
		"process.stdout.write(%q);\nprocess.stderr.write(%q);\n%s\nprocess.stdout.write(%q);\nprocess.stderr.write(%q);\n.break\n",
		beginStdoutMarker(nonce)+"\n",
		beginStderrMarker(nonce)+"\n",
		code,
		endStdoutMarker(nonce)+"\n",
		endStderrMarker(nonce)+"\n",
	)

	if _, err := io.WriteString(n.stdin, script); err != nil {
		return "", "", 0, fmt.Errorf("node: write script: %w", err)
	}

	result, err := drainUntilMarkers(n.stdout, n.stderr, nonce, false)
	if err != nil {
		return "", "", 0, err
	}

	// Exit code is inferred, not carried on the wire: non-empty stderr
	// means the code raised, since the REPL has no per-statement status.
	exitCode := 0
	if result.stderr != "" {
		exitCode = 1
	}
	return result.stdout, result.stderr, exitCode, nil
}

// Close terminates the REPL subprocess.
func (n *NodeInterpreter) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_ = n.stdin.Close()
	if n.cmd.Process != nil {
		_ = n.cmd.Process.Kill()
	}
	return n.cmd.Wait()
}

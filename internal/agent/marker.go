package agent

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// nonceLen is the number of random bytes backing a marker nonce, giving
// 16 hex characters (64 bits) of unpredictability per spec.md §4.2.1.
const nonceLen = 8

// newNonce returns a fresh hex-encoded nonce unique to one execution.
func newNonce() (string, error) {
	b := make([]byte, nonceLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("agent: generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func beginStdoutMarker(nonce string) string { return "BEGIN_STDOUT" + nonce }
func endStdoutMarker(nonce string) string   { return "END_STDOUT" + nonce }
func beginStderrMarker(nonce string) string { return "BEGIN_STDERR" + nonce }
func endStderrMarker(nonce string) string   { return "END_STDERR" + nonce }
func exitSentinel(nonce string) string      { return "EXIT:" + nonce + ":" }

// drainResult is the outcome of reading an interpreter's stdout/stderr
// pipes until both end-markers have been observed.
type drainResult struct {
	stdout   string
	stderr   string
	exitCode int
}

// drainUntilMarkers reads stdout and stderr concurrently until the
// END_STDOUT/END_STDERR markers for nonce are seen on each, returning the
// text captured between the BEGIN and END markers plus the exit code
// carried on the stdout stream's EXIT sentinel line, when wantExit is set.
// A failure on either pipe (EOF, read error) is returned once both reads
// have finished; it does not interrupt a read still blocked on the other
// pipe — spec.md §4.2.1/§4.2.3. Node has no EXIT sentinel (its exit code is
// inferred from stderr instead, per §4.2.4), so its caller passes
// wantExit=false and the stdout scan stops at the END marker like stderr's.
func drainUntilMarkers(stdout, stderr io.Reader, nonce string, wantExit bool) (drainResult, error) {
	var result drainResult

	stdoutExitNonce := ""
	if wantExit {
		stdoutExitNonce = nonce
	}

	g := new(errgroup.Group)

	g.Go(func() error {
		out, code, err := scanUntilMarker(stdout, beginStdoutMarker(nonce), endStdoutMarker(nonce), stdoutExitNonce)
		if err != nil {
			return fmt.Errorf("agent: read stdout: %w", err)
		}
		result.stdout = out
		result.exitCode = code
		return nil
	})

	g.Go(func() error {
		errText, _, err := scanUntilMarker(stderr, beginStderrMarker(nonce), endStderrMarker(nonce), "")
		if err != nil {
			return fmt.Errorf("agent: read stderr: %w", err)
		}
		result.stderr = errText
		return nil
	})

	if err := g.Wait(); err != nil {
		return drainResult{}, err
	}
	return result, nil
}

// scanUntilMarker reads lines from r, collecting everything between a
// BEGIN marker and an END marker. If exitNonce is non-empty, a line of the
// form EXIT:<nonce>:<code> occurring after the END marker sets the
// returned exit code; a missing sentinel defaults to 0.
func scanUntilMarker(r io.Reader, begin, end, exitNonce string) (string, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		capturing bool
		lines     []string
		exitCode  int
		sawEnd    bool
	)

	for scanner.Scan() {
		line := scanner.Text()

		if !capturing {
			if strings.Contains(line, begin) {
				capturing = true
				if rest := afterMarker(line, begin); rest != "" {
					lines = append(lines, rest)
				}
			}
			continue
		}

		if idx := strings.Index(line, end); idx >= 0 {
			if before := line[:idx]; before != "" {
				lines = append(lines, before)
			}
			sawEnd = true
			if exitNonce == "" {
				break
			}
			continue
		}

		if sawEnd && exitNonce != "" {
			if code, ok := parseExitSentinel(line, exitNonce); ok {
				exitCode = code
				break
			}
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return "", 0, err
	}
	if !sawEnd {
		return "", 0, io.ErrUnexpectedEOF
	}

	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	return text, exitCode, nil
}

func afterMarker(line, marker string) string {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(marker):]
	return strings.TrimPrefix(rest, " ")
}

func parseExitSentinel(line, nonce string) (int, bool) {
	prefix := exitSentinel(nonce)
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len(prefix):])
	code, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return code, true
}

package transport

import (
	"context"
	"encoding/binary"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/szaher/sandboxd/internal/wire"
)

// pipeTransport builds a Transport wired to in-memory pipes instead of a
// real child, so the framing and error-typing logic can be exercised
// without depending on any particular executable being on PATH.
func pipeTransport() (tr *Transport, toChild *io.PipeReader, fromChild *io.PipeWriter) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	return &Transport{stdin: stdinW, stdout: stdoutR}, stdinR, stdoutW
}

func TestRoundTripSendsRequestAndReturnsResponse(t *testing.T) {
	tr, toChild, fromChild := pipeTransport()

	done := make(chan error, 1)
	go func() {
		if _, err := wire.ReadMessage(toChild); err != nil {
			done <- err
			return
		}
		done <- wire.WriteResponse(fromChild, wire.Response{ID: float64(1), Stdout: "ok\n", ExitCode: 0})
	}()

	resp, err := tr.RoundTrip(wire.Request{ID: float64(1), Code: "print(1)"})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.Stdout != "ok\n" || resp.ExitCode != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if err := <-done; err != nil {
		t.Fatalf("fake child: %v", err)
	}
}

func TestRoundTripOnClosedStdoutIsTransportClosed(t *testing.T) {
	tr, toChild, fromChild := pipeTransport()
	go io.ReadAll(toChild)
	fromChild.Close()

	_, err := tr.RoundTrip(wire.Request{ID: float64(1), Code: "x"})
	if _, ok := err.(*TransportClosedError); !ok {
		t.Fatalf("expected *TransportClosedError, got %T (%v)", err, err)
	}
}

func TestRoundTripOversizedLengthPrefixIsFrameTooLarge(t *testing.T) {
	tr, toChild, fromChild := pipeTransport()
	go io.ReadAll(toChild)

	go func() {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], MaxFrameSize+1)
		fromChild.Write(lenBuf[:])
	}()

	_, err := tr.RoundTrip(wire.Request{ID: float64(1), Code: "x"})
	tooLarge, ok := err.(*FrameTooLargeError)
	if !ok {
		t.Fatalf("expected *FrameTooLargeError, got %T (%v)", err, err)
	}
	if tooLarge.Length != MaxFrameSize+1 {
		t.Fatalf("unexpected length on error: %d", tooLarge.Length)
	}
}

func TestRoundTripNonJSONPayloadIsProtocolCorruption(t *testing.T) {
	tr, toChild, fromChild := pipeTransport()
	go io.ReadAll(toChild)

	go wire.WriteMessage(fromChild, []byte("not json"))

	_, err := tr.RoundTrip(wire.Request{ID: float64(1), Code: "x"})
	if _, ok := err.(*ProtocolCorruptionError); !ok {
		t.Fatalf("expected *ProtocolCorruptionError, got %T (%v)", err, err)
	}
}

func TestRoundTripMarksTransportDeadAfterFailure(t *testing.T) {
	tr, toChild, fromChild := pipeTransport()
	go io.ReadAll(toChild)
	fromChild.Close()

	if _, err := tr.RoundTrip(wire.Request{ID: float64(1), Code: "x"}); err == nil {
		t.Fatal("expected error on first round-trip")
	}

	_, err := tr.RoundTrip(wire.Request{ID: float64(2), Code: "y"})
	if _, ok := err.(*TransportClosedError); !ok {
		t.Fatalf("expected *TransportClosedError on dead transport, got %T (%v)", err, err)
	}
	if tr.IsAlive() {
		t.Fatal("transport should report dead after a fatal error")
	}
}

func TestSpawnIsAliveAndShutdown(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available on this system")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Spawn(ctx, "cat")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if !tr.IsAlive() {
		t.Fatal("expected freshly spawned transport to be alive")
	}

	if err := tr.Shutdown(); err != nil {
		t.Logf("Shutdown returned %v (expected for a killed process)", err)
	}
	if tr.IsAlive() {
		t.Fatal("expected transport to report dead after Shutdown")
	}
}

// Package wire implements the length-prefixed JSON framing shared by the
// daemon's pipe transport and the in-sandbox agent's request loop.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	json "github.com/segmentio/encoding/json"
)

// MaxMessageSize is a safety valve against malformed or runaway messages.
const MaxMessageSize = 64 * 1024 * 1024

// Request is the daemon-to-agent execution request.
type Request struct {
	ID   any    `json:"id"`
	Code string `json:"code"`
}

// Response is the agent-to-daemon execution result.
type Response struct {
	ID       any    `json:"id"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// WriteMessage writes a length-prefixed payload: a 4-byte big-endian length
// followed by the raw bytes, with no trailing newline.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("wire: message exceeds max size: %d > %d", len(payload), MaxMessageSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed payload from r.
func ReadMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("wire: message exceeds max size: %d > %d", length, MaxMessageSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}

// WriteRequest marshals and frames a Request.
func WriteRequest(w io.Writer, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("wire: marshal request: %w", err)
	}
	return WriteMessage(w, payload)
}

// WriteResponse marshals and frames a Response.
func WriteResponse(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("wire: marshal response: %w", err)
	}
	return WriteMessage(w, payload)
}

// ReadResponse reads and unmarshals one framed Response.
func ReadResponse(r io.Reader) (Response, error) {
	payload, err := ReadMessage(r)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("wire: unmarshal response: %w", err)
	}
	return resp, nil
}

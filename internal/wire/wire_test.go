package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteReadMessageRoundtrip(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	var buf bytes.Buffer

	if err := WriteMessage(&buf, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, payload)
	}
}

func TestWriteReadMessageEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte{}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestReadMessageShortReadIsError(t *testing.T) {
	// Only 2 of the 4 length-prefix bytes are present.
	buf := bytes.NewBuffer([]byte{0x00, 0x00})
	if _, err := ReadMessage(buf); err == nil {
		t.Fatal("expected error on short length prefix, got nil")
	}
}

func TestReadMessageTruncatedPayloadIsError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte("hello world")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	truncated := buf.Bytes()[:6] // length prefix + 2 of 11 payload bytes
	if _, err := ReadMessage(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected error on truncated payload, got nil")
	}
}

func TestMessageExceedingMaxSizeIsRejected(t *testing.T) {
	oversized := make([]byte, MaxMessageSize+1)
	var buf bytes.Buffer
	if err := WriteMessage(&buf, oversized); err == nil {
		t.Fatal("expected error writing oversized payload, got nil")
	}
}

func TestRequestResponseRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: "abc", Code: "print(1)"}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	payload, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != "abc" || decoded.Code != "print(1)" {
		t.Fatalf("unexpected decoded request: %+v", decoded)
	}
}

func TestWriteReadResponseRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{ID: "1", Stdout: "2\n", Stderr: "", ExitCode: 0}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.Stdout != resp.Stdout || got.ExitCode != resp.ExitCode {
		t.Fatalf("got %+v want %+v", got, resp)
	}
}

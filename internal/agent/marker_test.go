package agent

import (
	"strings"
	"testing"
)

func TestScanUntilMarkerCapturesEnclosedText(t *testing.T) {
	nonce := "deadbeef"
	input := strings.NewReader(
		beginStdoutMarker(nonce) + "\n" +
			"hello\n" +
			"world\n" +
			endStdoutMarker(nonce) + "\n" +
			exitSentinel(nonce) + "0\n",
	)

	text, code, err := scanUntilMarker(input, beginStdoutMarker(nonce), endStdoutMarker(nonce), nonce)
	if err != nil {
		t.Fatalf("scanUntilMarker: %v", err)
	}
	if text != "hello\nworld\n" {
		t.Fatalf("unexpected captured text: %q", text)
	}
	if code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
}

func TestScanUntilMarkerNonzeroExit(t *testing.T) {
	nonce := "cafef00d"
	input := strings.NewReader(
		beginStdoutMarker(nonce) + "\n" +
			endStdoutMarker(nonce) + "\n" +
			exitSentinel(nonce) + "17\n",
	)

	text, code, err := scanUntilMarker(input, beginStdoutMarker(nonce), endStdoutMarker(nonce), nonce)
	if err != nil {
		t.Fatalf("scanUntilMarker: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if code != 17 {
		t.Fatalf("unexpected exit code: %d", code)
	}
}

func TestScanUntilMarkerSurvivesMarkerLookingUserOutput(t *testing.T) {
	nonce := "aaaa1111"
	otherNonce := "bbbb2222"
	input := strings.NewReader(
		beginStdoutMarker(nonce) + "\n" +
			"output mentioning " + beginStdoutMarker(otherNonce) + " looks like a marker but isn't\n" +
			endStdoutMarker(nonce) + "\n" +
			exitSentinel(nonce) + "0\n",
	)

	text, _, err := scanUntilMarker(input, beginStdoutMarker(nonce), endStdoutMarker(nonce), nonce)
	if err != nil {
		t.Fatalf("scanUntilMarker: %v", err)
	}
	if !strings.Contains(text, "looks like a marker but isn't") {
		t.Fatalf("expected marker-looking substring preserved, got %q", text)
	}
}

func TestScanUntilMarkerMissingEndMarkerIsError(t *testing.T) {
	nonce := "1234abcd"
	input := strings.NewReader(beginStdoutMarker(nonce) + "\nno end marker here\n")
	if _, _, err := scanUntilMarker(input, beginStdoutMarker(nonce), endStdoutMarker(nonce), nonce); err == nil {
		t.Fatal("expected error when end marker is never observed")
	}
}

func TestNoncesAreUnpredictableAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n, err := newNonce()
		if err != nil {
			t.Fatalf("newNonce: %v", err)
		}
		if seen[n] {
			t.Fatalf("nonce collision: %q", n)
		}
		seen[n] = true
	}
}

package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAuthSealer_RoundTrip(t *testing.T) {
	sealer, err := NewAuthSealer("test-passphrase")
	if err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{
		"mode":    "api_key",
		"api_key": "sk-test-1234567890",
	}
	blob, err := sealer.Seal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(blob), "sk-test-1234567890") {
		t.Fatal("sealed blob must not expose the plaintext key")
	}

	opened, err := sealer.Open(blob)
	if err != nil {
		t.Fatal(err)
	}
	if opened["api_key"] != "sk-test-1234567890" || opened["mode"] != "api_key" {
		t.Fatalf("round trip mismatch: %v", opened)
	}
}

func TestAuthSealer_RejectsTamperedBlob(t *testing.T) {
	sealer, err := NewAuthSealer("test-passphrase")
	if err != nil {
		t.Fatal(err)
	}
	blob, err := sealer.Seal(map[string]any{"api_key": "secret"})
	if err != nil {
		t.Fatal(err)
	}

	blob[len(blob)-1] ^= 0xff
	if _, err := sealer.Open(blob); !errors.Is(err, ErrInvalidAuthBlob) {
		t.Fatalf("got %v, want ErrInvalidAuthBlob", err)
	}

	if _, err := sealer.Open([]byte{0x01, 0x02}); !errors.Is(err, ErrInvalidAuthBlob) {
		t.Fatalf("got %v, want ErrInvalidAuthBlob for truncated blob", err)
	}
}

func TestAuthSealer_DifferentPassphraseCannotOpen(t *testing.T) {
	a, err := NewAuthSealer("passphrase-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewAuthSealer("passphrase-b")
	if err != nil {
		t.Fatal(err)
	}

	blob, err := a.Seal(map[string]any{"api_key": "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(blob); !errors.Is(err, ErrInvalidAuthBlob) {
		t.Fatalf("got %v, want ErrInvalidAuthBlob across keys", err)
	}
}

func TestGenerateAgentToken(t *testing.T) {
	first, err := GenerateAgentToken()
	if err != nil {
		t.Fatal(err)
	}
	second, err := GenerateAgentToken()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(first, "agt_") {
		t.Fatalf("token %q missing agt_ prefix", first)
	}
	if first == second {
		t.Fatal("tokens must be unique")
	}
}

func TestAgentTokenPreview(t *testing.T) {
	preview := AgentTokenPreview("agt_abcdefgh1234")
	if !strings.HasSuffix(preview, "1234") {
		t.Fatalf("preview %q should keep the last four characters", preview)
	}
	if strings.Contains(preview, "abcdefgh") {
		t.Fatalf("preview %q leaks the token body", preview)
	}
	if AgentTokenPreview("") != "local-agent" {
		t.Fatal("empty token gets the bare label")
	}
}

package redact

import (
	"strings"
	"testing"
)

func TestTextDisabledPassesThrough(t *testing.T) {
	SetEnabled(false)
	in := "my card is 4111 1111 1111 1111"
	if got := Text(in); got != in {
		t.Fatalf("expected passthrough when disabled, got %q", got)
	}
}

func TestTextRedactsAccountNumbers(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	got := Text("charge it to 4111-1111-1111-1111 please")
	if strings.Contains(got, "4111") {
		t.Fatalf("expected card number redacted, got %q", got)
	}
	if !strings.Contains(got, "[REDACTED_ACCOUNT]") {
		t.Fatalf("expected account marker, got %q", got)
	}
}

func TestTextRedactsEmailAndPhone(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	got := Text("reach me at jo@example.com or +1 415 555 0100")
	if strings.Contains(got, "example.com") || strings.Contains(got, "0100") {
		t.Fatalf("expected email and phone redacted, got %q", got)
	}
}

//go:build !integration

package logging

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	secret := "postgres://shop:hunter2@db:5432/shop"

	got := Redact(secret, false)
	if strings.Contains(got, "hunter2") {
		t.Fatalf("credential survived redaction: %q", got)
	}
	if !strings.HasPrefix(got, "post") || !strings.HasSuffix(got, "op") {
		t.Fatalf("preview shape changed: %q", got)
	}

	if got := Redact("short", false); got != "***" {
		t.Fatalf("short values must be fully hidden, got %q", got)
	}
	if got := Redact(secret, true); got != secret {
		t.Fatalf("dev mode must pass through, got %q", got)
	}
}

package jira

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestErrorMessage_LongBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ascii", strings.Repeat("x", 800)},
		{"two-byte runes across the cut", "a" + strings.Repeat("é", 400)},
		{"four-byte runes across the cut", "ab" + strings.Repeat("🚫", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := errorMessage([]byte(tt.body))
			if !utf8.ValidString(msg) {
				t.Errorf("message is not valid UTF-8: %q", msg[len(msg)-4:])
			}
			if len(msg) > maxErrorBody || len(msg) < maxErrorBody-3 {
				t.Errorf("len = %d, want within a rune of %d", len(msg), maxErrorBody)
			}
			if !strings.HasPrefix(tt.body, msg) {
				t.Error("message is not a prefix of the body")
			}
		})
	}
}

func TestErrorMessage_ShortBodyUnchanged(t *testing.T) {
	if got := errorMessage([]byte("  Dienst nicht verfügbar \n")); got != "Dienst nicht verfügbar" {
		t.Errorf("errorMessage = %q", got)
	}
}

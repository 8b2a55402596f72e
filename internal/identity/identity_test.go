package identity

import (
	"strings"
	"testing"
)

func TestSanitizeUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"user-1", "user-1"},
		{"  user-1  ", "user-1"},
		{"a.b_c:d-e", "a.b_c:d-e"},
		{"", ""},
		{"   ", ""},
		{"../etc/passwd", ""},
		{"user 1", ""},
		{"user\n1", ""},
		{strings.Repeat("a", 129), ""},
		{strings.Repeat("a", 128), strings.Repeat("a", 128)},
	}
	for _, tt := range tests {
		if got := SanitizeUserID(tt.in); got != tt.want {
			t.Errorf("SanitizeUserID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeRunID(t *testing.T) {
	t.Parallel()

	if got := SanitizeRunID("run-1"); got != "run-1" {
		t.Errorf("SanitizeRunID(run-1) = %q", got)
	}
	if got := SanitizeRunID(""); got != "default" {
		t.Errorf("SanitizeRunID(empty) = %q, want default", got)
	}
	if got := SanitizeRunID("bad id"); got != "default" {
		t.Errorf("SanitizeRunID(bad id) = %q, want default", got)
	}
}

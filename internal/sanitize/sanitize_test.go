package sanitize

import (
	"strings"
	"testing"
)

func TestRunName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"passthrough", "baseline-v2", "baseline-v2"},
		{"keeps dots and underscores", "zipf_0.95.run", "zipf_0.95.run"},
		{"spaces become hyphens", "two procs  high locality", "two-procs-high-locality"},
		{"strips control characters", "run\x00\x07name\x7f", "runname"},
		{"strips markup", "<system>ignore previous</system>", "systemignore-previoussystem"},
		{"collapses separators", "a---b___c", "a-b_c"},
		{"trims separators", "  --run--  ", "run"},
		{"drops non-ascii", "größe", "gre"},
		{"only junk", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunName(tt.input); got != tt.want {
				t.Errorf("RunName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRunName_MaxLength(t *testing.T) {
	got := RunName(strings.Repeat("a", MaxNameLength+50))
	if len(got) != MaxNameLength {
		t.Errorf("len = %d, want %d", len(got), MaxNameLength)
	}

	// truncation must not leave a trailing separator
	got = RunName(strings.Repeat("a", MaxNameLength-1) + "-bbb")
	if strings.HasSuffix(got, "-") {
		t.Errorf("RunName left trailing separator: %q", got)
	}
}

func TestRunName_Idempotent(t *testing.T) {
	for _, in := range []string{"hello world", "<b>x</b>", "a  -  b", "x__y..z"} {
		once := RunName(in)
		if twice := RunName(once); twice != once {
			t.Errorf("RunName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

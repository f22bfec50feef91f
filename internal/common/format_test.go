package common

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	Out = &buf
	defer func() { Out = os.Stdout }()

	PrintHeader("REPORT")

	lines := strings.Split(strings.TrimPrefix(buf.String(), "\n"), "\n")
	if lines[1] != "REPORT" {
		t.Errorf("Expected title on second line, got %q", lines[1])
	}
	if len(lines[0]) != ReportWidth {
		t.Errorf("Expected rule of width %d, got %d", ReportWidth, len(lines[0]))
	}
}

func TestShortId(t *testing.T) {
	tests := map[string]string{
		"":             "none",
		"abc":          "abc",
		"12345678":     "12345678",
		"123456789abc": "12345678...",
	}
	for in, want := range tests {
		if got := ShortId(in); got != want {
			t.Errorf("Expected %q for %q, got %q", want, in, got)
		}
	}
}

func TestBoxPrefix(t *testing.T) {
	if BoxPrefix(true) != "└  " || BoxPrefix(false) != "│  " {
		t.Error("Unexpected box prefixes")
	}
	if BoxDetailPrefix(true) != "   " {
		t.Error("Expected blank detail prefix for last item")
	}
}

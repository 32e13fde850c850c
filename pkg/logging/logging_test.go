package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestComponentSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Output: &buf})

	l.Component("swap").Info("leg funded", "swap_id", "abc")

	out := buf.String()
	if !strings.Contains(out, "swap") {
		t.Errorf("output %q missing component prefix", out)
	}
	if !strings.Contains(out, "swap_id=abc") {
		t.Errorf("output %q missing key/value", out)
	}
}

func TestComponentKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "error", Output: &buf})

	l.Component("rpc").Info("should be filtered")

	if buf.Len() != 0 {
		t.Errorf("expected no output at error level, got %q", buf.String())
	}
}

func TestSetDefault(t *testing.T) {
	prev := GetDefault()
	defer SetDefault(prev)

	d := Discard()
	SetDefault(d)
	if GetDefault() != d {
		t.Error("GetDefault did not return the logger passed to SetDefault")
	}
}

package util

import (
	"testing"
	"unicode/utf8"
)

func TestSplitCommaSeparated(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"core1", 1},
		{"core1,edge1", 2},
		{"core1, edge1, ,fw1", 3},
	}

	for _, tt := range tests {
		got := SplitCommaSeparated(tt.input)
		if len(got) != tt.want {
			t.Errorf("SplitCommaSeparated(%q) = %v (len %d), want len %d", tt.input, got, len(got), tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 3); got != "hel" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("hi", 10); got != "hi" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	// "é" is two bytes and "€" is three
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"caf\u00e9", 4, "caf"},
		{"caf\u00e9", 5, "caf\u00e9"},
		{"\u20ac\u20ac", 4, "\u20ac"},
		{"\u20ac\u20ac", 2, ""},
	}
	for _, tt := range tests {
		got := Truncate(tt.input, tt.n)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) produced invalid UTF-8", tt.input, tt.n)
		}
	}
}

func TestLineAt(t *testing.T) {
	text := "hostname core1\r\nntp server 10.0.0.5\nlogging host 10.0.0.9"

	tests := []struct {
		idx  int
		want string
	}{
		{0, "hostname core1"},
		{20, "ntp server 10.0.0.5"},
		{len(text) - 1, "logging host 10.0.0.9"},
		{-1, ""},
	}

	for _, tt := range tests {
		if got := LineAt(text, tt.idx); got != tt.want {
			t.Errorf("LineAt(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}
}

// Package cli provides shared formatting helpers for the newtcfg CLI.
package cli

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Color output is disabled when NO_COLOR is set or stdout is not a terminal;
// fatih/color detects both.
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// SetColor forces color output on or off.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// Green wraps s in ANSI green.
func Green(s string) string { return green(s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return yellow(s) }

// Red wraps s in ANSI red.
func Red(s string) string { return red(s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return bold(s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return dim(s) }

// Status renders a success flag as a colored OK or FAILED.
func Status(success bool) string {
	if success {
		return Green("OK")
	}
	return Red("FAILED")
}

// Score colors a percentage: green at 100, yellow from 80, red below.
func Score(pct float64) string {
	s := strings.TrimSuffix(strings.TrimRight(strconv.FormatFloat(pct, 'f', 2, 64), "0"), ".") + "%"
	switch {
	case pct >= 100:
		return Green(s)
	case pct >= 80:
		return Yellow(s)
	default:
		return Red(s)
	}
}

// DotPad pads name with dots to the given width.
// Example: DotPad("core1", 12) → "core1 ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

package transport

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Dialect describes the command syntax and session behavior of one device
// family.
type Dialect struct {
	Name string

	// ShowConfig prints the full running configuration.
	ShowConfig string

	// DisablePaging runs once after login so long output is not paged.
	DisablePaging []string

	// EnterConfig and ExitConfig bracket configuration commands.
	EnterConfig []string
	ExitConfig  []string

	// Save persists the running configuration.
	Save []string

	// SupportsReplace marks dialects that can load a complete configuration
	// in one step. ReplacePrelude, the configuration text, and ReplacePostlude
	// are sent together as one command sequence.
	SupportsReplace bool
	ReplacePrelude  []string
	ReplacePostlude []string

	// CommentPrefixes mark non-command lines in captured configuration.
	CommentPrefixes []string

	// RejectMarkers are output substrings that mean the device refused a command.
	RejectMarkers []string

	// Prompt matches the end of the CLI prompt after a command completes.
	Prompt *regexp.Regexp
}

// Rejected returns the first output line carrying a rejection marker, or "".
func (d *Dialect) Rejected(output string) string {
	for _, marker := range d.RejectMarkers {
		if idx := strings.Index(output, marker); idx >= 0 {
			line := output[idx:]
			if nl := strings.IndexByte(line, '\n'); nl >= 0 {
				line = line[:nl]
			}
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// ReplaceSequence wraps configText in the dialect's replace prelude and postlude.
func (d *Dialect) ReplaceSequence(configText string) []string {
	seq := make([]string, 0, len(d.ReplacePrelude)+len(d.ReplacePostlude)+1)
	seq = append(seq, d.ReplacePrelude...)
	seq = append(seq, configText)
	seq = append(seq, d.ReplacePostlude...)
	return seq
}

// SplitReplace reports whether commands is a replace sequence for this
// dialect and, if so, returns the configuration text it carries.
func (d *Dialect) SplitReplace(commands []string) (string, bool) {
	if !d.SupportsReplace {
		return "", false
	}
	pre, post := len(d.ReplacePrelude), len(d.ReplacePostlude)
	if len(commands) != pre+post+1 {
		return "", false
	}
	for i, c := range d.ReplacePrelude {
		if commands[i] != c {
			return "", false
		}
	}
	for i, c := range d.ReplacePostlude {
		if commands[pre+1+i] != c {
			return "", false
		}
	}
	return commands[pre], true
}

// defaultPrompt matches only at the very end of the buffer.
var defaultPrompt = regexp.MustCompile(`[\w.\-@()/:~\[\]]+[>#$%]\s*$`)

var iosRejectMarkers = []string{
	"% Invalid input",
	"% Incomplete command",
	"% Ambiguous command",
	"% Unknown command",
	"% Error",
}

var dialects = map[string]*Dialect{
	"cisco_ios": {
		Name:            "cisco_ios",
		ShowConfig:      "show running-config",
		DisablePaging:   []string{"terminal length 0"},
		EnterConfig:     []string{"configure terminal"},
		ExitConfig:      []string{"end"},
		Save:            []string{"write memory"},
		CommentPrefixes: []string{"!", "Building configuration", "Current configuration"},
		RejectMarkers:   iosRejectMarkers,
		Prompt:          defaultPrompt,
	},
	"cisco_nxos": {
		Name:            "cisco_nxos",
		ShowConfig:      "show running-config",
		DisablePaging:   []string{"terminal length 0"},
		EnterConfig:     []string{"configure terminal"},
		ExitConfig:      []string{"end"},
		Save:            []string{"copy running-config startup-config"},
		CommentPrefixes: []string{"!", "version "},
		RejectMarkers:   iosRejectMarkers,
		Prompt:          defaultPrompt,
	},
	"arista_eos": {
		Name:            "arista_eos",
		ShowConfig:      "show running-config",
		DisablePaging:   []string{"terminal length 0"},
		EnterConfig:     []string{"configure terminal"},
		ExitConfig:      []string{"end"},
		Save:            []string{"write memory"},
		SupportsReplace: true,
		ReplacePrelude:  []string{"configure session newtcfg-replace", "rollback clean-config"},
		ReplacePostlude: []string{"commit"},
		CommentPrefixes: []string{"!"},
		RejectMarkers:   iosRejectMarkers,
		Prompt:          defaultPrompt,
	},
	"juniper_junos": {
		Name:            "juniper_junos",
		ShowConfig:      "show configuration",
		DisablePaging:   []string{"set cli screen-length 0"},
		EnterConfig:     []string{"configure exclusive"},
		ExitConfig:      []string{"commit and-quit"},
		Save:            nil,
		SupportsReplace: true,
		ReplacePrelude:  []string{"configure exclusive", "load override terminal"},
		ReplacePostlude: []string{"\x04", "commit and-quit"},
		CommentPrefixes: []string{"#", "/*"},
		RejectMarkers:   []string{"syntax error", "unknown command", "error: "},
		Prompt:          defaultPrompt,
	},
	"sonic": {
		Name:            "sonic",
		ShowConfig:      "show runningconfiguration all",
		Save:            []string{"sudo config save -y"},
		CommentPrefixes: []string{"#"},
		RejectMarkers:   []string{"Error:", "Usage:", "command not found"},
		Prompt:          defaultPrompt,
	},
	"generic": {
		Name:            "generic",
		ShowConfig:      "show running-config",
		CommentPrefixes: []string{"!", "#"},
		RejectMarkers:   []string{"% Invalid input", "% Error"},
		Prompt:          defaultPrompt,
	},
}

// aliases maps vendor names used by common inventory formats onto dialects.
var aliases = map[string]string{
	"cisco":      "cisco_ios",
	"cisco_xe":   "cisco_ios",
	"ios":        "cisco_ios",
	"nxos":       "cisco_nxos",
	"cisco_nxos": "cisco_nxos",
	"arista":     "arista_eos",
	"eos":        "arista_eos",
	"juniper":    "juniper_junos",
	"junos":      "juniper_junos",
}

// LookupDialect resolves a dialect by name or alias.
func LookupDialect(name string) (*Dialect, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if d, ok := dialects[key]; ok {
		return d, nil
	}
	if canonical, ok := aliases[key]; ok {
		return dialects[canonical], nil
	}
	return nil, fmt.Errorf("unknown dialect %q (known: %s)", name, strings.Join(DialectNames(), ", "))
}

// DialectNames returns the canonical dialect names, sorted.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

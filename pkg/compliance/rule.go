// Package compliance evaluates configuration text against declarative rules
// and scores the outcome per device and per batch.
package compliance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcfg/pkg/util"
)

// Kind is a rule kind.
type Kind string

const (
	MustContain    Kind = "must_contain"
	MustNotContain Kind = "must_not_contain"
	RegexMatch     Kind = "regex"
	CommandCheck   Kind = "command"
)

var kindAliases = map[string]Kind{
	"must_contain":     MustContain,
	"mustcontain":      MustContain,
	"must_not_contain": MustNotContain,
	"mustnotcontain":   MustNotContain,
	"regex":            RegexMatch,
	"regex_match":      RegexMatch,
	"regexmatch":       RegexMatch,
	"command":          CommandCheck,
	"command_check":    CommandCheck,
	"commandcheck":     CommandCheck,
}

// ParseKind resolves a rule kind name. Case, dashes, and the long forms
// ("regex_match", "command_check") are accepted.
func ParseKind(s string) (Kind, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown rule kind %q (valid: must_contain, must_not_contain, regex, command)", s)
}

// Rule is one compliance check.
type Rule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Pattern     string `yaml:"pattern" json:"pattern"`
	// Command is run on the live device for CommandCheck rules.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	re *regexp.Regexp
}

// compiled returns the compiled pattern of a RegexMatch rule. Patterns use
// multi-line mode, so ^ and $ match at line boundaries.
func (r *Rule) compiled() (*regexp.Regexp, error) {
	if r.re != nil {
		return r.re, nil
	}
	return regexp.Compile("(?m)" + r.Pattern)
}

// record is the on-disk form. "type" and "required_value" are accepted for
// older rule files.
type record struct {
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	Kind          string `yaml:"kind" json:"kind"`
	Type          string `yaml:"type" json:"type"`
	Pattern       string `yaml:"pattern" json:"pattern"`
	RequiredValue string `yaml:"required_value" json:"required_value"`
	Command       string `yaml:"command" json:"command"`
}

type ruleFile struct {
	Rules []record `yaml:"rules" json:"rules"`
}

// LoadRules reads and validates a YAML or JSON rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	rules, err := ParseRules(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		if ce, ok := err.(*util.ConfigError); ok {
			ce.Source = path
			return nil, ce
		}
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes a rules document and validates it. Input starting with
// '{' is decoded as JSON even when isJSON is false.
func ParseRules(data []byte, isJSON bool) ([]Rule, error) {
	var f ruleFile
	if isJSON || bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(f.Rules))
	for _, rec := range f.Rules {
		kind := rec.Kind
		if kind == "" {
			kind = rec.Type
		}
		if k, err := ParseKind(kind); err == nil {
			kind = string(k)
		}
		pattern := rec.Pattern
		if pattern == "" {
			pattern = rec.RequiredValue
		}
		rules = append(rules, Rule{
			Name:        strings.TrimSpace(rec.Name),
			Description: rec.Description,
			Kind:        Kind(kind),
			Pattern:     pattern,
			Command:     strings.TrimSpace(rec.Command),
		})
	}
	return Compile(rules)
}

// Compile validates rules and precompiles regex patterns. All problems are
// reported together in one *util.ConfigError.
func Compile(rules []Rule) ([]Rule, error) {
	vb := util.NewValidationBuilder("rules")
	names := make(map[string]bool)
	out := make([]Rule, len(rules))

	for i, r := range rules {
		prefix := fmt.Sprintf("rule %d (%s)", i+1, r.Name)
		if r.Name == "" {
			vb.AddErrorf("%s: name is required", prefix)
		} else if names[r.Name] {
			vb.AddErrorf("%s: duplicate name", prefix)
		}
		names[r.Name] = true

		kind, err := ParseKind(string(r.Kind))
		if err != nil {
			vb.AddErrorf("%s: %v", prefix, err)
		}
		r.Kind = kind
		if r.Pattern == "" {
			vb.AddErrorf("%s: pattern is required", prefix)
		}

		switch kind {
		case RegexMatch:
			re, err := regexp.Compile("(?m)" + r.Pattern)
			if err != nil {
				vb.AddErrorf("%s: invalid regex: %v", prefix, err)
			}
			r.re = re
		case CommandCheck:
			if r.Command == "" {
				vb.AddErrorf("%s: command is required for command rules", prefix)
			}
		}
		out[i] = r
	}
	if err := vb.Build(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateRules reports whether rules are well formed.
func ValidateRules(rules []Rule) error {
	_, err := Compile(rules)
	return err
}

// DefaultRules returns the built-in baseline used when no rule file is given.
func DefaultRules() []Rule {
	rules, _ := Compile([]Rule{
		{
			Name:        "NTP Server Configured",
			Description: "Verify NTP server is configured",
			Kind:        MustContain,
			Pattern:     "ntp server",
		},
		{
			Name:        "SSH Version 2",
			Description: "Ensure SSH version 2 is enabled",
			Kind:        RegexMatch,
			Pattern:     `ip ssh version 2`,
		},
		{
			Name:        "No Telnet",
			Description: "Verify telnet is not enabled",
			Kind:        MustNotContain,
			Pattern:     "transport input telnet",
		},
		{
			Name:        "Logging Configured",
			Description: "Verify logging server is configured",
			Kind:        MustContain,
			Pattern:     "logging",
		},
		{
			Name:        "SNMP Community",
			Description: "Check for default SNMP community strings",
			Kind:        MustNotContain,
			Pattern:     "snmp-server community public",
		},
	})
	return rules
}

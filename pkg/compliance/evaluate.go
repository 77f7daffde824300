package compliance

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/newtron-network/newtcfg/pkg/util"
)

const (
	maxRegexEvidence = 5
	maxOutputPreview = 200
)

// RuleResult is the outcome of one rule against one configuration.
type RuleResult struct {
	Rule     Rule     `json:"rule"`
	Passed   bool     `json:"passed"`
	Skipped  bool     `json:"skipped,omitempty"`
	Message  string   `json:"message"`
	Evidence []string `json:"evidence,omitempty"`
}

// CommandRunner executes a command on a live device and returns its output.
type CommandRunner func(ctx context.Context, command string) (string, error)

// Evaluate checks text against rules. It does not touch any device: command
// rules are reported as skipped and count as not passed.
func Evaluate(text string, rules []Rule) []RuleResult {
	return EvaluateLive(context.Background(), text, rules, nil)
}

// EvaluateLive is Evaluate with command rules executed through run. A nil run
// skips command rules.
func EvaluateLive(ctx context.Context, text string, rules []Rule, run CommandRunner) []RuleResult {
	results := make([]RuleResult, 0, len(rules))
	for i := range rules {
		results = append(results, evaluateRule(ctx, text, &rules[i], run))
	}
	return results
}

func evaluateRule(ctx context.Context, text string, r *Rule, run CommandRunner) RuleResult {
	res := RuleResult{Rule: *r}
	res.Rule.re = nil

	switch r.Kind {
	case MustContain:
		if idx := strings.Index(text, r.Pattern); idx >= 0 {
			res.Passed = true
			res.Message = "Required pattern found: " + r.Pattern
			res.Evidence = []string{util.LineAt(text, idx)}
		} else {
			res.Message = "Missing required pattern: " + r.Pattern
		}

	case MustNotContain:
		if idx := strings.Index(text, r.Pattern); idx >= 0 {
			res.Message = "Forbidden pattern found: " + r.Pattern
			res.Evidence = []string{util.LineAt(text, idx)}
		} else {
			res.Passed = true
			res.Message = "Forbidden pattern not found"
		}

	case RegexMatch:
		re, err := r.compiled()
		if err != nil {
			res.Message = fmt.Sprintf("invalid regex: %v", err)
			break
		}
		if matches := re.FindAllString(text, maxRegexEvidence); len(matches) > 0 {
			res.Passed = true
			res.Message = "Pattern matched"
			res.Evidence = matches
		} else {
			res.Message = "Pattern not matched: " + r.Pattern
		}

	case CommandCheck:
		if run == nil {
			res.Skipped = true
			res.Message = "skipped: no live session"
			break
		}
		out, err := run(ctx, r.Command)
		if out != "" {
			res.Evidence = []string{util.Truncate(out, maxOutputPreview)}
		}
		switch {
		case err != nil:
			res.Message = fmt.Sprintf("command %q failed: %v", r.Command, err)
		case strings.Contains(out, r.Pattern):
			res.Passed = true
			res.Message = "Command validation passed"
		default:
			res.Message = "Command validation failed"
		}

	default:
		res.Message = fmt.Sprintf("unknown rule kind %q", r.Kind)
	}
	return res
}

// Score returns round(passed/total*100). Skipped rules count towards the
// total. With no results the score is 100 and a warning is returned.
func Score(results []RuleResult) (int, string) {
	if len(results) == 0 {
		return 100, "no rules defined; vacuously compliant"
	}
	passed, skipped := 0, 0
	for _, r := range results {
		switch {
		case r.Passed:
			passed++
		case r.Skipped:
			skipped++
		}
	}
	score := int(math.Round(float64(passed) * 100 / float64(len(results))))

	var warning string
	if skipped > 0 {
		warning = fmt.Sprintf("%d command rule(s) skipped: no live session", skipped)
	}
	return score, warning
}

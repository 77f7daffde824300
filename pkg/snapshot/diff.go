package snapshot

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff from a to b, or "" when their contents match.
func Diff(a, b *Snapshot) (string, error) {
	if a.ContentHash == b.ContentHash {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a.ConfigText),
		B:        difflib.SplitLines(b.ConfigText),
		FromFile: a.ID,
		ToFile:   b.ID,
		Context:  3,
	})
}

// DiffText diffs two configuration texts with the given labels.
func DiffText(fromLabel, from, toLabel, to string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	})
}

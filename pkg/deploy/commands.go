package deploy

import (
	"os"
	"strings"
)

// CommandSet is an ordered list of commands. It may hold ad hoc commands or
// the lines of a full configuration.
type CommandSet []string

// ParseCommandText splits text into commands. Lines are trimmed; blank lines
// and lines starting with '#' or any of commentPrefixes are dropped.
func ParseCommandText(text string, commentPrefixes ...string) CommandSet {
	var cmds CommandSet
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isComment(line, commentPrefixes) {
			continue
		}
		cmds = append(cmds, line)
	}
	return cmds
}

// LoadCommandFile reads a command file with ParseCommandText.
func LoadCommandFile(path string) (CommandSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCommandText(string(data)), nil
}

func isComment(line string, prefixes []string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

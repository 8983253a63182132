// Package exclude matches ancestry-qualified dependency identifiers against
// an ordered list of policy regexes.
package exclude

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// List is an ordered exclusion policy, read-only after load and safe for
// unsynchronized concurrent reads.
type List struct {
	patterns []*regexp.Regexp
}

// Load reads a newline-delimited policy file. Blank lines and lines starting
// with '#' are ignored. Any line that fails to compile is a fatal error: a
// malformed policy would silently under- or over-exclude.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exclusions: %w", err)
	}
	list, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Parse compiles policy text into a List. Each pattern is matched with
// full-string semantics: the whole exclusion ID must match, not a substring,
// otherwise ancestry scoping would leak across unrelated chains.
func Parse(text string) (*List, error) {
	var list List
	for i, line := range strings.Split(text, "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		re, err := regexp.Compile(`\A(?:` + entry + `)\z`)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern on line %d: %q: %w", i+1, entry, err)
		}
		list.patterns = append(list.patterns, re)
	}
	return &list, nil
}

// Match returns the first pattern (in file order) that fully matches the
// exclusion ID, or ok=false when the ID is not excluded.
func (l *List) Match(exclusionID string) (pattern string, ok bool) {
	if l == nil {
		return "", false
	}
	for _, re := range l.patterns {
		if re.MatchString(exclusionID) {
			return trimAnchors(re.String()), true
		}
	}
	return "", false
}

// Len returns the number of loaded patterns.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.patterns)
}

// Patterns returns the loaded pattern texts in file order.
func (l *List) Patterns() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.patterns))
	for i, re := range l.patterns {
		out[i] = trimAnchors(re.String())
	}
	return out
}

func trimAnchors(s string) string {
	s = strings.TrimPrefix(s, `\A(?:`)
	return strings.TrimSuffix(s, `)\z`)
}

package config

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern maps a regular expression to a tunnel URL. The expression must
// match the whole subject.
type Pattern struct {
	Raw    string
	Target string
	re     *regexp.Regexp
}

func NewPattern(raw, target string) (Pattern, error) {
	re, err := regexp.Compile(`^(?:` + raw + `)$`)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Raw: raw, Target: target, re: re}, nil
}

func (p Pattern) MatchString(s string) bool {
	return p.re != nil && p.re.MatchString(s)
}

// PatternList keeps the order patterns were written in; first match wins.
type PatternList struct {
	Patterns []Pattern
	// Skipped lists expressions that did not compile.
	Skipped []string
}

func (l *PatternList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of pattern to ssh url", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var raw, target string
		if err := node.Content[i].Decode(&raw); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&target); err != nil {
			return err
		}
		p, err := NewPattern(raw, target)
		if err != nil {
			l.Skipped = append(l.Skipped, raw)
			continue
		}
		l.Patterns = append(l.Patterns, p)
	}
	return nil
}

func (l PatternList) Match(subject string) (string, bool) {
	for _, p := range l.Patterns {
		if p.MatchString(subject) {
			return p.Target, true
		}
	}
	return "", false
}

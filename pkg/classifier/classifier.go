// Package classifier assigns free text from award records to one of the
// configured funding verticals.
package classifier

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYaml []byte

// DefaultVertical is returned when no rule matches.
const DefaultVertical = "Other"

type Rule struct {
	Vertical string   `yaml:"vertical"`
	Patterns []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type Classifier struct {
	rules []Rule
}

// New builds a classifier from the embedded rule file.
func New() (*Classifier, error) {
	var f ruleFile
	if err := yaml.Unmarshal(rulesYaml, &f); err != nil {
		return nil, fmt.Errorf("unmarshal classifier rules: %w", err)
	}

	return NewFromRules(f.Rules)
}

// NewFromRules builds a classifier from an explicit ordered rule list.
// Rule order is significant: the first matching rule wins.
func NewFromRules(rules []Rule) (*Classifier, error) {
	for i := range rules {
		if rules[i].Vertical == "" {
			return nil, fmt.Errorf("rule %d has no vertical", i)
		}
		for _, p := range rules[i].Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for %s: %w", p, rules[i].Vertical, err)
			}
			rules[i].compiled = append(rules[i].compiled, re)
		}
	}

	return &Classifier{rules: rules}, nil
}

// Classify concatenates the given text fields and returns the vertical of
// the first rule with a matching pattern, or DefaultVertical if none match.
func (c *Classifier) Classify(fields ...string) string {
	text := strings.Join(fields, " ")
	if strings.TrimSpace(text) == "" {
		return DefaultVertical
	}

	for _, rule := range c.rules {
		for _, re := range rule.compiled {
			if re.MatchString(text) {
				return rule.Vertical
			}
		}
	}

	return DefaultVertical
}

// Verticals returns the configured vertical names in rule order, with
// DefaultVertical appended.
func (c *Classifier) Verticals() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range c.rules {
		if !seen[rule.Vertical] {
			seen[rule.Vertical] = true
			out = append(out, rule.Vertical)
		}
	}
	return append(out, DefaultVertical)
}

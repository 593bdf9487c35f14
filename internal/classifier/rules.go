package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleKind tags a keyword rule with the outcome it produces.
type RuleKind string

const (
	KindRefund           RuleKind = "refund"
	KindTerminalTopUp    RuleKind = "terminal_topup"
	KindOtherNonRevenue  RuleKind = "other_non_revenue"
	KindRevenue          RuleKind = "revenue"
	KindAmbiguousContext RuleKind = "ambiguous_context"
)

var knownKinds = map[RuleKind]bool{
	KindRefund:           true,
	KindTerminalTopUp:    true,
	KindOtherNonRevenue:  true,
	KindRevenue:          true,
	KindAmbiguousContext: true,
}

var ErrInvalidRules = errors.New("invalid classifier rules")

type Rule struct {
	Kind     RuleKind `yaml:"kind"`
	Reason   string   `yaml:"reason"`
	Keywords []string `yaml:"keywords"`
}

type RuleTable struct {
	Rules []Rule `yaml:"rules"`
}

//go:embed rules.yaml
var defaultRulesYAML []byte

// DefaultRules returns the built-in vocabulary.
func DefaultRules() *RuleTable {
	t, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded classifier rules: %v", err))
	}
	return t
}

// LoadRules reads a rule table from a YAML file.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule table. Keywords are
// lower-cased and blank ones dropped.
func ParseRules(data []byte) (*RuleTable, error) {
	var t RuleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if len(t.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRules)
	}

	for i := range t.Rules {
		r := &t.Rules[i]
		if !knownKinds[r.Kind] {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRules, r.Kind)
		}
		keywords := r.Keywords[:0]
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keywords = append(keywords, k)
			}
		}
		r.Keywords = keywords
	}
	return &t, nil
}

// match returns the first rule of kind with a keyword contained in text.
func (t *RuleTable) match(kind RuleKind, text string) (Rule, bool) {
	if text == "" {
		return Rule{}, false
	}
	for _, r := range t.Rules {
		if r.Kind != kind {
			continue
		}
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

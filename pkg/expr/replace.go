package expr

import (
	"fmt"
	"regexp"
)

// ReplaceRule is one (pattern, replacement) pair of a replace chain.
// Replacement strings support backreferences ($1, ${name}).
type ReplaceRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// ReplaceChain is an ordered list of replace rules. Two modes exist:
//
//   - FirstMatchOnly=false (the default for blocks) applies every rule
//     in order, each re-matching against the progressively replaced
//     value. This is deliberately not idempotent: chaining 1→2 and 2→3
//     turns "1" into "3".
//   - FirstMatchOnly=true stops at the first rule whose pattern
//     matches and applies only that one (switch/case semantics). Rules
//     that do not match are skipped, not errors.
type ReplaceChain struct {
	Rules          []ReplaceRule
	FirstMatchOnly bool
}

// CompileChain compiles a list of [pattern, replacement] pairs into a
// chain. A pair with fewer than two elements is rejected.
func CompileChain(pairs [][]string, firstMatchOnly bool) (ReplaceChain, error) {
	chain := ReplaceChain{FirstMatchOnly: firstMatchOnly}
	for i, pair := range pairs {
		if len(pair) < 2 {
			return chain, fmt.Errorf("replace rule %d: want [pattern, replacement], got %d elements", i, len(pair))
		}
		re, err := regexp.Compile(pair[0])
		if err != nil {
			return chain, fmt.Errorf("replace rule %d: %w", i, err)
		}
		chain.Rules = append(chain.Rules, ReplaceRule{Pattern: re, Replacement: pair[1]})
	}
	return chain, nil
}

// Empty reports whether the chain has no rules.
func (c ReplaceChain) Empty() bool { return len(c.Rules) == 0 }

// Apply runs the chain over the value.
func (c ReplaceChain) Apply(v string) string {
	for _, rule := range c.Rules {
		if c.FirstMatchOnly {
			if rule.Pattern.MatchString(v) {
				return rule.Pattern.ReplaceAllString(v, rule.Replacement)
			}
			continue
		}
		v = rule.Pattern.ReplaceAllString(v, rule.Replacement)
	}
	return v
}

package gate

import (
	"context"
	"regexp"
)

// PatternRule is a single named attack pattern the Scanner matches
// against raw request text.
type PatternRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity float64
}

// Scanner is the default L1 Scan implementation: a list of compiled
// patterns evaluated in order, the way the teacher's
// permissions.Checker evaluates its deny/allow pattern lists in order
// and keeps the strongest match.
type Scanner struct {
	rules []PatternRule
}

// NewScanner builds a Scanner over rules. Unlike permissions.Checker's
// first-match-wins order, every rule is evaluated and the match's
// severity becomes the threat score, since more than one pattern can
// legitimately fire on the same text.
func NewScanner(rules []PatternRule) *Scanner {
	return &Scanner{rules: rules}
}

// DefaultRules returns the built-in prompt-injection pattern set.
func DefaultRules() []PatternRule {
	return []PatternRule{
		{Name: "override-instructions", Pattern: regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) instructions`), Severity: 0.95},
		{Name: "disregard-instructions", Pattern: regexp.MustCompile(`(?i)disregard (all|any) (previous|prior) (instructions|rules)`), Severity: 0.95},
		{Name: "reveal-system-prompt", Pattern: regexp.MustCompile(`(?i)(reveal|show|print|leak) (the )?system prompt`), Severity: 0.9},
		{Name: "developer-mode", Pattern: regexp.MustCompile(`(?i)(developer|dan|jailbreak) mode`), Severity: 0.8},
		{Name: "pretend-no-restrictions", Pattern: regexp.MustCompile(`(?i)pretend (you have|there are) no (restrictions|rules|limits)`), Severity: 0.85},
		{Name: "exfiltrate-secrets", Pattern: regexp.MustCompile(`(?i)(exfiltrate|dump|print) (the )?(api key|secret|credentials|password)`), Severity: 0.9},
	}
}

// Scan matches text against every rule and returns the highest
// severity among the matches.
func (s *Scanner) Scan(_ context.Context, text string) (ScanResult, error) {
	var matched []string
	var score float64

	for _, rule := range s.rules {
		if rule.Pattern.MatchString(text) {
			matched = append(matched, rule.Name)
			if rule.Severity > score {
				score = rule.Severity
			}
		}
	}

	return ScanResult{
		ThreatDetected:  len(matched) > 0,
		Score:           score,
		MatchedPatterns: matched,
	}, nil
}

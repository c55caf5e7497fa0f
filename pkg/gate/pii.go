package gate

import (
	"context"
	"regexp"
)

type piiKind struct {
	kind    string
	pattern *regexp.Regexp
}

// defaultPIIKinds covers the entity kinds spec.md's test fixtures
// exercise (email) plus the other obvious structured-PII shapes a
// redaction layer would not ship without.
var defaultPIIKinds = []piiKind{
	{kind: "EMAIL", pattern: regexp.MustCompile(`[[:alnum:]._%+-]+@[[:alnum:].-]+\.[[:alpha:]]{2,}`)},
	{kind: "PHONE", pattern: regexp.MustCompile(`\b(?:\+?\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{kind: "SSN", pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{kind: "CREDIT_CARD", pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
}

// Redactor is the default L4 PII implementation: regex-based entity
// detection and token substitution.
type Redactor struct {
	kinds []piiKind
}

// NewRedactor builds a Redactor over the given kinds, or the defaults
// when none are given.
func NewRedactor(kinds ...piiKind) *Redactor {
	if len(kinds) == 0 {
		kinds = defaultPIIKinds
	}
	return &Redactor{kinds: kinds}
}

// Redact replaces every detected entity with a `[REDACTED:<KIND>]`
// token. Original text for a redacted span is never retained.
func (r *Redactor) Redact(_ context.Context, text string) (PIIResult, error) {
	seen := make(map[string]bool)
	var entities []string

	for _, k := range r.kinds {
		if k.pattern.MatchString(text) {
			text = k.pattern.ReplaceAllString(text, "[REDACTED:"+k.kind+"]")
			if !seen[k.kind] {
				seen[k.kind] = true
				entities = append(entities, k.kind)
			}
		}
	}

	return PIIResult{RedactedText: text, Entities: entities}, nil
}

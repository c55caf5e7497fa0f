// Package chunker implements the Semantic Chunker (spec.md §4.9):
// recursive decontamination of text that fails an audit. Full text is
// tried first; on failure it is split paragraph -> sentence and each
// piece re-audited, so only the minimum contaminated surface is
// excised rather than the whole request.
package chunker

import (
	"context"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// DefaultMaxDepth bounds the recursion depth (spec.md §6
// chunker.max_depth).
const DefaultMaxDepth = 4

// AuditFunc reports whether chunk is clean. It is supplied by the
// caller (typically the Gate Pipeline or Async Auditor) and must be
// total: every call returns, it never blocks indefinitely.
type AuditFunc func(ctx context.Context, chunk string) bool

// ManifestEntry records one wholesale redaction made because the
// recursion bound was reached before a piece could be proven clean.
type ManifestEntry struct {
	Depth  int    `json:"depth"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is the outcome of one Decontaminate call.
type Result struct {
	// Clean is true only on the fast path: auditFn accepted the
	// original text whole, with no splitting performed.
	Clean     bool
	CleanText string
	Manifest  []ManifestEntry
}

// Chunker recursively decontaminates text that fails an audit
// function, bounding the total number of audit calls by
// 2^maxDepth.
type Chunker struct {
	maxDepth int
}

// New builds a Chunker bounded at maxDepth recursion levels
// (defaulting to DefaultMaxDepth when maxDepth <= 0).
func New(maxDepth int) *Chunker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Chunker{maxDepth: maxDepth}
}

// Decontaminate tries text whole first; on failure it splits
// recursively (depth 0: paragraph/line; depth >= 1: sentence),
// re-auditing each piece, until every surviving piece is clean or the
// recursion bound redacts it wholesale. The total number of calls to
// audit across the whole operation never exceeds 2^maxDepth.
func (c *Chunker) Decontaminate(ctx context.Context, text string, audit AuditFunc) Result {
	budget := 1 << uint(c.maxDepth)
	calls := 0

	checked := func(chunk string) bool {
		calls++
		if calls > budget {
			return false
		}
		return audit(ctx, chunk)
	}

	if checked(text) {
		return Result{Clean: true, CleanText: text}
	}

	cleanText, manifest := c.decontaminate(ctx, text, 0, checked)
	return Result{CleanText: cleanText, Manifest: manifest}
}

func (c *Chunker) decontaminate(ctx context.Context, text string, depth int, checked func(string) bool) (string, []ManifestEntry) {
	if depth >= c.maxDepth {
		return "", []ManifestEntry{{Depth: depth, Text: text, Reason: "recursion depth bound reached"}}
	}

	pieces, sep := split(text, depth)
	if len(pieces) <= 1 {
		return c.decontaminate(ctx, text, depth+1, checked)
	}

	var kept []string
	var manifest []ManifestEntry
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if checked(piece) {
			kept = append(kept, piece)
			continue
		}
		sub, subManifest := c.decontaminate(ctx, piece, depth+1, checked)
		if sub != "" {
			kept = append(kept, sub)
		}
		manifest = append(manifest, subManifest...)
	}

	return strings.Join(kept, sep), manifest
}

// split divides text into pieces at the given depth. Depth 0 splits on
// double newlines, falling back to single newlines when no blank line
// separates paragraphs; depth >= 1 splits on Unicode sentence
// boundaries. The rejoin separator is always the canonical one for the
// depth (spec.md §4.9), independent of which delimiter the split used.
func split(text string, depth int) (pieces []string, sep string) {
	if depth == 0 {
		if strings.Contains(text, "\n\n") {
			return strings.Split(text, "\n\n"), "\n\n"
		}
		return strings.Split(text, "\n"), "\n\n"
	}
	return splitSentences(text), " "
}

func splitSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		s := strings.TrimSpace(seg.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

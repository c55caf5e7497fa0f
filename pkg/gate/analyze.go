package gate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/admission-core/pkg/embed"
	"github.com/docker/admission-core/pkg/normalize"
	"github.com/docker/admission-core/pkg/vectorindex"
)

const (
	// defaultAttackThreshold is the cosine-distance cutoff below which a
	// neighbor is close enough to call the request an attack outright.
	// spec.md §4.3 names the threshold but leaves its value to the
	// implementation; 0.3 keeps only near-duplicates of known attacks in
	// this band.
	defaultAttackThreshold = 0.30
	// defaultSuspiciousThreshold is the wider band counted toward
	// vector_matches and the "suspicious" classification.
	defaultSuspiciousThreshold = 0.60

	defaultSeverity = 1.0
)

// VectorAnalyzer is the default L2 Analyze implementation: it embeds
// the normalized text with the cheap char-code proxy embedder and
// scores it against the attack-pattern index.
type VectorAnalyzer struct {
	embedder           embed.Embedder
	index              *vectorindex.Index
	k                  int
	attackThreshold     float64
	suspiciousThreshold float64
}

// AnalyzerOption configures a VectorAnalyzer.
type AnalyzerOption func(*VectorAnalyzer)

func WithAnalyzerK(k int) AnalyzerOption {
	return func(a *VectorAnalyzer) { a.k = k }
}

func WithThresholds(attack, suspicious float64) AnalyzerOption {
	return func(a *VectorAnalyzer) {
		a.attackThreshold = attack
		a.suspiciousThreshold = suspicious
	}
}

// NewVectorAnalyzer builds a VectorAnalyzer over index using embedder.
func NewVectorAnalyzer(embedder embed.Embedder, index *vectorindex.Index, opts ...AnalyzerOption) *VectorAnalyzer {
	a := &VectorAnalyzer{
		embedder:            embedder,
		index:               index,
		k:                   5,
		attackThreshold:     defaultAttackThreshold,
		suspiciousThreshold: defaultSuspiciousThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze implements the scoring algebra from spec.md §4.3.
func (a *VectorAnalyzer) Analyze(ctx context.Context, text string) (AnalyzeResult, error) {
	normalized := normalize.Normalize(text)

	if normalize.IsEmptyButRawNonEmpty(text, normalized) {
		return AnalyzeResult{Classification: "suspicious", Confidence: 0.8}, nil
	}

	if normalized == "" {
		return AnalyzeResult{Classification: "informational", Confidence: 0}, nil
	}

	vector, err := a.embedder.Embed(ctx, normalized)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("gate: analyze embed: %w", err)
	}

	results, err := a.index.Search(vector, a.k)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("gate: analyze search: %w", err)
	}

	if len(results) == 0 {
		return AnalyzeResult{Classification: "informational", Confidence: 0}, nil
	}

	vectorMatches := 0
	bestDistance := results[0].Distance
	bestIsAttack := false
	maxSeverity := 0.0

	for _, r := range results {
		if r.Distance < bestDistance {
			bestDistance = r.Distance
		}
		if r.Distance < a.suspiciousThreshold {
			vectorMatches++
		}
		if r.Distance < a.attackThreshold {
			bestIsAttack = true
			if sev := severityOf(r.Metadata); sev > maxSeverity {
				maxSeverity = sev
			}
		}
	}

	switch {
	case bestIsAttack:
		confidence := (1 - bestDistance) * (0.5 + 0.5*maxSeverity)
		return AnalyzeResult{
			Classification: "attack",
			Confidence:     confidence,
			VectorMatches:  vectorMatches,
		}, nil
	case bestDistance < a.suspiciousThreshold:
		confidence := (1 - bestDistance) * 0.6
		return AnalyzeResult{
			Classification: "suspicious",
			Confidence:     confidence,
			VectorMatches:  vectorMatches,
		}, nil
	default:
		return AnalyzeResult{Classification: "informational", Confidence: 0, VectorMatches: vectorMatches}, nil
	}
}

func severityOf(metadata map[string]string) float64 {
	raw, ok := metadata["severity"]
	if !ok {
		return defaultSeverity
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultSeverity
	}
	return v
}

package gate

import "context"

// ScanResult is L1's verdict.
type ScanResult struct {
	ThreatDetected  bool
	Score           float64
	MatchedPatterns []string
}

// ScanChecker is the L1 Scan capability: a fast, fail-open pattern
// match over the raw request text.
type ScanChecker interface {
	Scan(ctx context.Context, text string) (ScanResult, error)
}

// AnalyzeResult is L2's verdict.
type AnalyzeResult struct {
	Classification string
	Confidence     float64
	VectorMatches  int
	DTWScore       float64
}

// Analyzer is the L2 Analyze capability: nearest-neighbor scoring
// against the attack-pattern index.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (AnalyzeResult, error)
}

// SafeResult is L3's verdict.
type SafeResult struct {
	Verdict     Verdict
	BlockReason string
}

// SafetyChecker is the L3 Safety capability: fail-closed, never
// retried.
type SafetyChecker interface {
	Safe(ctx context.Context, text string, priorScore float64) (SafeResult, error)
}

// PIIResult is L4's verdict.
type PIIResult struct {
	RedactedText string
	Entities     []string
}

// PIIRedactor is the L4 PII capability.
type PIIRedactor interface {
	Redact(ctx context.Context, text string) (PIIResult, error)
}

package gate

import "context"

// ThresholdSafety is the default L3 Safety implementation: it
// classifies max(L1.score, L2.score) against the configured
// block/flag thresholds. Being fail-closed, any error from this
// layer (or a wrapping transport) must surface as BLOCKED — callers
// never retry it and never route it through the circuit breaker's
// retry variant.
type ThresholdSafety struct {
	blockScore float64
	flagScore  float64
}

// NewThresholdSafety builds a ThresholdSafety classifier.
func NewThresholdSafety(blockScore, flagScore float64) *ThresholdSafety {
	return &ThresholdSafety{blockScore: blockScore, flagScore: flagScore}
}

// Safe classifies priorScore (max(L1.score, L2.score)) into a verdict.
func (s *ThresholdSafety) Safe(_ context.Context, _ string, priorScore float64) (SafeResult, error) {
	v := classify(priorScore, s.flagScore, s.blockScore)
	if v == Blocked {
		return SafeResult{Verdict: Blocked, BlockReason: "threat score exceeded block threshold"}, nil
	}
	return SafeResult{Verdict: v}, nil
}

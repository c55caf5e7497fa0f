package gate

import (
	"context"
	"fmt"

	"github.com/docker/admission-core/pkg/healthserver"
	"github.com/docker/admission-core/pkg/transport"
	"github.com/docker/admission-core/pkg/vectorindex"
	"github.com/docker/admission-core/pkg/witness"
)

// The methods below adapt Pipeline onto transport.Engine and
// healthserver.Provider, so the same pipeline instance backs both the
// MCP tool surface and the health endpoint.

var (
	_ transport.Engine      = (*Pipeline)(nil)
	_ healthserver.Provider = (*Pipeline)(nil)
)

// Scan runs just the L1 layer, for direct MCP tool access.
func (p *Pipeline) Scan(ctx context.Context, text string) (transport.ScanOutput, error) {
	lv := p.runScan(ctx, text)
	matched, _ := lv.Details["matched_patterns"].([]string)
	return transport.ScanOutput{
		Blocked:        lv.Score >= p.cfg.Thresholds.BlockScore,
		Score:          lv.Score,
		MatchedPattern: matched,
	}, nil
}

// Analyze runs just the L2 layer.
func (p *Pipeline) Analyze(ctx context.Context, text string) (transport.AnalyzeOutput, error) {
	lv := p.runAnalyze(ctx, text)
	classification, _ := lv.Details["classification"].(string)
	return transport.AnalyzeOutput{
		Classification: classification,
		Confidence:     lv.Score,
	}, nil
}

// Safe runs the full pipeline and reports only the final verdict,
// matching the L3 capability's fail-closed contract.
func (p *Pipeline) Safe(ctx context.Context, text string) (transport.SafeOutput, error) {
	result := p.Process(ctx, text)
	verdict := "allow"
	if result.IsBlocked {
		verdict = "block"
	}
	return transport.SafeOutput{Verdict: verdict, BlockReason: result.BlockReason}, nil
}

// Pii runs just the L4 layer.
func (p *Pipeline) Pii(ctx context.Context, text string) (transport.PiiOutput, error) {
	lv := p.runPII(ctx, text)
	redacted, _ := lv.Details["redacted_text"].(string)
	entities, _ := lv.Details["entities"].([]string)
	return transport.PiiOutput{RedactedText: redacted, Entities: entities}, nil
}

// Learn embeds in.Text and inserts it into the attack-pattern index,
// the adaptive-learning path features.enable_learning gates
// (spec.md §6).
func (p *Pipeline) Learn(ctx context.Context, in transport.LearnInput) (transport.LearnOutput, error) {
	if !p.cfg.Features.EnableLearning {
		return transport.LearnOutput{Accepted: false}, nil
	}

	vector, err := p.embedder.Embed(ctx, in.Text)
	if err != nil {
		return transport.LearnOutput{}, fmt.Errorf("gate: learn embed: %w", err)
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["label"] = in.Label

	if err := p.patterns.Insert(vectorindex.PatternEntry{
		ID:       contentHashID(in.Text),
		Vector:   vector,
		Metadata: metadata,
	}); err != nil {
		return transport.LearnOutput{}, fmt.Errorf("gate: learn insert: %w", err)
	}

	if p.log != nil {
		p.log.Record(witness.Computation, ContentHash(in.Text), map[string]string{"op": "learn"})
	}

	return transport.LearnOutput{Accepted: true}, nil
}

// Stats reports the pipeline's health for MCP clients that cannot
// reach the HTTP health endpoint.
func (p *Pipeline) Stats(context.Context) (transport.StatsOutput, error) {
	status := p.Status()
	return transport.StatsOutput{
		PatternCount:   status.IndexSizes["patterns"],
		BreakerState:   status.Breaker["scan"],
		WitnessEntries: status.Witness.BufferedEntries,
	}, nil
}

// Status implements healthserver.Provider.
func (p *Pipeline) Status() healthserver.Status {
	status := healthserver.Status{
		Breaker: map[string]string{
			"scan":    p.scanBreaker.State().String(),
			"analyze": p.anaBreaker.State().String(),
			"pii":     p.piiBreaker.State().String(),
		},
		IndexSizes: map[string]int{},
	}
	if p.patterns != nil {
		status.IndexSizes["patterns"] = p.patterns.Len()
	}
	if p.log != nil {
		status.Witness = p.log.GetStatus()
	}
	return status
}

func contentHashID(text string) string {
	return ContentHash(text)
}

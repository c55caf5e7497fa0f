package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/admission-core/pkg/breaker"
	"github.com/docker/admission-core/pkg/coherence"
	"github.com/docker/admission-core/pkg/config"
	"github.com/docker/admission-core/pkg/embed"
	"github.com/docker/admission-core/pkg/normalize"
	"github.com/docker/admission-core/pkg/session"
	"github.com/docker/admission-core/pkg/vectorindex"
	"github.com/docker/admission-core/pkg/witness"
)

// tracer emits one span per Gate Pipeline run and one per layer,
// carrying the layer name and recorded latency as attributes so a
// collector can chart the fast-path budget the way the teacher's
// cmd/root/otel.go wires up request spans.
var tracer = otel.Tracer("github.com/docker/admission-core/pkg/gate")

const (
	scanBudget    = 2 * time.Millisecond
	analyzeBudget = 8 * time.Millisecond
	safetyBudget  = 5 * time.Millisecond
	piiBudget     = 5 * time.Millisecond
)

// Pipeline is the Gate Pipeline: Scan, Analyze, the Coherence Gate,
// Safety, and PII, run in that order.
type Pipeline struct {
	scan     ScanChecker
	analyze  Analyzer
	coherent *coherence.Gate
	safety   SafetyChecker
	pii      PIIRedactor

	patterns *vectorindex.Index
	embedder embed.Embedder

	scanBreaker *breaker.Breaker
	anaBreaker  *breaker.Breaker
	piiBreaker  *breaker.Breaker
	retry       breaker.RetryPolicy

	cfg    config.Config
	threat *session.ThreatState
	log    *witness.Log
}

// New builds a Pipeline from cfg, wiring the default Scan/Analyze/
// Safety/PII implementations over index and embedder. threat and log
// may be nil: a nil ThreatState disables phase-boundary aborts, a nil
// witness log disables the "witness_entries" field in Stats.
func New(cfg config.Config, index *vectorindex.Index, coherenceGate *coherence.Gate, embedder embed.Embedder, threat *session.ThreatState, log *witness.Log) *Pipeline {
	retry := breaker.RetryPolicy{
		BaseDelay:  time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		Factor:     cfg.Retry.Factor,
		Jitter:     cfg.Retry.Jitter,
		MaxRetries: cfg.Retry.MaxRetries,
	}

	breakerOpts := func() []breaker.Option {
		return []breaker.Option{
			breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			breaker.WithResetTimeout(time.Duration(cfg.Breaker.ResetTimeoutMs) * time.Millisecond),
		}
	}

	return &Pipeline{
		scan:        NewScanner(DefaultRules()),
		analyze:     NewVectorAnalyzer(embedder, index, WithAnalyzerK(cfg.Coherence.K)),
		coherent:    coherenceGate,
		safety:      NewThresholdSafety(cfg.Thresholds.BlockScore, cfg.Thresholds.FlagScore),
		pii:         NewRedactor(),
		patterns:    index,
		embedder:    embedder,
		scanBreaker: breaker.New(breakerOpts()...),
		anaBreaker:  breaker.New(breakerOpts()...),
		piiBreaker:  breaker.New(breakerOpts()...),
		retry:       retry,
		cfg:         cfg,
		threat:      threat,
		log:         log,
	}
}

// Process runs text through every layer in order and returns the
// DefenceResult.
func (p *Pipeline) Process(ctx context.Context, text string) *DefenceResult {
	ctx, span := tracer.Start(ctx, "gate.Process")
	defer span.End()

	start := time.Now()
	result := &DefenceResult{}

	l1 := p.runScan(ctx, text)
	result.Verdicts = append(result.Verdicts, l1)
	if abort := p.phaseAbort(result); abort != nil {
		return p.finish(span, result, start)
	}

	l2 := p.runAnalyze(ctx, text)
	result.Verdicts = append(result.Verdicts, l2)
	if abort := p.phaseAbort(result); abort != nil {
		return p.finish(span, result, start)
	}

	p.logCoherence(ctx, text)

	priorScore := l1.Score
	if l2.Score > priorScore {
		priorScore = l2.Score
	}

	l3 := p.runSafety(ctx, text, priorScore)
	result.Verdicts = append(result.Verdicts, l3)
	if l3.Score >= p.cfg.Thresholds.BlockScore || l3.Error != "" {
		result.Verdict = Blocked
		result.IsBlocked = true
		result.BlockReason = blockReasonOf(l3)
		result.SafeText = ""
		return p.finish(span, result, start)
	}

	l4 := p.runPII(ctx, text)
	result.Verdicts = append(result.Verdicts, l4)
	if !l4.Passed {
		result.Verdict = Blocked
		result.IsBlocked = true
		result.BlockReason = "PII gate internal error"
		result.SafeText = ""
		return p.finish(span, result, start)
	}

	verdict := classify(priorScore, p.cfg.Thresholds.FlagScore, p.cfg.Thresholds.BlockScore)
	result.Verdict = verdict
	result.IsBlocked = verdict == Blocked
	if result.IsBlocked {
		result.SafeText = ""
		if result.BlockReason == "" {
			result.BlockReason = "threat score exceeded block threshold"
		}
	} else {
		result.SafeText, _ = l4.Details["redacted_text"].(string)
	}

	return p.finish(span, result, start)
}

func (p *Pipeline) finish(span trace.Span, result *DefenceResult, start time.Time) *DefenceResult {
	result.TotalLatency = time.Since(start)
	span.SetAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.Bool("blocked", result.IsBlocked),
		attribute.Int64("total_latency_ms", result.TotalLatency.Milliseconds()),
	)
	if result.TotalLatency > time.Duration(p.cfg.Timeouts.FastPathMs)*time.Millisecond {
		span.SetAttributes(attribute.Bool("budget_exceeded", true))
		slog.Warn("gate: fast-path budget exceeded", "total_latency", result.TotalLatency, "budget_ms", p.cfg.Timeouts.FastPathMs)
	}
	return result
}

// phaseAbort checks the shared ThreatState at a layer boundary. A
// prior async-auditor escalation turns the pipeline into an immediate
// BLOCKED result, matching spec.md §4.5's "checks this flag at every
// phase boundary and aborts before the next phase".
func (p *Pipeline) phaseAbort(result *DefenceResult) *DefenceResult {
	if p.threat == nil || !p.threat.Escalated() {
		return nil
	}
	result.Verdict = Blocked
	result.IsBlocked = true
	result.SafeText = ""
	result.BlockReason = p.threat.Reason()
	return result
}

func blockReasonOf(l3 LayerVerdict) string {
	if l3.Error != "" {
		return "Safety gate internal error"
	}
	if reason, ok := l3.Details["block_reason"].(string); ok && reason != "" {
		return reason
	}
	return "threat score exceeded block threshold"
}

func (p *Pipeline) runScan(ctx context.Context, text string) LayerVerdict {
	ctx, span := tracer.Start(ctx, "gate.scan")
	defer span.End()

	start := time.Now()
	var res ScanResult
	err := p.scanBreaker.DoWithRetry(ctx, p.retry, func(ctx context.Context) error {
		r, err := p.scan.Scan(ctx, text)
		res = r
		return err
	})

	lv := LayerVerdict{Layer: "scan", Latency: time.Since(start), Passed: true}
	if err != nil {
		lv.Error = err.Error()
		lv.Score = 0
	} else {
		lv.Score = res.Score
		lv.Details = map[string]any{"threat_detected": res.ThreatDetected, "matched_patterns": res.MatchedPatterns}
	}
	annotateLayer(span, lv)
	warnIfOverBudget("scan", lv.Latency, scanBudget)
	return lv
}

func (p *Pipeline) runAnalyze(ctx context.Context, text string) LayerVerdict {
	ctx, span := tracer.Start(ctx, "gate.analyze")
	defer span.End()

	start := time.Now()
	var res AnalyzeResult
	err := p.anaBreaker.DoWithRetry(ctx, p.retry, func(ctx context.Context) error {
		r, err := p.analyze.Analyze(ctx, text)
		res = r
		return err
	})

	lv := LayerVerdict{Layer: "analyze", Latency: time.Since(start), Passed: true}
	if err != nil {
		lv.Error = err.Error()
		lv.Score = 0
	} else {
		lv.Score = res.Confidence
		lv.Details = map[string]any{
			"classification": res.Classification,
			"vector_matches": res.VectorMatches,
			"dtw_score":      res.DTWScore,
		}
	}
	annotateLayer(span, lv)
	warnIfOverBudget("analyze", lv.Latency, analyzeBudget)
	return lv
}

func (p *Pipeline) runSafety(ctx context.Context, text string, priorScore float64) LayerVerdict {
	_, span := tracer.Start(ctx, "gate.safety")
	defer span.End()

	start := time.Now()
	res, err := p.safety.Safe(ctx, text, priorScore)

	lv := LayerVerdict{Layer: "safety", Latency: time.Since(start)}
	if err != nil {
		lv.Passed = false
		lv.Error = err.Error()
		lv.Score = 1
		lv.Details = map[string]any{"block_reason": "Safety gate internal error"}
	} else {
		lv.Passed = res.Verdict != Blocked
		lv.Score = priorScore
		lv.Details = map[string]any{"block_reason": res.BlockReason}
	}
	annotateLayer(span, lv)
	warnIfOverBudget("safety", lv.Latency, safetyBudget)
	return lv
}

func (p *Pipeline) runPII(ctx context.Context, text string) LayerVerdict {
	ctx, span := tracer.Start(ctx, "gate.pii")
	defer span.End()

	start := time.Now()
	var res PIIResult
	err := p.piiBreaker.DoWithRetry(ctx, p.retry, func(ctx context.Context) error {
		r, err := p.pii.Redact(ctx, text)
		res = r
		return err
	})

	lv := LayerVerdict{Layer: "pii", Latency: time.Since(start), Passed: true}
	if err != nil {
		if p.cfg.Features.FailOpenDetection {
			lv.Error = err.Error()
			lv.Details = map[string]any{"redacted_text": text}
		} else {
			lv.Passed = false
			lv.Error = err.Error()
		}
	} else {
		lv.Details = map[string]any{"redacted_text": res.RedactedText, "entities": res.Entities}
	}
	annotateLayer(span, lv)
	warnIfOverBudget("pii", lv.Latency, piiBudget)
	return lv
}

// annotateLayer records a layer's outcome on its span, the per-layer
// counterpart to finish's pipeline-wide attributes.
func annotateLayer(span trace.Span, lv LayerVerdict) {
	span.SetAttributes(
		attribute.String("layer", lv.Layer),
		attribute.Float64("score", lv.Score),
		attribute.Bool("passed", lv.Passed),
		attribute.Int64("latency_ms", lv.Latency.Milliseconds()),
	)
	if lv.Error != "" {
		span.SetAttributes(attribute.String("error", lv.Error))
	}
}

// logCoherence evaluates the Coherence Gate for audit logging only.
// Its decision never mutates the verdict (spec.md §4.4).
func (p *Pipeline) logCoherence(ctx context.Context, text string) {
	if p.coherent == nil || p.embedder == nil {
		return
	}

	normalized := normalize.Normalize(text)
	if normalized == "" {
		return
	}

	vector, err := p.embedder.Embed(ctx, normalized)
	if err != nil {
		slog.Warn("gate: coherence embed failed", "error", err)
		return
	}

	decision := p.coherent.Evaluate(vector)
	slog.Debug("gate: coherence decision",
		"route", decision.Route,
		"lambda", decision.Lambda,
		"threshold", decision.Threshold,
		"db_size", decision.DBSize,
		"reason", decision.Reason,
	)
}

func warnIfOverBudget(layer string, latency, budget time.Duration) {
	if latency > budget {
		slog.Warn("gate: layer budget exceeded", "layer", layer, "latency", latency, "budget", budget)
	}
}

// ContentHash computes the SHA-256 hex digest used for a Handoff's
// content_hash (spec.md §4.7).
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

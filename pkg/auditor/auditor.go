// Package auditor implements the out-of-band Async Auditor: it
// computes three independent discriminants over the *semantic*
// embedding (never the scanner's char-code proxy), applies 2-of-3
// consensus, and escalates the shared session ThreatState on a
// confirmed threat. It never blocks the request that triggered it.
package auditor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/docker/admission-core/pkg/coherence"
	"github.com/docker/admission-core/pkg/config"
	"github.com/docker/admission-core/pkg/embed"
	"github.com/docker/admission-core/pkg/mincut"
	"github.com/docker/admission-core/pkg/session"
	"github.com/docker/admission-core/pkg/vectorindex"
)

const auditK = 5

// Discriminants is the raw measurement set an Audit run produces.
type Discriminants struct {
	PartitionRatio float64
	RatioAvailable bool
	Lambda         float64
	StarLambda     float64
}

// Verdict is the outcome of one Audit call.
type Verdict struct {
	Escalate      bool
	Votes         int
	Available     int
	Reason        string
	Discriminants Discriminants
}

// Auditor runs the three discriminants and votes.
type Auditor struct {
	embedder       embed.Embedder
	coherenceIndex *vectorindex.Index
	cleanIndex     *vectorindex.Index // optional; nil disables the partition-ratio discriminant
	k              int

	ratioThreshold  float64
	lambdaThreshold float64
	starThreshold   float64

	threat *session.ThreatState
}

// New builds an Auditor. cleanIndex may be nil if no clean-reference
// index is available, in which case consensus runs over N=2
// discriminants instead of 3.
func New(embedder embed.Embedder, coherenceIndex, cleanIndex *vectorindex.Index, cfg config.Auditor, threat *session.ThreatState) *Auditor {
	return &Auditor{
		embedder:        embedder,
		coherenceIndex:  coherenceIndex,
		cleanIndex:      cleanIndex,
		k:               auditK,
		ratioThreshold:  cfg.PartitionRatioThreshold,
		lambdaThreshold: cfg.LambdaThresholdDefault,
		starThreshold:   cfg.StarCutThreshold,
		threat:          threat,
	}
}

// Audit embeds text and votes across the available discriminants. It
// is meant to be run on a detached goroutine by the caller; it never
// returns an error that should block the in-flight request — a
// failure here is logged by the caller and simply abstains.
func (a *Auditor) Audit(ctx context.Context, text string) (Verdict, error) {
	vector, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("auditor: embed: %w", err)
	}

	var lambda, starLambda, ratio float64
	var ratioAvailable bool

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l, err := a.computeLambda(gctx, vector)
		if err != nil {
			return err
		}
		lambda = l
		return nil
	})

	g.Go(func() error {
		s, err := a.computeStarLambda(gctx, vector)
		if err != nil {
			return err
		}
		starLambda = s
		return nil
	})

	if a.cleanIndex != nil {
		g.Go(func() error {
			r, available, err := a.computeRatio(gctx, vector)
			if err != nil {
				return err
			}
			ratio = r
			ratioAvailable = available
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Verdict{}, fmt.Errorf("auditor: discriminant computation: %w", err)
	}

	discriminants := Discriminants{
		PartitionRatio: ratio,
		RatioAvailable: ratioAvailable,
		Lambda:         lambda,
		StarLambda:     starLambda,
	}

	votes, available := a.vote(discriminants)
	required := (available + 1) / 2 // ceil(available/2)

	verdict := Verdict{
		Votes:         votes,
		Available:     available,
		Discriminants: discriminants,
	}

	if votes >= required && votes > 0 {
		verdict.Escalate = true
		verdict.Reason = fmt.Sprintf("async auditor consensus: %d/%d discriminants over threshold", votes, available)
		if a.threat != nil {
			a.threat.Escalate(verdict.Reason)
		}
	} else if votes > 0 {
		verdict.Reason = fmt.Sprintf("smoke detected: %d/%d discriminants over threshold, below consensus", votes, available)
	}

	return verdict, nil
}

func (a *Auditor) vote(d Discriminants) (votes, available int) {
	available = 2
	if d.Lambda >= a.lambdaThreshold {
		votes++
	}
	if d.StarLambda >= a.starThreshold {
		votes++
	}
	if d.RatioAvailable {
		available = 3
		if d.PartitionRatio > a.ratioThreshold {
			votes++
		}
	}
	return votes, available
}

func (a *Auditor) computeLambda(ctx context.Context, vector []float64) (float64, error) {
	results, err := a.coherenceIndex.Search(vector, a.k)
	if err != nil {
		return 0, fmt.Errorf("lambda search: %w", err)
	}
	return coherence.LambdaFromDistances(distancesOf(results)), nil
}

func (a *Auditor) computeStarLambda(ctx context.Context, vector []float64) (float64, error) {
	results, err := a.coherenceIndex.Search(vector, a.k)
	if err != nil {
		return 0, fmt.Errorf("star search: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	edges := make([]mincut.Edge, 0, len(results))
	for i, r := range results {
		weight := 1 - r.Distance
		if weight < 0 {
			weight = 0
		}
		edges = append(edges, mincut.Edge{U: 0, V: i + 1, Weight: weight})
	}

	cut := mincut.MinCut(len(results)+1, edges)
	return cut, nil
}

func (a *Auditor) computeRatio(ctx context.Context, vector []float64) (ratio float64, available bool, err error) {
	attackResults, err := a.coherenceIndex.Search(vector, a.k)
	if err != nil {
		return 0, false, fmt.Errorf("ratio attack search: %w", err)
	}
	cleanResults, err := a.cleanIndex.Search(vector, a.k)
	if err != nil {
		return 0, false, fmt.Errorf("ratio clean search: %w", err)
	}

	dAttack := meanDistance(attackResults)
	dClean := meanDistance(cleanResults)

	if dAttack < 1e-9 {
		return 0, false, nil
	}
	return dClean / dAttack, true, nil
}

func distancesOf(results []vectorindex.SearchResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Distance
	}
	return out
}

func meanDistance(results []vectorindex.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Distance
	}
	return sum / float64(len(results))
}

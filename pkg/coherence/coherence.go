// Package coherence implements the Coherence Gate: a density proxy
// computed against the coherence index, with session-scoped
// hysteresis to keep the routing decision from oscillating. The
// decision is observational only — callers must never let it mutate a
// layer's score.
package coherence

import (
	"math"
	"sync"

	"github.com/docker/admission-core/pkg/vectorindex"
)

const (
	defaultK              = 5
	enterHysteresisFactor = 1.1
	leaveHysteresisFactor = 0.9
)

// Route is the gate's routing decision.
type Route string

const (
	RouteL3Gate     Route = "L3_Gate"
	RouteMinCutGate Route = "MinCut_Gate"
)

// GateDecision is the observational output of one Evaluate call.
type GateDecision struct {
	Route     Route
	Lambda    float64
	Threshold float64
	DBSize    int
	Reason    string
}

// Gate evaluates the density proxy against a coherence index. A Gate
// is scoped to one session: its hysteresis state (previousRoute)
// carries across Evaluate calls for that session only.
type Gate struct {
	mu    sync.Mutex
	index *vectorindex.Index
	k     int

	previousRoute Route
}

// NewGate builds a Gate over index, starting in the L3_Gate route.
// index may be nil (treated as size 0, per the Embedding Index's
// "missing index" contract).
func NewGate(index *vectorindex.Index) *Gate {
	return &Gate{index: index, k: defaultK, previousRoute: RouteL3Gate}
}

// Threshold computes polylog(n) = (log2 max(n,2))^2 for n > 1, else 1.
func Threshold(n int) float64 {
	if n <= 1 {
		return 1
	}
	log2n := math.Log2(float64(n))
	return log2n * log2n
}

// LambdaFromDistances computes λ = 1 / mean(distances). An empty slice
// yields λ=0; an all-zero slice yields the maximum representable
// float64, matching the "perfectly coherent neighborhood" edge case.
// Also used by pkg/auditor for its independent λ-average discriminant.
func LambdaFromDistances(distances []float64) float64 {
	if len(distances) == 0 {
		return 0
	}

	var sum float64
	allZero := true
	for _, d := range distances {
		sum += d
		if d != 0 {
			allZero = false
		}
	}
	if allZero {
		return math.MaxFloat64
	}
	return 1 / (sum / float64(len(distances)))
}

// Evaluate computes this request's GateDecision. It never errors: any
// index search failure degrades to λ=0 (fail-open, no-op on error),
// and the route is updated according to the hysteresis rule before
// being returned.
func (g *Gate) Evaluate(vector []float64) GateDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	dbSize := 0
	if g.index != nil {
		dbSize = g.index.Len()
	}
	threshold := Threshold(dbSize)

	lambda := 0.0
	if g.index != nil && dbSize > 0 {
		results, err := g.index.Search(vector, g.k)
		if err == nil {
			lambda = LambdaFromDistances(distancesOf(results))
		}
	}

	route, reason := g.nextRoute(lambda, threshold)
	g.previousRoute = route

	return GateDecision{Route: route, Lambda: lambda, Threshold: threshold, DBSize: dbSize, Reason: reason}
}

func (g *Gate) nextRoute(lambda, threshold float64) (Route, string) {
	switch {
	case g.previousRoute != RouteMinCutGate && lambda >= threshold*enterHysteresisFactor:
		return RouteMinCutGate, "lambda crossed enter threshold (hysteresis 1.1x)"
	case g.previousRoute == RouteMinCutGate && lambda < threshold*leaveHysteresisFactor:
		return RouteL3Gate, "lambda fell below leave threshold (hysteresis 0.9x)"
	default:
		return g.previousRoute, "hysteresis band: no transition"
	}
}

func distancesOf(results []vectorindex.SearchResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Distance
	}
	return out
}

package embed

import (
	"context"
	"math"
)

// charCodeDim is the fixed dimensionality of the scanner's char-code
// proxy embedding. It is deliberately small: this embedder exists to
// give L2 Analyze a cheap, purely local, in-budget vector to score
// against the attack-pattern index, not to approximate semantic
// similarity; the auditor uses the word n-gram embedder for that.
const charCodeDim = 64

// CharCodeEmbedder is the scanner's proxy embedder: a normalized
// histogram of rune codepoints modulo the embedding dimension. It
// never makes an external call, so it fits inside L2's fail-open
// latency budget unconditionally.
type CharCodeEmbedder struct{}

// NewCharCodeEmbedder returns a ready-to-use char-code proxy embedder.
func NewCharCodeEmbedder() *CharCodeEmbedder {
	return &CharCodeEmbedder{}
}

// Dim reports the embedder's output dimension.
func (*CharCodeEmbedder) Dim() int {
	return charCodeDim
}

// Embed computes the proxy vector for text. It never errors.
func (*CharCodeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, charCodeDim)
	for _, r := range text {
		v[int(r)%charCodeDim]++
	}
	normalizeUnit(v)
	return v, nil
}

func normalizeUnit(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}

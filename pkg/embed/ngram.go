package embed

import (
	"context"
	"hash/fnv"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
)

// ngramDim is the fixed dimensionality of the semantic proxy embedder.
// It is deliberately distinct from charCodeDim: the auditor's
// discriminants must run over a different embedding space than L2
// Analyze's char-code proxy, so the two can never be unified by
// accidentally sharing one Embedder instance.
const ngramDim = 96

// NgramEmbedder is the auditor's semantic proxy embedder: a
// feature-hashed bag of word unigrams and bigrams, in contrast to
// CharCodeEmbedder's per-rune histogram. It groups text by shared
// vocabulary rather than by character distribution, which is the
// signal the async discriminants are meant to run over. Like
// CharCodeEmbedder it never makes an external call.
type NgramEmbedder struct{}

// NewNgramEmbedder returns a ready-to-use semantic proxy embedder.
func NewNgramEmbedder() *NgramEmbedder {
	return &NgramEmbedder{}
}

// Dim reports the embedder's output dimension.
func (*NgramEmbedder) Dim() int {
	return ngramDim
}

// Embed computes the hashed n-gram vector for text. It never errors.
func (*NgramEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, ngramDim)

	var prev string
	seg := words.FromString(text)
	for seg.Next() {
		token := seg.Value()
		if !isWordLike(token) {
			// Whitespace between words keeps the bigram chain going;
			// punctuation breaks it.
			if r, _ := utf8.DecodeRuneInString(token); !unicode.IsSpace(r) {
				prev = ""
			}
			continue
		}
		v[hashBucket(token, ngramDim)]++
		if prev != "" {
			v[hashBucket(prev+" "+token, ngramDim)] += 0.5
		}
		prev = token
	}

	normalizeUnit(v)
	return v, nil
}

// isWordLike reports whether token's first rune is a letter or digit,
// the same cheap filter uax29 segment boundaries leave for distinguishing
// words from the punctuation/whitespace runs also yielded by FromString.
func isWordLike(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func hashBucket(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

// Package normalize implements deterministic text canonicalization for
// the admission pipeline: invisible-character stripping, Unicode
// folding, homoglyph mapping, and length-gated decoding of common
// obfuscation encodings (base64, hex, URL, HTML entity).
package normalize

import (
	"encoding/base64"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

const (
	// minBase64Run is the minimum length of a contiguous base64 alphabet
	// run considered for decoding.
	minBase64Run = 20
	// minDecodedPrintable is the minimum number of printable ASCII bytes
	// a decoded base64 run must produce to be kept.
	minDecodedPrintable = 4
)

// invisible is the set of characters stripped before any other
// processing: zero-width space/joiner/non-joiner, BOM, soft hyphen,
// word joiner.
var invisible = map[rune]struct{}{
	'​': {}, // zero width space
	'‌': {}, // zero width non-joiner
	'‍': {}, // zero width joiner
	'﻿': {}, // byte order mark / zero width no-break space
	'­': {}, // soft hyphen
	'⁠': {}, // word joiner
}

// homoglyphs maps common Cyrillic/Greek look-alike characters onto the
// Latin letters they are used to impersonate. Only the characters that
// show up in practice are mapped; this is not an exhaustive confusables
// table.
var homoglyphs = map[rune]rune{
	'а': 'a', 'А': 'A',
	'е': 'e', 'Е': 'E',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'с': 'c', 'С': 'C',
	'у': 'y', 'У': 'Y',
	'х': 'x', 'Х': 'X',
	'і': 'i', 'І': 'I',
	'ѕ': 's', 'Ѕ': 'S',
	'ј': 'j', 'Ј': 'J',
	'ԁ': 'd',
	'ɡ': 'g',
	'ⅼ': 'l',
}

var (
	base64AlphabetPattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
	hexEscapePattern      = regexp.MustCompile(`\\x[0-9A-Fa-f]{2}`)
	urlEscapePattern      = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	htmlEntityDecPattern  = regexp.MustCompile(`&#[0-9]{2,4};`)
	whitespaceRunPattern  = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes text deterministically and totally: it never
// errors and always returns a (possibly empty) string. Calling it twice
// is idempotent: Normalize(Normalize(t)) == Normalize(t).
func Normalize(text string) string {
	s := stripInvisible(text)
	s = foldUnicode(s)
	s = mapHomoglyphs(s)
	s = decodeObfuscations(s)
	s = collapse(s)
	return s
}

// stripInvisible removes the ZWS/ZWJ/BOM/soft-hyphen/word-joiner class.
func stripInvisible(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if _, ok := invisible[r]; ok {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// foldUnicode applies NFD decomposition, strips combining marks in the
// U+0300-U+036F block, then recomposes with NFKC so that accented and
// compatibility variants collapse onto a canonical base form.
func foldUnicode(text string) string {
	decomposed := norm.NFD.String(text)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r >= 0x0300 && r <= 0x036F {
			continue
		}
		b.WriteRune(r)
	}

	return norm.NFKC.String(b.String())
}

func mapHomoglyphs(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mapped, ok := homoglyphs[r]; ok {
			b.WriteRune(mapped)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// decodeObfuscations finds base64/hex/URL/HTML-entity encoded runs and
// appends their decoded plaintext with a space separator. The original
// surface text is never replaced in place, so downstream consumers of
// the normalized text still see both the obfuscated and the decoded
// form.
func decodeObfuscations(text string) string {
	var extra []string

	seg := words.FromString(text)
	for seg.Next() {
		token := seg.Value()
		if len(token) < minBase64Run || !base64AlphabetPattern.MatchString(token) {
			continue
		}
		// collapse() lowercases the whole text after this function runs,
		// so a second Normalize pass sees this same run with its case
		// already flattened. base64 decoding is case-sensitive: re-running
		// it against the lowercased run would decode different bytes than
		// the first pass and could append new garbage, breaking
		// Normalize(Normalize(t)) == Normalize(t). A run with no uppercase
		// letter is treated as already collapsed and skipped; a raw
		// attacker-supplied base64 run of minBase64Run+ characters
		// containing zero uppercase letters is astronomically unlikely
		// to occur by chance.
		if !hasUpper(token) {
			continue
		}
		if decoded, ok := decodeBase64Token(token); ok {
			extra = append(extra, decoded)
		}
	}

	// Unlike base64, hex/URL/HTML-entity escapes decode to the same bytes
	// on every pass regardless of case, so a second pass re-scans the
	// still-present escape sequence and recomputes the identical decoded
	// text. Appending it unconditionally would duplicate it on every
	// subsequent Normalize call; skipping when a fold-equal copy is
	// already present (collapse() only ever changes case) keeps the
	// result stable instead.
	if decoded := decodeAllMatches(hexEscapePattern, text, decodeHexEscape); decoded != "" && !containsFold(text, decoded) {
		extra = append(extra, decoded)
	}

	if decoded := decodeAllMatches(urlEscapePattern, text, decodeURLEscape); decoded != "" && !containsFold(text, decoded) {
		extra = append(extra, decoded)
	}

	if htmlEntityDecPattern.MatchString(text) {
		if decoded := decodeAllMatches(htmlEntityDecPattern, text, html.UnescapeString); decoded != "" && !containsFold(text, decoded) {
			extra = append(extra, decoded)
		}
	}

	if len(extra) == 0 {
		return text
	}

	return text + " " + strings.Join(extra, " ")
}

// decodeAllMatches decodes every occurrence of pattern in text and
// joins the decoded bytes, without including the surrounding surface
// text, so the appended plaintext does not duplicate the whole
// original string.
func decodeAllMatches(pattern *regexp.Regexp, text string, decode func(string) string) string {
	matches := pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	decoded := make([]string, 0, len(matches))
	for _, m := range matches {
		decoded = append(decoded, decode(m))
	}
	return strings.Join(decoded, "")
}

func decodeHexEscape(m string) string {
	n, err := strconv.ParseUint(m[2:], 16, 8)
	if err != nil {
		return m
	}
	return string([]byte{byte(n)})
}

func decodeURLEscape(m string) string {
	n, err := strconv.ParseUint(m[1:], 16, 8)
	if err != nil {
		return m
	}
	return string([]byte{byte(n)})
}

// decodeBase64Token decodes a single word-bounded base64 candidate
// (found via uax29 word segmentation, never a hand-rolled character
// scan) and keeps it only if it produces at least minDecodedPrintable
// printable ASCII bytes.
func decodeBase64Token(token string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(token)
		if err != nil {
			return "", false
		}
	}
	if countPrintable(decoded) >= minDecodedPrintable {
		return string(decoded), true
	}
	return "", false
}

func containsFold(text, substr string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func countPrintable(b []byte) int {
	n := 0
	for _, c := range b {
		if c >= 0x20 && c < 0x7F {
			n++
		}
	}
	return n
}

func collapse(text string) string {
	lowered := strings.ToLower(text)
	collapsed := whitespaceRunPattern.ReplaceAllString(lowered, " ")
	return strings.TrimSpace(collapsed)
}

// IsEmptyButRawNonEmpty reports the all-invisible-input edge case: the
// normalized text is empty while the raw text was not.
func IsEmptyButRawNonEmpty(raw, normalized string) bool {
	return normalized == "" && strings.TrimFunc(raw, unicode.IsSpace) != ""
}

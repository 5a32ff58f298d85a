// Package textutil holds the tokenizer and vector helpers shared by the
// embedders and the lexical scorer.
package textutil

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether tok is in the built-in English stopword list.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Tokenize lowercases text and returns its word tokens with stopwords removed.
// Runs of Han characters carry no word boundaries, so they are emitted as
// overlapping character bigrams (a single character stays a unigram).
func Tokenize(text string) []string { return tokens(text, true) }

// Words is Tokenize without stopword removal.
func Words(text string) []string { return tokens(text, false) }

func tokens(text string, dropStopwords bool) []string {
	raw := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		for _, tok := range splitHan(w) {
			if dropStopwords && IsStopword(tok) {
				continue
			}
			out = append(out, tok)
		}
	}
	return out
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	toks := Tokenize(text)
	m := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		m[t] = struct{}{}
	}
	return m
}

func splitHan(word string) []string {
	var out []string
	var run []rune
	var other strings.Builder
	flushHan := func() {
		switch {
		case len(run) == 1:
			out = append(out, string(run))
		case len(run) > 1:
			for i := 0; i+1 < len(run); i++ {
				out = append(out, string(run[i:i+2]))
			}
		}
		run = run[:0]
	}
	flushOther := func() {
		if other.Len() > 0 {
			out = append(out, other.String())
			other.Reset()
		}
	}
	for _, r := range word {
		if unicode.Is(unicode.Han, r) {
			flushOther()
			run = append(run, r)
			continue
		}
		flushHan()
		other.WriteRune(r)
	}
	flushHan()
	flushOther()
	return out
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors are left as is.
func Normalize(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

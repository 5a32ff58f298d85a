package rerank

import (
	"context"
	"math"

	"ragqa/internal/textutil"
)

// LexicalScorer scores a pair by the Ochiai coefficient of their token sets,
// |A∩B| / sqrt(|A||B|). It needs no model and is deterministic.
type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer { return &LexicalScorer{} }

func (LexicalScorer) Score(_ context.Context, query, candidate string) (float64, error) {
	return ochiai(textutil.TokenSet(query), textutil.TokenSet(candidate)), nil
}

func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

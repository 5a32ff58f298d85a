// Package generator turns a query and its grounding passages into an answer
// using a generative-text backend.
package generator

import (
	"context"
	"fmt"
	"time"

	"ragqa/internal/domain"
)

// Outcome is the result of one generation attempt. Err is set, and wraps
// domain.ErrGeneration, when the backend failed; Text is then empty.
type Outcome struct {
	Prompt string
	Text   string
	Err    error
}

// OK reports whether the backend produced an answer.
func (o Outcome) OK() bool { return o.Err == nil }

type AnswerGenerator struct {
	backend domain.Generator
	timeout time.Duration
}

// New wraps backend. A positive timeout bounds each call.
func New(backend domain.Generator, timeout time.Duration) *AnswerGenerator {
	return &AnswerGenerator{backend: backend, timeout: timeout}
}

// Generate makes exactly one non-streaming call to the backend.
func (g *AnswerGenerator) Generate(ctx context.Context, query string, chunks []string) Outcome {
	prompt := BuildPrompt(query, chunks)
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	text, err := g.backend.Generate(ctx, prompt)
	if err != nil {
		return Outcome{Prompt: prompt, Err: fmt.Errorf("%w: %s: %w", domain.ErrGeneration, g.backend.Name(), err)}
	}
	return Outcome{Prompt: prompt, Text: text}
}

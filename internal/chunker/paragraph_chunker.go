package chunker

import (
	"regexp"
	"strings"

	"ragqa/internal/domain"
)

var (
	blankLine = regexp.MustCompile(`(?:\r?\n){2,}`)
	sentence  = regexp.MustCompile(`[^.!?。！？]+(?:[.!?。！？]+|$)`)
)

// ParagraphChunker splits text on blank lines. When maxSentences is positive,
// paragraphs longer than that many sentences are split again into groups of
// at most maxSentences sentences.
type ParagraphChunker struct {
	maxSentences int
}

func NewParagraphChunker(maxSentences int) *ParagraphChunker {
	if maxSentences < 0 {
		maxSentences = 0
	}
	return &ParagraphChunker{maxSentences: maxSentences}
}

func (c *ParagraphChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, para := range blankLine.Split(document.Content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, text := range c.split(para) {
			chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: text})
		}
	}
	return chunks, nil
}

func (c *ParagraphChunker) split(para string) []string {
	if c.maxSentences == 0 {
		return []string{para}
	}
	var sentences []string
	for _, s := range sentence.FindAllString(para, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= c.maxSentences {
		return []string{para}
	}
	var out []string
	for i := 0; i < len(sentences); i += c.maxSentences {
		end := i + c.maxSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[i:end], " "))
	}
	return out
}

package generator

import "strings"

// ChunkSeparator sits between grounding passages. A blank line keeps passage
// boundaries apart from line breaks inside a passage.
const ChunkSeparator = "\n\n"

const promptTemplate = `You are a knowledgeable assistant. Using the user's question and the relevant passages below, write an accurate answer.

Question: {query}

Relevant passages:
{passages}

Answer using only the passages above. Do not make up information.`

// BuildPrompt assembles the grounding prompt from the query and the passages in their given order.
func BuildPrompt(query string, chunks []string) string {
	r := strings.NewReplacer("{query}", query, "{passages}", strings.Join(chunks, ChunkSeparator))
	return r.Replace(promptTemplate)
}

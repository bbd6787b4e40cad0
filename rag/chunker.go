// Package rag implements the retrieval pipeline: chunking generated
// markdown, embedding the chunks and searching them by cosine
// similarity.
package rag

import (
	"regexp"
	"strings"
)

// Chunker splits text into chunks bounded by a token budget rather
// than a character count. Token counts are estimated at four
// characters per token, which keeps chunks comfortably inside the
// embedding model's window without shipping a tokenizer.
type Chunker struct {
	chunkSize    int
	chunkMinimum int
}

// NewChunker creates a chunker. chunkSize is the token budget per
// chunk, chunkMinimum the threshold below which neighboring chunks are
// merged.
func NewChunker(chunkSize, chunkMinimum int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 250
	}
	if chunkMinimum < 0 || chunkMinimum >= chunkSize {
		chunkMinimum = chunkSize / 5
	}
	return &Chunker{chunkSize: chunkSize, chunkMinimum: chunkMinimum}
}

// MarkdownSeparators returns the separator patterns for markdown
// documents, lowest priority first: the last entry is tried first.
func MarkdownSeparators() []string {
	return []string{
		"",
		" ",
		"\n",
		"\n\n",
		// Horizontal rules
		"\n___+\n",
		"\n---+\n",
		"\n\\*\\*\\*+\n",
		// End of code block
		"```\n",
		// Markdown headings, tried first
		"\n#{1,6} ",
	}
}

// Chunk splits text along the separator priority list and merges
// runts below the minimum into their neighbors.
func (c *Chunker) Chunk(text string, separators []string) []string {
	seps := make([]string, len(separators))
	copy(seps, separators)

	chunks := c.recursiveChunk(text, seps)

	var processed []string
	for i := 0; i < len(chunks); i++ {
		if c.tokenLen(chunks[i]) >= c.chunkMinimum {
			processed = append(processed, chunks[i])
			continue
		}

		switch {
		case len(processed) > 0 && c.tokenLen(processed[len(processed)-1])+c.tokenLen(chunks[i]) <= c.chunkSize:
			processed[len(processed)-1] += chunks[i]
		case i < len(chunks)-1 && c.tokenLen(chunks[i])+c.tokenLen(chunks[i+1]) <= c.chunkSize:
			chunks[i+1] = chunks[i] + chunks[i+1]
		default:
			if strings.TrimSpace(chunks[i]) != "" {
				processed = append(processed, chunks[i])
			}
		}
	}
	return processed
}

// recursiveChunk splits text with the highest-priority separator and
// recurses into pieces that still exceed the budget.
func (c *Chunker) recursiveChunk(text string, separators []string) []string {
	if c.tokenLen(text) <= c.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return c.simpleChunk(text)
	}

	separator := separators[len(separators)-1]
	rest := separators[:len(separators)-1]

	var final []string
	for _, piece := range splitWithRegex(text, separator) {
		if c.tokenLen(piece) <= c.chunkSize {
			final = append(final, piece)
		} else {
			final = append(final, c.recursiveChunk(piece, rest)...)
		}
	}
	return final
}

// simpleChunk splits text evenly when no separator applies.
func (c *Chunker) simpleChunk(text string) []string {
	estimated := (c.tokenLen(text) + c.chunkSize - 1) / c.chunkSize
	if estimated < 1 {
		estimated = 1
	}

	chunks := splitEvenly(text, estimated)
	for !c.verifyChunks(chunks) {
		estimated++
		chunks = splitEvenly(text, estimated)
	}
	return chunks
}

func (c *Chunker) verifyChunks(chunks []string) bool {
	for _, chunk := range chunks {
		if c.tokenLen(chunk) > c.chunkSize {
			return false
		}
	}
	return true
}

// tokenLen estimates the token count of text.
func (c *Chunker) tokenLen(text string) int {
	return (len(text) + 3) / 4
}

// splitEvenly divides text into count pieces of near-equal length.
func splitEvenly(text string, count int) []string {
	runes := []rune(text)
	k, m := len(runes)/count, len(runes)%count

	chunks := make([]string, 0, count)
	for i := 0; i < count; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// splitWithRegex splits text on the pattern, keeping each separator
// attached to the piece it introduces. An empty pattern splits into
// single characters.
func splitWithRegex(text, pattern string) []string {
	if pattern == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}

	re := regexp.MustCompile(pattern)
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var parts []string
	if head := text[:locs[0][0]]; head != "" {
		parts = append(parts, head)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if piece := text[loc[0]:end]; piece != "" {
			parts = append(parts, piece)
		}
	}
	return parts
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

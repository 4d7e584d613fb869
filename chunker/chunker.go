// Package chunker splits document records into retrieval-sized chunks.
// Prose documents are chunked by sentence with token overlap, markdown
// keeps its heading structure, and spreadsheets become one chunk per row.
package chunker

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

const (
	// Rough words-to-tokens ratio for budget estimates.
	tokensPerWord = 1.3

	defaultTokenSize = 512
	defaultOverlap   = 64
	defaultMaxChars  = 6000
)

// Chunk is one unit of indexable content with its filter metadata.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Chunker holds the splitting parameters.
type Chunker struct {
	TokenSize int
	Overlap   int
	MaxChars  int
}

func New(tokenSize, overlap, maxChars int) *Chunker {
	if tokenSize <= 0 {
		tokenSize = defaultTokenSize
	}
	if overlap < 0 || overlap >= tokenSize {
		overlap = defaultOverlap
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Chunker{TokenSize: tokenSize, Overlap: overlap, MaxChars: maxChars}
}

func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * tokensPerWord)
}

// sentences splits text into sentences, falling back to newline splits
// when the tokenizer cannot parse the input.
func sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false))
	if err == nil {
		var out []string
		for _, s := range doc.Sentences() {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TokenChunks splits prose into overlapping sentence groups within the
// token budget. Overlap carries trailing sentences into the next chunk
// so retrieval does not lose context at boundaries.
func (c *Chunker) TokenChunks(text string, base map[string]string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sents := sentences(text)
	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := c.Truncate(strings.Join(current, " "))
		chunks = append(chunks, Chunk{Content: content, Metadata: cloneMeta(base)})

		// Seed the next chunk with the trailing overlap.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0 && carryTokens < c.Overlap; i-- {
			carry = append([]string{current[i]}, carry...)
			carryTokens += estimateTokens(current[i])
		}
		current = carry
		currentTokens = carryTokens
	}

	for _, sent := range sents {
		t := estimateTokens(sent)
		if currentTokens+t > c.TokenSize && currentTokens > 0 {
			flush()
		}
		current = append(current, sent)
		currentTokens += t
	}
	if len(current) > 0 {
		content := c.Truncate(strings.Join(current, " "))
		// Avoid emitting a pure-overlap tail.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1].Content, content) {
			chunks = append(chunks, Chunk{Content: content, Metadata: cloneMeta(base)})
		}
	}
	return chunks
}

// Truncate caps chunk content so a single chunk never blows the
// embedding context.
func (c *Chunker) Truncate(text string) string {
	if len(text) <= c.MaxChars {
		return text
	}
	return text[:c.MaxChars] + "..."
}

func cloneMeta(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	return out
}

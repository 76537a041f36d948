package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters for document ingestion.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100
)

// sentenceTerminators are tried in order when looking for a natural cut
// point near the end of a window.
var sentenceTerminators = []string{". ", ".\n", "! ", "?\n"}

// Chunker splits extracted text into overlapping segments under a size
// budget. Chunking is deterministic and side-effect free: identical input
// always yields identical chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a chunker. overlap must be strictly smaller than
// chunkSize or the sliding window could never advance.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidChunkConfig
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk splits text into ordered, overlapping chunks. Each window tries to
// end at the last sentence terminator found within its tail 30%; when none
// is found it cuts at the size budget exactly (aligned to a rune boundary).
// The window then advances by (end - overlap), clamped so the start always
// moves forward even when a sentence cut lands inside the overlap region.
// Every emitted chunk is trimmed, and a degenerate final tail shorter than
// overlap/2 words is merged into the preceding chunk. Chunk order equals
// left-to-right scan order; the position in the returned slice is the
// chunk index.
func (c *Chunker) Chunk(text string) []string {
	if len(text) <= c.chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	var starts []int

	start := 0
	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.cutPoint(text, start, end)
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
			starts = append(starts, start)
		}

		if end >= len(text) {
			break
		}
		next := alignRuneStart(text, end-c.overlap)
		if next <= start {
			// A sentence cut inside the overlap region would slide the
			// window backwards; step the unoverlapped budget instead.
			next = alignRuneStart(text, start+c.chunkSize-c.overlap)
		}
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		start = next
	}

	return c.mergeDegenerateTail(text, chunks, starts)
}

// cutPoint picks the end of the window [start, limit). It prefers the last
// sentence terminator that falls in the final 30% of the window and
// otherwise cuts at the budget, backed off to a rune boundary.
func (c *Chunker) cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	threshold := int(float64(c.chunkSize) * 0.7)

	for _, sep := range sentenceTerminators {
		if idx := strings.LastIndex(window, sep); idx > threshold {
			return start + idx + len(sep)
		}
	}
	return alignRuneStart(text, limit)
}

// mergeDegenerateTail folds a final chunk of fewer than overlap/2 words into
// its predecessor, re-slicing from the predecessor's start so no text is
// lost. Avoids emitting micro-chunks that would embed poorly.
func (c *Chunker) mergeDegenerateTail(text string, chunks []string, starts []int) []string {
	if len(chunks) < 2 {
		return chunks
	}

	last := chunks[len(chunks)-1]
	if len(strings.Fields(last)) >= c.overlap/2 {
		return chunks
	}

	prevStart := starts[len(starts)-2]
	merged := strings.TrimSpace(text[prevStart:])
	return append(chunks[:len(chunks)-2], merged)
}

// alignRuneStart moves i down to the nearest UTF-8 rune boundary so a cut
// never splits a multi-byte character.
func alignRuneStart(text string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerRejectsBadConfig(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-1, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, tc := range cases {
		_, err := NewChunker(tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidChunkConfig, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunker, err := NewChunker(500, 100)
	require.NoError(t, err)

	chunks := chunker.Chunk("  a short note  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short note", chunks[0])
}

func TestChunkEmptyText(t *testing.T) {
	chunker, err := NewChunker(500, 100)
	require.NoError(t, err)

	assert.Empty(t, chunker.Chunk(""))
	assert.Empty(t, chunker.Chunk("   \n\t  "))
}

func TestChunkSlidingWindow(t *testing.T) {
	chunker, err := NewChunker(500, 100)
	require.NoError(t, err)

	// 240 five-char words, no sentence terminators: hard cuts at the size
	// budget, windows advancing by 400.
	text := strings.TrimSpace(strings.Repeat("word ", 240))
	require.Equal(t, 1199, len(text))

	chunks := chunker.Chunk(text)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 500, "chunk %d over budget", i)
		assert.Contains(t, text, c, "chunk %d not a substring", i)
	}

	// Consecutive chunks share the overlap region.
	assert.True(t, strings.HasSuffix(chunks[0], chunks[1][:90]) ||
		strings.Contains(chunks[0], strings.TrimSpace(chunks[1][:90])),
		"no overlap between chunk 0 and 1")

	// Nothing lost at either end.
	assert.True(t, strings.HasPrefix(text, chunks[0]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	chunker, err := NewChunker(100, 20)
	require.NoError(t, err)

	// A terminator sits inside the tail 30% of the first window
	// (past position 70), so the cut lands after it.
	first := strings.Repeat("a", 80) + ". "
	text := first + strings.Repeat("b", 200)

	chunks := chunker.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("a", 80)+".", chunks[0])
}

func TestChunkIgnoresEarlyTerminator(t *testing.T) {
	chunker, err := NewChunker(100, 20)
	require.NoError(t, err)

	// The only terminator is before 70% of the window, so the cut is a
	// hard one at the budget.
	text := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 300)

	chunks := chunker.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0], 100)
}

func TestChunkTerminatesWithLargeOverlap(t *testing.T) {
	// With overlap close to the chunk size, a sentence cut that lands
	// inside the overlap region would move the window start backwards.
	// The window must still make forward progress and terminate.
	chunker, err := NewChunker(500, 400)
	require.NoError(t, err)

	text := strings.Repeat("a", 420) + ". " + strings.Repeat("b", 600)

	done := make(chan []string, 1)
	go func() { done <- chunker.Chunk(text) }()

	select {
	case chunks := <-done:
		require.NotEmpty(t, chunks)
		assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "b"),
			"final chunk must reach the end of the text")
	case <-time.After(5 * time.Second):
		t.Fatal("chunking did not terminate")
	}
}

func TestChunkCoverage(t *testing.T) {
	chunker, err := NewChunker(120, 30)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("The mill station logged another cycle. ")
	}
	text := strings.TrimSpace(b.String())

	chunks := chunker.Chunk(text)
	require.GreaterOrEqual(t, len(chunks), 1)

	// Every chunk is real text and the chain of chunks covers the whole
	// input: each one starts inside or immediately after its predecessor.
	pos := 0
	for i, c := range chunks {
		idx := strings.Index(text[pos:], c)
		require.GreaterOrEqual(t, idx, 0, "chunk %d not found after offset %d", i, pos)
		pos += idx
	}
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))
}

func TestChunkDoesNotSplitRunes(t *testing.T) {
	chunker, err := NewChunker(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("héllø wörld ", 40)
	for i, c := range chunker.Chunk(text) {
		assert.True(t, strings.ToValidUTF8(c, "") == c, "chunk %d contains a split rune", i)
	}
}

func TestChunkDeterministic(t *testing.T) {
	chunker, err := NewChunker(200, 40)
	require.NoError(t, err)

	text := strings.Repeat("Event traces arrive out of order. Buffering fixes it. ", 30)
	first := chunker.Chunk(text)
	second := chunker.Chunk(text)
	assert.Equal(t, first, second)
}

package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(0, 0)
	require.ErrorIs(t, err, appErr.ErrInvalidConfiguration)
	_, err = New(-5, 0)
	require.ErrorIs(t, err, appErr.ErrInvalidConfiguration)
	_, err = New(100, 100)
	require.ErrorIs(t, err, appErr.ErrInvalidConfiguration)
	_, err = New(100, -1)
	require.ErrorIs(t, err, appErr.ErrInvalidConfiguration)
}

func TestSplit_RoundTrip(t *testing.T) {
	texts := []string{
		strings.Repeat("a", 2500),
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120),
		"first paragraph\n\nsecond paragraph\n\n" + strings.Repeat("body text here. ", 200),
		"short",
	}
	configs := [][2]int{{1000, 200}, {100, 0}, {500, 499}, {37, 11}}
	for _, text := range texts {
		for _, cfg := range configs {
			c, err := New(cfg[0], cfg[1])
			require.NoError(t, err)
			chunks := c.Split(text)
			require.NotEmpty(t, chunks)
			require.Equal(t, text, Rejoin(chunks, cfg[1]))
		}
	}
}

func TestSplit_ChunkSizeBound(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)
	chunks := c.Split(strings.Repeat("x", 2500))
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 1000)
	}
}

func TestSplit_OverlapShared(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)
	// No natural boundaries, so cuts land on the hard limit.
	chunks := c.Split(strings.Repeat("z", 2500))
	require.Len(t, chunks, 3)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		require.Equal(t, string(prev[len(prev)-200:]), string(cur[:200]))
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)
	text := strings.Repeat("w", 80) + "\n\n" + strings.Repeat("v", 80)
	chunks := c.Split(text)
	require.True(t, len(chunks) >= 2)
	require.True(t, strings.HasSuffix(chunks[0], "\n\n"), "first cut should land after the paragraph break, got %q", chunks[0])
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)
	text := strings.Repeat("w", 85) + ". " + strings.Repeat("v", 80)
	chunks := c.Split(text)
	require.True(t, len(chunks) >= 2)
	require.True(t, strings.HasSuffix(chunks[0], ". "), "first cut should land after the sentence end, got %q", chunks[0])
}

func TestSplit_EmptyInput(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)
	require.Empty(t, c.Split(""))
}

func TestSplit_ShortInputSingleChunk(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)
	chunks := c.Split("tiny document")
	require.Equal(t, []string{"tiny document"}, chunks)
}

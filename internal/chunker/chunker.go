package chunker

import (
	"strings"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// Chunker splits normalized text into overlapping segments of at most
// maxSize runes. Adjacent chunks share exactly overlap runes, so joining
// chunk 0 with every later chunk minus its first overlap runes reproduces
// the input.
type Chunker struct {
	maxSize  int
	overlap  int
	lookback int
}

func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, appErr.ErrInvalidConfiguration
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, appErr.ErrInvalidConfiguration
	}
	lookback := maxSize / 5
	if lookback > 200 {
		lookback = 200
	}
	return &Chunker{maxSize: maxSize, overlap: overlap, lookback: lookback}, nil
}

func (c *Chunker) MaxSize() int {
	return c.maxSize
}

func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split returns the ordered chunk sequence for text. Empty input yields no
// chunks; callers decide whether that is an error.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	start := 0
	for {
		end := start + c.maxSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		cut := c.findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}
	return chunks
}

// findCut picks the split position in (start, end]. A paragraph break wins
// over a sentence end, which wins over the hard cut at end. The cut must
// leave room to advance past the overlap or the walk would stall.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	low := end - c.lookback
	if min := start + c.overlap + 1; low < min {
		low = min
	}
	if low >= end {
		return end
	}
	if cut := lastParagraphBreak(runes, low, end); cut > 0 {
		return cut
	}
	if cut := lastSentenceEnd(runes, low, end); cut > 0 {
		return cut
	}
	return end
}

// lastParagraphBreak returns the position just after the last "\n\n" within
// [low, end), or 0 when none exists.
func lastParagraphBreak(runes []rune, low, end int) int {
	for i := end - 1; i > low; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return 0
}

// lastSentenceEnd returns the position just after the last sentence
// terminator followed by whitespace within [low, end), or 0 when none.
func lastSentenceEnd(runes []rune, low, end int) int {
	for i := end - 1; i > low; i-- {
		if !isSpace(runes[i]) {
			continue
		}
		if isSentenceEnd(runes[i-1]) {
			return i + 1
		}
	}
	return 0
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Rejoin reverses Split: the first chunk plus every later chunk with its
// leading overlap runes dropped.
func Rejoin(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) <= overlap {
			continue
		}
		sb.WriteString(string(runes[overlap:]))
	}
	return sb.String()
}

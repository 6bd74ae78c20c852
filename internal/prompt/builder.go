package prompt

import (
	"fmt"
	"strings"

	"github.com/complyq/complyq/internal/config"
	"github.com/complyq/complyq/internal/model"
)

const defaultContextWindow = 8000

const (
	styleDefault = "default"
	styleTerse   = "terse"
)

// Builder renders the final instruction text for a model. It is a pure
// function of its inputs: no clock, no randomness, no state.
type Builder struct {
	windows map[string]int
	styles  map[string]string
}

func NewBuilder(models []config.ModelConfig) *Builder {
	b := &Builder{
		windows: make(map[string]int, len(models)),
		styles:  make(map[string]string, len(models)),
	}
	for _, m := range models {
		if m.ContextWindow > 0 {
			b.windows[m.ID] = m.ContextWindow
		}
		if m.Style != "" {
			b.styles[m.ID] = m.Style
		}
	}
	return b
}

type Input struct {
	Query   string
	Mode    model.ContextMode
	ModelID string
	Block   model.ContextBlock
}

// Build assembles the prompt. When the context block would push the prompt
// past the model's window, the lowest-ranked chunks are dropped first; the
// query is never cut.
func (b *Builder) Build(in Input) string {
	window := b.windows[in.ModelID]
	if window <= 0 {
		window = defaultContextWindow
	}
	style := b.styles[in.ModelID]
	if style == "" {
		style = styleDefault
	}

	chunks := in.Block.Chunks
	for {
		prompt := render(style, in.Query, chunks)
		if len([]rune(prompt)) <= window || len(chunks) == 0 {
			return prompt
		}
		chunks = chunks[:len(chunks)-1]
	}
}

func render(style, query string, chunks []model.ContextChunk) string {
	var sb strings.Builder
	if len(chunks) == 0 {
		switch style {
		case styleTerse:
			sb.WriteString("Answer the question. If you do not know, say so.\n\n")
		default:
			sb.WriteString("You are a compliance assistant. No supporting passages were retrieved for this question; answer from general knowledge and say explicitly when you are unsure.\n\n")
		}
		sb.WriteString("Question: ")
		sb.WriteString(query)
		return sb.String()
	}

	switch style {
	case styleTerse:
		sb.WriteString("Use the context to answer. Cite sources. If the context does not contain the answer, say so.\n\n")
	default:
		sb.WriteString("You are a compliance assistant. Answer the question using only the context passages below. ")
		sb.WriteString("Cite the source document of every claim. If the context does not contain the answer, say that the documents do not cover it.\n\n")
	}
	sb.WriteString("Context:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] (%s, %s)\n%s\n\n", i+1, chunk.DocumentName, chunk.Collection, chunk.Text)
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

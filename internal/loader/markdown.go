package loader

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// extractMarkdown walks the goldmark AST and emits one unit per top-level
// block, labeled with the nearest level 1-2 heading.
func extractMarkdown(data []byte) ([]Unit, error) {
	if !utf8.Valid(data) {
		return nil, appErr.ErrCorruptInput
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)

	var units []Unit
	var currentHeading string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 2 {
			currentHeading = string(h.Text(data))
			continue
		}
		txt := blockText(node, data)
		if txt == "" {
			continue
		}
		units = append(units, Unit{Text: txt, Section: currentHeading})
	}
	return units, nil
}

func blockText(n ast.Node, source []byte) string {
	if fenced, ok := n.(*ast.FencedCodeBlock); ok {
		var sb strings.Builder
		for i := 0; i < fenced.Lines().Len(); i++ {
			line := fenced.Lines().At(i)
			sb.Write(line.Value(source))
		}
		return strings.TrimSpace(sb.String())
	}
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			if node.(*ast.Text).HardLineBreak() || node.(*ast.Text).SoftLineBreak() {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

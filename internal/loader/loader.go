package loader

import (
	"path/filepath"
	"strings"

	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// Unit is one extracted piece of plain text with its page or section label.
type Unit struct {
	Text    string
	Section string
}

// Loader converts a raw upload into plain-text units. It holds no state
// beyond its limits; persistence is the caller's responsibility.
type Loader struct {
	maxBytes int64
}

func New(maxBytes int64) *Loader {
	return &Loader{maxBytes: maxBytes}
}

// DetectFormat resolves the closed format set once at entry. Unrecognized
// extensions map to FormatUnknown, a distinct variant.
func DetectFormat(filename string) model.DocumentFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return model.FormatPDF
	case ".txt", ".text", ".log":
		return model.FormatText
	case ".md", ".markdown":
		return model.FormatMarkdown
	case ".csv":
		return model.FormatCSV
	case ".xlsx", ".xlsm":
		return model.FormatSpreadsheet
	case ".docx":
		return model.FormatWord
	default:
		return model.FormatUnknown
	}
}

// Load extracts the text units for data in the given format. Oversized
// inputs fail with ErrPayloadTooLarge rather than truncating silently.
func (l *Loader) Load(data []byte, format model.DocumentFormat) ([]Unit, error) {
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, appErr.ErrPayloadTooLarge
	}
	var units []Unit
	var err error
	switch format {
	case model.FormatPDF:
		units, err = extractPDF(data)
	case model.FormatText:
		units, err = extractText(data)
	case model.FormatMarkdown:
		units, err = extractMarkdown(data)
	case model.FormatCSV:
		units, err = extractCSV(data)
	case model.FormatSpreadsheet:
		units, err = extractSpreadsheet(data)
	case model.FormatWord:
		units, err = extractWord(data)
	default:
		return nil, appErr.ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	units = normalizeUnits(units)
	if l.maxBytes > 0 {
		var total int64
		for _, u := range units {
			total += int64(len(u.Text))
		}
		if total > l.maxBytes {
			return nil, appErr.ErrPayloadTooLarge
		}
	}
	return units, nil
}

// JoinUnits concatenates unit texts into the single normalized text the
// chunker consumes.
func JoinUnits(units []Unit) string {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// SectionAt maps an offset in the joined text back to the label of the unit
// containing it.
func SectionAt(units []Unit, offset int) string {
	pos := 0
	for i, u := range units {
		if u.Text == "" {
			continue
		}
		end := pos + len([]rune(u.Text))
		if offset < end || i == len(units)-1 {
			return u.Section
		}
		pos = end + 2
	}
	return ""
}

func normalizeUnits(units []Unit) []Unit {
	out := units[:0]
	for _, u := range units {
		u.Text = NormalizeText(u.Text)
		if u.Text == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}

// NormalizeText canonicalizes line endings, drops control characters and
// collapses runs of blank lines and spaces.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var sb strings.Builder
	sb.Grow(len(text))
	var pendingSpace bool
	newlines := 0
	for _, r := range text {
		switch {
		case r == '\n':
			pendingSpace = false
			newlines++
			if newlines <= 2 {
				sb.WriteRune('\n')
			}
		case r == ' ' || r == '\t':
			if newlines == 0 {
				pendingSpace = true
			}
		case r < 0x20 || r == 0xFFFD:
			// control characters and replacement runes are artifacts
		default:
			if pendingSpace {
				sb.WriteRune(' ')
				pendingSpace = false
			}
			sb.WriteRune(r)
			newlines = 0
		}
	}
	return strings.TrimSpace(sb.String())
}

package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// extractWord pulls paragraph text out of a .docx archive. The format is a
// zip holding word/document.xml; text lives in w:t elements, paragraphs end
// at w:p closers.
func extractWord(data []byte) ([]Unit, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErr.ErrCorruptInput
	}
	var docFile *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, appErr.ErrCorruptInput
	}
	rc, err := docFile.Open()
	if err != nil {
		return nil, appErr.ErrCorruptInput
	}
	defer rc.Close()

	var sb strings.Builder
	var inText bool
	decoder := xml.NewDecoder(rc)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErr.ErrCorruptInput
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

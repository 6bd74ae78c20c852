package loader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

func extractPDF(data []byte) (units []Unit, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = appErr.ErrCorruptInput
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErr.ErrCorruptInput
	}
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, appErr.ErrCorruptInput
		}
		if text == "" {
			continue
		}
		units = append(units, Unit{
			Text:    text,
			Section: fmt.Sprintf("page %d", i),
		})
	}
	return units, nil
}

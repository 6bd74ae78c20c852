package loader

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// extractSpreadsheet emits one unit per sheet, rows joined as
// tab-separated lines with the first row treated as the header.
func extractSpreadsheet(data []byte) ([]Unit, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErr.ErrCorruptInput
	}
	defer book.Close()

	var units []Unit
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, appErr.ErrCorruptInput
		}
		var sb strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		units = append(units, Unit{Text: text, Section: sheet})
	}
	return units, nil
}

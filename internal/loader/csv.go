package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// extractCSV renders each record as "header: value" lines so column meaning
// survives into the retrieved text, one unit per record.
func extractCSV(data []byte) ([]Unit, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.ErrCorruptInput
	}

	var units []Unit
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErr.ErrCorruptInput
		}
		row++
		var sb strings.Builder
		for i, field := range record {
			if strings.TrimSpace(field) == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				sb.WriteString(strings.TrimSpace(header[i]))
				sb.WriteString(": ")
			}
			sb.WriteString(strings.TrimSpace(field))
			sb.WriteByte('\n')
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		units = append(units, Unit{Text: text, Section: fmt.Sprintf("row %d", row)})
	}
	return units, nil
}

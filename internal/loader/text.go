package loader

import (
	"unicode/utf8"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

func extractText(data []byte) ([]Unit, error) {
	if !utf8.Valid(data) {
		return nil, appErr.ErrCorruptInput
	}
	return []Unit{{Text: string(data)}}, nil
}

package service

import (
	"fmt"

	"github.com/google/uuid"
)

func newDocumentID() string {
	return uuid.NewString()
}

// chunkID is deterministic so that re-ingesting or rebuilding the same
// document produces an equivalent index.
func chunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%04d", docID, ordinal)
}

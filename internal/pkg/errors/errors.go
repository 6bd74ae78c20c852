package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal")

	// Ingestion-time failures. Surfaced to the uploader, not retryable
	// without fixing the input.
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrCorruptInput         = errors.New("corrupt input")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrIndexUnavailable marks a collection index that failed to load.
	// Retrieval degrades to the remaining collections instead of failing.
	ErrIndexUnavailable = errors.New("index unavailable")

	// External dependency outages, retryable by the caller.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrModelUnavailable     = errors.New("model unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsIngestInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptInput) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidConfiguration)
}

package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrInternal
	ErrUnsupportedFormat
	ErrCorruptInput
	ErrPayloadTooLarge
	ErrInvalidConfiguration
	ErrIndexUnavailable
	ErrEmbeddingUnavailable
	ErrModelUnavailable
	ErrUploadFailed
	ErrTooMany
)

package model

type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusProcessed DocumentStatus = "processed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// DocumentFormat is a closed set resolved once when an upload enters the
// loader. Unknown is its own variant, not a fallthrough.
type DocumentFormat string

const (
	FormatPDF         DocumentFormat = "pdf"
	FormatText        DocumentFormat = "text"
	FormatMarkdown    DocumentFormat = "markdown"
	FormatCSV         DocumentFormat = "csv"
	FormatSpreadsheet DocumentFormat = "spreadsheet"
	FormatWord        DocumentFormat = "word"
	FormatUnknown     DocumentFormat = "unknown"
)

type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Collection string         `json:"collection"`
	Format     DocumentFormat `json:"format"`
	SizeBytes  int64          `json:"size_bytes"`
	Status     DocumentStatus `json:"status"`
	FailReason string         `json:"fail_reason,omitempty"`
	ChunkCount int            `json:"chunk_count"`
	Ctime      int64          `json:"ctime"`
	Mtime      int64          `json:"mtime"`
}

package model

// ContextMode selects which collections a query consults.
type ContextMode string

const (
	ModeRegulatory ContextMode = "regulatory"
	ModeProcedures ContextMode = "procedures"
	ModeBoth       ContextMode = "both"
	ModeNone       ContextMode = "none"
)

func (m ContextMode) Collections() []string {
	switch m {
	case ModeRegulatory:
		return []string{CollectionRegulatory}
	case ModeProcedures:
		return []string{CollectionProcedures}
	case ModeBoth:
		return []string{CollectionRegulatory, CollectionProcedures}
	default:
		return nil
	}
}

func (m ContextMode) Valid() bool {
	switch m {
	case ModeRegulatory, ModeProcedures, ModeBoth, ModeNone:
		return true
	}
	return false
}

const (
	CollectionRegulatory = "regulatory"
	CollectionProcedures = "procedures"
	CollectionMapping    = "mapping"
)

func ValidCollection(name string) bool {
	switch name {
	case CollectionRegulatory, CollectionProcedures, CollectionMapping:
		return true
	}
	return false
}

// ContextChunk is a single retrieved passage accepted into a context block.
type ContextChunk struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Collection   string  `json:"collection"`
	Ordinal      int     `json:"ordinal"`
	Text         string  `json:"text"`
	Score        float32 `json:"score"`
}

// ContextBlock carries the final, budget-bounded passages for one query.
// Transient, never persisted.
type ContextBlock struct {
	Chunks     []ContextChunk `json:"chunks"`
	TotalChars int            `json:"total_chars"`
	Sources    []string       `json:"sources"`
	Degraded   bool           `json:"degraded"`
}

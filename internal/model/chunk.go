package model

type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Content    string `json:"content"`
	CharLen    int    `json:"char_len"`
	Section    string `json:"section,omitempty"`
	Ctime      int64  `json:"ctime"`
}

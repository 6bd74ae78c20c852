package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/complyq/complyq/internal/model"
)

var chunkFields = []string{"id", "document_id", "ordinal", "content", "char_len", "section", "ctime"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		data = append(data, map[string]interface{}{
			"id":          chunk.ID,
			"document_id": chunk.DocumentID,
			"ordinal":     chunk.Ordinal,
			"content":     chunk.Content,
			"char_len":    chunk.CharLen,
			"section":     chunk.Section,
			"ctime":       chunk.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "ordinal asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &chunk.CharLen, &chunk.Section, &chunk.Ctime); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// GetByIDs fetches chunk bodies for the given identifiers, keyed by ID.
// Missing IDs are simply absent from the result.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Chunk, error) {
	out := make(map[string]*model.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	where := map[string]interface{}{"id in": ids}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var chunk model.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &chunk.CharLen, &chunk.Section, &chunk.Ctime); err != nil {
			return nil, err
		}
		out[chunk.ID] = &chunk
	}
	return out, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{"document_id": docID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListIDs returns every live chunk identifier. The reconcile job diffs this
// against the vector index to find orphaned entries.
func (r *ChunkRepo) ListIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

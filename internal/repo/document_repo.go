package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

var documentFields = []string{"id", "name", "collection", "format", "size_bytes", "status", "fail_reason", "chunk_count", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"name":        doc.Name,
		"collection":  doc.Collection,
		"format":      string(doc.Format),
		"size_bytes":  doc.SizeBytes,
		"status":      string(doc.Status),
		"fail_reason": doc.FailReason,
		"chunk_count": doc.ChunkCount,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID string, status model.DocumentStatus, failReason string, chunkCount int, mtime int64) error {
	where := map[string]interface{}{
		"id": docID,
	}
	update := map[string]interface{}{
		"status":      string(status),
		"fail_reason": failReason,
		"chunk_count": chunkCount,
		"mtime":       mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id": docID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	doc, err := scanDocument(rows)
	if err != nil {
		return nil, err
	}
	return doc, rows.Err()
}

func (r *DocumentRepo) List(ctx context.Context, collection string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if collection != "" {
		where["collection"] = collection
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) ListByStatus(ctx context.Context, status model.DocumentStatus, olderThan int64) ([]*model.Document, error) {
	where := map[string]interface{}{
		"status":     string(status),
		"mtime <":    olderThan,
		"_orderby":   "mtime asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": docID})
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var format, status string
	if err := rows.Scan(&doc.ID, &doc.Name, &doc.Collection, &format, &doc.SizeBytes, &status, &doc.FailReason, &doc.ChunkCount, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	doc.Format = model.DocumentFormat(format)
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}

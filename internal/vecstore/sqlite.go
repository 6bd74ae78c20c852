package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	"github.com/didi/gendry/builder"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// SQLiteStore keeps vectors in the service database and answers queries
// from an in-memory copy per collection. The corpus is bounded (thousands
// of chunks), so a brute-force cosine scan stays well inside the latency
// budget.
type SQLiteStore struct {
	db      *sql.DB
	indexes map[string]*sqliteIndex
}

func NewSQLiteStore(ctx context.Context, db *sql.DB, collections []string) *SQLiteStore {
	store := &SQLiteStore{
		db:      db,
		indexes: make(map[string]*sqliteIndex, len(collections)),
	}
	for _, name := range collections {
		idx := &sqliteIndex{db: db, collection: name}
		idx.load(ctx)
		store.indexes[name] = idx
	}
	return store
}

func (s *SQLiteStore) Collection(name string) Index {
	idx, ok := s.indexes[name]
	if !ok {
		return nil
	}
	return idx
}

func (s *SQLiteStore) Collections() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names
}

type sqliteIndex struct {
	db         *sql.DB
	collection string

	// mu guards entries; writeMu serializes mutations so concurrent
	// ingestion into one collection keeps single-writer discipline while
	// queries proceed under the read lock.
	mu      sync.RWMutex
	writeMu sync.Mutex
	entries map[string]Entry
	loadErr error
}

var vectorEntryFields = []string{"chunk_id", "document_id", "document_name", "ordinal", "embedding", "ctime"}

func (idx *sqliteIndex) load(ctx context.Context) {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", idx.collection))
	entries := make(map[string]Entry)
	where := map[string]interface{}{
		"collection": idx.collection,
	}
	sqlStr, args, err := builder.BuildSelect("vector_entries", where, vectorEntryFields)
	if err != nil {
		idx.loadErr = err
		return
	}
	rows, err := idx.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		logger.Error("vector index load failed", zap.Error(err))
		idx.loadErr = err
		return
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		var blob []byte
		if err := rows.Scan(&entry.ChunkID, &entry.Meta.DocumentID, &entry.Meta.DocumentName, &entry.Meta.Ordinal, &blob, &entry.Meta.Ctime); err != nil {
			logger.Error("vector index row scan failed", zap.Error(err))
			idx.loadErr = err
			return
		}
		if err := json.Unmarshal(blob, &entry.Vector); err != nil {
			// A corrupt vector poisons the whole collection; callers
			// recover via rebuild.
			logger.Error("vector index corrupt entry", zap.String("chunk_id", entry.ChunkID), zap.Error(err))
			idx.loadErr = appErr.ErrIndexUnavailable
			return
		}
		entry.Meta.Collection = idx.collection
		entries[entry.ChunkID] = entry
	}
	if err := rows.Err(); err != nil {
		idx.loadErr = err
		return
	}
	idx.entries = entries
	idx.loadErr = nil
	logger.Info("vector index loaded", zap.Int("entries", len(entries)))
}

func (idx *sqliteIndex) Healthy() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.loadErr != nil {
		return appErr.ErrIndexUnavailable
	}
	return nil
}

func (idx *sqliteIndex) Insert(ctx context.Context, entry Entry) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.Healthy(); err != nil {
		return err
	}
	blob, err := json.Marshal(entry.Vector)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"chunk_id":      entry.ChunkID,
		"collection":    idx.collection,
		"document_id":   entry.Meta.DocumentID,
		"document_name": entry.Meta.DocumentName,
		"ordinal":       entry.Meta.Ordinal,
		"embedding":     blob,
		"ctime":         entry.Meta.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("vector_entries", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	if _, err := idx.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	entry.Meta.Collection = idx.collection
	idx.mu.Lock()
	idx.entries[entry.ChunkID] = entry
	idx.mu.Unlock()
	return nil
}

func (idx *sqliteIndex) Delete(ctx context.Context, chunkID string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	sqlStr, args, err := builder.BuildDelete("vector_entries", map[string]interface{}{
		"chunk_id":   chunkID,
		"collection": idx.collection,
	})
	if err != nil {
		return err
	}
	if _, err := idx.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	idx.mu.Lock()
	delete(idx.entries, chunkID)
	idx.mu.Unlock()
	return nil
}

func (idx *sqliteIndex) DeleteByDocument(ctx context.Context, docID string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	sqlStr, args, err := builder.BuildDelete("vector_entries", map[string]interface{}{
		"document_id": docID,
		"collection":  idx.collection,
	})
	if err != nil {
		return err
	}
	if _, err := idx.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	idx.mu.Lock()
	for id, entry := range idx.entries {
		if entry.Meta.DocumentID == docID {
			delete(idx.entries, id)
		}
	}
	idx.mu.Unlock()
	return nil
}

func (idx *sqliteIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	_ = ctx
	if err := idx.Healthy(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	results := make([]Result, 0, len(idx.entries))
	for _, entry := range idx.entries {
		results = append(results, Result{
			ChunkID: entry.ChunkID,
			Score:   cosineSimilarity(vector, entry.Vector),
			Meta:    entry.Meta,
		})
	}
	idx.mu.RUnlock()
	return rankResults(results, k), nil
}

func (idx *sqliteIndex) Rebuild(ctx context.Context, entries []Entry) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vector_entries WHERE collection = ?", idx.collection); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, entry := range entries {
		blob, err := json.Marshal(entry.Vector)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vector_entries (chunk_id, collection, document_id, document_name, ordinal, embedding, ctime) VALUES (?, ?, ?, ?, ?, ?, ?)",
			entry.ChunkID, idx.collection, entry.Meta.DocumentID, entry.Meta.DocumentName, entry.Meta.Ordinal, blob, entry.Meta.Ctime,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fresh := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		entry.Meta.Collection = idx.collection
		fresh[entry.ChunkID] = entry
	}
	idx.mu.Lock()
	idx.entries = fresh
	idx.loadErr = nil
	idx.mu.Unlock()
	return nil
}

func (idx *sqliteIndex) ChunkIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	if err := idx.Healthy(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.entries))
	for id := range idx.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

func (idx *sqliteIndex) Count(ctx context.Context) (int, error) {
	_ = ctx
	if err := idx.Healthy(); err != nil {
		return 0, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

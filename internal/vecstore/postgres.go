package vecstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/complyq/complyq/internal/pkg/dbutil"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
)

// PgStore delegates nearest-neighbor search to postgres with the pgvector
// extension. Suited to deployments where the corpus outgrows the in-memory
// scan of the sqlite backend.
type PgStore struct {
	db      *sql.DB
	indexes map[string]*pgIndex
}

type PgConfig struct {
	DSN string `json:"dsn"`
}

func NewPgStore(ctx context.Context, cfg PgConfig, collections []string) (*PgStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector store dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := migratePg(ctx, db); err != nil {
		return nil, err
	}
	store := &PgStore{
		db:      db,
		indexes: make(map[string]*pgIndex, len(collections)),
	}
	for _, name := range collections {
		store.indexes[name] = &pgIndex{db: db, collection: name}
	}
	return store, nil
}

func migratePg(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_entries (
			chunk_id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			document_id TEXT NOT NULL,
			document_name TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			embedding vector NOT NULL,
			ctime BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_entries_collection ON vector_entries(collection)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_entries_document ON vector_entries(document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector migration: %w", err)
		}
	}
	return nil
}

func (s *PgStore) Collection(name string) Index {
	idx, ok := s.indexes[name]
	if !ok {
		return nil
	}
	return idx
}

func (s *PgStore) Collections() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names
}

type pgIndex struct {
	db         *sql.DB
	collection string
	writeMu    sync.Mutex
}

func (idx *pgIndex) Healthy() error {
	if err := idx.db.Ping(); err != nil {
		return appErr.ErrIndexUnavailable
	}
	return nil
}

func (idx *pgIndex) Insert(ctx context.Context, entry Entry) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	query := dbutil.Rebind(`
		INSERT INTO vector_entries (chunk_id, collection, document_id, document_name, ordinal, embedding, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET
			collection = EXCLUDED.collection,
			document_id = EXCLUDED.document_id,
			document_name = EXCLUDED.document_name,
			ordinal = EXCLUDED.ordinal,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`)
	_, err := idx.db.ExecContext(ctx, query,
		entry.ChunkID, idx.collection, entry.Meta.DocumentID, entry.Meta.DocumentName,
		entry.Meta.Ordinal, pgvector.NewVector(entry.Vector), entry.Meta.Ctime,
	)
	return err
}

func (idx *pgIndex) Delete(ctx context.Context, chunkID string) error {
	query := dbutil.Rebind(`DELETE FROM vector_entries WHERE chunk_id = ? AND collection = ?`)
	_, err := idx.db.ExecContext(ctx, query, chunkID, idx.collection)
	return err
}

func (idx *pgIndex) DeleteByDocument(ctx context.Context, docID string) error {
	query := dbutil.Rebind(`DELETE FROM vector_entries WHERE document_id = ? AND collection = ?`)
	_, err := idx.db.ExecContext(ctx, query, docID, idx.collection)
	return err
}

func (idx *pgIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	query := dbutil.Rebind(`
		SELECT chunk_id, document_id, document_name, ordinal, ctime, 1 - (embedding <=> ?) AS score
		FROM vector_entries
		WHERE collection = ?
		ORDER BY score DESC, ctime DESC, chunk_id ASC
		LIMIT ?
	`)
	rows, err := idx.db.QueryContext(ctx, query, pgvector.NewVector(vector), idx.collection, k)
	if err != nil {
		return nil, appErr.ErrIndexUnavailable
	}
	defer rows.Close()
	var results []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ChunkID, &res.Meta.DocumentID, &res.Meta.DocumentName, &res.Meta.Ordinal, &res.Meta.Ctime, &res.Score); err != nil {
			return nil, err
		}
		res.Meta.Collection = idx.collection
		res.Rank = len(results)
		results = append(results, res)
	}
	return results, rows.Err()
}

func (idx *pgIndex) Rebuild(ctx context.Context, entries []Entry) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	del := dbutil.Rebind(`DELETE FROM vector_entries WHERE collection = ?`)
	if _, err := tx.ExecContext(ctx, del, idx.collection); err != nil {
		_ = tx.Rollback()
		return err
	}
	ins := dbutil.Rebind(`
		INSERT INTO vector_entries (chunk_id, collection, document_id, document_name, ordinal, embedding, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, ins,
			entry.ChunkID, idx.collection, entry.Meta.DocumentID, entry.Meta.DocumentName,
			entry.Meta.Ordinal, pgvector.NewVector(entry.Vector), entry.Meta.Ctime,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (idx *pgIndex) ChunkIDs(ctx context.Context) ([]string, error) {
	query := dbutil.Rebind(`SELECT chunk_id FROM vector_entries WHERE collection = ?`)
	rows, err := idx.db.QueryContext(ctx, query, idx.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (idx *pgIndex) Count(ctx context.Context) (int, error) {
	query := dbutil.Rebind(`SELECT COUNT(*) FROM vector_entries WHERE collection = ?`)
	var count int
	if err := idx.db.QueryRowContext(ctx, query, idx.collection).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

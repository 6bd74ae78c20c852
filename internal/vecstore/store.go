package vecstore

import (
	"context"
	"math"
	"sort"
)

// EntryMeta is denormalized alongside each vector so query results can be
// assembled without joining back to the chunk table.
type EntryMeta struct {
	DocumentID   string
	DocumentName string
	Collection   string
	Ordinal      int
	Ctime        int64
}

type Entry struct {
	ChunkID string
	Vector  []float32
	Meta    EntryMeta
}

type Result struct {
	ChunkID string
	Score   float32
	Rank    int
	Meta    EntryMeta
}

// Index is one named collection's durable vector store.
//
// Insert is idempotent by chunk ID. Query returns results ordered by
// descending similarity, ties broken by most recent chunk then chunk ID;
// an empty index yields an empty slice, never an error. Healthy reports
// ErrIndexUnavailable after a failed load until Rebuild succeeds.
type Index interface {
	Insert(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, chunkID string) error
	DeleteByDocument(ctx context.Context, docID string) error
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
	Rebuild(ctx context.Context, entries []Entry) error
	ChunkIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Healthy() error
}

// Store hands out the per-collection indexes.
type Store interface {
	Collection(name string) Index
	Collections() []string
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rankResults orders candidates by descending score, most recent chunk
// first on ties, then chunk ID for a stable total order.
func rankResults(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Meta.Ctime != results[j].Meta.Ctime {
			return results[i].Meta.Ctime > results[j].Meta.Ctime
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results
}

package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/complyq/complyq/internal/repo"
)

type countingEmbedder struct {
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, context.DeadlineExceeded
	}
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test-model"
}

func TestLruCacheAvoidsRepeatCalls(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "same text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "same text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	// Same text under a different task type is a distinct key.
	_, err = cached.Embed(ctx, "same text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLruCacheReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	first[0] = 99

	second, err := cached.Embed(ctx, "text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, float32(1), second[0])
}

func TestWrapWithInvalidSettingsIsPassthrough(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 16, 0))
}

func TestDBCachePersistsAcrossEmbedders(t *testing.T) {
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))
	cacheRepo := repo.NewEmbeddingCacheRepo(db)
	ctx := context.Background()

	first := &countingEmbedder{}
	cached := WrapDBCacheToEmbedder(first, cacheRepo)
	_, err = cached.Embed(ctx, "durable text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 1, first.calls)

	// A fresh wrapper over the same database serves the stored vector.
	second := &countingEmbedder{}
	cached = WrapDBCacheToEmbedder(second, cacheRepo)
	vec, err := cached.Embed(ctx, "durable text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
	require.Equal(t, 0, second.calls)
}

func TestDBCacheErrorFallsThroughToEmbedder(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cached := WrapDBCacheToEmbedder(inner, nil)
	_, err := cached.Embed(context.Background(), "text", "RETRIEVAL_DOCUMENT")
	require.Error(t, err)
}

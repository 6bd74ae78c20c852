package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/repo"
)

func openTestDB(t *testing.T) *repo.DocumentRepo {
	t.Helper()
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))
	return repo.NewDocumentRepo(db)
}

func TestDocumentRepoLifecycle(t *testing.T) {
	docs := openTestDB(t)
	ctx := context.Background()
	now := time.Now().Unix()

	doc := &model.Document{
		ID:         "doc-1",
		Name:       "aml-policy.pdf",
		Collection: model.CollectionRegulatory,
		Format:     model.FormatPDF,
		SizeBytes:  1024,
		Status:     model.DocumentStatusPending,
		Ctime:      now,
		Mtime:      now,
	}
	require.NoError(t, docs.Create(ctx, doc))

	fetched, err := docs.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "aml-policy.pdf", fetched.Name)
	require.Equal(t, model.DocumentStatusPending, fetched.Status)

	require.NoError(t, docs.UpdateStatus(ctx, "doc-1", model.DocumentStatusProcessed, "", 7, now+10))
	fetched, err = docs.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusProcessed, fetched.Status)
	require.Equal(t, 7, fetched.ChunkCount)
	require.Equal(t, now+10, fetched.Mtime)

	require.NoError(t, docs.Delete(ctx, "doc-1"))
	_, err = docs.GetByID(ctx, "doc-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, docs.Delete(ctx, "doc-1"), appErr.ErrNotFound)
}

func TestDocumentRepoListFiltersByCollection(t *testing.T) {
	docs := openTestDB(t)
	ctx := context.Background()
	now := time.Now().Unix()

	for i, collection := range []string{model.CollectionRegulatory, model.CollectionProcedures, model.CollectionRegulatory} {
		require.NoError(t, docs.Create(ctx, &model.Document{
			ID:         string(rune('a' + i)),
			Name:       "doc",
			Collection: collection,
			Format:     model.FormatText,
			Status:     model.DocumentStatusProcessed,
			Ctime:      now + int64(i),
			Mtime:      now + int64(i),
		}))
	}

	regulatory, err := docs.List(ctx, model.CollectionRegulatory)
	require.NoError(t, err)
	require.Len(t, regulatory, 2)
	// Newest first.
	require.Equal(t, "c", regulatory[0].ID)

	all, err := docs.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDocumentRepoListByStatusHonorsCutoff(t *testing.T) {
	docs := openTestDB(t)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, docs.Create(ctx, &model.Document{
		ID: "old", Name: "old", Collection: model.CollectionRegulatory,
		Format: model.FormatText, Status: model.DocumentStatusPending,
		Ctime: now - 7200, Mtime: now - 7200,
	}))
	require.NoError(t, docs.Create(ctx, &model.Document{
		ID: "fresh", Name: "fresh", Collection: model.CollectionRegulatory,
		Format: model.FormatText, Status: model.DocumentStatusPending,
		Ctime: now, Mtime: now,
	}))

	stuck, err := docs.ListByStatus(ctx, model.DocumentStatusPending, now-3600)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, "old", stuck[0].ID)
}

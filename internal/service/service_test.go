package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/complyq/complyq/internal/chunker"
	"github.com/complyq/complyq/internal/config"
	"github.com/complyq/complyq/internal/filestore"
	"github.com/complyq/complyq/internal/loader"
	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/prompt"
	"github.com/complyq/complyq/internal/repo"
	"github.com/complyq/complyq/internal/vecstore"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	// Default direction keeps unrelated texts orthogonal to the fixtures.
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

type fakeGenerator struct {
	answer string
	fail   bool
	prompt string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, modelID string, text string) (string, error) {
	f.prompt = text
	if f.fail {
		return "", fmt.Errorf("generator down")
	}
	return f.answer, nil
}

type testEnv struct {
	docs      *repo.DocumentRepo
	chunks    *repo.ChunkRepo
	store     vecstore.Store
	embed     *fakeEmbedder
	ingest    *IngestService
	retrieval *RetrievalService
}

func newTestEnv(t *testing.T, rcfg config.RetrievalConfig) *testEnv {
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))

	docs := repo.NewDocumentRepo(db)
	chunks := repo.NewChunkRepo(db)
	store := vecstore.NewSQLiteStore(context.Background(), db, []string{model.CollectionRegulatory, model.CollectionProcedures, model.CollectionMapping})

	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	split, err := chunker.New(100, 20)
	require.NoError(t, err)

	embed := &fakeEmbedder{vectors: map[string][]float32{}}
	ingest := NewIngestService(docs, chunks, files, loader.New(1<<20), split, embed, store, 2)
	t.Cleanup(ingest.Close)
	retrieval := NewRetrievalService(embed, store, chunks, rcfg)

	return &testEnv{docs: docs, chunks: chunks, store: store, embed: embed, ingest: ingest, retrieval: retrieval}
}

func waitForDocument(t *testing.T, env *testEnv, docID string) *model.Document {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := env.ingest.Status(context.Background(), docID)
		require.NoError(t, err)
		if doc.Status != model.DocumentStatusPending {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("document %s still pending", docID)
	return nil
}

func TestIngestLifecycle(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	ctx := context.Background()

	text := strings.Repeat("the retention period for client records is ten years. ", 8)
	doc, err := env.ingest.Submit(ctx, "retention.txt", model.CollectionRegulatory, []byte(text))
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusPending, doc.Status)

	done := waitForDocument(t, env, doc.ID)
	require.Equal(t, model.DocumentStatusProcessed, done.Status)
	require.Greater(t, done.ChunkCount, 0)

	stored, err := env.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, done.ChunkCount)

	count, err := env.store.Collection(model.CollectionRegulatory).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, done.ChunkCount, count)

	block, err := env.retrieval.Assemble(ctx, "how long are client records kept", model.ModeRegulatory)
	require.NoError(t, err)
	require.NotEmpty(t, block.Chunks)
	require.False(t, block.Degraded)
	require.Contains(t, block.Sources, "retention.txt")
}

func TestSubmitRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{})
	ctx := context.Background()

	_, err := env.ingest.Submit(ctx, "notes.txt", "unknown-collection", []byte("x"))
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = env.ingest.Submit(ctx, "binary.exe", model.CollectionRegulatory, []byte("x"))
	require.ErrorIs(t, err, appErr.ErrUnsupportedFormat)
}

func TestSubmitAcceptsMappingCollection(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{})
	ctx := context.Background()

	doc, err := env.ingest.Submit(ctx, "controls.txt", model.CollectionMapping, []byte("control C-12 maps to procedure P-4 and regulation article 17"))
	require.NoError(t, err)

	done := waitForDocument(t, env, doc.ID)
	require.Equal(t, model.DocumentStatusProcessed, done.Status)

	ids, err := env.store.Collection(model.CollectionMapping).ChunkIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, done.ChunkCount)
}

// stallEmbedder parks inside Embed until its context is cancelled, holding
// an ingestion run at the point where chunk rows exist but no vectors do.
type stallEmbedder struct {
	entered chan struct{}
	once    sync.Once
}

func (e *stallEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.once.Do(func() { close(e.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *stallEmbedder) ModelName() string { return "stall" }

func TestCloseDuringIngestRollsBackPartialWrites(t *testing.T) {
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))
	ctx := context.Background()

	docs := repo.NewDocumentRepo(db)
	chunks := repo.NewChunkRepo(db)
	store := vecstore.NewSQLiteStore(ctx, db, []string{model.CollectionRegulatory})
	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	split, err := chunker.New(100, 20)
	require.NoError(t, err)

	embed := &stallEmbedder{entered: make(chan struct{})}
	ingest := NewIngestService(docs, chunks, files, loader.New(1<<20), split, embed, store, 1)

	text := strings.Repeat("records retention rules apply here. ", 10)
	doc, err := ingest.Submit(ctx, "held.txt", model.CollectionRegulatory, []byte(text))
	require.NoError(t, err)

	select {
	case <-embed.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion never reached the embedder")
	}
	ingest.Close()

	got, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusPending, got.Status)

	rows, err := chunks.ListIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	entries, err := store.Collection(model.CollectionRegulatory).ChunkIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIngestFailureLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{})
	env.embed.fail = true
	ctx := context.Background()

	doc, err := env.ingest.Submit(ctx, "doomed.txt", model.CollectionProcedures, []byte("some procedure text that will not embed"))
	require.NoError(t, err)

	done := waitForDocument(t, env, doc.ID)
	require.Equal(t, model.DocumentStatusFailed, done.Status)
	require.NotEmpty(t, done.FailReason)
	require.Equal(t, 0, done.ChunkCount)

	stored, err := env.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Empty(t, stored)

	count, err := env.store.Collection(model.CollectionProcedures).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{})
	ctx := context.Background()

	doc, err := env.ingest.Submit(ctx, "to-delete.txt", model.CollectionRegulatory, []byte("short lived document body"))
	require.NoError(t, err)
	waitForDocument(t, env, doc.ID)

	require.NoError(t, env.ingest.Delete(ctx, doc.ID))

	_, err = env.ingest.Status(ctx, doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	stored, err := env.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Empty(t, stored)
	count, err := env.store.Collection(model.CollectionRegulatory).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// seedChunk inserts one chunk with its vector directly, bypassing the
// ingestion pipeline, so ranking tests control every score.
func seedChunk(t *testing.T, env *testEnv, collection, docID, docName string, ordinal int, text string, vector []float32, ctime int64) string {
	ctx := context.Background()
	id := fmt.Sprintf("%s:%04d", docID, ordinal)
	require.NoError(t, env.chunks.InsertBatch(ctx, []*model.Chunk{{
		ID:         id,
		DocumentID: docID,
		Ordinal:    ordinal,
		Content:    text,
		CharLen:    len([]rune(text)),
		Ctime:      ctime,
	}}))
	require.NoError(t, env.store.Collection(collection).Insert(ctx, vecstore.Entry{
		ChunkID: id,
		Vector:  vector,
		Meta: vecstore.EntryMeta{
			DocumentID:   docID,
			DocumentName: docName,
			Collection:   collection,
			Ordinal:      ordinal,
			Ctime:        ctime,
		},
	}))
	return id
}

func TestAssembleModeNoneSkipsEmbedding(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})

	block, err := env.retrieval.Assemble(context.Background(), "anything", model.ModeNone)
	require.NoError(t, err)
	require.Empty(t, block.Chunks)
	require.Empty(t, block.Sources)
	require.False(t, block.Degraded)
	require.Equal(t, 0, env.embed.calls)
}

func TestAssembleMergesCollectionsUnderOneRanking(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 6, MaxContextChars: 6000})
	env.embed.vectors["q"] = []float32{1, 0, 0}

	// Scores descend with the angle away from the query vector.
	seedChunk(t, env, model.CollectionRegulatory, "reg-a", "reg-a.txt", 0, "reg best", []float32{1, 0, 0}, 100)
	seedChunk(t, env, model.CollectionRegulatory, "reg-a", "reg-a.txt", 5, "reg third", []float32{1, 0.4, 0}, 100)
	seedChunk(t, env, model.CollectionProcedures, "proc-b", "proc-b.txt", 0, "proc second", []float32{1, 0.2, 0}, 100)
	seedChunk(t, env, model.CollectionProcedures, "proc-b", "proc-b.txt", 7, "proc fourth", []float32{1, 0.8, 0}, 100)

	block, err := env.retrieval.Assemble(context.Background(), "q", model.ModeBoth)
	require.NoError(t, err)
	require.Len(t, block.Chunks, 4)
	require.Equal(t, "reg best", block.Chunks[0].Text)
	require.Equal(t, "proc second", block.Chunks[1].Text)
	require.Equal(t, "reg third", block.Chunks[2].Text)
	require.Equal(t, "proc fourth", block.Chunks[3].Text)
	require.ElementsMatch(t, []string{"reg-a.txt", "proc-b.txt"}, block.Sources)
	require.Equal(t, 1, env.embed.calls)
}

func TestAssembleBudgetDrawsFromStrongerCollection(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 6, MaxContextChars: 6000})
	env.embed.vectors["q"] = []float32{1, 0, 0}

	// Five candidates per collection; regulatory scores uniformly higher, so
	// the six accepted chunks are five regulatory plus the best procedure.
	for i := 0; i < 5; i++ {
		seedChunk(t, env, model.CollectionRegulatory, fmt.Sprintf("reg-%d", i), fmt.Sprintf("reg-%d.txt", i), 0,
			fmt.Sprintf("reg %d", i), []float32{1, float32(i) * 0.05, 0}, 100)
		seedChunk(t, env, model.CollectionProcedures, fmt.Sprintf("proc-%d", i), fmt.Sprintf("proc-%d.txt", i), 0,
			fmt.Sprintf("proc %d", i), []float32{1, 1 + float32(i)*0.05, 0}, 100)
	}

	block, err := env.retrieval.Assemble(context.Background(), "q", model.ModeBoth)
	require.NoError(t, err)
	require.Len(t, block.Chunks, 6)
	regulatory := 0
	for _, chunk := range block.Chunks[:5] {
		require.Equal(t, model.CollectionRegulatory, chunk.Collection)
		regulatory++
	}
	require.Equal(t, 5, regulatory)
	require.Equal(t, "proc 0", block.Chunks[5].Text)
}

func TestAssembleRespectsChunkBudget(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 2, MaxContextChars: 6000})
	env.embed.vectors["q"] = []float32{1, 0, 0}

	for i := 0; i < 5; i++ {
		seedChunk(t, env, model.CollectionRegulatory, fmt.Sprintf("doc-%d", i), fmt.Sprintf("doc-%d.txt", i), 0,
			fmt.Sprintf("passage %d", i), []float32{1, float32(i) * 0.1, 0}, 100)
	}

	block, err := env.retrieval.Assemble(context.Background(), "q", model.ModeRegulatory)
	require.NoError(t, err)
	require.Len(t, block.Chunks, 2)
	require.Equal(t, "passage 0", block.Chunks[0].Text)
	require.Equal(t, "passage 1", block.Chunks[1].Text)
}

func TestAssembleSkipsOversizedChunkAndContinues(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 40})
	env.embed.vectors["q"] = []float32{1, 0, 0}

	seedChunk(t, env, model.CollectionRegulatory, "doc-big", "doc-big.txt", 0, strings.Repeat("x", 60), []float32{1, 0, 0}, 100)
	seedChunk(t, env, model.CollectionRegulatory, "doc-small", "doc-small.txt", 0, "fits fine", []float32{1, 0.3, 0}, 100)

	block, err := env.retrieval.Assemble(context.Background(), "q", model.ModeRegulatory)
	require.NoError(t, err)
	require.Len(t, block.Chunks, 1)
	require.Equal(t, "fits fine", block.Chunks[0].Text)
	require.Equal(t, []string{"doc-small.txt"}, block.Sources)
}

func TestAssembleAdjacentNeighborSuppression(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000, AdjacentDedup: true})
	env.embed.vectors["q"] = []float32{1, 0, 0}

	seedChunk(t, env, model.CollectionRegulatory, "doc-a", "doc-a.txt", 3, "kept", []float32{1, 0, 0}, 100)
	seedChunk(t, env, model.CollectionRegulatory, "doc-a", "doc-a.txt", 4, "neighbor dropped", []float32{1, 0.1, 0}, 100)
	seedChunk(t, env, model.CollectionRegulatory, "doc-a", "doc-a.txt", 8, "distant kept", []float32{1, 0.2, 0}, 100)

	block, err := env.retrieval.Assemble(context.Background(), "q", model.ModeRegulatory)
	require.NoError(t, err)
	require.Len(t, block.Chunks, 2)
	require.Equal(t, "kept", block.Chunks[0].Text)
	require.Equal(t, "distant kept", block.Chunks[1].Text)
}

type brokenIndex struct{}

func (brokenIndex) Insert(ctx context.Context, entry vecstore.Entry) error       { return appErr.ErrIndexUnavailable }
func (brokenIndex) Delete(ctx context.Context, chunkID string) error             { return appErr.ErrIndexUnavailable }
func (brokenIndex) DeleteByDocument(ctx context.Context, docID string) error     { return appErr.ErrIndexUnavailable }
func (brokenIndex) Query(ctx context.Context, v []float32, k int) ([]vecstore.Result, error) {
	return nil, appErr.ErrIndexUnavailable
}
func (brokenIndex) Rebuild(ctx context.Context, entries []vecstore.Entry) error { return appErr.ErrIndexUnavailable }
func (brokenIndex) ChunkIDs(ctx context.Context) ([]string, error)              { return nil, appErr.ErrIndexUnavailable }
func (brokenIndex) Count(ctx context.Context) (int, error)                      { return 0, appErr.ErrIndexUnavailable }
func (brokenIndex) Healthy() error                                              { return appErr.ErrIndexUnavailable }

type mixedStore struct {
	healthy vecstore.Store
	broken  string
}

func (m *mixedStore) Collection(name string) vecstore.Index {
	if name == m.broken {
		return brokenIndex{}
	}
	return m.healthy.Collection(name)
}

func (m *mixedStore) Collections() []string { return m.healthy.Collections() }

func TestAssembleDegradedOnPartialFailure(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	env.embed.vectors["q"] = []float32{1, 0, 0}
	seedChunk(t, env, model.CollectionRegulatory, "doc-a", "doc-a.txt", 0, "still served", []float32{1, 0, 0}, 100)

	retrieval := NewRetrievalService(env.embed, &mixedStore{healthy: env.store, broken: model.CollectionProcedures}, env.chunks,
		config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})

	block, err := retrieval.Assemble(context.Background(), "q", model.ModeBoth)
	require.NoError(t, err)
	require.True(t, block.Degraded)
	require.Len(t, block.Chunks, 1)
	require.Equal(t, "still served", block.Chunks[0].Text)

	// Every collection broken still yields a degraded empty block.
	allBroken := NewRetrievalService(env.embed, &mixedStore{healthy: env.store, broken: model.CollectionRegulatory}, env.chunks,
		config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	block, err = allBroken.Assemble(context.Background(), "q", model.ModeRegulatory)
	require.NoError(t, err)
	require.True(t, block.Degraded)
	require.Empty(t, block.Chunks)
}

func TestAssembleEmbedderFailureIsHardError(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	env.embed.fail = true

	_, err := env.retrieval.Assemble(context.Background(), "q", model.ModeBoth)
	require.ErrorIs(t, err, appErr.ErrEmbeddingUnavailable)
}

func TestRebuildRestoresIndex(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	ctx := context.Background()

	doc, err := env.ingest.Submit(ctx, "rebuild.txt", model.CollectionRegulatory, []byte("content that survives a rebuild of the index"))
	require.NoError(t, err)
	done := waitForDocument(t, env, doc.ID)
	require.Equal(t, model.DocumentStatusProcessed, done.Status)

	index := env.store.Collection(model.CollectionRegulatory)
	require.NoError(t, index.Rebuild(ctx, nil))
	count, err := index.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, env.ingest.Rebuild(ctx, model.CollectionRegulatory))
	count, err = index.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, done.ChunkCount, count)
}

func TestAskGeneratesFromAssembledContext(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{Candidates: 16, MaxDocuments: 4, MaxContextChars: 6000})
	env.embed.vectors["what is the policy"] = []float32{1, 0, 0}
	seedChunk(t, env, model.CollectionRegulatory, "doc-a", "policy.txt", 0, "the policy is strict", []float32{1, 0, 0}, 100)

	gen := &fakeGenerator{answer: "the policy is strict"}
	svc := NewAnswerService(env.retrieval, prompt.NewBuilder(nil), gen, "llama3", time.Second)

	answer, err := svc.Ask(context.Background(), "what is the policy", model.ModeRegulatory, "")
	require.NoError(t, err)
	require.Equal(t, "the policy is strict", answer.Text)
	require.Equal(t, "llama3", answer.ModelID)
	require.Len(t, answer.Block.Chunks, 1)
	require.Contains(t, gen.prompt, "the policy is strict")
	require.Contains(t, gen.prompt, "what is the policy")
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	env := newTestEnv(t, config.RetrievalConfig{})
	svc := NewAnswerService(env.retrieval, prompt.NewBuilder(nil), &fakeGenerator{}, "llama3", time.Second)

	_, err := svc.Ask(context.Background(), "   ", model.ModeNone, "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

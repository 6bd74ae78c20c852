package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/ai"
	"github.com/complyq/complyq/internal/chunker"
	"github.com/complyq/complyq/internal/filestore"
	"github.com/complyq/complyq/internal/loader"
	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/repo"
	"github.com/complyq/complyq/internal/vecstore"
)

const embedTaskDocument = "RETRIEVAL_DOCUMENT"

// IngestService runs the upload pipeline: load, chunk, embed, index. Each
// submitted document is processed by its own background task; callers poll
// the document status for completion.
type IngestService struct {
	docs     *repo.DocumentRepo
	chunks   *repo.ChunkRepo
	files    filestore.Store
	load     *loader.Loader
	split    *chunker.Chunker
	embedder ai.IEmbedder
	store    vecstore.Store

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}
}

func NewIngestService(
	docs *repo.DocumentRepo,
	chunks *repo.ChunkRepo,
	files filestore.Store,
	load *loader.Loader,
	split *chunker.Chunker,
	embedder ai.IEmbedder,
	store vecstore.Store,
	workers int,
) *IngestService {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestService{
		docs:     docs,
		chunks:   chunks,
		files:    files,
		load:     load,
		split:    split,
		embedder: embedder,
		store:    store,
		baseCtx:  ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, workers),
	}
}

// Submit registers the upload, persists the raw bytes and schedules the
// background ingestion task. The returned document is in pending state.
func (s *IngestService) Submit(ctx context.Context, name, collection string, data []byte) (*model.Document, error) {
	if !model.ValidCollection(collection) || s.store.Collection(collection) == nil {
		return nil, appErr.ErrInvalid
	}
	format := loader.DetectFormat(name)
	if format == model.FormatUnknown {
		return nil, appErr.ErrUnsupportedFormat
	}
	now := time.Now().Unix()
	doc := &model.Document{
		ID:         newDocumentID(),
		Name:       name,
		Collection: collection,
		Format:     format,
		SizeBytes:  int64(len(data)),
		Status:     model.DocumentStatusPending,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.files.Save(ctx, doc.ID, bytes.NewReader(data), doc.SizeBytes); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		// Ingestion is detached from the submitting request: it runs to
		// completion (or is cancelled with the service) as a unit.
		s.process(s.baseCtx, doc, data)
	}()
	return doc, nil
}

func (s *IngestService) process(ctx context.Context, doc *model.Document, data []byte) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.String("collection", doc.Collection))
	start := time.Now()
	count, err := s.ingest(ctx, doc, data)
	if err != nil {
		// Cleanup must not inherit a cancelled run context.
		cleanupCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer stop()
		if ctx.Err() != nil {
			// Shutdown interrupted the run. The document stays pending
			// and the reconcile job re-queues it on the next start.
			logger.Warn("ingestion interrupted", zap.Error(err))
			s.rollback(cleanupCtx, doc)
			return
		}
		if appErr.IsIngestInputError(err) {
			logger.Warn("document rejected", zap.Error(err))
		} else {
			logger.Error("document ingestion failed", zap.Error(err))
		}
		s.rollback(cleanupCtx, doc)
		if uerr := s.docs.UpdateStatus(cleanupCtx, doc.ID, model.DocumentStatusFailed, err.Error(), 0, time.Now().Unix()); uerr != nil {
			logger.Error("failed to record ingestion failure", zap.Error(uerr))
		}
		return
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusProcessed, "", count, time.Now().Unix()); err != nil {
		logger.Error("failed to mark document processed", zap.Error(err))
		return
	}
	logger.Info("document ingested", zap.Int("chunks", count), zap.Duration("duration", time.Since(start)))
}

func (s *IngestService) ingest(ctx context.Context, doc *model.Document, data []byte) (int, error) {
	units, err := s.load.Load(data, doc.Format)
	if err != nil {
		return 0, err
	}
	text := loader.JoinUnits(units)
	if text == "" {
		return 0, fmt.Errorf("%w: no extractable text", appErr.ErrCorruptInput)
	}
	parts := s.split.Split(text)

	index := s.store.Collection(doc.Collection)
	if index == nil {
		return 0, fmt.Errorf("unknown collection: %s", doc.Collection)
	}
	if err := index.Healthy(); err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	chunks := make([]*model.Chunk, 0, len(parts))
	offset := 0
	for i, part := range parts {
		chunks = append(chunks, &model.Chunk{
			ID:         chunkID(doc.ID, i),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    part,
			CharLen:    len([]rune(part)),
			Section:    loader.SectionAt(units, offset),
			Ctime:      now,
		})
		offset += len([]rune(part)) - s.split.Overlap()
	}
	if err := s.chunks.InsertBatch(ctx, chunks); err != nil {
		return 0, err
	}
	for _, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk.Content, embedTaskDocument)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
		}
		if err := index.Insert(ctx, vecstore.Entry{
			ChunkID: chunk.ID,
			Vector:  vector,
			Meta: vecstore.EntryMeta{
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				Collection:   doc.Collection,
				Ordinal:      chunk.Ordinal,
				Ctime:        chunk.Ctime,
			},
		}); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// rollback removes whatever the failed ingestion wrote so a failed
// document contributes zero chunks and zero index entries.
func (s *IngestService) rollback(ctx context.Context, doc *model.Document) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Error("rollback: delete chunks failed", zap.Error(err))
	}
	if index := s.store.Collection(doc.Collection); index != nil {
		if err := index.DeleteByDocument(ctx, doc.ID); err != nil {
			logger.Error("rollback: delete index entries failed", zap.Error(err))
		}
	}
}

// Reprocess reruns ingestion for a document from its stored raw bytes,
// discarding any partial chunk or index state first. Used to recover
// documents left pending by an interrupted run.
func (s *IngestService) Reprocess(ctx context.Context, docID string) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	raw, err := s.files.Open(ctx, doc.ID)
	if err != nil {
		s.rollback(ctx, doc)
		return s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, "source file missing", 0, time.Now().Unix())
	}
	data, err := io.ReadAll(raw)
	raw.Close()
	if err != nil {
		return err
	}
	s.rollback(ctx, doc)
	s.process(ctx, doc, data)
	return nil
}

func (s *IngestService) Status(ctx context.Context, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, docID)
}

func (s *IngestService) List(ctx context.Context, collection string) ([]*model.Document, error) {
	if collection != "" && !model.ValidCollection(collection) {
		return nil, appErr.ErrInvalid
	}
	return s.docs.List(ctx, collection)
}

// Delete cascades: document, derived chunks, index entries and the stored
// raw file go together.
func (s *IngestService) Delete(ctx context.Context, docID string) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if index := s.store.Collection(doc.Collection); index != nil {
		if err := index.DeleteByDocument(ctx, docID); err != nil {
			return err
		}
	}
	if err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, docID); err != nil {
		logutil.GetLogger(ctx).Warn("delete raw file failed", zap.String("doc_id", docID), zap.Error(err))
	}
	return s.docs.Delete(ctx, docID)
}

// Rebuild reindexes a collection from its stored documents. Chunk IDs are
// content-position derived, so the result is equivalent to the original
// index.
func (s *IngestService) Rebuild(ctx context.Context, collection string) error {
	index := s.store.Collection(collection)
	if index == nil {
		return appErr.ErrInvalid
	}
	docs, err := s.docs.List(ctx, collection)
	if err != nil {
		return err
	}
	var entries []vecstore.Entry
	for _, doc := range docs {
		if doc.Status != model.DocumentStatusProcessed {
			continue
		}
		chunks, err := s.chunks.ListByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			vector, err := s.embedder.Embed(ctx, chunk.Content, embedTaskDocument)
			if err != nil {
				return fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
			}
			entries = append(entries, vecstore.Entry{
				ChunkID: chunk.ID,
				Vector:  vector,
				Meta: vecstore.EntryMeta{
					DocumentID:   doc.ID,
					DocumentName: doc.Name,
					Collection:   collection,
					Ordinal:      chunk.Ordinal,
					Ctime:        chunk.Ctime,
				},
			})
		}
	}
	if err := index.Rebuild(ctx, entries); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("collection rebuilt", zap.String("collection", collection), zap.Int("entries", len(entries)))
	return nil
}

func (s *IngestService) RebuildAll(ctx context.Context) error {
	for _, collection := range s.store.Collections() {
		if err := s.Rebuild(ctx, collection); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels the service context and waits for in-flight ingestion
// tasks to finish.
func (s *IngestService) Close() {
	s.cancel()
	s.wg.Wait()
}

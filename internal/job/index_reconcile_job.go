package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/model"
	"github.com/complyq/complyq/internal/repo"
	"github.com/complyq/complyq/internal/service"
	"github.com/complyq/complyq/internal/vecstore"
)

// IndexReconcileJob removes vector entries whose chunk rows are gone and
// re-queues documents stuck in pending. Both conditions come from crashes
// between the chunk write and the status update.
type IndexReconcileJob struct {
	docs        *repo.DocumentRepo
	chunks      *repo.ChunkRepo
	store       vecstore.Store
	ingest      *service.IngestService
	stuckMaxAge time.Duration
}

func NewIndexReconcileJob(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, store vecstore.Store, ingest *service.IngestService, stuckMaxAge time.Duration) *IndexReconcileJob {
	return &IndexReconcileJob{docs: docs, chunks: chunks, store: store, ingest: ingest, stuckMaxAge: stuckMaxAge}
}

func (j *IndexReconcileJob) Name() string {
	return "index_reconcile"
}

func (j *IndexReconcileJob) Run(ctx context.Context) error {
	if err := j.dropOrphanEntries(ctx); err != nil {
		return err
	}
	return j.requeueStuckDocuments(ctx)
}

func (j *IndexReconcileJob) dropOrphanEntries(ctx context.Context) error {
	live, err := j.chunks.ListIDs(ctx)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, collection := range j.store.Collections() {
		index := j.store.Collection(collection)
		if err := index.Healthy(); err != nil {
			logger.Warn("reconcile skipping unavailable collection", zap.String("collection", collection), zap.Error(err))
			continue
		}
		ids, err := index.ChunkIDs(ctx)
		if err != nil {
			return err
		}
		candidates := make([]string, 0)
		for _, id := range ids {
			if _, ok := live[id]; !ok {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		// Ingestion writes the chunk row before the index entry, so an
		// entry indexed after the snapshot above has its row by now.
		// Re-check before deleting instead of trusting the snapshot.
		found, err := j.chunks.GetByIDs(ctx, candidates)
		if err != nil {
			return err
		}
		removed := 0
		for _, id := range candidates {
			if _, ok := found[id]; ok {
				continue
			}
			if err := index.Delete(ctx, id); err != nil {
				return err
			}
			removed++
		}
		if removed > 0 {
			logger.Info("removed orphan vector entries", zap.String("collection", collection), zap.Int("removed", removed))
		}
	}
	return nil
}

// requeueStuckDocuments reruns ingestion for documents that stayed pending
// past the cutoff. Reprocess marks them failed when the raw file is gone
// or the pipeline fails again, so a document cannot stay pending forever.
func (j *IndexReconcileJob) requeueStuckDocuments(ctx context.Context) error {
	maxAge := j.stuckMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	stuck, err := j.docs.ListByStatus(ctx, model.DocumentStatusPending, cutoff)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, doc := range stuck {
		logger.Warn("re-queueing stuck document", zap.String("doc_id", doc.ID), zap.String("name", doc.Name))
		if err := j.ingest.Reprocess(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

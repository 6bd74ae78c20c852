package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/ai"
	"github.com/complyq/complyq/internal/model"
	"github.com/complyq/complyq/internal/repo"
)

// WrapDBCacheToEmbedder persists embeddings keyed by content hash so a full
// index rebuild does not replay every chunk through the provider.
func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx)
	_, contentHash, _ := buildCacheKey(d.next.ModelName(), taskType, text)
	cached, ok, err := d.repo.Get(ctx, d.next.ModelName(), taskType, contentHash)
	if err != nil {
		logger.Warn("embedding cache lookup failed", zap.Error(err))
	} else if ok {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return cached, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Save(ctx, &model.EmbeddingCache{
		ModelName:   d.next.ModelName(),
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   res,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logger.Warn("embedding cache save failed", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}

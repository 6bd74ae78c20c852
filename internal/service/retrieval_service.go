package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/ai"
	"github.com/complyq/complyq/internal/config"
	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/repo"
	"github.com/complyq/complyq/internal/vecstore"
)

const embedTaskQuery = "RETRIEVAL_QUERY"

// RetrievalService assembles the context block for a query: embed once,
// search the selected collections, merge under one global ranking, then
// pack greedily under the chunk and character budgets.
type RetrievalService struct {
	embedder ai.IEmbedder
	store    vecstore.Store
	chunks   *repo.ChunkRepo
	cfg      config.RetrievalConfig
}

func NewRetrievalService(embedder ai.IEmbedder, store vecstore.Store, chunks *repo.ChunkRepo, cfg config.RetrievalConfig) *RetrievalService {
	return &RetrievalService{embedder: embedder, store: store, chunks: chunks, cfg: cfg}
}

// Assemble builds the context block for the query under the given mode.
// Mode none produces an empty block without touching the embedder. A
// collection whose index is unavailable is skipped and the block is marked
// degraded; only an embedder failure is a hard error.
func (s *RetrievalService) Assemble(ctx context.Context, query string, mode model.ContextMode) (*model.ContextBlock, error) {
	if !mode.Valid() {
		return nil, appErr.ErrInvalid
	}
	block := &model.ContextBlock{Chunks: []model.ContextChunk{}, Sources: []string{}}
	collections := mode.Collections()
	if len(collections) == 0 {
		return block, nil
	}

	vector, err := s.embedder.Embed(ctx, query, embedTaskQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
	}

	var candidates []vecstore.Result
	for _, collection := range collections {
		index := s.store.Collection(collection)
		if index == nil {
			continue
		}
		if err := index.Healthy(); err != nil {
			logutil.GetLogger(ctx).Warn("skipping unavailable collection", zap.String("collection", collection), zap.Error(err))
			block.Degraded = true
			continue
		}
		results, err := index.Query(ctx, vector, s.cfg.Candidates)
		if err != nil {
			logutil.GetLogger(ctx).Warn("collection query failed", zap.String("collection", collection), zap.Error(err))
			block.Degraded = true
			continue
		}
		candidates = append(candidates, results...)
	}
	if len(candidates) == 0 {
		return block, nil
	}

	ranked := mergeRank(candidates)
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ChunkID)
	}
	bodies, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.pack(block, ranked, bodies)
	return block, nil
}

// mergeRank imposes one total order across collections: score desc, newer
// chunk first on ties, then chunk ID.
func mergeRank(results []vecstore.Result) []vecstore.Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Meta.Ctime != results[j].Meta.Ctime {
			return results[i].Meta.Ctime > results[j].Meta.Ctime
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// pack walks the ranked candidates and accepts up to MaxDocuments chunks
// within MaxContextChars. A chunk that would overflow the character budget
// is skipped, not truncated; later smaller chunks may still fit.
func (s *RetrievalService) pack(block *model.ContextBlock, ranked []vecstore.Result, bodies map[string]*model.Chunk) {
	maxChunks := s.cfg.MaxDocuments
	if maxChunks <= 0 {
		maxChunks = len(ranked)
	}
	seen := make(map[string]struct{}, len(ranked))
	seenDocs := make(map[string]struct{})
	accepted := make([]vecstore.Result, 0, maxChunks)
	for _, r := range ranked {
		if len(accepted) >= maxChunks {
			break
		}
		if _, dup := seen[r.ChunkID]; dup {
			continue
		}
		seen[r.ChunkID] = struct{}{}
		body, ok := bodies[r.ChunkID]
		if !ok {
			// Index entry with no backing chunk row; the reconcile job
			// will clean it up.
			continue
		}
		if s.cfg.AdjacentDedup && hasAdjacent(accepted, r) {
			continue
		}
		chars := len([]rune(body.Content))
		if s.cfg.MaxContextChars > 0 && block.TotalChars+chars > s.cfg.MaxContextChars {
			continue
		}
		accepted = append(accepted, r)
		block.Chunks = append(block.Chunks, model.ContextChunk{
			ChunkID:      r.ChunkID,
			DocumentID:   r.Meta.DocumentID,
			DocumentName: r.Meta.DocumentName,
			Collection:   r.Meta.Collection,
			Ordinal:      r.Meta.Ordinal,
			Text:         body.Content,
			Score:        r.Score,
		})
		block.TotalChars += chars
		if _, ok := seenDocs[r.Meta.DocumentID]; !ok {
			seenDocs[r.Meta.DocumentID] = struct{}{}
			block.Sources = append(block.Sources, r.Meta.DocumentName)
		}
	}
}

// hasAdjacent reports whether an already accepted chunk is the immediate
// neighbor of r within the same document. Overlapping neighbors mostly
// repeat each other, so the lower ranked one is dropped.
func hasAdjacent(accepted []vecstore.Result, r vecstore.Result) bool {
	for _, a := range accepted {
		if a.Meta.DocumentID != r.Meta.DocumentID {
			continue
		}
		d := a.Meta.Ordinal - r.Meta.Ordinal
		if d == 1 || d == -1 {
			return true
		}
	}
	return false
}

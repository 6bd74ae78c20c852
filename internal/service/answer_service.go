package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/ai"
	"github.com/complyq/complyq/internal/model"
	appErr "github.com/complyq/complyq/internal/pkg/errors"
	"github.com/complyq/complyq/internal/prompt"
)

// Answer is one completed question round: the generated text plus the
// context that grounded it.
type Answer struct {
	Text    string             `json:"text"`
	ModelID string             `json:"model_id"`
	Block   model.ContextBlock `json:"block"`
}

// AnswerService wires retrieval, prompt assembly and generation into the
// single Ask operation.
type AnswerService struct {
	retrieval    *RetrievalService
	builder      *prompt.Builder
	generator    ai.IAIProvider
	defaultModel string
	timeout      time.Duration
}

func NewAnswerService(retrieval *RetrievalService, builder *prompt.Builder, generator ai.IAIProvider, defaultModel string, timeout time.Duration) *AnswerService {
	return &AnswerService{
		retrieval:    retrieval,
		builder:      builder,
		generator:    generator,
		defaultModel: defaultModel,
		timeout:      timeout,
	}
}

// Ask retrieves context for the query, builds the prompt and generates an
// answer. An empty model falls back to the configured default.
func (s *AnswerService) Ask(ctx context.Context, query string, mode model.ContextMode, modelID string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if modelID == "" {
		modelID = s.defaultModel
	}
	block, err := s.retrieval.Assemble(ctx, query, mode)
	if err != nil {
		return nil, err
	}
	text := s.builder.Build(prompt.Input{
		Query:   query,
		Mode:    mode,
		ModelID: modelID,
		Block:   *block,
	})

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	answer, err := s.generator.Generate(genCtx, modelID, text)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", appErr.ErrModelUnavailable, err)
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Info("question answered",
		zap.String("model", modelID),
		zap.String("mode", string(mode)),
		zap.Int("context_chunks", len(block.Chunks)),
		zap.Bool("degraded", block.Degraded),
		zap.Duration("duration", time.Since(start)))
	return &Answer{Text: answer, ModelID: modelID, Block: *block}, nil
}

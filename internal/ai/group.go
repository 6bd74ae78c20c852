package ai

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ProviderEntry struct {
	Name     string
	Provider IAIProvider
	Model    string
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// groupProvider tries each generation provider in order until one succeeds.
// The entry's model overrides the caller's when set, so a fallback provider
// can serve a different model under the same request.
type groupProvider struct {
	items []ProviderEntry
}

func NewGroupProvider(items []ProviderEntry) IAIProvider {
	if len(items) == 0 {
		return nil
	}
	return &groupProvider{items: items}
}

func (g *groupProvider) Name() string {
	return "group"
}

func (g *groupProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		useModel := model
		if i > 0 && item.Model != "" {
			useModel = item.Model
		}
		res, err := item.Provider.Generate(ctx, useModel, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured")
	}
	return "", lastErr
}

type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	for _, item := range g.items {
		if item.Embedder != nil {
			return item.Embedder.ModelName()
		}
	}
	return ""
}

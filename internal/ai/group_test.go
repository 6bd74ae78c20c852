package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name      string
	fail      bool
	lastModel string
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	p.lastModel = model
	if p.fail {
		return "", fmt.Errorf("%s: %w", p.name, ErrUnavailable)
	}
	return "answer from " + p.name, nil
}

func TestGroupProviderFallsBackInOrder(t *testing.T) {
	primary := &scriptedProvider{name: "primary", fail: true}
	backup := &scriptedProvider{name: "backup"}
	group := NewGroupProvider([]ProviderEntry{
		{Name: "primary", Provider: primary},
		{Name: "backup", Provider: backup, Model: "backup-model"},
	})

	res, err := group.Generate(context.Background(), "main-model", "prompt")
	require.NoError(t, err)
	require.Equal(t, "answer from backup", res)
	require.Equal(t, "main-model", primary.lastModel)
	// A fallback entry with its own model serves that model instead.
	require.Equal(t, "backup-model", backup.lastModel)
}

func TestGroupProviderReturnsLastError(t *testing.T) {
	group := NewGroupProvider([]ProviderEntry{
		{Name: "a", Provider: &scriptedProvider{name: "a", fail: true}},
		{Name: "b", Provider: &scriptedProvider{name: "b", fail: true}},
	})
	_, err := group.Generate(context.Background(), "m", "p")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewGroupProviderEmptyIsNil(t *testing.T) {
	require.Nil(t, NewGroupProvider(nil))
	require.Nil(t, NewGroupEmbedder(nil))
}

type scriptedEmbedder struct {
	model string
	fail  bool
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("%s: %w", e.model, ErrUnavailable)
	}
	return []float32{1}, nil
}

func (e *scriptedEmbedder) ModelName() string { return e.model }

func TestGroupEmbedderFallsBack(t *testing.T) {
	group := NewGroupEmbedder([]EmbedderEntry{
		{Name: "primary", Embedder: &scriptedEmbedder{model: "m1", fail: true}},
		{Name: "backup", Embedder: &scriptedEmbedder{model: "m2"}},
	})
	vec, err := group.Embed(context.Background(), "text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	// ModelName reports the primary; cache keys stay stable across fallback.
	require.Equal(t, "m1", group.ModelName())
}

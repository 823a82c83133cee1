package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/user/ansari/internal/config"
)

// ModelInfo describes a model offered by the completion endpoint
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// ModelLister lists the models of an OpenAI-compatible endpoint
type ModelLister struct {
	client *openai.Client
}

// NewModelLister creates a lister for the configured endpoint
func NewModelLister(cfg config.LLMConfig) *ModelLister {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &ModelLister{client: &client}
}

// ListModels returns the available models sorted by id
func (l *ModelLister) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := l.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	return models, nil
}

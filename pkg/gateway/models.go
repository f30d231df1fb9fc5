package gateway

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/r9s-dev/r9s/pkg/telemetry"
)

// Model is one model advertised by the gateway.
type Model struct {
	ID      string
	OwnedBy string
	Created int64
}

// ListModels returns the models the gateway routes to, sorted by ID.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var list openai.ModelsList
	err := telemetry.WithSpan(ctx, "gateway.list_models", func(ctx context.Context) error {
		l, err := c.openai.ListModels(ctx)
		list = l
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing models")
	}

	models := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, Model{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
			Created: m.CreatedAt,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

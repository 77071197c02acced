package extractor

import (
	"context"

	"github.com/a3tai/formcheck/internal/raster"
)

var _ TextProvider = &Multi{}

// Multi asks each provider in turn and returns the first non-empty text.
type Multi struct {
	providers []TextProvider
}

// NewMulti chains providers in priority order.
func NewMulti(provider ...TextProvider) *Multi {
	return &Multi{
		providers: provider,
	}
}

func (m *Multi) Text(ctx context.Context, region *raster.Region) (string, error) {
	var lastErr error = ErrNoText

	for _, p := range m.providers {
		text, err := p.Text(ctx, region)

		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		if text != "" {
			return text, nil
		}
	}

	return "", lastErr
}

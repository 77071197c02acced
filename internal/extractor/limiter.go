package extractor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/a3tai/formcheck/internal/raster"
)

type limitedText struct {
	limiter  *rate.Limiter
	provider TextProvider
}

// NewLimitedText throttles calls to p with l. A nil limiter disables throttling.
func NewLimitedText(l *rate.Limiter, p TextProvider) TextProvider {
	return &limitedText{
		limiter:  l,
		provider: p,
	}
}

func (p *limitedText) Text(ctx context.Context, region *raster.Region) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	return p.provider.Text(ctx, region)
}

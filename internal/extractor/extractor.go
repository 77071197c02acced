// Package extractor provides the text and structural-feature capabilities the
// engine consumes, plus decorators for fallback, rate limiting, tracing and
// per-call timeouts.
package extractor

import (
	"context"
	"errors"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/vision"
)

var (
	ErrUnsupported = errors.New("unsupported region")
	ErrNoText      = errors.New("no text found")
)

// TextProvider returns the text printed or written inside a region.
type TextProvider interface {
	Text(ctx context.Context, region *raster.Region) (string, error)
}

// FeatureProvider measures structural signals of a region.
type FeatureProvider interface {
	Features(ctx context.Context, region *raster.Region) (vision.Features, error)
}

// TextFunc adapts a function to TextProvider.
type TextFunc func(ctx context.Context, region *raster.Region) (string, error)

func (f TextFunc) Text(ctx context.Context, region *raster.Region) (string, error) {
	return f(ctx, region)
}

// FeatureFunc adapts a function to FeatureProvider.
type FeatureFunc func(ctx context.Context, region *raster.Region) (vision.Features, error)

func (f FeatureFunc) Features(ctx context.Context, region *raster.Region) (vision.Features, error) {
	return f(ctx, region)
}

var _ FeatureProvider = &vision.Analyzer{}

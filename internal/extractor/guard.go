package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/vision"
)

// Guard gives every extractor call its own deadline and turns failures,
// timeouts and panics into an absent signal: empty text or zero features.
type Guard struct {
	text     TextProvider
	features FeatureProvider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGuard wraps the providers. Either provider may be nil, which behaves as
// a capability that never finds anything. A zero timeout disables deadlines.
func NewGuard(text TextProvider, features FeatureProvider, timeout time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		text:     text,
		features: features,
		timeout:  timeout,
		logger:   logger,
	}
}

// Text returns the normalised text of region, or "" when none could be read.
func (g *Guard) Text(ctx context.Context, region *raster.Region) string {
	if g.text == nil || region == nil {
		return ""
	}

	callCtx, cancel := g.deadline(ctx)
	defer cancel()

	text, err := call(callCtx, func() (string, error) { return g.text.Text(callCtx, region) })
	if err != nil {
		if !errors.Is(err, ErrNoText) {
			g.logger.Debug("text extraction failed", "page", region.Page, "error", err)
		}
		return ""
	}
	return Normalize(text)
}

// Features returns the structural features of region, or zero features when
// they could not be measured.
func (g *Guard) Features(ctx context.Context, region *raster.Region) vision.Features {
	if g.features == nil || region == nil {
		return vision.Features{}
	}

	callCtx, cancel := g.deadline(ctx)
	defer cancel()

	f, err := call(callCtx, func() (vision.Features, error) { return g.features.Features(callCtx, region) })
	if err != nil {
		g.logger.Debug("feature extraction failed", "page", region.Page, "error", err)
		return vision.Features{}
	}
	return f
}

func (g *Guard) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

type outcome[T any] struct {
	value T
	err   error
}

// call runs fn on its own goroutine and returns at ctx's deadline even when
// fn does not.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{value: zero, err: fmt.Errorf("extractor panicked: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

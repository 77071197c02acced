package extractor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/vision"
)

const instrumentationName = "github.com/a3tai/formcheck/internal/extractor"

type tracedText struct {
	name     string
	provider TextProvider
}

// NewTracedText records a span around every call to p.
func NewTracedText(name string, p TextProvider) TextProvider {
	return &tracedText{name: name, provider: p}
}

func (p *tracedText) Text(ctx context.Context, region *raster.Region) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "text "+p.name)
	defer span.End()

	span.SetAttributes(regionAttributes(region)...)

	text, err := p.provider.Text(ctx, region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("text.length", len(text)))

	return text, err
}

type tracedFeatures struct {
	name     string
	provider FeatureProvider
}

// NewTracedFeatures records a span around every call to p.
func NewTracedFeatures(name string, p FeatureProvider) FeatureProvider {
	return &tracedFeatures{name: name, provider: p}
}

func (p *tracedFeatures) Features(ctx context.Context, region *raster.Region) (vision.Features, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "features "+p.name)
	defer span.End()

	span.SetAttributes(regionAttributes(region)...)

	f, err := p.provider.Features(ctx, region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("features.lines", f.Lines),
		attribute.Int("features.text_regions", f.TextRegions),
	)

	return f, err
}

func regionAttributes(region *raster.Region) []attribute.KeyValue {
	if region == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Int("region.page", region.Page),
		attribute.Int("region.width", region.Width()),
		attribute.Int("region.height", region.Height()),
	}
}

package vision

import (
	"context"
	"math"

	"github.com/a3tai/formcheck/internal/raster"
)

// Features are the structural signals measured on one region.
type Features struct {
	Lines       int     `json:"lines"`
	TextRegions int     `json:"text_regions"`
	EdgeRatio   float64 `json:"edge_ratio"`
	DarkRatio   float64 `json:"dark_ratio"`

	saturation int
}

// Score maps the signals to [0,1]: zero unless the region shows both ruled
// lines and glyph-sized components, then saturating at the configured count.
func (f Features) Score() float64 {
	if f.Lines == 0 || f.TextRegions == 0 {
		return 0
	}
	saturation := f.saturation
	if saturation <= 0 {
		saturation = DefaultParams().SaturationCount
	}
	return math.Min(1, float64(f.Lines+f.TextRegions)/float64(saturation))
}

// Analyzer measures Features locally from region pixels.
type Analyzer struct {
	params Params
}

// NewAnalyzer returns an analyzer with DefaultParams.
func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithParams(DefaultParams())
}

// NewAnalyzerWithParams returns an analyzer with custom detector settings.
func NewAnalyzerWithParams(params Params) *Analyzer {
	return &Analyzer{params: params}
}

// Params returns the analyzer settings.
func (a *Analyzer) Params() Params { return a.params }

// Features implements the feature provider contract for local analysis.
func (a *Analyzer) Features(ctx context.Context, region *raster.Region) (Features, error) {
	if err := ctx.Err(); err != nil {
		return Features{}, err
	}

	bin := Adaptive(region.Image, a.params.AdaptiveBlock, a.params.AdaptiveC)

	return Features{
		Lines:       Lines(bin, a.params.MinLineLength, a.params.MaxLineGap),
		TextRegions: Components(bin, a.params.MinComponentArea, a.params.MaxComponentArea),
		EdgeRatio:   EdgeRatio(region.Image, a.params.EdgeThreshold),
		DarkRatio:   DarkRatio(region.Image),
		saturation:  a.params.SaturationCount,
	}, nil
}

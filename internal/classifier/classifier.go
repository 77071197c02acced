// Package classifier matches scanned pages against the taught templates and
// picks the form type whose sections look most like the scan.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/template"
	"github.com/a3tai/formcheck/internal/vision"
)

// FeatureReader measures a region without failing; extractor.Guard satisfies it.
type FeatureReader interface {
	Features(ctx context.Context, region *raster.Region) vision.Features
}

// Config configures classification.
type Config struct {
	// AcceptThreshold is the confidence a template must exceed to be accepted.
	AcceptThreshold float64 `json:"accept_threshold"`
	// MaxAlternatives caps the runner-up templates reported.
	MaxAlternatives int `json:"max_alternatives"`
	// Workers bounds the concurrent section measurements.
	Workers int `json:"workers"`
}

// DefaultConfig returns the default classification settings.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold: 0.5,
		MaxAlternatives: 3,
		Workers:         4,
	}
}

// Reason records how one section of the chosen template scored.
type Reason struct {
	Section  string  `json:"section"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Evidence string  `json:"evidence"`
}

// Result is the outcome of one classification.
type Result struct {
	FormType     template.FormType    `json:"form_type"`
	Template     string               `json:"template,omitempty"`
	Confidence   float64              `json:"confidence"`
	Scores       map[string]float64   `json:"scores"`
	Alternatives []report.Alternative `json:"alternatives,omitempty"`
	Reasons      []Reason             `json:"reasons,omitempty"`
}

// Accepted reports whether a template was matched.
func (r Result) Accepted() bool {
	return r.FormType != template.FormUnknown
}

// Classifier scores every template of a store against a document.
type Classifier struct {
	store    *template.Store
	features FeatureReader
	config   Config
	logger   *slog.Logger
}

// New creates a classifier with the default configuration.
func New(store *template.Store, features FeatureReader, logger *slog.Logger) *Classifier {
	return NewWithConfig(DefaultConfig(), store, features, logger)
}

// NewWithConfig creates a classifier with a custom configuration.
func NewWithConfig(config Config, store *template.Store, features FeatureReader, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = template.NewStore(logger)
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Classifier{
		store:    store,
		features: features,
		config:   config,
		logger:   logger,
	}
}

// Config returns the classifier settings.
func (c *Classifier) Config() Config { return c.config }

// measurement is the score of one template section.
type measurement struct {
	template int
	section  template.Section
	score    float64
	evidence string
}

// Classify never fails: no pages, no templates or no usable signal all yield
// an Unknown result, and confidence always lies in [0,1].
func (c *Classifier) Classify(ctx context.Context, pages []*raster.Page) Result {
	result := Result{FormType: template.FormUnknown, Scores: map[string]float64{}}
	if len(pages) == 0 {
		return result
	}

	templates := c.store.All()
	jobs := c.plan(templates, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job.score, job.evidence = c.measure(gctx, pages[job.section.Page], job.section.BoundingBox)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug("classification interrupted", "error", err)
		return result
	}

	sums := make([]float64, len(templates))
	checked := make([]int, len(templates))
	for _, job := range jobs {
		sums[job.template] += job.score
		checked[job.template]++
	}

	best := -1
	confidence := make([]float64, len(templates))
	for i, t := range templates {
		if checked[i] == 0 {
			result.Scores[t.Name] = 0
			continue
		}
		confidence[i] = clamp01(sums[i] / float64(checked[i]))
		result.Scores[t.Name] = confidence[i]
		// store order is name order, so a tie keeps the smaller name
		if best < 0 || confidence[i] > confidence[best] {
			best = i
		}
	}
	if best < 0 {
		return result
	}

	result.Confidence = confidence[best]
	accepted := confidence[best] > c.config.AcceptThreshold
	if accepted {
		result.FormType = templates[best].FormType
		result.Template = templates[best].Name
		for _, job := range jobs {
			if job.template == best {
				result.Reasons = append(result.Reasons, Reason{
					Section:  job.section.Name,
					Page:     job.section.Page,
					Score:    job.score,
					Evidence: job.evidence,
				})
			}
		}
	}

	result.Alternatives = c.alternatives(templates, confidence, checked, best, accepted)

	c.logger.Debug("document classified",
		"form_type", result.FormType,
		"template", result.Template,
		"confidence", result.Confidence,
		"templates", len(templates))
	return result
}

// plan lists the sections of every template that fall on an existing page.
func (c *Classifier) plan(templates []*template.Template, pageCount int) []measurement {
	var jobs []measurement
	for i, t := range templates {
		for _, page := range t.Pages() {
			if page >= pageCount {
				continue
			}
			for _, s := range t.SectionsOnPage(page) {
				jobs = append(jobs, measurement{template: i, section: s})
			}
		}
	}
	return jobs
}

func (c *Classifier) measure(ctx context.Context, page *raster.Page, box raster.Box) (float64, string) {
	region, err := raster.Extract(page, box)
	if err != nil {
		if errors.Is(err, raster.ErrEmptyRegion) {
			return 0, "empty region"
		}
		return 0, err.Error()
	}
	if c.features == nil {
		return 0, "no feature provider"
	}

	f := c.features.Features(ctx, region)
	return clamp01(f.Score()), fmt.Sprintf("lines=%d text_regions=%d", f.Lines, f.TextRegions)
}

func (c *Classifier) alternatives(templates []*template.Template, confidence []float64, checked []int, best int, accepted bool) []report.Alternative {
	floor := c.config.AcceptThreshold / 2
	var alts []report.Alternative
	for i, t := range templates {
		if checked[i] == 0 || confidence[i] <= 0 || confidence[i] < floor {
			continue
		}
		if accepted && i == best {
			continue
		}
		alts = append(alts, report.Alternative{
			Template:   t.Name,
			FormType:   t.FormType,
			Confidence: confidence[i],
		})
	}

	sort.SliceStable(alts, func(i, j int) bool {
		return alts[i].Confidence > alts[j].Confidence
	})
	if c.config.MaxAlternatives >= 0 && len(alts) > c.config.MaxAlternatives {
		alts = alts[:c.config.MaxAlternatives]
	}
	return alts
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

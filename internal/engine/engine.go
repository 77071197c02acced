// Package engine classifies scanned form documents and validates each
// declared section of the matched template into a FormReport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a3tai/formcheck/internal/classifier"
	"github.com/a3tai/formcheck/internal/extractor"
	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/stability"
	"github.com/a3tai/formcheck/internal/template"
	"github.com/a3tai/formcheck/internal/validator"
	"github.com/a3tai/formcheck/internal/vision"
)

// Config configures the engine.
type Config struct {
	// Workers bounds concurrent section work per document.
	Workers int `json:"workers"`
	// ExtractorTimeout bounds every text or feature extraction call.
	ExtractorTimeout time.Duration `json:"extractor_timeout"`
	// AcceptThreshold is the confidence a template must exceed to be matched.
	AcceptThreshold float64 `json:"accept_threshold"`
	// MaxAlternatives caps the runner-up templates reported.
	MaxAlternatives int                  `json:"max_alternatives"`
	Thresholds      validator.Thresholds `json:"thresholds"`
	Stability       stability.Config     `json:"stability"`
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	cc := classifier.DefaultConfig()
	return Config{
		Workers:          4,
		ExtractorTimeout: 10 * time.Second,
		AcceptThreshold:  cc.AcceptThreshold,
		MaxAlternatives:  cc.MaxAlternatives,
		Thresholds:       validator.DefaultThresholds(),
		Stability:        stability.DefaultConfig(),
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock stamps reports with processed_at taken from now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPolicies replaces the per form type validation policies.
func WithPolicies(policies map[template.FormType]validator.Policy) Option {
	return func(e *Engine) { e.policies = policies }
}

// WithStability shares a stability manager, so that its panic history can be
// reported elsewhere.
func WithStability(m *stability.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.stability = m
		}
	}
}

// Engine runs classification and validation over loaded templates. It holds
// no per-document state and is safe for concurrent use.
type Engine struct {
	store      *template.Store
	guard      *extractor.Guard
	classifier *classifier.Classifier
	registry   *validator.Registry
	stability  *stability.Manager
	config     Config
	policies   map[template.FormType]validator.Policy
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an engine with the default configuration. A nil features
// provider falls back to the local vision analyzer.
func New(store *template.Store, text extractor.TextProvider, features extractor.FeatureProvider, opts ...Option) *Engine {
	return NewWithConfig(DefaultConfig(), store, text, features, opts...)
}

// NewWithConfig creates an engine with a custom configuration.
func NewWithConfig(config Config, store *template.Store, text extractor.TextProvider, features extractor.FeatureProvider, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = template.NewStore(e.logger)
	}
	if e.config.Workers <= 0 {
		e.config.Workers = 1
	}
	if features == nil {
		features = vision.NewAnalyzer()
	}
	if e.stability == nil {
		e.stability = stability.NewManagerWithConfig(e.config.Stability, e.logger)
	}
	if e.policies == nil {
		e.policies = validator.DefaultPolicies()
	}

	e.guard = extractor.NewGuard(text, features, e.config.ExtractorTimeout, e.logger)
	e.classifier = classifier.NewWithConfig(classifier.Config{
		AcceptThreshold: e.config.AcceptThreshold,
		MaxAlternatives: e.config.MaxAlternatives,
		Workers:         e.config.Workers,
	}, e.store, e.guard, e.logger)
	e.registry = validator.NewRegistryWithPolicies(validator.NewKit(e.guard, e.config.Thresholds), e.policies)

	return e
}

// Store returns the templates the engine matches against.
func (e *Engine) Store() *template.Store { return e.store }

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.config }

// Stability returns the manager guarding engine work.
func (e *Engine) Stability() *stability.Manager { return e.stability }

// Classify identifies the form type of pages. It never fails; a panic or a
// cancelled context yields an Unknown result.
func (e *Engine) Classify(ctx context.Context, pages []*raster.Page) classifier.Result {
	result, err := stability.Run(ctx, e.stability, "classify", func(ctx context.Context) (classifier.Result, error) {
		return e.classifier.Classify(ctx, pages), nil
	})
	if err != nil {
		e.logger.Warn("classification failed", "error", err)
		return classifier.Result{FormType: template.FormUnknown, Scores: map[string]float64{}}
	}
	return result
}

// Validate checks every section of the template registered for formType.
// The report's confidence is zero since no classification took place.
func (e *Engine) Validate(ctx context.Context, formType template.FormType, pages []*raster.Page) *report.FormReport {
	if len(pages) == 0 {
		return e.stamp(report.New(formType, 0, 0).Fail(report.MessageNoPages), nil)
	}

	tpl, ok := e.store.For(formType)
	if !ok {
		return e.stamp(report.New(formType, 0, len(pages)).Fail(report.MessageNoTemplate), pages)
	}

	return e.stamp(e.validate(ctx, tpl, 0, pages), pages)
}

// Process classifies pages and validates the matched template. An Unknown
// classification yields a WARNING report carrying the classification.
func (e *Engine) Process(ctx context.Context, pages []*raster.Page) *report.FormReport {
	if len(pages) == 0 {
		return e.stamp(report.New(template.FormUnknown, 0, 0).Fail(report.MessageNoPages), nil)
	}

	result := e.Classify(ctx, pages)
	if err := ctx.Err(); err != nil {
		return e.stamp(report.New(template.FormUnknown, 0, len(pages)).Fail(err.Error()), pages)
	}

	if !result.Accepted() {
		rep := report.New(template.FormUnknown, result.Confidence, len(pages))
		rep.Status = report.StatusWarning
		rep.Message = report.MessageUnknownFormType
		rep.Alternatives = result.Alternatives
		return e.stamp(rep, pages)
	}

	tpl, ok := e.store.Get(result.Template)
	if !ok {
		return e.stamp(report.New(result.FormType, result.Confidence, len(pages)).Fail(report.MessageNoTemplate), pages)
	}

	rep := e.validate(ctx, tpl, result.Confidence, pages)
	rep.Alternatives = result.Alternatives
	return e.stamp(rep, pages)
}

// validate runs the template's sections through the stability manager so
// that a panic or cancellation turns into an ERROR report.
func (e *Engine) validate(ctx context.Context, tpl *template.Template, confidence float64, pages []*raster.Page) *report.FormReport {
	rep, err := stability.Run(ctx, e.stability, "validate", func(ctx context.Context) (*report.FormReport, error) {
		return e.validateSections(ctx, tpl, confidence, pages)
	})
	if err != nil {
		e.logger.Error("validation failed", "template", tpl.Name, "error", err)
		failed := report.New(tpl.FormType, confidence, len(pages)).Fail(err.Error())
		failed.Template = tpl.Name
		return failed
	}
	return rep
}

func (e *Engine) validateSections(ctx context.Context, tpl *template.Template, confidence float64, pages []*raster.Page) (*report.FormReport, error) {
	var sections []template.Section
	for _, page := range tpl.Pages() {
		if page < len(pages) {
			sections = append(sections, tpl.SectionsOnPage(page)...)
		}
	}

	results := make([]report.SectionResult, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, s := range sections {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := e.stability.Protect("section "+s.Name, func() error {
				results[i] = e.validateSection(gctx, tpl.FormType, s, pages[s.Page])
				return nil
			})
			if err != nil {
				results[i] = report.SectionResult{
					SectionName: s.Name,
					SectionType: s.Type,
					Page:        s.Page,
					Details:     report.Details{},
					Error:       err.Error(),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := report.New(tpl.FormType, confidence, len(pages))
	rep.Template = tpl.Name
	for _, r := range results {
		rep.Sections[r.SectionName] = r
		if !r.Filled {
			continue
		}
		switch {
		case sipFamily(r.SectionType):
			rep.SIPDetailsFilled = true
		case otmFamily(r.SectionType):
			rep.OTMDetailsFilled = true
		}
	}

	policy := e.registry.Policy(tpl.FormType)
	if policy.SchemeTally {
		rep.Schemes = tallySchemes(results)
	}
	if policy.AttachedSIP {
		e.attachSIP(ctx, rep, pages)
	}

	// a cancelled context may have silenced extractors; never report that as empty sections
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("document validated",
		"template", tpl.Name,
		"form_type", tpl.FormType,
		"sections", len(rep.Sections),
		"filled", rep.FilledCount())
	return rep, nil
}

func (e *Engine) validateSection(ctx context.Context, formType template.FormType, s template.Section, page *raster.Page) report.SectionResult {
	result := report.SectionResult{
		SectionName: s.Name,
		SectionType: s.Type,
		Page:        s.Page,
		Details:     report.Details{},
	}

	region, err := raster.Extract(page, s.BoundingBox)
	if err != nil {
		if errors.Is(err, raster.ErrEmptyRegion) {
			result.Error = report.ErrInvalidCoordinates
		} else {
			result.Error = fmt.Sprintf("extraction failed: %v", err)
		}
		e.logger.Debug("section not extracted", "section", s.Name, "page", s.Page, "error", err)
		return result
	}

	out := e.registry.For(s.Type, formType).Validate(ctx, region)
	result.Filled = out.Filled
	if out.Details != nil {
		result.Details = out.Details
	}
	return result
}

// attachSIP looks for a filled SIP form on the pages after the first and
// records the first one found.
func (e *Engine) attachSIP(ctx context.Context, rep *report.FormReport, pages []*raster.Page) {
	rep.FormTypes = []template.FormType{rep.FormType}
	rep.AttachedSIP = &report.AttachedSIP{}

	for i := 1; i < len(pages) && ctx.Err() == nil; i++ {
		region, err := raster.Extract(pages[i], raster.Box{Width: 1, Height: 1})
		if err != nil {
			continue
		}
		var found bool
		var details report.Details
		err = e.stability.Protect("attached sip", func() error {
			found, details = e.registry.AttachedSIP(ctx, region)
			return nil
		})
		if err != nil || !found {
			continue
		}

		rep.AttachedSIP = &report.AttachedSIP{Found: true, Page: i, Details: details}
		rep.FormTypes = append(rep.FormTypes, template.FormSIP)
		e.logger.Debug("attached SIP form found", "page", i)
		return
	}
}

func tallySchemes(results []report.SectionResult) *report.SchemeTally {
	tally := &report.SchemeTally{}
	for _, r := range results {
		if r.SectionType != template.SectionScheme {
			continue
		}
		tally.Total++
		if r.Filled {
			tally.Filled++
		}
	}
	return tally
}

// stamp adds the document id and, when a clock is configured, the processing time.
func (e *Engine) stamp(rep *report.FormReport, pages []*raster.Page) *report.FormReport {
	if len(pages) > 0 {
		rep.DocumentID = DocumentID(pages)
	}
	if e.now != nil {
		at := e.now().UTC()
		rep.ProcessedAt = &at
	}
	return rep
}

func sipFamily(t template.SectionType) bool {
	return t == template.SectionSIPDetails || t == template.SectionSection8 || t == template.SectionScheme
}

func otmFamily(t template.SectionType) bool {
	return t == template.SectionOTM || t == template.SectionBankDetails
}

// Package app wires configuration into a ready engine and document loader.
package app

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/a3tai/formcheck/internal/config"
	"github.com/a3tai/formcheck/internal/engine"
	"github.com/a3tai/formcheck/internal/extractor"
	"github.com/a3tai/formcheck/internal/source"
	"github.com/a3tai/formcheck/internal/stability"
	"github.com/a3tai/formcheck/internal/template"
	"github.com/a3tai/formcheck/internal/vision"
)

// App holds the components shared by the binaries.
type App struct {
	Config    *config.Config
	Templates *template.Store
	Engine    *engine.Engine
	Loader    *source.Loader
	Stability *stability.Manager
	Logger    *slog.Logger
}

// New loads the templates and builds the engine and loader described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := template.LoadDir(cfg.TemplateDirectory, logger)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		logger.Warn("no templates loaded; every document will be Unknown", "dir", cfg.TemplateDirectory)
	}

	text, err := TextProvider(cfg)
	if err != nil {
		return nil, err
	}
	features := extractor.NewTracedFeatures("vision", vision.NewAnalyzer())

	ec := engine.DefaultConfig()
	ec.Workers = cfg.Workers
	ec.ExtractorTimeout = cfg.ExtractorTimeout
	ec.AcceptThreshold = cfg.AcceptThreshold

	manager := stability.NewManagerWithConfig(ec.Stability, logger)
	eng := engine.NewWithConfig(ec, store, text, features,
		engine.WithLogger(logger),
		engine.WithStability(manager))

	lc := source.DefaultConfig()
	lc.Directory = cfg.DocumentDirectory
	lc.MaxFileSize = cfg.MaxFileSize
	loader := source.NewLoaderWithConfig(lc, logger)

	logger.Info("engine ready",
		"templates", store.Len(),
		"form_types", store.FormTypes(),
		"ocr", cfg.HasOCR(),
		"workers", ec.Workers)

	return &App{
		Config:    cfg,
		Templates: store,
		Engine:    eng,
		Loader:    loader,
		Stability: manager,
		Logger:    logger,
	}, nil
}

// TextProvider builds the text chain: the PDF text layer first, then Tika
// OCR when configured, throttled to the configured rate.
func TextProvider(cfg *config.Config) (extractor.TextProvider, error) {
	layer := extractor.NewTracedText("layer", extractor.NewLayer())
	if !cfg.HasOCR() {
		return layer, nil
	}

	tika, err := extractor.NewTika(cfg.OCRURL, extractor.WithLanguage(cfg.OCRLanguage))
	if err != nil {
		return nil, fmt.Errorf("cannot create OCR client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.OCRRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OCRRate), cfg.OCRBurst)
	}
	ocr := extractor.NewTracedText("tika", extractor.NewLimitedText(limiter, tika))

	return extractor.NewMulti(layer, ocr), nil
}

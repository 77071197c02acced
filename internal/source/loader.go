// Package source turns document files into page rasters: scanned PDFs
// (embedded page images plus any text layer) and single image files.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/a3tai/formcheck/internal/raster"
)

// ErrNoRaster is returned when a document yields no pages.
var ErrNoRaster = errors.New("document has no pages")

// Config configures document loading.
type Config struct {
	// Directory confines Load to paths inside it; empty allows any path.
	Directory string `json:"directory"`
	// MaxFileSize rejects larger documents; zero disables the check.
	MaxFileSize int64 `json:"max_file_size"`
	// MaxDimension scales pages down so their longer side fits; zero keeps full size.
	MaxDimension int `json:"max_dimension"`
	// PDFScale is the pixels per point used for PDF pages without a scan.
	PDFScale float64 `json:"pdf_scale"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:  100 * 1024 * 1024,
		MaxDimension: 3000,
		PDFScale:     2,
	}
}

// Loader reads documents into pages.
type Loader struct {
	config Config
	paths  *PathValidator
	files  *FileValidator
	logger *slog.Logger
}

// NewLoader creates a loader with the default configuration.
func NewLoader(logger *slog.Logger) *Loader {
	return NewLoaderWithConfig(DefaultConfig(), logger)
}

// NewLoaderWithConfig creates a loader with a custom configuration.
func NewLoaderWithConfig(config Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PDFScale <= 0 {
		config.PDFScale = DefaultConfig().PDFScale
	}

	l := &Loader{
		config: config,
		files:  NewFileValidator(config.MaxFileSize),
		logger: logger,
	}
	if config.Directory != "" {
		l.paths, _ = NewPathValidator(config.Directory)
	}
	return l
}

// Config returns the loader settings.
func (l *Loader) Config() Config { return l.config }

// Load validates and reads the document at path.
func (l *Loader) Load(ctx context.Context, path string) ([]*raster.Page, error) {
	if l.paths != nil {
		resolved, err := l.paths.Resolve(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	if _, err := l.files.Check(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read document: %w", err)
	}
	return l.LoadBytes(ctx, path, data)
}

// LoadBytes reads an in-memory document; name selects the format by extension.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte) ([]*raster.Page, error) {
	kind, err := l.files.CheckSize(name, int64(len(data)))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []*raster.Page
	switch kind {
	case KindPDF:
		pages, err = l.loadPDF(ctx, data)
	default:
		pages, err = l.loadImage(data)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoRaster
	}

	l.logger.Debug("document loaded", "name", name, "kind", kind.String(), "pages", len(pages))
	return pages, nil
}

func (l *Loader) loadImage(data []byte) ([]*raster.Page, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return []*raster.Page{raster.NewPage(0, fit(img, l.config.MaxDimension))}, nil
}

func (l *Loader) loadPDF(ctx context.Context, data []byte) ([]*raster.Page, error) {
	text, textErr := l.textLayer(data)
	scans, scanErr := l.scans(data)
	if textErr != nil && scanErr != nil {
		return nil, errors.Join(textErr, scanErr)
	}
	if textErr != nil {
		l.logger.Warn("PDF text layer ignored", "error", textErr)
	}
	if scanErr != nil {
		l.logger.Warn("PDF page images ignored", "error", scanErr)
	}

	n := len(text)
	for page := range scans {
		n = max(n, page+1)
	}

	pages := make([]*raster.Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tp := textPage{box: letter}
		if i < len(text) {
			tp = text[i]
		}

		img, ok := scans[i]
		if !ok {
			img = blank(int(tp.box.width()*l.config.PDFScale), int(tp.box.height()*l.config.PDFScale))
		}
		pages = append(pages, raster.NewPage(i, fit(img, l.config.MaxDimension), tp.words...))
	}
	return pages, nil
}

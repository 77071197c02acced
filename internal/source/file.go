package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files that are neither PDFs nor supported images.
var ErrUnsupported = errors.New("unsupported document type")

// Kind is the container format of a document.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

var kinds = map[string]Kind{
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".bmp":  KindImage,
	".webp": KindImage,
}

// KindOf returns the document kind implied by name's extension.
func KindOf(name string) Kind {
	return kinds[strings.ToLower(filepath.Ext(name))]
}

// Extensions returns the supported file extensions.
func Extensions() []string {
	return []string{".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".webp"}
}

// FileValidator checks document files before they are read.
type FileValidator struct {
	maxFileSize int64
}

// NewFileValidator creates a validator rejecting files above maxFileSize bytes.
func NewFileValidator(maxFileSize int64) *FileValidator {
	return &FileValidator{maxFileSize: maxFileSize}
}

// Check validates path and returns its kind.
func (v *FileValidator) Check(path string) (Kind, error) {
	if path == "" {
		return KindUnknown, fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return KindUnknown, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return KindUnknown, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return KindUnknown, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	return v.CheckSize(path, info.Size())
}

// CheckSize validates an in-memory document of size bytes called name.
func (v *FileValidator) CheckSize(name string, size int64) (Kind, error) {
	kind := KindOf(name)
	if kind == KindUnknown {
		return kind, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if size == 0 {
		return kind, fmt.Errorf("file is empty: %s", name)
	}
	if v.maxFileSize > 0 && size > v.maxFileSize {
		return kind, fmt.Errorf("file too large: %d bytes (max: %d bytes)", size, v.maxFileSize)
	}
	return kind, nil
}

package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/formcheck/internal/raster"
)

// ErrTemplateInvalid marks a template document that cannot be served.
var ErrTemplateInvalid = errors.New("invalid template")

// document is the on-disk template shape. Both the authoring tool's keys
// (type, coordinates) and the canonical ones (section_type, bounding_box)
// are accepted.
type document struct {
	Name      string            `json:"name" yaml:"name"`
	FormType  string            `json:"form_type" yaml:"form_type"`
	Sections  []sectionDocument `json:"sections" yaml:"sections"`
	CreatedAt string            `json:"created_at" yaml:"created_at"`
}

type sectionDocument struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"`
	SectionType string      `json:"section_type" yaml:"section_type"`
	Page        int         `json:"page" yaml:"page"`
	Coordinates *raster.Box `json:"coordinates" yaml:"coordinates"`
	BoundingBox *raster.Box `json:"bounding_box" yaml:"bounding_box"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse decodes a template document. format is a file extension
// (".json", ".yaml" or ".yml").
func Parse(data []byte, format string) (*Template, error) {
	var doc document
	switch strings.ToLower(format) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateInvalid, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateInvalid, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrTemplateInvalid, format)
	}
	return doc.template()
}

// IsTemplateFile reports whether path has a template document extension.
func IsTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func (d document) template() (*Template, error) {
	sections := make([]Section, 0, len(d.Sections))
	for _, sd := range d.Sections {
		raw := sd.SectionType
		if raw == "" {
			raw = sd.Type
		}
		st, err := ParseSectionType(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: section %q: %v", ErrTemplateInvalid, sd.Name, err)
		}

		var box raster.Box
		switch {
		case sd.BoundingBox != nil:
			box = *sd.BoundingBox
		case sd.Coordinates != nil:
			box = *sd.Coordinates
		default:
			return nil, fmt.Errorf("%w: section %q has no coordinates", ErrTemplateInvalid, sd.Name)
		}

		sections = append(sections, Section{
			Name:        sd.Name,
			Type:        st,
			Page:        sd.Page,
			BoundingBox: box,
		})
	}

	return New(d.Name, FormType(strings.TrimSpace(d.FormType)), parseCreatedAt(d.CreatedAt), sections...)
}

func parseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

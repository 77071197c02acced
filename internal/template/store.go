package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// Store serves a fixed set of templates. It is safe for concurrent reads and
// enumerates templates in ascending name order.
type Store struct {
	templates []*Template
	byName    map[string]*Template
}

// NewStore builds a store from templates. A template whose name was already
// seen is dropped and logged.
func NewStore(logger *slog.Logger, templates ...*Template) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{byName: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if t == nil {
			continue
		}
		if _, dup := s.byName[t.Name]; dup {
			logger.Warn("duplicate template name skipped", "template", t.Name)
			continue
		}
		s.byName[t.Name] = t
		s.templates = append(s.templates, t)
	}

	sort.Slice(s.templates, func(i, j int) bool {
		return s.templates[i].Name < s.templates[j].Name
	})
	return s
}

// LoadDir loads every template document in dir. Malformed documents are
// skipped and logged; only an unreadable directory is an error.
func LoadDir(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read template directory %s: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !IsTemplateFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("template unreadable", "file", path, "error", err)
			continue
		}

		t, err := Parse(data, filepath.Ext(path))
		if err != nil {
			logger.Warn("template skipped", "file", path, "error", err)
			continue
		}
		templates = append(templates, t)
	}

	store := NewStore(logger, templates...)
	logger.Info("templates loaded", "dir", dir, "count", store.Len())
	return store, nil
}

// All returns every template in name order.
func (s *Store) All() []*Template {
	return slices.Clone(s.templates)
}

// Len returns the number of templates.
func (s *Store) Len() int {
	return len(s.templates)
}

// Get returns the template called name.
func (s *Store) Get(name string) (*Template, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// For returns the first template, in name order, labelled formType.
// Matching ignores case and surrounding whitespace.
func (s *Store) For(formType FormType) (*Template, bool) {
	want := strings.TrimSpace(string(formType))
	if want == "" || strings.EqualFold(want, string(FormUnknown)) {
		return nil, false
	}
	for _, t := range s.templates {
		if strings.EqualFold(string(t.FormType), want) {
			return t, true
		}
	}
	return nil, false
}

// FormTypes returns the distinct form types served, in first-seen name order.
func (s *Store) FormTypes() []FormType {
	var out []FormType
	seen := make(map[FormType]bool)
	for _, t := range s.templates {
		if !seen[t.FormType] {
			seen[t.FormType] = true
			out = append(out, t.FormType)
		}
	}
	return out
}

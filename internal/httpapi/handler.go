// Package httpapi serves the engine over HTTP: document uploads are
// classified or validated and answered with JSON reports.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/a3tai/formcheck/internal/engine"
	"github.com/a3tai/formcheck/internal/source"
)

// uploadOverhead is allowed on top of the document size for multipart framing.
const uploadOverhead = 1 << 20

// Handler answers the document and template endpoints.
type Handler struct {
	engine *engine.Engine
	loader *source.Loader
	logger *slog.Logger
}

// New creates a handler over eng, reading uploads with loader.
func New(eng *engine.Engine, loader *source.Loader, logger *slog.Logger) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if loader == nil {
		return nil, errors.New("loader cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		engine: eng,
		loader: loader,
		logger: logger,
	}, nil
}

// Attach registers the API routes on r.
func (h *Handler) Attach(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents/classify", h.handleClassify)
		r.Post("/documents/validate", h.handleValidate)
		r.Post("/documents/process", h.handleProcess)

		r.Get("/templates", h.handleTemplates)
		r.Get("/templates/{name}", h.handleTemplate)
	})
}

// Routes returns a router with the standard middleware and every route attached.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h.Attach(r)
	return r
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	text := http.StatusText(code)

	if err != nil {
		text = err.Error()
	}

	http.Error(w, text, code)
}

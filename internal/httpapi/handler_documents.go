package httpapi

import (
	"errors"
	"net/http"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/source"
	"github.com/a3tai/formcheck/internal/template"
)

func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	pages, ok := h.readPages(w, r)

	if !ok {
		return
	}

	writeJson(w, http.StatusOK, h.engine.Classify(r.Context(), pages))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	pages, ok := h.readPages(w, r)

	if !ok {
		return
	}

	formType := valueFormType(r)

	if formType == "" {
		writeError(w, http.StatusBadRequest, errors.New("form_type is required"))
		return
	}

	writeJson(w, http.StatusOK, h.engine.Validate(r.Context(), template.FormType(formType), pages))
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	pages, ok := h.readPages(w, r)

	if !ok {
		return
	}

	writeJson(w, http.StatusOK, h.engine.Process(r.Context(), pages))
}

// readPages loads the uploaded document, answering the request itself on failure.
func (h *Handler) readPages(w http.ResponseWriter, r *http.Request) ([]*raster.Page, bool) {
	file, err := h.readFile(w, r)

	if err != nil {
		var tooLarge *http.MaxBytesError

		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return nil, false
		}

		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	pages, err := h.loader.LoadBytes(r.Context(), file.Name, file.Content)

	if err != nil {
		h.logger.Warn("document rejected", "name", file.Name, "size", len(file.Content), "error", err)

		code := http.StatusBadRequest

		if errors.Is(err, source.ErrUnsupported) {
			code = http.StatusUnsupportedMediaType
		}

		writeError(w, code, err)
		return nil, false
	}

	return pages, true
}

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a3tai/formcheck/internal/stability"
	"github.com/a3tai/formcheck/internal/template"
)

type templateList struct {
	Count     int                  `json:"count"`
	FormTypes []template.FormType  `json:"form_types"`
	Templates []*template.Template `json:"templates"`
}

type healthStatus struct {
	Status    string           `json:"status"`
	Templates int              `json:"templates"`
	Health    stability.Health `json:"health"`
}

func (h *Handler) handleTemplates(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()

	writeJson(w, http.StatusOK, templateList{
		Count:     store.Len(),
		FormTypes: store.FormTypes(),
		Templates: store.All(),
	})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	t, ok := h.engine.Store().Get(name)

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("template %q not found", name))
		return
	}

	writeJson(w, http.StatusOK, t)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Stability().Health()

	status := healthStatus{
		Status:    "ok",
		Templates: h.engine.Store().Len(),
		Health:    health,
	}

	code := http.StatusOK

	if !health.Healthy {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJson(w, code, status)
}

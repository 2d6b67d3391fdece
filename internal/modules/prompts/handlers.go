package prompts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes template CRUD and the placeholder vocabulary.
type Handlers struct {
	repo    *Repository
	manager *Manager
	log     zerolog.Logger
}

func NewHandlers(repo *Repository, manager *Manager, log zerolog.Logger) *Handlers {
	return &Handlers{repo: repo, manager: manager, log: log.With().Str("handler", "templates").Logger()}
}

func (h *Handlers) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/placeholders", h.placeholders)
		r.With(requireAdmin).Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.With(requireAdmin).Put("/", h.update)
			r.With(requireAdmin).Delete("/", h.delete)
		})
	})
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templates, err := h.repo.List(r.Context(), q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handlers) placeholders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"placeholders": PlaceholderCategories()})
}

type templateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Strict  bool   `json:"strict"`
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name and content are required")
		return
	}
	if err := h.manager.ValidateTemplate(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error())
		return
	}

	template, err := h.repo.Create(r.Context(), req.Name, req.Content, req.Strict)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	template, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if template == nil {
		writeError(w, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
		return
	}

	req := templateRequest{Name: existing.Name, Content: existing.Content, Strict: existing.Strict}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.manager.ValidateTemplate(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error())
		return
	}

	template, err := h.repo.Update(r.Context(), existing.TemplateID, req.Name, req.Content, req.Strict)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error_code": code, "message": message})
}

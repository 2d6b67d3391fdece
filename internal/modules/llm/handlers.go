package llm

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
)

// Handlers exposes provider CRUD. API keys never leave the server: the
// domain struct hides them from JSON.
type Handlers struct {
	providers *ProviderRepository
	log       zerolog.Logger
}

func NewHandlers(providers *ProviderRepository, log zerolog.Logger) *Handlers {
	return &Handlers{providers: providers, log: log.With().Str("handler", "providers").Logger()}
}

func (h *Handlers) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.list)
		r.With(requireAdmin).Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.With(requireAdmin).Put("/", h.update)
			r.With(requireAdmin).Delete("/", h.delete)
			r.With(requireAdmin).Post("/activate", h.activate)
			r.With(requireAdmin).Post("/deactivate", h.deactivate)
		})
	})
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

type providerRequest struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	APIURL   string `json:"api_url"`
	APIKey   string `json:"api_key"`
}

func validProtocol(p domain.LLMProtocol) bool {
	switch p {
	case domain.ProtocolOpenAI, domain.ProtocolAnthropic, domain.ProtocolGemini:
		return true
	}
	return false
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.APIURL == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name, api_url and api_key are required")
		return
	}
	protocol := domain.LLMProtocol(req.Protocol)
	if !validProtocol(protocol) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "protocol must be openai, anthropic or gemini")
		return
	}

	provider, err := h.providers.Create(r.Context(), req.Name, protocol, req.APIURL, req.APIKey)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, provider)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if provider == nil {
		writeError(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "provider not found")
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.providers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "provider not found")
		return
	}

	req := providerRequest{Name: existing.Name, Protocol: string(existing.Protocol), APIURL: existing.APIURL}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	protocol := domain.LLMProtocol(req.Protocol)
	if !validProtocol(protocol) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "protocol must be openai, anthropic or gemini")
		return
	}

	provider, err := h.providers.Update(r.Context(), existing.ProviderID, req.Name, protocol, req.APIURL, req.APIKey)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.providers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handlers) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handlers) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if err := h.providers.SetActive(r.Context(), id, active); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": id, "is_active": active})
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

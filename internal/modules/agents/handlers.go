package agents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

// Handlers exposes the agent HTTP surface.
type Handlers struct {
	svc *Service
	log zerolog.Logger
}

// NewHandlers creates the agent handlers.
func NewHandlers(svc *Service, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, log: log.With().Str("handler", "agents").Logger()}
}

// RegisterRoutes mounts the agent routes. requireAdmin guards writes.
func (h *Handlers) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/decision-logs/all", h.allDecisionLogs)
		r.With(requireAdmin).Post("/", h.create)
		r.With(requireAdmin).Post("/trigger-all", h.triggerAll)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/decision-logs", h.decisionLogs)
			r.Get("/orders", h.orders)
			r.With(requireAdmin).Put("/", h.update)
			r.With(requireAdmin).Delete("/", h.delete)
			r.With(requireAdmin).Post("/trigger", h.trigger)
			r.With(requireAdmin).Post("/pause", h.pause)
			r.With(requireAdmin).Post("/resume", h.resume)
		})
	})
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ListOptions{
		Status:    domain.AgentStatus(q.Get("status")),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      atoiDefault(q.Get("page"), 1),
		PageSize:  atoiDefault(q.Get("page_size"), 50),
	}
	includeTx := q.Get("include_transactions") == "true"

	list, total, err := h.svc.agents.List(r.Context(), opts)
	if err != nil {
		h.fail(w, err)
		return
	}

	views := make([]*AgentView, 0, len(list))
	for _, a := range list {
		view, err := h.svc.buildView(r.Context(), a, includeTx)
		if err != nil {
			h.fail(w, err)
			return
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents": views,
		"total":  total,
		"page":   opts.Page,
	})
}

type createAgentRequest struct {
	Name         string `json:"name"`
	InitialCash  string `json:"initial_cash"`
	TemplateID   string `json:"template_id"`
	ProviderID   string `json:"provider_id"`
	ModelName    string `json:"model_name"`
	ScheduleType string `json:"schedule_type"`
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.TemplateID == "" || req.ProviderID == "" || req.ModelName == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name, template_id, provider_id and model_name are required")
		return
	}
	cash, err := decimal.NewFromString(req.InitialCash)
	if err != nil || !cash.IsPositive() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "initial_cash must be a positive amount")
		return
	}

	agent, err := h.svc.agents.Create(r.Context(), CreateAgentInput{
		Name:         req.Name,
		InitialCash:  cash,
		TemplateID:   req.TemplateID,
		ProviderID:   req.ProviderID,
		ModelName:    req.ModelName,
		ScheduleType: req.ScheduleType,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	view, err := h.svc.buildView(r.Context(), agent, r.URL.Query().Get("include_transactions") == "true")
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = agent.Name
	}
	if req.TemplateID == "" {
		req.TemplateID = agent.TemplateID
	}
	if req.ProviderID == "" {
		req.ProviderID = agent.ProviderID
	}
	if req.ModelName == "" {
		req.ModelName = agent.ModelName
	}
	if req.ScheduleType == "" {
		req.ScheduleType = agent.ScheduleType
	}

	updated, err := h.svc.agents.Update(r.Context(), agent.ID, req.Name, req.TemplateID, req.ProviderID, req.ModelName, req.ScheduleType)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	if err := h.svc.agents.SoftDelete(r.Context(), agent.ID); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type triggerRequest struct {
	CheckTradingTime bool              `json:"check_trading_time"`
	SentimentScore   *float64          `json:"sentiment_score"`
	MarketData       map[string]string `json:"market_data"`
}

func (h *Handlers) trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.svc.TriggerDecision(r.Context(), chi.URLParam(r, "id"), TriggerOptions{
		CheckTradingTime:  req.CheckTradingTime,
		SentimentOverride: req.SentimentScore,
		MarketOverride:    req.MarketData,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAgentNotFound):
			writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND", err.Error())
		case errors.Is(err, ErrAgentPaused):
			writeError(w, http.StatusBadRequest, "AGENT_PAUSED", err.Error())
		case errors.Is(err, ErrLLMUnavailable):
			writeError(w, http.StatusServiceUnavailable, "LLM_UNAVAILABLE", err.Error())
		default:
			h.fail(w, err)
		}
		return
	}
	// Busy agents come back as a 200 with success=false.
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) triggerAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		triggerRequest
		AgentIDs []string `json:"agent_ids"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	results := h.svc.TriggerAll(r.Context(), req.AgentIDs, TriggerOptions{
		CheckTradingTime:  req.CheckTradingTime,
		SentimentOverride: req.SentimentScore,
		MarketOverride:    req.MarketData,
	})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handlers) pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.AgentPaused)
}

func (h *Handlers) resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.AgentActive)
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request, status domain.AgentStatus) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	if err := h.svc.agents.UpdateStatus(r.Context(), agent.ID, status); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": agent.ID, "status": status})
}

func (h *Handlers) decisionLogs(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	h.listDecisionLogs(w, r, agent.ID)
}

func (h *Handlers) allDecisionLogs(w http.ResponseWriter, r *http.Request) {
	h.listDecisionLogs(w, r, "")
}

func (h *Handlers) listDecisionLogs(w http.ResponseWriter, r *http.Request, agentID string) {
	q := r.URL.Query()
	logs, total, err := h.svc.decisionLogs.List(r.Context(), agentID,
		domain.DecisionLogStatus(q.Get("status")),
		atoiDefault(q.Get("page"), 1),
		atoiDefault(q.Get("page_size"), 50))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "total": total})
}

func (h *Handlers) orders(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	orders, total, err := h.svc.orders.ListByAgent(r.Context(), agent.ID,
		atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("page_size"), 50))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "total": total})
}

func (h *Handlers) loadAgent(w http.ResponseWriter, r *http.Request) (*domain.Agent, bool) {
	agent, err := h.svc.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if agent == nil || agent.Status == domain.AgentDeleted {
		writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND", "agent not found")
		return nil, false
	}
	return agent, true
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

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

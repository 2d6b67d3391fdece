package tasks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
)

// Handlers exposes the system task HTTP surface. All routes are
// admin-only.
type Handlers struct {
	tasks     *TaskRepository
	taskLogs  *TaskLogRepository
	executor  *Executor
	scheduler *Scheduler
	log       zerolog.Logger
}

func NewHandlers(tasks *TaskRepository, taskLogs *TaskLogRepository, executor *Executor, scheduler *Scheduler, log zerolog.Logger) *Handlers {
	return &Handlers{
		tasks:     tasks,
		taskLogs:  taskLogs,
		executor:  executor,
		scheduler: scheduler,
		log:       log.With().Str("handler", "tasks").Logger(),
	}
}

func (h *Handlers) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/tasks", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/run", h.run)
			r.Post("/pause", h.pause)
			r.Post("/resume", h.resume)
			r.Get("/logs", h.logs)
		})
	})
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type taskRequest struct {
	Name           string         `json:"name"`
	TaskType       string         `json:"task_type"`
	AgentIDs       []string       `json:"agent_ids"`
	Config         map[string]any `json:"config"`
	Schedule       string         `json:"schedule"`
	TradingDayOnly bool           `json:"trading_day_only"`
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.Schedule == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name and schedule are required")
		return
	}
	taskType := domain.TaskType(req.TaskType)
	switch taskType {
	case domain.TaskAgentDecision, domain.TaskQuoteSync, domain.TaskMarketRefresh:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown task_type")
		return
	}

	task, err := h.tasks.Create(r.Context(), CreateTaskInput{
		Name:           req.Name,
		TaskType:       taskType,
		AgentIDs:       req.AgentIDs,
		Config:         req.Config,
		Schedule:       req.Schedule,
		TradingDayOnly: req.TradingDayOnly,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name != "" {
		task.Name = req.Name
	}
	if req.TaskType != "" {
		task.TaskType = domain.TaskType(req.TaskType)
	}
	if req.AgentIDs != nil {
		task.AgentIDs = req.AgentIDs
	}
	if req.Config != nil {
		task.Config = req.Config
	}
	if req.Schedule != "" {
		task.Schedule = req.Schedule
	}
	task.TradingDayOnly = req.TradingDayOnly

	if err := h.tasks.Update(r.Context(), task); err != nil {
		h.fail(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), task.TaskID); err != nil {
		h.fail(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// run executes the task immediately, ignoring its schedule. Skip rules
// still apply.
func (h *Handlers) run(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	entry, err := h.executor.Execute(r.Context(), task)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handlers) pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.TaskPaused)
}

func (h *Handlers) resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.TaskActive)
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request, status domain.TaskStatus) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	if err := h.tasks.SetStatus(r.Context(), task.TaskID, status); err != nil {
		h.fail(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.TaskID, "status": status})
}

func (h *Handlers) logs(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.taskLogs.ListByTask(r.Context(), task.TaskID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handlers) loadTask(w http.ResponseWriter, r *http.Request) (*domain.SystemTask, bool) {
	task, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "TASK_NOT_FOUND", "task not found")
		return nil, false
	}
	return task, true
}

func (h *Handlers) reload(r *http.Request) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Reload(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("scheduler reload failed")
	}
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

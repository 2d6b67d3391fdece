package market

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

// Handlers exposes the market read API plus admin refresh/sync triggers.
type Handlers struct {
	svc    *Service
	quotes *QuoteRepository
	sync   *QuoteService
	log    zerolog.Logger
}

func NewHandlers(svc *Service, quotes *QuoteRepository, sync *QuoteService, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, quotes: quotes, sync: sync, log: log.With().Str("handler", "market").Logger()}
}

func (h *Handlers) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/quotes", h.listQuotes)
		r.Get("/quotes/{code}", h.quoteHistory)
		r.Get("/overview", h.overview)
		r.Get("/sentiment", h.sentiment)
		r.With(requireAdmin).Post("/refresh", h.refresh)
		r.With(requireAdmin).Post("/sync", h.syncQuotes)
	})
}

// listQuotes returns the latest row per stock with its computed
// change_pct, paginated.
func (h *Handlers) listQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	pageSize := atoiDefault(q.Get("page_size"), 50)

	quotes, total, err := h.quotes.ListLatest(r.Context(), page, pageSize)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quotes": quotes,
		"total":  total,
		"page":   page,
	})
}

func (h *Handlers) quoteHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	q := r.URL.Query()

	var (
		quotes []*domain.StockQuote
		err    error
	)
	if from, to := q.Get("from"), q.Get("to"); from != "" && to != "" {
		quotes, err = h.quotes.GetRange(r.Context(), code, from, to)
	} else {
		quotes, err = h.quotes.GetRecent(r.Context(), code, atoiDefault(q.Get("days"), 30))
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(quotes) == 0 {
		writeError(w, http.StatusNotFound, "STOCK_NOT_FOUND", "no quotes for "+code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_code": code, "quotes": quotes})
}

// overview returns the latest derived artifacts as one bundle.
func (h *Handlers) overview(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.svc.GetMarketBundle(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handlers) sentiment(w http.ResponseWriter, r *http.Request) {
	score, err := h.svc.SentimentScore(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sentiment_score": score})
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RefreshAll(r.Context(), trading.MarketDate(time.Now()))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STOCK_DATA_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type syncRequest struct {
	ForceFull  bool     `json:"force_full"`
	StockCodes []string `json:"stock_codes"`
	Days       int      `json:"days"`
}

func (h *Handlers) syncQuotes(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var (
		success, fail int
		err           error
	)
	if len(req.StockCodes) > 0 {
		success, fail, err = h.sync.SyncSpecificStocks(r.Context(), req.StockCodes, req.Days)
	} else {
		success, fail, err = h.sync.SyncQuotes(r.Context(), req.ForceFull)
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STOCK_DATA_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "fail": fail})
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

package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/lock"
	"github.com/mosaicfin/atrader/internal/modules/indicators"
	"github.com/mosaicfin/atrader/internal/modules/llm"
	"github.com/mosaicfin/atrader/internal/modules/market"
	"github.com/mosaicfin/atrader/internal/modules/prompts"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrAgentPaused      = errors.New("agent is paused")
	ErrTemplateNotFound = errors.New("template not found")
	ErrLLMUnavailable   = errors.New("llm provider unavailable")
)

// apiErrorPattern classifies cycle failures for the decision log.
var apiErrorPattern = regexp.MustCompile(`(?i)timeout|connection|api|llm|request|response|http`)

// busyMessage is the error_message returned when the decision lock is
// already held for the agent.
const busyMessage = "agent busy"

// TriggerOptions tunes a single decision cycle.
type TriggerOptions struct {
	// CheckTradingTime enables the session-hours order gate; manual
	// triggers may leave it off.
	CheckTradingTime bool
	// SentimentOverride replaces the stored sentiment score.
	SentimentOverride *float64
	// MarketOverride replaces individual prompt placeholders.
	MarketOverride map[string]string
}

// TriggerResult is the outcome of one decision cycle.
type TriggerResult struct {
	Success       bool                     `json:"success"`
	Decisions     []domain.TradingDecision `json:"decisions"`
	ExecutedCount int                      `json:"executed_count"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
	Message       string                   `json:"message,omitempty"`
}

// Service orchestrates agents: CRUD views plus the decision cycle.
type Service struct {
	agents       *AgentRepository
	positions    *PositionRepository
	orders       *OrderRepository
	txs          *TransactionRepository
	decisionLogs *DecisionLogRepository
	providers    *llm.ProviderRepository
	llmLogs      *llm.LogRepository
	templates    *prompts.Repository
	promptMgr    *prompts.Manager
	marketSvc    *market.Service
	quotes       *market.QuoteRepository
	indicators   *indicators.Service
	processor    *trading.Processor
	locker       lock.DecisionLocker
	llmTimeout   time.Duration
	log          zerolog.Logger
}

// NewService wires the decision-cycle service.
func NewService(
	agents *AgentRepository,
	positions *PositionRepository,
	orders *OrderRepository,
	txs *TransactionRepository,
	decisionLogs *DecisionLogRepository,
	providers *llm.ProviderRepository,
	llmLogs *llm.LogRepository,
	templates *prompts.Repository,
	promptMgr *prompts.Manager,
	marketSvc *market.Service,
	quotes *market.QuoteRepository,
	ind *indicators.Service,
	processor *trading.Processor,
	locker lock.DecisionLocker,
	llmTimeout time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		agents:       agents,
		positions:    positions,
		orders:       orders,
		txs:          txs,
		decisionLogs: decisionLogs,
		providers:    providers,
		llmLogs:      llmLogs,
		templates:    templates,
		promptMgr:    promptMgr,
		marketSvc:    marketSvc,
		quotes:       quotes,
		indicators:   ind,
		processor:    processor,
		locker:       locker,
		llmTimeout:   llmTimeout,
		log:          log.With().Str("component", "agent_service").Logger(),
	}
}

// TriggerDecision runs one decision cycle for an agent: acquire the
// per-agent lock, assemble the prompt, call the model, parse, validate
// and settle each decision, persist the trail, release the lock.
func (s *Service) TriggerDecision(ctx context.Context, agentID string, opts TriggerOptions) (*TriggerResult, error) {
	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil || agent.Status == domain.AgentDeleted {
		return nil, ErrAgentNotFound
	}
	if agent.Status == domain.AgentPaused {
		return nil, ErrAgentPaused
	}

	release, acquired, err := s.locker.AcquireDecision(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return &TriggerResult{Success: false, ErrorMessage: busyMessage}, nil
	}
	defer release()

	result := s.runCycle(ctx, agent, opts)
	return result, nil
}

// runCycle does the work inside the decision lock.
func (s *Service) runCycle(ctx context.Context, agent *domain.Agent, opts TriggerOptions) *TriggerResult {
	log := s.log.With().Str("agent_id", agent.ID).Logger()

	positions, err := s.positions.ListByAgent(ctx, agent.ID)
	if err != nil {
		return s.failCycle(ctx, agent.ID, err)
	}
	portfolio := domain.NewPortfolio(agent.ID, agent.CurrentCash, positions)

	provider, err := s.providers.Get(ctx, agent.ProviderID)
	if err != nil {
		return s.failCycle(ctx, agent.ID, err)
	}
	if provider == nil || !provider.IsActive {
		return s.failCycle(ctx, agent.ID, ErrLLMUnavailable)
	}

	template, err := s.templates.Get(ctx, agent.TemplateID)
	if err != nil {
		return s.failCycle(ctx, agent.ID, err)
	}
	if template == nil {
		return s.failCycle(ctx, agent.ID, ErrTemplateNotFound)
	}

	promptCtx, err := s.assembleContext(ctx, agent, portfolio, opts)
	if err != nil {
		return s.failCycle(ctx, agent.ID, err)
	}

	prompt, err := s.promptMgr.Render(template.Content, promptCtx, template.Strict)
	if err != nil {
		return s.failCycle(ctx, agent.ID, fmt.Errorf("prompt render failed: %w", err))
	}

	client := llm.NewClient(provider, s.llmLogs, s.llmTimeout, s.log)
	client.SetAgentID(agent.ID)

	chatCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	chat, err := client.Chat(chatCtx, agent.ModelName, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return s.failCycle(ctx, agent.ID, fmt.Errorf("llm chat failed: %w", err))
	}

	decisions, err := ParseDecisions(chat.Text)
	if err != nil {
		return s.failCycle(ctx, agent.ID, fmt.Errorf("decision parse failed: %w", err))
	}

	var llmLogID *int64
	if chat.LogID > 0 {
		id := chat.LogID
		llmLogID = &id
	}

	executed := 0
	now := time.Now()
	for _, d := range decisions {
		prevClose := s.prevCloseFor(ctx, d, now)
		res := s.processor.Process(d, portfolio, prevClose, trading.Options{
			CheckTradingTime: opts.CheckTradingTime,
			Now:              now,
			LLMLogID:         llmLogID,
		})
		if err := s.persistResult(ctx, portfolio, res); err != nil {
			log.Error().Err(err).Str("order_id", res.Order.OrderID).Msg("decision persist failed")
			continue
		}
		if res.Filled {
			executed++
		}
	}

	// Single cash write after the whole cycle. A failure here leaves the
	// persisted transactions ahead of the stored balance, so the cycle
	// must not report success.
	if err := s.agents.UpdateCash(ctx, agent.ID, portfolio.Cash); err != nil {
		return s.failCycle(ctx, agent.ID, fmt.Errorf("cash settlement persist failed: %w", err))
	}

	parsed, _ := json.Marshal(decisions)
	if _, err := s.decisionLogs.Append(ctx, &domain.DecisionLog{
		AgentID:        agent.ID,
		Status:         domain.DecisionLogSuccess,
		ParsedDecision: string(parsed),
	}); err != nil {
		log.Warn().Err(err).Msg("decision log append failed")
	}

	log.Info().Int("decisions", len(decisions)).Int("executed", executed).Msg("decision cycle complete")
	return &TriggerResult{Success: true, Decisions: decisions, ExecutedCount: executed}
}

// persistResult writes the order, transaction and position changes of one
// processed decision. Order save happens first so the audit row exists
// even if later writes fail.
func (s *Service) persistResult(ctx context.Context, portfolio *domain.Portfolio, res trading.Result) error {
	if err := s.orders.Save(ctx, res.Order); err != nil {
		return err
	}
	if !res.Filled {
		return nil
	}
	if res.Transaction != nil {
		if err := s.txs.Save(ctx, res.Transaction); err != nil {
			return err
		}
	}
	if res.Order.Side == domain.SideHold || res.Order.StockCode == nil {
		return nil
	}

	code := *res.Order.StockCode
	if pos, ok := portfolio.Positions[code]; ok {
		return s.positions.Upsert(ctx, pos)
	}
	return s.positions.Delete(ctx, portfolio.AgentID, code)
}

// failCycle records a failed cycle in the decision log, classifying the
// error as api_error or no_trade by its message.
func (s *Service) failCycle(ctx context.Context, agentID string, err error) *TriggerResult {
	status := domain.DecisionLogNoTrade
	if apiErrorPattern.MatchString(err.Error()) {
		status = domain.DecisionLogAPIError
	}
	if _, logErr := s.decisionLogs.Append(ctx, &domain.DecisionLog{
		AgentID:      agentID,
		Status:       status,
		ErrorMessage: err.Error(),
	}); logErr != nil {
		s.log.Warn().Err(logErr).Str("agent_id", agentID).Msg("decision log append failed")
	}
	s.log.Error().Err(err).Str("agent_id", agentID).Str("status", string(status)).Msg("decision cycle failed")
	return &TriggerResult{Success: false, ErrorMessage: err.Error()}
}

// prevCloseFor resolves the price-band reference: the close of the last
// trading day before now. Zero when the stock has no stored quote.
func (s *Service) prevCloseFor(ctx context.Context, d domain.TradingDecision, now time.Time) decimal.Decimal {
	code := trading.NormalizeStockCode(d.StockCode)
	if code == "" {
		return decimal.Zero
	}
	q, err := s.quotes.GetLatest(ctx, code)
	if err != nil || q == nil {
		return decimal.Zero
	}
	if q.TradeDate == trading.MarketDate(now) {
		return q.PrevClose
	}
	return q.Close
}

// TriggerAll fans out concurrent decision cycles over the target agents.
// Each cycle acquires its own lock, so overlapping fan-outs are safe.
func (s *Service) TriggerAll(ctx context.Context, agentIDs []string, opts TriggerOptions) []domain.AgentResult {
	targets, err := s.resolveTargets(ctx, agentIDs)
	if err != nil {
		s.log.Error().Err(err).Msg("trigger-all target resolution failed")
		return nil
	}

	results := make([]domain.AgentResult, len(targets))
	var wg sync.WaitGroup
	for i, agent := range targets {
		wg.Add(1)
		go func(i int, agent *domain.Agent) {
			defer wg.Done()
			started := time.Now()
			r := domain.AgentResult{
				AgentID:   agent.ID,
				AgentName: agent.Name,
				StartedAt: started,
			}

			res, err := s.TriggerDecision(ctx, agent.ID, opts)
			switch {
			case err != nil:
				r.Status = "failed"
				r.ErrorMessage = err.Error()
			case !res.Success && res.ErrorMessage == busyMessage:
				// A held decision lock means another run is in flight;
				// the batch declined this agent rather than failing it.
				r.Status = "skipped"
				r.ErrorMessage = res.ErrorMessage
			case !res.Success:
				r.Status = "failed"
				r.ErrorMessage = res.ErrorMessage
			default:
				r.Status = "success"
			}

			r.CompletedAt = time.Now()
			r.DurationMs = r.CompletedAt.Sub(started).Milliseconds()
			results[i] = r
		}(i, agent)
	}
	wg.Wait()
	return results
}

// resolveTargets maps ["all"] to every active agent, otherwise keeps the
// listed ids that are currently active.
func (s *Service) resolveTargets(ctx context.Context, agentIDs []string) ([]*domain.Agent, error) {
	active, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(agentIDs) == 0 || (len(agentIDs) == 1 && agentIDs[0] == "all") {
		return active, nil
	}

	byID := make(map[string]*domain.Agent, len(active))
	for _, a := range active {
		byID[a.ID] = a
	}
	var targets []*domain.Agent
	for _, id := range agentIDs {
		if a, ok := byID[id]; ok {
			targets = append(targets, a)
		}
	}
	return targets, nil
}

// assembleContext builds the placeholder map for the prompt: account
// state, system time, market bundle artifacts, sentiment, indicators for
// held stocks, and the derived markdown blocks.
func (s *Service) assembleContext(ctx context.Context, agent *domain.Agent, portfolio *domain.Portfolio, opts TriggerOptions) (map[string]string, error) {
	now := time.Now().In(trading.MarketLocation())

	view, err := s.buildView(ctx, agent, false)
	if err != nil {
		return nil, err
	}

	c := map[string]string{
		"cash":            portfolio.Cash.StringFixed(2),
		"market_value":    view.MarketValue.StringFixed(2),
		"total_assets":    view.TotalAssets.StringFixed(2),
		"return_rate":     view.ReturnRate.StringFixed(2),
		"positions":       renderPositionsSummary(portfolio),
		"current_time":    now.Format("2006-01-02 15:04:05"),
		"current_date":    now.Format("2006-01-02"),
		"current_weekday": trading.WeekdayName(now),
		"is_trading_day":  fmt.Sprintf("%t", trading.IsTradingDay(now)),
	}

	bundle, err := s.marketSvc.GetMarketBundle(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("market bundle unavailable")
		bundle = &market.MarketBundle{}
	}
	c["market_sentiment"] = compactJSON(bundle.MarketSentiment)
	c["index_overview"] = compactJSON(bundle.IndexOverview)
	c["hot_stocks"] = compactJSON(bundle.HotStocks)
	c["market_overview"] = c["index_overview"]

	score := 0.0
	if opts.SentimentOverride != nil {
		score = *opts.SentimentOverride
	} else if v, err := s.marketSvc.SentimentScore(ctx); err == nil {
		score = v
	}
	c["sentiment_score"] = fmt.Sprintf("%.2f", score)

	c["hot_stocks_quotes"] = s.renderHotStocksBlock(ctx, bundle)
	c["positions_quotes"] = s.renderPositionsBlock(ctx, portfolio)
	s.fillIndicators(ctx, c, portfolio)

	// Caller-supplied values win over everything assembled above.
	for k, v := range opts.MarketOverride {
		c[k] = v
	}
	return c, nil
}

// renderHotStocksBlock builds the hot-stocks markdown from the bundle's
// symbol list and each symbol's recent stored rows.
func (s *Service) renderHotStocksBlock(ctx context.Context, bundle *market.MarketBundle) string {
	stocks, _ := bundle.HotStocks["stocks"].([]any)
	var sections []prompts.StockQuotes
	for _, raw := range stocks {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		code, _ := m["code"].(string)
		name, _ := m["name"].(string)
		if code == "" {
			continue
		}
		code = trading.NormalizeStockCode(code)
		rows, err := s.quotes.GetRecent(ctx, code, 3)
		if err != nil || len(rows) == 0 {
			continue
		}
		sections = append(sections, prompts.StockQuotes{Code: code, Name: name, Rows: rows})
	}
	return prompts.BuildHotStocksMarkdown(sections)
}

// sortedPositions returns the holdings ordered by stock code so prompt
// blocks render deterministically.
func sortedPositions(portfolio *domain.Portfolio) []*domain.Position {
	positions := make([]*domain.Position, 0, len(portfolio.Positions))
	for _, p := range portfolio.Positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].StockCode < positions[j].StockCode
	})
	return positions
}

// renderPositionsBlock builds the per-holding markdown sections.
func (s *Service) renderPositionsBlock(ctx context.Context, portfolio *domain.Portfolio) string {
	var sections []prompts.PositionQuotes
	for _, pos := range sortedPositions(portfolio) {
		rows, err := s.quotes.GetRecent(ctx, pos.StockCode, 30)
		if err != nil {
			continue
		}
		sections = append(sections, prompts.PositionQuotes{Position: pos, Rows: rows})
	}
	return prompts.BuildPositionsMarkdown(sections)
}

// fillIndicators renders one indicator line per held stock.
func (s *Service) fillIndicators(ctx context.Context, c map[string]string, portfolio *domain.Portfolio) {
	var ma, macd, kdj, rsi, boll []string
	for _, pos := range sortedPositions(portfolio) {
		snap, err := s.indicators.Compute(ctx, pos.StockCode)
		if err != nil || snap.MA == "" {
			continue
		}
		ma = append(ma, pos.StockCode+": "+snap.MA)
		macd = append(macd, pos.StockCode+": "+snap.MACD)
		kdj = append(kdj, pos.StockCode+": "+snap.KDJ)
		rsi = append(rsi, pos.StockCode+": "+snap.RSI)
		boll = append(boll, pos.StockCode+": "+snap.BOLL)
	}
	c["ma_data"] = strings.Join(ma, "\n")
	c["macd_data"] = strings.Join(macd, "\n")
	c["kdj_data"] = strings.Join(kdj, "\n")
	c["rsi_data"] = strings.Join(rsi, "\n")
	c["boll_data"] = strings.Join(boll, "\n")
}

func renderPositionsSummary(portfolio *domain.Portfolio) string {
	if len(portfolio.Positions) == 0 {
		return "无持仓"
	}
	var lines []string
	for _, p := range sortedPositions(portfolio) {
		lines = append(lines, fmt.Sprintf("%s %d股 成本%s", p.StockCode, p.Shares, p.AvgCost.StringFixed(2)))
	}
	return strings.Join(lines, "; ")
}

func compactJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

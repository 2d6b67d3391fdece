package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/agents"
	"github.com/mosaicfin/atrader/internal/modules/market"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

const skipReasonPaused = "任务已暂停"

// DecisionRunner fans a decision trigger out to a set of agents.
type DecisionRunner interface {
	TriggerAll(ctx context.Context, agentIDs []string, opts agents.TriggerOptions) []domain.AgentResult
}

// QuoteSyncer pulls daily quote history for held stocks.
type QuoteSyncer interface {
	SyncQuotes(ctx context.Context, forceFull bool) (success, fail int, err error)
}

// MarketRefresher rebuilds the whole-market snapshot artifacts.
type MarketRefresher interface {
	RefreshAll(ctx context.Context, now string) (market.RefreshResult, error)
}

// Executor runs system tasks: it applies the skip rules, dispatches on
// task type, and writes exactly one log row per run.
type Executor struct {
	tasks     *TaskRepository
	taskLogs  *TaskLogRepository
	decisions DecisionRunner
	quotes    QuoteSyncer
	market    MarketRefresher
	now       func() time.Time
	log       zerolog.Logger
}

func NewExecutor(tasks *TaskRepository, taskLogs *TaskLogRepository, decisions DecisionRunner, quotes QuoteSyncer, refresher MarketRefresher, log zerolog.Logger) *Executor {
	return &Executor{
		tasks:     tasks,
		taskLogs:  taskLogs,
		decisions: decisions,
		quotes:    quotes,
		market:    refresher,
		now:       time.Now,
		log:       log.With().Str("component", "task_executor").Logger(),
	}
}

// ExecuteByID loads a task and runs it. Used by the manual run endpoint.
func (e *Executor) ExecuteByID(ctx context.Context, taskID string) (*domain.TaskLog, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return e.Execute(ctx, task)
}

// Execute runs one task. Paused tasks and trading-day-only tasks on a
// non-trading day record a skipped run without dispatching.
func (e *Executor) Execute(ctx context.Context, task *domain.SystemTask) (*domain.TaskLog, error) {
	now := e.now()
	entry := &domain.TaskLog{
		TaskID:    task.TaskID,
		StartedAt: now,
		Status:    domain.TaskLogRunning,
	}
	id, err := e.taskLogs.Start(ctx, entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	if skip := e.skipReason(task, now); skip != "" {
		entry.Status = domain.TaskLogSkipped
		entry.SkipReason = skip
		e.log.Info().Str("task_id", task.TaskID).Str("reason", skip).Msg("task skipped")
		return entry, e.finish(ctx, entry)
	}

	e.log.Info().
		Str("task_id", task.TaskID).
		Str("task_type", string(task.TaskType)).
		Msg("task started")

	switch task.TaskType {
	case domain.TaskAgentDecision:
		e.runAgentDecision(ctx, task, entry)
	case domain.TaskQuoteSync:
		e.runQuoteSync(ctx, task, entry)
	case domain.TaskMarketRefresh:
		e.runMarketRefresh(ctx, entry)
	default:
		entry.Status = domain.TaskLogFailed
		entry.ErrorMessage = fmt.Sprintf("unknown task type %q", task.TaskType)
	}

	return entry, e.finish(ctx, entry)
}

func (e *Executor) skipReason(task *domain.SystemTask, now time.Time) string {
	if task.Status == domain.TaskPaused {
		return skipReasonPaused
	}
	if task.TradingDayOnly && !trading.IsTradingDay(now) {
		return trading.NonTradingDayReason(now)
	}
	return ""
}

// runAgentDecision fans out to the task's agents. The run fails only
// when every targeted agent failed; a partial success still counts as
// success, with the per-agent breakdown in the log.
func (e *Executor) runAgentDecision(ctx context.Context, task *domain.SystemTask, entry *domain.TaskLog) {
	checkTradingTime, _ := task.Config["check_trading_time"].(bool)
	results := e.decisions.TriggerAll(ctx, task.AgentIDs, agents.TriggerOptions{
		CheckTradingTime: checkTradingTime,
	})
	entry.AgentResults = results

	failed := 0
	for _, r := range results {
		if r.Status == "failed" {
			failed++
		}
	}
	if len(results) > 0 && failed == len(results) {
		entry.Status = domain.TaskLogFailed
		entry.ErrorMessage = fmt.Sprintf("all %d agents failed", failed)
		return
	}
	entry.Status = domain.TaskLogSuccess
}

func (e *Executor) runQuoteSync(ctx context.Context, task *domain.SystemTask, entry *domain.TaskLog) {
	forceFull, _ := task.Config["force_full"].(bool)
	success, fail, err := e.quotes.SyncQuotes(ctx, forceFull)
	if err != nil {
		entry.Status = domain.TaskLogFailed
		entry.ErrorMessage = err.Error()
		return
	}
	entry.Status = domain.TaskLogSuccess
	e.log.Info().Int("success", success).Int("fail", fail).Msg("quote sync finished")
}

func (e *Executor) runMarketRefresh(ctx context.Context, entry *domain.TaskLog) {
	result, err := e.market.RefreshAll(ctx, trading.MarketDate(e.now()))
	switch {
	case err != nil:
		entry.Status = domain.TaskLogFailed
		entry.ErrorMessage = err.Error()
	case !result.AllOK():
		entry.Status = domain.TaskLogFailed
		entry.ErrorMessage = fmt.Sprintf("partial refresh: sentiment=%t index=%t hot_stocks=%t",
			result.SentimentOK, result.IndexOK, result.HotStocksOK)
	default:
		entry.Status = domain.TaskLogSuccess
	}
}

func (e *Executor) finish(ctx context.Context, entry *domain.TaskLog) error {
	completed := e.now()
	entry.CompletedAt = &completed
	if err := e.taskLogs.Finish(ctx, entry); err != nil {
		e.log.Error().Err(err).Int64("log_id", entry.ID).Msg("task log finish failed")
		return err
	}
	return nil
}

package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/agents"
	"github.com/mosaicfin/atrader/internal/modules/market"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

type fakeDecisionRunner struct {
	results  []domain.AgentResult
	calls    int
	agentIDs []string
}

func (f *fakeDecisionRunner) TriggerAll(_ context.Context, agentIDs []string, _ agents.TriggerOptions) []domain.AgentResult {
	f.calls++
	f.agentIDs = agentIDs
	return f.results
}

type fakeQuoteSyncer struct {
	success, fail int
	err           error
	forceFull     bool
}

func (f *fakeQuoteSyncer) SyncQuotes(_ context.Context, forceFull bool) (int, int, error) {
	f.forceFull = forceFull
	return f.success, f.fail, f.err
}

type fakeRefresher struct {
	result market.RefreshResult
	err    error
}

func (f *fakeRefresher) RefreshAll(context.Context, string) (market.RefreshResult, error) {
	return f.result, f.err
}

func newConfigDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + uuid.NewString() + "?mode=memory&cache=shared",
		Name: "config",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type executorEnv struct {
	executor  *Executor
	tasks     *TaskRepository
	taskLogs  *TaskLogRepository
	decisions *fakeDecisionRunner
	quotes    *fakeQuoteSyncer
	refresher *fakeRefresher
}

func newExecutorEnv(t *testing.T, now time.Time) *executorEnv {
	t.Helper()
	db := newConfigDB(t)
	log := zerolog.Nop()
	env := &executorEnv{
		tasks:     NewTaskRepository(db, log),
		taskLogs:  NewTaskLogRepository(db, log),
		decisions: &fakeDecisionRunner{},
		quotes:    &fakeQuoteSyncer{},
		refresher: &fakeRefresher{},
	}
	env.executor = NewExecutor(env.tasks, env.taskLogs, env.decisions, env.quotes, env.refresher, log)
	env.executor.now = func() time.Time { return now }
	return env
}

// 2026-08-18 is a Tuesday, 2026-08-22 a Saturday.
var (
	tuesday  = time.Date(2026, 8, 18, 9, 0, 0, 0, trading.MarketLocation())
	saturday = time.Date(2026, 8, 22, 9, 0, 0, 0, trading.MarketLocation())
)

func createTask(t *testing.T, env *executorEnv, in CreateTaskInput) *domain.SystemTask {
	t.Helper()
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)
	return task
}

func TestExecutePausedTaskSkips(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	ctx := context.Background()

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"all"}, Schedule: "0 10 * * *",
	})
	require.NoError(t, env.tasks.SetStatus(ctx, task.TaskID, domain.TaskPaused))

	entry, err := env.executor.ExecuteByID(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSkipped, entry.Status)
	assert.Equal(t, "任务已暂停", entry.SkipReason)
	assert.Zero(t, env.decisions.calls, "paused task never dispatches")

	logs, err := env.taskLogs.ListByTask(ctx, task.TaskID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.TaskLogSkipped, logs[0].Status)
	require.NotNil(t, logs[0].CompletedAt)
}

func TestExecuteTradingDayOnlySkipsWeekend(t *testing.T) {
	env := newExecutorEnv(t, saturday)
	ctx := context.Background()

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"all"}, Schedule: "0 10 * * *", TradingDayOnly: true,
	})

	entry, err := env.executor.Execute(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSkipped, entry.Status)
	assert.Equal(t, "非交易日（2026-08-22 周六）", entry.SkipReason)
	assert.Zero(t, env.decisions.calls)
}

func TestExecuteTradingDayOnlyRunsOnTradingDay(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.decisions.results = []domain.AgentResult{{AgentID: "a1", Status: "success"}}

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"a1"}, Schedule: "0 10 * * *", TradingDayOnly: true,
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSuccess, entry.Status)
	assert.Equal(t, 1, env.decisions.calls)
	assert.Equal(t, []string{"a1"}, env.decisions.agentIDs)
}

func TestExecuteAgentDecisionPartialFailureSucceeds(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.decisions.results = []domain.AgentResult{
		{AgentID: "a1", Status: "success"},
		{AgentID: "a2", Status: "failed", ErrorMessage: "llm timeout"},
	}

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"all"}, Schedule: "0 10 * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSuccess, entry.Status)
	require.Len(t, entry.AgentResults, 2)

	// The per-agent breakdown round-trips through the log row.
	got, err := env.taskLogs.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Len(t, got.AgentResults, 2)
	assert.Equal(t, "llm timeout", got.AgentResults[1].ErrorMessage)
}

func TestExecuteAgentDecisionAllFailedFails(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.decisions.results = []domain.AgentResult{
		{AgentID: "a1", Status: "failed"},
		{AgentID: "a2", Status: "failed"},
	}

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"all"}, Schedule: "0 10 * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogFailed, entry.Status)
	assert.Equal(t, "all 2 agents failed", entry.ErrorMessage)
}

func TestExecuteAgentDecisionNoTargetsSucceeds(t *testing.T) {
	env := newExecutorEnv(t, tuesday)

	task := createTask(t, env, CreateTaskInput{
		Name: "每日决策", TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"all"}, Schedule: "0 10 * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSuccess, entry.Status)
}

func TestExecuteQuoteSync(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.quotes.success = 3

	task := createTask(t, env, CreateTaskInput{
		Name: "行情同步", TaskType: domain.TaskQuoteSync,
		Schedule: "30 15 * * *", Config: map[string]any{"force_full": true},
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSuccess, entry.Status)
	assert.True(t, env.quotes.forceFull, "force_full passes through from task config")
}

func TestExecuteQuoteSyncError(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.quotes.err = errors.New("upstream unreachable")

	task := createTask(t, env, CreateTaskInput{
		Name: "行情同步", TaskType: domain.TaskQuoteSync, Schedule: "30 15 * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogFailed, entry.Status)
	assert.Equal(t, "upstream unreachable", entry.ErrorMessage)
}

func TestExecuteMarketRefresh(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.refresher.result = market.RefreshResult{SentimentOK: true, IndexOK: true, HotStocksOK: true}

	task := createTask(t, env, CreateTaskInput{
		Name: "市场快照", TaskType: domain.TaskMarketRefresh, Schedule: "*/30 * * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogSuccess, entry.Status)
}

func TestExecuteMarketRefreshPartialFails(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	env.refresher.result = market.RefreshResult{SentimentOK: true, IndexOK: false, HotStocksOK: true}

	task := createTask(t, env, CreateTaskInput{
		Name: "市场快照", TaskType: domain.TaskMarketRefresh, Schedule: "*/30 * * * *",
	})

	entry, err := env.executor.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskLogFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "index=false")
}

func TestTaskRepositoryRoundTrip(t *testing.T) {
	env := newExecutorEnv(t, tuesday)
	ctx := context.Background()

	task := createTask(t, env, CreateTaskInput{
		Name:     "每日决策",
		TaskType: domain.TaskAgentDecision,
		AgentIDs: []string{"a1", "a2"},
		Config:   map[string]any{"check_trading_time": true},
		Schedule: "0 10 * * 1-5",
	})

	got, err := env.tasks.Get(ctx, task.TaskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"a1", "a2"}, got.AgentIDs)
	assert.Equal(t, true, got.Config["check_trading_time"])
	assert.Equal(t, domain.TaskActive, got.Status)

	got.Schedule = "0 14 * * 1-5"
	require.NoError(t, env.tasks.Update(ctx, got))

	active, err := env.tasks.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "0 14 * * 1-5", active[0].Schedule)

	require.NoError(t, env.tasks.Delete(ctx, task.TaskID))
	gone, err := env.tasks.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

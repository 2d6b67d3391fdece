package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

func newTestCoreDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + uuid.NewString() + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "core",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createAgent(t *testing.T, repo *AgentRepository) *domain.Agent {
	t.Helper()
	agent, err := repo.Create(context.Background(), CreateAgentInput{
		Name:        "测试代理",
		InitialCash: decimal.NewFromInt(100000),
		TemplateID:  "tpl-1",
		ProviderID:  "prov-1",
		ModelName:   "gpt-test",
	})
	require.NoError(t, err)
	return agent
}

func TestAgentLifecycle(t *testing.T) {
	repo := NewAgentRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	agent := createAgent(t, repo)
	assert.Equal(t, domain.AgentActive, agent.Status)
	assert.True(t, agent.CurrentCash.Equal(agent.InitialCash))
	assert.Equal(t, "daily", agent.ScheduleType)

	require.NoError(t, repo.UpdateStatus(ctx, agent.ID, domain.AgentPaused))
	paused, err := repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentPaused, paused.Status)

	require.NoError(t, repo.SoftDelete(ctx, agent.ID))
	deleted, err := repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentDeleted, deleted.Status)

	// Soft-deleted agents never appear in listings.
	list, total, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestAgentCashUpdate(t *testing.T) {
	repo := NewAgentRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	agent := createAgent(t, repo)
	require.NoError(t, repo.UpdateCash(ctx, agent.ID, decimal.RequireFromString("98994.99")))

	got, err := repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentCash.Equal(decimal.RequireFromString("98994.99")))
	assert.True(t, got.InitialCash.Equal(decimal.NewFromInt(100000)))

	require.NoError(t, repo.AddCash(ctx, agent.ID, decimal.RequireFromString("-994.99")))
	got, err = repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentCash.Equal(decimal.NewFromInt(98000)))
}

func TestPositionUpsertAndDelete(t *testing.T) {
	repo := NewPositionRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	pos := &domain.Position{
		AgentID:   "a1",
		StockCode: "600000",
		Shares:    100,
		AvgCost:   decimal.RequireFromString("10.0501"),
		BuyDate:   "2026-08-18",
	}
	require.NoError(t, repo.Upsert(ctx, pos))

	// Second upsert replaces in place.
	pos.Shares = 300
	require.NoError(t, repo.Upsert(ctx, pos))

	list, err := repo.ListByAgent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(300), list[0].Shares)
	assert.True(t, list[0].AvgCost.Equal(decimal.RequireFromString("10.0501")))

	require.NoError(t, repo.Delete(ctx, "a1", "600000"))
	list, err = repo.ListByAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrderSaveAndList(t *testing.T) {
	repo := NewOrderRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	code := "600000"
	qty := int64(100)
	price := decimal.RequireFromString("10.00")
	logID := int64(7)

	filled := &domain.Order{
		OrderID:         uuid.NewString(),
		AgentID:         "a1",
		StockCode:       &code,
		Side:            domain.SideBuy,
		Quantity:        &qty,
		Price:           &price,
		Status:          domain.OrderFilled,
		Reason:          "低估",
		LLMRequestLogID: &logID,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, repo.Save(ctx, filled))

	hold := &domain.Order{
		OrderID:   uuid.NewString(),
		AgentID:   "a1",
		Side:      domain.SideHold,
		Status:    domain.OrderFilled,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, hold))

	got, err := repo.Get(ctx, filled.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "600000", *got.StockCode)
	assert.True(t, got.Price.Equal(price))
	assert.Equal(t, int64(7), *got.LLMRequestLogID)

	gotHold, err := repo.Get(ctx, hold.OrderID)
	require.NoError(t, err)
	assert.Nil(t, gotHold.StockCode)
	assert.Nil(t, gotHold.Quantity)
	assert.Nil(t, gotHold.Price)

	_, total, err := repo.ListByAgent(ctx, "a1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestTransactionSaveWithAndWithoutFees(t *testing.T) {
	repo := NewTransactionRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	code := "600000"
	qty := int64(100)
	price := decimal.RequireFromString("10.00")

	withFees := &domain.Transaction{
		TxID:      uuid.NewString(),
		OrderID:   "o1",
		AgentID:   "a1",
		StockCode: &code,
		Side:      domain.SideBuy,
		Quantity:  &qty,
		Price:     &price,
		Fees: &domain.TradingFees{
			Commission:  decimal.RequireFromString("5.00"),
			StampTax:    decimal.Zero,
			TransferFee: decimal.RequireFromString("0.01"),
		},
		ExecutedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, withFees))

	holdTx := &domain.Transaction{
		TxID:       uuid.NewString(),
		OrderID:    "o2",
		AgentID:    "a1",
		Side:       domain.SideHold,
		ExecutedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, holdTx))

	txs, err := repo.ListByAgent(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	sum, err := repo.SumFees(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("5.01")), "sum = %s", sum)
}

func TestDecisionLogFilterAndPagination(t *testing.T) {
	repo := NewDecisionLogRepository(newTestCoreDB(t), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, &domain.DecisionLog{AgentID: "a1", Status: domain.DecisionLogSuccess})
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, &domain.DecisionLog{AgentID: "a1", Status: domain.DecisionLogAPIError, ErrorMessage: "llm timeout"})
	require.NoError(t, err)
	_, err = repo.Append(ctx, &domain.DecisionLog{AgentID: "a2", Status: domain.DecisionLogNoTrade})
	require.NoError(t, err)

	logs, total, err := repo.List(ctx, "a1", "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, logs, 4)

	logs, total, err = repo.List(ctx, "a1", domain.DecisionLogAPIError, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "llm timeout", logs[0].ErrorMessage)

	logs, total, err = repo.List(ctx, "", "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, logs, 2)
}

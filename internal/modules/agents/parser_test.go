package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicfin/atrader/internal/domain"
)

func TestParseDecisionsArray(t *testing.T) {
	text := `[
		{"decision": "buy", "stock_code": "600000", "quantity": 100, "price": 10.50, "reason": "低估"},
		{"decision": "hold", "reason": "观望"}
	]`

	decisions, err := ParseDecisions(text)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, domain.DecisionBuy, decisions[0].Decision)
	assert.Equal(t, "600000", decisions[0].StockCode)
	assert.Equal(t, int64(100), decisions[0].Quantity)
	assert.Equal(t, "10.50", decisions[0].Price)
	assert.Equal(t, "低估", decisions[0].Reason)
	assert.Equal(t, domain.DecisionHold, decisions[1].Decision)
}

func TestParseDecisionsCodeFence(t *testing.T) {
	text := "根据分析，建议如下：\n```json\n[{\"decision\": \"sell\", \"stock_code\": \"000001\", \"quantity\": 200, \"price\": 15.00, \"reason\": \"止盈\"}]\n```\n请注意风险。"

	decisions, err := ParseDecisions(text)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.DecisionSell, decisions[0].Decision)
}

func TestParseDecisionsSingleObject(t *testing.T) {
	decisions, err := ParseDecisions(`{"decision": "wait", "reason": "等待回调"}`)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.DecisionWait, decisions[0].Decision)
}

func TestParseDecisionsStringNumbers(t *testing.T) {
	decisions, err := ParseDecisions(`[{"decision": "buy", "stock_code": "600000", "quantity": "100", "price": "10.50"}]`)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, int64(100), decisions[0].Quantity)
	assert.Equal(t, "10.50", decisions[0].Price)
}

func TestParseDecisionsSkipsMalformed(t *testing.T) {
	text := `[
		{"decision": "buy", "stock_code": "600000", "quantity": 100, "price": 10.50},
		{"decision": "dance"},
		{"no_decision_field": true},
		{"decision": "sell", "stock_code": "000001", "quantity": 100, "price": 15.00}
	]`

	decisions, err := ParseDecisions(text)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, domain.DecisionBuy, decisions[0].Decision)
	assert.Equal(t, domain.DecisionSell, decisions[1].Decision)
}

func TestParseDecisionsEmbeddedArray(t *testing.T) {
	decisions, err := ParseDecisions(`我的决策是 [{"decision": "hold", "reason": "市场震荡"}] 以上。`)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
}

func TestParseDecisionsUnparseable(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain prose", "今天市场不错，建议持有。"},
		{"empty", ""},
		{"broken json", `[{"decision": "buy",`},
		{"only invalid entries", `[{"decision": "dance"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decisions, err := ParseDecisions(tt.text)
			assert.Error(t, err)
			assert.Empty(t, decisions)
		})
	}
}

func TestParseDecisionsCaseInsensitive(t *testing.T) {
	decisions, err := ParseDecisions(`[{"decision": "BUY", "stock_code": "600000", "quantity": 100, "price": 10}]`)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionBuy, decisions[0].Decision)
}

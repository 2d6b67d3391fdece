package trading

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicfin/atrader/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newPortfolio(cash string, positions ...*domain.Position) *domain.Portfolio {
	return domain.NewPortfolio("a1", dec(cash), positions)
}

// A Tuesday inside the morning session.
var tradingNow = time.Date(2026, 8, 18, 10, 0, 0, 0, MarketLocation())

func process(t *testing.T, d domain.TradingDecision, p *domain.Portfolio, prevClose string) Result {
	t.Helper()
	proc := NewProcessor(zerolog.Nop())
	return proc.Process(d, p, dec(prevClose), Options{Now: tradingNow})
}

func TestBuyWithinRules(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "10.00", Reason: "entry",
	}, p, "10.00")

	require.True(t, res.Filled)
	require.Equal(t, domain.OrderFilled, res.Order.Status)
	require.NotNil(t, res.Transaction)

	// notional 1000.00, commission floor 5.00, SH transfer 0.01, no stamp on buys
	fees := res.Transaction.Fees
	assert.True(t, fees.Commission.Equal(dec("5.00")), "commission = %s", fees.Commission)
	assert.True(t, fees.StampTax.IsZero())
	assert.True(t, fees.TransferFee.Equal(dec("0.01")), "transfer = %s", fees.TransferFee)

	assert.True(t, p.Cash.Equal(dec("98994.99")), "cash = %s", p.Cash)

	pos := p.Positions["600000"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(100), pos.Shares)
	assert.True(t, pos.AvgCost.Equal(dec("10.0501")), "avg_cost = %s", pos.AvgCost)
	assert.Equal(t, "2026-08-18", pos.BuyDate)
}

func TestBuyLotRounding(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "000001", Quantity: 150, Price: "15.00",
	}, p, "15.00")

	require.True(t, res.Filled)
	require.NotNil(t, res.Order.Quantity)
	assert.Equal(t, int64(100), *res.Order.Quantity)
	assert.Equal(t, int64(100), p.Positions["000001"].Shares)
}

func TestBuyLotSizeZero(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "000001", Quantity: 50, Price: "15.00",
	}, p, "15.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.OrderRejected, res.Order.Status)
	assert.Equal(t, domain.RejectLotSizeZero, res.Order.RejectReason)
	assert.Nil(t, res.Transaction)
	assert.True(t, p.Cash.Equal(dec("100000.00")))
}

func TestSellT1Violation(t *testing.T) {
	p := newPortfolio("10000.00", &domain.Position{
		AgentID: "a1", StockCode: "000001", Shares: 200,
		AvgCost: dec("14.00"), BuyDate: "2026-08-18", // bought today
	})
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionSell, StockCode: "000001", Quantity: 100, Price: "15.00",
	}, p, "15.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectT1Violation, res.Order.RejectReason)
	assert.Nil(t, res.Transaction)
	assert.True(t, p.Cash.Equal(dec("10000.00")))
	assert.Equal(t, int64(200), p.Positions["000001"].Shares)
}

func TestSellWithoutPosition(t *testing.T) {
	p := newPortfolio("10000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionSell, StockCode: "000001", Quantity: 100, Price: "15.00",
	}, p, "15.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectT1Violation, res.Order.RejectReason)
}

func TestPriceBandReject(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "11.05",
	}, p, "10.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectPriceOutOfBand, res.Order.RejectReason)
}

func TestPriceBandLimitAccepted(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "11.00",
	}, p, "10.00")

	assert.True(t, res.Filled, "exact limit-up price is inside the band")
}

func TestHoldSyntheticRow(t *testing.T) {
	p := newPortfolio("50000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionHold, Reason: "wait",
	}, p, "0")

	require.True(t, res.Filled)
	assert.Equal(t, domain.SideHold, res.Order.Side)
	assert.Equal(t, domain.OrderFilled, res.Order.Status)
	assert.Nil(t, res.Order.StockCode)
	assert.Nil(t, res.Order.Quantity)
	assert.Nil(t, res.Order.Price)
	assert.Equal(t, "wait", res.Order.Reason)

	require.NotNil(t, res.Transaction)
	assert.Nil(t, res.Transaction.Fees)
	assert.True(t, p.Cash.Equal(dec("50000.00")))
}

func TestWaitTreatedAsHold(t *testing.T) {
	p := newPortfolio("50000.00")
	res := process(t, domain.TradingDecision{Decision: domain.DecisionWait}, p, "0")
	require.True(t, res.Filled)
	assert.Equal(t, domain.SideHold, res.Order.Side)
}

func TestInsufficientCash(t *testing.T) {
	p := newPortfolio("500.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "000001", Quantity: 100, Price: "15.00",
	}, p, "15.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectInsufficientCash, res.Order.RejectReason)
}

func TestInsufficientShares(t *testing.T) {
	p := newPortfolio("10000.00", &domain.Position{
		AgentID: "a1", StockCode: "000001", Shares: 100,
		AvgCost: dec("14.00"), BuyDate: "2026-08-17",
	})
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionSell, StockCode: "000001", Quantity: 200, Price: "15.00",
	}, p, "15.00")

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectInsufficientShares, res.Order.RejectReason)
}

func TestSellSettlement(t *testing.T) {
	p := newPortfolio("0.00", &domain.Position{
		AgentID: "a1", StockCode: "000001", Shares: 200,
		AvgCost: dec("14.00"), BuyDate: "2026-08-17",
	})
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionSell, StockCode: "000001", Quantity: 100, Price: "15.00",
	}, p, "15.00")

	require.True(t, res.Filled)
	// notional 1500.00; commission 5.00 (floor), stamp 0.75, no SZ transfer
	fees := res.Transaction.Fees
	assert.True(t, fees.Commission.Equal(dec("5.00")))
	assert.True(t, fees.StampTax.Equal(dec("0.75")), "stamp = %s", fees.StampTax)
	assert.True(t, fees.TransferFee.IsZero())

	assert.True(t, p.Cash.Equal(dec("1494.25")), "cash = %s", p.Cash)
	pos := p.Positions["000001"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(100), pos.Shares)
	assert.True(t, pos.AvgCost.Equal(dec("14.00")), "sells never move avg_cost")
}

func TestSellToZeroDeletesPosition(t *testing.T) {
	p := newPortfolio("0.00", &domain.Position{
		AgentID: "a1", StockCode: "000001", Shares: 100,
		AvgCost: dec("14.00"), BuyDate: "2026-08-17",
	})
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionSell, StockCode: "000001", Quantity: 100, Price: "15.00",
	}, p, "15.00")

	require.True(t, res.Filled)
	_, exists := p.Positions["000001"]
	assert.False(t, exists, "zero-share rows are deleted, never kept")
}

func TestAvgCostWeightedAcrossBuys(t *testing.T) {
	p := newPortfolio("1000000.00")
	proc := NewProcessor(zerolog.Nop())

	buys := []struct {
		qty   int64
		price string
	}{
		{100, "10.00"},
		{200, "12.00"},
		{300, "11.00"},
	}

	totalCost := decimal.Zero
	totalShares := int64(0)
	for _, b := range buys {
		res := proc.Process(domain.TradingDecision{
			Decision: domain.DecisionBuy, StockCode: "000002", Quantity: b.qty, Price: b.price,
		}, p, dec(b.price), Options{Now: tradingNow})
		require.True(t, res.Filled)
		notional := dec(b.price).Mul(decimal.NewFromInt(b.qty))
		totalCost = totalCost.Add(notional).Add(res.Transaction.Fees.Total())
		totalShares += b.qty
	}

	want := totalCost.DivRound(decimal.NewFromInt(totalShares), 4)
	assert.True(t, p.Positions["000002"].AvgCost.Equal(want),
		"avg_cost %s, want %s", p.Positions["000002"].AvgCost, want)
	assert.True(t, p.Cash.GreaterThanOrEqual(decimal.Zero))
}

func TestInvalidDecisionRejected(t *testing.T) {
	tests := []struct {
		name string
		d    domain.TradingDecision
	}{
		{"no code", domain.TradingDecision{Decision: domain.DecisionBuy, Quantity: 100, Price: "10.00"}},
		{"zero quantity", domain.TradingDecision{Decision: domain.DecisionBuy, StockCode: "600000", Price: "10.00"}},
		{"bad price", domain.TradingDecision{Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "abc"}},
		{"negative price", domain.TradingDecision{Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPortfolio("100000.00")
			res := process(t, tt.d, p, "10.00")
			assert.False(t, res.Filled)
			assert.Equal(t, domain.RejectInvalidOrder, res.Order.RejectReason)
		})
	}
}

func TestMarketClosedGate(t *testing.T) {
	p := newPortfolio("100000.00")
	proc := NewProcessor(zerolog.Nop())
	lunch := time.Date(2026, 8, 18, 12, 0, 0, 0, MarketLocation())

	res := proc.Process(domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "600000", Quantity: 100, Price: "10.00",
	}, p, dec("10.00"), Options{Now: lunch, CheckTradingTime: true})

	assert.False(t, res.Filled)
	assert.Equal(t, domain.RejectMarketClosed, res.Order.RejectReason)
}

func TestStockCodeSuffixNormalized(t *testing.T) {
	p := newPortfolio("100000.00")
	res := process(t, domain.TradingDecision{
		Decision: domain.DecisionBuy, StockCode: "600000.SH", Quantity: 100, Price: "10.00",
	}, p, "10.00")

	require.True(t, res.Filled)
	require.NotNil(t, res.Order.StockCode)
	assert.Equal(t, "600000", *res.Order.StockCode)
	assert.NotNil(t, p.Positions["600000"])
}

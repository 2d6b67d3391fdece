// Package trading implements the order-processing state machine: per-decision
// validation against A-share rules and atomic portfolio settlement.
package trading

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

const lotSize = 100

// Options controls per-cycle processing behavior.
type Options struct {
	// CheckTradingTime enables the session-hours gate. Manual triggers
	// may disable it.
	CheckTradingTime bool
	// Now is the settlement instant; zero means time.Now.
	Now time.Time
	// LLMLogID links resulting orders back to the model invocation.
	LLMLogID *int64
}

// Result is the outcome of processing one decision.
type Result struct {
	Order       *domain.Order
	Transaction *domain.Transaction
	Filled      bool
}

// Processor runs decisions through validate-then-settle. Settlement
// mutates the given in-memory portfolio; persistence is the caller's job.
type Processor struct {
	log zerolog.Logger
}

// NewProcessor creates an order processor.
func NewProcessor(log zerolog.Logger) *Processor {
	return &Processor{log: log.With().Str("component", "order_processor").Logger()}
}

// NormalizeStockCode strips exchange suffixes ("600000.SH" -> "600000").
func NormalizeStockCode(code string) string {
	if i := strings.Index(code, "."); i >= 0 {
		return code[:i]
	}
	return code
}

// Process validates and settles one decision against the portfolio.
// Validation failures are recorded as rejected orders, never returned as
// errors. prevClose drives the price band; a zero prevClose skips the
// band check (no reference price available).
func (p *Processor) Process(decision domain.TradingDecision, portfolio *domain.Portfolio, prevClose decimal.Decimal, opts Options) Result {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(cst)

	if decision.Decision == domain.DecisionHold || decision.Decision == domain.DecisionWait {
		return p.holdResult(portfolio.AgentID, decision.Reason, opts.LLMLogID, now)
	}

	side := domain.SideBuy
	if decision.Decision == domain.DecisionSell {
		side = domain.SideSell
	}

	code := NormalizeStockCode(decision.StockCode)
	quantity := decision.Quantity
	price, priceErr := decimal.NewFromString(decision.Price)

	order := &domain.Order{
		OrderID:         uuid.New().String(),
		AgentID:         portfolio.AgentID,
		Side:            side,
		Status:          domain.OrderPending,
		Reason:          decision.Reason,
		LLMRequestLogID: opts.LLMLogID,
		CreatedAt:       now,
	}
	if code != "" {
		order.StockCode = &code
	}
	if quantity > 0 {
		q := quantity
		order.Quantity = &q
	}
	if priceErr == nil && price.IsPositive() {
		pc := price
		order.Price = &pc
	}

	reject := func(reason string) Result {
		order.Status = domain.OrderRejected
		order.RejectReason = reason
		p.log.Info().
			Str("agent_id", portfolio.AgentID).
			Str("stock_code", code).
			Str("side", string(side)).
			Str("reject_reason", reason).
			Msg("order rejected")
		return Result{Order: order}
	}

	// 1. Basics.
	if code == "" || quantity <= 0 || priceErr != nil || !price.IsPositive() {
		return reject(domain.RejectInvalidOrder)
	}

	// 2. Buy lot rounding: down to a multiple of 100.
	if side == domain.SideBuy {
		quantity = (quantity / lotSize) * lotSize
		if quantity == 0 {
			return reject(domain.RejectLotSizeZero)
		}
		order.Quantity = &quantity
	}

	// 3. Session hours.
	if opts.CheckTradingTime && !IsTradingTime(now) {
		return reject(domain.RejectMarketClosed)
	}

	// 4. Price band: within ±10% of prev close.
	if prevClose.IsPositive() {
		band := prevClose.Mul(decimal.NewFromFloat(0.10))
		if price.Sub(prevClose).Abs().GreaterThan(band) {
			return reject(domain.RejectPriceOutOfBand)
		}
	}

	pos := portfolio.Positions[code]

	// 5. Sell-side checks: T+1, then share sufficiency.
	if side == domain.SideSell {
		today := MarketDate(now)
		if pos == nil || pos.BuyDate >= today {
			return reject(domain.RejectT1Violation)
		}
		if quantity > pos.Shares {
			return reject(domain.RejectInsufficientShares)
		}
	}

	// 6. Fees and cash sufficiency.
	fees := CalculateFees(side, code, quantity, price)
	notional := price.Mul(decimal.NewFromInt(quantity))

	if side == domain.SideBuy {
		cost := notional.Add(fees.Total())
		if portfolio.Cash.LessThan(cost) {
			return reject(domain.RejectInsufficientCash)
		}
	} else {
		if notional.Sub(fees.Total()).IsNegative() {
			return reject(domain.RejectFeesExceedProceeds)
		}
	}

	p.settle(portfolio, side, code, decision.StockCode, quantity, price, fees, now)

	order.Status = domain.OrderFilled
	tx := &domain.Transaction{
		TxID:       uuid.New().String(),
		OrderID:    order.OrderID,
		AgentID:    portfolio.AgentID,
		StockCode:  order.StockCode,
		Side:       side,
		Quantity:   order.Quantity,
		Price:      order.Price,
		Fees:       &fees,
		ExecutedAt: now,
	}
	p.log.Info().
		Str("agent_id", portfolio.AgentID).
		Str("stock_code", code).
		Str("side", string(side)).
		Int64("quantity", quantity).
		Str("price", price.String()).
		Str("fees", fees.Total().String()).
		Msg("order filled")

	return Result{Order: order, Transaction: tx, Filled: true}
}

// settle applies a validated fill to the in-memory portfolio.
func (p *Processor) settle(portfolio *domain.Portfolio, side domain.OrderSide, code, rawCode string, quantity int64, price decimal.Decimal, fees domain.TradingFees, now time.Time) {
	notional := price.Mul(decimal.NewFromInt(quantity))

	if side == domain.SideBuy {
		portfolio.Cash = portfolio.Cash.Sub(notional).Sub(fees.Total())

		pos := portfolio.Positions[code]
		if pos == nil {
			pos = &domain.Position{
				AgentID:   portfolio.AgentID,
				StockCode: code,
			}
			portfolio.Positions[code] = pos
		}
		// avg_cost = (s0*c0 + q*p + fees) / (s0 + q)
		oldValue := pos.AvgCost.Mul(decimal.NewFromInt(pos.Shares))
		newShares := pos.Shares + quantity
		pos.AvgCost = oldValue.Add(notional).Add(fees.Total()).
			DivRound(decimal.NewFromInt(newShares), 4)
		pos.Shares = newShares
		pos.BuyDate = MarketDate(now)
		pos.UpdatedAt = now
		return
	}

	// Sell: cash grows by proceeds, avg_cost untouched, position deleted
	// when it reaches zero shares.
	portfolio.Cash = portfolio.Cash.Add(notional).Sub(fees.Total())
	pos := portfolio.Positions[code]
	pos.Shares -= quantity
	pos.UpdatedAt = now
	if pos.Shares == 0 {
		delete(portfolio.Positions, code)
	}
}

// holdResult builds the synthetic filled order and null-fee transaction
// for hold/wait decisions. No portfolio mutation.
func (p *Processor) holdResult(agentID, reason string, llmLogID *int64, now time.Time) Result {
	order := &domain.Order{
		OrderID:         uuid.New().String(),
		AgentID:         agentID,
		Side:            domain.SideHold,
		Status:          domain.OrderFilled,
		Reason:          reason,
		LLMRequestLogID: llmLogID,
		CreatedAt:       now,
	}
	tx := &domain.Transaction{
		TxID:       uuid.New().String(),
		OrderID:    order.OrderID,
		AgentID:    agentID,
		Side:       domain.SideHold,
		ExecutedAt: now,
	}
	return Result{Order: order, Transaction: tx, Filled: true}
}

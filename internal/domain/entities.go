// Package domain holds the shared entities of the trading orchestrator.
// All money fields use fixed-point decimals; settlement never touches floats.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent is an LLM-driven simulated trader. Agents are soft-deleted: the
// status moves to deleted but the row and its history stay.
type Agent struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	InitialCash  decimal.Decimal `json:"initial_cash"`
	CurrentCash  decimal.Decimal `json:"current_cash"`
	TemplateID   string          `json:"template_id"`
	ProviderID   string          `json:"provider_id"`
	ModelName    string          `json:"model_name"`
	Status       AgentStatus     `json:"status"`
	ScheduleType string          `json:"schedule_type"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Position is a non-zero stock holding, unique per (agent, stock_code).
// BuyDate is the last buy date and drives T+1 enforcement.
type Position struct {
	AgentID   string          `json:"agent_id"`
	StockCode string          `json:"stock_code"`
	StockName string          `json:"stock_name,omitempty"`
	Shares    int64           `json:"shares"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	BuyDate   string          `json:"buy_date"` // YYYY-MM-DD
	UpdatedAt time.Time       `json:"updated_at"`
}

// Portfolio is the in-memory view of an agent's holdings, rebuilt at the
// start of every decision cycle. Positions are indexed by stock code.
type Portfolio struct {
	AgentID   string
	Cash      decimal.Decimal
	Positions map[string]*Position
}

// NewPortfolio builds a portfolio value from an agent's cash and positions.
func NewPortfolio(agentID string, cash decimal.Decimal, positions []*Position) *Portfolio {
	p := &Portfolio{
		AgentID:   agentID,
		Cash:      cash,
		Positions: make(map[string]*Position, len(positions)),
	}
	for _, pos := range positions {
		p.Positions[pos.StockCode] = pos
	}
	return p
}

// Order records one decision outcome, filled or rejected. Hold/wait
// decisions become synthetic filled rows with nil stock/quantity/price.
type Order struct {
	OrderID         string           `json:"order_id"`
	AgentID         string           `json:"agent_id"`
	StockCode       *string          `json:"stock_code"`
	Side            OrderSide        `json:"side"`
	Quantity        *int64           `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	Status          OrderStatus      `json:"status"`
	RejectReason    string           `json:"reject_reason,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	LLMRequestLogID *int64           `json:"llm_request_log_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TradingFees is the per-side fee breakdown of a fill.
type TradingFees struct {
	Commission  decimal.Decimal `json:"commission"`
	StampTax    decimal.Decimal `json:"stamp_tax"`
	TransferFee decimal.Decimal `json:"transfer_fee"`
}

// Total returns the sum of all fee components.
func (f TradingFees) Total() decimal.Decimal {
	return f.Commission.Add(f.StampTax).Add(f.TransferFee)
}

// Transaction is the settlement record of a filled order. Synthetic hold
// transactions carry nil fees.
type Transaction struct {
	TxID       string           `json:"tx_id"`
	OrderID    string           `json:"order_id"`
	AgentID    string           `json:"agent_id"`
	StockCode  *string          `json:"stock_code"`
	Side       OrderSide        `json:"side"`
	Quantity   *int64           `json:"quantity"`
	Price      *decimal.Decimal `json:"price"`
	Fees       *TradingFees     `json:"fees"`
	ExecutedAt time.Time        `json:"executed_at"`
}

// TradingDecision is one parsed element of an LLM response.
type TradingDecision struct {
	Decision  DecisionType `json:"decision"`
	StockCode string       `json:"stock_code,omitempty"`
	Quantity  int64        `json:"quantity,omitempty"`
	Price     string       `json:"price,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// LLMProvider is a configured model endpoint.
type LLMProvider struct {
	ProviderID string      `json:"provider_id"`
	Name       string      `json:"name"`
	Protocol   LLMProtocol `json:"protocol"`
	APIURL     string      `json:"api_url"`
	APIKey     string      `json:"-"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PromptTemplate is a stored prompt with {{placeholder}} markers.
// Version increments whenever the content changes.
type PromptTemplate struct {
	TemplateID string    `json:"template_id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Version    int       `json:"version"`
	Strict     bool      `json:"strict"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockQuote is one daily OHLCV row, upsert-idempotent on (code, date).
type StockQuote struct {
	StockCode string          `json:"stock_code"`
	StockName string          `json:"stock_name,omitempty"`
	TradeDate string          `json:"trade_date"` // YYYY-MM-DD
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Volume    int64           `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
}

// MarketData is a dated snapshot of a derived market artifact.
type MarketData struct {
	DataType    string         `json:"data_type"`
	DataDate    string         `json:"data_date"`
	DataContent map[string]any `json:"data_content"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LLMRequestLog is the audit row of one model invocation. Request and
// response bodies are truncated to 10,000 characters before persisting.
type LLMRequestLog struct {
	ID              int64     `json:"id"`
	ProviderID      string    `json:"provider_id"`
	ModelName       string    `json:"model_name"`
	AgentID         string    `json:"agent_id,omitempty"`
	RequestContent  string    `json:"request_content"`
	ResponseContent string    `json:"response_content"`
	DurationMs      int64     `json:"duration_ms"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	TokensIn        int64     `json:"tokens_in"`
	TokensOut       int64     `json:"tokens_out"`
	CreatedAt       time.Time `json:"created_at"`
}

// DecisionLog summarizes one decision cycle for an agent.
type DecisionLog struct {
	ID             int64             `json:"id"`
	AgentID        string            `json:"agent_id"`
	Status         DecisionLogStatus `json:"status"`
	ParsedDecision string            `json:"parsed_decision,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SystemTask is a scheduled job definition.
type SystemTask struct {
	TaskID         string         `json:"task_id"`
	Name           string         `json:"name"`
	TaskType       TaskType       `json:"task_type"`
	AgentIDs       []string       `json:"agent_ids"` // ["all"] targets every active agent
	Config         map[string]any `json:"config"`
	Schedule       string         `json:"schedule"`
	Status         TaskStatus     `json:"status"`
	TradingDayOnly bool           `json:"trading_day_only"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AgentResult is the per-agent outcome of a fan-out task run.
type AgentResult struct {
	AgentID      string    `json:"agent_id"`
	AgentName    string    `json:"agent_name"`
	Status       string    `json:"status"` // success, failed, skipped
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// TaskLog is one run of a system task.
type TaskLog struct {
	ID           int64         `json:"id"`
	TaskID       string        `json:"task_id"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Status       TaskLogStatus `json:"status"`
	SkipReason   string        `json:"skip_reason,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	AgentResults []AgentResult `json:"agent_results,omitempty"`
}

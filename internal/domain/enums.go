package domain

// AgentStatus represents the lifecycle state of an agent
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentPaused  AgentStatus = "paused"
	AgentDeleted AgentStatus = "deleted"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
	// SideHold marks synthetic audit rows for hold/wait decisions
	SideHold OrderSide = "hold"
)

// OrderStatus is the terminal state of an order
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
)

// DecisionType is what the model asked for
type DecisionType string

const (
	DecisionBuy  DecisionType = "buy"
	DecisionSell DecisionType = "sell"
	DecisionHold DecisionType = "hold"
	DecisionWait DecisionType = "wait"
)

// DecisionLogStatus classifies the outcome of a whole decision cycle
type DecisionLogStatus string

const (
	DecisionLogSuccess  DecisionLogStatus = "success"
	DecisionLogNoTrade  DecisionLogStatus = "no_trade"
	DecisionLogAPIError DecisionLogStatus = "api_error"
)

// LLMProtocol selects the wire protocol for a provider
type LLMProtocol string

const (
	ProtocolOpenAI    LLMProtocol = "openai"
	ProtocolAnthropic LLMProtocol = "anthropic"
	ProtocolGemini    LLMProtocol = "gemini"
)

// TaskType dispatches scheduled task execution
type TaskType string

const (
	TaskAgentDecision TaskType = "agent_decision"
	TaskQuoteSync     TaskType = "quote_sync"
	TaskMarketRefresh TaskType = "market_refresh"
)

// TaskStatus is the configured state of a system task
type TaskStatus string

const (
	TaskActive TaskStatus = "active"
	TaskPaused TaskStatus = "paused"
)

// TaskLogStatus is the outcome of one task run
type TaskLogStatus string

const (
	TaskLogRunning TaskLogStatus = "running"
	TaskLogSuccess TaskLogStatus = "success"
	TaskLogFailed  TaskLogStatus = "failed"
	TaskLogSkipped TaskLogStatus = "skipped"
)

// Order reject reasons, recorded on rejected orders and never raised as errors
const (
	RejectLotSizeZero        = "LOT_SIZE_ZERO"
	RejectMarketClosed       = "MARKET_CLOSED"
	RejectPriceOutOfBand     = "PRICE_OUT_OF_BAND"
	RejectT1Violation        = "T1_VIOLATION"
	RejectInsufficientShares = "INSUFFICIENT_SHARES"
	RejectInsufficientCash   = "INSUFFICIENT_CASH"
	RejectFeesExceedProceeds = "FEES_EXCEED_PROCEEDS"
	RejectInvalidOrder       = "INVALID_ORDER"
)

// Market data snapshot types
const (
	DataTypeMarketSentiment = "market_sentiment"
	DataTypeIndexOverview   = "index_overview"
	DataTypeHotStocks       = "hot_stocks"
)

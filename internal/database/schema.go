package database

// Embedded schemas, keyed by database name. All statements are idempotent so
// Migrate can run on every startup.
var schemas = map[string]string{
	"core":   coreSchema,
	"market": marketSchema,
	"config": configSchema,
}

const coreSchema = `
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    initial_cash TEXT NOT NULL,
    current_cash TEXT NOT NULL,
    template_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    model_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    schedule_type TEXT NOT NULL DEFAULT 'daily',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);

CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    stock_code TEXT NOT NULL,
    stock_name TEXT,
    shares INTEGER NOT NULL,
    avg_cost TEXT NOT NULL,
    buy_date TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(agent_id, stock_code)
);
CREATE INDEX IF NOT EXISTS idx_positions_agent ON positions(agent_id);

CREATE TABLE IF NOT EXISTS orders (
    order_id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    stock_code TEXT,
    side TEXT NOT NULL,
    quantity INTEGER,
    price TEXT,
    status TEXT NOT NULL,
    reject_reason TEXT,
    reason TEXT,
    llm_request_log_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_agent ON orders(agent_id, created_at);

CREATE TABLE IF NOT EXISTS transactions (
    tx_id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    stock_code TEXT,
    side TEXT NOT NULL,
    quantity INTEGER,
    price TEXT,
    commission TEXT,
    stamp_tax TEXT,
    transfer_fee TEXT,
    executed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transactions_agent ON transactions(agent_id, executed_at);

CREATE TABLE IF NOT EXISTS decision_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    status TEXT NOT NULL,
    parsed_decision TEXT,
    error_message TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decision_logs_agent ON decision_logs(agent_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decision_logs_status ON decision_logs(status);

CREATE TABLE IF NOT EXISTS llm_request_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider_id TEXT NOT NULL,
    model_name TEXT NOT NULL,
    agent_id TEXT,
    request_content TEXT,
    response_content TEXT,
    duration_ms INTEGER,
    status TEXT NOT NULL,
    error_message TEXT,
    tokens_in INTEGER,
    tokens_out INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_llm_logs_agent ON llm_request_logs(agent_id, created_at);
`

const marketSchema = `
CREATE TABLE IF NOT EXISTS stock_quotes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stock_code TEXT NOT NULL,
    stock_name TEXT,
    trade_date TEXT NOT NULL,
    open TEXT NOT NULL,
    high TEXT NOT NULL,
    low TEXT NOT NULL,
    close TEXT NOT NULL,
    prev_close TEXT,
    volume INTEGER NOT NULL DEFAULT 0,
    amount TEXT,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(stock_code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_quotes_code_date ON stock_quotes(stock_code, trade_date);
CREATE INDEX IF NOT EXISTS idx_quotes_date ON stock_quotes(trade_date);

CREATE TABLE IF NOT EXISTS market_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    data_type TEXT NOT NULL,
    data_date TEXT NOT NULL,
    data_content TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(data_type, data_date)
);
CREATE INDEX IF NOT EXISTS idx_market_data_type ON market_data(data_type, data_date);

CREATE TABLE IF NOT EXISTS sentiment_scores (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    score_date TEXT NOT NULL UNIQUE,
    score REAL NOT NULL,
    source TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const configSchema = `
CREATE TABLE IF NOT EXISTS prompt_templates (
    template_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    strict INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS llm_providers (
    provider_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    protocol TEXT NOT NULL,
    api_url TEXT NOT NULL,
    api_key TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS system_tasks (
    task_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    task_type TEXT NOT NULL,
    agent_ids TEXT NOT NULL DEFAULT '[]',
    config TEXT NOT NULL DEFAULT '{}',
    schedule TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    trading_day_only INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS system_task_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    status TEXT NOT NULL,
    skip_reason TEXT,
    error_message TEXT,
    agent_results TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON system_task_logs(task_id, started_at);
`

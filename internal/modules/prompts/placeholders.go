// Package prompts stores prompt templates and renders them with the
// placeholder vocabulary consumed by decision prompts.
package prompts

// Placeholder vocabulary, grouped by category. Rendering substitutes
// {{name}} markers; unknown names fail ValidateTemplate and render empty
// unless the template is strict.
var placeholderCategories = map[string][]string{
	"account": {
		"cash", "market_value", "total_assets", "return_rate", "positions",
	},
	"technical": {
		"ma_data", "macd_data", "kdj_data", "rsi_data", "boll_data",
	},
	"capital_flow": {
		"capital_flow", "capital_flow_ranking", "northbound_flow",
	},
	"fundamental": {
		"financial_metrics", "balance_sheet", "cash_flow",
	},
	"sentiment": {
		"news_sentiment", "market_sentiment", "sentiment_score",
	},
	"history": {
		"recent_quotes", "recent_decisions",
	},
	"market_overview": {
		"stock_list", "market_overview", "index_overview", "sector_flow",
		"hot_stocks", "limit_up_stocks", "limit_down_stocks",
	},
	"system_time": {
		"current_time", "current_date", "current_weekday", "is_trading_day",
	},
	"derived": {
		"hot_stocks_quotes", "positions_quotes",
	},
}

var knownPlaceholders = buildKnownSet()

func buildKnownSet() map[string]bool {
	set := make(map[string]bool)
	for _, names := range placeholderCategories {
		for _, n := range names {
			set[n] = true
		}
	}
	return set
}

// PlaceholderCategories returns the vocabulary grouped by category,
// served by the /templates/placeholders endpoint.
func PlaceholderCategories() map[string][]string {
	return placeholderCategories
}

// IsKnownPlaceholder reports whether a name is part of the vocabulary.
func IsKnownPlaceholder(name string) bool {
	return knownPlaceholders[name]
}

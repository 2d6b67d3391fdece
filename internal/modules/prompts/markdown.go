package prompts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

const (
	maxHotStockSymbols = 20
	hotStockDays       = 3
	maxPositionRows    = 30
)

// StockQuotes is one symbol with its recent daily rows, ascending by date.
type StockQuotes struct {
	Code string
	Name string
	Rows []*domain.StockQuote
}

// PositionQuotes is one holding with its recent daily rows, ascending.
type PositionQuotes struct {
	Position *domain.Position
	Name     string
	Rows     []*domain.StockQuote
}

// BuildHotStocksMarkdown renders the hot-stocks block consumed by the LLM:
// up to 20 symbols with their 3 most recent daily rows each.
func BuildHotStocksMarkdown(stocks []StockQuotes) string {
	if len(stocks) > maxHotStockSymbols {
		stocks = stocks[:maxHotStockSymbols]
	}

	var b strings.Builder
	b.WriteString("## 热门股票近3日行情\n")
	b.WriteString("| 股票代码 | 股票名称 | 日期 | 开盘 | 最高 | 最低 | 收盘 | 涨跌幅 | 成交量(万手) |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")

	for _, s := range stocks {
		rows := lastRows(s.Rows, hotStockDays)
		for _, q := range rows {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				s.Code, s.Name, q.TradeDate,
				q.Open.StringFixed(2), q.High.StringFixed(2),
				q.Low.StringFixed(2), q.Close.StringFixed(2),
				formatChangePct(q), formatVolume(q.Volume)))
		}
	}
	return b.String()
}

// BuildPositionsMarkdown renders one section per holding: a header line,
// a shares/avg-cost line, and up to 30 recent daily rows.
func BuildPositionsMarkdown(sections []PositionQuotes) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		name := s.Name
		if name == "" {
			name = s.Position.StockName
		}
		b.WriteString(fmt.Sprintf("### %s %s\n", s.Position.StockCode, name))
		b.WriteString(fmt.Sprintf("持仓: %d股, 成本价: %s\n", s.Position.Shares, s.Position.AvgCost.StringFixed(2)))
		b.WriteString("| 日期 | 开盘 | 最高 | 最低 | 收盘 | 涨跌幅 | 成交量(万手) |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")

		for _, q := range lastRows(s.Rows, maxPositionRows) {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
				q.TradeDate,
				q.Open.StringFixed(2), q.High.StringFixed(2),
				q.Low.StringFixed(2), q.Close.StringFixed(2),
				formatChangePct(q), formatVolume(q.Volume)))
		}
	}
	return b.String()
}

// lastRows keeps the n most recent rows of an ascending slice, preserving
// ascending order.
func lastRows(rows []*domain.StockQuote, n int) []*domain.StockQuote {
	if len(rows) > n {
		return rows[len(rows)-n:]
	}
	return rows
}

// formatChangePct renders (close - prev_close) / prev_close * 100 with an
// explicit sign and two decimals.
func formatChangePct(q *domain.StockQuote) string {
	if !q.PrevClose.IsPositive() {
		return "+0.00%"
	}
	pct := q.Close.Sub(q.PrevClose).Div(q.PrevClose).Mul(decimal.NewFromInt(100)).Round(2)
	sign := "+"
	if pct.IsNegative() {
		sign = ""
	}
	return sign + pct.StringFixed(2) + "%"
}

// formatVolume renders share volume in 万手 units to one decimal.
func formatVolume(shares int64) string {
	wan := decimal.NewFromInt(shares).DivRound(decimal.NewFromInt(10000), 1)
	return wan.StringFixed(1)
}

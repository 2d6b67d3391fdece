package prompts

import (
	"strings"
	"testing"

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

func row(date, open, high, low, closeP, prevClose string, volume int64) *domain.StockQuote {
	return &domain.StockQuote{
		TradeDate: date,
		Open:      dec(open),
		High:      dec(high),
		Low:       dec(low),
		Close:     dec(closeP),
		PrevClose: dec(prevClose),
		Volume:    volume,
	}
}

func TestBuildHotStocksMarkdown(t *testing.T) {
	md := BuildHotStocksMarkdown([]StockQuotes{
		{
			Code: "600000",
			Name: "浦发银行",
			Rows: []*domain.StockQuote{
				row("2026-08-17", "10.00", "10.30", "9.90", "10.20", "10.00", 1234500),
				row("2026-08-18", "10.20", "10.60", "10.10", "10.50", "10.20", 2000000),
			},
		},
	})

	lines := strings.Split(strings.TrimRight(md, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "## 热门股票近3日行情", lines[0])
	assert.Equal(t, "| 股票代码 | 股票名称 | 日期 | 开盘 | 最高 | 最低 | 收盘 | 涨跌幅 | 成交量(万手) |", lines[1])
	// 10.20 vs 10.00 = +2.00%; 1234500 shares = 123.5 万手
	assert.Equal(t, "| 600000 | 浦发银行 | 2026-08-17 | 10.00 | 10.30 | 9.90 | 10.20 | +2.00% | 123.5 |", lines[3])
	assert.Equal(t, "| 600000 | 浦发银行 | 2026-08-18 | 10.20 | 10.60 | 10.10 | 10.50 | +2.94% | 200.0 |", lines[4])
}

func TestBuildHotStocksMarkdownLimits(t *testing.T) {
	var stocks []StockQuotes
	rows := []*domain.StockQuote{
		row("2026-08-13", "1", "1", "1", "1", "1", 0),
		row("2026-08-14", "1", "1", "1", "1", "1", 0),
		row("2026-08-17", "1", "1", "1", "1", "1", 0),
		row("2026-08-18", "1", "1", "1", "1", "1", 0),
	}
	for i := 0; i < 25; i++ {
		stocks = append(stocks, StockQuotes{Code: "c", Name: "n", Rows: rows})
	}

	md := BuildHotStocksMarkdown(stocks)
	dataLines := strings.Count(md, "| c |")
	// 20 symbols * 3 most recent rows
	assert.Equal(t, 60, dataLines)
	assert.NotContains(t, md, "2026-08-13", "only the 3 most recent rows appear")
}

func TestBuildPositionsMarkdown(t *testing.T) {
	md := BuildPositionsMarkdown([]PositionQuotes{
		{
			Position: &domain.Position{
				StockCode: "000001",
				StockName: "平安银行",
				Shares:    200,
				AvgCost:   dec("14.2550"),
			},
			Rows: []*domain.StockQuote{
				row("2026-08-18", "14.00", "14.50", "13.90", "14.10", "14.30", 500000),
			},
		},
	})

	lines := strings.Split(strings.TrimRight(md, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "### 000001 平安银行", lines[0])
	assert.Equal(t, "持仓: 200股, 成本价: 14.26", lines[1])
	assert.Equal(t, "| 日期 | 开盘 | 最高 | 最低 | 收盘 | 涨跌幅 | 成交量(万手) |", lines[2])
	// 14.10 vs 14.30 = -1.40%
	assert.Equal(t, "| 2026-08-18 | 14.00 | 14.50 | 13.90 | 14.10 | -1.40% | 50.0 |", lines[4])
}

// Package indicators computes technical indicator summaries for prompt
// placeholders from stored daily quotes.
package indicators

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/modules/market"
)

// minRows is the history needed for the slowest indicator (MACD 26+9).
const minRows = 35

// lookbackDays is how much history is loaded per stock.
const lookbackDays = 120

// Snapshot holds rendered indicator lines for one stock, ready for
// placeholder substitution. Empty strings mean not enough history.
type Snapshot struct {
	MA   string
	MACD string
	KDJ  string
	RSI  string
	BOLL string
}

// Service computes indicators over the quote store.
type Service struct {
	quotes *market.QuoteRepository
	log    zerolog.Logger
}

// NewService creates the indicator service.
func NewService(quotes *market.QuoteRepository, log zerolog.Logger) *Service {
	return &Service{
		quotes: quotes,
		log:    log.With().Str("component", "indicators").Logger(),
	}
}

// Compute loads recent history for the stock and renders the indicator
// snapshot. Indicator math runs on floats; these values feed prompts
// only, never settlement.
func (s *Service) Compute(ctx context.Context, stockCode string) (*Snapshot, error) {
	rows, err := s.quotes.GetRecent(ctx, stockCode, lookbackDays)
	if err != nil {
		return nil, err
	}
	if len(rows) < minRows {
		s.log.Debug().Str("stock_code", stockCode).Int("rows", len(rows)).Msg("not enough history for indicators")
		return &Snapshot{}, nil
	}

	high := make([]float64, len(rows))
	low := make([]float64, len(rows))
	closes := make([]float64, len(rows))
	for i, q := range rows {
		high[i], _ = q.High.Float64()
		low[i], _ = q.Low.Float64()
		closes[i], _ = q.Close.Float64()
	}

	return &Snapshot{
		MA:   renderMA(closes),
		MACD: renderMACD(closes),
		KDJ:  renderKDJ(high, low, closes),
		RSI:  renderRSI(closes),
		BOLL: renderBOLL(closes),
	}, nil
}

func renderMA(closes []float64) string {
	ma5 := talib.Ma(closes, 5, talib.SMA)
	ma10 := talib.Ma(closes, 10, talib.SMA)
	ma20 := talib.Ma(closes, 20, talib.SMA)
	last := len(closes) - 1
	return fmt.Sprintf("MA5=%.2f MA10=%.2f MA20=%.2f", ma5[last], ma10[last], ma20[last])
}

func renderMACD(closes []float64) string {
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	last := len(closes) - 1
	return fmt.Sprintf("DIF=%.3f DEA=%.3f MACD=%.3f", macd[last], signal[last], hist[last])
}

func renderKDJ(high, low, closes []float64) string {
	k, d := talib.Stoch(high, low, closes, 9, 3, talib.SMA, 3, talib.SMA)
	last := len(closes) - 1
	j := 3*k[last] - 2*d[last]
	return fmt.Sprintf("K=%.2f D=%.2f J=%.2f", k[last], d[last], j)
}

func renderRSI(closes []float64) string {
	rsi6 := talib.Rsi(closes, 6)
	rsi12 := talib.Rsi(closes, 12)
	rsi24 := talib.Rsi(closes, 24)
	last := len(closes) - 1
	return fmt.Sprintf("RSI6=%.2f RSI12=%.2f RSI24=%.2f", rsi6[last], rsi12[last], rsi24[last])
}

func renderBOLL(closes []float64) string {
	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	last := len(closes) - 1
	return fmt.Sprintf("UP=%.2f MID=%.2f LOW=%.2f", upper[last], middle[last], lower[last])
}

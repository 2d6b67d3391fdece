package market

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

// Limit move threshold: |change%| >= 9.9 counts as limit up/down.
const limitMoveThreshold = 9.9

// hotStockCount is how many symbols the hot-stocks artifact carries.
const hotStockCount = 20

// Indices looked up for the overview artifact.
var overviewIndexNames = []string{
	"上证指数", "深证成指", "创业板指", "科创50", "沪深300", "中证500",
}

// Fetcher is the upstream data source consumed by the service.
type Fetcher interface {
	FetchSpot(ctx context.Context) ([]SpotRow, error)
	FetchIndexSpot(ctx context.Context) ([]IndexRow, error)
	FetchHistory(ctx context.Context, stockCode string, days int) ([]*domain.StockQuote, error)
}

// MarketBundle is the composed prompt input: the latest snapshot of each
// derived artifact.
type MarketBundle struct {
	MarketSentiment map[string]any `json:"market_sentiment" msgpack:"market_sentiment"`
	IndexOverview   map[string]any `json:"index_overview" msgpack:"index_overview"`
	HotStocks       map[string]any `json:"hot_stocks" msgpack:"hot_stocks"`
}

// RefreshResult reports the outcome of one refresh_all run.
type RefreshResult struct {
	SentimentOK bool `json:"sentiment_ok"`
	IndexOK     bool `json:"index_ok"`
	HotStocksOK bool `json:"hot_stocks_ok"`
}

// AllOK reports whether every refresher succeeded.
func (r RefreshResult) AllOK() bool {
	return r.SentimentOK && r.IndexOK && r.HotStocksOK
}

// Service derives and serves market artifacts.
type Service struct {
	fetcher       Fetcher
	quotes        *QuoteService
	marketRepo    *MarketDataRepository
	sentimentRepo *SentimentRepository
	cache         *BundleCache
	log           zerolog.Logger
}

// NewService creates the market data service. cache may be nil.
func NewService(fetcher Fetcher, quotes *QuoteService, marketRepo *MarketDataRepository, sentimentRepo *SentimentRepository, cache *BundleCache, log zerolog.Logger) *Service {
	return &Service{
		fetcher:       fetcher,
		quotes:        quotes,
		marketRepo:    marketRepo,
		sentimentRepo: sentimentRepo,
		cache:         cache,
		log:           log.With().Str("component", "market_service").Logger(),
	}
}

// RefreshAll fetches the whole-market snapshot exactly once and derives
// the three artifacts from it: market sentiment, index overview, and hot
// stocks. Hot-stock rows are also upserted as daily quotes.
func (s *Service) RefreshAll(ctx context.Context, now string) (RefreshResult, error) {
	var result RefreshResult

	rows, err := s.fetcher.FetchSpot(ctx)
	if err != nil {
		return result, fmt.Errorf("refresh_all snapshot fetch failed: %w", err)
	}
	if len(rows) == 0 {
		return result, fmt.Errorf("refresh_all snapshot is empty")
	}

	sentiment := BuildSentiment(rows)
	if err := s.marketRepo.Upsert(ctx, domain.DataTypeMarketSentiment, now, sentiment); err != nil {
		s.log.Error().Err(err).Msg("sentiment snapshot persist failed")
	} else {
		result.SentimentOK = true
	}

	if indexRows, err := s.fetcher.FetchIndexSpot(ctx); err != nil {
		s.log.Error().Err(err).Msg("index snapshot fetch failed")
	} else {
		overview := BuildIndexOverview(indexRows)
		if err := s.marketRepo.Upsert(ctx, domain.DataTypeIndexOverview, now, overview); err != nil {
			s.log.Error().Err(err).Msg("index overview persist failed")
		} else {
			result.IndexOK = true
		}
	}

	hot := TopHotStocks(rows, hotStockCount)
	hotContent := map[string]any{"stocks": hotStockSummaries(hot)}
	if err := s.marketRepo.Upsert(ctx, domain.DataTypeHotStocks, now, hotContent); err != nil {
		s.log.Error().Err(err).Msg("hot stocks persist failed")
	} else {
		result.HotStocksOK = true
	}

	// Each hot row doubles as today's daily quote.
	quotes := make([]*domain.StockQuote, 0, len(hot))
	for _, r := range hot {
		quotes = append(quotes, spotRowToQuote(r, now))
	}
	success, fail := s.quotes.UpsertQuotes(ctx, quotes)
	s.log.Info().
		Int("hot_upserted", success).
		Int("hot_failed", fail).
		Bool("all_ok", result.AllOK()).
		Msg("market refresh complete")

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return result, nil
}

// GetMarketBundle composes the prompt bundle from the latest snapshot of
// each artifact type, consulting the Redis cache first.
func (s *Service) GetMarketBundle(ctx context.Context) (*MarketBundle, error) {
	if s.cache != nil {
		if bundle, ok := s.cache.Get(ctx); ok {
			return bundle, nil
		}
	}

	bundle := &MarketBundle{}
	for _, t := range []struct {
		dataType string
		dest     *map[string]any
	}{
		{domain.DataTypeMarketSentiment, &bundle.MarketSentiment},
		{domain.DataTypeIndexOverview, &bundle.IndexOverview},
		{domain.DataTypeHotStocks, &bundle.HotStocks},
	} {
		md, err := s.marketRepo.GetLatest(ctx, t.dataType)
		if err != nil {
			return nil, err
		}
		if md != nil {
			*t.dest = md.DataContent
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, bundle)
	}
	return bundle, nil
}

// SentimentScore returns the market sentiment score in -1..+1: the stored
// score when present, otherwise derived from the latest fear-greed index
// as (fg - 50) / 50.
func (s *Service) SentimentScore(ctx context.Context) (float64, error) {
	score, found, err := s.sentimentRepo.GetLatest(ctx)
	if err != nil {
		return 0, err
	}
	if found {
		return score, nil
	}

	md, err := s.marketRepo.GetLatest(ctx, domain.DataTypeMarketSentiment)
	if err != nil || md == nil {
		return 0, err
	}
	if fg, ok := md.DataContent["fear_greed_index"].(float64); ok {
		return (fg - 50) / 50, nil
	}
	return 0, nil
}

// BuildSentiment derives the market-sentiment artifact from one snapshot:
// breadth counts, limit moves, the fear-greed index with its mood label,
// and a turnover-based activity label.
func BuildSentiment(rows []SpotRow) map[string]any {
	var up, down, flat, limitUp, limitDown int
	var turnoverSum float64

	for _, r := range rows {
		switch {
		case r.ChangePct > 0:
			up++
		case r.ChangePct < 0:
			down++
		default:
			flat++
		}
		if r.ChangePct >= limitMoveThreshold {
			limitUp++
		}
		if r.ChangePct <= -limitMoveThreshold {
			limitDown++
		}
		turnoverSum += r.Turnover
	}

	total := len(rows)
	fearGreed := 0
	if total > 0 {
		fearGreed = int(float64(100*up) / float64(total))
	}
	avgTurnover := 0.0
	if total > 0 {
		avgTurnover = turnoverSum / float64(total)
	}

	return map[string]any{
		"total_stocks":     total,
		"up_count":         up,
		"down_count":       down,
		"flat_count":       flat,
		"limit_up_count":   limitUp,
		"limit_down_count": limitDown,
		"fear_greed_index": fearGreed,
		"market_mood":      MoodLabel(fearGreed),
		"avg_turnover":     avgTurnover,
		"trading_activity": ActivityLabel(avgTurnover),
	}
}

// MoodLabel maps a fear-greed index to its band name.
func MoodLabel(fearGreed int) string {
	switch {
	case fearGreed >= 70:
		return "极度贪婪"
	case fearGreed >= 55:
		return "偏乐观"
	case fearGreed >= 45:
		return "中性"
	case fearGreed >= 30:
		return "偏悲观"
	default:
		return "极度恐惧"
	}
}

// ActivityLabel classifies the market by average turnover rate.
func ActivityLabel(avgTurnover float64) string {
	switch {
	case avgTurnover > 5:
		return "活跃"
	case avgTurnover > 2:
		return "正常"
	default:
		return "低迷"
	}
}

// BuildIndexOverview picks the fixed set of benchmark indices out of the
// index snapshot.
func BuildIndexOverview(rows []IndexRow) map[string]any {
	byName := make(map[string]IndexRow, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}

	indices := make([]map[string]any, 0, len(overviewIndexNames))
	for _, name := range overviewIndexNames {
		r, ok := byName[name]
		if !ok {
			continue
		}
		indices = append(indices, map[string]any{
			"name":       r.Name,
			"current":    r.Current.String(),
			"change_pct": r.ChangePct,
			"amount":     r.Amount.String(),
		})
	}
	return map[string]any{"indices": indices}
}

// TopHotStocks returns the n rows with the largest traded amount,
// descending.
func TopHotStocks(rows []SpotRow, n int) []SpotRow {
	sorted := make([]SpotRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.GreaterThan(sorted[j].Amount)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func hotStockSummaries(rows []SpotRow) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"code":       r.Code,
			"name":       r.Name,
			"close":      r.Close.String(),
			"change_pct": r.ChangePct,
			"amount":     r.Amount.String(),
		})
	}
	return out
}

func spotRowToQuote(r SpotRow, tradeDate string) *domain.StockQuote {
	return &domain.StockQuote{
		StockCode: trading.NormalizeStockCode(r.Code),
		StockName: r.Name,
		TradeDate: tradeDate,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		PrevClose: r.PrevClose,
		Volume:    r.Volume,
		Amount:    r.Amount,
	}
}

package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

const fullSyncDays = 30

// QuoteService synchronizes daily quotes from the upstream provider.
// All writes go through the idempotent (code, date) upsert.
type QuoteService struct {
	fetcher Fetcher
	repo    *QuoteRepository
	log     zerolog.Logger
}

// NewQuoteService creates a quote sync service.
func NewQuoteService(fetcher Fetcher, repo *QuoteRepository, log zerolog.Logger) *QuoteService {
	return &QuoteService{
		fetcher: fetcher,
		repo:    repo,
		log:     log.With().Str("component", "quote_service").Logger(),
	}
}

// SyncQuotes runs the routine daily sync: upserts today's row for every
// stock in the snapshot. With forceFull it also backfills recent history
// per stock.
func (s *QuoteService) SyncQuotes(ctx context.Context, forceFull bool) (success, fail int, err error) {
	rows, err := s.fetcher.FetchSpot(ctx)
	if err != nil {
		return 0, 0, err
	}

	today := trading.MarketDate(time.Now())
	quotes := make([]*domain.StockQuote, 0, len(rows))
	for _, r := range rows {
		quotes = append(quotes, spotRowToQuote(r, today))
	}
	success, fail = s.repo.UpsertBatch(ctx, quotes)

	if forceFull {
		for _, r := range rows {
			hs, hf := s.syncHistory(ctx, trading.NormalizeStockCode(r.Code), fullSyncDays)
			success += hs
			fail += hf
		}
	}

	s.log.Info().Int("success", success).Int("fail", fail).Bool("force_full", forceFull).Msg("quote sync complete")
	return success, fail, nil
}

// SyncSpecificStocks backfills history for the given codes.
func (s *QuoteService) SyncSpecificStocks(ctx context.Context, codes []string, days int) (success, fail int, err error) {
	if days <= 0 {
		days = fullSyncDays
	}
	for _, code := range codes {
		hs, hf := s.syncHistory(ctx, trading.NormalizeStockCode(code), days)
		success += hs
		fail += hf
	}
	return success, fail, nil
}

// UpsertQuotes writes a batch of rows, returning per-row outcome counts.
func (s *QuoteService) UpsertQuotes(ctx context.Context, quotes []*domain.StockQuote) (success, fail int) {
	return s.repo.UpsertBatch(ctx, quotes)
}

func (s *QuoteService) syncHistory(ctx context.Context, code string, days int) (success, fail int) {
	history, err := s.fetcher.FetchHistory(ctx, code, days)
	if err != nil {
		s.log.Warn().Err(err).Str("stock_code", code).Msg("history fetch failed")
		return 0, 1
	}
	for _, q := range history {
		q.StockCode = trading.NormalizeStockCode(q.StockCode)
	}
	return s.repo.UpsertBatch(ctx, history)
}

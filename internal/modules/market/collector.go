// Package market refreshes and serves market data: the upstream snapshot
// collector, quote/market-data repositories, derived sentiment artifacts,
// and the prompt bundle with its Redis cache.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

// SpotRow is one stock in the upstream whole-market snapshot. The upstream
// schema is stable; fields the orchestrator does not use are ignored.
type SpotRow struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	PrevClose decimal.Decimal `json:"prev_close"`
	ChangePct float64         `json:"change_pct"`
	Volume    int64           `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
	Turnover  float64         `json:"turnover"`
}

// IndexRow is one index in the upstream index snapshot.
type IndexRow struct {
	Name      string          `json:"name"`
	Current   decimal.Decimal `json:"current"`
	ChangePct float64         `json:"change_pct"`
	Amount    decimal.Decimal `json:"amount"`
}

// Collector fetches market data from the upstream quote provider.
type Collector struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewCollector creates a collector against the provider base URL.
func NewCollector(baseURL string, log zerolog.Logger) *Collector {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &Collector{
		client: client,
		log:    log.With().Str("component", "collector").Logger(),
	}
}

// FetchSpot returns the whole-market stock snapshot.
func (c *Collector) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	var rows []SpotRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&rows).
		Get("/api/stocks/spot")
	if err != nil {
		return nil, fmt.Errorf("spot snapshot fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("spot snapshot fetch failed: status %d", resp.StatusCode())
	}
	c.log.Debug().Int("rows", len(rows)).Msg("spot snapshot fetched")
	return rows, nil
}

// FetchIndexSpot returns the index snapshot.
func (c *Collector) FetchIndexSpot(ctx context.Context) ([]IndexRow, error) {
	var rows []IndexRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&rows).
		Get("/api/indices/spot")
	if err != nil {
		return nil, fmt.Errorf("index snapshot fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("index snapshot fetch failed: status %d", resp.StatusCode())
	}
	return rows, nil
}

// FetchHistory returns up to days recent daily rows for one stock.
func (c *Collector) FetchHistory(ctx context.Context, stockCode string, days int) ([]*domain.StockQuote, error) {
	var rows []*domain.StockQuote
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&rows).
		SetPathParam("code", stockCode).
		SetQueryParam("days", fmt.Sprintf("%d", days)).
		Get("/api/stocks/{code}/history")
	if err != nil {
		return nil, fmt.Errorf("history fetch failed for %s: %w", stockCode, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("history fetch failed for %s: status %d", stockCode, resp.StatusCode())
	}
	return rows, nil
}

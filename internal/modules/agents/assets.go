package agents

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

// AgentView is an agent with its computed asset fields, as returned by
// the list/detail endpoints.
type AgentView struct {
	*domain.Agent
	TotalAssets       decimal.Decimal       `json:"total_assets"`
	MarketValue       decimal.Decimal       `json:"market_value"`
	ReturnRate        decimal.Decimal       `json:"return_rate"`
	PositionsCount    int                   `json:"positions_count"`
	TransactionsCount int                   `json:"transactions_count"`
	ProviderName      string                `json:"provider_name,omitempty"`
	Positions         []*domain.Position    `json:"positions"`
	Transactions      []*domain.Transaction `json:"transactions,omitempty"`
}

// buildView computes market value from the latest stored quotes (falling
// back to avg cost when a stock has no quote), total assets, and the
// return rate against initial cash.
func (s *Service) buildView(ctx context.Context, agent *domain.Agent, includeTransactions bool) (*AgentView, error) {
	positions, err := s.positions.ListByAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	marketValue := decimal.Zero
	for _, p := range positions {
		price := p.AvgCost
		if q, err := s.quotes.GetLatest(ctx, p.StockCode); err == nil && q != nil && q.Close.IsPositive() {
			price = q.Close
		}
		marketValue = marketValue.Add(price.Mul(decimal.NewFromInt(p.Shares)))
	}

	totalAssets := agent.CurrentCash.Add(marketValue)
	returnRate := decimal.Zero
	if agent.InitialCash.IsPositive() {
		returnRate = totalAssets.Sub(agent.InitialCash).
			Div(agent.InitialCash).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	txCount, err := s.txs.CountByAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	view := &AgentView{
		Agent:             agent,
		TotalAssets:       totalAssets.Round(2),
		MarketValue:       marketValue.Round(2),
		ReturnRate:        returnRate,
		PositionsCount:    len(positions),
		TransactionsCount: txCount,
		Positions:         positions,
	}

	if provider, err := s.providers.Get(ctx, agent.ProviderID); err == nil && provider != nil {
		view.ProviderName = provider.Name
	}
	if includeTransactions {
		txs, err := s.txs.ListByAgent(ctx, agent.ID, 100)
		if err != nil {
			return nil, err
		}
		view.Transactions = txs
	}
	return view, nil
}

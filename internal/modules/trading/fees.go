package trading

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/domain"
)

// A-share simulated fee schedule. Each component is rounded to 2 decimals
// with banker's rounding.
var (
	commissionRate = decimal.NewFromFloat(0.0003)
	commissionMin  = decimal.NewFromFloat(5.00)
	stampTaxRate   = decimal.NewFromFloat(0.0005)
	transferRate   = decimal.NewFromFloat(0.00001)
)

// isShanghaiListed reports whether the code trades on the Shanghai
// exchange (6xxxxx codes). Transfer fees apply to Shanghai only.
func isShanghaiListed(stockCode string) bool {
	return strings.HasPrefix(stockCode, "6")
}

// CalculateFees computes the fee breakdown for one side of a trade.
// notional = quantity * price. Stamp tax is charged on sells only.
func CalculateFees(side domain.OrderSide, stockCode string, quantity int64, price decimal.Decimal) domain.TradingFees {
	notional := price.Mul(decimal.NewFromInt(quantity))

	commission := notional.Mul(commissionRate)
	if commission.LessThan(commissionMin) {
		commission = commissionMin
	}

	stampTax := decimal.Zero
	if side == domain.SideSell {
		stampTax = notional.Mul(stampTaxRate)
	}

	transferFee := decimal.Zero
	if isShanghaiListed(stockCode) {
		transferFee = notional.Mul(transferRate)
	}

	return domain.TradingFees{
		Commission:  commission.RoundBank(2),
		StampTax:    stampTax.RoundBank(2),
		TransferFee: transferFee.RoundBank(2),
	}
}

package pricing

import (
	"strings"

	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolveCommission prefers the service-specific row over the partner's generic row.
func ResolveCommission(exact, generic *models.Commission) *models.Commission {
	if exact != nil {
		return exact
	}
	return generic
}

// Adjust applies a sales partner commission to every amount of a price.
// Commissions in another currency leave the price untouched.
func Adjust(price models.Price, commission *models.Commission) models.Price {
	if commission == nil {
		return price
	}
	if !strings.EqualFold(strings.TrimSpace(commission.Currency), strings.TrimSpace(price.CurrencyCode)) {
		return price
	}

	adjusted := price
	adjusted.MainPrice = applyCommission(price.MainPrice, commission)
	adjusted.ChildPrice = applyNullable(price.ChildPrice, commission)
	adjusted.BabyPrice = applyNullable(price.BabyPrice, commission)
	adjusted.SinglePrice = applyNullable(price.SinglePrice, commission)
	return adjusted
}

func applyNullable(amount decimal.NullDecimal, c *models.Commission) decimal.NullDecimal {
	if !amount.Valid {
		return amount
	}
	return decimal.NewNullDecimal(applyCommission(amount.Decimal, c))
}

func applyCommission(amount decimal.Decimal, c *models.Commission) decimal.Decimal {
	var out decimal.Decimal
	switch c.Type {
	case models.CommissionPercentage:
		out = amount.Sub(amount.Mul(c.Value).Div(hundred))
	case models.CommissionFixed:
		out = amount.Sub(c.Value)
	default:
		return amount
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

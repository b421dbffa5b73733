package pricing

import (
	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
)

// Total is main*adults + child*children. Without counts it is one main price.
// A missing child price adds nothing for children.
func Total(price models.Price, adults, children *int) decimal.Decimal {
	if adults == nil && children == nil {
		return price.MainPrice
	}

	total := decimal.Zero
	if adults != nil {
		total = total.Add(price.MainPrice.Mul(decimal.NewFromInt(int64(*adults))))
	}
	if children != nil && price.ChildPrice.Valid {
		total = total.Add(price.ChildPrice.Decimal.Mul(decimal.NewFromInt(int64(*children))))
	}
	return total
}

// RoundCents rounds half away from zero to two decimals before display.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

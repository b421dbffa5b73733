package pricing

import (
	"sort"

	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
)

// PricedPackage is a package together with its selected (and possibly adjusted) price.
type PricedPackage struct {
	Package models.Package `json:"package"`
	Price   *models.Price  `json:"price"`
}

// PickDisplayPackage returns the package that represents a product in browse
// listings: the strictly cheapest main price, first package winning ties.
// Unpriced packages rank after every priced one.
func PickDisplayPackage(packages []PricedPackage) *PricedPackage {
	if len(packages) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(packages); i++ {
		if cheaper(packages[i].Price, packages[best].Price) {
			best = i
		}
	}
	picked := packages[best]
	return &picked
}

func cheaper(candidate, best *models.Price) bool {
	if candidate == nil {
		return false
	}
	if best == nil {
		return true
	}
	return candidate.MainPrice.LessThan(best.MainPrice)
}

// HighlightCandidate is one (product, package price, gallery image) row for the dashboard.
type HighlightCandidate struct {
	ProductID int64          `json:"product_id"`
	Package   models.Package `json:"package"`
	Price     models.Price   `json:"price"`
	ImageID   *int64         `json:"image_id,omitempty"`
	ImageURL  string         `json:"image_url,omitempty"`
}

// RankHighlights keeps one candidate per product ordered by discount desc,
// main price asc, image id asc. A missing discount ranks as zero and a missing
// image ranks last. Products keep their first-seen order.
func RankHighlights(candidates []HighlightCandidate) []HighlightCandidate {
	order := make([]int64, 0)
	groups := make(map[int64][]HighlightCandidate)
	for _, c := range candidates {
		if _, ok := groups[c.ProductID]; !ok {
			order = append(order, c.ProductID)
		}
		groups[c.ProductID] = append(groups[c.ProductID], c)
	}

	out := make([]HighlightCandidate, 0, len(order))
	for _, productID := range order {
		rows := groups[productID]
		sort.SliceStable(rows, func(i, j int) bool {
			return highlightLess(rows[i], rows[j])
		})
		out = append(out, rows[0])
	}
	return out
}

func highlightLess(a, b HighlightCandidate) bool {
	da, db := discountOf(a.Price), discountOf(b.Price)
	if !da.Equal(db) {
		return da.GreaterThan(db)
	}
	if !a.Price.MainPrice.Equal(b.Price.MainPrice) {
		return a.Price.MainPrice.LessThan(b.Price.MainPrice)
	}
	switch {
	case a.ImageID == nil:
		return false
	case b.ImageID == nil:
		return true
	}
	return *a.ImageID < *b.ImageID
}

func discountOf(p models.Price) decimal.Decimal {
	if p.Discount.Valid {
		return p.Discount.Decimal
	}
	return decimal.Zero
}

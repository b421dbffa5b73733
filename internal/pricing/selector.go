// Package pricing holds the pure price selection and adjustment rules used
// by quotes, browse listings and dashboard highlights.
package pricing

import (
	"time"

	"tripdesk/internal/models"

	"github.com/rs/zerolog"
)

// SelectPrice picks the applicable price row of a package.
//
// Constant-price packages take the first row. Dated packages with a date take
// the row whose [start_date, end_date] interval contains it (open end allowed);
// overlapping rows are logged and resolved to the lowest main price. Dated
// packages without a date take the lowest main price. Nil means unpriced.
func SelectPrice(pkg models.Package, prices []models.Price, date *time.Time, logger *zerolog.Logger) *models.Price {
	rows := make([]models.Price, 0, len(prices))
	for _, p := range prices {
		if p.PackageID == pkg.ID {
			rows = append(rows, p)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	if pkg.ConstantPrice {
		return &rows[0]
	}

	if date == nil {
		return lowest(rows)
	}

	day := DateOnly(*date)
	var matches []models.Price
	for _, p := range rows {
		if Contains(p, day) {
			matches = append(matches, p)
		}
	}

	if len(matches) > 1 && logger != nil {
		ids := make([]int64, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		logger.Warn().
			Int64("package_id", pkg.ID).
			Ints64("price_ids", ids).
			Str("date", day.Format(time.DateOnly)).
			Msg("overlapping price rows for date, using lowest main price")
	}
	return lowest(matches)
}

// Contains reports whether a dated price row is valid on day.
// A row without a start date never matches.
func Contains(p models.Price, day time.Time) bool {
	if p.StartDate == nil {
		return false
	}
	day = DateOnly(day)
	if DateOnly(*p.StartDate).After(day) {
		return false
	}
	return p.EndDate == nil || !DateOnly(*p.EndDate).Before(day)
}

// Overlaps reports whether two dated rows share at least one day.
func Overlaps(a, b models.Price) bool {
	if a.StartDate == nil || b.StartDate == nil {
		return false
	}
	aStart, bStart := DateOnly(*a.StartDate), DateOnly(*b.StartDate)
	if a.EndDate != nil && DateOnly(*a.EndDate).Before(bStart) {
		return false
	}
	if b.EndDate != nil && DateOnly(*b.EndDate).Before(aStart) {
		return false
	}
	return true
}

// DateOnly returns midnight UTC of t's calendar date in t's own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lowest(rows []models.Price) *models.Price {
	if len(rows) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(rows); i++ {
		if rows[i].MainPrice.LessThan(rows[best].MainPrice) {
			best = i
		}
	}
	p := rows[best]
	return &p
}

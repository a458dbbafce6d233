package provider

import (
	"slices"
	"time"

	"portfoliotracker/internal/models"
)

// Normalize sorts points oldest first, stamps the symbol and drops points
// dated before since. A zero since keeps everything.
func Normalize(symbol string, points []models.HistoryPoint, since time.Time) []models.HistoryPoint {
	out := make([]models.HistoryPoint, 0, len(points))
	for _, p := range points {
		if !since.IsZero() && p.Date.Before(since) {
			continue
		}
		p.Symbol = symbol
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b models.HistoryPoint) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

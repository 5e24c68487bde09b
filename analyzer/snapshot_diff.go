package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

const minRatingChange = 0.1

// CompareCompetitorSnapshots compares two nearby-search snapshots of the same
// area taken at different times. It reports new entrants, places that
// disappeared, places whose review count grew by at least threshold
// (fractional, 0.1 = 10%), and rating moves of 0.1 stars or more.
func CompareCompetitorSnapshots(oldPlaces, newPlaces []googleapi.Place, threshold float64, limit int) (string, error) {
	if threshold <= 0 {
		threshold = 0.1 // Default threshold: 10% growth
	}
	if limit <= 0 {
		limit = 10 // Default: show top 10 per section
	}

	oldByID, err := indexPlaces(oldPlaces, "old")
	if err != nil {
		return "", err
	}
	newByID, err := indexPlaces(newPlaces, "new")
	if err != nil {
		return "", err
	}

	// --- 1. Entrants and exits ---
	var entrants, exits []googleapi.Place
	for id, p := range newByID {
		if _, ok := oldByID[id]; !ok {
			entrants = append(entrants, p)
		}
	}
	for id, p := range oldByID {
		if _, ok := newByID[id]; !ok {
			exits = append(exits, p)
		}
	}
	byReviews := func(ps []googleapi.Place) {
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].UserRatingsTotal != ps[j].UserRatingsTotal {
				return ps[i].UserRatingsTotal > ps[j].UserRatingsTotal
			}
			return ps[i].Name < ps[j].Name
		})
	}
	byReviews(entrants)
	byReviews(exits)

	// --- 2. Review growth and rating movement ---
	type growthStat struct {
		Name          string
		OldReviews    int
		NewReviews    int
		Growth        int
		GrowthPercent float64
	}
	type ratingStat struct {
		Name      string
		OldRating float64
		NewRating float64
		Delta     float64
	}

	growthStats := make([]growthStat, 0)
	ratingStats := make([]ratingStat, 0)
	for id, np := range newByID {
		op, ok := oldByID[id]
		if !ok {
			continue
		}

		growth := np.UserRatingsTotal - op.UserRatingsTotal
		growthPct := 0.0
		if op.UserRatingsTotal > 0 {
			growthPct = float64(growth) / float64(op.UserRatingsTotal) * 100
		} else if growth > 0 {
			growthPct = 100.0 // first reviews count as full growth
		}
		if growth > 0 && growthPct >= threshold*100 {
			growthStats = append(growthStats, growthStat{
				Name:          np.Name,
				OldReviews:    op.UserRatingsTotal,
				NewReviews:    np.UserRatingsTotal,
				Growth:        growth,
				GrowthPercent: growthPct,
			})
		}

		delta := round2(np.Rating - op.Rating)
		if op.Rating > 0 && np.Rating > 0 && math.Abs(delta) >= minRatingChange-1e-9 {
			ratingStats = append(ratingStats, ratingStat{
				Name:      np.Name,
				OldRating: op.Rating,
				NewRating: np.Rating,
				Delta:     delta,
			})
		}
	}
	sort.Slice(growthStats, func(i, j int) bool {
		if growthStats[i].Growth != growthStats[j].Growth {
			return growthStats[i].Growth > growthStats[j].Growth
		}
		return growthStats[i].Name < growthStats[j].Name
	})
	sort.Slice(ratingStats, func(i, j int) bool {
		ai, aj := math.Abs(ratingStats[i].Delta), math.Abs(ratingStats[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return ratingStats[i].Name < ratingStats[j].Name
	})

	// --- 3. Format output ---
	var b strings.Builder
	b.WriteString("Competitor Snapshot Comparison\n")
	b.WriteString("==============================\n\n")
	b.WriteString(fmt.Sprintf("Old snapshot: %d places   New snapshot: %d places\n\n", len(oldByID), len(newByID)))

	b.WriteString(fmt.Sprintf("New Entrants (%d):\n", len(entrants)))
	writePlaces(&b, entrants, limit)

	b.WriteString(fmt.Sprintf("\nNo Longer Listed (%d):\n", len(exits)))
	writePlaces(&b, exits, limit)

	b.WriteString(fmt.Sprintf("\nReview Growth (threshold: %.1f%%, %d places):\n", threshold*100, len(growthStats)))
	if len(growthStats) == 0 {
		b.WriteString("  No significant review growth detected.\n")
	}
	for i := 0; i < len(growthStats) && i < limit; i++ {
		s := growthStats[i]
		b.WriteString(fmt.Sprintf("  %-30s %s → %s (+%s, %.2f%%)\n",
			s.Name, FormatCount(s.OldReviews), FormatCount(s.NewReviews), FormatCount(s.Growth), s.GrowthPercent))
	}

	b.WriteString(fmt.Sprintf("\nRating Changes (%d places):\n", len(ratingStats)))
	if len(ratingStats) == 0 {
		b.WriteString("  No rating changes of 0.1 or more.\n")
	}
	for i := 0; i < len(ratingStats) && i < limit; i++ {
		s := ratingStats[i]
		b.WriteString(fmt.Sprintf("  %-30s %.1f → %.1f (%+.1f)\n", s.Name, s.OldRating, s.NewRating, s.Delta))
	}

	return b.String(), nil
}

func indexPlaces(places []googleapi.Place, which string) (map[string]googleapi.Place, error) {
	byID := make(map[string]googleapi.Place, len(places))
	for i, p := range places {
		if p.PlaceID == "" {
			return nil, fmt.Errorf("%s snapshot: place %d (%q) has no place_id", which, i, p.Name)
		}
		if _, dup := byID[p.PlaceID]; !dup {
			byID[p.PlaceID] = p
		}
	}
	return byID, nil
}

func writePlaces(b *strings.Builder, places []googleapi.Place, limit int) {
	if len(places) == 0 {
		b.WriteString("  none\n")
		return
	}
	for i := 0; i < len(places) && i < limit; i++ {
		p := places[i]
		b.WriteString(fmt.Sprintf("  %-30s rating %s, %s reviews\n", p.Name, FormatRating(p.Rating), FormatCount(p.UserRatingsTotal)))
	}
	if len(places) > limit {
		b.WriteString(fmt.Sprintf("  ... and %d more\n", len(places)-limit))
	}
}

package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

const (
	defaultPriorWeight = 10.0
	closedPermanently  = "CLOSED_PERMANENTLY"
)

// CompetitorInput is everything AnalyzeCompetitors needs. Places usually
// comes straight from a nearby search.
type CompetitorInput struct {
	Origin        googleapi.LatLng
	RadiusMeters  int
	TargetPlaceID string
	TargetName    string
	Places        []googleapi.Place
	// PriorWeight is the number of "virtual" mean-rated reviews each place
	// starts with when computing its Bayesian rating. Defaults to 10.
	PriorWeight float64
}

// BayesianRating shrinks a rating towards the set mean when it rests on few reviews.
func BayesianRating(rating float64, reviews int, mean, prior float64) float64 {
	v := float64(reviews)
	if v+prior == 0 {
		return 0
	}
	if rating <= 0 {
		v = 0
	}
	return (v/(v+prior))*rating + (prior/(v+prior))*mean
}

// StrengthScore combines the Bayesian rating (70%) and relative review volume (30%) into 0..100.
func StrengthScore(bayes float64, reviews, maxReviews int) float64 {
	score := 70 * bayes / 5
	if maxReviews > 0 {
		score += 30 * math.Log10(1+float64(reviews)) / math.Log10(1+float64(maxReviews))
	}
	return round1(score)
}

type competitorSet struct {
	all         []CompetitorStat
	competitors []CompetitorStat
	target      *TargetPosition
	closed      int
}

func buildCompetitorSet(in CompetitorInput) competitorSet {
	prior := in.PriorWeight
	if prior <= 0 {
		prior = defaultPriorWeight
	}

	// --- 1. Drop duplicates and permanently closed places ---
	var set competitorSet
	seen := make(map[string]bool, len(in.Places))
	open := make([]googleapi.Place, 0, len(in.Places))
	for _, p := range in.Places {
		if p.PlaceID != "" {
			if seen[p.PlaceID] {
				continue
			}
			seen[p.PlaceID] = true
		}
		if p.BusinessStatus == closedPermanently {
			set.closed++
			continue
		}
		open = append(open, p)
	}

	// --- 2. Mean rating and review ceiling across the set ---
	var ratingSum float64
	var rated, maxReviews int
	for _, p := range open {
		if p.Rating > 0 {
			ratingSum += p.Rating
			rated++
		}
		if p.UserRatingsTotal > maxReviews {
			maxReviews = p.UserRatingsTotal
		}
	}
	mean := 0.0
	if rated > 0 {
		mean = ratingSum / float64(rated)
	}

	// --- 3. Per-place statistics ---
	targetIdx := -1
	for i, p := range open {
		dist := HaversineMeters(in.Origin, p.Geometry.Location)
		bayes := BayesianRating(p.Rating, p.UserRatingsTotal, mean, prior)
		address := p.Vicinity
		if address == "" {
			address = p.FormattedAddress
		}
		stat := CompetitorStat{
			PlaceID:        p.PlaceID,
			Name:           p.Name,
			Address:        address,
			Rating:         p.Rating,
			ReviewCount:    p.UserRatingsTotal,
			BayesianRating: round2(bayes),
			Strength:       StrengthScore(bayes, p.UserRatingsTotal, maxReviews),
			DistanceMeters: math.Round(dist),
			DistanceBand:   DistanceBand(dist),
			Direction:      CompassPoint(BearingDegrees(in.Origin, p.Geometry.Location)),
			PriceLevel:     p.PriceLevel,
		}
		if targetIdx == -1 && isTarget(p, in.TargetPlaceID, in.TargetName) {
			stat.IsTarget = true
			targetIdx = i
		}
		set.all = append(set.all, stat)
	}

	// --- 4. Rank by strength ---
	sort.SliceStable(set.all, func(i, j int) bool {
		a, b := set.all[i], set.all[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if a.ReviewCount != b.ReviewCount {
			return a.ReviewCount > b.ReviewCount
		}
		return a.Name < b.Name
	})

	set.competitors = make([]CompetitorStat, 0, len(set.all))
	for i := range set.all {
		set.all[i].Rank = i + 1
		if set.all[i].IsTarget {
			set.target = &TargetPosition{CompetitorStat: set.all[i], RankOf: len(set.all)}
			continue
		}
		set.competitors = append(set.competitors, set.all[i])
	}

	if set.target != nil && len(set.competitors) > 0 {
		var lowerRating, fewerReviews int
		for _, c := range set.competitors {
			if c.Rating < set.target.Rating {
				lowerRating++
			}
			if c.ReviewCount < set.target.ReviewCount {
				fewerReviews++
			}
		}
		n := float64(len(set.competitors))
		set.target.RatingPercentile = round1(float64(lowerRating) / n * 100)
		set.target.ReviewsPercentile = round1(float64(fewerReviews) / n * 100)
	}
	return set
}

// RankCompetitors returns the open competitors ordered by strength, without
// the target, plus the target's position when it was found.
func RankCompetitors(in CompetitorInput) ([]CompetitorStat, *TargetPosition) {
	set := buildCompetitorSet(in)
	return set.competitors, set.target
}

func isTarget(p googleapi.Place, placeID, name string) bool {
	if placeID != "" {
		return p.PlaceID == placeID
	}
	if name = strings.TrimSpace(name); name != "" {
		return strings.EqualFold(strings.TrimSpace(p.Name), name)
	}
	return false
}

func summarize(set competitorSet, radiusMeters int) CompetitorSummary {
	summary := CompetitorSummary{
		CompetitorCount: len(set.competitors),
		ExcludedClosed:  set.closed,
		RadiusMeters:    radiusMeters,
		ByDistanceBand:  make(map[string]int, len(distanceBands)),
		ByDirection:     make(map[string]int, len(compassPoints)),
	}
	for _, band := range distanceBands {
		summary.ByDistanceBand[band] = 0
	}
	for _, dir := range compassPoints {
		summary.ByDirection[dir] = 0
	}

	if radiusMeters > 0 {
		rKm := float64(radiusMeters) / 1000
		summary.DensityPerSqKm = round2(float64(len(set.competitors)) / (math.Pi * rKm * rKm))
	}

	var ratingSum float64
	var rated int
	reviewCounts := make([]int, 0, len(set.competitors))
	for i, c := range set.competitors {
		if c.Rating > 0 {
			ratingSum += c.Rating
			rated++
		}
		reviewCounts = append(reviewCounts, c.ReviewCount)
		summary.ByDistanceBand[c.DistanceBand]++
		summary.ByDirection[c.Direction]++
		if summary.Nearest == nil || c.DistanceMeters < summary.Nearest.DistanceMeters {
			nearest := set.competitors[i]
			summary.Nearest = &nearest
		}
	}
	if rated > 0 {
		summary.MeanRating = round2(ratingSum / float64(rated))
	}
	summary.MedianReviewCount = median(reviewCounts)
	return summary
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// AnalyzeCompetitors ranks the places around in.Origin and reports where the
// target business stands among them.
func AnalyzeCompetitors(in CompetitorInput, topN int, format string) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	if topN <= 0 {
		topN = 10
	}
	logrus.WithFields(logrus.Fields{"places": len(in.Places), "topN": topN, "format": format}).Info("Analyzing competitors")

	set := buildCompetitorSet(in)
	summary := summarize(set, in.RadiusMeters)

	limit := topN
	if limit > len(set.competitors) {
		limit = len(set.competitors)
	}
	top := set.competitors[:limit]

	if format == FormatJSON {
		return renderJSON(CompetitorAnalysisResult{
			AnalysisType: "competitors",
			OriginLat:    in.Origin.Lat,
			OriginLng:    in.Origin.Lng,
			Summary:      summary,
			Target:       set.target,
			TopN:         limit,
			Competitors:  top,
		}, topN), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Competitor Analysis (Top %d by Strength)\n", limit))
	b.WriteString(fmt.Sprintf("Origin: %.5f, %.5f   Radius: %s\n", in.Origin.Lat, in.Origin.Lng, FormatDistance(float64(in.RadiusMeters))))
	b.WriteString(fmt.Sprintf("Competitors: %d", summary.CompetitorCount))
	if summary.ExcludedClosed > 0 {
		b.WriteString(fmt.Sprintf(" (excluded %d permanently closed)", summary.ExcludedClosed))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Density: %.2f per km²\n", summary.DensityPerSqKm))
	b.WriteString(fmt.Sprintf("Mean Rating: %s   Median Reviews: %.0f\n", FormatRating(summary.MeanRating), summary.MedianReviewCount))
	if summary.Nearest != nil {
		b.WriteString(fmt.Sprintf("Nearest: %s (%s %s)\n", summary.Nearest.Name, FormatDistance(summary.Nearest.DistanceMeters), summary.Nearest.Direction))
	}
	b.WriteString("--------------------------------------------------\n")

	b.WriteString("By Distance:")
	for _, band := range distanceBands {
		b.WriteString(fmt.Sprintf("  %s: %d", band, summary.ByDistanceBand[band]))
	}
	b.WriteString("\nBy Direction:")
	for _, dir := range compassPoints {
		b.WriteString(fmt.Sprintf("  %s: %d", dir, summary.ByDirection[dir]))
	}
	b.WriteString("\n--------------------------------------------------\n")

	switch {
	case set.target != nil:
		t := set.target
		b.WriteString(fmt.Sprintf("Target: %s (rank %d of %d, strength %.1f)\n", t.Name, t.Rank, t.RankOf, t.Strength))
		b.WriteString(fmt.Sprintf("  Rating %s, higher than %.0f%% of competitors\n", FormatRating(t.Rating), t.RatingPercentile))
		b.WriteString(fmt.Sprintf("  Reviews %s, more than %.0f%% of competitors\n", FormatCount(t.ReviewCount), t.ReviewsPercentile))
	case in.TargetPlaceID != "" || in.TargetName != "":
		ref := in.TargetPlaceID
		if ref == "" {
			ref = in.TargetName
		}
		b.WriteString(fmt.Sprintf("Target: '%s' not found among results\n", ref))
	default:
		b.WriteString("Target: not specified\n")
	}
	b.WriteString("--------------------------------------------------\n")

	if len(top) == 0 {
		b.WriteString("No competitors found.\n")
		return wrapText(format, b.String()), nil
	}

	rows := make([][]string, 0, len(top))
	for _, c := range top {
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.Rank),
			c.Name,
			FormatRating(c.Rating),
			FormatCount(c.ReviewCount),
			fmt.Sprintf("%.1f", c.Strength),
			FormatDistance(c.DistanceMeters),
			c.Direction,
		})
	}
	b.WriteString(renderTable([]string{"Rank", "Name", "Rating", "Reviews", "Strength", "Distance", "Dir"}, rows))

	return wrapText(format, b.String()), nil
}

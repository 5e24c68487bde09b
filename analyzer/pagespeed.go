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
	RatingGood             = "good"
	RatingNeedsImprovement = "needs-improvement"
	RatingPoor             = "poor"
	RatingUnknown          = "n/a"
)

// metricThreshold holds the good / poor boundaries for a metric.
type metricThreshold struct {
	id    string
	title string
	good  float64
	poor  float64
}

// Lab metrics in Lighthouse audit order.
var labMetrics = []metricThreshold{
	{"first-contentful-paint", "First Contentful Paint", 1800, 3000},
	{"largest-contentful-paint", "Largest Contentful Paint", 2500, 4000},
	{"total-blocking-time", "Total Blocking Time", 200, 600},
	{"cumulative-layout-shift", "Cumulative Layout Shift", 0.1, 0.25},
	{"speed-index", "Speed Index", 3400, 5800},
	{"interactive", "Time to Interactive", 3800, 7300},
}

// Field (CrUX) metrics as keyed in loadingExperience.metrics.
var fieldMetrics = []metricThreshold{
	{"LARGEST_CONTENTFUL_PAINT_MS", "Largest Contentful Paint", 2500, 4000},
	{"INTERACTION_TO_NEXT_PAINT", "Interaction to Next Paint", 200, 500},
	{"CUMULATIVE_LAYOUT_SHIFT_SCORE", "Cumulative Layout Shift", 0.1, 0.25},
	{"FIRST_CONTENTFUL_PAINT_MS", "First Contentful Paint", 1800, 3000},
	{"EXPERIMENTAL_TIME_TO_FIRST_BYTE", "Time to First Byte", 800, 1800},
}

var categoryOrder = []string{"performance", "accessibility", "best-practices", "seo"}

// RateMetric rates value against good/poor boundaries (lower is better).
func RateMetric(value, good, poor float64) string {
	switch {
	case value <= good:
		return RatingGood
	case value <= poor:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// RateScore rates a 0..100 category score.
func RateScore(score int) string {
	switch {
	case score >= 90:
		return RatingGood
	case score >= 50:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// cruxRating maps a CrUX category to a rating. Local thresholds apply only
// when the category is missing.
func cruxRating(category string) string {
	switch category {
	case "FAST":
		return RatingGood
	case "AVERAGE":
		return RatingNeedsImprovement
	case "SLOW":
		return RatingPoor
	default:
		return RatingUnknown
	}
}

func percentScore(score *float64) *int {
	if score == nil {
		return nil
	}
	v := int(math.Round(*score * 100))
	return &v
}

func orderedCategories(cats map[string]googleapi.LighthouseCategory) []string {
	ids := make([]string, 0, len(cats))
	known := make(map[string]bool, len(categoryOrder))
	for _, id := range categoryOrder {
		known[id] = true
		if _, ok := cats[id]; ok {
			ids = append(ids, id)
		}
	}
	var extra []string
	for id := range cats {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

func buildPageSpeedResult(res *googleapi.PageSpeedResult, topN int) PageSpeedAnalysisResult {
	lh := res.LighthouseResult
	url := lh.FinalURL
	if url == "" {
		url = res.ID
	}
	strategy := lh.ConfigSettings.FormFactor
	if strategy == "" {
		strategy = lh.ConfigSettings.EmulatedFormFactor
	}

	result := PageSpeedAnalysisResult{
		AnalysisType:      "pagespeed",
		URL:               url,
		Strategy:          strategy,
		LighthouseVersion: lh.LighthouseVersion,
		Categories:        []ScoreStat{},
		LabMetrics:        []MetricStat{},
		Opportunities:     []OpportunityStat{},
	}

	// --- 1. Category scores ---
	for _, id := range orderedCategories(lh.Categories) {
		cat := lh.Categories[id]
		stat := ScoreStat{ID: id, Title: cat.Title, Score: percentScore(cat.Score), Rating: RatingUnknown}
		if stat.Title == "" {
			stat.Title = id
		}
		if stat.Score != nil {
			stat.Rating = RateScore(*stat.Score)
		}
		result.Categories = append(result.Categories, stat)
	}

	// --- 2. Lab metrics ---
	for _, m := range labMetrics {
		audit, ok := lh.Audits[m.id]
		if !ok || audit.NumericValue == nil {
			continue
		}
		title := audit.Title
		if title == "" {
			title = m.title
		}
		result.LabMetrics = append(result.LabMetrics, MetricStat{
			ID:           m.id,
			Title:        title,
			Value:        *audit.NumericValue,
			DisplayValue: audit.DisplayValue,
			Rating:       RateMetric(*audit.NumericValue, m.good, m.poor),
		})
	}

	// --- 3. Field data ---
	if le := res.LoadingExperience; le != nil && len(le.Metrics) > 0 {
		result.FieldCategory = le.OverallCategory
		for _, m := range fieldMetrics {
			fm, ok := le.Metrics[m.id]
			if !ok {
				continue
			}
			value := fm.Percentile
			display := FormatMillis(value)
			// CrUX reports CLS multiplied by 100.
			if m.id == "CUMULATIVE_LAYOUT_SHIFT_SCORE" {
				value = value / 100
				display = fmt.Sprintf("%.2f", value)
			}
			rating := cruxRating(fm.Category)
			if rating == RatingUnknown {
				rating = RateMetric(value, m.good, m.poor)
			}
			result.FieldMetrics = append(result.FieldMetrics, MetricStat{
				ID:           m.id,
				Title:        m.title,
				Value:        value,
				DisplayValue: display,
				Category:     fm.Category,
				Rating:       rating,
			})
		}
	}

	// --- 4. Opportunities ---
	for id, audit := range lh.Audits {
		if audit.Details == nil || audit.Details.Type != "opportunity" {
			continue
		}
		if audit.Details.OverallSavingsMs <= 0 {
			continue
		}
		if audit.Score != nil && *audit.Score >= 0.9 {
			continue
		}
		result.Opportunities = append(result.Opportunities, OpportunityStat{
			ID:        id,
			Title:     audit.Title,
			SavingsMs: math.Round(audit.Details.OverallSavingsMs),
			Display:   audit.DisplayValue,
		})
	}
	sort.Slice(result.Opportunities, func(i, j int) bool {
		a, b := result.Opportunities[i], result.Opportunities[j]
		if a.SavingsMs != b.SavingsMs {
			return a.SavingsMs > b.SavingsMs
		}
		return a.ID < b.ID
	})
	if len(result.Opportunities) > topN {
		result.Opportunities = result.Opportunities[:topN]
	}
	result.TopN = len(result.Opportunities)
	return result
}

// AnalyzePageSpeed renders category scores, Core Web Vitals and the top
// improvement opportunities of one PageSpeed Insights run.
func AnalyzePageSpeed(res *googleapi.PageSpeedResult, topN int, format string) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("no pagespeed result to analyze")
	}
	if topN <= 0 {
		topN = 5
	}
	logrus.WithFields(logrus.Fields{"url": res.ID, "topN": topN, "format": format}).Info("Analyzing PageSpeed result")

	result := buildPageSpeedResult(res, topN)
	if format == FormatJSON {
		return renderJSON(result, topN), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("PageSpeed Analysis: %s\n", result.URL))
	if result.Strategy != "" || result.LighthouseVersion != "" {
		b.WriteString(fmt.Sprintf("Strategy: %s   Lighthouse: %s\n", result.Strategy, result.LighthouseVersion))
	}
	b.WriteString("--------------------------------------------------\n")

	b.WriteString("Category Scores:\n")
	for _, c := range result.Categories {
		score := RatingUnknown
		if c.Score != nil {
			score = fmt.Sprintf("%d", *c.Score)
		}
		b.WriteString(fmt.Sprintf("  %-16s %5s  %s\n", c.Title, score, c.Rating))
	}
	b.WriteString("--------------------------------------------------\n")

	b.WriteString("Lab Metrics:\n")
	if len(result.LabMetrics) == 0 {
		b.WriteString("  none reported\n")
	}
	for _, m := range result.LabMetrics {
		b.WriteString(fmt.Sprintf("  %-26s %10s  %s\n", m.Title, m.DisplayValue, m.Rating))
	}
	b.WriteString("--------------------------------------------------\n")

	if len(result.FieldMetrics) == 0 {
		b.WriteString("Field Data: no field data\n")
	} else {
		b.WriteString(fmt.Sprintf("Field Data (75th percentile, overall %s):\n", result.FieldCategory))
		for _, m := range result.FieldMetrics {
			category := m.Category
			if category == "" {
				category = RatingUnknown
			}
			b.WriteString(fmt.Sprintf("  %-26s %10s  %-8s %s\n", m.Title, m.DisplayValue, category, m.Rating))
		}
	}
	b.WriteString("--------------------------------------------------\n")

	b.WriteString(fmt.Sprintf("Top %d Opportunities:\n", result.TopN))
	if len(result.Opportunities) == 0 {
		b.WriteString("  none\n")
	}
	for _, o := range result.Opportunities {
		b.WriteString(fmt.Sprintf("  %-10s %s\n", FormatMillis(o.SavingsMs), o.Title))
	}

	return wrapText(format, b.String()), nil
}

func scoreCell(s *int) string {
	if s == nil {
		return RatingUnknown
	}
	return fmt.Sprintf("%d", *s)
}

func auditValue(res *googleapi.PageSpeedResult, id string) *float64 {
	audit, ok := res.LighthouseResult.Audits[id]
	if !ok || audit.NumericValue == nil {
		return nil
	}
	v := *audit.NumericValue
	return &v
}

// AnalyzePageSpeedBenchmark compares several sites side by side, best
// performance first. Failed runs are listed last with their error.
func AnalyzePageSpeedBenchmark(outcomes []googleapi.PageSpeedOutcome, format string) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{"sites": len(outcomes), "format": format}).Info("Analyzing PageSpeed benchmark")

	var ok, failed []BenchmarkRow
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			msg := "no result"
			if o.Err != nil {
				msg = o.Err.Error()
			}
			failed = append(failed, BenchmarkRow{URL: o.URL, Error: msg})
			continue
		}
		row := BenchmarkRow{URL: o.URL, Scores: make(map[string]*int)}
		for id, cat := range o.Result.LighthouseResult.Categories {
			row.Scores[id] = percentScore(cat.Score)
		}
		row.LCPMs = auditValue(o.Result, "largest-contentful-paint")
		row.CLS = auditValue(o.Result, "cumulative-layout-shift")
		row.TBTMs = auditValue(o.Result, "total-blocking-time")
		ok = append(ok, row)
	}

	perf := func(r BenchmarkRow) int {
		if s := r.Scores["performance"]; s != nil {
			return *s
		}
		return -1
	}
	sort.SliceStable(ok, func(i, j int) bool { return perf(ok[i]) > perf(ok[j]) })
	for i := range ok {
		ok[i].Rank = i + 1
	}
	rows := append(ok, failed...)

	if format == FormatJSON {
		if rows == nil {
			rows = []BenchmarkRow{}
		}
		return renderJSON(BenchmarkResult{AnalysisType: "pagespeed-benchmark", Sites: rows}, 0), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("PageSpeed Benchmark (%d sites)\n", len(outcomes)))
	if len(rows) == 0 {
		b.WriteString("No sites to compare.\n")
		return wrapText(format, b.String()), nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		if r.Error != "" {
			table = append(table, []string{"-", r.URL, "error: " + truncate(r.Error, 80), "", "", "", "", "", ""})
			continue
		}
		lcp, cls, tbt := RatingUnknown, RatingUnknown, RatingUnknown
		if r.LCPMs != nil {
			lcp = FormatMillis(*r.LCPMs)
		}
		if r.CLS != nil {
			cls = fmt.Sprintf("%.3f", *r.CLS)
		}
		if r.TBTMs != nil {
			tbt = FormatMillis(*r.TBTMs)
		}
		table = append(table, []string{
			fmt.Sprintf("%d", r.Rank),
			r.URL,
			scoreCell(r.Scores["performance"]),
			scoreCell(r.Scores["accessibility"]),
			scoreCell(r.Scores["best-practices"]),
			scoreCell(r.Scores["seo"]),
			lcp,
			cls,
			tbt,
		})
	}
	b.WriteString(renderTable([]string{"Rank", "URL", "Perf", "A11y", "Best Practices", "SEO", "LCP", "CLS", "TBT"}, table))

	return wrapText(format, b.String()), nil
}

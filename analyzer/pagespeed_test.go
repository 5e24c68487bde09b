package analyzer_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZephyrDeng/market-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

func fp(v float64) *float64 { return &v }

func testPageSpeedResult(url string, perf float64) *googleapi.PageSpeedResult {
	return &googleapi.PageSpeedResult{
		ID: url,
		LoadingExperience: &googleapi.LoadingExperience{
			OverallCategory: "AVERAGE",
			Metrics: map[string]googleapi.FieldMetric{
				"LARGEST_CONTENTFUL_PAINT_MS":   {Percentile: 2900, Category: "AVERAGE"},
				"CUMULATIVE_LAYOUT_SHIFT_SCORE": {Percentile: 5, Category: "FAST"},
			},
		},
		LighthouseResult: googleapi.LighthouseResult{
			FinalURL:          url,
			LighthouseVersion: "12.0.0",
			ConfigSettings:    googleapi.ConfigSettings{FormFactor: "mobile"},
			Categories: map[string]googleapi.LighthouseCategory{
				"seo":            {ID: "seo", Title: "SEO", Score: fp(0.88)},
				"performance":    {ID: "performance", Title: "Performance", Score: fp(perf)},
				"accessibility":  {ID: "accessibility", Title: "Accessibility", Score: fp(0.95)},
				"best-practices": {ID: "best-practices", Title: "Best Practices"},
			},
			Audits: map[string]googleapi.LighthouseAudit{
				"largest-contentful-paint": {ID: "largest-contentful-paint", Title: "Largest Contentful Paint", Score: fp(0.2), NumericValue: fp(4200), DisplayValue: "4.2 s"},
				"cumulative-layout-shift":  {ID: "cumulative-layout-shift", Title: "Cumulative Layout Shift", Score: fp(1), NumericValue: fp(0.05), DisplayValue: "0.05"},
				"total-blocking-time":      {ID: "total-blocking-time", Title: "Total Blocking Time", Score: fp(0.6), NumericValue: fp(350), DisplayValue: "350 ms"},
				"render-blocking-resources": {
					ID: "render-blocking-resources", Title: "Eliminate render-blocking resources", Score: fp(0.3),
					Details: &googleapi.AuditDetails{Type: "opportunity", OverallSavingsMs: 1200},
				},
				"unused-javascript": {
					ID: "unused-javascript", Title: "Reduce unused JavaScript", Score: fp(0.5),
					Details: &googleapi.AuditDetails{Type: "opportunity", OverallSavingsMs: 800},
				},
				"uses-text-compression": {
					ID: "uses-text-compression", Title: "Enable text compression", Score: fp(1),
					Details: &googleapi.AuditDetails{Type: "opportunity", OverallSavingsMs: 50},
				},
				"modern-image-formats": {
					ID: "modern-image-formats", Title: "Serve images in modern formats", Score: fp(0.2),
					Details: &googleapi.AuditDetails{Type: "opportunity"},
				},
				"dom-size": {
					ID: "dom-size", Title: "Avoid an excessive DOM size", Score: fp(0.4),
					Details: &googleapi.AuditDetails{Type: "table"},
				},
			},
		},
	}
}

func TestAnalyzePageSpeed(t *testing.T) {
	res := testPageSpeedResult("https://alpha.example/", 0.42)

	t.Run("TextFormat", func(t *testing.T) {
		result, err := analyzer.AnalyzePageSpeed(res, 5, "text")
		require.NoError(t, err)

		expectedStrings := []string{
			"PageSpeed Analysis: https://alpha.example/",
			"Strategy: mobile",
			"Performance",
			"Best Practices",
			"n/a",
			"Largest Contentful Paint",
			"Field Data (75th percentile, overall AVERAGE)",
			"Eliminate render-blocking resources",
			"Reduce unused JavaScript",
			"Top 2 Opportunities:",
		}
		for _, expected := range expectedStrings {
			assert.Contains(t, result, expected)
		}
		assert.NotContains(t, result, "Enable text compression")
		assert.NotContains(t, result, "Serve images in modern formats")
		assert.NotContains(t, result, "Avoid an excessive DOM size")
	})

	t.Run("JSONFormat", func(t *testing.T) {
		result, err := analyzer.AnalyzePageSpeed(res, 1, "json")
		require.NoError(t, err)

		var parsed analyzer.PageSpeedAnalysisResult
		require.NoError(t, json.Unmarshal([]byte(result), &parsed))

		require.Len(t, parsed.Categories, 4)
		assert.Equal(t, []string{"performance", "accessibility", "best-practices", "seo"},
			[]string{parsed.Categories[0].ID, parsed.Categories[1].ID, parsed.Categories[2].ID, parsed.Categories[3].ID})
		require.NotNil(t, parsed.Categories[0].Score)
		assert.Equal(t, 42, *parsed.Categories[0].Score)
		assert.Equal(t, analyzer.RatingPoor, parsed.Categories[0].Rating)
		assert.Equal(t, analyzer.RatingGood, parsed.Categories[1].Rating)
		assert.Nil(t, parsed.Categories[2].Score)
		assert.Equal(t, analyzer.RatingUnknown, parsed.Categories[2].Rating)
		assert.Equal(t, analyzer.RatingNeedsImprovement, parsed.Categories[3].Rating)

		ratings := map[string]string{}
		for _, m := range parsed.LabMetrics {
			ratings[m.ID] = m.Rating
		}
		assert.Equal(t, analyzer.RatingPoor, ratings["largest-contentful-paint"])
		assert.Equal(t, analyzer.RatingGood, ratings["cumulative-layout-shift"])
		assert.Equal(t, analyzer.RatingNeedsImprovement, ratings["total-blocking-time"])

		require.Len(t, parsed.FieldMetrics, 2)
		assert.Equal(t, "LARGEST_CONTENTFUL_PAINT_MS", parsed.FieldMetrics[0].ID)
		assert.Equal(t, analyzer.RatingNeedsImprovement, parsed.FieldMetrics[0].Rating)
		assert.InDelta(t, 0.05, parsed.FieldMetrics[1].Value, 1e-9)
		assert.Equal(t, analyzer.RatingGood, parsed.FieldMetrics[1].Rating)

		require.Len(t, parsed.Opportunities, 1)
		assert.Equal(t, "render-blocking-resources", parsed.Opportunities[0].ID)
		assert.Equal(t, 1200.0, parsed.Opportunities[0].SavingsMs)
	})

	t.Run("FieldCategoryWins", func(t *testing.T) {
		slow := testPageSpeedResult("https://slow.example/", 0.7)
		slow.LoadingExperience.Metrics = map[string]googleapi.FieldMetric{
			"LARGEST_CONTENTFUL_PAINT_MS": {Percentile: 2400, Category: "SLOW"},
			"FIRST_CONTENTFUL_PAINT_MS":   {Percentile: 1200},
		}

		text, err := analyzer.AnalyzePageSpeed(slow, 5, "text")
		require.NoError(t, err)
		assert.Regexp(t, `Largest Contentful Paint\s+2\.4 s\s+SLOW\s+poor`, text)

		result, err := analyzer.AnalyzePageSpeed(slow, 5, "json")
		require.NoError(t, err)
		var parsed analyzer.PageSpeedAnalysisResult
		require.NoError(t, json.Unmarshal([]byte(result), &parsed))

		fields := map[string]analyzer.MetricStat{}
		for _, m := range parsed.FieldMetrics {
			fields[m.ID] = m
		}
		assert.Equal(t, "SLOW", fields["LARGEST_CONTENTFUL_PAINT_MS"].Category)
		assert.Equal(t, analyzer.RatingPoor, fields["LARGEST_CONTENTFUL_PAINT_MS"].Rating)
		assert.Empty(t, fields["FIRST_CONTENTFUL_PAINT_MS"].Category)
		assert.Equal(t, analyzer.RatingGood, fields["FIRST_CONTENTFUL_PAINT_MS"].Rating)
	})

	t.Run("NoFieldData", func(t *testing.T) {
		bare := testPageSpeedResult("https://bare.example/", 0.9)
		bare.LoadingExperience = nil
		result, err := analyzer.AnalyzePageSpeed(bare, 5, "markdown")
		require.NoError(t, err)
		assert.Contains(t, result, "```text")
		assert.Contains(t, result, "Field Data: no field data")
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := analyzer.AnalyzePageSpeed(nil, 5, "text")
		assert.Error(t, err)
		_, err = analyzer.AnalyzePageSpeed(res, 5, "yaml")
		assert.Error(t, err)
	})
}

func TestRateMetricAndScore(t *testing.T) {
	assert.Equal(t, analyzer.RatingGood, analyzer.RateMetric(2500, 2500, 4000))
	assert.Equal(t, analyzer.RatingNeedsImprovement, analyzer.RateMetric(2501, 2500, 4000))
	assert.Equal(t, analyzer.RatingNeedsImprovement, analyzer.RateMetric(4000, 2500, 4000))
	assert.Equal(t, analyzer.RatingPoor, analyzer.RateMetric(4001, 2500, 4000))

	assert.Equal(t, analyzer.RatingGood, analyzer.RateScore(90))
	assert.Equal(t, analyzer.RatingNeedsImprovement, analyzer.RateScore(89))
	assert.Equal(t, analyzer.RatingNeedsImprovement, analyzer.RateScore(50))
	assert.Equal(t, analyzer.RatingPoor, analyzer.RateScore(49))
}

func TestAnalyzePageSpeedBenchmark(t *testing.T) {
	outcomes := []googleapi.PageSpeedOutcome{
		{URL: "https://slow.example/", Result: testPageSpeedResult("https://slow.example/", 0.5)},
		{URL: "https://down.example/", Err: errors.New("boom")},
		{URL: "https://fast.example/", Result: testPageSpeedResult("https://fast.example/", 0.93)},
	}

	t.Run("TextFormat", func(t *testing.T) {
		result, err := analyzer.AnalyzePageSpeedBenchmark(outcomes, "text")
		require.NoError(t, err)
		assert.Contains(t, result, "PageSpeed Benchmark (3 sites)")
		assert.Contains(t, result, "error: boom")
		assert.Contains(t, result, "4.2 s")
	})

	t.Run("JSONFormat", func(t *testing.T) {
		result, err := analyzer.AnalyzePageSpeedBenchmark(outcomes, "json")
		require.NoError(t, err)

		var parsed analyzer.BenchmarkResult
		require.NoError(t, json.Unmarshal([]byte(result), &parsed))
		require.Len(t, parsed.Sites, 3)
		assert.Equal(t, "https://fast.example/", parsed.Sites[0].URL)
		assert.Equal(t, 1, parsed.Sites[0].Rank)
		assert.Equal(t, 93, *parsed.Sites[0].Scores["performance"])
		assert.Equal(t, "https://slow.example/", parsed.Sites[1].URL)
		assert.Equal(t, 2, parsed.Sites[1].Rank)
		assert.Equal(t, "https://down.example/", parsed.Sites[2].URL)
		assert.Equal(t, "boom", parsed.Sites[2].Error)
		assert.Equal(t, 4200.0, *parsed.Sites[0].LCPMs)
	})

	t.Run("Empty", func(t *testing.T) {
		result, err := analyzer.AnalyzePageSpeedBenchmark(nil, "text")
		require.NoError(t, err)
		assert.Contains(t, result, "No sites to compare.")
	})
}

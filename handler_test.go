package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZephyrDeng/market-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeGoogle serves the Places and PageSpeed endpoints from memory.
type fakeGoogle struct {
	places  []googleapi.Place
	details map[string]googleapi.PlaceDetails
	// psiBlock, when set, holds every PageSpeed request until it is closed
	// or the request is cancelled.
	psiBlock chan struct{}
	psiCalls int32
	calls    int32
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.calls, 1)
	switch r.URL.Path {
	case "/nearbysearch/json":
		json.NewEncoder(w).Encode(googleapi.NearbySearchResponse{Status: "OK", Results: f.places})
	case "/textsearch/json":
		query := strings.ToLower(r.URL.Query().Get("query"))
		resp := googleapi.NearbySearchResponse{Status: "ZERO_RESULTS"}
		for _, p := range f.places {
			if strings.Contains(query, strings.ToLower(p.Name)) {
				resp.Status = "OK"
				resp.Results = append(resp.Results, p)
			}
		}
		json.NewEncoder(w).Encode(resp)
	case "/details/json":
		d, ok := f.details[r.URL.Query().Get("place_id")]
		if !ok {
			json.NewEncoder(w).Encode(googleapi.PlaceDetailsResponse{Status: "NOT_FOUND"})
			return
		}
		json.NewEncoder(w).Encode(googleapi.PlaceDetailsResponse{Status: "OK", Result: d})
	case "/runPagespeed":
		atomic.AddInt32(&f.psiCalls, 1)
		if f.psiBlock != nil {
			select {
			case <-f.psiBlock:
			case <-r.Context().Done():
				return
			}
		}
		json.NewEncoder(w).Encode(pageSpeedFixture(r.URL.Query().Get("url"), 0.8))
	default:
		http.NotFound(w, r)
	}
}

func fptr(v float64) *float64 { return &v }

func pageSpeedFixture(url string, perf float64) googleapi.PageSpeedResult {
	return googleapi.PageSpeedResult{
		ID: url,
		LighthouseResult: googleapi.LighthouseResult{
			RequestedURL: url,
			FinalURL:     url,
			Categories: map[string]googleapi.LighthouseCategory{
				"performance": {ID: "performance", Title: "Performance", Score: fptr(perf)},
				"seo":         {ID: "seo", Title: "SEO", Score: fptr(0.9)},
			},
			Audits: map[string]googleapi.LighthouseAudit{
				"largest-contentful-paint": {ID: "largest-contentful-paint", Title: "Largest Contentful Paint", NumericValue: fptr(2100), DisplayValue: "2.1 s"},
				"render-blocking-resources": {
					ID: "render-blocking-resources", Title: "Eliminate render-blocking resources", Score: fptr(0.4),
					Details: &googleapi.AuditDetails{Type: "opportunity", OverallSavingsMs: 900},
				},
			},
		},
	}
}

func testPlaces() []googleapi.Place {
	loc := func(lat, lng float64) googleapi.Geometry {
		return googleapi.Geometry{Location: googleapi.LatLng{Lat: lat, Lng: lng}}
	}
	return []googleapi.Place{
		{PlaceID: "t", Name: "My Cafe", Rating: 4.5, UserRatingsTotal: 100, Geometry: loc(47.602, -122.3)},
		{PlaceID: "b", Name: "Big Roasters", Rating: 4.7, UserRatingsTotal: 900, Geometry: loc(47.6, -122.28)},
		{PlaceID: "c", Name: "Tiny Spot", Rating: 5.0, UserRatingsTotal: 2, Geometry: loc(47.599, -122.3)},
	}
}

func newFakeGoogle() *fakeGoogle {
	return &fakeGoogle{
		places: testPlaces(),
		details: map[string]googleapi.PlaceDetails{
			"t": {PlaceID: "t", Name: "My Cafe", Rating: 4.5, UserRatingsTotal: 100, Website: "https://mycafe.example/",
				Reviews: []googleapi.Review{
					{AuthorName: "Ann", Rating: 5, Time: testNow.Add(-24 * time.Hour).Unix(), Text: "Great coffee and friendly staff"},
					{AuthorName: "Dan", Rating: 1, Time: testNow.Add(-400 * 24 * time.Hour).Unix(), Text: "Terrible coffee, rude staff"},
				}},
			"b": {PlaceID: "b", Name: "Big Roasters", Website: "https://bigroasters.example/"},
			"c": {PlaceID: "c", Name: "Tiny Spot"},
		},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestApp(t *testing.T, backend http.Handler) *app {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := defaultConfig()
	cfg.PlacesAPIKey = "test-key"
	cfg.PlacesBaseURL = srv.URL
	cfg.PageSpeedBaseURL = srv.URL
	cfg.MaxRetries = 0
	cfg.RateLimit = 1000
	require.NoError(t, cfg.Validate())

	opts := cfg.ClientOptions(quietLogger())
	opts.PageTokenDelay = -1
	opts.MinBackoff = time.Millisecond

	a := newApp(cfg, googleapi.NewClient(opts))
	a.now = func() time.Time { return testNow }
	t.Cleanup(a.jobs.cancelAll)
	return a
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleAnalyzeCompetitors(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()
	snapshot := filepath.Join(t.TempDir(), "snapshot.json")

	res, err := a.handleAnalyzeCompetitors(ctx, toolRequest("analyze_competitors", map[string]interface{}{
		"latitude":           47.6,
		"longitude":          -122.3,
		"keyword":            "coffee",
		"target_place_id":    "t",
		"save_snapshot_path": snapshot,
	}))
	require.NoError(t, err)
	text := resultText(t, res)

	expectedStrings := []string{
		"Competitor Analysis (Top 2 by Strength)",
		"Big Roasters",
		"Target: My Cafe (rank",
		"Snapshot saved to: " + snapshot,
	}
	for _, expected := range expectedStrings {
		assert.Contains(t, text, expected)
	}

	saved, err := loadNearbySnapshot(ctx, snapshot)
	require.NoError(t, err)
	assert.Len(t, saved.Results, 3)
}

func TestHandleAnalyzeCompetitorsFromSource(t *testing.T) {
	backend := newFakeGoogle()
	a := newTestApp(t, backend)

	path := filepath.Join(t.TempDir(), "nearby.json")
	_, err := writeSnapshot(path, &googleapi.NearbySearchResponse{Status: "OK", Results: testPlaces()})
	require.NoError(t, err)

	res, err := a.handleAnalyzeCompetitors(context.Background(), toolRequest("analyze_competitors", map[string]interface{}{
		"source_uri":    "file://" + path,
		"target_name":   "my cafe",
		"output_format": "json",
	}))
	require.NoError(t, err)

	var parsed analyzer.CompetitorAnalysisResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &parsed))
	assert.Equal(t, 2, parsed.Summary.CompetitorCount)
	require.NotNil(t, parsed.Target)
	assert.Equal(t, "t", parsed.Target.PlaceID)
	assert.Equal(t, int32(0), atomic.LoadInt32(&backend.calls))
}

func TestHandleAnalyzeCompetitorsArguments(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	_, err := a.handleAnalyzeCompetitors(ctx, toolRequest("analyze_competitors", map[string]interface{}{}))
	assert.ErrorContains(t, err, "missing or invalid required argument")

	_, err = a.handleAnalyzeCompetitors(ctx, toolRequest("analyze_competitors", map[string]interface{}{"latitude": 47.6}))
	assert.ErrorContains(t, err, "together")

	_, err = a.handleAnalyzeCompetitors(ctx, toolRequest("analyze_competitors", map[string]interface{}{
		"latitude": 47.6, "longitude": -122.3, "output_format": "yaml",
	}))
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestHandleAnalyzeReviews(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	res, err := a.handleAnalyzeReviews(ctx, toolRequest("analyze_reviews", map[string]interface{}{"place_id": "t"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Review Analysis: My Cafe")
	assert.Contains(t, text, "Sample: 2 reviews")

	res, err = a.handleAnalyzeReviews(ctx, toolRequest("analyze_reviews", map[string]interface{}{
		"place_query":   "My Cafe Seattle",
		"output_format": "json",
	}))
	require.NoError(t, err)
	var parsed analyzer.ReviewAnalysisResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &parsed))
	assert.Equal(t, "t", parsed.PlaceID)

	_, err = a.handleAnalyzeReviews(ctx, toolRequest("analyze_reviews", map[string]interface{}{"place_query": "Nowhere Diner"}))
	assert.ErrorIs(t, err, googleapi.ErrNotFound)

	_, err = a.handleAnalyzeReviews(ctx, toolRequest("analyze_reviews", map[string]interface{}{"place_id": "missing"}))
	assert.ErrorIs(t, err, googleapi.ErrNotFound)

	_, err = a.handleAnalyzeReviews(ctx, toolRequest("analyze_reviews", map[string]interface{}{}))
	assert.ErrorContains(t, err, "missing or invalid required argument")
}

func TestHandleAnalyzeReviewsFromSource(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	dir := t.TempDir()

	details := newFakeGoogle().details["t"]
	wrapped, err := json.Marshal(googleapi.PlaceDetailsResponse{Status: "OK", Result: details})
	require.NoError(t, err)
	bare, err := json.Marshal(details)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrapped.json"), wrapped, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bare.json"), bare, 0o644))

	for _, name := range []string{"wrapped.json", "bare.json"} {
		t.Run(name, func(t *testing.T) {
			res, err := a.handleAnalyzeReviews(context.Background(), toolRequest("analyze_reviews", map[string]interface{}{
				"source_uri": filepath.Join(dir, name),
			}))
			require.NoError(t, err)
			assert.Contains(t, resultText(t, res), "Review Analysis: My Cafe")
		})
	}
}

func TestHandleAnalyzePageSpeed(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	res, err := a.handleAnalyzePageSpeed(ctx, toolRequest("analyze_pagespeed", map[string]interface{}{
		"url":           "https://mycafe.example/",
		"output_format": "markdown",
	}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "PageSpeed Analysis: https://mycafe.example/")
	assert.Contains(t, text, "Eliminate render-blocking resources")

	_, err = a.handleAnalyzePageSpeed(ctx, toolRequest("analyze_pagespeed", map[string]interface{}{"url": "ftp://nope"}))
	assert.Error(t, err)

	_, err = a.handleAnalyzePageSpeed(ctx, toolRequest("analyze_pagespeed", map[string]interface{}{}))
	assert.ErrorContains(t, err, "missing or invalid required argument")
}

func TestHandleBenchmarkPageSpeed(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())

	res, err := a.handleBenchmarkPageSpeed(context.Background(), toolRequest("benchmark_pagespeed", map[string]interface{}{
		"urls": "https://a.example/, https://b.example/,https://a.example/",
	}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "PageSpeed Benchmark (2 sites)")
	assert.Contains(t, text, "https://b.example/")

	_, err = a.handleBenchmarkPageSpeed(context.Background(), toolRequest("benchmark_pagespeed", map[string]interface{}{}))
	assert.Error(t, err)
}

func TestHandleCompareSnapshots(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	dir := t.TempDir()

	before := testPlaces()
	after := testPlaces()[:2]
	after[1].UserRatingsTotal = 1200
	after = append(after, googleapi.Place{PlaceID: "n", Name: "New Kid", Rating: 4.9, UserRatingsTotal: 12})

	oldPath, err := writeSnapshot(filepath.Join(dir, "old.json"), &googleapi.NearbySearchResponse{Status: "OK", Results: before})
	require.NoError(t, err)
	newPath, err := writeSnapshot(filepath.Join(dir, "new.json"), &googleapi.NearbySearchResponse{Status: "OK", Results: after})
	require.NoError(t, err)

	res, err := a.handleCompareSnapshots(context.Background(), toolRequest("compare_competitor_snapshots", map[string]interface{}{
		"old_snapshot_uri": oldPath,
		"new_snapshot_uri": "file://" + newPath,
	}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "New Entrants (1):")
	assert.Contains(t, text, "New Kid")
	assert.Contains(t, text, "No Longer Listed (1):")
	assert.Contains(t, text, "Tiny Spot")
	assert.Contains(t, text, "Big Roasters")

	_, err = a.handleCompareSnapshots(context.Background(), toolRequest("compare_competitor_snapshots", map[string]interface{}{
		"old_snapshot_uri": oldPath,
	}))
	assert.ErrorContains(t, err, "new_snapshot_uri")
}

func TestCompetitorAudit(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	res, err := a.handleStartAudit(ctx, toolRequest("start_competitor_audit", map[string]interface{}{
		"latitude":        47.6,
		"longitude":       -122.3,
		"target_place_id": "t",
	}))
	require.NoError(t, err)
	text := resultText(t, res)
	firstLine := strings.SplitN(text, "\n", 2)[0]
	require.True(t, strings.HasPrefix(firstLine, "Competitor audit started with job ID: "))
	id := strings.TrimPrefix(firstLine, "Competitor audit started with job ID: ")

	status := waitJob(t, a.jobs, id)
	require.Equal(t, jobSucceeded, status.State, status.Err)

	res, err = a.handleGetAuditResult(ctx, toolRequest("get_audit_result", map[string]interface{}{"job_id": id}))
	require.NoError(t, err)
	report := resultText(t, res)

	expectedStrings := []string{
		"State: succeeded",
		"# Competitor Audit",
		"## Competitors",
		"- My Cafe: https://mycafe.example/",
		"- Big Roasters: https://bigroasters.example/",
		"- Tiny Spot: no website listed",
		"PageSpeed Benchmark (2 sites)",
	}
	for _, expected := range expectedStrings {
		assert.Contains(t, report, expected)
	}

	_, err = a.handleCancelAudit(ctx, toolRequest("cancel_audit", map[string]interface{}{"job_id": id}))
	assert.ErrorIs(t, err, errJobAlreadyFinished)
}

func TestCompetitorAuditCancel(t *testing.T) {
	backend := newFakeGoogle()
	backend.psiBlock = make(chan struct{})
	a := newTestApp(t, backend)
	ctx := context.Background()

	id := a.jobs.start("blocked audit", func(ctx context.Context) (string, error) {
		return a.runCompetitorAudit(ctx, auditParams{Origin: googleapi.LatLng{Lat: 47.6, Lng: -122.3}, RadiusMeters: 1500, TargetPlaceID: "t"})
	})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.psiCalls) > 0 }, 5*time.Second, 5*time.Millisecond)

	res, err := a.handleGetAuditResult(ctx, toolRequest("get_audit_result", map[string]interface{}{"job_id": id}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "still running")

	res, err = a.handleCancelAudit(ctx, toolRequest("cancel_audit", map[string]interface{}{"job_id": id}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Cancellation requested")

	status := waitJob(t, a.jobs, id)
	assert.Equal(t, jobCancelled, status.State)
}

func TestAuditArguments(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	_, err := a.handleStartAudit(ctx, toolRequest("start_competitor_audit", map[string]interface{}{}))
	assert.ErrorContains(t, err, "latitude/longitude")

	_, err = a.handleGetAuditResult(ctx, toolRequest("get_audit_result", map[string]interface{}{"job_id": "nope"}))
	assert.ErrorIs(t, err, errJobNotFound)

	_, err = a.handleCancelAudit(ctx, toolRequest("cancel_audit", map[string]interface{}{}))
	assert.ErrorContains(t, err, "job_id")

	noKey := newTestApp(t, newFakeGoogle())
	noKey.client = googleapi.NewClient(googleapi.Options{Logger: quietLogger()})
	_, err = noKey.handleStartAudit(ctx, toolRequest("start_competitor_audit", map[string]interface{}{
		"latitude": 47.6, "longitude": -122.3,
	}))
	assert.ErrorIs(t, err, googleapi.ErrMissingAPIKey)
}

func TestAuditHandlersLog(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetLevel(level)

	a := newTestApp(t, newFakeGoogle())
	ctx := context.Background()

	res, err := a.handleStartAudit(ctx, toolRequest("start_competitor_audit", map[string]interface{}{
		"latitude": 47.6, "longitude": -122.3, "target_place_id": "t",
	}))
	require.NoError(t, err)
	id := strings.TrimPrefix(strings.SplitN(resultText(t, res), "\n", 2)[0], "Competitor audit started with job ID: ")
	waitJob(t, a.jobs, id)

	_, err = a.handleGetAuditResult(ctx, toolRequest("get_audit_result", map[string]interface{}{"job_id": id}))
	require.NoError(t, err)
	_, err = a.handleCancelAudit(ctx, toolRequest("cancel_audit", map[string]interface{}{"job_id": id}))
	require.Error(t, err)

	messages := map[string]bool{}
	for _, e := range hook.AllEntries() {
		messages[e.Message] = true
	}
	expected := []string{
		"Handling start_competitor_audit",
		"start_competitor_audit finished",
		"Handling get_audit_result",
		"get_audit_result finished",
		"Handling cancel_audit",
		"cancel_audit failed",
	}
	for _, msg := range expected {
		assert.True(t, messages[msg], "missing log entry %q", msg)
	}
}

func TestSplitURLs(t *testing.T) {
	assert.Equal(t, []string{"https://a/", "https://b/"}, splitURLs(" https://a/,https://b/\nhttps://a/ "))
	assert.Empty(t, splitURLs(" , "))
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	a := newTestApp(t, newFakeGoogle())
	assert.NotNil(t, newMCPServer(a))
}

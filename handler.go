package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func stringArg(args map[string]interface{}, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

func numberArg(args map[string]interface{}, name string, def float64) float64 {
	if v, ok := args[name].(float64); ok {
		return v
	}
	return def
}

func requiredString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing or invalid required argument: %s (string)", name)
	}
	return strings.TrimSpace(v), nil
}

func optionalLatLng(args map[string]interface{}) (*googleapi.LatLng, error) {
	lat, hasLat := args["latitude"].(float64)
	lng, hasLng := args["longitude"].(float64)
	if !hasLat && !hasLng {
		return nil, nil
	}
	if !hasLat || !hasLng {
		return nil, fmt.Errorf("latitude and longitude must be given together")
	}
	return &googleapi.LatLng{Lat: lat, Lng: lng}, nil
}

func positiveInt(args map[string]interface{}, name string, def int) int {
	n := int(numberArg(args, name, float64(def)))
	if n <= 0 {
		return def
	}
	return n
}

// handleAnalyzeCompetitors serves the "analyze_competitors" tool.
func (a *app) handleAnalyzeCompetitors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	origin, err := optionalLatLng(args)
	if err != nil {
		return nil, err
	}
	p := competitorParams{
		Origin:           origin,
		Keyword:          stringArg(args, "keyword", ""),
		PlaceType:        stringArg(args, "place_type", ""),
		RadiusMeters:     positiveInt(args, "radius_meters", 1500),
		TargetPlaceID:    stringArg(args, "target_place_id", ""),
		TargetName:       stringArg(args, "target_name", ""),
		MaxPages:         positiveInt(args, "max_pages", 1),
		TopN:             positiveInt(args, "top_n", 10),
		Format:           stringArg(args, "output_format", "text"),
		SourceURI:        stringArg(args, "source_uri", ""),
		SaveSnapshotPath: stringArg(args, "save_snapshot_path", ""),
	}
	if p.Origin == nil && p.SourceURI == "" {
		return nil, fmt.Errorf("missing or invalid required argument: latitude/longitude (number) or source_uri (string)")
	}

	logrus.WithFields(logrus.Fields{
		"radius": p.RadiusMeters, "keyword": p.Keyword, "type": p.PlaceType, "source": p.SourceURI,
	}).Info("Handling analyze_competitors")

	result, err := a.analyzeCompetitors(ctx, p)
	if err != nil {
		logrus.WithError(err).Warn("analyze_competitors failed")
		return nil, err
	}
	logrus.WithField("length", len(result)).Info("analyze_competitors finished")
	return textResult(result), nil
}

// handleAnalyzeReviews serves the "analyze_reviews" tool.
func (a *app) handleAnalyzeReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	p := reviewParams{
		PlaceID:     stringArg(args, "place_id", ""),
		PlaceQuery:  stringArg(args, "place_query", ""),
		ReviewsSort: stringArg(args, "reviews_sort", "most_relevant"),
		Language:    stringArg(args, "language", ""),
		TopN:        positiveInt(args, "top_n", 5),
		Format:      stringArg(args, "output_format", "text"),
		SourceURI:   stringArg(args, "source_uri", ""),
	}
	if p.PlaceID == "" && p.PlaceQuery == "" && p.SourceURI == "" {
		return nil, fmt.Errorf("missing or invalid required argument: place_id, place_query or source_uri (string)")
	}

	logrus.WithFields(logrus.Fields{"place": p.PlaceID, "query": p.PlaceQuery, "sort": p.ReviewsSort, "source": p.SourceURI}).Info("Handling analyze_reviews")

	result, err := a.analyzeReviews(ctx, p)
	if err != nil {
		logrus.WithError(err).Warn("analyze_reviews failed")
		return nil, err
	}
	logrus.WithField("length", len(result)).Info("analyze_reviews finished")
	return textResult(result), nil
}

// handleAnalyzePageSpeed serves the "analyze_pagespeed" tool.
func (a *app) handleAnalyzePageSpeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	p := pageSpeedParams{
		URL:       stringArg(args, "url", ""),
		Strategy:  stringArg(args, "strategy", "mobile"),
		TopN:      positiveInt(args, "top_n", 5),
		Format:    stringArg(args, "output_format", "text"),
		SourceURI: stringArg(args, "source_uri", ""),
	}
	if p.URL == "" && p.SourceURI == "" {
		return nil, fmt.Errorf("missing or invalid required argument: url (string) or source_uri (string)")
	}

	logrus.WithFields(logrus.Fields{"url": p.URL, "strategy": p.Strategy, "source": p.SourceURI}).Info("Handling analyze_pagespeed")

	result, err := a.analyzePageSpeed(ctx, p)
	if err != nil {
		logrus.WithError(err).Warn("analyze_pagespeed failed")
		return nil, err
	}
	logrus.WithField("length", len(result)).Info("analyze_pagespeed finished")
	return textResult(result), nil
}

// handleBenchmarkPageSpeed serves the "benchmark_pagespeed" tool.
func (a *app) handleBenchmarkPageSpeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	raw, err := requiredString(args, "urls")
	if err != nil {
		return nil, err
	}
	urls := splitURLs(raw)
	strategy := stringArg(args, "strategy", "mobile")
	format := stringArg(args, "output_format", "text")

	logrus.WithFields(logrus.Fields{"sites": len(urls), "strategy": strategy}).Info("Handling benchmark_pagespeed")

	result, err := a.benchmarkPageSpeed(ctx, urls, strategy, format)
	if err != nil {
		logrus.WithError(err).Warn("benchmark_pagespeed failed")
		return nil, err
	}
	logrus.WithField("length", len(result)).Info("benchmark_pagespeed finished")
	return textResult(result), nil
}

// handleCompareSnapshots serves the "compare_competitor_snapshots" tool.
func (a *app) handleCompareSnapshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	oldURI, err := requiredString(args, "old_snapshot_uri")
	if err != nil {
		return nil, err
	}
	newURI, err := requiredString(args, "new_snapshot_uri")
	if err != nil {
		return nil, err
	}
	threshold := numberArg(args, "threshold", 0.1)
	if threshold < 0 {
		threshold = 0.1
	}
	limit := positiveInt(args, "limit", 10)

	logrus.WithFields(logrus.Fields{"old": oldURI, "new": newURI, "threshold": threshold}).Info("Handling compare_competitor_snapshots")

	result, err := a.compareSnapshots(ctx, oldURI, newURI, threshold, limit)
	if err != nil {
		logrus.WithError(err).Warn("compare_competitor_snapshots failed")
		return nil, err
	}
	logrus.WithField("length", len(result)).Info("compare_competitor_snapshots finished")
	return textResult(result), nil
}

// handleStartAudit serves the "start_competitor_audit" tool. The audit runs
// in the background; the result carries the job ID.
func (a *app) handleStartAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	origin, err := optionalLatLng(args)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, fmt.Errorf("missing or invalid required argument: latitude/longitude (number)")
	}
	if !a.client.HasPlacesKey() {
		return nil, googleapi.ErrMissingAPIKey
	}
	p := auditParams{
		Origin:        *origin,
		Keyword:       stringArg(args, "keyword", ""),
		PlaceType:     stringArg(args, "place_type", ""),
		RadiusMeters:  positiveInt(args, "radius_meters", 1500),
		TargetPlaceID: stringArg(args, "target_place_id", ""),
		TopN:          positiveInt(args, "top_n", 5),
		Strategy:      stringArg(args, "strategy", "mobile"),
	}

	logrus.WithFields(logrus.Fields{
		"lat":    p.Origin.Lat,
		"lng":    p.Origin.Lng,
		"radius": p.RadiusMeters,
		"topN":   p.TopN,
	}).Info("Handling start_competitor_audit")

	name := fmt.Sprintf("audit %.5f,%.5f r=%dm", p.Origin.Lat, p.Origin.Lng, p.RadiusMeters)
	id := a.jobs.start(name, func(ctx context.Context) (string, error) {
		return a.runCompetitorAudit(ctx, p)
	})
	logrus.WithField("job", id).Info("start_competitor_audit finished")

	resultText := fmt.Sprintf("Competitor audit started with job ID: %s", id)
	resultText += "\nUse 'get_audit_result' with this job ID to fetch the report, or 'cancel_audit' to stop it."
	return textResult(resultText), nil
}

// handleGetAuditResult serves the "get_audit_result" tool.
func (a *app) handleGetAuditResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request.Params.Arguments, "job_id")
	if err != nil {
		return nil, err
	}
	logrus.WithField("job", id).Info("Handling get_audit_result")

	status, err := a.jobs.get(id)
	if err != nil {
		logrus.WithError(err).WithField("job", id).Warn("get_audit_result failed")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"job": id, "state": status.State}).Info("get_audit_result finished")
	return textResult(formatJobStatus(status, a.now())), nil
}

// handleCancelAudit serves the "cancel_audit" tool.
func (a *app) handleCancelAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request.Params.Arguments, "job_id")
	if err != nil {
		return nil, err
	}
	logrus.WithField("job", id).Info("Handling cancel_audit")

	if err := a.jobs.cancel(id); err != nil {
		logrus.WithError(err).WithField("job", id).Warn("cancel_audit failed")
		return nil, err
	}
	logrus.WithField("job", id).Info("cancel_audit finished")
	return textResult(fmt.Sprintf("Cancellation requested for audit %s.", id)), nil
}

func formatJobStatus(s jobStatus, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Audit %s (%s)\n", s.ID, s.Name))
	b.WriteString(fmt.Sprintf("State: %s\n", s.State))
	b.WriteString(fmt.Sprintf("Started: %s (%s)\n", s.StartedAt.Format(time.RFC3339), humanize.RelTime(s.StartedAt, now, "ago", "from now")))
	if s.State == jobRunning {
		b.WriteString("The audit is still running, try again shortly.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Finished: %s (took %s)\n", s.FinishedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))
	if s.Err != "" {
		b.WriteString(fmt.Sprintf("Error: %s\n", s.Err))
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(s.Result)
	return b.String()
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

// app carries the shared state behind both the MCP tools and the CLI.
type app struct {
	cfg    *Config
	client *googleapi.Client
	jobs   *jobManager
	now    func() time.Time
}

func newApp(cfg *Config, client *googleapi.Client) *app {
	return &app{
		cfg:    cfg,
		client: client,
		jobs:   newJobManager(defaultJobRetention),
		now:    time.Now,
	}
}

type competitorParams struct {
	Origin           *googleapi.LatLng
	Keyword          string
	PlaceType        string
	RadiusMeters     int
	TargetPlaceID    string
	TargetName       string
	MaxPages         int
	TopN             int
	Format           string
	SourceURI        string
	SaveSnapshotPath string
}

func (a *app) analyzeCompetitors(ctx context.Context, p competitorParams) (string, error) {
	var resp *googleapi.NearbySearchResponse
	var err error
	if p.SourceURI != "" {
		if resp, err = loadNearbySnapshot(ctx, p.SourceURI); err != nil {
			return "", fmt.Errorf("failed to load competitor source: %w", err)
		}
	} else {
		if p.Origin == nil {
			return "", fmt.Errorf("latitude and longitude are required when source_uri is not given")
		}
		resp, err = a.client.NearbySearch(ctx, googleapi.NearbySearchRequest{
			Location:     *p.Origin,
			RadiusMeters: p.RadiusMeters,
			Keyword:      p.Keyword,
			Type:         p.PlaceType,
			MaxPages:     p.MaxPages,
		})
		if err != nil {
			return "", err
		}
	}

	origin := centroid(resp.Results)
	if p.Origin != nil {
		origin = *p.Origin
	}

	result, err := analyzer.AnalyzeCompetitors(analyzer.CompetitorInput{
		Origin:        origin,
		RadiusMeters:  p.RadiusMeters,
		TargetPlaceID: p.TargetPlaceID,
		TargetName:    p.TargetName,
		Places:        resp.Results,
	}, p.TopN, p.Format)
	if err != nil {
		return "", err
	}

	if p.SaveSnapshotPath != "" {
		path, err := writeSnapshot(p.SaveSnapshotPath, resp)
		if err != nil {
			return "", err
		}
		logrus.WithField("path", path).Info("Competitor snapshot saved")
		if p.Format != analyzer.FormatJSON {
			result += fmt.Sprintf("\nSnapshot saved to: %s\n", path)
		}
	}
	return result, nil
}

// centroid is the fallback origin for saved snapshots analyzed without coordinates.
func centroid(places []googleapi.Place) googleapi.LatLng {
	var c googleapi.LatLng
	if len(places) == 0 {
		return c
	}
	for _, p := range places {
		c.Lat += p.Geometry.Location.Lat
		c.Lng += p.Geometry.Location.Lng
	}
	c.Lat /= float64(len(places))
	c.Lng /= float64(len(places))
	return c
}

type reviewParams struct {
	PlaceID     string
	PlaceQuery  string
	ReviewsSort string
	Language    string
	TopN        int
	Format      string
	SourceURI   string
}

func (a *app) analyzeReviews(ctx context.Context, p reviewParams) (string, error) {
	var details *googleapi.PlaceDetails
	var err error
	switch {
	case p.SourceURI != "":
		if details, err = loadPlaceDetails(ctx, p.SourceURI); err != nil {
			return "", fmt.Errorf("failed to load review source: %w", err)
		}
	case p.PlaceID != "" || p.PlaceQuery != "":
		placeID := p.PlaceID
		if placeID == "" {
			if placeID, err = a.resolvePlace(ctx, p.PlaceQuery); err != nil {
				return "", err
			}
		}
		details, err = a.client.PlaceDetails(ctx, placeID, googleapi.DetailsOptions{
			ReviewsSort: p.ReviewsSort,
			Language:    p.Language,
		})
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("place_id or place_query is required when source_uri is not given")
	}
	return analyzer.AnalyzeReviews(details, a.now(), p.TopN, p.Format)
}

// resolvePlace turns a free-text business name into the place ID of the
// best text search match.
func (a *app) resolvePlace(ctx context.Context, query string) (string, error) {
	resp, err := a.client.TextSearch(ctx, query, nil, 0)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("%w: no place matches '%s'", googleapi.ErrNotFound, query)
	}
	best := resp.Results[0]
	logrus.WithFields(logrus.Fields{"query": query, "place": best.PlaceID, "name": best.Name}).Info("Resolved place query")
	return best.PlaceID, nil
}

type pageSpeedParams struct {
	URL       string
	Strategy  string
	TopN      int
	Format    string
	SourceURI string
}

func (a *app) analyzePageSpeed(ctx context.Context, p pageSpeedParams) (string, error) {
	var res *googleapi.PageSpeedResult
	var err error
	switch {
	case p.SourceURI != "":
		if res, err = loadPageSpeedResult(ctx, p.SourceURI); err != nil {
			return "", fmt.Errorf("failed to load pagespeed source: %w", err)
		}
	case p.URL != "":
		res, err = a.client.RunPageSpeed(ctx, googleapi.PageSpeedRequest{URL: p.URL, Strategy: p.Strategy})
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("url is required when source_uri is not given")
	}
	return analyzer.AnalyzePageSpeed(res, p.TopN, p.Format)
}

func (a *app) benchmarkPageSpeed(ctx context.Context, urls []string, strategy, format string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("at least one url is required")
	}
	outcomes, err := a.client.BenchmarkPageSpeed(ctx, urls, strategy, a.cfg.AuditConcurrency)
	if err != nil {
		return "", err
	}
	return analyzer.AnalyzePageSpeedBenchmark(outcomes, format)
}

func (a *app) compareSnapshots(ctx context.Context, oldURI, newURI string, threshold float64, limit int) (string, error) {
	oldSnap, err := loadNearbySnapshot(ctx, oldURI)
	if err != nil {
		return "", fmt.Errorf("failed to load old snapshot: %w", err)
	}
	newSnap, err := loadNearbySnapshot(ctx, newURI)
	if err != nil {
		return "", fmt.Errorf("failed to load new snapshot: %w", err)
	}
	return analyzer.CompareCompetitorSnapshots(oldSnap.Results, newSnap.Results, threshold, limit)
}

// splitURLs turns a comma or whitespace separated list into unique URLs.
func splitURLs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	seen := make(map[string]bool, len(fields))
	urls := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		urls = append(urls, f)
	}
	return urls
}

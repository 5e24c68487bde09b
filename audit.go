package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ZephyrDeng/market-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

type auditParams struct {
	Origin        googleapi.LatLng
	Keyword       string
	PlaceType     string
	RadiusMeters  int
	TargetPlaceID string
	TopN          int
	Strategy      string
}

type auditSite struct {
	Name    string
	Website string
	Err     error
}

// runCompetitorAudit searches the area, ranks competitors, looks up the
// websites of the strongest ones and benchmarks them. It returns a single
// markdown report.
func (a *app) runCompetitorAudit(ctx context.Context, p auditParams) (string, error) {
	if p.TopN <= 0 {
		p.TopN = 5
	}
	log := logrus.WithFields(logrus.Fields{"lat": p.Origin.Lat, "lng": p.Origin.Lng, "topN": p.TopN})

	// --- 1. Nearby search and ranking ---
	resp, err := a.client.NearbySearch(ctx, googleapi.NearbySearchRequest{
		Location:     p.Origin,
		RadiusMeters: p.RadiusMeters,
		Keyword:      p.Keyword,
		Type:         p.PlaceType,
	})
	if err != nil {
		return "", err
	}
	input := analyzer.CompetitorInput{
		Origin:        p.Origin,
		RadiusMeters:  p.RadiusMeters,
		TargetPlaceID: p.TargetPlaceID,
		Places:        resp.Results,
	}
	competitorReport, err := analyzer.AnalyzeCompetitors(input, p.TopN, analyzer.FormatMarkdown)
	if err != nil {
		return "", err
	}

	ranked, target := analyzer.RankCompetitors(input)
	if len(ranked) > p.TopN {
		ranked = ranked[:p.TopN]
	}
	audited := make([]analyzer.CompetitorStat, 0, len(ranked)+1)
	if target != nil {
		audited = append(audited, target.CompetitorStat)
	}
	audited = append(audited, ranked...)
	log.Infof("Audit ranked %d places, fetching details for %d", len(resp.Results), len(audited))

	// --- 2. Details for each audited place ---
	sites := make([]auditSite, len(audited))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.AuditConcurrency)
	for i, c := range audited {
		i, c := i, c
		sites[i].Name = c.Name
		g.Go(func() error {
			details, err := a.client.PlaceDetails(gctx, c.PlaceID, googleapi.DetailsOptions{})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithField("place", c.PlaceID).Warnf("details lookup failed: %v", err)
				sites[i].Err = err
				return nil
			}
			sites[i].Website = details.Website
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// --- 3. PageSpeed benchmark of the websites found ---
	var urls []string
	seen := make(map[string]bool)
	for _, s := range sites {
		if s.Website != "" && !seen[s.Website] {
			seen[s.Website] = true
			urls = append(urls, s.Website)
		}
	}
	var benchmarkReport string
	if len(urls) > 0 {
		outcomes, err := a.client.BenchmarkPageSpeed(ctx, urls, p.Strategy, a.cfg.AuditConcurrency)
		if err != nil {
			return "", err
		}
		if benchmarkReport, err = analyzer.AnalyzePageSpeedBenchmark(outcomes, analyzer.FormatMarkdown); err != nil {
			return "", err
		}
	}

	// --- 4. Combined report ---
	var b strings.Builder
	b.WriteString("# Competitor Audit\n\n")
	b.WriteString("## Competitors\n\n")
	b.WriteString(competitorReport)
	b.WriteString("\n## Websites\n\n")
	for _, s := range sites {
		switch {
		case s.Err != nil:
			b.WriteString(fmt.Sprintf("- %s: details unavailable (%v)\n", s.Name, s.Err))
		case s.Website == "":
			b.WriteString(fmt.Sprintf("- %s: no website listed\n", s.Name))
		default:
			b.WriteString(fmt.Sprintf("- %s: %s\n", s.Name, s.Website))
		}
	}
	if len(sites) == 0 {
		b.WriteString("No places to audit.\n")
	}
	b.WriteString("\n## PageSpeed Benchmark\n\n")
	if benchmarkReport == "" {
		b.WriteString("No websites found among the audited places.\n")
	} else {
		b.WriteString(benchmarkReport)
	}
	return b.String(), nil
}

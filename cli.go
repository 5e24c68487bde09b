package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

func newAnalyzeCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a single analysis and print the result",
	}
	cmd.AddCommand(
		newCompetitorsCmd(getApp),
		newReviewsCmd(getApp),
		newPageSpeedCmd(getApp),
		newCompareCmd(getApp),
	)
	return cmd
}

func newCompetitorsCmd(getApp func() *app) *cobra.Command {
	var p competitorParams
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "competitors",
		Short: "Rank competitors around a location",
		Example: "  market-analyzer analyze competitors --lat 47.6097 --lng -122.3331 --keyword coffee --target-name \"My Cafe\"\n" +
			"  market-analyzer analyze competitors --source ./snapshot.json --format json",
		RunE: func(cmd *cobra.Command, args []string) error {
			latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
			if latSet != lngSet {
				return fmt.Errorf("--lat and --lng must be given together")
			}
			if latSet {
				p.Origin = &googleapi.LatLng{Lat: lat, Lng: lng}
			}
			if p.Origin == nil && p.SourceURI == "" {
				return fmt.Errorf("either --lat/--lng or --source is required")
			}
			out, err := getApp().analyzeCompetitors(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&lat, "lat", 0, "latitude of the analysis origin")
	f.Float64Var(&lng, "lng", 0, "longitude of the analysis origin")
	f.StringVar(&p.Keyword, "keyword", "", "search keyword")
	f.StringVar(&p.PlaceType, "type", "", "Google place type filter")
	f.IntVar(&p.RadiusMeters, "radius", 1500, "search radius in meters")
	f.StringVar(&p.TargetPlaceID, "target-place-id", "", "place ID of your own business")
	f.StringVar(&p.TargetName, "target-name", "", "name of your own business")
	f.IntVar(&p.MaxPages, "max-pages", 1, "result pages to fetch (at most 3)")
	f.IntVar(&p.TopN, "top", 10, "number of competitors to list")
	f.StringVar(&p.Format, "format", "text", "output format (text, markdown, json)")
	f.StringVar(&p.SourceURI, "source", "", "saved nearby-search response to analyze instead of calling Google")
	f.StringVar(&p.SaveSnapshotPath, "save-snapshot", "", "write the raw search response to this path")
	return cmd
}

func newReviewsCmd(getApp func() *app) *cobra.Command {
	var p reviewParams
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Analyze the reviews of a place",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.PlaceID == "" && p.PlaceQuery == "" && p.SourceURI == "" {
				return fmt.Errorf("one of --place-id, --query or --source is required")
			}
			out, err := getApp().analyzeReviews(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.PlaceID, "place-id", "", "Google place ID")
	f.StringVar(&p.PlaceQuery, "query", "", "business name to resolve with text search")
	f.StringVar(&p.ReviewsSort, "sort", "most_relevant", "review sort (most_relevant, newest)")
	f.StringVar(&p.Language, "language", "", "preferred review language")
	f.IntVar(&p.TopN, "top", 5, "number of themes and complaints to list")
	f.StringVar(&p.Format, "format", "text", "output format (text, markdown, json)")
	f.StringVar(&p.SourceURI, "source", "", "saved place details response to analyze instead of calling Google")
	return cmd
}

func newPageSpeedCmd(getApp func() *app) *cobra.Command {
	var p pageSpeedParams
	var urls []string
	cmd := &cobra.Command{
		Use:   "pagespeed",
		Short: "Analyze one site, or benchmark several when --url is repeated",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if len(urls) > 1 {
				out, err := a.benchmarkPageSpeed(cmd.Context(), urls, p.Strategy, p.Format)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			if len(urls) == 1 {
				p.URL = urls[0]
			}
			if p.URL == "" && p.SourceURI == "" {
				return fmt.Errorf("either --url or --source is required")
			}
			out, err := a.analyzePageSpeed(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&urls, "url", nil, "site URL; repeat or comma separate to benchmark several")
	f.StringVar(&p.Strategy, "strategy", "mobile", "device to emulate (mobile, desktop)")
	f.IntVar(&p.TopN, "top", 5, "number of opportunities to list")
	f.StringVar(&p.Format, "format", "text", "output format (text, markdown, json)")
	f.StringVar(&p.SourceURI, "source", "", "saved runPagespeed response to analyze instead of calling Google")
	return cmd
}

func newCompareCmd(getApp func() *app) *cobra.Command {
	var oldURI, newURI string
	var threshold float64
	var limit int
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two saved competitor snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := getApp().compareSnapshots(cmd.Context(), oldURI, newURI, threshold, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&oldURI, "old", "", "older snapshot (path or URI)")
	f.StringVar(&newURI, "new", "", "newer snapshot (path or URI)")
	f.Float64Var(&threshold, "threshold", 0.1, "relative review growth to report (0.1 = 10%)")
	f.IntVar(&limit, "limit", 10, "maximum entries per section")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

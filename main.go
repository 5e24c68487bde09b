package main

import (
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

const (
	serverName    = "MarketAnalyzer"
	serverVersion = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, logLevel string
	var a *app
	getApp := func() *app { return a }

	root := &cobra.Command{
		Use:          "market-analyzer",
		Short:        "Competitor, review and PageSpeed analysis for local businesses",
		Long:         "market-analyzer serves MCP tools over stdio (the default) or runs a single analysis from the command line.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(envFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := setupLogging(cfg.LogLevel); err != nil {
				return err
			}
			client := googleapi.NewClient(cfg.ClientOptions(logrus.StandardLogger()))
			a = newApp(cfg, client)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(getApp())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides MARKET_ANALYZER_LOG_LEVEL")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(getApp())
		},
	})
	root.AddCommand(newAnalyzeCmd(getApp))
	return root
}

func serve(a *app) error {
	mcpServer := newMCPServer(a)
	setupSignalHandler(a.jobs)

	logrus.Infof("Starting %s MCP server via stdio...", serverName)
	err := server.ServeStdio(mcpServer)
	a.jobs.cancelAll()
	if err != nil {
		logrus.WithError(err).Error("Server error")
	}
	return err
}

func newMCPServer(a *app) *server.MCPServer {
	// --- 1. Server ---
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
		server.WithRecovery(),
	)

	// --- 2. Competitor analysis ---
	competitorsTool := mcp.NewTool("analyze_competitors",
		mcp.WithDescription("Find businesses around a location with Google Places and rank them as competitors by rating, review volume and distance."),
		mcp.WithNumber("latitude",
			mcp.Description("Latitude of the analysis origin. Required unless source_uri is given."),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude of the analysis origin. Required unless source_uri is given."),
		),
		mcp.WithString("keyword",
			mcp.Description("Search keyword, e.g. 'coffee'."),
		),
		mcp.WithString("place_type",
			mcp.Description("Google place type filter, e.g. 'cafe' or 'restaurant'."),
		),
		mcp.WithNumber("radius_meters",
			mcp.Description("Search radius in meters (1 to 50000)."),
			mcp.DefaultNumber(1500),
		),
		mcp.WithString("target_place_id",
			mcp.Description("Place ID of your own business, to report its position."),
		),
		mcp.WithString("target_name",
			mcp.Description("Name of your own business, used when target_place_id is not known."),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Result pages to fetch (20 places each, at most 3)."),
			mcp.DefaultNumber(1),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of competitors to list."),
			mcp.DefaultNumber(10),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format of the analysis."),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
		mcp.WithString("source_uri",
			mcp.Description("Analyze a saved nearby-search response instead of calling Google ('file://', 'http://', 'https://' or a local path)."),
		),
		mcp.WithString("save_snapshot_path",
			mcp.Description("Write the raw search response to this path for later use with compare_competitor_snapshots."),
		),
	)

	// --- 3. Reviews ---
	reviewsTool := mcp.NewTool("analyze_reviews",
		mcp.WithDescription("Analyze the Google reviews of a place: rating distribution, trend, sentiment, recurring themes and complaints."),
		mcp.WithString("place_id",
			mcp.Description("Google place ID. Required unless place_query or source_uri is given."),
		),
		mcp.WithString("place_query",
			mcp.Description("Business name and area, e.g. 'Blue Door Cafe Seattle'. Resolved to a place ID with text search."),
		),
		mcp.WithString("reviews_sort",
			mcp.Description("Which reviews Google returns."),
			mcp.DefaultString("most_relevant"),
			mcp.Enum("most_relevant", "newest"),
		),
		mcp.WithString("language",
			mcp.Description("Preferred review language, e.g. 'en'."),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of themes and complaints to list."),
			mcp.DefaultNumber(5),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format of the analysis."),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
		mcp.WithString("source_uri",
			mcp.Description("Analyze a saved place details response instead of calling Google."),
		),
	)

	// --- 4. PageSpeed ---
	pageSpeedTool := mcp.NewTool("analyze_pagespeed",
		mcp.WithDescription("Run PageSpeed Insights on a URL and summarize category scores, Core Web Vitals and top opportunities."),
		mcp.WithString("url",
			mcp.Description("Absolute http(s) URL to analyze. Required unless source_uri is given."),
		),
		mcp.WithString("strategy",
			mcp.Description("Device to emulate."),
			mcp.DefaultString("mobile"),
			mcp.Enum("mobile", "desktop"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of opportunities to list."),
			mcp.DefaultNumber(5),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format of the analysis."),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
		mcp.WithString("source_uri",
			mcp.Description("Analyze a saved runPagespeed response instead of calling Google."),
		),
	)

	benchmarkTool := mcp.NewTool("benchmark_pagespeed",
		mcp.WithDescription("Run PageSpeed Insights on several sites and rank them side by side."),
		mcp.WithString("urls",
			mcp.Description("Comma separated list of absolute http(s) URLs."),
			mcp.Required(),
		),
		mcp.WithString("strategy",
			mcp.Description("Device to emulate."),
			mcp.DefaultString("mobile"),
			mcp.Enum("mobile", "desktop"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format of the benchmark."),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
	)

	// --- 5. Snapshots ---
	compareTool := mcp.NewTool("compare_competitor_snapshots",
		mcp.WithDescription("Compare two saved competitor snapshots and report new entrants, closures, review growth and rating changes."),
		mcp.WithString("old_snapshot_uri",
			mcp.Description("URI of the older snapshot ('file://', 'http://', 'https://' or a local path)."),
			mcp.Required(),
		),
		mcp.WithString("new_snapshot_uri",
			mcp.Description("URI of the newer snapshot."),
			mcp.Required(),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Relative review growth to report (0.1 = 10%)."),
			mcp.DefaultNumber(0.1),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries per section."),
			mcp.DefaultNumber(10),
		),
	)

	// --- 6. Background audits ---
	startAuditTool := mcp.NewTool("start_competitor_audit",
		mcp.WithDescription("Start a background audit: nearby competitors, their websites and a PageSpeed benchmark. Returns a job ID."),
		mcp.WithNumber("latitude",
			mcp.Description("Latitude of the audit origin."),
			mcp.Required(),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude of the audit origin."),
			mcp.Required(),
		),
		mcp.WithString("keyword",
			mcp.Description("Search keyword."),
		),
		mcp.WithString("place_type",
			mcp.Description("Google place type filter."),
		),
		mcp.WithNumber("radius_meters",
			mcp.Description("Search radius in meters."),
			mcp.DefaultNumber(1500),
		),
		mcp.WithString("target_place_id",
			mcp.Description("Place ID of your own business, included in the benchmark."),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of strongest competitors to audit."),
			mcp.DefaultNumber(5),
		),
		mcp.WithString("strategy",
			mcp.Description("PageSpeed device to emulate."),
			mcp.DefaultString("mobile"),
			mcp.Enum("mobile", "desktop"),
		),
	)

	getAuditTool := mcp.NewTool("get_audit_result",
		mcp.WithDescription("Get the state and, when finished, the report of an audit started with 'start_competitor_audit'."),
		mcp.WithString("job_id",
			mcp.Description("Job ID returned by 'start_competitor_audit'."),
			mcp.Required(),
		),
	)

	cancelAuditTool := mcp.NewTool("cancel_audit",
		mcp.WithDescription("Cancel a running audit."),
		mcp.WithString("job_id",
			mcp.Description("Job ID returned by 'start_competitor_audit'."),
			mcp.Required(),
		),
	)

	// --- 7. Register handlers ---
	mcpServer.AddTool(competitorsTool, a.handleAnalyzeCompetitors)
	mcpServer.AddTool(reviewsTool, a.handleAnalyzeReviews)
	mcpServer.AddTool(pageSpeedTool, a.handleAnalyzePageSpeed)
	mcpServer.AddTool(benchmarkTool, a.handleBenchmarkPageSpeed)
	mcpServer.AddTool(compareTool, a.handleCompareSnapshots)
	mcpServer.AddTool(startAuditTool, a.handleStartAudit)
	mcpServer.AddTool(getAuditTool, a.handleGetAuditResult)
	mcpServer.AddTool(cancelAuditTool, a.handleCancelAudit)

	return mcpServer
}

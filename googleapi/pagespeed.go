package googleapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var DefaultPageSpeedCategories = []string{"performance", "accessibility", "best-practices", "seo"}

// RunPageSpeed runs a Lighthouse analysis of a single URL.
func (c *Client) RunPageSpeed(ctx context.Context, req PageSpeedRequest) (*PageSpeedResult, error) {
	if err := validateSiteURL(req.URL); err != nil {
		return nil, err
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = "mobile"
	}
	if strategy != "mobile" && strategy != "desktop" {
		return nil, fmt.Errorf("unsupported strategy %q, must be mobile or desktop", strategy)
	}
	categories := req.Categories
	if len(categories) == 0 {
		categories = DefaultPageSpeedCategories
	}

	query := url.Values{}
	query.Set("url", req.URL)
	query.Set("strategy", strategy)
	for _, cat := range categories {
		query.Add("category", strings.ToLower(strings.ReplaceAll(cat, "_", "-")))
	}
	if req.Locale != "" {
		query.Set("locale", req.Locale)
	}

	var res PageSpeedResult
	err := c.getJSON(ctx, "pagespeed", c.pageSpeedBase, "/runPagespeed", query, c.pageSpeedKey, &res, func() error {
		if rt := res.LighthouseResult.RuntimeError; rt != nil && rt.Code != "" && rt.Code != "NO_ERROR" {
			return &APIError{Service: "pagespeed", Status: rt.Code, Message: rt.Message}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pagespeed for %s: %w", req.URL, err)
	}
	return &res, nil
}

// BenchmarkPageSpeed runs several sites with at most concurrency runs in
// flight. Per-site failures are reported in the outcome, never as the
// returned error; that is reserved for a cancelled context. Outcomes keep
// the order of urls.
func (c *Client) BenchmarkPageSpeed(ctx context.Context, urls []string, strategy string, concurrency int) ([]PageSpeedOutcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	outcomes := make([]PageSpeedOutcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		i, u := i, u
		outcomes[i].URL = u
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i].Err = gctx.Err()
				return nil
			}
			res, err := c.RunPageSpeed(gctx, PageSpeedRequest{URL: u, Strategy: strategy})
			if err != nil {
				c.log.WithFields(logrus.Fields{"url": u}).Warnf("pagespeed run failed: %v", err)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func validateSiteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

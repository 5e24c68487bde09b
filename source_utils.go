package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

// maxSourceBytes caps how much of a saved response is read.
const maxSourceBytes = 64 << 20

// openSource opens a saved API response for reading. A location without a
// scheme is a local path; file:// and http(s):// URIs are also accepted.
// Remote documents are streamed straight from the response body.
func openSource(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.Contains(location, "://") {
		return openLocalSource(location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid source URI '%s': %w", location, err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("source URI '%s' has no path", location)
		}
		return openLocalSource(u.Path)
	case "http", "https":
		return fetchSource(ctx, location)
	default:
		return nil, fmt.Errorf("unsupported URI scheme '%s': use a local path, file://, http:// or https://", u.Scheme)
	}
}

func openLocalSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	logrus.WithField("path", f.Name()).Debug("Reading local source")
	return f, nil
}

// limitedBody keeps the response body closable behind a size limit.
type limitedBody struct {
	io.Reader
	io.Closer
}

func fetchSource(ctx context.Context, location string) (io.ReadCloser, error) {
	logrus.WithField("url", location).Info("Fetching remote source")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for '%s': %w", location, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source '%s': %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch source '%s': HTTP %d", location, resp.StatusCode)
	}
	return limitedBody{Reader: io.LimitReader(resp.Body, maxSourceBytes), Closer: resp.Body}, nil
}

// loadJSONSource decodes the document at location into out.
func loadJSONSource(ctx context.Context, location string, out interface{}) error {
	src, err := openSource(ctx, location)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := json.NewDecoder(src).Decode(out); err != nil {
		return fmt.Errorf("failed to parse source '%s': %w", location, err)
	}
	return nil
}

func loadNearbySnapshot(ctx context.Context, uriStr string) (*googleapi.NearbySearchResponse, error) {
	var resp googleapi.NearbySearchResponse
	if err := loadJSONSource(ctx, uriStr, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "OK" && resp.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("snapshot '%s' has status %s", uriStr, resp.Status)
	}
	return &resp, nil
}

// loadPlaceDetails accepts either a full details response ({"result": ...})
// or the bare result object.
func loadPlaceDetails(ctx context.Context, uriStr string) (*googleapi.PlaceDetails, error) {
	var raw map[string]json.RawMessage
	if err := loadJSONSource(ctx, uriStr, &raw); err != nil {
		return nil, err
	}
	body, ok := raw["result"]
	if !ok {
		var err error
		if body, err = json.Marshal(raw); err != nil {
			return nil, err
		}
	}
	var details googleapi.PlaceDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to decode place details from '%s': %w", uriStr, err)
	}
	return &details, nil
}

func loadPageSpeedResult(ctx context.Context, uriStr string) (*googleapi.PageSpeedResult, error) {
	var res googleapi.PageSpeedResult
	if err := loadJSONSource(ctx, uriStr, &res); err != nil {
		return nil, err
	}
	if len(res.LighthouseResult.Categories) == 0 && len(res.LighthouseResult.Audits) == 0 {
		return nil, fmt.Errorf("source '%s' does not contain a lighthouseResult", uriStr)
	}
	return &res, nil
}

// writeSnapshot saves a nearby-search response in the format
// compare_competitor_snapshots reads back.
func writeSnapshot(path string, resp *googleapi.NearbySearchResponse) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", path, err)
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot '%s': %w", absPath, err)
	}
	return absPath, nil
}

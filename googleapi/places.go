package googleapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusNotFound       = "NOT_FOUND"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusUnknownError   = "UNKNOWN_ERROR"

	maxNearbyPages  = 3
	maxRadiusMeters = 50000
)

var detailsFields = []string{
	"place_id",
	"name",
	"formatted_address",
	"formatted_phone_number",
	"geometry",
	"rating",
	"user_ratings_total",
	"website",
	"url",
	"business_status",
	"types",
	"price_level",
	"reviews",
}

// placesStatus maps a Places status field onto the error model. A nil
// return means the payload is usable (OK or ZERO_RESULTS).
func placesStatus(status, message string) error {
	switch status {
	case statusOK, statusZeroResults:
		return nil
	case statusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case statusOverQueryLimit, statusUnknownError:
		return &retryableError{err: &APIError{Service: "places", Status: status, Message: message}}
	default:
		return &APIError{Service: "places", Status: status, Message: message}
	}
}

func formatLatLng(l LatLng) string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

// NearbySearch finds places around a location, following next_page_token
// up to req.MaxPages pages.
func (c *Client) NearbySearch(ctx context.Context, req NearbySearchRequest) (*NearbySearchResponse, error) {
	if c.placesKey == "" {
		return nil, ErrMissingAPIKey
	}
	if req.RadiusMeters <= 0 || req.RadiusMeters > maxRadiusMeters {
		return nil, fmt.Errorf("radius must be between 1 and %d meters, got %d", maxRadiusMeters, req.RadiusMeters)
	}
	if err := validateLatLng(req.Location); err != nil {
		return nil, err
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	if maxPages > maxNearbyPages {
		maxPages = maxNearbyPages
	}

	query := url.Values{}
	query.Set("location", formatLatLng(req.Location))
	query.Set("radius", strconv.Itoa(req.RadiusMeters))
	if req.Keyword != "" {
		query.Set("keyword", req.Keyword)
	}
	if req.Type != "" {
		query.Set("type", req.Type)
	}

	combined := &NearbySearchResponse{Status: statusZeroResults}
	for page := 1; page <= maxPages; page++ {
		var resp NearbySearchResponse
		err := c.getJSON(ctx, "places", c.placesBase, "/nearbysearch/json", query, c.placesKey, &resp, func() error {
			return placesStatus(resp.Status, resp.ErrorMessage)
		})
		if err != nil {
			return nil, fmt.Errorf("nearby search page %d: %w", page, err)
		}

		combined.Results = append(combined.Results, resp.Results...)
		combined.HTMLAttributions = append(combined.HTMLAttributions, resp.HTMLAttributions...)
		if resp.Status == statusOK {
			combined.Status = statusOK
		}

		c.log.WithFields(logrus.Fields{
			"page":    page,
			"results": len(resp.Results),
		}).Debug("nearby search page fetched")

		if resp.NextPageToken == "" || page == maxPages {
			combined.NextPageToken = resp.NextPageToken
			break
		}

		// A fresh next_page_token is rejected with INVALID_REQUEST for a short while.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pageTokenDelay):
		}
		query = url.Values{}
		query.Set("pagetoken", resp.NextPageToken)
	}

	return combined, nil
}

// TextSearch resolves a free-text query, optionally biased to a location.
func (c *Client) TextSearch(ctx context.Context, text string, near *LatLng, radiusMeters int) (*NearbySearchResponse, error) {
	if c.placesKey == "" {
		return nil, ErrMissingAPIKey
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text search query must not be empty")
	}

	query := url.Values{}
	query.Set("query", text)
	if near != nil {
		if err := validateLatLng(*near); err != nil {
			return nil, err
		}
		query.Set("location", formatLatLng(*near))
		if radiusMeters > 0 {
			query.Set("radius", strconv.Itoa(radiusMeters))
		}
	}

	var resp NearbySearchResponse
	err := c.getJSON(ctx, "places", c.placesBase, "/textsearch/json", query, c.placesKey, &resp, func() error {
		return placesStatus(resp.Status, resp.ErrorMessage)
	})
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return &resp, nil
}

// PlaceDetails fetches one place including up to five reviews.
func (c *Client) PlaceDetails(ctx context.Context, placeID string, opts DetailsOptions) (*PlaceDetails, error) {
	if c.placesKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(placeID) == "" {
		return nil, fmt.Errorf("place_id must not be empty")
	}

	query := url.Values{}
	query.Set("place_id", placeID)
	query.Set("fields", strings.Join(detailsFields, ","))
	switch opts.ReviewsSort {
	case "", "most_relevant":
	case "newest":
		query.Set("reviews_sort", "newest")
	default:
		return nil, fmt.Errorf("unsupported reviews sort %q", opts.ReviewsSort)
	}
	if opts.Language != "" {
		query.Set("language", opts.Language)
	}

	var resp PlaceDetailsResponse
	err := c.getJSON(ctx, "places", c.placesBase, "/details/json", query, c.placesKey, &resp, func() error {
		if resp.Status == statusZeroResults {
			return fmt.Errorf("%w: %s", ErrNotFound, placeID)
		}
		return placesStatus(resp.Status, resp.ErrorMessage)
	})
	if err != nil {
		return nil, fmt.Errorf("place details for %s: %w", placeID, err)
	}
	return &resp.Result, nil
}

func validateLatLng(l LatLng) error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", l.Lat)
	}
	if l.Lng < -180 || l.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", l.Lng)
	}
	return nil
}

package googleapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAPIKey = errors.New("google api key is not configured")
	ErrNotFound      = errors.New("place not found")
	ErrQuotaExceeded = errors.New("google api quota exceeded")
)

// APIError is a non-OK HTTP status or a non-OK Places status field.
type APIError struct {
	Service    string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Status != "" && e.Message != "":
		return fmt.Sprintf("%s api error (%s): %s", e.Service, e.Status, e.Message)
	case e.Status != "":
		return fmt.Sprintf("%s api error (%s)", e.Service, e.Status)
	default:
		return fmt.Sprintf("%s api error (%d): %s", e.Service, e.StatusCode, e.Message)
	}
}

func asRetryable(err error, target **retryableError) bool {
	return err != nil && errors.As(err, target)
}

func isQuota(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == statusOverQueryLimit
}

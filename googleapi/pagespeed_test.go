package googleapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePageSpeedBody = `{
	"id": "https://alpha.example/",
	"loadingExperience": {
		"overall_category": "AVERAGE",
		"metrics": {
			"LARGEST_CONTENTFUL_PAINT_MS": {"percentile": 2900, "category": "AVERAGE"}
		}
	},
	"lighthouseResult": {
		"finalUrl": "https://alpha.example/",
		"lighthouseVersion": "12.0.0",
		"categories": {
			"performance": {"id": "performance", "title": "Performance", "score": 0.72},
			"seo": {"id": "seo", "title": "SEO", "score": 0.91}
		},
		"audits": {
			"largest-contentful-paint": {"id": "largest-contentful-paint", "title": "Largest Contentful Paint", "score": 0.4, "displayValue": "3.1 s", "numericValue": 3100}
		}
	}
}`

func TestRunPageSpeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runPagespeed", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "https://alpha.example/", q.Get("url"))
		assert.Equal(t, "desktop", q.Get("strategy"))
		assert.Equal(t, "psi-key", q.Get("key"))
		assert.Equal(t, []string{"performance", "best-practices"}, q["category"])
		w.Write([]byte(samplePageSpeedBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	res, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{
		URL:        "https://alpha.example/",
		Strategy:   "desktop",
		Categories: []string{"performance", "BEST_PRACTICES"},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://alpha.example/", res.LighthouseResult.FinalURL)
	require.NotNil(t, res.LighthouseResult.Categories["performance"].Score)
	assert.InDelta(t, 0.72, *res.LighthouseResult.Categories["performance"].Score, 1e-9)
	require.NotNil(t, res.LoadingExperience)
	assert.Equal(t, 2900.0, res.LoadingExperience.Metrics["LARGEST_CONTENTFUL_PAINT_MS"].Percentile)
}

func TestRunPageSpeedDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "mobile", q.Get("strategy"))
		assert.Equal(t, DefaultPageSpeedCategories, q["category"])
		w.Write([]byte(samplePageSpeedBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	_, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{URL: "https://alpha.example/"})
	require.NoError(t, err)
}

func TestRunPageSpeedValidation(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	for _, bad := range []string{"", "alpha.example", "ftp://alpha.example", "https://"} {
		_, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{URL: bad})
		assert.Error(t, err, bad)
	}
	_, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{URL: "https://alpha.example", Strategy: "tablet"})
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRunPageSpeedRuntimeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lighthouseResult": {"runtimeError": {"code": "ERRORED_DOCUMENT_REQUEST", "message": "Lighthouse was unable to reliably load the page"}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	_, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{URL: "https://down.example"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERRORED_DOCUMENT_REQUEST")
}

func TestRunPageSpeedClientErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "Lighthouse returned error: FAILED_DOCUMENT_REQUEST", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	_, err := client.RunPageSpeed(context.Background(), PageSpeedRequest{URL: "https://down.example"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILED_DOCUMENT_REQUEST")
	assert.Contains(t, err.Error(), "400")
}

func TestBenchmarkPageSpeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("url"), "broken") {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "unreachable"}}`))
			return
		}
		w.Write([]byte(samplePageSpeedBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	urls := []string{"https://a.example", "https://broken.example", "https://c.example"}
	outcomes, err := client.BenchmarkPageSpeed(context.Background(), urls, "mobile", 2)

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for i, u := range urls {
		assert.Equal(t, u, outcomes[i].URL)
	}
	assert.NotNil(t, outcomes[0].Result)
	assert.Nil(t, outcomes[1].Result)
	assert.Error(t, outcomes[1].Err)
	assert.NotNil(t, outcomes[2].Result)
}

func TestBenchmarkPageSpeedCancelled(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := client.BenchmarkPageSpeed(ctx, []string{"https://a.example"}, "mobile", 1)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

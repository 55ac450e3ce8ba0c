package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clawfeed/fetch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBodyAndContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AI-Digest/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><title>hi</title></html>"))
	}))
	defer server.Close()

	result, err := fetch.NewClient().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", result.ContentType)
	assert.Equal(t, "<html><title>hi</title></html>", string(result.Body))
}

func TestFetchTruncatesLargeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 300_000)))
	}))
	defer server.Close()

	result, err := fetch.NewClient().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, result.Body, 200_000)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("made it"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	result, err := fetch.NewClient().Fetch(context.Background(), server.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, "made it", string(result.Body))
}

func TestFetchRedirectHopsDrainBudget(t *testing.T) {
	// Every hop costs a second of budget, so a redirect loop exhausts a two
	// second budget after two hops without waiting on the network.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	client := fetch.NewClientWithBudget(2 * time.Second)
	_, err := client.Fetch(context.Background(), server.URL+"/loop")
	assert.ErrorIs(t, err, fetch.ErrTimeout)
}

func TestFetchSlowServerTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("too late"))
	}))
	defer server.Close()

	client := fetch.NewClientWithBudget(50 * time.Millisecond)
	_, err := client.Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, fetch.ErrTimeout)
}

func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestFetchRecordsMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/done", http.StatusFound)
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	attemptsBefore := counterValue(t, "clawfeed_fetch_attempts_total")
	redirectsBefore := counterValue(t, "clawfeed_fetch_redirects_total")
	errorsBefore := counterValue(t, "clawfeed_fetch_errors_total")

	_, err := fetch.NewClient().Fetch(context.Background(), server.URL+"/hop")
	require.NoError(t, err)

	client := fetch.NewClientWithBudget(2 * time.Second)
	_, err = client.Fetch(context.Background(), server.URL+"/hop")
	require.NoError(t, err)

	assert.Equal(t, attemptsBefore+2, counterValue(t, "clawfeed_fetch_attempts_total"))
	assert.Equal(t, redirectsBefore+2, counterValue(t, "clawfeed_fetch_redirects_total"))
	assert.Equal(t, errorsBefore, counterValue(t, "clawfeed_fetch_errors_total"))
}

func TestFetchConnectionErrorIsWrapped(t *testing.T) {
	// Port 1 is never listening
	_, err := fetch.NewClient().Fetch(context.Background(), "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fetch.ErrTimeout)
	assert.Contains(t, err.Error(), "request failed")
}

package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testFetcher(ts *httptest.Server) *HTTPFetcher {
	u, _ := url.Parse(ts.URL)
	return NewHTTPFetcher(HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RateLimiters: map[string]*rate.Limiter{
			u.Host: rate.NewLimiter(rate.Inf, 1),
		},
	})
}

func TestDownload_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "archetype-cli/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("oews data"))
	}))
	defer ts.Close()

	f := testFetcher(ts)
	body, err := f.Download(context.Background(), ts.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "oews data", string(data))
}

func TestDownload_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := testFetcher(ts)
	_, err := f.Download(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDownload_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := testFetcher(ts)
	body, err := f.Download(context.Background(), ts.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadToFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("zip bytes"))
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "oews_2023.zip")
	f := testFetcher(ts)
	n, err := f.DownloadToFile(context.Background(), ts.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))
}

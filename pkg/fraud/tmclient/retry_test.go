package tmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClientForRetry(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		m2m:        &tokenCache{token: "tok-1", expiresAt: time.Now().Add(time.Hour)},
		breaker:    gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "tm_api_test"}),
	}
}

func TestDoJSON_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	c := newTestClientForRetry(server.Client(), server.URL)

	var out map[string]string
	err := c.doJSON(context.Background(), "GET", "/v1/ping", &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "must retry twice after two 5xx responses before succeeding")
}

func TestDoJSON_DoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClientForRetry(server.Client(), server.URL)

	var out map[string]string
	err := c.doJSON(context.Background(), "GET", "/v1/ping", &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a 4xx response must fail on the first attempt, no retry")
}

func TestDoJSON_GivesUpAfterExhaustingRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClientForRetry(server.Client(), server.URL)

	var out map[string]string
	err := c.doJSON(context.Background(), "GET", "/v1/ping", &out)
	require.Error(t, err)
	assert.Equal(t, int32(retryAttempts), atomic.LoadInt32(&calls), "must stop after the bounded number of attempts")
}

// failThenSucceedTransport simulates a transport-level error (connection
// refused, DNS failure, etc.) on its first N calls, then succeeds.
type failThenSucceedTransport struct {
	failCount int32
	calls     int32
	next      http.RoundTripper
}

func (f *failThenSucceedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failCount {
		return nil, errors.New("simulated transport failure")
	}
	return f.next.RoundTrip(req)
}

func TestDoJSON_RetriesOnTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	transport := &failThenSucceedTransport{failCount: 1, next: http.DefaultTransport}
	httpClient := &http.Client{Transport: transport}
	c := newTestClientForRetry(httpClient, server.URL)

	var out map[string]string
	err := c.doJSON(context.Background(), "GET", "/v1/ping", &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&transport.calls))
}

func TestDoJSON_ContextCancellationAbortsBackoffWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClientForRetry(server.Client(), server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]string
	err := c.doJSON(ctx, "GET", "/v1/ping", &out)
	require.Error(t, err)
}

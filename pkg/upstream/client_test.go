package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crawlgate/crawlgate/pkg/crawlerrors"
)

func newTestClient(t *testing.T, baseURL string, mutate func(cfg *Config)) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := &Config{
		BaseURL: baseURL,
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMS: 1,
			BackoffFactor:  2,
			MaxDelayMS:     10,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	client := NewClient(cfg, zerolog.Nop())

	var delays []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return client, &delays
}

func TestScrapeSendsTranscodedBodyAndAuth(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Write([]byte(`{"formats":{"markdown":"# Hi"}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.APIKey = "secret"
	})
	payload, err := client.Scrape(context.Background(), "https://example.com", map[string]any{
		"onlyMainContent": true,
	})
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody["url"] != "https://example.com" {
		t.Fatalf("expected url in body, got %#v", gotBody)
	}
	if gotBody["only_main_content"] != true {
		t.Fatalf("expected snake_case key in body, got %#v", gotBody)
	}
	m, ok := payload.(map[string]any)
	if !ok || m["formats"] == nil {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestExecuteServesSecondCallFromCache(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"markdown":"cached"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	first, err := client.Scrape(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("first scrape failed: %v", err)
	}
	second, err := client.Scrape(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("second scrape failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one network call, got %d", calls.Load())
	}
	if first.(map[string]any)["markdown"] != second.(map[string]any)["markdown"] {
		t.Fatal("expected cached result to equal the first result")
	}
	if stats := client.CacheStats(); stats.Size != 1 {
		t.Fatalf("expected one cache entry, got %d", stats.Size)
	}
}

func TestCrawlIsNeverCached(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"id":"job-1","status":"queued"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	for i := 0; i < 2; i++ {
		if _, err := client.Crawl(context.Background(), "https://example.com", nil); err != nil {
			t.Fatalf("crawl %d failed: %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two network calls for a job-starting operation, got %d", calls.Load())
	}
}

func TestRetryableFailureExhaustsBudget(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"upstream exploded"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL, nil)
	_, err := client.Scrape(context.Background(), "https://example.com", nil)
	if err == nil {
		t.Fatal("expected scrape to fail")
	}
	if calls.Load() != 4 {
		t.Fatalf("expected maxRetries+1 = 4 attempts, got %d", calls.Load())
	}
	if len(*delays) != 3 {
		t.Fatalf("expected 3 backoff waits, got %d", len(*delays))
	}

	var classified *crawlerrors.Classified
	if !errors.As(err, &classified) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if classified.Kind != crawlerrors.KindServer {
		t.Fatalf("expected SERVER kind, got %s", classified.Kind)
	}
	if classified.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", classified.HTTPStatus)
	}
}

func TestBackoffDelaysGrowExponentiallyUpToCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Retry.MaxRetries = 5
		cfg.Retry.InitialDelayMS = 2
		cfg.Retry.MaxDelayMS = 6
	})
	if _, err := client.Scrape(context.Background(), "https://example.com", nil); err == nil {
		t.Fatal("expected scrape to fail")
	}
	want := []time.Duration{
		2 * time.Millisecond,
		4 * time.Millisecond,
		6 * time.Millisecond,
		6 * time.Millisecond,
		6 * time.Millisecond,
	}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d waits, got %d", len(want), len(*delays))
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, d, want[i])
		}
	}
}

func TestNonRetryableFailureFailsImmediately(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL, nil)
	_, err := client.Scrape(context.Background(), "https://example.com", nil)
	if err == nil {
		t.Fatal("expected scrape to fail")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no backoff waits, got %d", len(*delays))
	}

	var classified *crawlerrors.Classified
	if !errors.As(err, &classified) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if classified.Kind != crawlerrors.KindAuth || classified.Retryable {
		t.Fatalf("expected non-retryable AUTH, got %+v", classified)
	}
}

func TestRetryAfterHeaderOverridesBackoff(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"slow down"}`, http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"markdown":"ok"}`))
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Retry.MaxDelayMS = 5000
	})
	if _, err := client.Scrape(context.Background(), "https://example.com", nil); err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if len(*delays) != 1 {
		t.Fatalf("expected one wait, got %d", len(*delays))
	}
	if (*delays)[0] != time.Second {
		t.Fatalf("expected Retry-After to set a 1s delay, got %v", (*delays)[0])
	}
}

func TestEmptyResponseBodyBecomesEmptyObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	payload, err := client.Crawl(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected empty object, got %T", payload)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty object, got %#v", m)
	}
}

func TestCheckCrawlStatusUsesGetWithJobIDInPath(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":"job-42","status":"scraping"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	if _, err := client.CheckCrawlStatus(context.Background(), "job-42"); err != nil {
		t.Fatalf("status check failed: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("expected GET, got %s", gotMethod)
	}
	if gotPath != "/v1/crawl/job-42" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestConnectionFailureClassifiedAsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client, _ := newTestClient(t, baseURL, func(cfg *Config) {
		cfg.Retry.MaxRetries = 1
	})
	_, err := client.Scrape(context.Background(), "https://example.com", nil)
	if err == nil {
		t.Fatal("expected scrape to fail")
	}
	var classified *crawlerrors.Classified
	if !errors.As(err, &classified) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if classified.Kind != crawlerrors.KindNetwork || !classified.Retryable {
		t.Fatalf("expected retryable NETWORK, got %+v", classified)
	}
}

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/crawlgate/crawlgate/pkg/crawlerrors"
)

// maxErrorBodyBytes caps how much of an upstream error body is kept for
// diagnostics.
const maxErrorBodyBytes = 2048

// UpstreamClient is the typed capability the tool layer invokes: one
// strongly-typed method per operation. The payload is the upstream's JSON
// response decoded into untyped data; its shape is owned by the upstream.
type UpstreamClient interface {
	Scrape(ctx context.Context, pageURL string, params map[string]any) (any, error)
	Crawl(ctx context.Context, pageURL string, params map[string]any) (any, error)
	Map(ctx context.Context, pageURL string, params map[string]any) (any, error)
	Extract(ctx context.Context, urls []string, params map[string]any) (any, error)
	CheckCrawlStatus(ctx context.Context, jobID string) (any, error)
	Search(ctx context.Context, query string, params map[string]any) (any, error)
	DeepResearch(ctx context.Context, query string, params map[string]any) (any, error)
}

// Client implements UpstreamClient against the crawl service's HTTP API.
type Client struct {
	cfg   *Config
	http  *http.Client
	cache *Cache
	log   zerolog.Logger
	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ UpstreamClient = (*Client)(nil)

// NewClient creates a client for the configured upstream.
func NewClient(cfg *Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.timeout()},
		cache: NewCache(cfg.Cache.Capacity),
		log:   log,
		sleep: sleepContext,
	}
}

// CacheStats exposes the response cache's occupancy.
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

func (c *Client) Scrape(ctx context.Context, pageURL string, params map[string]any) (any, error) {
	return c.execute(ctx, OpScrape, c.withPrimary(OpScrape, pageURL, params))
}

func (c *Client) Crawl(ctx context.Context, pageURL string, params map[string]any) (any, error) {
	return c.execute(ctx, OpCrawl, c.withPrimary(OpCrawl, pageURL, params))
}

func (c *Client) Map(ctx context.Context, pageURL string, params map[string]any) (any, error) {
	return c.execute(ctx, OpMap, c.withPrimary(OpMap, pageURL, params))
}

func (c *Client) Extract(ctx context.Context, urls []string, params map[string]any) (any, error) {
	body := TranscodeParams(params)
	if body == nil {
		body = make(map[string]any, 1)
	}
	list := make([]any, len(urls))
	for i, u := range urls {
		list[i] = u
	}
	body[OpExtract.ArgKey()] = list
	return c.execute(ctx, OpExtract, body)
}

func (c *Client) CheckCrawlStatus(ctx context.Context, jobID string) (any, error) {
	return c.execute(ctx, OpCheckStatus, map[string]any{OpCheckStatus.ArgKey(): jobID})
}

func (c *Client) Search(ctx context.Context, query string, params map[string]any) (any, error) {
	return c.execute(ctx, OpSearch, c.withPrimary(OpSearch, query, params))
}

func (c *Client) DeepResearch(ctx context.Context, query string, params map[string]any) (any, error) {
	return c.execute(ctx, OpDeepResearch, c.withPrimary(OpDeepResearch, query, params))
}

// withPrimary transcodes the remainder parameters and slots the primary
// argument under its wire key.
func (c *Client) withPrimary(op Operation, primary string, params map[string]any) map[string]any {
	body := TranscodeParams(params)
	if body == nil {
		body = make(map[string]any, 1)
	}
	body[op.ArgKey()] = primary
	return body
}

// execute performs one logical upstream call: cache lookup for cacheable
// operations, then the HTTP request with bounded retry on retryable
// classified failures, then cache insert on success.
func (c *Client) execute(ctx context.Context, op Operation, params map[string]any) (any, error) {
	if !op.Valid() {
		return nil, &crawlerrors.Classified{
			Kind:    crawlerrors.KindValidation,
			Message: fmt.Sprintf("unknown operation %q", op),
		}
	}

	var key string
	if op.Cacheable() && *c.cfg.Cache.Enabled {
		key = cacheKey(op, params)
		if value, ok := c.cache.Get(key); ok {
			c.log.Debug().Str("operation", string(op)).Msg("Serving upstream response from cache")
			return value, nil
		}
	}

	requestID := xid.New().String()
	for attempt := 0; ; attempt++ {
		payload, err := c.doRequest(ctx, op, params)
		if err == nil {
			if key != "" {
				c.cache.Set(key, payload, c.cfg.cacheTTL())
			}
			return payload, nil
		}

		classified := crawlerrors.Classify(err, string(op)+" request failed", c.cfg.ClassifyMode())
		if !classified.Retryable || attempt >= c.cfg.Retry.MaxRetries {
			c.log.Error().
				Str("request_id", requestID).
				Str("operation", string(op)).
				Str("kind", string(classified.Kind)).
				Int("attempts", attempt+1).
				Msg("Upstream request failed")
			return nil, classified
		}

		delay := c.backoffDelay(attempt, err)
		c.log.Warn().
			Str("request_id", requestID).
			Str("operation", string(op)).
			Str("kind", string(classified.Kind)).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying upstream request")
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, classified
		}
	}
}

// backoffDelay computes min(maxDelay, initialDelay * factor^attempt). A
// 429's Retry-After overrides the computed delay when longer, still capped
// by maxDelay.
func (c *Client) backoffDelay(attempt int, err error) time.Duration {
	limit := c.cfg.maxDelay()
	delay := time.Duration(float64(c.cfg.initialDelay()) * math.Pow(c.cfg.Retry.BackoffFactor, float64(attempt)))
	if delay > limit {
		delay = limit
	}
	var statusErr *crawlerrors.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests && statusErr.RetryAfter > delay {
		delay = statusErr.RetryAfter
		if delay > limit {
			delay = limit
		}
	}
	return delay
}

// doRequest performs a single HTTP attempt and decodes the response body.
// An empty 2xx body decodes to an empty object so downstream normalization
// always sees a consistent shape.
func (c *Client) doRequest(ctx context.Context, op Operation, params map[string]any) (any, error) {
	method := http.MethodPost
	endpoint := c.cfg.BaseURL + op.path()
	var reqBody io.Reader

	if op.Kind() == ArgJobID {
		method = http.MethodGet
		jobID, _ := params[op.ArgKey()].(string)
		endpoint += "/" + url.PathEscape(jobID)
	} else {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return nil, &crawlerrors.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	var payload any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		// Not JSON; hand the raw text to normalization as-is.
		return string(trimmed), nil
	}
	if payload == nil {
		return map[string]any{}, nil
	}
	return payload, nil
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

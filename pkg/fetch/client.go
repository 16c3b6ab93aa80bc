// Package fetch loads documents over HTTP for full navigations and reloads,
// with retry, backoff and error classification.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetches.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_fetch_requests_total",
		Help: "Total page fetches by status",
	}, []string{"status"})

	fetchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "freeze_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds, retries included",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_fetch_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "freeze_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL resolves relative request URLs
	BaseURL string

	// User-Agent header
	UserAgent string

	// Timeout per attempt
	Timeout time.Duration

	// MaxBytes bounds a document body
	MaxBytes int64

	// Retry
	Retry RetryConfig
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "freeze-cache/1.0",
		Timeout:   15 * time.Second,
		MaxBytes:  8 << 20,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches documents.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("max_bytes must be > 0 (got %d)", cfg.MaxBytes)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		base = u
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		base:   base,
		config: cfg,
		logger: log.With().Str("component", "fetch").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Fetch loads the document at u and returns its markup. Server errors,
// rate limits and network errors are retried; client errors are not.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (string, error) {
	target := u
	if c.base != nil && !u.IsAbs() {
		target = c.base.ResolveReference(u)
	}

	startTime := time.Now()
	defer func() {
		fetchRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var body string
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var attemptErr error
		body, attemptErr = c.attempt(ctx, target)
		return attemptErr
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("url", target.String()).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Document fetched")
	return body, nil
}

func (c *Client) attempt(ctx context.Context, target *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str("url", target.String()).Msg("Fetch failed")
		return "", &FetchError{
			URL:        target.String(),
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", target.String()).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Fetch error")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &FetchError{
			URL:        target.String(),
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes+1))
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return "", &FetchError{
			URL:        target.String(),
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}
	if int64(len(data)) > c.config.MaxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, target, c.config.MaxBytes)
	}
	return string(data), nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

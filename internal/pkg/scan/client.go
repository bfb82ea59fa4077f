// Package scan talks to the ML label analysis service.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = time.Second
)

// ErrNotConfigured is returned when ML_API_URL is empty.
var ErrNotConfigured = errors.New("ML_API_URL is not configured")

// Analyzer analyzes a label image reachable at fileURL.
type Analyzer interface {
	Analyze(ctx context.Context, fileURL string) (*Result, error)
}

type Client struct {
	URL            string
	MaxAttempts    int
	InitialBackoff time.Duration

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		URL:            strings.TrimSpace(env.GetEnv("ML_API_URL", "")),
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// StatusError is a non 2xx answer of the ML service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ml service returned %d: %s", e.StatusCode, e.Body)
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// Analyze posts {"file_url": ...} to the ML service. Network errors, 5xx,
// 429 and 408 are retried with exponential backoff (1s, 2s, ...).
func (c *Client) Analyze(ctx context.Context, fileURL string) (*Result, error) {
	if c.URL == "" {
		return nil, ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{"file_url": fileURL})
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff()
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	start := time.Now()
	attempt := 0
	var result *Result
	op := func() error {
		attempt++
		res, err := c.do(ctx, payload)
		if err == nil {
			result = res
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var se *StatusError
		if errors.As(err, &se) && !retryable(se.StatusCode) {
			log.Errorf("[Scan] Attempt %d/%d failed permanently: %v", attempt, attempts, err)
			return backoff.Permanent(err)
		}
		metrics.ScanRequestsTotal.WithLabelValues("retry").Inc()
		log.Warnf("[Scan] Attempt %d/%d failed: %v", attempt, attempts, err)
		return err
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScanRequestsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ML analysis failed: %w", err)
	}
	metrics.ScanRequestsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (c *Client) initialBackoff() time.Duration {
	if c.InitialBackoff > 0 {
		return c.InitialBackoff
	}
	return defaultInitialBackoff
}

func (c *Client) do(ctx context.Context, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode ml response: %w", err))
	}
	return &res, nil
}

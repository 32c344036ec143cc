package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// HTTPClient talks to the remote record API.
type HTTPClient struct {
	client        *http.Client
	baseURL       string
	userAgent     string
	token         string
	timeout       time.Duration
	healthTimeout time.Duration
	logger        *events.Logger

	// Retry configuration (audit posts only)
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 3 * time.Second
	}

	return &HTTPClient{
		client:        &http.Client{Transport: transport},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:     cfg.UserAgent,
		token:         cfg.Token,
		timeout:       timeout,
		healthTimeout: healthTimeout,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Second,
		logger:        logger.WithField("component", "http_client"),
	}
}

// UpsertRecord posts rec to /records/{type}.
func (c *HTTPClient) UpsertRecord(ctx context.Context, rec *models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &models.SerializationError{Source: "record " + rec.ID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.do(ctx, http.MethodPost, recordsPath(rec.Type), body)
	return err
}

// ListRecords fetches /records/{type}.
func (c *HTTPClient) ListRecords(ctx context.Context, t models.RecordType) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := c.do(ctx, http.MethodGet, recordsPath(t), nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, &models.SerializationError{Source: "remote " + string(t) + " list", Err: err}
	}

	return records, nil
}

// Health issues HEAD /health with the short probe timeout.
func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodHead, "/health", nil)
	return err
}

// Audit posts event to /audit, retrying transient failures with backoff.
func (c *HTTPClient) Audit(ctx context.Context, event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return &models.SerializationError{Source: "audit event", Err: err}
	}

	return c.retry(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		_, err := c.do(attemptCtx, http.MethodPost, "/audit", body)
		return err
	})
}

// do executes one request and classifies every failure as a NetworkError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    fullURL,
		"size":   len(body),
	}).Debug("Sending request")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.NetworkError{
			Op:      method,
			URL:     fullURL,
			Timeout: isTimeout(ctx, err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.NetworkError{
			Op:         method,
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Timeout:    isTimeout(ctx, err),
			Err:        fmt.Errorf("read response: %w", err),
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"status": resp.StatusCode,
		"size":   len(respBody),
	}).Debug("Received response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		netErr := &models.NetworkError{Op: method, URL: fullURL, StatusCode: resp.StatusCode}

		var apiErr models.APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && (apiErr.Code != "" || apiErr.Message != "") {
			apiErr.StatusCode = resp.StatusCode
			netErr.Err = &apiErr
		} else if len(respBody) > 0 {
			netErr.Err = errors.New(strings.TrimSpace(string(respBody)))
		}

		return nil, netErr
	}

	return respBody, nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// isRetryableError checks if an error is retryable. Client errors (4xx
// other than 429) will not succeed on repeat.
func (c *HTTPClient) isRetryableError(err error) bool {
	var netErr *models.NetworkError
	if errors.As(err, &netErr) && netErr.StatusCode != 0 {
		return c.isRetryable(netErr.StatusCode)
	}
	return true
}

func recordsPath(t models.RecordType) string {
	return "/records/" + url.PathEscape(string(t))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

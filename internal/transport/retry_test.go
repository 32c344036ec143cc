package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

func newRetryClient(maxRetries int, delay time.Duration) *HTTPClient {
	var buf bytes.Buffer
	return &HTTPClient{
		maxRetries: maxRetries,
		retryDelay: delay,
		logger:     events.NewTestLogger(events.DebugLevel, "json", &buf),
	}
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	startTime := time.Now()
	client := newRetryClient(3, 100*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	duration := time.Since(startTime)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Delays: 0ms, 100ms, 200ms = 300ms total
	assert.GreaterOrEqual(t, duration, 300*time.Millisecond)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	attempts := 0
	client := newRetryClient(5, 100*time.Millisecond)

	err := client.retry(ctx, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	client := newRetryClient(2, 10*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, attempts) // maxRetries + 1
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	client := newRetryClient(3, 10*time.Millisecond)

	err := client.retry(ctx, func() error {
		attempts++
		return errors.New("some error")
	})

	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsOnClientError(t *testing.T) {
	attempts := 0
	client := newRetryClient(3, 10*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return &models.NetworkError{Op: "POST", URL: "/audit", StatusCode: 400}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, models.IsTransient(err))
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	client := newRetryClient(2, time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return &models.NetworkError{Op: "POST", URL: "/audit", StatusCode: 503}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrySuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	client := newRetryClient(3, 100*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryableStatusCode(t *testing.T) {
	client := newRetryClient(0, 0)

	tests := []struct {
		status   int
		expected bool
	}{
		{200, false}, // OK
		{400, false}, // Bad Request
		{401, false}, // Unauthorized
		{404, false}, // Not Found
		{429, true},  // Too Many Requests
		{500, true},  // Internal Server Error
		{502, true},  // Bad Gateway
		{503, true},  // Service Unavailable
		{504, true},  // Gateway Timeout
		{599, true},  // Other 5xx
		{600, false}, // Not in 5xx range
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, client.isRetryable(tt.status))
		})
	}
}

package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRetryClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{
		ConnectionTimeout: time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		},
	}}
}

func TestExecuteWithRetry_RecoversFromTransientError(t *testing.T) {
	c := newRetryClient(3)
	calls := 0

	err := c.ExecuteWithRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("rpc error: code = Unavailable desc = connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	c := newRetryClient(3)
	calls := 0

	err := c.ExecuteWithRetry(context.Background(), "complete", func(context.Context) error {
		calls++
		return errors.New("rpc error: code = NotFound desc = job not found")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBrokerRejected))
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_GivesUp(t *testing.T) {
	c := newRetryClient(2)
	calls := 0

	err := c.ExecuteWithRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		return errors.New("context deadline exceeded")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBrokerTimeout))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	c := newRetryClient(5)
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.ExecuteWithRetry(ctx, "topology", func(context.Context) error {
		return errors.New("connection reset by peer")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := map[string]bool{
		"dial tcp: connection refused": true,
		"code = Unavailable":           true,
		"write: broken pipe":           true,
		"job not found":                false,
		"permission denied":            false,
	}
	for msg, want := range tests {
		assert.Equal(t, want, isRetryableZeebeError(errors.New(msg)), msg)
	}
}

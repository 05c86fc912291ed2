package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"abm-playbook-workers/internal/common/config"
	"abm-playbook-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	return NewClient(config.AgentConfig{
		BaseURL: url + "/",
		APIKey:  "secret",
		UserID:  "abm-tests",
	}, logger.NewTestLogger(t))
}

func TestInvoke_ReturnsRawBody(t *testing.T) {
	const body = `{"success":true,"response":{"result":{"reports":[]}}}`
	var got request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/agent/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	raw, err := newTestClient(t, server.URL).Invoke(context.Background(), "run the pipeline", "agent-42")
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))

	assert.Equal(t, "run the pipeline", got.Message)
	assert.Equal(t, "agent-42", got.AgentID)
	assert.Equal(t, "abm-tests", got.UserID)
	assert.NotEmpty(t, got.SessionID)
}

func TestInvoke_FreshSessionPerCall(t *testing.T) {
	var sessions []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		sessions = append(sessions, req.SessionID)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), "p", "a")
		require.NoError(t, err)
	}
	require.Len(t, sessions, 2)
	assert.NotEqual(t, sessions[0], sessions[1])
}

func TestInvoke_ErrorStatusIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Invoke(context.Background(), "p", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentCallFailed))
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Equal(t, 1, calls)
}

func TestInvoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL).Invoke(ctx, "p", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentTimeout))
}

func TestInvoke_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, server.URL).Invoke(ctx, "p", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentCallFailed))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrAgentTimeout))
}

func TestInvoke_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Invoke(context.Background(), "p", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentCallFailed))
}

func TestSnippet_CutsOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("é", 250))

	got := snippet(body)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))

	assert.Equal(t, "short", snippet([]byte("  short \n")))
}

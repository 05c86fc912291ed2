// Package agent calls the orchestration agent that runs the
// report-to-outreach pipeline and hands back its raw response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"abm-playbook-workers/internal/common/config"
	httpclient "abm-playbook-workers/internal/common/http"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/metrics"

	"github.com/google/uuid"
)

var (
	ErrAgentCallFailed = errors.New("AGENT_CALL_FAILED")
	ErrAgentTimeout    = errors.New("AGENT_TIMEOUT")
)

// Invoker is what generation needs from the agent.
type Invoker interface {
	Invoke(ctx context.Context, prompt, agentID string) ([]byte, error)
}

type Client struct {
	baseURL string
	apiKey  string
	userID  string
	http    *httpclient.Client
	logger  logger.Logger
}

type request struct {
	Message   string `json:"message"`
	AgentID   string `json:"agent_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// NewClient relies on the caller's context for deadlines; the HTTP client
// itself never times out.
func NewClient(cfg config.AgentConfig, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		userID:  cfg.UserID,
		http:    httpclient.NewClient(0),
		logger:  log.WithFields(map[string]interface{}{"component": "agent-client"}),
	}
}

// Invoke posts prompt to the agent and returns the raw body untouched. It
// makes exactly one attempt.
func (c *Client) Invoke(ctx context.Context, prompt, agentID string) ([]byte, error) {
	sessionID := uuid.New().String()
	start := time.Now()

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}

	resp, err := c.http.PostJSON(ctx, c.baseURL+"/v3/agent/chat", headers, request{
		Message:   prompt,
		AgentID:   agentID,
		UserID:    c.userID,
		SessionID: sessionID,
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				metrics.PlaybookAgentCallDuration.WithLabelValues("timeout").Observe(elapsed.Seconds())
				return nil, fmt.Errorf("%w: no answer after %s", ErrAgentTimeout, elapsed.Round(time.Millisecond))
			}
			metrics.PlaybookAgentCallDuration.WithLabelValues("cancelled").Observe(elapsed.Seconds())
			return nil, fmt.Errorf("%w: %w", ErrAgentCallFailed, ctxErr)
		}
		metrics.PlaybookAgentCallDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return nil, fmt.Errorf("%w: %v", ErrAgentCallFailed, err)
	}

	if !resp.OK() {
		metrics.PlaybookAgentCallDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		c.logger.Warn("agent returned error status", map[string]interface{}{
			"status":    resp.StatusCode,
			"sessionId": sessionID,
		})
		return nil, fmt.Errorf("%w: status %d: %s", ErrAgentCallFailed, resp.StatusCode, snippet(resp.Body))
	}

	metrics.PlaybookAgentCallDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	c.logger.Info("agent call completed", map[string]interface{}{
		"agentId":    agentID,
		"sessionId":  sessionID,
		"bytes":      len(resp.Body),
		"durationMs": elapsed.Milliseconds(),
	})
	return resp.Body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) > 200 {
		return string([]rune(s)[:200])
	}
	return s
}

// Package generation drives one playbook run at a time per requester:
// prompt, agent call, normalization.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"abm-playbook-workers/internal/agent"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"
	"abm-playbook-workers/internal/normalize"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrGenerationInFlight = errors.New("GENERATION_IN_FLIGHT")

type State int

const (
	StateIdle State = iota
	StateGenerating
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Result is a successful run.
type Result struct {
	AttemptID string
	Playbook  *models.Playbook
	Strategy  string
	Duration  time.Duration
}

type Deps struct {
	Agent      agent.Invoker
	Normalizer *normalize.Normalizer
	AgentID    string
	Timeout    time.Duration
	Logger     logger.Logger
	Tracer     trace.Tracer
}

// Session is the state machine for a single requester. Only one run may be
// in flight; a finished session can run again.
type Session struct {
	deps Deps

	mu        sync.Mutex
	state     State
	attemptID string
	cancel    context.CancelFunc
	lastErr   error
}

func NewSession(deps Deps) *Session {
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("abm-playbook-workers/generation")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Session{deps: deps}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the failure of the most recent run, nil after a success.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Cancel aborts the in-flight run. It reports whether there was one.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGenerating || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) begin(ctx context.Context) (context.Context, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateGenerating {
		return nil, "", fmt.Errorf("%w: attempt %s still running", ErrGenerationInFlight, s.attemptID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.deps.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, s.deps.Timeout)
		parent := cancel
		cancel = func() {
			timeoutCancel()
			parent()
		}
	}

	s.state = StateGenerating
	s.attemptID = uuid.New().String()
	s.cancel = cancel
	s.lastErr = nil
	return runCtx, s.attemptID, nil
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.lastErr = err
	if err != nil {
		s.state = StateFailed
		return
	}
	s.state = StateSucceeded
}

// Generate runs the whole pipeline once. Input problems are reported before
// the session leaves its current state.
func (s *Session) Generate(ctx context.Context, req Request) (*Result, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	runCtx, attemptID, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, span := s.deps.Tracer.Start(runCtx, "playbook.generate", trace.WithAttributes(
		attribute.String("attempt.id", attemptID),
		attribute.Int("seed_urls", len(req.CleanURLs())),
		attribute.String("requested_by", req.RequestedBy),
	))
	defer span.End()

	log := s.deps.Logger.WithFields(map[string]interface{}{"attemptId": attemptID})
	log.Info("playbook generation started", map[string]interface{}{
		"seedUrls": len(req.CleanURLs()),
		"industry": req.Industry,
		"region":   req.Region,
	})

	start := time.Now()
	result, err := s.run(runCtx, prompt)
	s.finish(err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("playbook generation failed", map[string]interface{}{
			"error":      err,
			"durationMs": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	result.AttemptID = attemptID
	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("normalize.strategy", result.Strategy),
		attribute.String("playbook.id", result.Playbook.PlaybookID),
	)
	span.SetStatus(codes.Ok, "")
	log.Info("playbook generation succeeded", map[string]interface{}{
		"playbookId": result.Playbook.PlaybookID,
		"strategy":   result.Strategy,
		"contacts":   len(result.Playbook.EnrichedContacts),
		"durationMs": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *Session) run(ctx context.Context, prompt string) (*Result, error) {
	raw, err := s.deps.Agent.Invoke(ctx, prompt, s.deps.AgentID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.deps.Normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	if outcome.Playbook.PlaybookID == "" {
		outcome.Playbook.PlaybookID = uuid.New().String()
	}
	return &Result{Playbook: outcome.Playbook, Strategy: outcome.Strategy}, nil
}

// Registry hands out one Session per requester.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// For returns the session for requester, creating it on first use. An empty
// requester shares the "default" session.
func (r *Registry) For(requester string) *Session {
	if requester == "" {
		requester = "default"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[requester]
	if !ok {
		s = NewSession(r.deps)
		r.sessions[requester] = s
	}
	return s
}

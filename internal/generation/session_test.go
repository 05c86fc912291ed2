package generation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"abm-playbook-workers/internal/agent"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const okEnvelope = `{"success":true,"response":{"result":{"reports":[{"title":"State of Payments"}],"enriched_contacts":[{"full_name":"Ada","email":"ada@example.com"}]}}}`

type invokerFunc func(ctx context.Context, prompt, agentID string) ([]byte, error)

func (f invokerFunc) Invoke(ctx context.Context, prompt, agentID string) ([]byte, error) {
	return f(ctx, prompt, agentID)
}

var _ agent.Invoker = invokerFunc(nil)

func validRequest() Request {
	return Request{
		SeedURLs: []string{"https://example.com/report.pdf"},
		Industry: "Fintech",
		Region:   "EMEA",
		Persona:  "CTO",
	}
}

func newSession(inv agent.Invoker, timeout time.Duration) (*Session, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	log := logger.NewNoOpLogger()
	return NewSession(Deps{
		Agent:      inv,
		Normalizer: normalize.NewNormalizer(normalize.DefaultOptions(), log),
		AgentID:    "agent-1",
		Timeout:    timeout,
		Logger:     log,
		Tracer:     provider.Tracer("test"),
	}), recorder
}

func TestGenerate_Success(t *testing.T) {
	var gotAgent, gotPrompt string
	s, recorder := newSession(invokerFunc(func(_ context.Context, prompt, agentID string) ([]byte, error) {
		gotAgent, gotPrompt = agentID, prompt
		return []byte(okEnvelope), nil
	}), time.Minute)

	assert.Equal(t, StateIdle, s.State())

	res, err := s.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, s.State())
	assert.NoError(t, s.LastError())
	assert.Equal(t, "agent-1", gotAgent)
	assert.Contains(t, gotPrompt, "https://example.com/report.pdf")

	assert.NotEmpty(t, res.AttemptID)
	assert.Equal(t, normalize.StrategyDirectResultPath, res.Strategy)
	assert.NotEmpty(t, res.Playbook.PlaybookID, "missing playbook ids are assigned")
	require.Len(t, res.Playbook.Reports, 1)
	assert.Equal(t, "State of Payments", res.Playbook.Reports[0].Title)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "playbook.generate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestGenerate_KeepsAgentPlaybookID(t *testing.T) {
	s, _ := newSession(invokerFunc(func(context.Context, string, string) ([]byte, error) {
		return []byte(`{"response":{"result":{"playbook_id":"pb-7","reports":[]}}}`), nil
	}), 0)

	res, err := s.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "pb-7", res.Playbook.PlaybookID)
}

func TestGenerate_InvalidInputLeavesStateAlone(t *testing.T) {
	var calls int32
	s, _ := newSession(invokerFunc(func(context.Context, string, string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}), 0)

	_, err := s.Generate(context.Background(), Request{SeedURLs: []string{"  "}})
	assert.ErrorIs(t, err, ErrNoSeedURLs)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGenerate_RejectsSecondRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, _ := newSession(invokerFunc(func(ctx context.Context, _, _ string) ([]byte, error) {
		close(started)
		<-release
		return []byte(okEnvelope), nil
	}), 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background(), validRequest())
		done <- err
	}()

	<-started
	assert.Equal(t, StateGenerating, s.State())

	_, err := s.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, s.State())
}

func TestGenerate_Cancel(t *testing.T) {
	started := make(chan struct{})
	s, recorder := newSession(invokerFunc(func(ctx context.Context, _, _ string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", agent.ErrAgentCallFailed, ctx.Err())
	}), 0)

	assert.False(t, s.Cancel(), "nothing to cancel while idle")

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background(), validRequest())
		done <- err
	}()

	<-started
	assert.True(t, s.Cancel())

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, err, s.LastError())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestGenerate_Timeout(t *testing.T) {
	s, _ := newSession(invokerFunc(func(ctx context.Context, _, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", agent.ErrAgentTimeout, ctx.Err())
	}), 20*time.Millisecond)

	_, err := s.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, agent.ErrAgentTimeout)
	assert.Equal(t, StateFailed, s.State())
}

func TestGenerate_NormalizationFailure(t *testing.T) {
	s, _ := newSession(invokerFunc(func(context.Context, string, string) ([]byte, error) {
		return []byte(`{"success":true,"response":{"result":"I was unable to access the provided URLs, so no playbook could be produced this time."}}`), nil
	}), 0)

	_, err := s.Generate(context.Background(), validRequest())
	require.Error(t, err)

	var nerr *normalize.NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.True(t, nerr.ProseOnly)
	assert.Equal(t, StateFailed, s.State())
}

func TestGenerate_AgentFailureSkipsNormalization(t *testing.T) {
	s, _ := newSession(invokerFunc(func(context.Context, string, string) ([]byte, error) {
		return nil, fmt.Errorf("%w: status 500", agent.ErrAgentCallFailed)
	}), 0)

	_, err := s.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, agent.ErrAgentCallFailed)

	var nerr *normalize.NormalizationError
	assert.False(t, errors.As(err, &nerr))
	assert.Equal(t, StateFailed, s.State())
}

func TestGenerate_RunsAgainAfterFailure(t *testing.T) {
	var calls int32
	s, _ := newSession(invokerFunc(func(context.Context, string, string) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, agent.ErrAgentCallFailed
		}
		return []byte(okEnvelope), nil
	}), 0)

	_, err := s.Generate(context.Background(), validRequest())
	require.Error(t, err)

	_, err = s.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, s.State())
	assert.NoError(t, s.LastError())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{Logger: logger.NewNoOpLogger()})

	assert.Same(t, r.For(""), r.For("default"))
	assert.Same(t, r.For("alice"), r.For("alice"))
	assert.NotSame(t, r.For("alice"), r.For("bob"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "generating", StateGenerating.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed", StateFailed.String())
}

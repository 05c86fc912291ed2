package observability

import (
	"context"
	"testing"
	"time"

	"abm-playbook-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

type recordingLogger struct {
	logger.Logger
	debug []map[string]interface{}
}

func (r *recordingLogger) Debug(msg string, fields map[string]interface{}) {
	r.debug = append(r.debug, fields)
}

func (r *recordingLogger) WithFields(map[string]interface{}) logger.Logger { return r }

func TestSpansAreLogged(t *testing.T) {
	log := &recordingLogger{Logger: logger.NewNoOpLogger()}
	obs := New("test-service", log)
	defer obs.Shutdown()

	_, span := obs.Tracer("test").Start(context.Background(), "playbook.generate")
	span.SetAttributes(attribute.String("normalize.strategy", "recursive_locate"))
	span.End()

	require.Len(t, log.debug, 1)
	assert.Equal(t, "playbook.generate", log.debug[0]["span"])
	assert.Equal(t, "recursive_locate", log.debug[0]["normalize.strategy"])
}

func TestRecordJobDoesNotPanic(t *testing.T) {
	obs := &Observability{}
	assert.NotPanics(t, func() {
		obs.RecordJob(context.Background(), "generate-playbook", "completed", time.Second)
		obs.Shutdown()
	})
}

package generateplaybook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"abm-playbook-workers/internal/agent"
	apperrors "abm-playbook-workers/internal/common/errors"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/metrics"
	"abm-playbook-workers/internal/common/validation"
	"abm-playbook-workers/internal/generation"
	"abm-playbook-workers/internal/models"
	"abm-playbook-workers/internal/normalize"
	"abm-playbook-workers/internal/repository"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "generate-playbook"

var schema = validation.MustCompile(inputSchema)

type Archiver interface {
	Save(ctx context.Context, pb *models.Playbook) (string, error)
}

type ContactIndexer interface {
	IndexPlaybook(ctx context.Context, pb *models.Playbook) (int, error)
}

type Handler struct {
	config     *Config
	sessions   *generation.Registry
	history    repository.History
	archive    Archiver
	contacts   ContactIndexer
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

type HandlerOptions struct {
	Config   *Config
	Sessions *generation.Registry
	History  repository.History
	// Archive and Contacts are optional secondary stores.
	Archive  Archiver
	Contacts ContactIndexer
	Logger   logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Sessions == nil || opts.History == nil {
		return nil, fmt.Errorf("%s needs a session registry and a history store", TaskType)
	}

	log := opts.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     opts.Config,
		sessions:   opts.Sessions,
		history:    opts.History,
		archive:    opts.Archive,
		contacts:   opts.Contacts,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("Processing playbook generation", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func parseInput(variables string) (*Input, error) {
	if res := schema.Validate(variables); !res.Valid {
		return nil, apperrors.NewInputValidationFailedError(res.Err().Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("parse input: %v", err))
	}
	for _, u := range input.request().CleanURLs() {
		if !validation.ValidateURL(u) {
			return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("invalid seed URL: %q", u))
		}
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	session := h.sessions.For(input.RequestedBy)

	res, err := session.Generate(ctx, input.request())
	if err != nil {
		return nil, classifyGenerationError(err, input.RequestedBy)
	}
	pb := res.Playbook

	// A failed save must not send the job back for another agent run.
	if err := h.history.Append(ctx, pb); err != nil {
		stdErr := apperrors.NewPlaybookStoreFailedError(err)
		stdErr.Retryable = false
		stdErr.Metadata = map[string]interface{}{"playbookId": pb.PlaybookID}
		return nil, stdErr
	}

	output := &Output{
		PlaybookID:     pb.PlaybookID,
		AttemptID:      res.AttemptID,
		Strategy:       res.Strategy,
		PipelineStatus: pb.PipelineStatus,
		GeneratedAt:    pb.GenerationDate,
		TotalReports:   len(pb.Reports),
		TotalContacts:  len(pb.EnrichedContacts),
		TotalEmails:    pb.EmailCount(),
		DurationMs:     res.Duration.Milliseconds(),
	}

	if h.archive != nil {
		if id, err := h.archive.Save(ctx, pb); err != nil {
			h.logger.Warn("playbook archive failed", map[string]interface{}{"playbookId": pb.PlaybookID, "error": err})
		} else {
			output.ArchiveID = id
		}
	}

	if h.contacts != nil {
		n, err := h.contacts.IndexPlaybook(ctx, pb)
		if err != nil {
			h.logger.Warn("contact indexing incomplete", map[string]interface{}{"playbookId": pb.PlaybookID, "error": err})
		}
		output.ContactsIndexed = n
	}

	return output, nil
}

func classifyGenerationError(err error, requester string) error {
	var nerr *normalize.NormalizationError
	switch {
	case errors.As(err, &nerr):
		if nerr.ProseOnly {
			return apperrors.NewPlaybookProseResponseError(nerr.ProseExcerpt, nerr.Tried)
		}
		return apperrors.NewPlaybookParseFailedError(err.Error(), nerr.Preview, nerr.Tried)
	case errors.Is(err, generation.ErrNoSeedURLs):
		return apperrors.NewInputValidationFailedError(err.Error())
	case errors.Is(err, generation.ErrGenerationInFlight):
		return apperrors.NewGenerationInFlightError(requester)
	case errors.Is(err, normalize.ErrAgentReportedFailure):
		return apperrors.NewAgentReportedFailureError(err)
	case errors.Is(err, agent.ErrAgentTimeout):
		return apperrors.NewAgentTimeoutError(err)
	default:
		return apperrors.NewAgentCallFailedError(err)
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.FromError(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

// Execute runs the job body without a broker.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

package contactslibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "abm-playbook-workers/internal/common/errors"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/metrics"
	"abm-playbook-workers/internal/common/validation"
	"abm-playbook-workers/internal/models"
	"abm-playbook-workers/internal/repository"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "contacts-library"

var schema = validation.MustCompile(inputSchema)

type HistoryLister interface {
	List(ctx context.Context) ([]*models.Playbook, error)
}

type ContactSearcher interface {
	Search(ctx context.Context, f repository.ContactFilter, size int) ([]models.Contact, int64, error)
}

type Handler struct {
	config     *Config
	history    HistoryLister
	index      ContactSearcher
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

type HandlerOptions struct {
	Config  *Config
	History HistoryLister
	// Index is optional; without it source=index is rejected.
	Index  ContactSearcher
	Logger logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.History == nil {
		return nil, fmt.Errorf("%s needs a history store", TaskType)
	}

	log := opts.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     opts.Config,
		history:    opts.History,
		index:      opts.Index,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("Processing contacts library query", map[string]interface{}{
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
	input.Query = strings.TrimSpace(input.Query)
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	filter := repository.ContactFilter{
		Query:           input.Query,
		Confidence:      input.Confidence,
		NeedsReviewOnly: input.NeedsReviewOnly,
	}
	limit := h.limit(input.Limit)

	switch input.Source {
	case SourceIndex:
		return h.searchIndex(ctx, filter, limit)
	case "", SourceHistory:
		return h.scanHistory(ctx, filter, limit)
	default:
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("unknown source: %s", input.Source))
	}
}

func (h *Handler) limit(requested int) int {
	switch {
	case requested <= 0:
		return h.config.DefaultLimit
	case requested > h.config.MaxLimit:
		return h.config.MaxLimit
	default:
		return requested
	}
}

func (h *Handler) scanHistory(ctx context.Context, filter repository.ContactFilter, limit int) (*Output, error) {
	playbooks, err := h.history.List(ctx)
	if err != nil {
		return nil, apperrors.NewPlaybookStoreFailedError(err)
	}

	all := repository.AllContacts(playbooks)
	matched := repository.FilterContacts(all, filter)

	output := &Output{
		Contacts:  matched,
		Total:     len(all),
		Matched:   len(matched),
		Source:    SourceHistory,
		Playbooks: len(playbooks),
	}
	if len(matched) > limit {
		output.Contacts = matched[:limit]
		output.Truncated = true
	}

	h.logger.Info("Contacts library assembled", map[string]interface{}{
		"playbooks": len(playbooks),
		"total":     output.Total,
		"matched":   output.Matched,
	})
	return output, nil
}

func (h *Handler) searchIndex(ctx context.Context, filter repository.ContactFilter, limit int) (*Output, error) {
	if h.index == nil {
		return nil, apperrors.NewInputValidationFailedError("contact index is not configured")
	}

	contacts, total, err := h.index.Search(ctx, filter, limit)
	if err != nil {
		return nil, apperrors.NewContactSearchFailedError(err)
	}

	return &Output{
		Contacts:  contacts,
		Total:     int(total),
		Matched:   int(total),
		Truncated: int(total) > len(contacts),
		Source:    SourceIndex,
	}, nil
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

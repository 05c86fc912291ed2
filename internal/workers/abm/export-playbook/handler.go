package exportplaybook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "abm-playbook-workers/internal/common/errors"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/metrics"
	"abm-playbook-workers/internal/common/validation"
	"abm-playbook-workers/internal/export"
	"abm-playbook-workers/internal/models"
	"abm-playbook-workers/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "export-playbook"

var schema = validation.MustCompile(inputSchema)

type SESService interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PlaybookGetter looks a playbook up by id.
type PlaybookGetter interface {
	Get(ctx context.Context, playbookID string) (*models.Playbook, error)
}

type attachment struct {
	name        string
	contentType string
	data        []byte
}

type Handler struct {
	config     *Config
	history    PlaybookGetter
	archive    PlaybookGetter
	sesService SESService
	snsService SNSService
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

type HandlerOptions struct {
	Config  *Config
	History PlaybookGetter
	// Archive is consulted when a playbook has aged out of history.
	Archive PlaybookGetter
	SES     SESService
	SNS     SNSService
	Logger  logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.History == nil {
		return nil, fmt.Errorf("%s needs a history store", TaskType)
	}
	if opts.Config.EmailEnabled && opts.SES == nil {
		return nil, fmt.Errorf("%s: email enabled without an SES client", TaskType)
	}
	if opts.Config.SNSEnabled && opts.SNS == nil {
		return nil, fmt.Errorf("%s: sns enabled without an SNS client", TaskType)
	}

	log := opts.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     opts.Config,
		history:    opts.History,
		archive:    opts.Archive,
		sesService: opts.SES,
		snsService: opts.SNS,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("Processing playbook export", map[string]interface{}{
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
	input.PlaybookID = strings.TrimSpace(input.PlaybookID)
	input.Recipient = strings.TrimSpace(input.Recipient)
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Recipient != "" {
		if !validation.ValidateEmail(input.Recipient) {
			return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("invalid recipient: %s", input.Recipient))
		}
		if !h.config.EmailEnabled {
			return nil, apperrors.NewInputValidationFailedError("email delivery is disabled")
		}
	}

	pb, err := h.lookup(ctx, input.PlaybookID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		PlaybookID: pb.PlaybookID,
		Files:      []File{},
		ExportedAt: time.Now().UTC(),
	}

	var files []attachment
	for _, format := range formats(input.Formats) {
		switch format {
		case FormatContacts:
			contacts := pb.EnrichedContacts
			if f := input.ContactFilter; f != nil {
				contacts = repository.FilterContacts(contacts, repository.ContactFilter{
					Query:           f.Query,
					Confidence:      f.Confidence,
					NeedsReviewOnly: f.NeedsReviewOnly,
				})
			}
			output.ContactsExported = len(contacts)
			files = append(files, attachment{export.ContactsFileName, export.ContactsContentType, export.ContactsCSV(contacts)})
		case FormatEmails:
			output.SequencesCount = len(pb.EmailSequences)
			files = append(files, attachment{export.EmailsFileName, export.EmailsContentType, export.EmailsMarkdown(pb.EmailSequences)})
		}
	}

	for _, f := range files {
		file := File{Name: f.name, ContentType: f.contentType, Size: len(f.data)}
		if input.Inline {
			file.Content = string(f.data)
		}
		output.Files = append(output.Files, file)
	}

	if input.Recipient != "" {
		id, err := h.sendEmail(ctx, input.Recipient, pb, files)
		if err != nil {
			return nil, apperrors.NewExportDeliveryFailedError("email", err)
		}
		output.EmailMessageID = id
	}

	if input.Notify && h.config.SNSEnabled {
		id, err := h.publish(ctx, input.Recipient, output)
		if err != nil {
			return nil, apperrors.NewExportDeliveryFailedError("sns", err)
		}
		output.NotificationID = id
	}

	h.logger.Info("Playbook exported", map[string]interface{}{
		"playbookId": pb.PlaybookID,
		"files":      len(output.Files),
		"emailed":    output.EmailMessageID != "",
		"notified":   output.NotificationID != "",
	})
	return output, nil
}

func (h *Handler) lookup(ctx context.Context, playbookID string) (*models.Playbook, error) {
	pb, err := h.history.Get(ctx, playbookID)
	if err == nil {
		return pb, nil
	}
	if !errors.Is(err, repository.ErrPlaybookNotFound) {
		return nil, apperrors.NewPlaybookStoreFailedError(err)
	}

	if h.archive == nil {
		return nil, apperrors.NewPlaybookNotFoundError(playbookID)
	}
	pb, err = h.archive.Get(ctx, playbookID)
	switch {
	case errors.Is(err, repository.ErrPlaybookNotFound):
		return nil, apperrors.NewPlaybookNotFoundError(playbookID)
	case err != nil:
		return nil, apperrors.NewPlaybookStoreFailedError(err)
	}
	return pb, nil
}

// formats defaults to every format and drops duplicates.
func formats(requested []string) []string {
	if len(requested) == 0 {
		return []string{FormatContacts, FormatEmails}
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, f := range requested {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func (h *Handler) sendEmail(ctx context.Context, to string, pb *models.Playbook, files []attachment) (string, error) {
	subject := fmt.Sprintf("ABM playbook %s", pb.PlaybookID)
	if pb.ReportTitle != "" {
		subject = fmt.Sprintf("ABM playbook: %s", pb.ReportTitle)
	}
	body := fmt.Sprintf(
		"Your ABM playbook export is attached.\r\n\r\nPlaybook: %s\r\nGenerated: %s\r\nContacts: %d\r\nEmail sequences: %d\r\n",
		pb.PlaybookID,
		pb.GenerationDate.UTC().Format(time.RFC3339),
		len(pb.EnrichedContacts),
		len(pb.EmailSequences),
	)

	out, err := h.sesService.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(h.config.FromEmail),
		Destinations: []string{to},
		RawMessage: &types.RawMessage{
			Data: buildRawMessage(h.config.FromEmail, to, subject, body, files),
		},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

func (h *Handler) publish(ctx context.Context, recipient string, output *Output) (string, error) {
	names := make([]string, 0, len(output.Files))
	for _, f := range output.Files {
		names = append(names, f.Name)
	}
	message, err := json.Marshal(map[string]interface{}{
		"event":      "playbook.exported",
		"playbookId": output.PlaybookID,
		"files":      names,
		"recipient":  recipient,
		"exportedAt": output.ExportedAt.Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	out, err := h.snsService.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(h.config.TopicARN),
		Subject:  aws.String("ABM playbook exported"),
		Message:  aws.String(string(message)),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
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

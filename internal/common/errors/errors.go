// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAgentCallFailed       ErrorCode = "AGENT_CALL_FAILED"
	ErrCodeAgentTimeout          ErrorCode = "AGENT_TIMEOUT"
	ErrCodeAgentReportedFailure  ErrorCode = "AGENT_REPORTED_FAILURE"
	ErrCodePlaybookParseFailed   ErrorCode = "PLAYBOOK_PARSE_FAILED"
	ErrCodePlaybookProseResponse ErrorCode = "PLAYBOOK_PROSE_RESPONSE"
	ErrCodeGenerationInFlight    ErrorCode = "GENERATION_IN_FLIGHT"

	ErrCodePlaybookNotFound    ErrorCode = "PLAYBOOK_NOT_FOUND"
	ErrCodePlaybookStoreFailed ErrorCode = "PLAYBOOK_STORE_FAILED"
	ErrCodeContactSearchFailed ErrorCode = "CONTACT_SEARCH_FAILED"

	ErrCodeExportDeliveryFailed ErrorCode = "EXPORT_DELIVERY_FAILED"

	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgentCallFailedError is a transport-level failure talking to the agent.
// Generation is never retried automatically.
func NewAgentCallFailedError(err error) *StandardError {
	return newError(ErrCodeAgentCallFailed, "Orchestration agent call failed", err.Error(), false)
}

func NewAgentTimeoutError(err error) *StandardError {
	return newError(ErrCodeAgentTimeout, "Orchestration agent did not answer in time", err.Error(), false)
}

func NewAgentReportedFailureError(err error) *StandardError {
	return newError(ErrCodeAgentReportedFailure, "Orchestration agent reported a failure", err.Error(), false)
}

// NewPlaybookParseFailedError carries the bounded raw preview in metadata.
func NewPlaybookParseFailedError(details, preview string, tried []string) *StandardError {
	e := newError(ErrCodePlaybookParseFailed, "No playbook could be extracted from the agent response", details, false)
	e.Metadata = map[string]interface{}{"rawPreview": preview, "strategiesTried": tried}
	return e
}

// NewPlaybookProseResponseError carries the prose excerpt so the user can
// decide whether to generate again.
func NewPlaybookProseResponseError(excerpt string, tried []string) *StandardError {
	e := newError(ErrCodePlaybookProseResponse, "Agent answered in prose instead of playbook data", excerpt, false)
	e.Metadata = map[string]interface{}{"proseExcerpt": excerpt, "strategiesTried": tried}
	return e
}

func NewGenerationInFlightError(requester string) *StandardError {
	return newError(ErrCodeGenerationInFlight, "A playbook generation is already running", fmt.Sprintf("requestedBy: %s", requester), false)
}

func NewPlaybookNotFoundError(playbookID string) *StandardError {
	return newError(ErrCodePlaybookNotFound, "Playbook not found in history", fmt.Sprintf("playbookId: %s", playbookID), false)
}

func NewPlaybookStoreFailedError(err error) *StandardError {
	return newError(ErrCodePlaybookStoreFailed, "Playbook storage operation failed", err.Error(), true)
}

func NewContactSearchFailedError(err error) *StandardError {
	return newError(ErrCodeContactSearchFailed, "Contact index query failed", err.Error(), true)
}

func NewExportDeliveryFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeExportDeliveryFailed, "Playbook export delivery failed", fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewInputValidationFailedError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Job input validation failed", details, false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeAgentCallFailed:       "AGENT_CALL_FAILED",
	ErrCodeAgentTimeout:          "AGENT_TIMEOUT",
	ErrCodeAgentReportedFailure:  "AGENT_REPORTED_FAILURE",
	ErrCodePlaybookParseFailed:   "PLAYBOOK_PARSE_FAILED",
	ErrCodePlaybookProseResponse: "PLAYBOOK_PROSE_RESPONSE",
	ErrCodeGenerationInFlight:    "GENERATION_IN_FLIGHT",
	ErrCodePlaybookNotFound:      "PLAYBOOK_NOT_FOUND",
	ErrCodePlaybookStoreFailed:   "PLAYBOOK_STORE_FAILED",
	ErrCodeContactSearchFailed:   "CONTACT_SEARCH_FAILED",
	ErrCodeExportDeliveryFailed:  "EXPORT_DELIVERY_FAILED",
	ErrCodeInputValidationFailed: "INPUT_VALIDATION_FAILED",
}

// GetRetryCount returns the recommended retry count for a code. Anything
// produced by a generation attempt is terminal: retrying means a person
// presses generate again.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePlaybookStoreFailed,
		ErrCodeExportDeliveryFailed:
		return 3

	case ErrCodeContactSearchFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// FromError finds the StandardError in err's chain. Sentinel errors whose
// text is a known code (errors.New("AGENT_TIMEOUT")) are promoted to a
// StandardError of that code; anything else becomes INTERNAL_ERROR.
func FromError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	if code, ok := sentinelCode(err); ok {
		return newError(code, err.Error(), err.Error(), GetRetryCount(code) > 0)
	}

	return newError("INTERNAL_ERROR", "Unexpected error", err.Error(), false)
}

func sentinelCode(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	code := ErrorCode(err.Error())
	if _, known := BPMNErrorMapping[code]; known {
		return code, true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return sentinelCode(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if code, ok := sentinelCode(inner); ok {
				return code, true
			}
		}
	}
	return "", false
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "AGENT") || strings.HasPrefix(codeStr, "GENERATION"):
		return "AGENT"
	case strings.Contains(codeStr, "PARSE") || strings.Contains(codeStr, "PROSE"):
		return "NORMALIZATION"
	case strings.Contains(codeStr, "STORE") || strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "DATABASE"):
		return "STORAGE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "EXPORT"):
		return "DELIVERY"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

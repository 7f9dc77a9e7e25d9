package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable identifier of an engine failure.
type ErrorCode string

const (
	CodeWorkflowNotFound     ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeWorkflowInactive     ErrorCode = "WORKFLOW_INACTIVE"
	CodeMaxExecutions        ErrorCode = "MAX_EXECUTIONS_REACHED"
	CodeProviderNotFound     ErrorCode = "PROVIDER_NOT_FOUND"
	CodeInvalidWorkflow      ErrorCode = "INVALID_WORKFLOW"
	CodeWebhookError         ErrorCode = "WEBHOOK_ERROR"
	CodeWhatsAppSendError    ErrorCode = "WHATSAPP_SEND_ERROR"
	CodeEmailSendError       ErrorCode = "EMAIL_SEND_ERROR"
	CodeSMSSendError         ErrorCode = "SMS_SEND_ERROR"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
	CodeConditionEvalFailure ErrorCode = "CONDITION_ERROR"
)

// recoverableByDefault lists the codes that do not abort an execution.
var recoverableByDefault = map[ErrorCode]bool{
	CodeWebhookError:      true,
	CodeWhatsAppSendError: true,
	CodeEmailSendError:    true,
	CodeSMSSendError:      true,
	CodeRateLimited:       true,
}

// EngineError is the single tagged error kind raised by the engine, the action
// executor and the channel providers. Recoverable errors are logged at the
// action boundary and the execution moves on; others abort it.
type EngineError struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Err         error          `json:"-"`
}

// NewEngineError creates an error whose recoverability follows its code.
func NewEngineError(code ErrorCode, message string, context map[string]any) *EngineError {
	return &EngineError{
		Code:        code,
		Message:     message,
		Context:     context,
		Recoverable: recoverableByDefault[code],
	}
}

// WrapEngineError attaches an underlying cause.
func WrapEngineError(code ErrorCode, err error, context map[string]any) *EngineError {
	e := NewEngineError(code, err.Error(), context)
	e.Err = err

	return e
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches another *EngineError by code.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}

	return false
}

// WithContext adds a key to the error context and returns the error.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value

	return e
}

// ErrorCodeOf returns the code of an engine error in err's chain, or "".
func ErrorCodeOf(err error) ErrorCode {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}

// IsRecoverable reports whether err is an engine error flagged recoverable.
// Errors outside the engine taxonomy are treated as non-recoverable.
func IsRecoverable(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Recoverable
	}

	return false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return ErrorCodeOf(err) == code
}

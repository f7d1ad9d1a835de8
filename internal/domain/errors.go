package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so wrapped
// copies of a sentinel still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
	ErrCodeProvider          = "PROVIDER_ERROR"
	ErrCodeQuotaDenied       = "QUOTA_DENIED"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
)

// Validation errors
var (
	ErrInvalidQueueStatus   = NewDomainError(ErrCodeValidation, "invalid learning queue status")
	ErrMissingResolution    = NewDomainError(ErrCodeValidation, "ticket has no resolution text")
	ErrTicketNotResolved    = NewDomainError(ErrCodeValidation, "ticket is not resolved")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidPreset        = NewDomainError(ErrCodeValidation, "invalid rate limit preset")
	ErrInvalidRating        = NewDomainError(ErrCodeValidation, "rating must be between 1 and 5")
)

// Not found errors
var (
	ErrTicketNotFound    = NewDomainError(ErrCodeNotFound, "ticket not found")
	ErrArticleNotFound   = NewDomainError(ErrCodeNotFound, "knowledge article not found")
	ErrPatternNotFound   = NewDomainError(ErrCodeNotFound, "resolution pattern not found")
	ErrQueueItemNotFound = NewDomainError(ErrCodeNotFound, "learning queue item not found")
	ErrSettingsNotFound  = NewDomainError(ErrCodeNotFound, "workflow settings not found")
)

// Authorization errors
var (
	ErrInvalidAdminToken = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
)

// Operation errors
var (
	ErrFreeTierOverride   = NewDomainError(ErrCodeInvalidOperation, "rate limits cannot be changed while free tier is enabled")
	ErrFreeTierPinned     = NewDomainError(ErrCodeInvalidOperation, "free tier is enforced by the server configuration")
	ErrQueueItemCompleted = NewDomainError(ErrCodeInvalidOperation, "completed queue items cannot change state")
	ErrStorageNotEnabled  = NewDomainError(ErrCodeInvalidOperation, "article archive is not configured")
	ErrSweepInProgress    = NewDomainError(ErrCodeInvalidOperation, "a learning sweep is already running")
)

// Request errors
var (
	ErrPayloadTooLarge = NewDomainError(ErrCodePayloadTooLarge, "request body too large")
	ErrInvalidBody     = NewDomainError(ErrCodeValidation, "invalid request body")
	ErrEmptyBody       = NewDomainError(ErrCodeValidation, "request body is empty")
)

// ProviderError is a failed call to the model provider: transport errors,
// timeouts and non-2xx responses. Retried up to the queue attempt cap.
type ProviderError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is model output that does not match the expected
// schema. Retried, since a new completion may parse.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.Reason)
}

// NewMalformedResponse builds a MalformedResponseError, keeping at most 500
// bytes of the raw output for diagnostics.
func NewMalformedResponse(reason, raw string) *MalformedResponseError {
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return &MalformedResponseError{Reason: reason, Raw: raw}
}

// QuotaDeniedError is a refusal by the rate and cost governor. The provider
// was not called and no quota was consumed.
type QuotaDeniedError struct {
	Kind  CallKind
	Limit QuotaLimit
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("%s call denied: %s", e.Kind, e.Limit.Reason())
}

// ValidationError wraps err as a non-retryable validation failure.
func ValidationError(message string, err error) error {
	return NewDomainErrorWithCause(ErrCodeValidation, message, err)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// AsQuotaDenied extracts a governor denial from err.
func AsQuotaDenied(err error) (*QuotaDeniedError, bool) {
	var qe *QuotaDeniedError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// IsRetryable reports whether a failed pipeline step may succeed on a later
// attempt. Validation failures never are.
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}
	return true
}

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response. Code is the machine
// readable domain error code when one is known.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorCode returns the domain error code carried by err, or "" when err is
// not a domain failure.
func ErrorCode(err error) string {
	if _, ok := domain.AsQuotaDenied(err); ok {
		return domain.ErrCodeQuotaDenied
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return domain.ErrCodeProvider
	}
	var malformed *domain.MalformedResponseError
	if errors.As(err, &malformed) {
		return domain.ErrCodeMalformedResponse
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) && providerErr.Timeout {
		return http.StatusGatewayTimeout
	}

	switch ErrorCode(err) {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists, domain.ErrCodeInvalidOperation:
		return http.StatusConflict
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.ErrCodeQuotaDenied:
		return http.StatusTooManyRequests
	case domain.ErrCodeProvider, domain.ErrCodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Governor denials carry a Retry-After header when waiting can help.
func HandleError(w http.ResponseWriter, err error) {
	if qe, ok := domain.AsQuotaDenied(err); ok {
		if wait := qe.Limit.RetryAfter(); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
		}
	}
	JSON(w, DomainErrorToHTTP(err), ErrorResponse{Error: err.Error(), Code: ErrorCode(err)})
}

// DecodeJSON reads the request body into dst
func DecodeJSON(r *http.Request, dst interface{}) error {
	return decode(json.NewDecoder(r.Body), dst)
}

// DecodeJSONStrict is DecodeJSON that also rejects unknown fields
func DecodeJSONStrict(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return decode(dec, dst)
}

func decode(dec *json.Decoder, dst interface{}) error {
	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return domain.ErrPayloadTooLarge
	case errors.Is(err, io.EOF):
		return domain.ErrEmptyBody
	default:
		return domain.ValidationError(domain.ErrInvalidBody.Message, err)
	}
}

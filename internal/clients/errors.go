package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed call to a backend service
type ErrorKind int

const (
	// KindUnexpected covers failures that do not fit any other kind
	KindUnexpected ErrorKind = iota
	// KindTimeout means the backend did not answer within the call timeout
	KindTimeout
	// KindConnection means the backend could not be reached
	KindConnection
	// KindUpstream means the backend answered with an error status
	KindUpstream
	// KindBusy means the backend accepted the request but queued it
	KindBusy
	// KindValidation means the caller supplied invalid input
	KindValidation
)

// String returns the lowercase name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindUpstream:
		return "upstream"
	case KindBusy:
		return "busy"
	case KindValidation:
		return "validation"
	default:
		return "unexpected"
	}
}

// ServiceError is the error returned by every client operation
type ServiceError struct {
	// Service is the capability name ("STT", "TTS", "Embedding", "LLM")
	Service string

	// Kind classifies the failure
	Kind ErrorKind

	// StatusCode is the backend HTTP status, zero when no response arrived
	StatusCode int

	// Detail is backend-provided error text, if any
	Detail string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	var msg string
	switch e.Kind {
	case KindTimeout:
		msg = fmt.Sprintf("%s service timed out", e.Service)
	case KindConnection:
		msg = fmt.Sprintf("%s service connection failed", e.Service)
	case KindUpstream:
		msg = fmt.Sprintf("%s service returned %d", e.Service, e.StatusCode)
	case KindBusy:
		msg = fmt.Sprintf("%s service busy, request queued", e.Service)
	case KindValidation:
		msg = fmt.Sprintf("%s request invalid", e.Service)
	default:
		msg = fmt.Sprintf("%s service error", e.Service)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil && e.Kind == KindUnexpected {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// KindOf returns the ErrorKind of err, or KindUnexpected when err is not a ServiceError
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// IsTransient reports whether err is a network-class failure worth retrying.
// Busy, validation and 4xx errors (other than 429) are never transient.
func IsTransient(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindUpstream:
		return retryableStatus(se.StatusCode)
	default:
		return false
	}
}

// retryableStatus is the fixed set of statuses retried at both layers
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func newValidationError(service, detail string) *ServiceError {
	return &ServiceError{Service: service, Kind: KindValidation, Detail: detail}
}

func newUnexpectedError(service string, cause error) *ServiceError {
	return &ServiceError{Service: service, Kind: KindUnexpected, Cause: cause}
}

// transportError maps an error from the HTTP round trip to a ServiceError
func transportError(service string, err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{Service: service, Kind: KindTimeout, Cause: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ServiceError{Service: service, Kind: KindTimeout, Cause: err}
	case errors.Is(err, context.Canceled):
		return &ServiceError{Service: service, Kind: KindUnexpected, Cause: err}
	default:
		return &ServiceError{Service: service, Kind: KindConnection, Cause: err}
	}
}

// upstreamError builds an Upstream error carrying whatever detail the body exposes
func upstreamError(service string, status int, body []byte) *ServiceError {
	return &ServiceError{
		Service:    service,
		Kind:       KindUpstream,
		StatusCode: status,
		Detail:     errorDetail(body),
	}
}

// errorDetail extracts the "error", "detail" or "message" field of a JSON error body
func errorDetail(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		switch v := payload[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return strings.TrimSpace(msg)
			}
		}
	}
	return ""
}

package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edgexpo/voicegateway/internal/clients"
	"github.com/edgexpo/voicegateway/internal/crm"
	"github.com/edgexpo/voicegateway/internal/rag"
)

// StatusFor maps an error from a service call onto an HTTP status
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, crm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crm.ErrInvalidContact), errors.Is(err, rag.ErrEmptyContent):
		return http.StatusBadRequest
	}

	var se *clients.ServiceError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case clients.KindTimeout, clients.KindConnection, clients.KindBusy:
		return http.StatusServiceUnavailable
	case clients.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message that is safe to show to API clients. It
// never includes wrapped causes, so file paths and stack details stay in
// the logs.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, crm.ErrNotFound):
		return "contact not found"
	case errors.Is(err, crm.ErrInvalidContact):
		return err.Error()
	case errors.Is(err, rag.ErrEmptyContent):
		return "content must not be empty"
	}

	var se *clients.ServiceError
	if !errors.As(err, &se) {
		return "internal server error"
	}
	switch se.Kind {
	case clients.KindTimeout, clients.KindConnection:
		return fmt.Sprintf("%s service is temporarily unavailable, please try again later", se.Service)
	case clients.KindBusy:
		return fmt.Sprintf("%s service is busy, please try again later", se.Service)
	case clients.KindValidation:
		return fmt.Sprintf("%s request is invalid", se.Service)
	case clients.KindUpstream:
		return fmt.Sprintf("%s service returned an error", se.Service)
	default:
		return fmt.Sprintf("%s service error", se.Service)
	}
}

// PublicDetail returns the backend-provided detail of a service error, if any
func PublicDetail(err error) string {
	var se *clients.ServiceError
	if !errors.As(err, &se) {
		return ""
	}
	if se.Kind == clients.KindUnexpected {
		return ""
	}
	return se.Detail
}

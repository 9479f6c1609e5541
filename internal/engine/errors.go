package engine

import (
	"errors"
	"fmt"

	"coach-backend/internal/schema"
)

// Kind separates failures callers render differently: field feedback for
// validation, a generic banner for the rest.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindTransport     Kind = "transport"
	KindEnvelope      Kind = "envelope"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
)

type AppError struct {
	Kind    Kind          `json:"kind"`
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	Err     error         `json:"-"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether the error has the given kind.
func (e *AppError) Is(kind Kind) bool {
	return e != nil && e.Kind == kind
}

// FieldErrors maps field names to their first message.
func (e *AppError) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Details))
	for _, d := range e.Details {
		if _, ok := out[d.Field]; !ok {
			out[d.Field] = d.Message
		}
	}
	return out
}

// ErrorResponse is the failure envelope written over HTTP. It keeps the
// {success:false, error} shape collaborators answer with, so one instance
// can sit behind another.
type ErrorResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Kind    Kind          `json:"kind,omitempty"`
	Code    string        `json:"code"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func NewErrorResponse(e *AppError) ErrorResponse {
	return ErrorResponse{Error: e.Message, Kind: e.Kind, Code: e.Code, Details: e.Details}
}

// AsAppError returns err as an *AppError, classifying anything else as a
// transport failure.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return ValidationError(verr)
	}
	return TransportError(err)
}

func ValidationError(verr *schema.ValidationError) *AppError {
	details := make([]ErrorDetail, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		details = append(details, ErrorDetail{Field: f.Field, Rule: f.Tag, Message: f.Message})
	}
	return &AppError{
		Kind:    KindValidation,
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
		Err:     verr,
	}
}

func TransportError(err error) *AppError {
	return &AppError{
		Kind:    KindTransport,
		Code:    "REMOTE_FAILED",
		Status:  502,
		Message: fmt.Sprintf("Remote call failed: %v", err),
		Err:     err,
	}
}

func EnvelopeError(message string) *AppError {
	if message == "" {
		message = "Request failed"
	}
	return &AppError{
		Kind:    KindEnvelope,
		Code:    "REQUEST_FAILED",
		Status:  400,
		Message: message,
	}
}

func ConfigurationError(format string, args ...any) *AppError {
	return &AppError{
		Kind:    KindConfiguration,
		Code:    "INVALID_CONFIGURATION",
		Status:  400,
		Message: fmt.Sprintf(format, args...),
	}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

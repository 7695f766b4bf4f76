// Package errors define el formato de error HTTP del servicio.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/oauthcallback/internal/callback"
)

// AppError es el error que se serializa al cliente.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"error"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // causa, solo para logs
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithCause agrega el error original (causa).
// Devuelve una COPIA del error
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// WithDetail agrega un detalle. Devuelve una COPIA.
func (e *AppError) WithDetail(k string, v any) *AppError {
	newErr := *e
	newErr.Details = make(map[string]any, len(e.Details)+1)
	for key, val := range e.Details {
		newErr.Details[key] = val
	}
	newErr.Details[k] = v
	return &newErr
}

// FromError convierte cualquier error en un AppError.
// Los errores conocidos del callback conservan código, status y detalles;
// los internos se exponen como un 500 genérico sin detalle.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if ce, ok := callback.AsError(err); ok && ce.Kind != callback.KindInternal {
		return &AppError{
			Code:       ce.Code,
			Message:    ce.Message,
			Details:    ce.Details,
			HTTPStatus: ce.Status,
			Err:        err,
		}
	}
	return ErrInternalServerError.WithCause(err)
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "The request is malformed or missing parameters.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "The requested resource does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "HTTP method not allowed for this route.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrInternalServerError = &AppError{
		Code:       callback.CodeInternal,
		Message:    "An internal error occurred. Please try again later.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "The service is temporarily unavailable.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrTooManyRequests = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// the structured error envelope, the translation of service errors into HTTP
// statuses, and small helpers for success responses.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting; 5xx responses are
//     logged with the request-scoped logger.
//   - `failErr()` maps service, ledger and identity errors with errors.Is/As
//     so that handlers never switch on error strings.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "Tahsilat kaydı bulunamadı"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/tahsilat-gateway/internal/http/middleware"
	"github.com/tbourn/tahsilat-gateway/internal/identity"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"Tahsilat kaydı bulunamadı"`
	// Per-field validation messages, keyed by JSON field name
	Fields map[string]string `json:"fields,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	failFields(c, status, code, msg, nil)
}

func failFields(c *gin.Context, status int, code, msg string, fields map[string]string) {
	resp := ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
		Fields:    fields,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates err into a response. Unknown errors become a generic
// 500 whose cause is only logged.
func failErr(c *gin.Context, err error) {
	var (
		verr *services.ValidationError
		rerr *services.RemoteError
		serr *identity.StatusError
	)
	switch {
	case errors.As(err, &verr):
		failFields(c, http.StatusBadRequest, ErrCodeValidation, msgInvalidInput, verr.Fields)
	case errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, services.ErrAnnouncementNotFound),
		errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, identity.ErrAccountDisabled):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.As(err, &rerr):
		code := ErrCodeRemote
		if rerr.Kind == ledger.KindTimeout {
			code = ErrCodeRemoteTimeout
		}
		fail(c, http.StatusBadGateway, code, rerr.Message)
	case errors.Is(err, identity.ErrTimeout), errors.Is(err, identity.ErrConnection):
		fail(c, http.StatusServiceUnavailable, ErrCodeIdentity, err.Error())
	case errors.As(err, &serr):
		fail(c, http.StatusBadGateway, ErrCodeIdentity, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgUnexpected)
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

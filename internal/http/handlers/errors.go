// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them while
// the Turkish `message` is meant for display. Generic codes mirror HTTP
// status semantics. The remaining ones name failures of the ledger or the
// identity provider that a status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_error",
//	  "message": "Geçersiz istek",
//	  "fields": {"tckn": "TCKN 11 haneli sayı olmalıdır"}
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Upstream failures:
	ErrCodeRemote        = "remote_error"
	ErrCodeRemoteTimeout = "remote_timeout"
	ErrCodeIdentity      = "identity_unavailable"
)

// User-visible messages shared by several handlers.
const (
	msgInvalidJSON   = "Geçersiz JSON gövdesi"
	msgInvalidInput  = "Geçersiz istek"
	msgInvalidID     = "Geçersiz kimlik"
	msgUnexpected    = "Beklenmeyen hata"
	msgRouteNotFound = "Kaynak bulunamadı"
)

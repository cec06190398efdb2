// Package ledger is the client for the remote collections ("tahsilat")
// ledger. It talks to the live HTTP API or to an in-process fixture, unwraps
// the remote success/error envelope, and reports every outcome as a Result
// value instead of a Go error so callers always get a terminal state.
package ledger

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed ledger call.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"     // deadline exceeded before a response
	KindConnection ErrorKind = "connection"  // dial/TLS/reset failures
	KindHTTPStatus ErrorKind = "http_status" // non-2xx status
	KindEnvelope   ErrorKind = "envelope"    // 2xx with success=false
	KindDecode     ErrorKind = "decode"      // body is not the expected JSON
	KindUnexpected ErrorKind = "unexpected"  // anything else
)

// User-visible messages. They are surfaced verbatim in query history.
const (
	msgTimeout      = "DSİ API zaman aşımı"
	msgConnection   = "DSİ API bağlantı hatası"
	msgUnknownError = "Bilinmeyen hata"
)

// maxBodyInMessage caps how much of a non-2xx body is echoed in messages.
const maxBodyInMessage = 200

// Error describes why a call failed. Status is set for KindHTTPStatus only.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
}

// Error implements the error interface so *Error can be wrapped and logged.
func (e *Error) Error() string { return e.Message }

// Result is the outcome of a ledger call: OK with a payload, or an Err.
type Result[T any] struct {
	OK      bool
	Payload T
	Err     *Error
}

// Message returns the failure message, or "" on success.
func (r Result[T]) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

func success[T any](p T) Result[T] { return Result[T]{OK: true, Payload: p} }

func failure[T any](e *Error) Result[T] { return Result[T]{Err: e} }

func timeoutError() *Error { return &Error{Kind: KindTimeout, Message: msgTimeout} }

func connectionError() *Error { return &Error{Kind: KindConnection, Message: msgConnection} }

func statusError(status int, body []byte) *Error {
	if len(body) > maxBodyInMessage {
		body = body[:maxBodyInMessage]
	}
	return &Error{
		Kind:    KindHTTPStatus,
		Status:  status,
		Message: fmt.Sprintf("DSİ API HTTP Hatası: %d - %s", status, string(body)),
	}
}

func envelopeError(remote string) *Error {
	if remote == "" {
		remote = msgUnknownError
	}
	return &Error{Kind: KindEnvelope, Message: "DSİ API Hatası: " + remote}
}

func decodeError(err error) *Error {
	return &Error{Kind: KindDecode, Message: "Beklenmeyen hata: " + err.Error()}
}

func unexpectedError(detail any) *Error {
	return &Error{Kind: KindUnexpected, Message: fmt.Sprintf("Beklenmeyen hata: %v", detail)}
}

// isSuccessStatus reports a 2xx status.
func isSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// Package services defines the business logic for collection queries,
// mirrored records, authentication, profiles and announcements.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Messages are user-visible (Turkish). Translation into HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/tahsilat-gateway/internal/ledger"
)

// Collection errors.
var (
	// ErrRecordNotFound indicates that the record does not exist, is inactive
	// or belongs to another user.
	ErrRecordNotFound = errors.New("Tahsilat kaydı bulunamadı")

	// ErrInternal is the generic message shown for unexpected faults.
	ErrInternal = errors.New("Beklenmeyen hata")
)

// Identity errors.
var (
	// ErrUnauthenticated is returned when a bearer token is missing or
	// cannot be resolved to a user.
	ErrUnauthenticated = errors.New("Kimlik doğrulama bilgileri geçersiz")

	// ErrUserNotFound indicates that the authenticated user row is gone.
	ErrUserNotFound = errors.New("Kullanıcı bulunamadı")
)

// Announcement errors.
var (
	ErrAnnouncementNotFound = errors.New("Duyuru bulunamadı")
)

// ValidationError carries per-field messages. It is returned before any
// side effect takes place.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RemoteError reports a failed ledger call. QueryID is set when the failure
// happened inside an audited query.
type RemoteError struct {
	QueryID string
	Kind    ledger.ErrorKind
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// InternalError wraps an unexpected fault inside an audited query. It
// matches ErrInternal with errors.Is; Cause is for logs only.
type InternalError struct {
	QueryID string
	Cause   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInternal.Error(), e.Cause)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

func remoteError(queryID string, e *ledger.Error) *RemoteError {
	if e == nil {
		return &RemoteError{QueryID: queryID, Kind: ledger.KindUnexpected, Message: "Bilinmeyen hata"}
	}
	return &RemoteError{QueryID: queryID, Kind: e.Kind, Message: e.Message}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/identity"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

func TestLogin(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	auth := stubAuthSvc{
		login: func(_ context.Context, u, p string) (*services.Session, error) {
			switch {
			case u == "ahmet" && p == "pw":
				return &services.Session{
					AccessToken:  "acc",
					RefreshToken: "ref",
					ExpiresAt:    exp,
					User:         &domain.User{ID: "u-1", Email: "ahmet@dsi.gov.tr"},
					External:     json.RawMessage(`{"token":"ext"}`),
				}, nil
			case u == "kapali":
				return nil, identity.ErrAccountDisabled
			case u == "yavas":
				return nil, identity.ErrTimeout
			default:
				return nil, identity.ErrInvalidCredentials
			}
		},
	}
	e := newTestEnv(t, nil, auth)

	w := e.do(t, http.MethodPost, "/auth/login", LoginRequest{UsernameOrEmail: "ahmet", Password: "pw"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	sess := decode[SessionResponse](t, w)
	if sess.Access != "acc" || sess.Refresh != "ref" || !sess.ExpiresAt.Equal(exp) || sess.User.Email != "ahmet@dsi.gov.tr" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if string(sess.External) != `{"token":"ext"}` {
		t.Fatalf("external data=%s", sess.External)
	}

	cases := []struct {
		user   string
		status int
		code   string
	}{
		{"wrong", http.StatusUnauthorized, ErrCodeUnauthorized},
		{"kapali", http.StatusForbidden, ErrCodeForbidden},
		{"yavas", http.StatusServiceUnavailable, ErrCodeIdentity},
	}
	for _, tc := range cases {
		w := e.do(t, http.MethodPost, "/auth/login", LoginRequest{UsernameOrEmail: tc.user, Password: "x"}, false)
		if er := decode[ErrorResponse](t, w); w.Code != tc.status || er.Code != tc.code {
			t.Fatalf("%s: %d %+v", tc.user, w.Code, er)
		}
	}

	w = e.do(t, http.MethodPost, "/auth/login", map[string]string{"username_or_email": "ahmet"}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing password -> %d", w.Code)
	}
}

func TestRefreshToken(t *testing.T) {
	auth := stubAuthSvc{
		refresh: func(_ context.Context, tok string) (*services.Session, error) {
			if tok != "r1" {
				return nil, services.ErrUnauthenticated
			}
			return &services.Session{AccessToken: "acc2", User: &domain.User{ID: "u-1"}}, nil
		},
	}
	e := newTestEnv(t, nil, auth)

	w := e.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{Refresh: "r1"}, false)
	if sess := decode[SessionResponse](t, w); w.Code != http.StatusOK || sess.Access != "acc2" || sess.Refresh != "" {
		t.Fatalf("refresh: %d %+v", w.Code, sess)
	}
	w = e.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{Refresh: "nope"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad refresh -> %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/auth/refresh", map[string]string{}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty refresh -> %d", w.Code)
	}
}

func TestMeAndProfile(t *testing.T) {
	e := newTestEnv(t, nil, nil)

	w := e.do(t, http.MethodGet, "/auth/me", nil, true)
	if u := decode[domain.User](t, w); w.Code != http.StatusOK || u.ID != e.user.ID {
		t.Fatalf("me: %d %+v", w.Code, u)
	}
	if w := e.do(t, http.MethodGet, "/auth/me", nil, false); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me -> %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/users/profile", nil, true)
	if u := decode[domain.User](t, w); w.Code != http.StatusOK || u.FirstName != "Ayşe" {
		t.Fatalf("profile: %d %+v", w.Code, u)
	}

	w = e.do(t, http.MethodPatch, "/users/profile", map[string]string{"last_name": "Kaya", "phone": "0532 123 45 67"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d body=%s", w.Code, w.Body.String())
	}
	if u := decode[domain.User](t, w); u.LastName != "Kaya" || u.FirstName != "Ayşe" || u.Phone != "+905321234567" {
		t.Fatalf("patched profile: %+v", u)
	}

	w = e.do(t, http.MethodPatch, "/users/profile", map[string]string{"phone": "12"}, true)
	if er := decode[ErrorResponse](t, w); w.Code != http.StatusBadRequest || er.Fields["phone"] == "" {
		t.Fatalf("invalid phone: %d %+v", w.Code, er)
	}
}

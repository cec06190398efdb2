// Package identity talks to the external identity provider that owns user
// credentials. The gateway never stores passwords: it asks the provider to
// log a user in or to validate a bearer token, and keeps only the profile.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/tahsilat-gateway/internal/config"
)

// Sentinel errors. Their messages are user-visible.
var (
	ErrInvalidCredentials = errors.New("Geçersiz kullanıcı adı veya şifre")
	ErrAccountDisabled    = errors.New("Hesap devre dışı veya yetkisiz")
	ErrInvalidToken       = errors.New("Token doğrulama hatası")
	ErrTimeout            = errors.New("Kimlik doğrulama servisi zaman aşımı")
	ErrConnection         = errors.New("Kimlik doğrulama servisi bağlantı hatası")
)

// StatusError reports an unexpected provider status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Kimlik doğrulama servisi hatası: %d - %s", e.Status, e.Body)
}

// Profile is the subset of provider user data the gateway keeps.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// LoginResult is the provider's login response. Raw holds the full body.
type LoginResult struct {
	Token        string          `json:"token"`
	TokenPayload *Profile        `json:"tokenPayload"`
	Raw          json.RawMessage `json:"-"`
}

// Client is the identity provider contract.
type Client interface {
	Login(ctx context.Context, usernameOrEmail, password string) (*LoginResult, error)
	ValidateToken(ctx context.Context, token string) (*Profile, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL string
	appID   int
	hc      *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg config.IdentityConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appID:   cfg.AppID,
		hc:      &http.Client{Timeout: cfg.Timeout},
	}
}

const maxErrorBody = 200

// Login exchanges credentials for a provider session.
func (c *HTTPClient) Login(ctx context.Context, usernameOrEmail, password string) (*LoginResult, error) {
	body, _ := json.Marshal(map[string]string{
		"usernameOrEmail": usernameOrEmail,
		"password":        password,
	})
	url := c.baseURL + "/api/Auth/Login/Application/" + strconv.Itoa(c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized:
		zerolog.Ctx(ctx).Warn().Msg("identity login rejected")
		return nil, ErrInvalidCredentials
	case status == http.StatusForbidden:
		return nil, ErrAccountDisabled
	case status != http.StatusOK:
		return nil, &StatusError{Status: status, Body: truncate(raw)}
	}

	out := &LoginResult{Raw: raw}
	if err := json.Unmarshal(raw, out); err != nil {
		// A 200 with a non-JSON body still counts as a successful login.
		out.Raw, _ = json.Marshal(map[string]string{"message": string(raw)})
	}
	return out, nil
}

// ValidateToken resolves a provider bearer token to a profile.
func (c *HTTPClient) ValidateToken(ctx context.Context, token string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/Auth/ValidateToken", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	status, raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrInvalidToken, status)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if p.Email == "" {
		return nil, fmt.Errorf("%w: email missing", ErrInvalidToken)
	}
	return &p, nil
}

func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, classify(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, classify(err)
	}
	return resp.StatusCode, raw, nil
}

func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func truncate(b []byte) string {
	r := []rune(string(b))
	if len(r) > maxErrorBody {
		r = r[:maxErrorBody]
	}
	return string(r)
}

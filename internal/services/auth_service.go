// Package services – AuthService
//
// AuthService delegates credential checks to the external identity provider
// and keeps a local user row per e-mail address. Sessions are locally signed
// access/refresh tokens; bearer tokens issued by the provider itself are also
// accepted and resolved through it.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/identity"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
)

// defaultMailDomain completes usernames that are not e-mail addresses.
const defaultMailDomain = "@dsi.gov.tr"

// Session is the result of a login or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string // empty on refresh
	ExpiresAt    time.Time
	User         *domain.User
	External     json.RawMessage // provider response on login
}

// AuthService authenticates users.
type AuthService struct {
	DB       *gorm.DB
	Identity identity.Client
	Tokens   *TokenManager
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, id identity.Client, tm *TokenManager) *AuthService {
	return &AuthService{DB: db, Identity: id, Tokens: tm}
}

// Login checks credentials with the identity provider, upserts the local
// user and issues a session. Provider errors (identity.ErrInvalidCredentials,
// identity.ErrAccountDisabled, transport errors) are returned unchanged.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return nil, &ValidationError{Fields: map[string]string{"username_or_email": "required"}}
	}

	res, err := s.Identity.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, err
	}

	email := usernameOrEmail
	var first, last string
	if p := res.TokenPayload; p != nil {
		if p.Email != "" {
			email = p.Email
		}
		first, last = p.Name, p.Surname
	}
	if !strings.Contains(email, "@") {
		email += defaultMailDomain
	}

	u, err := repo.UpsertUserByEmail(ctx, s.DB, email, first, last)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", u.ID).Msg("user logged in")

	sess, err := s.issue(u, true)
	if err != nil {
		return nil, err
	}
	sess.External = res.Raw
	return sess, nil
}

// Authenticate resolves a bearer token to a user. Local access tokens are
// verified in-process; other tokens are validated with the identity
// provider and the user is upserted from its profile.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.Tokens.Parse(token, TokenAccess)
	switch {
	case err == nil:
		u, err := repo.GetUser(ctx, s.DB, claims.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return u, err
	case errors.Is(err, ErrTokenExpired):
		return nil, ErrUnauthenticated
	}

	if s.Identity == nil {
		return nil, ErrUnauthenticated
	}
	p, err := s.Identity.ValidateToken(ctx, token)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("external token rejected")
		return nil, ErrUnauthenticated
	}
	return repo.UpsertUserByEmail(ctx, s.DB, p.Email, p.Name, p.Surname)
}

// Refresh issues a new access token from a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.Tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	u, err := repo.GetUser(ctx, s.DB, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return s.issue(u, false)
}

func (s *AuthService) issue(u *domain.User, withRefresh bool) (*Session, error) {
	access, exp, err := s.Tokens.Issue(u, TokenAccess)
	if err != nil {
		return nil, err
	}
	sess := &Session{AccessToken: access, ExpiresAt: exp, User: u}
	if withRefresh {
		if sess.RefreshToken, _, err = s.Tokens.Issue(u, TokenRefresh); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

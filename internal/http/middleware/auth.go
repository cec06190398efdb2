package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" header.
func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth rejects requests without a valid bearer token with 401.
// On success the user is stored under "user" and its id under "userID", and
// the request-scoped logger gains a user_id field.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c)
		if tok == "" {
			unauthorized(c, "Kimlik doğrulama bilgileri sağlanmadı")
			return
		}
		u, err := a.Authenticate(c.Request.Context(), tok)
		if err != nil || u == nil {
			unauthorized(c, "Kimlik doğrulama bilgileri geçersiz")
			return
		}

		c.Set(userIDKey, u.ID)
		c.Set(userKey, u)
		attachLogger(c, LoggerFrom(c).With().Str("user_id", u.ID).Logger())
		c.Next()
	}
}

// UserFrom returns the authenticated user, or nil outside RequireAuth.
func UserFrom(c *gin.Context) *domain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// UserIDFrom returns the authenticated user id, or "".
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="tahsilat"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}

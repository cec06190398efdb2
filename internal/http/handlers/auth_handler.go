// Authentication and profile HTTP handlers.
//
//   - POST  /auth/login      (identity provider login, issues local tokens)
//   - POST  /auth/refresh    (new access token)
//   - GET   /auth/me         (current user)
//   - GET   /users/profile   (current user's profile)
//   - PATCH /users/profile   (edit names and phone)
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/tahsilat-gateway/internal/domain"
	"github.com/tbourn/tahsilat-gateway/internal/http/middleware"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" binding:"required" example:"ahmet.yilmaz"`
	Password        string `json:"password"          binding:"required" example:"s3cret"`
}

// RefreshRequest is the JSON payload for refreshing an access token.
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// SessionResponse carries issued tokens and the local user.
type SessionResponse struct {
	Access    string          `json:"access"`
	Refresh   string          `json:"refresh,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *domain.User    `json:"user"`
	External  json.RawMessage `json:"external_data,omitempty" swaggertype:"object"`
}

// ProfileUpdateRequest is the JSON payload for editing the profile. Absent
// fields are left unchanged; an empty phone clears it.
type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name" example:"Ahmet"`
	LastName  *string `json:"last_name"  example:"Yılmaz"`
	Phone     *string `json:"phone"      example:"0532 123 45 67"`
}

func toSessionResponse(s *services.Session) SessionResponse {
	return SessionResponse{
		Access:    s.AccessToken,
		Refresh:   s.RefreshToken,
		ExpiresAt: s.ExpiresAt,
		User:      s.User,
		External:  s.External,
	}
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Verifies the credentials with the identity provider, provisions the local user and returns access and refresh tokens.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Invalid credentials"
// @Failure     403   {object}  handlers.ErrorResponse "Account disabled"
// @Failure     429   {object}  handlers.ErrorResponse "Too many attempts"
// @Failure     503   {object}  handlers.ErrorResponse "Identity provider unavailable"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Kullanıcı adı/e-posta ve şifre gerekli")
		return
	}
	sess, err := h.authSvc.Login(c.Request.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toSessionResponse(sess))
}

// RefreshToken godoc
// @ID          refreshToken
// @Summary     Refresh the access token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  true  "Refresh token"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     401   {object}  handlers.ErrorResponse "Invalid refresh token"
// @Router      /auth/refresh [post]
func (h *Handlers) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
		return
	}
	sess, err := h.authSvc.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toSessionResponse(sess))
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u := middleware.UserFrom(c)
	if u == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrUnauthenticated.Error())
		return
	}
	ok(c, http.StatusOK, u)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get profile
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /users/profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	u, err := h.profileSvc.Get(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update profile
// @Description Partially updates names and phone. Phone numbers are normalized to E.164.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ProfileUpdateRequest  true  "Profile changes"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse "Validation error"
// @Router      /users/profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidJSON)
		return
	}
	u, err := h.profileSvc.Update(c.Request.Context(), middleware.UserIDFrom(c), services.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bellvik/transport-planner/internal/middleware"
	"github.com/bellvik/transport-planner/internal/service"
)

// AuthHandler serves operator login and token endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// tokenBody is the request body of refresh and logout.
type tokenBody struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// authFailure maps auth service errors to a status and a client message.
// Unknown errors yield 500.
func authFailure(err error, op string) (int, string) {
	switch {
	case errors.Is(err, service.ErrJWTSecretMissing):
		return http.StatusInternalServerError, "authentication service not configured"
	case op == "login" && errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden, "account disabled"
	case op == "login" && errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid username or password"
	case op == "refresh" && (errors.Is(err, service.ErrInvalidCredentials) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrAccountDisabled)):
		return http.StatusUnauthorized, "invalid or expired refresh token"
	}
	log.Printf("handler: %s: %v", op, err)
	return http.StatusInternalServerError, op + " failed"
}

// Login handles POST /api/v1/auth/login
//
//	{"username":"ops","password":"secret"}
//
// Response 200:
//
//	{"access_token":"...","refresh_token":"...","admin":{"id":1,"username":"ops","full_name":"","role":"admin"}}
//
// 400 malformed body, 401 bad credentials, 403 disabled account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	pair, admin, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, msg := authFailure(err, "login")
		c.JSON(status, gin.H{"error": msg})
		return
	}

	log.Printf("handler: login: %s (%s)", admin.Username, admin.Role)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"admin": gin.H{
			"id":        admin.ID,
			"username":  admin.Username,
			"full_name": admin.FullName,
			"role":      admin.Role,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh. The presented refresh token is
// revoked and a new pair is returned.
//
//	{"refresh_token":"..."}
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req tokenBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		status, msg := authFailure(err, "refresh")
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout and answers 204.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req tokenBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		status, msg := authFailure(err, "logout")
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /api/v1/admin/me and echoes the caller's token claims.
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := c.Get(middleware.ContextKeyAdminID)
	role := c.GetString(middleware.ContextKeyRole)
	c.JSON(http.StatusOK, gin.H{
		"id":          id,
		"username":    c.GetString(middleware.ContextKeyUsername),
		"role":        role,
		"permissions": service.PermissionsOf(role),
	})
}

package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/service"
)

// Gin context keys set by JWTAuth.
const (
	ContextKeyAdminID  = "auth_admin_id"
	ContextKeyUsername = "auth_username"
	ContextKeyRole     = "auth_role"
)

// TokenValidator checks an access token. *service.AuthService implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*service.AuthClaims, error)
}

// JWTAuth authenticates admin requests with a Bearer access token. The
// admin's id, username and role are stored under the ContextKey* keys;
// anything else aborts with 401.
func JWTAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expected 'Authorization: Bearer <token>'"})
			return
		}

		claims, err := tokens.ValidateAccessToken(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			rid, _ := routing.RequestIDFromContext(c.Request.Context())
			log.Printf("middleware: auth: %s %s rejected (request %s): %v",
				c.Request.Method, c.Request.URL.Path, rid, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(ContextKeyAdminID, claims.AdminID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when JWTAuth stored one of
// roles. A missing role means JWTAuth did not run and yields 401.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(ContextKeyRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if _, ok := allowed[role]; !ok {
			log.Printf("middleware: auth: %s (%s) denied %s %s",
				c.GetString(ContextKeyUsername), role, c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

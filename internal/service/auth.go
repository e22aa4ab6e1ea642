package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bellvik/transport-planner/internal/storage"
)

// Sentinel errors for the auth service.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrJWTSecretMissing   = errors.New("auth: JWT_SECRET not configured")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrInvalidRole        = errors.New("auth: role must be admin or viewer")
	ErrWeakPassword       = errors.New("auth: password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("auth: username must be 3-64 characters of a-z, 0-9, '.', '_' or '-'")
	ErrAdminExists        = errors.New("auth: username already taken")
)

const (
	minPasswordLen = 8
	tokenIssuer    = "transport-planner"
)

// Permission names an operation on the maintenance API.
type Permission string

const (
	PermCacheRead  Permission = "cache:read"
	PermCachePurge Permission = "cache:purge"
)

// rolePermissions is the authorisation table. Viewers watch the cache,
// admins may also clear it.
var rolePermissions = map[string][]Permission{
	storage.RoleAdmin:  {PermCacheRead, PermCachePurge},
	storage.RoleViewer: {PermCacheRead},
}

// Allows reports whether role grants perm.
func Allows(role string, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RolesWith returns the roles granting perm, sorted.
func RolesWith(perm Permission) []string {
	var roles []string
	for role := range rolePermissions {
		if Allows(role, perm) {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

// PermissionsOf returns the permissions of role.
func PermissionsOf(role string) []Permission {
	return append([]Permission(nil), rolePermissions[role]...)
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

// AuthClaims are the JWT claims of an access token.
type AuthClaims struct {
	jwt.RegisteredClaims
	AdminID  int32  `json:"admin_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthService authenticates operators of the maintenance API. Access tokens
// are HS256 JWTs; refresh tokens are opaque, stored only as SHA-256 hashes
// and rotated on every use.
type AuthService struct {
	admins     storage.AdminsRepository
	tokens     storage.RefreshTokensRepository
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
	now        func() time.Time

	// dummyHash is compared against when the username is unknown so that a
	// miss costs as much as a wrong password.
	dummyHash []byte
}

// NewAuthService creates an AuthService. An empty jwtSecret makes every
// operation fail with ErrJWTSecretMissing.
func NewAuthService(
	admins storage.AdminsRepository,
	tokens storage.RefreshTokensRepository,
	jwtSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) *AuthService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)
	return &AuthService{
		admins:     admins,
		tokens:     tokens,
		secret:     []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
		now:       time.Now,
		dummyHash: dummy,
	}
}

// Login checks username and password and opens a session. Usernames are
// case-insensitive.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, *storage.Admin, error) {
	if len(s.secret) == 0 {
		return nil, nil, ErrJWTSecretMissing
	}

	admin, err := s.admins.GetAdminByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, nil, fmt.Errorf("auth: Login: %w", err)
	}
	hash := s.dummyHash
	if admin != nil {
		hash = []byte(admin.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || admin == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !admin.Active {
		return nil, nil, ErrAccountDisabled
	}

	pair, err := s.issue(ctx, admin)
	if err != nil {
		return nil, nil, err
	}
	return pair, admin, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old
// token. The new access token carries the account's current role, so a role
// change takes effect at the next refresh.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	if len(s.secret) == 0 {
		return nil, ErrJWTSecretMissing
	}

	hash := hashToken(rawRefreshToken)
	stored, err := s.tokens.GetRefreshToken(ctx, hash)
	switch {
	case err != nil:
		return nil, fmt.Errorf("auth: Refresh: %w", err)
	case stored == nil:
		return nil, ErrInvalidCredentials
	case stored.Revoked:
		return nil, ErrTokenRevoked
	case !s.now().Before(stored.ExpiresAt):
		return nil, ErrTokenExpired
	}

	if err := s.tokens.RevokeRefreshToken(ctx, hash); err != nil {
		return nil, fmt.Errorf("auth: Refresh: revoke: %w", err)
	}

	admin, err := s.admins.GetAdminByID(ctx, stored.AdminID)
	switch {
	case err != nil:
		return nil, fmt.Errorf("auth: Refresh: %w", err)
	case admin == nil:
		return nil, ErrInvalidCredentials
	case !admin.Active:
		return nil, ErrAccountDisabled
	}
	return s.issue(ctx, admin)
}

// Logout revokes a refresh token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string) error {
	if err := s.tokens.RevokeRefreshToken(ctx, hashToken(rawRefreshToken)); err != nil {
		return fmt.Errorf("auth: Logout: %w", err)
	}
	return nil
}

// ValidateAccessToken verifies signature, issuer and expiry of an access
// token and returns its claims. Tokens naming an unknown role are rejected.
func (s *AuthService) ValidateAccessToken(tokenString string) (*AuthClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrJWTSecretMissing
	}

	claims := &AuthClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: ValidateAccessToken: %w", err)
	}
	if _, ok := rolePermissions[claims.Role]; !ok {
		return nil, fmt.Errorf("auth: ValidateAccessToken: %q: %w", claims.Role, ErrInvalidRole)
	}
	return claims, nil
}

// CreateAdmin registers an operator account. An empty role means admin.
func (s *AuthService) CreateAdmin(ctx context.Context, username, password, fullName, role string) (*storage.Admin, error) {
	username = normalizeUsername(username)
	if !validUsername(username) {
		return nil, ErrInvalidUsername
	}
	if role == "" {
		role = storage.RoleAdmin
	}
	if _, ok := rolePermissions[role]; !ok {
		return nil, ErrInvalidRole
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	existing, err := s.admins.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("auth: CreateAdmin: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("auth: CreateAdmin: %q: %w", username, ErrAdminExists)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin, err := s.admins.CreateAdmin(ctx, &storage.Admin{
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: CreateAdmin: %w", err)
	}
	return admin, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// issue signs an access token for admin and stores a fresh refresh token.
func (s *AuthService) issue(ctx context.Context, admin *storage.Admin) (*TokenPair, error) {
	now := s.now()
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(admin.ID), 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign access token: %w", err)
	}

	refresh, err := randomToken(32)
	if err != nil {
		return nil, fmt.Errorf("auth: generate refresh token: %w", err)
	}
	if err := s.tokens.StoreRefreshToken(ctx, hashToken(refresh), admin.ID, now.Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("auth: store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func validUsername(u string) bool {
	if len(u) < 3 || len(u) > 64 {
		return false
	}
	for _, r := range u {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken is the form in which refresh tokens are stored.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognised by the tracker.
const (
	RoleDPO        = "dpo"
	RoleDepartment = "department"
	RoleCollector  = "collector"
)

var ErrUnknownRole = errors.New("unknown role")

type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// UserClaims identify the caller of the REST and WebSocket surfaces.
type UserClaims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl}
}

// Actor is a stable caller key used for throttling and logs.
func (c *UserClaims) Actor() string {
	if c.Department != "" {
		return c.Role + ":" + c.Department
	}
	if c.Subject != "" {
		return c.Role + ":" + c.Subject
	}
	return c.Role
}

func validRole(role string) bool {
	switch role {
	case RoleDPO, RoleDepartment, RoleCollector:
		return true
	}
	return false
}

// GenerateAccessToken signs a token for a caller. Accounts are owned by the
// tracker backend; the server never issues tokens itself, so this is the dev
// and tooling issuer (cmd/livetail mints its own token with it).
func (m *JWTManager) GenerateAccessToken(username, role, department string) (string, error) {
	if !validRole(role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := time.Now()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:       role,
		Department: department,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *JWTManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !validRole(claims.Role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}

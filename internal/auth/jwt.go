package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails parsing, signature or expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs and validates the bearer tokens issued by the main Imobix API.
// Several keys may be active at once; the kid header selects the verifying key.
type JWTManager struct {
	keys      map[string][]byte
	activeKid string
	duration  time.Duration
}

// Claims is the JWT payload the chat service relies on.
type Claims struct {
	UserID string `json:"sub_id"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a manager with a single unnamed key.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{"": secretKey}, "", duration)
}

// NewJWTManagerFromKeys supports rotation: tokens are signed with activeKid and any
// key in keys is accepted on verification.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{
		keys:      make(map[string][]byte, len(keys)),
		activeKid: activeKid,
		duration:  duration,
	}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// ParseKeys reads "kid:secret,kid2:secret2" into a key map.
func ParseKeys(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid key entry %q", p)
		}
		out[kid] = secret
	}
	if len(out) == 0 {
		return nil, errors.New("no keys configured")
	}
	return out, nil
}

// GenerateToken issues a signed token for userID. The chat service only issues tokens
// in tests and local tooling; production tokens come from the main API.
func (m *JWTManager) GenerateToken(userID string) (string, time.Time, error) {
	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("active key %q not configured", m.activeKid)
	}

	now := time.Now()
	expiresAt := now.Add(m.duration)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// tokens from the main API may carry the user only in sub
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateToken resolves a bearer token to the user id it was issued for.
func (m *JWTManager) ValidateToken(token string) (string, error) {
	claims, err := m.VerifyToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// BearerToken strips an optional "Bearer " prefix.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	return strings.TrimSpace(header)
}

type claimsKey struct{}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext extracts auth claims from the context, if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// UserID is a shortcut for the authenticated user id, or "".
func UserID(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return ""
}

package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the portal token payload. TokenType is "session" for
// authenticated representatives and "anonymous" for background student
// sessions established after a successful code entry.
type Claims struct {
	TokenType string `json:"token_type"`
	RepName   string `json:"rep_name,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewTokenManager(issuer, audience, secret string) *TokenManager {
	return &TokenManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

// SignSessionToken mints the representative session token. Its lifetime is
// what lets an authenticated session survive client restarts; access-code
// identity deliberately has no token and dies with the browsing session.
func (m *TokenManager) SignSessionToken(repID, repName string, ttl time.Duration) (string, error) {
	claims := Claims{
		TokenType: "session",
		RepName:   repName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   repID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) SignAnonymousToken(ttl time.Duration) (string, error) {
	claims := Claims{
		TokenType: "anonymous",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   "anon_" + uuid.NewString(),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) ParseSessionToken(raw string) (*Claims, error) {
	return m.parse(raw, "session")
}

func (m *TokenManager) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	return claims, nil
}

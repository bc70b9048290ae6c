package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshTokenTTL is fixed; only the access token TTL is configurable.
const RefreshTokenTTL = 7 * 24 * time.Hour

// TokenService issues and verifies HS256 signed bearer tokens. Access and
// refresh tokens share the signing secret and differ in the token_type claim
// and TTL.
type TokenService struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService creates a token service with the given signing secret and
// access token lifetime
func NewTokenService(secret string, accessTTL time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// IssueAccessToken issues a short-lived token for API calls
func (s *TokenService) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	return s.issue(userID, email, TokenTypeAccess, s.accessTTL)
}

// IssueRefreshToken issues a long-lived token accepted only by the refresh
// endpoint
func (s *TokenService) IssueRefreshToken(userID uuid.UUID, email string) (string, error) {
	return s.issue(userID, email, TokenTypeRefresh, RefreshTokenTTL)
}

func (s *TokenService) issue(userID uuid.UUID, email, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyAccessToken checks signature, expiry and token type
func (s *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, TokenTypeAccess)
}

// VerifyRefreshToken checks signature, expiry and token type
func (s *TokenService) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, TokenTypeRefresh)
}

func (s *TokenService) verify(tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

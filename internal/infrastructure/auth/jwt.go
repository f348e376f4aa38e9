package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type Claims struct {
	UserID    string    `json:"uid"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type JWTService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewJWTService(secret string, accessExpMinutes, refreshExpDays int) *JWTService {
	return &JWTService{
		secret:        []byte(secret),
		accessExpiry:  time.Duration(accessExpMinutes) * time.Minute,
		refreshExpiry: time.Duration(refreshExpDays) * 24 * time.Hour,
	}
}

// Generate issues a fresh access/refresh pair for the identity.
func (s *JWTService) Generate(userID, email, provider string) (*TokenPair, error) {
	now := biztime.NowUTC()

	access, err := s.sign(userID, email, provider, TokenTypeAccess, now, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(userID, email, provider, TokenTypeRefresh, now, s.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.accessExpiry),
	}, nil
}

func (s *JWTService) sign(userID, email, provider string, typ TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Provider:  provider,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Refresh rotates both tokens. The presented refresh token must be a valid
// refresh token; access tokens are rejected.
func (s *JWTService) Refresh(refreshToken string) (*TokenPair, *Claims, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, nil, fmt.Errorf("token is not a refresh token")
	}

	pair, err := s.Generate(claims.UserID, claims.Email, claims.Provider)
	if err != nil {
		return nil, nil, err
	}
	return pair, claims, nil
}

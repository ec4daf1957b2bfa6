package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "car-rental-events"

	useAccess  = "access"
	useRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is who an access token is issued to
type Identity struct {
	UserID string
	Email  string
	Role   string
	Name   string
}

// Claims is the payload of both token kinds. Refresh tokens carry only
// the subject; Use tells the two apart.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Use    string `json:"use"`
	jwt.RegisteredClaims
}

// Identity returns who the token was issued to
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role, Name: c.Name}
}

// JWTService signs and checks HS256 tokens for the rental API
type JWTService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTService(secretKey string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// GenerateAccessToken issues a short-lived token carrying the caller's
// role and display name
func (s *JWTService) GenerateAccessToken(id Identity) (string, time.Time, error) {
	return s.sign(Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		Name:   id.Name,
		Use:    useAccess,
	}, id.UserID, s.accessTTL)
}

// GenerateRefreshToken issues a long-lived token for userID. Every token
// gets its own id, so two issued in the same second still differ.
func (s *JWTService) GenerateRefreshToken(userID string) (string, time.Time, error) {
	return s.sign(Claims{Use: useRefresh}, userID, s.refreshTTL)
}

// ValidateAccessToken returns the claims of a valid access token.
// Refresh tokens are rejected.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, useAccess)
}

// ValidateRefreshToken returns the user id of a valid refresh token
func (s *JWTService) ValidateRefreshToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, useRefresh)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetAccessTokenExpiry returns the access token lifetime
func (s *JWTService) GetAccessTokenExpiry() time.Duration {
	return s.accessTTL
}

// GetRefreshTokenExpiry returns the refresh token lifetime
func (s *JWTService) GetRefreshTokenExpiry() time.Duration {
	return s.refreshTTL
}

func (s *JWTService) sign(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Use, err)
	}
	return signed, expiresAt, nil
}

func (s *JWTService) parse(tokenString, use string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.Use != use || claims.Subject == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}

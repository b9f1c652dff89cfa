package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens signed with a server secret.
type TokenManager struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration, now: time.Now}
}

// GenerateToken creates a signed JWT for a specific user.
func (m *TokenManager) GenerateToken(user domain.User) (string, error) {
	now := m.now()
	claims := &CustomClaims{
		UserID:   string(user.ID),
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (m *TokenManager) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

// Verify adapts ValidateToken to the identity the presence engine admits.
func (m *TokenManager) Verify(tokenString string) (domain.Identity, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	identity := domain.Identity{
		UserID:   domain.UserID(claims.UserID),
		Username: claims.Username,
		Email:    claims.Email,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrPlayerMismatch = errors.New("token does not belong to this player")
)

// Service validates the bearer tokens clients present when they connect.
// Issuing accounts is handled elsewhere; GenerateToken exists for operators
// and tests.
type Service struct {
	jwtSecret []byte
	ttl       time.Duration
}

func NewService(secret string) *Service {
	return &Service{jwtSecret: []byte(secret), ttl: 24 * time.Hour}
}

// Enabled reports whether a secret is configured. Without one connections
// are not authenticated.
func (s *Service) Enabled() bool {
	return s != nil && len(s.jwtSecret) > 0
}

func (s *Service) GenerateToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.ttl).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
		}
		return userID, nil
	}

	return "", ErrInvalidToken
}

// Authorize checks that tokenString was issued to playerID. It always
// succeeds when authentication is disabled.
func (s *Service) Authorize(tokenString, playerID string) error {
	if !s.Enabled() {
		return nil
	}
	userID, err := s.ValidateToken(tokenString)
	if err != nil {
		return err
	}
	if userID != playerID {
		return ErrPlayerMismatch
	}
	return nil
}

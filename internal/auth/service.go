package auth

import (
	"context"
	"errors"
	"fmt"

	"edulink/internal/config"
	"edulink/internal/database"
	"edulink/internal/models"
	"edulink/internal/relayerr"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredential = relayerr.New(relayerr.CodeAuthenticationFailure, "invalid credential")
	ErrExpired           = relayerr.New(relayerr.CodeAuthenticationFailure, "credential expired")
)

// Service is the identity authority the gateway consults once per
// connection at handshake time.
type Service struct {
	users database.UserRepository
	cfg   *config.Config
}

func NewService(users database.UserRepository, cfg *config.Config) *Service {
	return &Service{
		users: users,
		cfg:   cfg,
	}
}

// Authenticate validates the bearer token and returns the live user record
// behind it. Disabled and unapproved accounts are refused even when the
// token itself is valid.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}

	claims, err := s.validateToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidCredential
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if relayerr.Is(err, relayerr.CodeNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if !user.CanMessage() {
		return nil, relayerr.New(relayerr.CodeInactive, "account is disabled or not approved")
	}

	return user, nil
}

func (s *Service) validateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

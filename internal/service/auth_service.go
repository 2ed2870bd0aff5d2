package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/platform/validation"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

const minPasswordLen = 8

// AuthService issues HS256 tokens whose subject is the user id.
type AuthService struct {
	UserRepo repository.UserRepositoryInterface
	Secret   []byte
	TTL      time.Duration
	Now      func() time.Time
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validation.IsEmail(email) {
		return nil, "", appErrors.NewValidation("email", "invalid email format")
	}
	if len(password) < minPasswordLen {
		return nil, "", appErrors.NewValidation("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Email: email, PasswordHash: string(hash)}
	if err := s.UserRepo.Create(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.issue(u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login never says which of email or password was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	u, err := s.UserRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, "", appErrors.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", appErrors.ErrInvalidCredentials
	}

	token, err := s.issue(u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// ParseToken validates a token and returns the user id it was issued for.
func (s *AuthService) ParseToken(raw string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErrors.ErrInvalidCredentials, err)
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", appErrors.ErrInvalidCredentials)
	}
	return id, nil
}

func (s *AuthService) issue(userID int) (string, error) {
	now := s.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

package services

import (
	"context"
	"errors"
	"time"

	"care-alert/internal/models"
	"care-alert/internal/repository"
	apperrors "care-alert/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AccountStore resolves caregiver login identities. Satisfied by
// repository.CaregiverAccountRepository.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.CaregiverAccount, error)
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
}

// AuthService authenticates caregivers and issues API tokens. Account
// provisioning belongs to the surrounding application.
type AuthService struct {
	accounts  AccountStore
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthService(accounts AccountStore, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		accounts:  accounts,
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
		logger:    logger,
	}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.CaregiverAccount, string, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if account.Status != 1 {
		return nil, "", apperrors.ErrAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"email": account.Email,
		"name":  account.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, "", err
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.Email, now); err != nil {
		s.logger.Warn("updating last login failed", zap.String("email", email), zap.Error(err))
	}
	return account, token, nil
}

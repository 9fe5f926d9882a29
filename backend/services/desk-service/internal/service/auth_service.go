package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/password"
	"cyberdesk/backend/services/desk-service/internal/repository"
)

// OperatorStore defines operator storage used by the service.
type OperatorStore interface {
	Create(ctx context.Context, op *models.Operator) error
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
}

// AuthService authenticates staff operators.
type AuthService struct {
	repo      OperatorStore
	hasher    password.Hasher
	tokenizer *TokenService
	logger    *zap.Logger
}

// NewAuthService builds AuthService.
func NewAuthService(repo OperatorStore, hasher password.Hasher, tokenizer *TokenService, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// CreateOperator registers an operator account.
func (s *AuthService) CreateOperator(ctx context.Context, username, plain string) (*models.Operator, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, password.MinLength)
		}
		return nil, err
	}

	op := &models.Operator{Username: username, PasswordHash: hash}
	if err := s.repo.Create(ctx, op); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: operator %s already exists", ErrConflict, username)
		}
		return nil, err
	}

	s.logger.Info("operator created", zap.Int64("operator_id", op.ID), zap.String("username", op.Username))
	return op, nil
}

// Login authenticates an operator and produces a JWT.
func (s *AuthService) Login(ctx context.Context, username, plain string) (string, *models.Operator, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || plain == "" {
		return "", nil, ErrInvalidCredentials
	}

	op, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := s.hasher.Compare(op.PasswordHash, plain); err != nil {
		s.logger.Info("operator login rejected", zap.String("username", username))
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokenizer.GenerateToken(op.ID, op.Username)
	if err != nil {
		return "", nil, err
	}

	return token, op, nil
}

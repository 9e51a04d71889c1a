// Package auth registers individuals and issues the bearer tokens that identify them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/pkg/config"
	jwtpkg "github.com/splax/teamup/pkg/jwt"
)

// ErrUnauthorized is returned for missing, invalid or expired tokens.
var ErrUnauthorized = errors.New("invalid or expired token")

// Service handles authentication workflows.
type Service struct {
	individuals repository.IndividualRepository
	logger      *slog.Logger
	cfg         config.APIConfig
}

// New constructs a Service.
func New(individuals repository.IndividualRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{individuals: individuals, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Register creates an individual and returns tokens for them.
func (s Service) Register(ctx context.Context, name, email string) (*domain.Individual, TokenPair, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, TokenPair{}, domain.Errorf(domain.KindInvalidArgument, "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, TokenPair{}, domain.Errorf(domain.KindInvalidArgument, "a valid email is required")
	}
	individual := &domain.Individual{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     strings.ToLower(addr.Address),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.individuals.CreateIndividual(ctx, individual); err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			return nil, TokenPair{}, domain.Errorf(domain.KindInvalidArgument, "email already registered")
		}
		return nil, TokenPair{}, fmt.Errorf("create individual: %w", err)
	}
	tokens, err := s.issueTokens(individual.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("individual registered", "individual_id", individual.ID)
	return individual, tokens, nil
}

// Refresh exchanges a valid token for a new pair.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	individual, _, err := s.Authorize(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issueTokens(individual.ID)
}

// Authorize validates a bearer token and returns the associated individual and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.Individual, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	individual, err := s.individuals.GetIndividual(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}
	return individual, claims, nil
}

func (s Service) issueTokens(individualID string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(individualID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(individualID, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

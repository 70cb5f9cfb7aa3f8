package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
)

// ErrInvalidCredentials covers both unknown email and wrong password, so a
// caller can never tell which factor failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore verifies representative passwords and issues anonymous
// sessions. Any error other than ErrInvalidCredentials is an infrastructure
// failure the caller treats as a system error.
type CredentialStore struct {
	reps    repository.RepresentativeRepository
	tokens  *security.TokenManager
	anonTTL time.Duration
}

func NewCredentialStore(reps repository.RepresentativeRepository, tokens *security.TokenManager, anonTTL time.Duration) *CredentialStore {
	return &CredentialStore{reps: reps, tokens: tokens, anonTTL: anonTTL}
}

func (s *CredentialStore) SignIn(ctx context.Context, email, password string) (*domain.Representative, error) {
	rep, err := s.reps.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrRepresentativeNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up representative: %w", err)
	}
	if !security.VerifyPassword(rep.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return rep, nil
}

func (s *CredentialStore) SignInAnonymously(ctx context.Context) (string, error) {
	return s.tokens.SignAnonymousToken(s.anonTTL)
}

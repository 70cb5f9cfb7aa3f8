package service

import (
	"context"

	"github.com/coursehub/portal-access/internal/domain"
)

// AuthService is the credential-store surface the session manager depends
// on; CredentialStore is the production implementation.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*domain.Representative, error)
	SignInAnonymously(ctx context.Context) (string, error)
}

// CodeResolverService abstracts the resolver for the session manager.
type CodeResolverService interface {
	FastPath(code string) (*domain.CodeOwner, bool)
	Resolve(ctx context.Context, code string) (*domain.CodeOwner, string, error)
}

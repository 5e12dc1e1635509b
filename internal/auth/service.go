package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ledgergate/ledgergate/internal/shared"
	"github.com/ledgergate/ledgergate/internal/users"
)

// UserSource provides the account lookups the auth flow needs.
type UserSource interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Get(ctx context.Context, id int64) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	accounts UserSource
	repo     Repository
}

// NewService constructs a new Service.
func NewService(accounts UserSource, repo Repository) *Service {
	return &Service{accounts: accounts, repo: repo}
}

// Authenticate validates email/password credentials. Every failure mode
// collapses to ErrInvalidCredentials so responses never reveal whether the
// account exists.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RevokeUserSessions drops every session record for a user.
func (s *Service) RevokeUserSessions(ctx context.Context, userID int64) (int64, error) {
	return s.repo.DeleteSessionsForUser(ctx, userID)
}

// Lookup loads an account by id for session resolution.
func (s *Service) Lookup(ctx context.Context, id int64) (users.User, error) {
	return s.accounts.Get(ctx, id)
}

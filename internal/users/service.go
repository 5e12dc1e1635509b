package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
)

var searchFolder = cases.Fold()

// Service handles user management. Role assignment is the one real state
// machine in the portal: both the target's current role and the new role
// must be manageable by the actor, so a two-step change can never escalate
// past what a direct change would allow.
type Service struct {
	repo     RepositoryPort
	gate     *authz.Gate
	resolver *authz.Resolver
	cfg      *authz.Config
	tree     authz.TreeSource
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, gate *authz.Gate, resolver *authz.Resolver, cfg *authz.Config, tree authz.TreeSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, resolver: resolver, cfg: cfg, tree: tree, logger: logger}
}

// List returns the users visible to the principal: staff see everyone,
// scoped callers see accounts assigned inside their accessible set.
func (s *Service) List(ctx context.Context, p authz.Principal, q ListQuery) ([]User, shared.Pagination, error) {
	if err := s.gate.Require(p, authz.CapUsersView); err != nil {
		return nil, shared.Pagination{}, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if q.PerPage <= 0 {
		q.PerPage = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	q.Search = searchFolder.String(strings.TrimSpace(q.Search))
	items, total, err := s.repo.List(ctx, authz.BuildFilter(scope), q)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(q.Page, q.PerPage, total), nil
}

// Get returns one user, hidden outside the caller's scope.
func (s *Service) Get(ctx context.Context, p authz.Principal, id int64) (User, error) {
	if err := s.gate.Require(p, authz.CapUsersView); err != nil {
		return User{}, err
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return User{}, err
	}
	if !scope.IsUnrestricted() && !intersects(scope, user.CompanyIDs) {
		return User{}, httpx.ErrNotFound
	}
	return user, nil
}

// Create provisions a new account. The actor must be able to manage the
// requested role, and every assigned company must exist.
func (s *Service) Create(ctx context.Context, p authz.Principal, input CreateInput) (User, error) {
	if err := s.gate.Require(p, authz.CapUsersManage); err != nil {
		return User{}, err
	}
	ok, err := s.cfg.CanManage(p.Role, input.Role)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, fmt.Errorf("%w: role %s cannot assign %s", authz.ErrInsufficientRole, p.Role, input.Role)
	}
	if err := s.validateCompanies(ctx, input.CompanyIDs); err != nil {
		return User{}, err
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	created, err := s.repo.Create(ctx, input, string(hash))
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created",
		slog.Int64("user_id", created.ID),
		slog.String("role", created.Role.String()),
		slog.Int64("actor_id", p.UserID))
	return created, nil
}

// Update rewrites profile fields for a manageable account.
func (s *Service) Update(ctx context.Context, p authz.Principal, id int64, input UpdateInput) (User, error) {
	if err := s.gate.Require(p, authz.CapUsersManage); err != nil {
		return User{}, err
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.requireManageable(p, target.Role); err != nil {
		return User{}, err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.repo.Update(ctx, id, input); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// ChangeRole reassigns a user's role. Both sides of the transition are
// checked against the actor.
func (s *Service) ChangeRole(ctx context.Context, p authz.Principal, id int64, newRole authz.Role) (User, error) {
	if err := s.gate.Require(p, authz.CapUsersManage); err != nil {
		return User{}, err
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.requireManageable(p, target.Role); err != nil {
		return User{}, err
	}
	if err := s.requireManageable(p, newRole); err != nil {
		return User{}, err
	}
	if err := s.repo.SetRole(ctx, id, newRole); err != nil {
		return User{}, err
	}
	s.logger.Info("user role changed",
		slog.Int64("user_id", id),
		slog.String("from", target.Role.String()),
		slog.String("to", newRole.String()),
		slog.Int64("actor_id", p.UserID))
	return s.repo.Get(ctx, id)
}

// AssignCompanies replaces a user's direct company assignments.
func (s *Service) AssignCompanies(ctx context.Context, p authz.Principal, id int64, companyIDs []int64) (User, error) {
	if err := s.gate.Require(p, authz.CapUsersManage); err != nil {
		return User{}, err
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.requireManageable(p, target.Role); err != nil {
		return User{}, err
	}
	if err := s.validateCompanies(ctx, companyIDs); err != nil {
		return User{}, err
	}
	if err := s.repo.SetCompanies(ctx, id, companyIDs); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Deactivate disables an account. Gated separately from manage.
func (s *Service) Deactivate(ctx context.Context, p authz.Principal, id int64) error {
	if err := s.gate.Require(p, authz.CapUsersDelete); err != nil {
		return err
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireManageable(p, target.Role); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("user deactivated", slog.Int64("user_id", id), slog.Int64("actor_id", p.UserID))
	return nil
}

// RoleOptions returns the roles the principal may assign.
func (s *Service) RoleOptions(ctx context.Context, p authz.Principal) ([]authz.Role, error) {
	if err := s.gate.Require(p, authz.CapUsersManage); err != nil {
		return nil, err
	}
	return s.cfg.ManageableRoles(p.Role)
}

func (s *Service) requireManageable(p authz.Principal, role authz.Role) error {
	ok, err := s.cfg.CanManage(p.Role, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %s cannot manage %s", authz.ErrInsufficientRole, p.Role, role)
	}
	return nil
}

func (s *Service) validateCompanies(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	snap, err := s.tree.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := snap.Company(id); !ok {
			return fmt.Errorf("%w: company %d does not exist", httpx.ErrValidation, id)
		}
	}
	return nil
}

func intersects(scope authz.CompanySet, ids []int64) bool {
	for _, id := range ids {
		if scope.Contains(id) {
			return true
		}
	}
	return false
}

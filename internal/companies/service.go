package companies

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
)

var searchFolder = cases.Fold()

// SnapshotScheduler queues a background rebuild of the company tree after a
// hierarchy write. The in-process snapshot is invalidated synchronously; the
// queue propagates the change to the worker so dependent caches re-warm.
type SnapshotScheduler interface {
	EnqueueTreeSnapshot(ctx context.Context) error
}

// Service handles company business logic. Every operation is gated and
// scoped through the access engine before touching storage.
type Service struct {
	repo      Repository
	gate      *authz.Gate
	resolver  *authz.Resolver
	tree      *TreeProvider
	scheduler SnapshotScheduler
	logger    *slog.Logger
}

// NewService builds Service instance. scheduler may be nil; hierarchy writes
// then skip background propagation.
func NewService(repo Repository, gate *authz.Gate, resolver *authz.Resolver, tree *TreeProvider, scheduler SnapshotScheduler, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, resolver: resolver, tree: tree, scheduler: scheduler, logger: logger}
}

func (s *Service) scheduleSnapshot(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.EnqueueTreeSnapshot(ctx); err != nil {
		s.logger.Warn("enqueue tree snapshot", slog.Any("error", err))
	}
}

// List returns the companies visible to the principal.
func (s *Service) List(ctx context.Context, p authz.Principal, q ListQuery) ([]Company, shared.Pagination, error) {
	if err := s.gate.Require(p, authz.CapCompaniesView); err != nil {
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

// Get returns one company. A company outside the principal's scope reports
// not-found rather than forbidden so its existence does not leak.
func (s *Service) Get(ctx context.Context, p authz.Principal, id int64) (Company, error) {
	if err := s.gate.Require(p, authz.CapCompaniesView); err != nil {
		return Company{}, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return Company{}, err
	}
	if !scope.Contains(id) {
		return Company{}, httpx.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Ancestors returns the parent chain of a visible company, nearest first.
func (s *Service) Ancestors(ctx context.Context, p authz.Principal, id int64) ([]authz.Company, error) {
	if err := s.gate.Require(p, authz.CapCompaniesView); err != nil {
		return nil, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(id) {
		return nil, httpx.ErrNotFound
	}
	snap, err := s.tree.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Ancestors(id)
}

// Create inserts a new company under the hierarchy rules: corporate roots
// have no parent, subsidiaries and branches exactly one.
func (s *Service) Create(ctx context.Context, p authz.Principal, input CreateInput) (Company, error) {
	if err := s.gate.Require(p, authz.CapCompaniesManage); err != nil {
		return Company{}, err
	}
	if err := validateCreate(input); err != nil {
		return Company{}, err
	}
	if input.ParentID != 0 {
		snap, err := s.tree.Snapshot(ctx)
		if err != nil {
			return Company{}, err
		}
		if err := snap.ValidateParent(0, input.ParentID); err != nil {
			return Company{}, err
		}
	}
	created, err := s.repo.Create(ctx, input)
	if err != nil {
		return Company{}, err
	}
	s.tree.Invalidate()
	s.scheduleSnapshot(ctx)
	s.logger.Info("company created",
		slog.Int64("company_id", created.ID),
		slog.String("kind", string(created.Kind)),
		slog.Int64("actor_id", p.UserID))
	return created, nil
}

// Update rewrites a company, including re-parenting. Every parent
// assignment is validated against the current tree before the write; the
// stored model cannot express the acyclicity requirement on its own.
func (s *Service) Update(ctx context.Context, p authz.Principal, id int64, input UpdateInput) (Company, error) {
	if err := s.gate.Require(p, authz.CapCompaniesManage); err != nil {
		return Company{}, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Company{}, err
	}
	if err := validateUpdate(existing, input); err != nil {
		return Company{}, err
	}
	if input.ParentID != existing.ParentID {
		snap, err := s.tree.Snapshot(ctx)
		if err != nil {
			return Company{}, err
		}
		if err := snap.ValidateParent(id, input.ParentID); err != nil {
			return Company{}, err
		}
	}
	if err := s.repo.Update(ctx, id, input); err != nil {
		return Company{}, err
	}
	s.tree.Invalidate()
	s.scheduleSnapshot(ctx)
	if input.ParentID != existing.ParentID {
		s.logger.Info("company re-parented",
			slog.Int64("company_id", id),
			slog.Int64("old_parent", existing.ParentID),
			slog.Int64("new_parent", input.ParentID),
			slog.Int64("actor_id", p.UserID))
	}
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes a company. Children keep their stored parent id;
// they remain reachable in the snapshot so scoped visibility below the
// deactivated node is unchanged until an administrator re-parents them.
func (s *Service) Deactivate(ctx context.Context, p authz.Principal, id int64) error {
	if err := s.gate.Require(p, authz.CapCompaniesManage); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.tree.Invalidate()
	s.scheduleSnapshot(ctx)
	s.logger.Info("company deactivated", slog.Int64("company_id", id), slog.Int64("actor_id", p.UserID))
	return nil
}

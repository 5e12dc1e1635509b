package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
)

// Service exposes scoped reads over billing documents. Every query passes
// through the caller's resolved company filter; an empty filter matches
// nothing, so a scoped user with no assignments sees an empty portal, not
// an error.
type Service struct {
	repo     RepositoryPort
	gate     *authz.Gate
	resolver *authz.Resolver
	tree     authz.TreeSource
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, gate *authz.Gate, resolver *authz.Resolver, tree authz.TreeSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, resolver: resolver, tree: tree, logger: logger}
}

// List returns the documents visible to the principal.
func (s *Service) List(ctx context.Context, p authz.Principal, q ListQuery) ([]Document, shared.Pagination, error) {
	if err := s.gate.Require(p, authz.CapDocumentsView); err != nil {
		return nil, shared.Pagination{}, err
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown document kind %q", httpx.ErrValidation, q.Kind)
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
	q.Search = strings.TrimSpace(q.Search)
	items, total, err := s.repo.List(ctx, authz.BuildFilter(scope), q)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(q.Page, q.PerPage, total), nil
}

// Get returns one document, hidden outside the caller's scope.
func (s *Service) Get(ctx context.Context, p authz.Principal, id int64) (Document, error) {
	if err := s.gate.Require(p, authz.CapDocumentsView); err != nil {
		return Document{}, err
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return Document{}, err
	}
	if !authz.BuildFilter(scope).Matches(doc.CompanyID) {
		return Document{}, httpx.ErrNotFound
	}
	return doc, nil
}

// Count returns how many documents match the query within the caller's
// scope.
func (s *Service) Count(ctx context.Context, p authz.Principal, q ListQuery) (int, error) {
	if err := s.gate.Require(p, authz.CapDocumentsView); err != nil {
		return 0, err
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown document kind %q", httpx.ErrValidation, q.Kind)
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	return s.repo.Count(ctx, authz.BuildFilter(scope), q)
}

// Create records a new document against a company. Managed by staff only;
// the company must exist in the tree.
func (s *Service) Create(ctx context.Context, p authz.Principal, doc Document) (Document, error) {
	if err := s.gate.Require(p, authz.CapDocumentsManage); err != nil {
		return Document{}, err
	}
	if !doc.Kind.Valid() {
		return Document{}, fmt.Errorf("%w: unknown document kind %q", httpx.ErrValidation, doc.Kind)
	}
	snap, err := s.tree.Snapshot(ctx)
	if err != nil {
		return Document{}, err
	}
	if _, ok := snap.Company(doc.CompanyID); !ok {
		return Document{}, fmt.Errorf("%w: company %d does not exist", httpx.ErrValidation, doc.CompanyID)
	}
	if doc.Status == "" {
		doc.Status = StatusOpen
	}
	created, err := s.repo.Create(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document created",
		slog.Int64("document_id", created.ID),
		slog.String("kind", string(created.Kind)),
		slog.Int64("company_id", created.CompanyID),
		slog.Int64("actor_id", p.UserID))
	return created, nil
}

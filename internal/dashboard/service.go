package dashboard

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/companies"
	"github.com/ledgergate/ledgergate/internal/documents"
	"github.com/ledgergate/ledgergate/internal/users"
)

// Stats is the dashboard payload. CompanyCount and UserCount are nil when
// the caller lacks the corresponding view capability, so a JSON null keeps
// "zero" and "not allowed to know" distinguishable.
type Stats struct {
	Documents    []documents.KindCount `json:"documents"`
	CompanyCount *int                  `json:"company_count"`
	UserCount    *int                  `json:"user_count"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// Service aggregates scoped statistics for the portal landing page.
type Service struct {
	docs      documents.RepositoryPort
	companies companies.Repository
	users     users.RepositoryPort
	gate      *authz.Gate
	resolver  *authz.Resolver
	cache     *Cache
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(docs documents.RepositoryPort, comps companies.Repository, usrs users.RepositoryPort, gate *authz.Gate, resolver *authz.Resolver, cache *Cache, logger *slog.Logger) *Service {
	return &Service{docs: docs, companies: comps, users: usrs, gate: gate, resolver: resolver, cache: cache, logger: logger}
}

// scopeToken renders a filter into a stable cache key fragment.
func scopeToken(filter authz.Filter) string {
	if filter.Unrestricted() {
		return "all"
	}
	ids := filter.CompanyIDs()
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// Stats returns the caller's dashboard, cached per role and scope.
func (s *Service) Stats(ctx context.Context, p authz.Principal) (Stats, error) {
	if err := s.gate.Require(p, authz.CapDashboardView); err != nil {
		return Stats{}, err
	}
	scope, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return Stats{}, err
	}
	filter := authz.BuildFilter(scope)

	key, err := s.cache.BuildKey(ctx, "dashboard", "stats", p.Role.String(), scopeToken(filter))
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	loader := func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, p, filter)
	}
	if err := s.cache.FetchJSON(ctx, key, &stats, loader); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Service) compute(ctx context.Context, p authz.Principal, filter authz.Filter) (Stats, error) {
	stats := Stats{GeneratedAt: time.Now().UTC()}

	summary, err := s.docs.Summarize(ctx, filter)
	if err != nil {
		return Stats{}, err
	}
	if summary == nil {
		summary = []documents.KindCount{}
	}
	stats.Documents = summary

	if s.gate.Check(p, authz.CapCompaniesView).Allowed {
		n, err := s.companies.Count(ctx, filter)
		if err != nil {
			return Stats{}, err
		}
		stats.CompanyCount = &n
	}
	if s.gate.Check(p, authz.CapUsersView).Allowed {
		n, err := s.users.Count(ctx, filter)
		if err != nil {
			return Stats{}, err
		}
		stats.UserCount = &n
	}
	return stats, nil
}

// Warm precomputes the unrestricted dashboards so staff logins after a
// cache bump do not pay the aggregation cost. Called from the cron job.
func (s *Service) Warm(ctx context.Context) error {
	for _, role := range []authz.Role{authz.RoleManager, authz.RoleAdministrator, authz.RoleGlobalAdmin} {
		p := authz.Principal{Role: role}
		if _, err := s.Stats(ctx, p); err != nil {
			return err
		}
		s.logger.Info("dashboard warmed", slog.String("role", role.String()))
	}
	return nil
}

// Invalidate bumps the cache version after document or tree changes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

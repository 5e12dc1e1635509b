package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/companies"
	"github.com/ledgergate/ledgergate/internal/documents"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/users"
)

type stubDocs struct {
	summary []documents.KindCount
	calls   int
}

func (s *stubDocs) List(context.Context, authz.Filter, documents.ListQuery) ([]documents.Document, int, error) {
	return nil, 0, nil
}

func (s *stubDocs) Get(context.Context, int64) (documents.Document, error) {
	return documents.Document{}, httpx.ErrNotFound
}

func (s *stubDocs) Count(context.Context, authz.Filter, documents.ListQuery) (int, error) {
	return 0, nil
}

func (s *stubDocs) Summarize(context.Context, authz.Filter) ([]documents.KindCount, error) {
	s.calls++
	return s.summary, nil
}

func (s *stubDocs) Create(_ context.Context, d documents.Document) (documents.Document, error) {
	return d, nil
}

func (s *stubDocs) SetStatus(context.Context, int64, documents.Status) error {
	return nil
}

type stubCompanies struct {
	count int
}

func (s *stubCompanies) List(context.Context, authz.Filter, companies.ListQuery) ([]companies.Company, int, error) {
	return nil, 0, nil
}

func (s *stubCompanies) ListAll(context.Context) ([]companies.Company, error) {
	return nil, nil
}

func (s *stubCompanies) Get(context.Context, int64) (companies.Company, error) {
	return companies.Company{}, httpx.ErrNotFound
}

func (s *stubCompanies) Children(context.Context, int64) ([]companies.Company, error) {
	return nil, nil
}

func (s *stubCompanies) Count(context.Context, authz.Filter) (int, error) {
	return s.count, nil
}

func (s *stubCompanies) Create(_ context.Context, in companies.CreateInput) (companies.Company, error) {
	return companies.Company{}, nil
}

func (s *stubCompanies) Update(context.Context, int64, companies.UpdateInput) error {
	return nil
}

func (s *stubCompanies) SetActive(context.Context, int64, bool) error {
	return nil
}

type stubUsers struct {
	count int
}

func (s *stubUsers) List(context.Context, authz.Filter, users.ListQuery) ([]users.User, int, error) {
	return nil, 0, nil
}

func (s *stubUsers) Get(context.Context, int64) (users.User, error) {
	return users.User{}, httpx.ErrNotFound
}

func (s *stubUsers) FindByEmail(context.Context, string) (users.User, error) {
	return users.User{}, httpx.ErrNotFound
}

func (s *stubUsers) Count(context.Context, authz.Filter) (int, error) {
	return s.count, nil
}

func (s *stubUsers) Create(context.Context, users.CreateInput, string) (users.User, error) {
	return users.User{}, nil
}

func (s *stubUsers) Update(context.Context, int64, users.UpdateInput) error {
	return nil
}

func (s *stubUsers) SetRole(context.Context, int64, authz.Role) error {
	return nil
}

func (s *stubUsers) SetCompanies(context.Context, int64, []int64) error {
	return nil
}

func (s *stubUsers) SetActive(context.Context, int64, bool) error {
	return nil
}

type staticTree struct {
	snap *authz.Snapshot
}

func (s staticTree) Snapshot(context.Context) (*authz.Snapshot, error) {
	return s.snap, nil
}

func testTree() authz.TreeSource {
	return staticTree{snap: authz.NewSnapshot([]authz.Company{
		{ID: 1, Name: "Acme Holdings", Kind: authz.CompanyCorp, Active: true},
		{ID: 2, Name: "Acme Services", Kind: authz.CompanySub, ParentID: 1, Active: true},
		{ID: 3, Name: "Acme Services North", Kind: authz.CompanyBranch, ParentID: 2, Active: true},
	})}
}

func newTestService(t *testing.T, docs *stubDocs, comps *stubCompanies, usrs *stubUsers) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := authz.DefaultConfig()
	cache := NewCache(client, time.Minute)
	return NewService(docs, comps, usrs, authz.NewGate(cfg), authz.NewResolver(cfg, testTree()), cache, slog.Default())
}

func TestStatsIncludesCountsForStaff(t *testing.T) {
	docs := &stubDocs{summary: []documents.KindCount{{Kind: documents.KindInvoice, Open: 3, Overdue: 1, Total: 4500}}}
	svc := newTestService(t, docs, &stubCompanies{count: 5}, &stubUsers{count: 12})

	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}
	stats, err := svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	require.NotNil(t, stats.CompanyCount)
	require.Equal(t, 5, *stats.CompanyCount)
	require.NotNil(t, stats.UserCount)
	require.Equal(t, 12, *stats.UserCount)
	require.Len(t, stats.Documents, 1)
}

func TestStatsNullCountsWithoutCapability(t *testing.T) {
	docs := &stubDocs{summary: []documents.KindCount{}}
	svc := newTestService(t, docs, &stubCompanies{count: 5}, &stubUsers{count: 12})

	// External users may see the dashboard but not company or user counts.
	external := authz.Principal{UserID: 9, Role: authz.RoleExternalUser, CompanyIDs: []int64{2}}
	stats, err := svc.Stats(context.Background(), external)
	require.NoError(t, err)
	require.Nil(t, stats.CompanyCount)
	require.Nil(t, stats.UserCount)

	raw, err := json.Marshal(stats)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"company_count":null`)
	require.Contains(t, string(raw), `"user_count":null`)
}

func TestStatsDeniedForNotificationContact(t *testing.T) {
	svc := newTestService(t, &stubDocs{}, &stubCompanies{}, &stubUsers{})

	contact := authz.Principal{UserID: 9, Role: authz.RoleNotificationContact}
	_, err := svc.Stats(context.Background(), contact)
	require.ErrorIs(t, err, authz.ErrInsufficientRole)
}

func TestStatsCachedUntilInvalidate(t *testing.T) {
	docs := &stubDocs{summary: []documents.KindCount{{Kind: documents.KindInvoice, Open: 1}}}
	svc := newTestService(t, docs, &stubCompanies{count: 1}, &stubUsers{count: 1})

	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}
	_, err := svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	_, err = svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, 1, docs.calls)

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, 2, docs.calls)
}

func TestWarmPrecomputesStaffDashboards(t *testing.T) {
	docs := &stubDocs{summary: []documents.KindCount{}}
	svc := newTestService(t, docs, &stubCompanies{count: 2}, &stubUsers{count: 4})

	require.NoError(t, svc.Warm(context.Background()))
	require.Equal(t, 3, docs.calls)

	// A staff request after warmup hits the cache.
	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}
	_, err := svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, 3, docs.calls)
}

package documents

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
)

type memoryDocRepo struct {
	docs   map[int64]Document
	nextID int64
	now    time.Time
}

func newMemoryDocRepo(now time.Time, seed ...Document) *memoryDocRepo {
	repo := &memoryDocRepo{docs: map[int64]Document{}, nextID: 1, now: now}
	for _, d := range seed {
		repo.docs[d.ID] = d
		if d.ID >= repo.nextID {
			repo.nextID = d.ID + 1
		}
	}
	return repo
}

func (m *memoryDocRepo) matching(filter authz.Filter, q ListQuery) []Document {
	var out []Document
	for _, d := range m.docs {
		if !filter.Matches(d.CompanyID) {
			continue
		}
		if q.Kind != "" && d.Kind != q.Kind {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if q.OverdueOnly && !d.Overdue(m.now) {
			continue
		}
		if q.Search != "" && !strings.Contains(d.Number, q.Search) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryDocRepo) List(_ context.Context, filter authz.Filter, q ListQuery) ([]Document, int, error) {
	out := m.matching(filter, q)
	return out, len(out), nil
}

func (m *memoryDocRepo) Get(_ context.Context, id int64) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, httpx.ErrNotFound
	}
	return d, nil
}

func (m *memoryDocRepo) Count(_ context.Context, filter authz.Filter, q ListQuery) (int, error) {
	return len(m.matching(filter, q)), nil
}

func (m *memoryDocRepo) Summarize(_ context.Context, filter authz.Filter) ([]KindCount, error) {
	byKind := map[Kind]*KindCount{}
	for _, d := range m.docs {
		if !filter.Matches(d.CompanyID) || d.Status != StatusOpen {
			continue
		}
		kc, ok := byKind[d.Kind]
		if !ok {
			kc = &KindCount{Kind: d.Kind}
			byKind[d.Kind] = kc
		}
		kc.Open++
		if d.Overdue(m.now) {
			kc.Overdue++
		}
		kc.Total += d.Total
	}
	var out []KindCount
	for _, kc := range byKind {
		out = append(out, *kc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *memoryDocRepo) Create(_ context.Context, doc Document) (Document, error) {
	doc.ID = m.nextID
	m.nextID++
	doc.CreatedAt = m.now
	doc.UpdatedAt = m.now
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memoryDocRepo) SetStatus(_ context.Context, id int64, status Status) error {
	d, ok := m.docs[id]
	if !ok {
		return httpx.ErrNotFound
	}
	d.Status = status
	m.docs[id] = d
	return nil
}

type staticTree struct {
	snap *authz.Snapshot
}

func (s staticTree) Snapshot(context.Context) (*authz.Snapshot, error) {
	return s.snap, nil
}

// testTree mirrors the Acme fixture: Holdings 1 > Services 2 > North 3,
// Logistics 4 under Holdings, Umbra 5 standalone.
func testTree() authz.TreeSource {
	return staticTree{snap: authz.NewSnapshot([]authz.Company{
		{ID: 1, Name: "Acme Holdings", Kind: authz.CompanyCorp, Active: true},
		{ID: 2, Name: "Acme Services", Kind: authz.CompanySub, ParentID: 1, Active: true},
		{ID: 3, Name: "Acme Services North", Kind: authz.CompanyBranch, ParentID: 2, Active: true},
		{ID: 4, Name: "Acme Logistics", Kind: authz.CompanySub, ParentID: 1, Active: true},
		{ID: 5, Name: "Umbra Group", Kind: authz.CompanyCorp, Active: true},
	})}
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func seedDocuments() []Document {
	day := 24 * time.Hour
	return []Document{
		{ID: 1, Number: "INV-0001", CompanyID: 2, Kind: KindInvoice, Status: StatusOpen, Currency: "EUR", Total: 1200, IssuedAt: testNow.Add(-40 * day), DueAt: testNow.Add(-10 * day)},
		{ID: 2, Number: "INV-0002", CompanyID: 3, Kind: KindInvoice, Status: StatusOpen, Currency: "EUR", Total: 300, IssuedAt: testNow.Add(-5 * day), DueAt: testNow.Add(25 * day)},
		{ID: 3, Number: "CN-0001", CompanyID: 3, Kind: KindCreditNote, Status: StatusOpen, Currency: "EUR", Total: -50, IssuedAt: testNow.Add(-3 * day), DueAt: testNow.Add(27 * day)},
		{ID: 4, Number: "INV-0003", CompanyID: 4, Kind: KindInvoice, Status: StatusPaid, Currency: "EUR", Total: 900, IssuedAt: testNow.Add(-60 * day), DueAt: testNow.Add(-30 * day)},
		{ID: 5, Number: "INV-0004", CompanyID: 5, Kind: KindInvoice, Status: StatusOpen, Currency: "EUR", Total: 7000, IssuedAt: testNow.Add(-20 * day), DueAt: testNow.Add(10 * day)},
		{ID: 6, Number: "ST-0001", CompanyID: 5, Kind: KindStatement, Status: StatusOpen, Currency: "EUR", Total: 7000, IssuedAt: testNow.Add(-1 * day), DueAt: testNow.Add(29 * day)},
	}
}

func newTestService(repo RepositoryPort) *Service {
	cfg := authz.DefaultConfig()
	tree := testTree()
	return NewService(repo, authz.NewGate(cfg), authz.NewResolver(cfg, tree), tree, slog.Default())
}

func external(companyIDs ...int64) authz.Principal {
	return authz.Principal{UserID: 10, Role: authz.RoleExternalUser, CompanyIDs: companyIDs}
}

func TestListScopeExpandsToDescendants(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	// Assigned to Acme Services: sees its own and the branch's documents.
	items, _, err := svc.List(context.Background(), external(2), ListQuery{})
	require.NoError(t, err)
	ids := docIDs(items)
	require.Equal(t, []int64{1, 2, 3}, ids)

	// Assigned to the branch only: no upward visibility.
	items, _, err = svc.List(context.Background(), external(3), ListQuery{})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, docIDs(items))
}

func TestListNoAssignmentsSeesNothing(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	items, pagination, err := svc.List(context.Background(), external(), ListQuery{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 0, pagination.Total)
}

func TestListUnrestrictedSeesAll(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}
	items, _, err := svc.List(context.Background(), admin, ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 6)
}

func TestListKindAndOverdueFilters(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))
	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}

	items, _, err := svc.List(context.Background(), admin, ListQuery{Kind: KindCreditNote})
	require.NoError(t, err)
	require.Equal(t, []int64{3}, docIDs(items))

	items, _, err = svc.List(context.Background(), admin, ListQuery{OverdueOnly: true})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, docIDs(items))

	_, _, err = svc.List(context.Background(), admin, ListQuery{Kind: Kind("RECEIPT")})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListDeniedForNotificationContact(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	contact := authz.Principal{UserID: 11, Role: authz.RoleNotificationContact, CompanyIDs: []int64{2}}
	_, _, err := svc.List(context.Background(), contact, ListQuery{})
	require.ErrorIs(t, err, authz.ErrInsufficientRole)
}

func TestGetOutOfScopeIsNotFound(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	// Umbra's invoice is invisible to an Acme-scoped user.
	_, err := svc.Get(context.Background(), external(2), 5)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	doc, err := svc.Get(context.Background(), external(2), 1)
	require.NoError(t, err)
	require.Equal(t, "INV-0001", doc.Number)
}

func TestCountMatchesListTotal(t *testing.T) {
	svc := newTestService(newMemoryDocRepo(testNow, seedDocuments()...))

	n, err := svc.Count(context.Background(), external(2), ListQuery{Kind: KindInvoice})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCreateValidatesCompanyAndKind(t *testing.T) {
	repo := newMemoryDocRepo(testNow)
	svc := newTestService(repo)
	admin := authz.Principal{UserID: 1, Role: authz.RoleAdministrator}

	doc := Document{Number: "INV-0100", CompanyID: 99, Kind: KindInvoice, Currency: "EUR", Total: 10, IssuedAt: testNow, DueAt: testNow}
	_, err := svc.Create(context.Background(), admin, doc)
	require.ErrorIs(t, err, httpx.ErrValidation)

	doc.CompanyID = 2
	created, err := svc.Create(context.Background(), admin, doc)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, created.Status)

	// Managers read everything but documents.manage stays with admins.
	mgr := authz.Principal{UserID: 2, Role: authz.RoleManager}
	_, err = svc.Create(context.Background(), mgr, doc)
	require.ErrorIs(t, err, authz.ErrInsufficientRole)
}

func docIDs(items []Document) []int64 {
	ids := make([]int64, 0, len(items))
	for _, d := range items {
		ids = append(ids, d.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

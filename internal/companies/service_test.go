package companies

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

type memoryRepo struct {
	companies map[int64]*Company
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{companies: make(map[int64]*Company)}
}

func (r *memoryRepo) seed(c Company) {
	if c.ID > r.nextID {
		r.nextID = c.ID
	}
	cp := c
	r.companies[c.ID] = &cp
}

func (r *memoryRepo) List(ctx context.Context, filter authz.Filter, q ListQuery) ([]Company, int, error) {
	var out []Company
	for _, c := range r.companies {
		if !filter.Matches(c.ID) {
			continue
		}
		if !q.IncludeInactive && !c.Active {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memoryRepo) ListAll(ctx context.Context) ([]Company, error) {
	out := make([]Company, 0, len(r.companies))
	for _, c := range r.companies {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return Company{}, httpx.ErrNotFound
	}
	return *c, nil
}

func (r *memoryRepo) Children(ctx context.Context, parentID int64) ([]Company, error) {
	var out []Company
	for _, c := range r.companies {
		if c.ParentID == parentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) Count(ctx context.Context, filter authz.Filter) (int, error) {
	n := 0
	for _, c := range r.companies {
		if c.Active && filter.Matches(c.ID) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Create(ctx context.Context, input CreateInput) (Company, error) {
	r.nextID++
	c := Company{
		ID:            r.nextID,
		Name:          input.Name,
		Kind:          input.Kind,
		ParentID:      input.ParentID,
		Reference:     input.Reference,
		NotifyByEmail: input.NotifyByEmail,
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	r.companies[c.ID] = &c
	return c, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input UpdateInput) error {
	c, ok := r.companies[id]
	if !ok {
		return httpx.ErrNotFound
	}
	c.Name = input.Name
	c.ParentID = input.ParentID
	c.Reference = input.Reference
	c.NotifyByEmail = input.NotifyByEmail
	c.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	c, ok := r.companies[id]
	if !ok {
		return httpx.ErrNotFound
	}
	c.Active = active
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	repo.seed(Company{ID: 1, Name: "Acme Holdings", Kind: authz.CompanyCorp, Active: true})
	repo.seed(Company{ID: 2, Name: "Acme Services", Kind: authz.CompanySub, ParentID: 1, Active: true})
	repo.seed(Company{ID: 3, Name: "Acme Services North", Kind: authz.CompanyBranch, ParentID: 2, Active: true})
	repo.seed(Company{ID: 4, Name: "Acme Logistics", Kind: authz.CompanySub, ParentID: 1, Active: true})

	cfg := authz.DefaultConfig()
	tree := NewTreeProvider(repo, slog.Default(), time.Minute)
	svc := NewService(repo, authz.NewGate(cfg), authz.NewResolver(cfg, tree), tree, nil, slog.Default())
	return svc, repo
}

func admin() authz.Principal {
	return authz.Principal{UserID: 1, Role: authz.RoleAdministrator}
}

func TestListScoped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Staff see everything.
	items, _, err := svc.List(ctx, admin(), ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 4)

	// A credit controller assigned to the subsidiary sees it and its branch only.
	scoped := authz.Principal{UserID: 5, Role: authz.RoleCreditController, CompanyIDs: []int64{2}}
	items, _, err = svc.List(ctx, scoped, ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, c := range items {
		require.Contains(t, []int64{2, 3}, c.ID)
	}

	// External users lack companies.view entirely.
	_, _, err = svc.List(ctx, authz.Principal{UserID: 6, Role: authz.RoleExternalUser, CompanyIDs: []int64{1}}, ListQuery{})
	require.ErrorIs(t, err, authz.ErrInsufficientRole)
}

func TestGetOutOfScopeIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	scoped := authz.Principal{UserID: 5, Role: authz.RoleCreditController, CompanyIDs: []int64{2}}

	_, err := svc.Get(context.Background(), scoped, 4)
	require.ErrorIs(t, err, httpx.ErrNotFound, "sibling existence must not leak")

	got, err := svc.Get(context.Background(), scoped, 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.ID)
}

func TestCreateValidatesHierarchy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, admin(), CreateInput{Name: "Root Two", Kind: authz.CompanyCorp, ParentID: 1})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, admin(), CreateInput{Name: "Orphan Branch", Kind: authz.CompanyBranch})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, admin(), CreateInput{Name: "Bad Parent", Kind: authz.CompanySub, ParentID: 999})
	require.ErrorIs(t, err, authz.ErrUnknownCompany)

	created, err := svc.Create(ctx, admin(), CreateInput{Name: "Acme South", Kind: authz.CompanyBranch, ParentID: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), created.ParentID)

	// Managers cannot create companies.
	_, err = svc.Create(ctx, authz.Principal{UserID: 2, Role: authz.RoleManager}, CreateInput{Name: "Nope", Kind: authz.CompanyCorp})
	require.ErrorIs(t, err, authz.ErrInsufficientRole)
}

func TestReparentRejectsCycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Moving the subsidiary under its own branch would loop.
	_, err := svc.Update(ctx, admin(), 2, UpdateInput{Name: "Acme Services", ParentID: 3})
	require.ErrorIs(t, err, authz.ErrCycleDetected)

	// Moving the branch under the other subsidiary is fine.
	updated, err := svc.Update(ctx, admin(), 3, UpdateInput{Name: "Acme Services North", ParentID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(4), updated.ParentID)
}

func TestReparentChangesScope(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	scoped := authz.Principal{UserID: 5, Role: authz.RoleCreditController, CompanyIDs: []int64{4}}

	items, _, err := svc.List(ctx, scoped, ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = svc.Update(ctx, admin(), 3, UpdateInput{Name: "Acme Services North", ParentID: 4})
	require.NoError(t, err)

	items, _, err = svc.List(ctx, scoped, ListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2, "re-parenting immediately widens the assignee's scope")
}

func TestDeactivateKeepsChildrenVisible(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	scoped := authz.Principal{UserID: 5, Role: authz.RoleCreditController, CompanyIDs: []int64{1}}

	require.NoError(t, svc.Deactivate(ctx, admin(), 2))

	got, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, int64(2), mustGet(t, repo, 3).ParentID, "children keep their stored parent id")

	// The branch below the deactivated subsidiary is still in scope.
	items, _, err := svc.List(ctx, scoped, ListQuery{})
	require.NoError(t, err)
	ids := make([]int64, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.ID)
	}
	require.Contains(t, ids, int64(3))
	require.NotContains(t, ids, int64(2), "deactivated companies drop from default listings")
}

type stubScheduler struct {
	calls int
	err   error
}

func (s *stubScheduler) EnqueueTreeSnapshot(context.Context) error {
	s.calls++
	return s.err
}

func TestHierarchyWritesScheduleSnapshotRebuild(t *testing.T) {
	svc, _ := newTestService(t)
	scheduler := &stubScheduler{}
	svc.scheduler = scheduler
	ctx := context.Background()

	created, err := svc.Create(ctx, admin(), CreateInput{Name: "Acme East", Kind: authz.CompanyBranch, ParentID: 2})
	require.NoError(t, err)
	require.Equal(t, 1, scheduler.calls)

	_, err = svc.Update(ctx, admin(), created.ID, UpdateInput{Name: "Acme East", ParentID: 4})
	require.NoError(t, err)
	require.Equal(t, 2, scheduler.calls)

	require.NoError(t, svc.Deactivate(ctx, admin(), created.ID))
	require.Equal(t, 3, scheduler.calls)

	// A queue outage must not fail the write itself.
	scheduler.err = context.DeadlineExceeded
	_, err = svc.Create(ctx, admin(), CreateInput{Name: "Acme West", Kind: authz.CompanyBranch, ParentID: 2})
	require.NoError(t, err)
	require.Equal(t, 4, scheduler.calls)
}

func mustGet(t *testing.T, repo *memoryRepo, id int64) Company {
	t.Helper()
	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

package auth_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgergate/ledgergate/internal/auth"
	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
	"github.com/ledgergate/ledgergate/internal/users"
	_ "github.com/ledgergate/ledgergate/testing"
)

type stubAccounts struct {
	user *users.User
}

func (s *stubAccounts) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if s.user == nil || s.user.Email != email {
		return users.User{}, httpx.ErrNotFound
	}
	return *s.user, nil
}

func (s *stubAccounts) Get(ctx context.Context, id int64) (users.User, error) {
	if s.user == nil || s.user.ID != id {
		return users.User{}, httpx.ErrNotFound
	}
	return *s.user, nil
}

type stubSessions struct {
	created []string
	deleted []string
}

func (s *stubSessions) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.created = append(s.created, id)
	return nil
}

func (s *stubSessions) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubSessions) DeleteSessionsForUser(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}

func newTestLogger() *slog.Logger {
	return slog.Default()
}

func activeUser(t *testing.T) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &users.User{
		ID:           7,
		Email:        "controller@ledgergate.example",
		Name:         "Credit Controller",
		Role:         authz.RoleCreditController,
		CompanyIDs:   []int64{2},
		IsActive:     true,
		PasswordHash: string(hash),
	}
}

func newAuthHandler(t *testing.T, accounts auth.UserSource, sessions auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(newTestLogger(), auth.NewService(accounts, sessions), sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginSuccess(t *testing.T) {
	user := activeUser(t)
	sessions := &stubSessions{}
	handler, sm := newAuthHandler(t, &stubAccounts{user: user}, sessions)

	body := `{"email":"controller@ledgergate.example","password":"s3cret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sm, req)

	rec := httptest.NewRecorder()
	handler.LoginForTest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if sess.User() != "7" {
		t.Fatalf("session user = %q, want %q", sess.User(), "7")
	}
	if len(sessions.created) != 1 {
		t.Fatalf("session records created = %d, want 1", len(sessions.created))
	}
	if !strings.Contains(rec.Body.String(), "csrf_token") {
		t.Fatalf("response missing csrf token: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatalf("response leaks password hash: %s", rec.Body.String())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubAccounts{user: activeUser(t)}, &stubSessions{})

	body := `{"email":"controller@ledgergate.example","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	rec := httptest.NewRecorder()
	handler.LoginForTest(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	handler, sm := newAuthHandler(t, &stubAccounts{user: user}, &stubSessions{})

	body := `{"email":"controller@ledgergate.example","password":"s3cret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	rec := httptest.NewRecorder()
	handler.LoginForTest(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	sessions := &stubSessions{}
	handler, sm := newAuthHandler(t, &stubAccounts{user: activeUser(t)}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req, sess := withSession(t, sm, req)
	sess.SetUser("7")

	rec := httptest.NewRecorder()
	handler.LogoutForTest(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(sessions.deleted) != 1 {
		t.Fatalf("session records deleted = %d, want 1", len(sessions.deleted))
	}
}

func TestPrincipalMiddlewareResolvesUser(t *testing.T) {
	user := activeUser(t)
	service := auth.NewService(&stubAccounts{user: user}, &stubSessions{})
	_, sm := newAuthHandler(t, &stubAccounts{user: user}, &stubSessions{})

	var got authz.Principal
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.PrincipalFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req, sess := withSession(t, sm, req)
	sess.SetUser("7")

	rec := httptest.NewRecorder()
	auth.PrincipalMiddleware(service, newTestLogger())(next).ServeHTTP(rec, req)

	if !ok {
		t.Fatal("expected principal in context")
	}
	if got.UserID != 7 || got.Role != authz.RoleCreditController {
		t.Fatalf("principal = %+v", got)
	}
}

func TestPrincipalMiddlewareSkipsInactiveUser(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	service := auth.NewService(&stubAccounts{user: user}, &stubSessions{})
	_, sm := newAuthHandler(t, &stubAccounts{user: user}, &stubSessions{})

	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = shared.PrincipalFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req, sess := withSession(t, sm, req)
	sess.SetUser("7")

	rec := httptest.NewRecorder()
	auth.PrincipalMiddleware(service, newTestLogger())(next).ServeHTTP(rec, req)

	if ok {
		t.Fatal("inactive user must not yield a principal")
	}
}

func TestRequireCapabilityDeniesLowRole(t *testing.T) {
	gate := authz.NewGate(authz.DefaultConfig())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := auth.RequireCapability(gate, authz.CapUsersManage, nil, newTestLogger())(next)

	p := authz.Principal{UserID: 7, Role: authz.RoleCreditController, CompanyIDs: []int64{2}}
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without principal = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

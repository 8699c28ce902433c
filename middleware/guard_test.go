package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	credlock "github.com/credlock/credlock"
	"github.com/credlock/credlock/password"
)

const guardPassword = "guard-password-123"

type guardUserStore struct {
	user credlock.User
}

func (s *guardUserStore) FindByEmail(_ context.Context, email string) (*credlock.User, error) {
	if email != s.user.Email {
		return nil, credlock.ErrUserNotFound
	}
	u := s.user
	return &u, nil
}

func (s *guardUserStore) FindByID(_ context.Context, id string) (*credlock.User, error) {
	if id != s.user.ID {
		return nil, credlock.ErrUserNotFound
	}
	u := s.user
	return &u, nil
}

func (s *guardUserStore) UpdateMFA(context.Context, string, credlock.MFAUpdate) error {
	return nil
}

func (s *guardUserStore) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}

func (s *guardUserStore) UpdateLastLogin(context.Context, string, time.Time) error {
	return nil
}

func newGuardEngine(t *testing.T) (*credlock.Engine, *credlock.LoginResult) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	params := password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hasher, err := password.NewHasher(params)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(guardPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cfg := credlock.DefaultConfig()
	cfg.Password = credlock.PasswordConfig{
		Memory:      params.Memory,
		Time:        params.Time,
		Parallelism: params.Parallelism,
		SaltLength:  params.SaltLength,
		KeyLength:   params.KeyLength,
	}

	store := &guardUserStore{user: credlock.User{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         "member",
		Active:       true,
	}}

	engine, err := credlock.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	res, err := engine.Login(context.Background(), credlock.LoginRequest{
		Email:    "alice@example.com",
		Password: guardPassword,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return engine, res
}

func TestGuardRejectsAnonymousRequests(t *testing.T) {
	engine, _ := newGuardEngine(t)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bare bearer", "Bearer"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-real-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reached bool
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true })

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Guard(engine)(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if reached {
				t.Fatal("handler must not run without a valid token")
			}
		})
	}
}

func TestGuardInjectsAuthResult(t *testing.T) {
	engine, login := newGuardEngine(t)

	var got *credlock.AuthResult
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok {
			t.Error("expected auth result in request context")
			return
		}
		got = res
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	Guard(engine)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("handler did not observe the auth result")
	}
	if got.UserID != "u1" || got.Email != "alice@example.com" || got.Role != "member" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.SessionID != login.SessionID {
		t.Fatalf("auth result bound to session %q, want %q", got.SessionID, login.SessionID)
	}
}

func TestGuardRejectsLoggedOutSession(t *testing.T) {
	engine, login := newGuardEngine(t)

	var handled int
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { handled++ })
	protected := Guard(engine)(next)

	first := httptest.NewRequest(http.MethodGet, "/me", nil)
	first.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the fresh token to pass, got %d", rec.Code)
	}

	if err := engine.Logout(context.Background(), login.AccessToken, login.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	second := httptest.NewRequest(http.MethodGet, "/me", nil)
	second.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, second)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
	if handled != 1 {
		t.Fatalf("handler ran %d times, want 1", handled)
	}
}

func TestGuardNilEngine(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run behind a nil engine")
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	Guard(nil)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthResultFromContextMissing(t *testing.T) {
	if res, ok := AuthResultFromContext(context.Background()); ok || res != nil {
		t.Fatal("expected no auth result on a bare context")
	}
}

func TestRequireRoleEnforcesRoleSet(t *testing.T) {
	engine, login := newGuardEngine(t)

	var handled int
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { handled++ })

	authed := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := authed(RequireRole(engine, "member", "admin")(next)); rec.Code != http.StatusOK {
		t.Fatalf("expected member role to pass, got %d", rec.Code)
	}
	if handled != 1 {
		t.Fatalf("handler ran %d times, want 1", handled)
	}

	if rec := authed(RequireRole(engine, "admin")(next)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a role outside the set, got %d", rec.Code)
	}
	if handled != 1 {
		t.Fatalf("handler must not run for a forbidden role, ran %d times", handled)
	}

	anon := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	RequireRole(engine, "member")(next).ServeHTTP(rec, anon)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

package credlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/credlock/credlock/password"
	"github.com/credlock/credlock/session"
	"github.com/redis/go-redis/v9"
)

type mockUserStore struct {
	mu      sync.Mutex
	users   map[string]*User
	byEmail map[string]string

	findByEmailCalls     int
	findByIDCalls        int
	updateMFACalls       int
	updatePasswordCalls  int
	updateLastLoginCalls int

	updateMFAErr error
	lastLogin    map[string]time.Time
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByEmailCalls++

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneTestUser(user), nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIDCalls++

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneTestUser(user), nil
}

func (m *mockUserStore) UpdateMFA(ctx context.Context, userID string, update MFAUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateMFACalls++

	if m.updateMFAErr != nil {
		return m.updateMFAErr
	}
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.MFAEnabled = update.Enabled
	user.MFASecret = append([]byte(nil), update.Secret...)
	user.MFABackupCodes = nil
	for _, code := range update.BackupCodes {
		user.MFABackupCodes = append(user.MFABackupCodes, append([]byte(nil), code...))
	}
	user.MFALastCounter = update.LastCounter
	return nil
}

func (m *mockUserStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLastLoginCalls++

	if m.lastLogin == nil {
		m.lastLogin = make(map[string]time.Time)
	}
	m.lastLogin[userID] = at
	return nil
}

func (m *mockUserStore) user(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTestUser(m.users[id])
}

func cloneTestUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.MFASecret = append([]byte(nil), u.MFASecret...)
	out.MFABackupCodes = nil
	for _, code := range u.MFABackupCodes {
		out.MFABackupCodes = append(out.MFABackupCodes, append([]byte(nil), code...))
	}
	return &out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingSink collects audit events for assertions. The dispatcher
// flushes on Engine.Close, so tests close the engine before reading.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(password.Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.MFA.SealKey = []byte("seal-key-must-be-32-bytes-long!!")
	return cfg
}

// newTestUserStore seeds alice (active) and bob (deactivated), both with
// the password "correct-password-123".
func newTestUserStore(t *testing.T) *mockUserStore {
	t.Helper()

	hash, err := newTestHasher(t).Hash("correct-password-123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	return &mockUserStore{
		users: map[string]*User{
			"u1": {
				ID:           "u1",
				Email:        "alice@example.com",
				PasswordHash: hash,
				Role:         "member",
				Active:       true,
			},
			"u2": {
				ID:           "u2",
				Email:        "bob@example.com",
				PasswordHash: hash,
				Role:         "member",
				Active:       false,
			},
		},
		byEmail: map[string]string{
			"alice@example.com": "u1",
			"bob@example.com":   "u2",
		},
	}
}

func newTestEngine(t *testing.T, cfg Config, store UserStore) (*Engine, *redis.Client, *fixedClock, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &fixedClock{now: time.Now().Truncate(time.Second)}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithClock(clock).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, rdb, clock, func() {
		engine.Close()
		mr.Close()
	}
}

func loginAlice(t *testing.T, engine *Engine) *LoginResult {
	t.Helper()

	result, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result
}

func TestAuthenticateAcceptsFreshLogin(t *testing.T) {
	engine, _, _, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	result := loginAlice(t, engine)

	auth, err := engine.Authenticate(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if auth.UserID != "u1" || auth.Email != "alice@example.com" || auth.Role != "member" {
		t.Fatalf("unexpected identity: %+v", auth)
	}
	if auth.SessionID != result.SessionID {
		t.Fatalf("expected session %s, got %s", result.SessionID, auth.SessionID)
	}
	if !auth.ExpiresAt.Equal(result.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", result.ExpiresAt, auth.ExpiresAt)
	}
	if got := engine.metrics.Value(MetricAuthenticateSuccess); got != 1 {
		t.Fatalf("expected 1 authenticate success, got %d", got)
	}
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	engine, _, _, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	if _, err := engine.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if got := engine.metrics.Value(MetricAuthenticateFailure); got != 1 {
		t.Fatalf("expected 1 authenticate failure, got %d", got)
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	engine, _, clock, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	// Issue in the past so the token is already beyond expiry and leeway.
	clock.Set(time.Now().Add(-time.Hour))
	result := loginAlice(t, engine)

	if _, err := engine.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthenticateRejectsForeignKeyToken(t *testing.T) {
	store := newTestUserStore(t)
	engineA, _, _, doneA := newTestEngine(t, engineTestConfig(), store)
	defer doneA()

	otherCfg := engineTestConfig()
	otherCfg.JWT.PrivateKey = []byte("ffffffffffffffffffffffffffffffff")
	engineB, _, _, doneB := newTestEngine(t, otherCfg, store)
	defer doneB()

	result := loginAlice(t, engineA)
	if _, err := engineB.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for foreign signature, got %v", err)
	}
}

func TestAuthenticateRejectsDeletedSession(t *testing.T) {
	engine, rdb, _, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	result := loginAlice(t, engine)
	if err := rdb.Del(context.Background(), "cls:"+result.SessionID).Err(); err != nil {
		t.Fatalf("del session failed: %v", err)
	}

	if _, err := engine.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthenticateRejectsRevokedSession(t *testing.T) {
	engine, _, _, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	result := loginAlice(t, engine)
	if err := engine.InvalidateSession(context.Background(), result.SessionID); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}

	if _, err := engine.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestAuthenticateRejectsSessionUserMismatch(t *testing.T) {
	engine, _, clock, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	result := loginAlice(t, engine)

	// Rebind the session record to another user; the token subject no
	// longer matches the session owner.
	now := clock.Now()
	tampered := &session.Session{
		SessionID: result.SessionID,
		UserID:    "u2",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
	if err := engine.sessionStore.Save(context.Background(), tampered, time.Hour); err != nil {
		t.Fatalf("save tampered session failed: %v", err)
	}

	if _, err := engine.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthenticateNilEngine(t *testing.T) {
	var engine *Engine
	if _, err := engine.Authenticate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestMetricsSnapshotCountsLoginAndAuthenticate(t *testing.T) {
	engine, _, _, done := newTestEngine(t, engineTestConfig(), newTestUserStore(t))
	defer done()

	result := loginAlice(t, engine)
	if _, err := engine.Authenticate(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricAuthenticateSuccess] != 1 {
		t.Fatalf("expected 1 authenticate success, got %d", snap.Counters[MetricAuthenticateSuccess])
	}
}

package authkit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/secret"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	testAddress = "203.0.113.7"
	testAgent   = "Mozilla/5.0 (X11; Linux x86_64)"
	alicePass   = "correct-horse-battery"
)

// memoryAccounts is an AccountStore backed by a map.
type memoryAccounts struct {
	mu       sync.Mutex
	byID     map[string]*Account
	failNext error

	uniqueUsernames bool
	recordLogins    int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{byID: make(map[string]*Account)}
}

func (m *memoryAccounts) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memoryAccounts) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, a := range m.byID {
		if a.Email == account.Email {
			return ErrProviderDuplicateEmail
		}
		if m.uniqueUsernames && account.Username != "" && strings.EqualFold(a.Username, account.Username) {
			return ErrProviderDuplicateUsername
		}
	}
	cp := *account
	m.byID[account.ID] = &cp
	return nil
}

func (m *memoryAccounts) ByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAccounts) ByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	for _, a := range m.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrProviderNotFound
}

func (m *memoryAccounts) ByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var found *Account
	for _, a := range m.byID {
		if a.Username != "" && strings.EqualFold(a.Username, username) {
			if found != nil {
				return nil, ErrProviderAmbiguous
			}
			found = a
		}
	}
	if found == nil {
		return nil, ErrProviderNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *memoryAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrProviderNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memoryAccounts) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrProviderNotFound
	}
	a.Status = StatusVerified
	return nil
}

func (m *memoryAccounts) RecordLogin(_ context.Context, id string, at time.Time, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLogins++
	a, ok := m.byID[id]
	if !ok {
		return ErrProviderNotFound
	}
	if success {
		a.LastLoginAt = at
		a.FailedLogins = 0
	} else {
		a.FailedLogins++
	}
	return nil
}

func (m *memoryAccounts) recordLoginCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLogins
}

func (m *memoryAccounts) get(t *testing.T, id string) Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	return *a
}

// outbox records delivered secrets.
type outbox struct {
	mu    sync.Mutex
	pairs []secret.Pair
	fail  error
}

func (o *outbox) deliver(_ context.Context, _ string, pair secret.Pair) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.pairs = append(o.pairs, pair)
	return nil
}

func (o *outbox) last(t *testing.T) secret.Pair {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pairs) == 0 {
		t.Fatal("nothing delivered")
	}
	return o.pairs[len(o.pairs)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pairs)
}

type testEnv struct {
	engine   *Engine
	accounts *memoryAccounts
	clock    *clockwork.FakeClock
	redis    *miniredis.Miniredis
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// testConfig is DefaultConfig with the cheapest argon2 parameters Validate
// accepts.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	accounts := newMemoryAccounts()
	accounts.uniqueUsernames = cfg.Account.RequireUniqueUsername
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return &testEnv{engine: engine, accounts: accounts, clock: clock, redis: mr}
}

func clientCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), testAddress), testAgent)
}

// registerVerified creates a verified account and returns its id.
func (env *testEnv) registerVerified(t testing.TB, email, username string) string {
	t.Helper()
	res, err := env.engine.Register(clientCtx(), RegisterRequest{
		Email:    email,
		Password: alicePass,
		Username: username,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res.AccountID
}

func (env *testEnv) login(t testing.TB, prev *State, email string, remember bool) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(clientCtx(), prev, email, alicePass, remember)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

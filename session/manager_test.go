package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	laptop = Fingerprint{Address: "10.0.0.1", Agent: "Mozilla/5.0 (X11)"}
	phone  = Fingerprint{Address: "10.0.0.2", Agent: "Mozilla/5.0 (iPhone)"}
)

func newTestManager(t *testing.T, policy Policy) (*Manager, *RedisStore, *clockwork.FakeClock) {
	t.Helper()
	store, _, _ := newSessionStoreTest(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m, err := NewManager(store, clock, Config{TTL: time.Hour, Policy: policy})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store, clock
}

func aliceGrant() Grant {
	return Grant{AccountID: "acct-1", Email: "alice@example.com", Username: "alice"}
}

func TestStartIssuesFreshSession(t *testing.T) {
	m, _, clock := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	sess, err := m.Start(ctx, "", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.ID == "" || sess.Marker == "" {
		t.Fatalf("expected id and marker, got %+v", sess)
	}
	if !sess.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", sess.ExpiresAt)
	}

	got, status, err := m.Validate(ctx, sess.ID, laptop)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if status != StatusValid || got.AccountID != "acct-1" {
		t.Fatalf("expected valid session, got %v %+v", status, got)
	}
}

func TestStartInvalidatesPreviousID(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	s0, err := m.Start(ctx, "", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s1, err := m.Start(ctx, s0.ID, aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s1.ID == s0.ID {
		t.Fatal("expected a new session id")
	}
	if s1.Marker == s0.Marker {
		t.Fatal("expected a new marker")
	}

	if _, status, _ := m.Validate(ctx, s0.ID, laptop); status != StatusStale {
		t.Fatalf("expected previous id stale, got %v", status)
	}
	if _, status, _ := m.Validate(ctx, s1.ID, laptop); status != StatusValid {
		t.Fatalf("expected new id valid, got %v", status)
	}
}

func TestStartWithPlantedID(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	sess, err := m.Start(ctx, "attacker-chosen", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.ID == "attacker-chosen" {
		t.Fatal("planted id must never be adopted")
	}
}

func TestRegenerateKeepsIdentity(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	s0, err := m.Start(ctx, "", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s1, err := m.Regenerate(ctx, s0)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if s1.ID == s0.ID || s1.AccountID != s0.AccountID || s1.Email != s0.Email {
		t.Fatalf("unexpected regenerated session %+v", s1)
	}
	if !s1.CreatedAt.Equal(s0.CreatedAt) {
		t.Fatal("regenerate must keep the creation time")
	}
	if _, status, _ := m.Validate(ctx, s0.ID, laptop); status != StatusStale {
		t.Fatalf("expected old id stale, got %v", status)
	}
	if _, status, _ := m.Validate(ctx, s1.ID, laptop); status != StatusValid {
		t.Fatalf("expected new id valid, got %v", status)
	}
}

func TestValidateExpired(t *testing.T) {
	m, store, clock := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	sess, err := m.Start(ctx, "", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(time.Hour)
	got, status, err := m.Validate(ctx, sess.ID, laptop)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if status != StatusStale || got != nil {
		t.Fatalf("expected stale at expiry, got %v %+v", status, got)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be removed, got %v", err)
	}
}

func TestValidateEmptyAndUnknownID(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	for _, id := range []string{"", "unknown", "!!not-base64!!", "AAAAAAAAAAAAAAAAAAAAAA"} {
		got, status, err := m.Validate(ctx, id, laptop)
		if err != nil || status != StatusStale || got != nil {
			t.Fatalf("id %q: expected stale, got %v %+v %v", id, status, got, err)
		}
	}
}

func TestValidateFingerprintPolicies(t *testing.T) {
	cases := []struct {
		name       string
		policy     Policy
		observed   Fingerprint
		wantStatus Status
		wantKept   bool
	}{
		{"flag same client", PolicyFlag, laptop, StatusValid, true},
		{"flag address change", PolicyFlag, Fingerprint{Address: phone.Address, Agent: laptop.Agent}, StatusValid, true},
		{"flag agent change", PolicyFlag, phone, StatusSuspicious, true},
		{"flag unknown agent", PolicyFlag, Fingerprint{Address: laptop.Address}, StatusValid, true},
		{"ignore agent change", PolicyIgnore, phone, StatusValid, true},
		{"strict address change", PolicyStrict, Fingerprint{Address: phone.Address, Agent: laptop.Agent}, StatusSuspicious, false},
		{"strict agent change", PolicyStrict, phone, StatusSuspicious, false},
		{"strict same client", PolicyStrict, laptop, StatusValid, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, store, _ := newTestManager(t, tc.policy)
			ctx := context.Background()

			sess, err := m.Start(ctx, "", aliceGrant(), laptop)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			got, status, err := m.Validate(ctx, sess.ID, tc.observed)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if status != tc.wantStatus {
				t.Fatalf("expected %v, got %v", tc.wantStatus, status)
			}
			if got == nil {
				t.Fatal("expected session to be returned")
			}

			_, err = store.Get(ctx, sess.ID)
			if kept := err == nil; kept != tc.wantKept {
				t.Fatalf("expected kept=%v, got err=%v", tc.wantKept, err)
			}
		})
	}
}

func TestDestroyIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	sess, err := m.Start(ctx, "", aliceGrant(), laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	removed, err := m.Destroy(ctx, sess.ID)
	if err != nil || removed == nil {
		t.Fatalf("expected first destroy to remove session, got %+v %v", removed, err)
	}
	removed, err = m.Destroy(ctx, sess.ID)
	if err != nil || removed != nil {
		t.Fatalf("expected second destroy to be a no-op, got %+v %v", removed, err)
	}
	if removed, err := m.Destroy(ctx, ""); err != nil || removed != nil {
		t.Fatalf("expected empty id to be a no-op, got %+v %v", removed, err)
	}
}

func TestDestroyAll(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	a, _ := m.Start(ctx, "", aliceGrant(), laptop)
	b, _ := m.Start(ctx, "", aliceGrant(), phone)

	if err := m.DestroyAll(ctx, "acct-1"); err != nil {
		t.Fatalf("DestroyAll: %v", err)
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, status, _ := m.Validate(ctx, id, laptop); status != StatusStale {
			t.Fatalf("expected %s stale, got %v", id, status)
		}
	}
}

func TestDestroyOthersKeepsOne(t *testing.T) {
	m, _, _ := newTestManager(t, PolicyFlag)
	ctx := context.Background()

	keep, _ := m.Start(ctx, "", aliceGrant(), laptop)
	other, _ := m.Start(ctx, "", aliceGrant(), laptop)

	if err := m.DestroyOthers(ctx, "acct-1", keep.ID); err != nil {
		t.Fatalf("DestroyOthers: %v", err)
	}
	if _, status, _ := m.Validate(ctx, keep.ID, laptop); status != StatusValid {
		t.Fatalf("expected kept session valid, got %v", status)
	}
	if _, status, _ := m.Validate(ctx, other.ID, laptop); status != StatusStale {
		t.Fatalf("expected other session stale, got %v", status)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyFlag, "flag": PolicyFlag, "ignore": PolicyIgnore, "strict": PolicyStrict}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("paranoid"); err == nil {
		t.Fatal("expected unknown policy error")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	if _, err := NewManager(store, nil, Config{}); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
	if _, err := NewManager(nil, nil, Config{TTL: time.Hour}); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
}

func TestRememberedSessionUsesRememberTTL(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	clock := clockwork.NewFakeClock()
	m, err := NewManager(store, clock, Config{TTL: time.Hour, RememberTTL: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	g := aliceGrant()
	g.Remembered = true
	g.RememberSelector = "sel-1"
	sess, err := m.Start(context.Background(), "", g, laptop)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sess.ExpiresAt.Equal(clock.Now().Add(30 * 24 * time.Hour)) {
		t.Fatalf("expected remember ttl, got expiry %v", sess.ExpiresAt)
	}
	if !sess.Remembered || sess.RememberSelector != "sel-1" {
		t.Fatalf("expected remembered session, got %+v", sess)
	}
}

package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/password"
)

func TestAliceRegisterConfirmLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	mail := &outbox{}

	res, err := env.engine.Register(ctx, RegisterRequest{
		Email:    "Alice@Example.com ",
		Password: alicePass,
		Username: "alice",
		Verify:   mail.deliver,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Verification == nil || mail.count() != 1 {
		t.Fatalf("expected one verification secret delivered")
	}
	if got := env.accounts.get(t, res.AccountID); got.Status != StatusUnverified || got.Email != "alice@example.com" {
		t.Fatalf("unexpected account %+v", got)
	}

	if _, err := env.engine.Login(ctx, nil, "alice@example.com", alicePass, false); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	pair := mail.last(t)
	if err := env.engine.ConfirmEmail(ctx, pair.Selector(), pair.Token()); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}

	login, err := env.engine.Login(ctx, nil, "alice@example.com", alicePass, false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	st := login.State
	if !st.IsLoggedIn() || st.UserID() != res.AccountID || st.Email() != "alice@example.com" || st.Username() != "alice" {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.IsRemembered() || login.RememberMe != nil {
		t.Fatal("plain login must not be remembered")
	}
	if st.AntiForgeryToken() == "" {
		t.Fatal("expected anti-forgery token")
	}
	if got := env.accounts.get(t, res.AccountID); got.LastLoginAt.IsZero() {
		t.Fatal("expected LastLoginAt to be stamped")
	}
}

func TestLoginUnknownEmailAndWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	id := env.registerVerified(t, "bob@example.com", "")

	if _, err := env.engine.Login(ctx, nil, "nobody@example.com", alicePass, false); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := env.engine.Login(ctx, nil, "not-an-email", alicePass, false); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for malformed address, got %v", err)
	}
	if _, err := env.engine.Login(ctx, nil, "bob@example.com", "wrong-password-1", false); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if got := env.accounts.get(t, id); got.FailedLogins != 1 {
		t.Fatalf("expected 1 failed login, got %d", got.FailedLogins)
	}

	env.login(t, nil, "bob@example.com", false)
	if got := env.accounts.get(t, id); got.FailedLogins != 0 {
		t.Fatalf("expected failures reset, got %d", got.FailedLogins)
	}
}

func TestLoginThrottlesAfterTenFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	env.registerVerified(t, "carol@example.com", "")

	for i := 0; i < 10; i++ {
		_, err := env.engine.Login(ctx, nil, "carol@example.com", "wrong-password-1", false)
		if !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, nil, "carol@example.com", alicePass, false)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests with the correct password, got %v", err)
	}
	if RetryAfter(err) <= 0 {
		t.Fatalf("expected positive RetryAfter, got %v", RetryAfter(err))
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}

	env.clock.Advance(15 * time.Minute)
	env.login(t, nil, "carol@example.com", false)

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginRateLimited] != 1 || snap.Counters[MetricLoginFailure] != 10 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestLoginThrottleIsPerAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	env.registerVerified(t, "dave@example.com", "")
	env.registerVerified(t, "erin@example.com", "")

	for i := 0; i < 10; i++ {
		_, _ = env.engine.Login(ctx, nil, "dave@example.com", "wrong-password-1", false)
	}
	if _, err := env.engine.Login(ctx, nil, "dave@example.com", alicePass, false); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected dave throttled, got %v", err)
	}
	env.login(t, nil, "erin@example.com", false)
}

func TestLoginThrottleSharedAcrossEmailAndUsername(t *testing.T) {
	byEmail := func(env *testEnv, pass string) error {
		_, err := env.engine.Login(clientCtx(), nil, "mallory@example.com", pass, false)
		return err
	}
	byUsername := func(env *testEnv, pass string) error {
		_, err := env.engine.LoginWithUsername(clientCtx(), nil, "Mallory", pass, false)
		return err
	}

	for _, order := range []struct {
		name          string
		first, second func(*testEnv, string) error
	}{
		{"email then username", byEmail, byUsername},
		{"username then email", byUsername, byEmail},
	} {
		t.Run(order.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.registerVerified(t, "mallory@example.com", "mallory")

			for i := 0; i < 5; i++ {
				if err := order.first(env, "wrong-password-1"); !errors.Is(err, ErrInvalidPassword) {
					t.Fatalf("first path attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
				}
				if err := order.second(env, "wrong-password-1"); !errors.Is(err, ErrInvalidPassword) {
					t.Fatalf("second path attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
				}
			}

			if err := byEmail(env, alicePass); !errors.Is(err, ErrTooManyRequests) {
				t.Fatalf("expected email login throttled, got %v", err)
			}
			if err := byUsername(env, alicePass); !errors.Is(err, ErrTooManyRequests) {
				t.Fatalf("expected username login throttled, got %v", err)
			}

			env.clock.Advance(15 * time.Minute)
			if err := byUsername(env, alicePass); err != nil {
				t.Fatalf("expected username login after the window, got %v", err)
			}
		})
	}
}

func TestLoginUnknownAccountWritesLikeWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	env.registerVerified(t, "rita@example.com", "")

	before := env.accounts.recordLoginCalls()
	if _, err := env.engine.Login(ctx, nil, "rita@example.com", "wrong-password-1", false); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	wrong := env.accounts.recordLoginCalls() - before

	before = env.accounts.recordLoginCalls()
	if _, err := env.engine.Login(ctx, nil, "nobody@example.com", "wrong-password-1", false); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	unknown := env.accounts.recordLoginCalls() - before

	if wrong != 1 || unknown != wrong {
		t.Fatalf("expected one store write on both paths, got wrong=%d unknown=%d", wrong, unknown)
	}
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	env.registerVerified(t, "frank@example.com", "")

	s0 := env.login(t, nil, "frank@example.com", false).State
	s1 := env.login(t, s0, "frank@example.com", false).State

	if s1.SessionID() == s0.SessionID() {
		t.Fatal("login must issue a new session id")
	}
	if s1.AntiForgeryToken() == s0.AntiForgeryToken() {
		t.Fatal("login must issue a new anti-forgery token")
	}
	if _, err := env.engine.Resume(ctx, s0.SessionID()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected previous session gone, got %v", err)
	}
	if _, err := env.engine.Resume(ctx, s1.SessionID()); err != nil {
		t.Fatalf("Resume new session: %v", err)
	}
}

func TestLoginIgnoresPlantedSessionID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "grace@example.com", "")

	planted := &State{sessionID: "attacker-chosen-id", accountID: "x"}
	st := env.login(t, planted, "grace@example.com", false).State
	if st.SessionID() == "attacker-chosen-id" {
		t.Fatal("planted session id adopted")
	}
}

func TestLoginWithUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	id := env.registerVerified(t, "heidi@example.com", "heidi")

	res, err := env.engine.LoginWithUsername(ctx, nil, "heidi", alicePass, false)
	if err != nil {
		t.Fatalf("LoginWithUsername: %v", err)
	}
	if res.State.UserID() != id {
		t.Fatalf("unexpected account %s", res.State.UserID())
	}
	if _, err := env.engine.LoginWithUsername(ctx, nil, "nobody", alicePass, false); !errors.Is(err, ErrUnknownUsername) {
		t.Fatalf("expected ErrUnknownUsername, got %v", err)
	}
}

func TestLoginWithUsernameDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Account.RequireUniqueUsername = false })

	_, err := env.engine.LoginWithUsername(clientCtx(), nil, "ivan", alicePass, false)
	if !errors.Is(err, ErrUsernameLoginDisabled) {
		t.Fatalf("expected ErrUsernameLoginDisabled, got %v", err)
	}
}

func TestLoginRehashesLegacyDigest(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.registerVerified(t, "judy@example.com", "")

	weak, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	digest, err := weak.Hash(alicePass)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := env.accounts.UpdatePassword(context.Background(), id, digest); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	env.login(t, nil, "judy@example.com", false)

	if got := env.accounts.get(t, id); got.PasswordHash == digest {
		t.Fatal("expected digest to be upgraded")
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordRehash] != 1 {
		t.Fatal("expected rehash counter")
	}
	env.login(t, nil, "judy@example.com", false)
}

func TestRememberMeFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	id := env.registerVerified(t, "ken@example.com", "")

	login := env.login(t, nil, "ken@example.com", true)
	if login.RememberMe == nil {
		t.Fatal("expected remember-me pair")
	}
	encoded := login.RememberMe.Encode()

	// The browser session is gone; the remember-me value restores it.
	if err := env.engine.Logout(ctx, nil); err != nil {
		t.Fatalf("anonymous Logout: %v", err)
	}
	restored, err := env.engine.LoginRemembered(ctx, nil, encoded)
	if err != nil {
		t.Fatalf("LoginRemembered: %v", err)
	}
	if !restored.State.IsRemembered() || restored.State.UserID() != id {
		t.Fatalf("unexpected state %+v", restored.State)
	}
	if restored.RememberMe == nil || restored.RememberMe.Encode() == encoded {
		t.Fatal("expected a rotated remember-me pair")
	}

	if _, err := env.engine.LoginRemembered(ctx, nil, encoded); !errors.Is(err, ErrInvalidSelectorTokenPair) {
		t.Fatalf("expected consumed pair rejected, got %v", err)
	}
	if _, err := env.engine.LoginRemembered(ctx, nil, "garbage"); !errors.Is(err, ErrInvalidSelectorTokenPair) {
		t.Fatalf("expected malformed pair rejected, got %v", err)
	}
}

func TestRememberMeExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "leo@example.com", "")

	login := env.login(t, nil, "leo@example.com", true)
	env.clock.Advance(31 * 24 * time.Hour)

	_, err := env.engine.LoginRemembered(clientCtx(), nil, login.RememberMe.Encode())
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestResumeFingerprintPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     string
		ctx        context.Context
		wantErr    error
		suspicious bool
	}{
		{name: "flag same client", policy: "flag", ctx: clientCtx()},
		{name: "flag new agent", policy: "flag", ctx: WithUserAgent(clientCtx(), "curl/8.0"), suspicious: true},
		{name: "flag new address", policy: "flag", ctx: WithClientIP(clientCtx(), "198.51.100.1")},
		{name: "strict new address", policy: "strict", ctx: WithClientIP(clientCtx(), "198.51.100.1"), wantErr: ErrNotLoggedIn},
		{name: "ignore new agent", policy: "ignore", ctx: WithUserAgent(clientCtx(), "curl/8.0")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *Config) { c.Session.FingerprintPolicy = tc.policy })
			env.registerVerified(t, "mia@example.com", "")
			st := env.login(t, nil, "mia@example.com", false).State

			got, err := env.engine.Resume(tc.ctx, st.SessionID())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if _, err := env.engine.Resume(clientCtx(), st.SessionID()); !errors.Is(err, ErrNotLoggedIn) {
					t.Fatalf("expected strict drift to destroy the session, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resume: %v", err)
			}
			if got.Suspicious() != tc.suspicious {
				t.Fatalf("expected suspicious=%v", tc.suspicious)
			}
		})
	}
}

func TestResumeExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "nina@example.com", "")
	st := env.login(t, nil, "nina@example.com", false).State

	env.clock.Advance(12 * time.Hour)
	if _, err := env.engine.Resume(clientCtx(), st.SessionID()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := env.engine.Resume(clientCtx(), ""); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn for empty id, got %v", err)
	}
}

func TestRotateSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx()
	env.registerVerified(t, "oscar@example.com", "")
	st := env.login(t, nil, "oscar@example.com", false).State

	next, err := env.engine.RotateSession(ctx, st)
	if err != nil {
		t.Fatalf("RotateSession: %v", err)
	}
	if next.SessionID() == st.SessionID() || next.AntiForgeryToken() == st.AntiForgeryToken() {
		t.Fatal("expected new id and token")
	}
	if next.UserID() != st.UserID() {
		t.Fatal("rotation must keep identity")
	}
	if _, err := env.engine.Resume(ctx, st.SessionID()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected old id stale, got %v", err)
	}
	if _, err := env.engine.RotateSession(ctx, nil); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn for anonymous state, got %v", err)
	}
}

func TestLoginStoreFailureIsFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.accounts.failNext = errors.New("connection refused")

	_, err := env.engine.Login(clientCtx(), nil, "pat@example.com", alicePass, false)
	if !errors.Is(err, ErrStoreUnavailable) || !IsFatal(err) {
		t.Fatalf("expected fatal ErrStoreUnavailable, got %v", err)
	}
}

func TestLoginHonorsCanceledContext(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "quinn@example.com", "")

	ctx, cancel := context.WithCancel(clientCtx())
	cancel()
	_, err := env.engine.Login(ctx, nil, "quinn@example.com", alicePass, false)
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

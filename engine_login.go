package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/session"
	"github.com/MrEthical07/authkit/throttle"
)

// Login authenticates with email and password and starts a new session.
//
// prev is the state the client held before, if any; its session id is
// invalidated in the same step that creates the new one. With remember set,
// the result carries a RememberMe secret for LoginRemembered.
func (e *Engine) Login(ctx context.Context, prev *State, email, password string, remember bool) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := e.normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	addr := throttle.Address(clientIPFromContext(ctx))
	acct := throttle.Account(email)
	if err := e.admit(ctx, "login", addr, acct); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}

	account, err := e.accounts.ByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrProviderNotFound) {
			return nil, e.internal(ctx, "account lookup", err)
		}
		return nil, e.rejectUnknown(ctx, password, ErrInvalidEmail, addr, acct)
	}

	return e.completeLogin(ctx, prev, account, password, remember, addr)
}

// LoginWithUsername is Login keyed by username. It is only available while
// usernames are unique.
func (e *Engine) LoginWithUsername(ctx context.Context, prev *State, username, password string, remember bool) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.Account.RequireUniqueUsername {
		return nil, ErrUsernameLoginDisabled
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUnknownUsername
	}

	addr := throttle.Address(clientIPFromContext(ctx))
	acct := usernameSubject(username)
	if err := e.admit(ctx, "login", addr, acct); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}

	account, err := e.accounts.ByUsername(ctx, username)
	switch {
	case err == nil:
	case errors.Is(err, ErrProviderNotFound):
		return nil, e.rejectUnknown(ctx, password, ErrUnknownUsername, addr, acct)
	case errors.Is(err, ErrProviderAmbiguous):
		return nil, e.rejectUnknown(ctx, password, ErrAmbiguousUsername, addr, acct)
	default:
		return nil, e.internal(ctx, "account lookup", err)
	}

	return e.completeLogin(ctx, prev, account, password, remember, addr)
}

// usernameSubject is the account bucket for a username. Case is folded so
// spelling variants share one bucket.
func usernameSubject(username string) throttle.Subject {
	return throttle.Account(strings.ToLower(username)).For("username")
}

// accountSubjects lists every account bucket that names account. Both login
// paths check and charge all of them, so failures by email and by username
// count against the same budget.
func accountSubjects(account *Account) []throttle.Subject {
	subjects := []throttle.Subject{throttle.Account(account.Email)}
	if account.Username != "" {
		subjects = append(subjects, usernameSubject(account.Username))
	}
	return subjects
}

func (e *Engine) loginCharges(addr throttle.Subject, accounts []throttle.Subject, success bool) []charge {
	addrCost, acctCost := e.addressRule().FailureCost, e.accountRule().FailureCost
	if success {
		addrCost, acctCost = e.addressRule().SuccessCost, e.accountRule().SuccessCost
	}
	charges := make([]charge, 0, len(accounts)+1)
	charges = append(charges, charge{addr, addrCost})
	for _, subject := range accounts {
		charges = append(charges, charge{subject, acctCost})
	}
	return charges
}

// rejectUnknown burns a verification against the dummy digest and the same
// failure write a wrong password makes, so a missing account takes as long
// as a known one. Then it charges the failure.
func (e *Engine) rejectUnknown(ctx context.Context, password string, result error, addr, acct throttle.Subject) error {
	// Mirrors the post-lookup admit of a known account.
	if err := e.admit(ctx, "login", acct); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return err
	}
	if _, err := e.pool.Verify(ctx, password, e.dummyDigest); err != nil {
		return err
	}
	if err := e.record(ctx, e.loginCharges(addr, []throttle.Subject{acct}, false)...); err != nil {
		return err
	}
	if err := e.accounts.RecordLogin(ctx, "", e.clock.Now().UTC(), false); err != nil && !errors.Is(err, ErrProviderNotFound) {
		e.log.Warn().Err(err).Msg("record failed login")
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", "", result, nil)
	return result
}

func (e *Engine) completeLogin(
	ctx context.Context,
	prev *State,
	account *Account,
	password string,
	remember bool,
	addr throttle.Subject,
) (*LoginResult, error) {
	started := e.clock.Now()

	accts := accountSubjects(account)
	if err := e.admit(ctx, "login", accts...); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}

	ok, err := e.pool.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := e.record(ctx, e.loginCharges(addr, accts, false)...); err != nil {
			return nil, err
		}
		if err := e.accounts.RecordLogin(ctx, account.ID, e.clock.Now().UTC(), false); err != nil {
			e.log.Warn().Err(err).Str("account_id", account.ID).Msg("record failed login")
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrInvalidPassword, nil)
		return nil, ErrInvalidPassword
	}

	if err := e.record(ctx, e.loginCharges(addr, accts, true)...); err != nil {
		return nil, err
	}

	if e.config.Verification.Required && account.Status != StatusVerified {
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}

	grant := session.Grant{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
	}

	var rememberPair *secret.Pair
	if remember {
		pair, err := e.codec.Issue(ctx, secret.RememberMe, account.ID, e.config.RememberMe.TTL)
		if err != nil {
			return nil, e.internal(ctx, "issue remember-me", err)
		}
		rememberPair = &pair
		grant.RememberSelector = pair.Selector()
	}

	sess, err := e.sessions.Start(ctx, prev.SessionID(), grant, fingerprintFromContext(ctx))
	if err != nil {
		if rememberPair != nil {
			if rerr := e.codec.Revoke(ctx, rememberPair.Selector()); rerr != nil {
				e.log.Warn().Err(rerr).Str("account_id", account.ID).Msg("revoke orphaned remember-me")
			}
		}
		return nil, e.internal(ctx, "session start", err)
	}

	e.maybeRehash(ctx, account, password)

	if err := e.accounts.RecordLogin(ctx, account.ID, e.clock.Now().UTC(), true); err != nil {
		e.log.Warn().Err(err).Str("account_id", account.ID).Msg("record login")
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.metrics.Observe(MetricLoginLatency, e.clock.Since(started))
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, sess.ID, nil, func() map[string]string {
		if remember {
			return map[string]string{"remember": "true"}
		}
		return nil
	})

	return &LoginResult{State: newState(sess, false), RememberMe: rememberPair}, nil
}

// maybeRehash upgrades a digest produced under older parameters or by the
// legacy scheme. Failures never fail the login.
func (e *Engine) maybeRehash(ctx context.Context, account *Account, password string) {
	if !e.pool.NeedsRehash(account.PasswordHash) {
		return
	}

	digest, err := e.pool.Hash(ctx, password)
	if err != nil {
		e.log.Warn().Err(err).Str("account_id", account.ID).Msg("password rehash failed")
		return
	}
	if err := e.accounts.UpdatePassword(ctx, account.ID, digest); err != nil {
		e.log.Warn().Err(err).Str("account_id", account.ID).Msg("password rehash not persisted")
		return
	}
	e.metricInc(MetricPasswordRehash)
}

// LoginRemembered exchanges an encoded RememberMe pair for a new session.
// The pair is consumed and a replacement is returned in the result.
func (e *Engine) LoginRemembered(ctx context.Context, prev *State, encoded string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pair, err := secret.Parse(encoded)
	if err != nil {
		e.metricInc(MetricRememberLoginFailure)
		return nil, ErrInvalidSelectorTokenPair
	}

	if err := e.spend(ctx, "remember",
		charge{throttle.Selector(pair.Selector()).For("remember"), e.selectorRule().FailureCost},
		charge{e.addressSubject(ctx, "remember"), e.addressRule().SuccessCost},
	); err != nil {
		return nil, err
	}

	accountID, err := e.codec.VerifyPair(ctx, secret.RememberMe, pair)
	if err != nil {
		mapped := e.secretError(ctx, err)
		if !IsFatal(mapped) && !isCanceled(mapped) {
			e.metricInc(MetricRememberLoginFailure)
			e.emitAudit(ctx, auditEventRememberLogin, false, "", "", mapped, nil)
		}
		return nil, mapped
	}

	account, err := e.accounts.ByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			e.metricInc(MetricRememberLoginFailure)
			return nil, ErrInvalidSelectorTokenPair
		}
		return nil, e.internal(ctx, "account lookup", err)
	}

	next, err := e.codec.Issue(ctx, secret.RememberMe, account.ID, e.config.RememberMe.TTL)
	if err != nil {
		return nil, e.internal(ctx, "issue remember-me", err)
	}

	sess, err := e.sessions.Start(ctx, prev.SessionID(), session.Grant{
		AccountID:        account.ID,
		Email:            account.Email,
		Username:         account.Username,
		Remembered:       true,
		RememberSelector: next.Selector(),
	}, fingerprintFromContext(ctx))
	if err != nil {
		if rerr := e.codec.Revoke(ctx, next.Selector()); rerr != nil {
			e.log.Warn().Err(rerr).Str("account_id", account.ID).Msg("revoke orphaned remember-me")
		}
		return nil, e.internal(ctx, "session start", err)
	}

	if err := e.accounts.RecordLogin(ctx, account.ID, e.clock.Now().UTC(), true); err != nil {
		e.log.Warn().Err(err).Str("account_id", account.ID).Msg("record login")
	}

	e.metricInc(MetricRememberLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRememberLogin, true, account.ID, sess.ID, nil, nil)

	return &LoginResult{State: newState(sess, false), RememberMe: &next}, nil
}

// Resume loads the session a client presents and checks its fingerprint
// against ctx.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sess, status, err := e.sessions.Validate(ctx, sessionID, fingerprintFromContext(ctx))
	if err != nil {
		return nil, e.internal(ctx, "session validate", err)
	}

	switch status {
	case session.StatusValid:
		return newState(sess, false), nil
	case session.StatusSuspicious:
		e.metricInc(MetricSessionSuspicious)
		e.emitAudit(ctx, auditEventSessionSuspicious, false, sess.AccountID, sess.ID, nil, func() map[string]string {
			return map[string]string{"policy": e.config.Session.FingerprintPolicy}
		})
		e.log.Warn().
			Str("account_id", sess.AccountID).
			Str("session", shortID(sess.ID)).
			Msg("session fingerprint drifted")

		if e.sessions.Policy() == session.PolicyStrict {
			return nil, ErrNotLoggedIn
		}
		return newState(sess, true), nil
	default:
		return nil, ErrNotLoggedIn
	}
}

// RotateSession moves the caller's session to a new id and anti-forgery
// token. Call it when the session gains privileges.
func (e *Engine) RotateSession(ctx context.Context, state *State) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !state.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}

	sess, status, err := e.sessions.Validate(ctx, state.SessionID(), fingerprintFromContext(ctx))
	if err != nil {
		return nil, e.internal(ctx, "session validate", err)
	}
	if status == session.StatusStale || (status == session.StatusSuspicious && e.sessions.Policy() == session.PolicyStrict) {
		return nil, ErrNotLoggedIn
	}

	next, err := e.sessions.Regenerate(ctx, sess)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, e.internal(ctx, "session rotate", err)
	}

	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, auditEventSessionRotated, true, next.AccountID, next.ID, nil, nil)
	return newState(next, status == session.StatusSuspicious), nil
}

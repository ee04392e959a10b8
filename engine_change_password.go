package authkit

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/session"
	"github.com/MrEthical07/authkit/throttle"
)

// ChangePassword replaces the password of the logged-in account after
// re-verifying oldPassword.
//
// The caller's session moves to a new id, every other session and every
// remember-me secret of the account is revoked, and the new State is
// returned.
func (e *Engine) ChangePassword(ctx context.Context, state *State, oldPassword, newPassword string) (*State, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !state.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}

	fp := fingerprintFromContext(ctx)
	sess, status, err := e.sessions.Validate(ctx, state.SessionID(), fp)
	if err != nil {
		return nil, e.internal(ctx, "session validate", err)
	}
	if status == session.StatusStale || (status == session.StatusSuspicious && e.sessions.Policy() == session.PolicyStrict) {
		return nil, ErrNotLoggedIn
	}

	acct := throttle.Account(sess.AccountID).For("change")
	if err := e.admit(ctx, "change_password", acct); err != nil {
		return nil, err
	}

	account, err := e.accounts.ByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, e.internal(ctx, "account lookup", err)
	}

	ok, err := e.pool.Verify(ctx, oldPassword, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := e.record(ctx, charge{acct, e.accountRule().FailureCost}); err != nil {
			return nil, err
		}
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChange, false, account.ID, sess.ID, ErrInvalidPassword, nil)
		return nil, ErrInvalidPassword
	}

	if err := e.checkPassword(newPassword); err != nil {
		return nil, err
	}

	digest, err := e.pool.Hash(ctx, newPassword)
	if err != nil {
		return nil, e.internal(ctx, "password hash", err)
	}
	if err := e.accounts.UpdatePassword(ctx, account.ID, digest); err != nil {
		return nil, e.internal(ctx, "update password", err)
	}

	// The password was just proven, so the replacement session is a fresh
	// password session rather than a remembered one.
	next, err := e.sessions.Start(ctx, sess.ID, session.Grant{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
	}, fp)
	if err != nil {
		return nil, e.internal(ctx, "session start", err)
	}

	if err := e.codec.RevokeAll(ctx, account.ID, secret.RememberMe); err != nil {
		return nil, e.internal(ctx, "revoke secrets", err)
	}
	if err := e.sessions.DestroyOthers(ctx, account.ID, next.ID); err != nil {
		return nil, e.internal(ctx, "destroy sessions", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, auditEventPasswordChange, true, account.ID, next.ID, nil, nil)
	return newState(next, false), nil
}

package authkit

import (
	"context"

	"github.com/MrEthical07/authkit/secret"
)

// Logout destroys the caller's session and revokes the remember-me secret it
// depended on. Anonymous or already destroyed states are a no-op.
func (e *Engine) Logout(ctx context.Context, state *State) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !state.IsLoggedIn() {
		return nil
	}

	removed, err := e.sessions.Destroy(ctx, state.SessionID())
	if err != nil {
		return e.internal(ctx, "session destroy", err)
	}

	selector := state.rememberSelector
	if removed != nil && removed.RememberSelector != "" {
		selector = removed.RememberSelector
	}
	if selector != "" {
		if err := e.codec.Revoke(ctx, selector); err != nil {
			return e.internal(ctx, "revoke remember-me", err)
		}
	}

	if removed == nil {
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, removed.AccountID, removed.ID, nil, nil)
	return nil
}

// LogoutEverywhere destroys every session of the caller's account and
// revokes its remember-me secrets.
func (e *Engine) LogoutEverywhere(ctx context.Context, state *State) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !state.IsLoggedIn() {
		return nil
	}

	accountID := state.UserID()
	if err := e.sessions.DestroyAll(ctx, accountID); err != nil {
		return e.internal(ctx, "destroy sessions", err)
	}
	if err := e.codec.RevokeAll(ctx, accountID, secret.RememberMe); err != nil {
		return e.internal(ctx, "revoke secrets", err)
	}

	e.metricInc(MetricLogoutEverywhere)
	e.emitAudit(ctx, auditEventLogoutEverywhere, true, accountID, state.SessionID(), nil, nil)
	return nil
}

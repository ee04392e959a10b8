package authkit

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/throttle"
)

// ForgotPassword sends a PasswordReset secret to email. Unknown addresses
// return nil without delivering anything.
func (e *Engine) ForgotPassword(ctx context.Context, email string, deliver DeliveryFunc) error {
	if err := e.ready(); err != nil {
		return err
	}
	if deliver == nil {
		return invalidConfig("delivery function required")
	}

	email, err := e.normalizeEmail(email)
	if err != nil {
		return err
	}

	account, err := e.lookupForMail(ctx, "forgot", email)
	if err != nil || account == nil {
		return err
	}

	if err := e.reissue(ctx, account, secret.PasswordReset, e.config.PasswordReset.TTL, deliver); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetIssued, true, account.ID, "", nil, nil)
	return nil
}

// ResetPassword consumes a PasswordReset secret and sets newPassword. Every
// session and remember-me secret of the account is revoked, and the email
// counts as verified.
//
// The password policy is checked before the secret is consumed, so a
// rejected password leaves the secret usable.
func (e *Engine) ResetPassword(ctx context.Context, selector, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.spend(ctx, "reset",
		charge{throttle.Selector(selector).For("reset"), e.selectorRule().FailureCost},
		charge{e.addressSubject(ctx, "reset"), e.addressRule().SuccessCost},
	); err != nil {
		return err
	}

	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	accountID, err := e.codec.Verify(ctx, secret.PasswordReset, selector, token)
	if err != nil {
		mapped := e.secretError(ctx, err)
		if !IsFatal(mapped) && !isCanceled(mapped) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordReset, false, "", "", mapped, nil)
		}
		return mapped
	}

	digest, err := e.pool.Hash(ctx, newPassword)
	if err != nil {
		return e.internal(ctx, "password hash", err)
	}
	if err := e.accounts.UpdatePassword(ctx, accountID, digest); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrInvalidSelectorTokenPair
		}
		return e.internal(ctx, "update password", err)
	}
	if err := e.accounts.MarkVerified(ctx, accountID); err != nil {
		return e.internal(ctx, "mark verified", err)
	}

	if err := e.sessions.DestroyAll(ctx, accountID); err != nil {
		return e.internal(ctx, "destroy sessions", err)
	}
	for _, purpose := range []secret.Purpose{secret.RememberMe, secret.PasswordReset} {
		if err := e.codec.RevokeAll(ctx, accountID, purpose); err != nil {
			return e.internal(ctx, "revoke secrets", err)
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, accountID, "", nil, nil)
	return nil
}

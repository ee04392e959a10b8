package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/throttle"
)

// ConfirmEmail consumes an EmailVerification secret and marks its account
// verified. Every attempt is charged to the selector whether or not it
// matches.
func (e *Engine) ConfirmEmail(ctx context.Context, selector, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.spend(ctx, "confirm",
		charge{throttle.Selector(selector), e.selectorRule().FailureCost},
		charge{e.addressSubject(ctx, "confirm"), e.addressRule().SuccessCost},
	); err != nil {
		return err
	}

	accountID, err := e.codec.Verify(ctx, secret.EmailVerification, selector, token)
	if err != nil {
		mapped := e.secretError(ctx, err)
		if !IsFatal(mapped) && !isCanceled(mapped) {
			e.metricInc(MetricEmailConfirmFailure)
			e.emitAudit(ctx, auditEventEmailConfirm, false, "", "", mapped, nil)
		}
		return mapped
	}

	if err := e.accounts.MarkVerified(ctx, accountID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			e.metricInc(MetricEmailConfirmFailure)
			return ErrInvalidSelectorTokenPair
		}
		return e.internal(ctx, "mark verified", err)
	}

	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirm, true, accountID, "", nil, nil)
	return nil
}

// ResendConfirmation issues a fresh verification secret for email and
// revokes the outstanding ones. It returns nil without delivering anything
// when the email is unknown or already verified.
func (e *Engine) ResendConfirmation(ctx context.Context, email string, deliver DeliveryFunc) error {
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

	account, err := e.lookupForMail(ctx, "resend", email)
	if err != nil || account == nil {
		return err
	}
	if account.Status == StatusVerified {
		return nil
	}

	if err := e.reissue(ctx, account, secret.EmailVerification, e.config.Verification.TTL, deliver); err != nil {
		return err
	}

	e.metricInc(MetricConfirmationResent)
	e.emitAudit(ctx, auditEventConfirmationResent, true, account.ID, "", nil, nil)
	return nil
}

// lookupForMail throttles an out-of-band mail request and resolves the
// account. A nil account with a nil error means there is nothing to send.
func (e *Engine) lookupForMail(ctx context.Context, action, email string) (*Account, error) {
	if err := e.spend(ctx, action,
		charge{e.addressSubject(ctx, action), e.addressRule().SuccessCost},
		charge{throttle.Account(email).For(action), max(e.accountRule().FailureCost, 1)},
	); err != nil {
		return nil, err
	}

	account, err := e.accounts.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, nil
		}
		return nil, e.internal(ctx, "account lookup", err)
	}
	return account, nil
}

// reissue revokes every outstanding secret of purpose for the account,
// issues a new one and delivers it.
func (e *Engine) reissue(ctx context.Context, account *Account, purpose secret.Purpose, ttl time.Duration, deliver DeliveryFunc) error {
	if err := e.codec.RevokeAll(ctx, account.ID, purpose); err != nil {
		return e.internal(ctx, "revoke secrets", err)
	}
	pair, err := e.codec.Issue(ctx, purpose, account.ID, ttl)
	if err != nil {
		return e.internal(ctx, "issue secret", err)
	}
	return e.deliver(ctx, deliver, account.Email, pair)
}

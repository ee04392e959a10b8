package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authkit/secret"
	"github.com/google/uuid"
)

// Register creates an account for req.Email.
//
// With a nil req.Verify the account starts verified. Otherwise a verification
// secret is issued and handed to req.Verify; if delivery fails the account
// still exists, the result is returned alongside an error matching
// ErrDeliveryFailed, and ResendConfirmation can retry.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := e.normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)

	if err := e.spend(ctx, "register", charge{e.addressSubject(ctx, "register"), e.addressRule().SuccessCost}); err != nil {
		e.metricInc(MetricRegisterRateLimited)
		return nil, err
	}

	if err := e.checkPassword(req.Password); err != nil {
		return nil, err
	}

	if username != "" && e.config.Account.RequireUniqueUsername {
		_, err := e.accounts.ByUsername(ctx, username)
		switch {
		case err == nil, errors.Is(err, ErrProviderAmbiguous):
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrDuplicateUsername
		case !errors.Is(err, ErrProviderNotFound):
			return nil, e.internal(ctx, "account lookup", err)
		}
	}

	digest, err := e.pool.Hash(ctx, req.Password)
	if err != nil {
		return nil, e.internal(ctx, "password hash", err)
	}

	status := StatusVerified
	if req.Verify != nil {
		status = StatusUnverified
	}
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: digest,
		Status:       status,
		CreatedAt:    e.clock.Now().UTC(),
	}

	if err := e.accounts.Create(ctx, account); err != nil {
		switch {
		case errors.Is(err, ErrProviderDuplicateEmail):
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegister, false, "", "", ErrUserAlreadyExists, nil)
			return nil, ErrUserAlreadyExists
		case errors.Is(err, ErrProviderDuplicateUsername):
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrDuplicateUsername
		default:
			return nil, e.internal(ctx, "account create", err)
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"status": status.String()}
	})

	result := &RegisterResult{AccountID: account.ID}
	if req.Verify == nil {
		return result, nil
	}

	pair, err := e.codec.Issue(ctx, secret.EmailVerification, account.ID, e.config.Verification.TTL)
	if err != nil {
		return result, e.internal(ctx, "issue verification", err)
	}
	result.Verification = &pair

	if err := e.deliver(ctx, req.Verify, email, pair); err != nil {
		return result, err
	}
	return result, nil
}

// deliver runs fn after the secret is stored. Failures are reported as
// ErrDeliveryFailed joined with the cause.
func (e *Engine) deliver(ctx context.Context, fn DeliveryFunc, email string, pair secret.Pair) error {
	if err := fn(ctx, email, pair); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.log.Warn().Err(err).Msg("secret delivery failed")
		return errors.Join(ErrDeliveryFailed, err)
	}
	return nil
}

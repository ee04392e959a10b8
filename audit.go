package authkit

import (
	"context"
	"errors"
	"io"

	"github.com/MrEthical07/authkit/internal/audit"
)

// AuditEvent is one security-relevant outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events off the request path.
type AuditSink = audit.Sink

// AuditConfig controls the async audit dispatcher.
type AuditConfig = audit.Config

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink exposes events on a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink = audit.JSONLinesSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONLinesSink(w io.Writer) *JSONLinesSink { return audit.NewJSONLinesSink(w) }

const (
	auditEventRegister            = "register"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventRememberLogin       = "remember_login"
	auditEventEmailConfirm        = "email_confirm"
	auditEventConfirmationResent  = "confirmation_resent"
	auditEventPasswordChange      = "password_change"
	auditEventPasswordResetIssued = "password_reset_request"
	auditEventPasswordReset       = "password_reset"
	auditEventLogout              = "logout"
	auditEventLogoutEverywhere    = "logout_everywhere"
	auditEventSessionSuspicious   = "session_suspicious"
	auditEventSessionRotated      = "session_rotated"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		SessionID: shortID(sessionID),
		Address:   clientIPFromContext(ctx),
		Success:   success,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	})
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTooManyRequests):
		return "rate_limited"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrInvalidPassword):
		return "invalid_password"
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, ErrDuplicateUsername):
		return "duplicate"
	case errors.Is(err, ErrUnknownUsername), errors.Is(err, ErrAmbiguousUsername):
		return "unknown_username"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrInvalidSelectorTokenPair):
		return "invalid_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrNotLoggedIn):
		return "not_logged_in"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}

// shortID keeps enough of a session id to correlate log lines without
// making the id usable.
func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}

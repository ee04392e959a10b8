package internaldefs

import (
	"github.com/MrEthical07/authkit"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricRegisterSuccess, Name: "authkit_register_success_total", Help: "Successful registrations."},
	{ID: authkit.MetricRegisterDuplicate, Name: "authkit_register_duplicate_total", Help: "Registrations rejected as duplicate email or username."},
	{ID: authkit.MetricRegisterRateLimited, Name: "authkit_register_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful password logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed password logins."},
	{ID: authkit.MetricLoginRateLimited, Name: "authkit_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkit.MetricLoginUnverified, Name: "authkit_login_unverified_total", Help: "Logins refused for an unconfirmed email."},
	{ID: authkit.MetricRememberLoginSuccess, Name: "authkit_remember_login_success_total", Help: "Successful remember-me logins."},
	{ID: authkit.MetricRememberLoginFailure, Name: "authkit_remember_login_failure_total", Help: "Failed remember-me logins."},
	{ID: authkit.MetricEmailConfirmSuccess, Name: "authkit_email_confirm_success_total", Help: "Confirmed email addresses."},
	{ID: authkit.MetricEmailConfirmFailure, Name: "authkit_email_confirm_failure_total", Help: "Failed email confirmations."},
	{ID: authkit.MetricConfirmationResent, Name: "authkit_confirmation_resent_total", Help: "Reissued confirmation mails."},
	{ID: authkit.MetricPasswordChangeSuccess, Name: "authkit_password_change_success_total", Help: "Successful password changes."},
	{ID: authkit.MetricPasswordChangeInvalidOld, Name: "authkit_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authkit.MetricPasswordResetRequest, Name: "authkit_password_reset_request_total", Help: "Password reset requests."},
	{ID: authkit.MetricPasswordResetSuccess, Name: "authkit_password_reset_success_total", Help: "Completed password resets."},
	{ID: authkit.MetricPasswordResetFailure, Name: "authkit_password_reset_failure_total", Help: "Failed password resets."},
	{ID: authkit.MetricPasswordRehash, Name: "authkit_password_rehash_total", Help: "Digests upgraded to the current parameters at login."},
	{ID: authkit.MetricDeliveryFailure, Name: "authkit_delivery_failure_total", Help: "Selector/token pairs the delivery callback failed to send."},
	{ID: authkit.MetricRateLimitHit, Name: "authkit_rate_limit_hit_total", Help: "Throttle checks that denied requests."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Created sessions."},
	{ID: authkit.MetricSessionRotated, Name: "authkit_session_rotated_total", Help: "Rotated session identifiers."},
	{ID: authkit.MetricSessionSuspicious, Name: "authkit_session_suspicious_total", Help: "Sessions resumed with a fingerprint mismatch."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Single-session logouts."},
	{ID: authkit.MetricLogoutEverywhere, Name: "authkit_logout_everywhere_total", Help: "Logouts across every session of an account."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricLoginLatency, Name: "authkit_login_latency_seconds", Help: "Password login latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside a metric name.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets
// and ignoring extra ones.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

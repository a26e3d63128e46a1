package internaldefs

import (
	goAccess "github.com/MrEthical07/goAccess"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goAccess.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goAccess.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goAccess.MetricLoginSuccess, Name: "goaccess_login_success_total", Help: "Successful logins."},
	{ID: goAccess.MetricLoginFailure, Name: "goaccess_login_failure_total", Help: "Failed logins of any kind."},
	{ID: goAccess.MetricLoginThrottled, Name: "goaccess_login_throttled_total", Help: "Logins refused by the throttle."},
	{ID: goAccess.MetricLoginUnknownUser, Name: "goaccess_login_unknown_user_total", Help: "Logins naming an unknown username."},
	{ID: goAccess.MetricLoginBadPassword, Name: "goaccess_login_bad_password_total", Help: "Logins with a wrong password."},
	{ID: goAccess.MetricSessionCreated, Name: "goaccess_session_created_total", Help: "Created sessions."},
	{ID: goAccess.MetricSessionInvalidated, Name: "goaccess_session_invalidated_total", Help: "Sessions destroyed on resolution."},
	{ID: goAccess.MetricLogout, Name: "goaccess_logout_total", Help: "Single-session logouts."},
	{ID: goAccess.MetricLogoutAll, Name: "goaccess_logout_all_total", Help: "Logout-all operations."},
	{ID: goAccess.MetricActivationIssued, Name: "goaccess_activation_issued_total", Help: "Issued activation tokens."},
	{ID: goAccess.MetricActivationConfirmed, Name: "goaccess_activation_confirmed_total", Help: "Accounts confirmed by activation."},
	{ID: goAccess.MetricActivationAlreadyConfirmed, Name: "goaccess_activation_already_confirmed_total", Help: "Activations of already confirmed accounts."},
	{ID: goAccess.MetricActivationInvalid, Name: "goaccess_activation_invalid_total", Help: "Invalid, forged or expired activation tokens."},
	{ID: goAccess.MetricActivationUnknownAccount, Name: "goaccess_activation_unknown_account_total", Help: "Activation tokens naming an unknown account."},
	{ID: goAccess.MetricRegistrationSuccess, Name: "goaccess_registration_success_total", Help: "Created accounts."},
	{ID: goAccess.MetricRegistrationDuplicate, Name: "goaccess_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goAccess.MetricRegistrationInvalid, Name: "goaccess_registration_invalid_total", Help: "Registrations rejected by validation."},
	{ID: goAccess.MetricPasswordChangeSuccess, Name: "goaccess_password_change_success_total", Help: "Successful password changes."},
	{ID: goAccess.MetricPasswordChangeFailure, Name: "goaccess_password_change_failure_total", Help: "Rejected password changes."},
	{ID: goAccess.MetricPasswordUpgraded, Name: "goaccess_password_upgraded_total", Help: "Password hashes upgraded on login."},
	{ID: goAccess.MetricMailDropped, Name: "goaccess_mail_dropped_total", Help: "Activation messages the mailer refused."},
}

var HistogramDefs = []HistogramDef{
	{ID: goAccess.MetricResolveLatency, Name: "goaccess_resolve_latency_seconds", Help: "Principal resolution latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// AuditDroppedName is the counter of audit events dropped on a full buffer.
const AuditDroppedName = "goaccess_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

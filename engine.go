package goAccess

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goAccess/internal"
	internalaudit "github.com/MrEthical07/goAccess/internal/audit"
	"github.com/MrEthical07/goAccess/internal/flows"
	"github.com/MrEthical07/goAccess/internal/rate"
	"github.com/MrEthical07/goAccess/password"
	"github.com/MrEthical07/goAccess/session"
	"github.com/MrEthical07/goAccess/token"
	"github.com/samber/oops"
)

// Engine authenticates users with server-side sessions and confirms new
// accounts with signed activation tokens.
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config    Config
	clock     Clock
	logger    *slog.Logger
	directory UserDirectory
	mailer    Mailer

	sessions *session.Store
	limiter  *rate.Limiter
	hasher   *password.Argon2
	signer   *token.Signer
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	flowDeps flows.Deps
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks Redis reachability.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

// HashPassword hashes a plaintext password with the configured parameters.
// Directories seeding accounts outside Register use it.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(plaintext)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

// infraError tags an infrastructure fault with an error code. Sentinels stay
// reachable through errors.Is.
func infraError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEngineNotReady) {
		return err
	}
	if _, ok := oops.AsOops(err); ok {
		return err
	}

	code := "INTERNAL"
	switch {
	case errors.Is(err, session.ErrRedisUnavailable):
		code = "SESSION_STORE_UNAVAILABLE"
	case errors.Is(err, rate.ErrRedisUnavailable):
		code = "THROTTLE_UNAVAILABLE"
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}

/*
====================================
DIRECTORY ADAPTERS
====================================
*/

func (e *Engine) directoryError(operation string, err error) error {
	if errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrEmailTaken) {
		return err
	}
	if _, ok := oops.AsOops(err); ok {
		return err
	}
	return oops.Code("DIRECTORY_UNAVAILABLE").With("operation", operation).Wrap(err)
}

func (e *Engine) findByID(ctx context.Context, id int64) (flows.AccountRecord, error) {
	a, err := e.directory.FindByID(ctx, id)
	if err != nil {
		return flows.AccountRecord{}, e.directoryError("find_by_id", err)
	}
	return toFlowAccount(a), nil
}

func (e *Engine) findByUsername(ctx context.Context, username string) (flows.AccountRecord, error) {
	a, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return flows.AccountRecord{}, e.directoryError("find_by_username", err)
	}
	return toFlowAccount(a), nil
}

func (e *Engine) findByEmail(ctx context.Context, email string) (flows.AccountRecord, error) {
	a, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return flows.AccountRecord{}, e.directoryError("find_by_email", err)
	}
	return toFlowAccount(a), nil
}

func (e *Engine) createAccount(ctx context.Context, a flows.AccountRecord) (flows.AccountRecord, error) {
	created, err := e.directory.Create(ctx, fromFlowAccount(a))
	if err != nil {
		return flows.AccountRecord{}, e.directoryError("create", err)
	}
	return toFlowAccount(created), nil
}

func (e *Engine) saveAccount(ctx context.Context, a flows.AccountRecord) error {
	if err := e.directory.Save(ctx, fromFlowAccount(a)); err != nil {
		return e.directoryError("save", err)
	}
	return nil
}

func (e *Engine) confirmAccount(ctx context.Context, id int64) (bool, error) {
	changed, err := e.directory.ConfirmAccount(ctx, id)
	if err != nil {
		return false, e.directoryError("confirm", err)
	}
	return changed, nil
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) fingerprint(attrs session.AccountAttributes) [32]byte {
	return session.Fingerprint(e.config.fingerprintKey(), attrs)
}

func (e *Engine) sessionTTL(remember bool) time.Duration {
	if remember {
		return e.config.Session.RememberTTL
	}
	return e.config.Session.ShortTTL
}

func newSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

func validSessionID(id string) bool {
	_, err := internal.ParseSessionID(id)
	return err == nil
}

func (e *Engine) initFlowDeps() {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	var checkRate, incRate func(context.Context, string, string) error
	var resetRate func(context.Context, string) error
	if e.limiter != nil {
		checkRate = e.limiter.CheckLogin
		incRate = e.limiter.IncrementLogin
		resetRate = e.limiter.ResetLogin
	}

	e.flowDeps = flows.Deps{
		Login: flows.LoginDeps{
			RequireConfirmed:     e.config.Activation.RequireForLogin,
			UpgradeOnLogin:       e.config.Password.UpgradeOnLogin,
			Protection:           e.config.Session.Protection,
			ClientIPFromContext:  clientIPFromContext,
			UserAgentFromContext: userAgentFromContext,
			Now:                  e.clock.Now,
			CheckLoginRate:       checkRate,
			IncrementLoginRate:   incRate,
			ResetLoginRate:       resetRate,
			FindByUsername:       e.findByUsername,
			SaveAccount:          e.saveAccount,
			VerifyPassword:       e.hasher.Verify,
			DummyHash:            e.hasher.DummyHash,
			NeedsUpgrade:         e.hasher.NeedsUpgrade,
			HashPassword:         e.hasher.Hash,
			NewSessionID:         newSessionID,
			Fingerprint:          e.fingerprint,
			SessionTTL:           e.sessionTTL,
			Sessions:             e.sessions,
			SafeRedirect:         e.safeRedirect,
			MetricInc:            metricInc,
			EmitAudit:            e.emitAudit,
			Warn:                 e.warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				LoginThrottled:   int(MetricLoginThrottled),
				LoginUnknownUser: int(MetricLoginUnknownUser),
				LoginBadPassword: int(MetricLoginBadPassword),
				SessionCreated:   int(MetricSessionCreated),
				PasswordUpgraded: int(MetricPasswordUpgraded),
			},
			Events: flows.LoginEvents{
				LoginSuccess:   auditEventLoginSuccess,
				LoginFailure:   auditEventLoginFailure,
				LoginThrottled: auditEventLoginThrottled,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:  ErrEngineNotReady,
				AccountNotFound: ErrAccountNotFound,
				RateLimited:     rate.ErrRateLimited,
			},
		},
		Logout: flows.LogoutDeps{
			Sessions:  e.sessions,
			MetricInc: metricInc,
			EmitAudit: e.emitAudit,
			Warn:      e.warn,
			Metrics: flows.LogoutMetrics{
				Logout:    int(MetricLogout),
				LogoutAll: int(MetricLogoutAll),
			},
			Events: flows.LogoutEvents{
				Logout:    auditEventLogout,
				LogoutAll: auditEventLogoutAll,
			},
			Errors: flows.LogoutErrors{EngineNotReady: ErrEngineNotReady},
		},
		Resolve: flows.ResolveDeps{
			Protection:           e.config.Session.Protection,
			ClientIPFromContext:  clientIPFromContext,
			UserAgentFromContext: userAgentFromContext,
			ValidSessionID:       validSessionID,
			Sessions:             e.sessions,
			FindByID:             e.findByID,
			Fingerprint:          e.fingerprint,
			ObserveLatency: func(d time.Duration) {
				e.metrics.Observe(MetricResolveLatency, d)
			},
			MetricInc: metricInc,
			EmitAudit: e.emitAudit,
			Warn:      e.warn,
			Metrics: flows.ResolveMetrics{
				SessionInvalidated: int(MetricSessionInvalidated),
			},
			Events: flows.ResolveEvents{
				SessionInvalidated: auditEventSessionInvalidated,
			},
			Errors: flows.ResolveErrors{
				EngineNotReady:  ErrEngineNotReady,
				SessionNotFound: session.ErrNotFound,
				AccountNotFound: ErrAccountNotFound,
			},
		},
		Activation: flows.ActivationDeps{
			TTL:            e.config.Activation.TTL,
			IssueToken:     e.signer.Issue,
			RedeemToken:    e.signer.Redeem,
			FindByID:       e.findByID,
			ConfirmAccount: e.confirmAccount,
			MetricInc:      metricInc,
			EmitAudit:      e.emitAudit,
			Metrics: flows.ActivationMetrics{
				Issued:           int(MetricActivationIssued),
				Confirmed:        int(MetricActivationConfirmed),
				AlreadyConfirmed: int(MetricActivationAlreadyConfirmed),
				Invalid:          int(MetricActivationInvalid),
				UnknownAccount:   int(MetricActivationUnknownAccount),
			},
			Events: flows.ActivationEvents{
				Issued:   auditEventActivationIssued,
				Redeemed: auditEventActivationRedeemed,
			},
			Errors: flows.ActivationErrors{
				EngineNotReady:  ErrEngineNotReady,
				AccountNotFound: ErrAccountNotFound,
				TokenMalformed:  token.ErrMalformed,
			},
		},
		Register: flows.RegisterDeps{
			Validate:        e.validateRegistration,
			Now:             e.clock.Now,
			FindByUsername:  e.findByUsername,
			FindByEmail:     e.findByEmail,
			Create:          e.createAccount,
			HashPassword:    e.hasher.Hash,
			IssueActivation: e.IssueActivation,
			SendActivation:  e.sendActivation,
			MetricInc:       metricInc,
			EmitAudit:       e.emitAudit,
			Metrics: flows.RegisterMetrics{
				Success:   int(MetricRegistrationSuccess),
				Duplicate: int(MetricRegistrationDuplicate),
				Invalid:   int(MetricRegistrationInvalid),
			},
			Events: flows.RegisterEvents{
				AccountCreated: auditEventAccountCreated,
			},
			Errors: flows.RegisterErrors{
				EngineNotReady:  ErrEngineNotReady,
				AccountNotFound: ErrAccountNotFound,
				UsernameTaken:   ErrUsernameTaken,
				EmailTaken:      ErrEmailTaken,
			},
		},
		ChangePassword: flows.ChangePasswordDeps{
			ValidatePassword: e.validatePassword,
			FindByID:         e.findByID,
			SaveAccount:      e.saveAccount,
			VerifyPassword:   e.hasher.Verify,
			HashPassword:     e.hasher.Hash,
			MetricInc:        metricInc,
			EmitAudit:        e.emitAudit,
			Metrics: flows.ChangePasswordMetrics{
				Success: int(MetricPasswordChangeSuccess),
				Failure: int(MetricPasswordChangeFailure),
			},
			Events: flows.ChangePasswordEvents{
				PasswordChanged: auditEventPasswordChanged,
			},
			Errors: flows.ChangePasswordErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrInvalidCredentials,
			},
		},
		Resend: flows.ResendDeps{
			FindByEmail:     e.findByEmail,
			IssueActivation: e.IssueActivation,
			SendActivation:  e.sendActivation,
			Errors: flows.ResendErrors{
				EngineNotReady:  ErrEngineNotReady,
				AccountNotFound: ErrAccountNotFound,
			},
		},
	}
}

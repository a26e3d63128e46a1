package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goAccess/session"
)

// LoginStatus classifies a login attempt. The zero value is not a valid
// status.
type LoginStatus int

const (
	// LoginSucceeded means a session was created.
	LoginSucceeded LoginStatus = iota + 1
	// LoginUnknownUser means no account has the submitted username.
	LoginUnknownUser
	// LoginBadPassword means the password did not verify.
	LoginBadPassword
	// LoginThrottled means the username or client IP exceeded the attempt budget.
	LoginThrottled
	// LoginUnconfirmed means the credentials were correct but the account
	// has not been activated and activation is required.
	LoginUnconfirmed
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSucceeded:
		return "succeeded"
	case LoginUnknownUser:
		return "unknown_user"
	case LoginBadPassword:
		return "bad_password"
	case LoginThrottled:
		return "throttled"
	case LoginUnconfirmed:
		return "unconfirmed"
	default:
		return "invalid"
	}
}

// LoginInput is the flow-local login request.
type LoginInput struct {
	Username string
	Password string
	Remember bool
	Next     string
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Status     LoginStatus
	Account    AccountRecord
	SessionID  string
	ExpiresAt  time.Time
	RedirectTo string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginThrottled   int
	LoginUnknownUser int
	LoginBadPassword int
	SessionCreated   int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess   string
	LoginFailure   string
	LoginThrottled string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady  error
	AccountNotFound error
	RateLimited     error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireConfirmed bool
	UpgradeOnLogin   bool
	Protection       session.ProtectionLevel

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	Now                  func() time.Time

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string) error

	FindByUsername func(context.Context, string) (AccountRecord, error)
	SaveAccount    func(context.Context, AccountRecord) error

	VerifyPassword func(string, string) bool
	DummyHash      func() string
	NeedsUpgrade   func(string) bool
	HashPassword   func(string) (string, error)

	NewSessionID func() (string, error)
	Fingerprint  func(session.AccountAttributes) [32]byte
	SessionTTL   func(remember bool) time.Duration
	Sessions     SessionStore
	SafeRedirect func(string) string

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates a username and password and, on success, stores a
// new session. Every non-success path is reported through LoginResult.Status
// and creates no session; the error is non-nil only for infrastructure faults.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = emptyFromContext
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = emptyFromContext
	}
	if deps.SafeRedirect == nil {
		deps.SafeRedirect = func(string) string { return "/" }
	}
	if deps.FindByUsername == nil ||
		deps.VerifyPassword == nil ||
		deps.DummyHash == nil ||
		deps.NewSessionID == nil ||
		deps.Fingerprint == nil ||
		deps.SessionTTL == nil ||
		deps.Sessions == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	ua := deps.UserAgentFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, in.Username, ip); err != nil {
			if !errors.Is(err, deps.Errors.RateLimited) {
				return LoginResult{}, err
			}
			deps.MetricInc(deps.Metrics.LoginThrottled)
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, AuditRecord{
				EventType: deps.Events.LoginThrottled,
				Username:  in.Username,
				Reason:    "throttled",
			})
			return LoginResult{Status: LoginThrottled}, nil
		}
	}

	fail := func(status LoginStatus, account AccountRecord) (LoginResult, error) {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, in.Username, ip); err != nil {
				deps.Warn("goAccess: login throttle increment failed", "error", err)
			}
		}
		switch status {
		case LoginUnknownUser:
			deps.MetricInc(deps.Metrics.LoginUnknownUser)
		case LoginBadPassword:
			deps.MetricInc(deps.Metrics.LoginBadPassword)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, AuditRecord{
			EventType: deps.Events.LoginFailure,
			AccountID: account.ID,
			Username:  in.Username,
			Reason:    status.String(),
		})
		return LoginResult{Status: status}, nil
	}

	account, err := deps.FindByUsername(ctx, in.Username)
	if err != nil {
		if !errors.Is(err, deps.Errors.AccountNotFound) {
			return LoginResult{}, err
		}
		// Same hashing cost as a known user with a wrong password.
		deps.VerifyPassword(in.Password, deps.DummyHash())
		return fail(LoginUnknownUser, AccountRecord{})
	}

	if !deps.VerifyPassword(in.Password, account.PasswordHash) {
		return fail(LoginBadPassword, account)
	}

	if deps.RequireConfirmed && !account.Confirmed {
		return fail(LoginUnconfirmed, account)
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.SaveAccount != nil &&
		deps.NeedsUpgrade(account.PasswordHash) {
		if upgraded, err := upgradePassword(ctx, account, in.Password, deps); err != nil {
			deps.Warn("goAccess: password upgrade failed", "account_id", account.ID, "error", err)
		} else {
			account = upgraded
			deps.MetricInc(deps.Metrics.PasswordUpgraded)
		}
	}

	sid, err := deps.NewSessionID()
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate session id: %w", err)
	}

	now := deps.Now()
	expiresAt := now.Add(deps.SessionTTL(in.Remember))
	remember := session.RememberShort
	if in.Remember {
		remember = session.RememberExtended
	}

	sess := &session.Session{
		SessionID:   sid,
		AccountID:   account.ID,
		Remember:    remember,
		Protection:  deps.Protection,
		Fingerprint: deps.Fingerprint(account.attributes()),
		ClientHash:  session.ClientHash(ua, ip),
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}
	if err := deps.Sessions.Save(ctx, sess); err != nil {
		return LoginResult{}, err
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, in.Username); err != nil {
			deps.Warn("goAccess: login throttle reset failed", "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		EventType:  deps.Events.LoginSuccess,
		Success:    true,
		AccountID:  account.ID,
		Username:   account.Username,
		SessionRef: session.Ref(sid),
		Metadata: map[string]string{
			"remember":   strconv.FormatBool(in.Remember),
			"protection": deps.Protection.String(),
		},
	})

	return LoginResult{
		Status:     LoginSucceeded,
		Account:    account,
		SessionID:  sid,
		ExpiresAt:  time.Unix(sess.ExpiresAt, 0),
		RedirectTo: deps.SafeRedirect(in.Next),
	}, nil
}

func upgradePassword(ctx context.Context, account AccountRecord, password string, deps LoginDeps) (AccountRecord, error) {
	hash, err := deps.HashPassword(password)
	if err != nil {
		return account, err
	}
	account.PasswordHash = hash
	if err := deps.SaveAccount(ctx, account); err != nil {
		return account, err
	}
	return account, nil
}

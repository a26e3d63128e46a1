package goAccess

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goAccess/internal/audit"
	"github.com/MrEthical07/goAccess/internal/flows"
	"github.com/MrEthical07/goAccess/session"
)

// Account is a registered user as stored in the UserDirectory.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	CreatedAt    time.Time
}

// UserDirectory is the persistence contract for accounts. Lookups return
// ErrAccountNotFound when nothing matches; any other error is treated as an
// infrastructure fault.
//
// Username and email uniqueness is enforced by the directory: Create and
// Save return ErrUsernameTaken or ErrEmailTaken on conflict.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (Account, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	// Create inserts a new account and returns it with its assigned ID.
	Create(ctx context.Context, account Account) (Account, error)
	// Save overwrites the username, email and password hash of an existing
	// account. It never writes the confirmed flag; only ConfirmAccount does.
	Save(ctx context.Context, account Account) error
	// ConfirmAccount flips confirmed from false to true. It reports false
	// when the account was already confirmed. A missing account is
	// ErrAccountNotFound.
	ConfirmAccount(ctx context.Context, id int64) (bool, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ActivationMessage is handed to a Mailer after registration or a resend.
// Token is a bearer secret and must only be written into the message body.
type ActivationMessage struct {
	AccountID int64
	Username  string
	Email     string
	Token     string
}

// Mailer delivers activation messages. The Engine does not wait for delivery;
// a returned error is logged and counted.
type Mailer interface {
	SendActivation(ctx context.Context, msg ActivationMessage) error
}

// ProtectionLevel controls how sessions are re-checked when resolving a
// principal. See [ProtectionNone], [ProtectionBasic], [ProtectionStrong].
type ProtectionLevel = session.ProtectionLevel

const (
	ProtectionNone   = session.ProtectionNone
	ProtectionBasic  = session.ProtectionBasic
	ProtectionStrong = session.ProtectionStrong
)

// ParseProtectionLevel maps "none", "basic" or "strong" to a ProtectionLevel.
func ParseProtectionLevel(s string) (ProtectionLevel, error) {
	return session.ParseProtectionLevel(s)
}

// LoginRequest is the input of Engine.Login. Next is the location the user
// asked for before being sent to the login page.
type LoginRequest struct {
	Username string
	Password string
	Remember bool
	Next     string
}

// LoginStatus classifies a login attempt.
type LoginStatus = flows.LoginStatus

const (
	LoginSucceeded   = flows.LoginSucceeded
	LoginUnknownUser = flows.LoginUnknownUser
	LoginBadPassword = flows.LoginBadPassword
	LoginThrottled   = flows.LoginThrottled
	LoginUnconfirmed = flows.LoginUnconfirmed
)

// LoginOutcome is the result of Engine.Login. Only a LoginSucceeded outcome
// carries a session token, redirect and expiry.
//
// Status is for logs and metrics. Callers should render every failure the
// same way so that unknown usernames are not revealed.
type LoginOutcome struct {
	Status       LoginStatus
	AccountID    int64
	RedirectTo   string
	SessionToken string
	Expires      time.Time
	// Persistent is true for remembered sessions, whose cookie should carry
	// Expires. Short sessions use a browser-session cookie.
	Persistent bool
}

// Succeeded reports whether a session was created.
func (o LoginOutcome) Succeeded() bool {
	return o.Status == LoginSucceeded
}

// ActivationStatus classifies an activation redemption.
type ActivationStatus = flows.ActivationStatus

const (
	ActivationInvalid          = flows.ActivationInvalid
	ActivationUnknownAccount   = flows.ActivationUnknownAccount
	ActivationAlreadyConfirmed = flows.ActivationAlreadyConfirmed
	ActivationConfirmed        = flows.ActivationConfirmed
)

const activationFailureMessage = "This activation link is invalid or has expired."

// ActivationOutcome is the result of Engine.RedeemActivation. Reason is set
// for ActivationInvalid and is meant for logs only.
type ActivationOutcome struct {
	Status    ActivationStatus
	AccountID int64
	Reason    error
}

// PublicMessage returns text safe to show the user. Every non-success status
// maps to the same message.
func (o ActivationOutcome) PublicMessage() string {
	if o.Status == ActivationConfirmed {
		return "Your account is now active. You can sign in."
	}
	return activationFailureMessage
}

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// RegisterResult is returned by a successful Engine.Register. The activation
// token has also been handed to the Mailer when one is configured.
type RegisterResult struct {
	Account         Account
	ActivationToken string
}

// AuditEvent is the audit record emitted by the Engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON document per audit event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a slog.Logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

func toFlowAccount(a Account) flows.AccountRecord {
	return flows.AccountRecord{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Confirmed:    a.Confirmed,
		CreatedAt:    a.CreatedAt,
	}
}

func fromFlowAccount(a flows.AccountRecord) Account {
	return Account{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Confirmed:    a.Confirmed,
		CreatedAt:    a.CreatedAt,
	}
}

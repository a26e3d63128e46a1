package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccess/session"
)

// AccountRecord is the flow-local account model. The root package maps its
// public Account type to and from this shape.
type AccountRecord struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	CreatedAt    time.Time
}

// AuditRecord is the flow-local audit payload. Reason codes are short
// machine strings and never carry secrets.
type AuditRecord struct {
	EventType  string
	Success    bool
	AccountID  int64
	Username   string
	SessionRef string
	Reason     string
	Metadata   map[string]string
}

// SessionStore is the subset of the session store the flows need.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteAllForAccount(ctx context.Context, accountID int64) (int, error)
}

func (a AccountRecord) attributes() session.AccountAttributes {
	return session.AccountAttributes{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
	}
}

func noopMetric(int) {}

func noopAudit(context.Context, AuditRecord) {}

func noopWarn(string, ...any) {}

func emptyFromContext(context.Context) string { return "" }

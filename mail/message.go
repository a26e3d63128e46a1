package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrQueueFull is returned by Outbox.SendActivation when the queue has
	// no room.
	ErrQueueFull = errors.New("mail queue full")
	// ErrClosed is returned after Outbox.Close.
	ErrClosed = errors.New("mail outbox closed")
)

// Message is one rendered email.
type Message struct {
	ID       ulid.ULID
	To       string
	Subject  string
	Body     string
	QueuedAt time.Time
}

// Sender delivers a rendered message. Implementations must be safe for use
// from one goroutine at a time; Outbox never calls Send concurrently.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender writes messages to a logger instead of sending them. The body
// carries the activation link, so it is logged only with IncludeBody.
type LogSender struct {
	Logger      *slog.Logger
	IncludeBody bool
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := []any{
		"message_id", msg.ID.String(),
		"to", msg.To,
		"subject", msg.Subject,
	}
	if s.IncludeBody {
		args = append(args, "body", msg.Body)
	}
	logger.InfoContext(ctx, "mail delivered to log", args...)
	return nil
}

// LinkBuilder renders activation URLs of the form
// BaseURL + Path + "/" + token.
type LinkBuilder struct {
	BaseURL string
	Path    string
}

// NewLinkBuilder validates baseURL, which must be an absolute http or https
// URL. Path defaults to "/activate".
func NewLinkBuilder(baseURL, path string) (LinkBuilder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return LinkBuilder{}, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return LinkBuilder{}, fmt.Errorf("base url %q must be an absolute http(s) url", baseURL)
	}
	if path == "" {
		path = "/activate"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return LinkBuilder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    strings.TrimRight(path, "/"),
	}, nil
}

// ActivationURL returns the link that redeems token.
func (b LinkBuilder) ActivationURL(token string) string {
	return b.BaseURL + b.Path + "/" + url.PathEscape(token)
}

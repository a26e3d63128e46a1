package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"
)

// OutboxConfig controls queueing and delivery retries.
type OutboxConfig struct {
	QueueSize int
	// MaxRetries is the number of extra attempts after a failed Send.
	MaxRetries  uint64
	RetryBase   time.Duration
	SendTimeout time.Duration
	Subject     string
}

// DefaultOutboxConfig returns the recommended settings. NewOutbox falls back
// to them for every zero field except MaxRetries.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		QueueSize:   256,
		MaxRetries:  3,
		RetryBase:   200 * time.Millisecond,
		SendTimeout: 10 * time.Second,
		Subject:     "Activate your account",
	}
}

// Outbox queues activation mail and delivers it from one worker goroutine.
type Outbox struct {
	cfg    OutboxConfig
	sender Sender
	links  LinkBuilder
	logger *slog.Logger
	now    func() time.Time

	ch   chan Message
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

var _ goAccess.Mailer = (*Outbox)(nil)

// NewOutbox starts the delivery worker. Call Close to stop it.
func NewOutbox(cfg OutboxConfig, sender Sender, links LinkBuilder, logger *slog.Logger) *Outbox {
	def := DefaultOutboxConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Outbox{
		cfg:    cfg,
		sender: sender,
		links:  links,
		logger: logger.With("component", "mail_outbox"),
		now:    time.Now,
		ch:     make(chan Message, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	o.wg.Add(1)
	go o.run()

	return o
}

// SendActivation renders msg and queues it. It never blocks: a full queue
// returns ErrQueueFull and a closed outbox returns ErrClosed.
func (o *Outbox) SendActivation(_ context.Context, msg goAccess.ActivationMessage) error {
	m := Message{
		ID:       ulid.Make(),
		To:       msg.Email,
		Subject:  o.cfg.Subject,
		Body:     o.renderActivation(msg),
		QueuedAt: o.now(),
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}

	select {
	case o.ch <- m:
		return nil
	default:
		o.dropped.Add(1)
		return ErrQueueFull
	}
}

func (o *Outbox) renderActivation(msg goAccess.ActivationMessage) string {
	return fmt.Sprintf(
		"Hello %s,\n\nconfirm your account by opening the link below:\n\n%s\n\nIf you did not sign up, ignore this message.\n",
		msg.Username,
		o.links.ActivationURL(msg.Token),
	)
}

func (o *Outbox) run() {
	defer o.wg.Done()

	for {
		select {
		case m := <-o.ch:
			o.deliver(m)
		case <-o.done:
			for {
				select {
				case m := <-o.ch:
					o.deliver(m)
				default:
					return
				}
			}
		}
	}
}

func (o *Outbox) deliver(m Message) {
	backoff := retry.WithMaxRetries(o.cfg.MaxRetries, retry.NewExponential(o.cfg.RetryBase))

	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
		defer cancel()
		if err := o.sender.Send(ctx, m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		o.failed.Add(1)
		o.logger.Warn("activation mail not delivered", "message_id", m.ID.String(), "error", err)
		return
	}
	o.sent.Add(1)
}

// Close stops accepting messages, delivers what is queued and waits for
// the worker. It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.done)
	o.mu.Unlock()

	o.wg.Wait()
}

// Sent returns the number of delivered messages.
func (o *Outbox) Sent() uint64 { return o.sent.Load() }

// Failed returns the number of messages that exhausted their retries.
func (o *Outbox) Failed() uint64 { return o.failed.Load() }

// Dropped returns the number of messages rejected on a full queue.
func (o *Outbox) Dropped() uint64 { return o.dropped.Load() }

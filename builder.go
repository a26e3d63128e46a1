package goAccess

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/goAccess/internal/audit"
	"github.com/MrEthical07/goAccess/internal/rate"
	"github.com/MrEthical07/goAccess/password"
	"github.com/MrEthical07/goAccess/session"
	"github.com/MrEthical07/goAccess/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory UserDirectory
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger
	clock     Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the account store.
func (b *Builder) WithDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithMailer sets the activation mailer. Without one, Register still returns
// the activation token but nothing is sent.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is set.
// Without one, events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failures. Default slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source of sessions and tokens.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine.
//
// Build fails when the builder was used before, Redis or the directory is
// missing, or the configuration is invalid.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cfg,
		clock:     clock,
		logger:    logger.With("component", "goaccess"),
		directory: b.directory,
		mailer:    b.mailer,
	}

	// -------- SESSION STORE --------
	engine.sessions = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.IdleTimeout,
		cfg.Session.JitterEnabled,
		cfg.Session.JitterRange,
	).WithClock(clock.Now)

	// -------- LOGIN THROTTLE --------
	if cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Session.RedisPrefix + ":",
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginWindow:      cfg.Security.LoginWindow,
		})
	}

	// -------- CREDENTIALS --------
	hasher, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	signer, err := token.NewSigner(token.Config{
		Secret:      cfg.Token.Secret,
		KeyID:       cfg.Token.KeyID,
		RetiredKeys: cfg.Token.RetiredKeys,
		Now:         clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.signer = signer

	// -------- AUDIT + METRICS --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.initFlowDeps()

	b.built = true

	return engine, nil
}

package goAccess

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goAccess/password"
	"github.com/MrEthical07/goAccess/token"
)

// Config holds every Engine setting. Build clones it, so later mutation of
// the caller's copy has no effect on a built Engine.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Session      SessionConfig
	Activation   ActivationConfig
	Registration RegistrationConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig is the secret key source of the token signer.
type TokenConfig struct {
	// Secret is the active HMAC key, at least 32 bytes.
	Secret []byte
	// KeyID names the active key in issued tokens.
	KeyID string
	// RetiredKeys keeps earlier secrets verifiable after a rotation. Keep a
	// retired key for at least Activation.TTL.
	RetiredKeys map[string][]byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost parameters and the password length
// policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and protection.
type SessionConfig struct {
	RedisPrefix string
	Protection  ProtectionLevel

	// ShortTTL bounds sessions created without "remember me".
	ShortTTL time.Duration
	// RememberTTL bounds sessions created with "remember me".
	RememberTTL time.Duration
	// IdleTimeout ends a session that is not used for this long. Zero
	// disables the idle window.
	IdleTimeout   time.Duration
	JitterEnabled bool
	JitterRange   time.Duration

	// FingerprintKey keys the account attribute fingerprint. Empty means
	// Token.Secret.
	FingerprintKey []byte

	DefaultRedirect string
	LoginPath       string
	CookieName      string
	CookieSecure    bool
}

/*
====================================
ACTIVATION CONFIG
====================================
*/

// ActivationConfig controls activation tokens.
type ActivationConfig struct {
	TTL             time.Duration
	RequireForLogin bool
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls the registration workflow.
type RegistrationConfig struct {
	Enabled           bool
	UsernameMinLength int
	UsernameMaxLength int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling.
type SecurityConfig struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginWindow         time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Token.Secret is empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()

	return Config{
		Token: TokenConfig{
			KeyID: "k1",
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      8,
			MaxLength:      256,
			UpgradeOnLogin: true,
		},
		Session: SessionConfig{
			RedisPrefix:     "ga",
			Protection:      ProtectionStrong,
			ShortTTL:        12 * time.Hour,
			RememberTTL:     30 * 24 * time.Hour,
			IdleTimeout:     0,
			JitterEnabled:   false,
			JitterRange:     30 * time.Second,
			DefaultRedirect: "/",
			LoginPath:       "/login",
			CookieName:      "goaccess_session",
			CookieSecure:    true,
		},
		Activation: ActivationConfig{
			TTL:             token.DefaultTTL,
			RequireForLogin: false,
		},
		Registration: RegistrationConfig{
			Enabled:           true,
			UsernameMinLength: 3,
			UsernameMaxLength: 64,
		},
		Security: SecurityConfig{
			EnableLoginThrottle: true,
			EnableIPThrottle:    true,
			MaxLoginAttempts:    10,
			LoginWindow:         15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Session.FingerprintKey = cloneBytes(cfg.Session.FingerprintKey)
	if cfg.Token.RetiredKeys != nil {
		out.Token.RetiredKeys = make(map[string][]byte, len(cfg.Token.RetiredKeys))
		for kid, key := range cfg.Token.RetiredKeys {
			out.Token.RetiredKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxLength,
	}
}

func (c Config) fingerprintKey() []byte {
	if len(c.Session.FingerprintKey) > 0 {
		return c.Session.FingerprintKey
	}
	return c.Token.Secret
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be >= 32 bytes")
	}

	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}
	if c.Password.MaxLength <= 0 {
		return errors.New("Password MaxLength must be > 0")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if !c.Session.Protection.Valid() {
		return errors.New("Session Protection must be none, basic or strong")
	}
	if c.Session.ShortTTL <= 0 {
		return errors.New("Session ShortTTL must be > 0")
	}
	if c.Session.RememberTTL <= 0 {
		return errors.New("Session RememberTTL must be > 0")
	}
	if c.Session.RememberTTL < c.Session.ShortTTL {
		return errors.New("Session RememberTTL must be >= ShortTTL")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange == 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}
	if c.Session.IdleTimeout > 0 && c.Session.JitterEnabled && c.Session.JitterRange >= c.Session.IdleTimeout {
		return errors.New("Session JitterRange must be < IdleTimeout")
	}
	if !strings.HasPrefix(c.Session.DefaultRedirect, "/") {
		return errors.New("Session DefaultRedirect must be a path starting with /")
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") {
		return errors.New("Session LoginPath must be a path starting with /")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must not be empty")
	}

	if c.Activation.TTL <= 0 {
		return errors.New("Activation TTL must be > 0")
	}

	if c.Registration.UsernameMinLength <= 0 {
		return errors.New("Registration UsernameMinLength must be > 0")
	}
	if c.Registration.UsernameMaxLength < c.Registration.UsernameMinLength {
		return errors.New("Registration UsernameMaxLength must be >= UsernameMinLength")
	}

	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginWindow <= 0 {
			return errors.New("Security LoginWindow must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

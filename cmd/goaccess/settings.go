package main

import (
	"fmt"
	"strings"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/internal/logging"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "GOACCESS_"

// Settings is the merged command configuration. Keys are the flag names;
// the YAML file uses the same flat keys and the environment uses the
// upper-case form with a GOACCESS_ prefix (GOACCESS_REDIS_ADDR).
type Settings struct {
	Listen          string        `koanf:"listen"`
	BaseURL         string        `koanf:"base-url"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout"`
	StartupRetries  uint64        `koanf:"startup-retries"`

	Secret string `koanf:"secret"`
	KeyID  string `koanf:"key-id"`

	RedisAddr     string `koanf:"redis-addr"`
	RedisPassword string `koanf:"redis-password"`
	RedisDB       int    `koanf:"redis-db"`
	RedisPrefix   string `koanf:"redis-prefix"`

	DatabaseURL string `koanf:"database-url"`
	AutoMigrate bool   `koanf:"auto-migrate"`

	Protection        string        `koanf:"protection"`
	ShortTTL          time.Duration `koanf:"short-ttl"`
	RememberTTL       time.Duration `koanf:"remember-ttl"`
	RequireActivation bool          `koanf:"require-activation"`
	CookieSecure      bool          `koanf:"cookie-secure"`
	TrustForwardedFor bool          `koanf:"trust-forwarded-for"`
	AllowBearer       bool          `koanf:"allow-bearer"`

	MailLogBody bool `koanf:"mail-log-body"`

	LogLevel  string `koanf:"log-level"`
	LogFormat string `koanf:"log-format"`
}

// Default values for settings flags.
const (
	defaultListen          = "127.0.0.1:8080"
	defaultBaseURL         = "http://127.0.0.1:8080"
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultLogFormat       = "json"
	defaultStartupRetries  = 5
	defaultShutdownTimeout = 10 * time.Second
)

func bindSettingsFlags(fs *pflag.FlagSet) {
	def := goAccess.DefaultConfig()

	fs.String("listen", defaultListen, "HTTP listen address")
	fs.String("base-url", defaultBaseURL, "public base URL used in activation links")
	fs.Duration("shutdown-timeout", defaultShutdownTimeout, "graceful shutdown timeout")
	fs.Uint64("startup-retries", defaultStartupRetries, "connection attempts per backend at startup")

	fs.String("secret", "", "token signing secret, at least 32 bytes")
	fs.String("key-id", def.Token.KeyID, "key id stamped into issued tokens")

	fs.String("redis-addr", defaultRedisAddr, "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("redis-prefix", def.Session.RedisPrefix, "Redis key prefix")

	fs.String("database-url", "", "PostgreSQL URL (empty keeps accounts in memory)")
	fs.Bool("auto-migrate", false, "apply pending migrations before serving")

	fs.String("protection", def.Session.Protection.String(), "session protection: none, basic or strong")
	fs.Duration("short-ttl", def.Session.ShortTTL, "lifetime of sessions without remember me")
	fs.Duration("remember-ttl", def.Session.RememberTTL, "lifetime of remembered sessions")
	fs.Bool("require-activation", def.Activation.RequireForLogin, "refuse login for unconfirmed accounts")
	fs.Bool("cookie-secure", def.Session.CookieSecure, "mark the session cookie Secure")
	fs.Bool("trust-forwarded-for", false, "take the client IP from X-Forwarded-For")
	fs.Bool("allow-bearer", false, "accept the session token as a bearer token")

	fs.Bool("mail-log-body", false, "log activation mail bodies (development only)")

	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", defaultLogFormat, "log format: json or text")
}

// loadSettings merges the YAML file named by --config, the environment and
// the command's flags. Flags the user did not set only fill keys no other
// layer provided.
func loadSettings(cmd *cobra.Command) (Settings, error) {
	k := koanf.New(".")

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Settings{}, oops.Code("CONFIG_INVALID").With("operation", "load environment").Wrap(err)
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return Settings{}, oops.Code("CONFIG_INVALID").With("operation", "load flags").Wrap(err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, oops.Code("CONFIG_INVALID").With("operation", "decode settings").Wrap(err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return s, nil
}

func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// Validate checks the settings every command depends on. Backend specific
// requirements are checked by the commands that use them.
func (s *Settings) Validate() error {
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.LogFormat != "json" && s.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", s.LogFormat)
	}
	if _, err := goAccess.ParseProtectionLevel(s.Protection); err != nil {
		return err
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be > 0")
	}
	return nil
}

func (s *Settings) requireSecret() error {
	if len(s.Secret) < 32 {
		return oops.Code("CONFIG_INVALID").Errorf("secret must be at least 32 bytes (flag --secret or GOACCESS_SECRET)")
	}
	return nil
}

func (s *Settings) requireDatabase() error {
	if s.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url is required (flag --database-url or GOACCESS_DATABASE_URL)")
	}
	return nil
}

// EngineConfig maps the settings onto the engine defaults.
func (s *Settings) EngineConfig() (goAccess.Config, error) {
	cfg := goAccess.DefaultConfig()

	protection, err := goAccess.ParseProtectionLevel(s.Protection)
	if err != nil {
		return goAccess.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	cfg.Token.Secret = []byte(s.Secret)
	cfg.Token.KeyID = s.KeyID
	cfg.Session.RedisPrefix = s.RedisPrefix
	cfg.Session.Protection = protection
	cfg.Session.ShortTTL = s.ShortTTL
	cfg.Session.RememberTTL = s.RememberTTL
	cfg.Session.CookieSecure = s.CookieSecure
	cfg.Activation.RequireForLogin = s.RequireActivation

	if err := cfg.Validate(); err != nil {
		return goAccess.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

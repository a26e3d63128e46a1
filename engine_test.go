package goAccess_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/directory/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []goAccess.ActivationMessage
	err  error
}

func (m *recordingMailer) SendActivation(_ context.Context, msg goAccess.ActivationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last() (goAccess.ActivationMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return goAccess.ActivationMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type harness struct {
	engine *goAccess.Engine
	dir    *memory.Directory
	mailer *recordingMailer
	clock  *testClock
	redis  *miniredis.Miniredis
	audit  *goAccess.ChannelSink
}

func testConfig() goAccess.Config {
	cfg := goAccess.DefaultConfig()
	cfg.Token.Secret = bytes.Repeat([]byte("k"), 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newHarness(t *testing.T, mutate func(*goAccess.Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		dir:    memory.New(),
		mailer: &recordingMailer{},
		clock:  &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		redis:  mr,
		audit:  goAccess.NewChannelSink(256),
	}

	engine, err := goAccess.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(h.dir).
		WithMailer(h.mailer).
		WithAuditSink(h.audit).
		WithClock(h.clock).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	h.engine = engine
	return h
}

func clientCtx(ip, ua string) context.Context {
	return goAccess.WithUserAgent(goAccess.WithClientIP(context.Background(), ip), ua)
}

// registerConfirmed registers alice and redeems her activation token.
func (h *harness) registerConfirmed(t *testing.T) goAccess.Account {
	t.Helper()
	ctx := context.Background()

	res, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	out, err := h.engine.RedeemActivation(ctx, res.ActivationToken)
	require.NoError(t, err)
	require.Equal(t, goAccess.ActivationConfirmed, out.Status)

	acct, err := h.dir.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	return acct
}

func (h *harness) login(t *testing.T, ctx context.Context, remember bool) goAccess.LoginOutcome {
	t.Helper()
	out, err := h.engine.Login(ctx, goAccess.LoginRequest{
		Username: "alice",
		Password: "correct horse",
		Remember: remember,
	})
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "status %s", out.Status)
	return out
}

func TestBuildRequiresRedisAndDirectory(t *testing.T) {
	cfg := testConfig()

	_, err := goAccess.New().WithConfig(cfg).WithDirectory(memory.New()).Build()
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, err = goAccess.New().WithConfig(cfg).WithRedis(rdb).Build()
	assert.Error(t, err)

	cfg.Token.Secret = []byte("short")
	_, err = goAccess.New().WithConfig(cfg).WithRedis(rdb).WithDirectory(memory.New()).Build()
	assert.Error(t, err)
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := goAccess.New().WithConfig(testConfig()).WithRedis(rdb).WithDirectory(memory.New())
	engine, err := b.Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = b.Build()
	assert.Error(t, err)
}

func TestRegisterActivateLoginResolve(t *testing.T) {
	h := newHarness(t, nil)
	ctx := clientCtx("10.0.0.1", "test-agent")

	res, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "  alice ",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Account.Username)
	assert.False(t, res.Account.Confirmed)
	assert.NotEmpty(t, res.ActivationToken)

	msg, ok := h.mailer.last()
	require.True(t, ok)
	assert.Equal(t, res.ActivationToken, msg.Token)
	assert.Equal(t, "alice@example.com", msg.Email)

	out, err := h.engine.RedeemActivation(ctx, res.ActivationToken)
	require.NoError(t, err)
	assert.Equal(t, goAccess.ActivationConfirmed, out.Status)
	assert.Equal(t, res.Account.ID, out.AccountID)
	assert.Equal(t, "Your account is now active. You can sign in.", out.PublicMessage())

	again, err := h.engine.RedeemActivation(ctx, res.ActivationToken)
	require.NoError(t, err)
	assert.Equal(t, goAccess.ActivationAlreadyConfirmed, again.Status)
	assert.NotEqual(t, out.PublicMessage(), again.PublicMessage())

	login, err := h.engine.Login(ctx, goAccess.LoginRequest{
		Username: "alice",
		Password: "correct horse",
		Next:     "/account/settings",
	})
	require.NoError(t, err)
	require.True(t, login.Succeeded())
	assert.Equal(t, "/account/settings", login.RedirectTo)
	assert.False(t, login.Persistent)
	assert.Equal(t, h.clock.Now().Add(12*time.Hour).Unix(), login.Expires.Unix())

	p, err := h.engine.ResolvePrincipal(ctx, login.SessionToken)
	require.NoError(t, err)
	require.True(t, p.IsAuthenticated())
	assert.True(t, p.Fresh())
	acct, ok := p.Account()
	require.True(t, ok)
	assert.Equal(t, "alice", acct.Username)
	assert.Equal(t, login.SessionToken, p.SessionID())
}

func TestLoginFailuresCreateNoSession(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		want     goAccess.LoginStatus
	}{
		{name: "unknown user", username: "mallory", password: "correct horse", want: goAccess.LoginUnknownUser},
		{name: "bad password", username: "alice", password: "wrong horse", want: goAccess.LoginBadPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: tc.username, Password: tc.password})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Status)
			assert.Empty(t, out.SessionToken)
			assert.False(t, out.Succeeded())
		})
	}

	for _, key := range h.redis.Keys() {
		assert.NotContains(t, key, ":s:", "unexpected session key %s", key)
	}
}

func TestLoginRedirectFallsBackForUnsafeNext(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)

	out, err := h.engine.Login(context.Background(), goAccess.LoginRequest{
		Username: "alice",
		Password: "correct horse",
		Next:     "//evil.example/steal",
	})
	require.NoError(t, err)
	assert.Equal(t, "/", out.RedirectTo)
}

func TestLoginRequiresConfirmation(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Activation.RequireForLogin = true })
	ctx := context.Background()

	_, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	out, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, goAccess.LoginUnconfirmed, out.Status)

	out, err = h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "nope nope"})
	require.NoError(t, err)
	assert.Equal(t, goAccess.LoginBadPassword, out.Status)
}

func TestLoginThrottle(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Security.MaxLoginAttempts = 2 })
	h.registerConfirmed(t)
	ctx := clientCtx("10.0.0.9", "ua")

	for i := 0; i < 2; i++ {
		out, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "wrong horse"})
		require.NoError(t, err)
		require.Equal(t, goAccess.LoginBadPassword, out.Status)
	}

	out, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, goAccess.LoginThrottled, out.Status)
	assert.Empty(t, out.SessionToken)

	snap := h.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[goAccess.MetricLoginThrottled])
	assert.Equal(t, uint64(2), snap.Counters[goAccess.MetricLoginBadPassword])
}

func TestRememberedSessionUsesLongTTL(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)

	out := h.login(t, context.Background(), true)
	assert.True(t, out.Persistent)
	assert.Equal(t, h.clock.Now().Add(30*24*time.Hour).Unix(), out.Expires.Unix())
}

func TestSessionExpiresWithClock(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)
	ctx := context.Background()

	out := h.login(t, ctx, false)

	h.clock.Advance(12*time.Hour + time.Second)

	p, err := h.engine.ResolvePrincipal(ctx, out.SessionToken)
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())
}

func TestResolveAnonymousTokens(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, tok := range []string{"", "not-a-session", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		p, err := h.engine.ResolvePrincipal(ctx, tok)
		require.NoError(t, err)
		assert.True(t, p.IsAnonymous(), "token %q", tok)
		_, ok := p.Account()
		assert.False(t, ok)
		assert.False(t, p.Fresh())
	}
}

func TestStrongProtection(t *testing.T) {
	t.Run("client change destroys session", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerConfirmed(t)

		out := h.login(t, clientCtx("10.0.0.1", "agent-a"), false)

		p, err := h.engine.ResolvePrincipal(clientCtx("10.0.0.2", "agent-b"), out.SessionToken)
		require.NoError(t, err)
		assert.True(t, p.IsAnonymous())

		p, err = h.engine.ResolvePrincipal(clientCtx("10.0.0.1", "agent-a"), out.SessionToken)
		require.NoError(t, err)
		assert.True(t, p.IsAnonymous(), "session should be gone after invalidation")
		assert.Equal(t, uint64(1), h.engine.MetricsSnapshot().Counters[goAccess.MetricSessionInvalidated])
	})

	t.Run("password change destroys session", func(t *testing.T) {
		h := newHarness(t, nil)
		acct := h.registerConfirmed(t)
		ctx := clientCtx("10.0.0.1", "agent-a")

		out := h.login(t, ctx, false)
		require.NoError(t, h.engine.ChangePassword(ctx, acct.ID, "correct horse", "battery staple"))

		p, err := h.engine.ResolvePrincipal(ctx, out.SessionToken)
		require.NoError(t, err)
		assert.True(t, p.IsAnonymous())

		login, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "battery staple"})
		require.NoError(t, err)
		assert.True(t, login.Succeeded())
	})
}

func TestBasicProtectionMarksStale(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Session.Protection = goAccess.ProtectionBasic })
	h.registerConfirmed(t)

	out := h.login(t, clientCtx("10.0.0.1", "agent-a"), false)

	p, err := h.engine.ResolvePrincipal(clientCtx("10.0.0.2", "agent-b"), out.SessionToken)
	require.NoError(t, err)
	require.True(t, p.IsAuthenticated())
	assert.False(t, p.Fresh())

	p, err = h.engine.ResolvePrincipal(clientCtx("10.0.0.1", "agent-a"), out.SessionToken)
	require.NoError(t, err)
	assert.True(t, p.Fresh())
}

func TestNoProtectionIgnoresClient(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Session.Protection = goAccess.ProtectionNone })
	h.registerConfirmed(t)

	out := h.login(t, clientCtx("10.0.0.1", "agent-a"), false)

	p, err := h.engine.ResolvePrincipal(clientCtx("10.0.0.2", "agent-b"), out.SessionToken)
	require.NoError(t, err)
	assert.True(t, p.IsAuthenticated())
	assert.True(t, p.Fresh())
}

func TestLogoutResetsCurrentPrincipal(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)

	out := h.login(t, context.Background(), false)

	cp := h.engine.NewCurrentPrincipal(out.SessionToken)
	ctx := goAccess.WithCurrentPrincipal(context.Background(), cp)

	p, err := cp.Get(ctx)
	require.NoError(t, err)
	require.True(t, p.IsAuthenticated())
	assert.True(t, goAccess.PrincipalFromContext(ctx).IsAuthenticated())

	h.engine.Logout(ctx, out.SessionToken)

	assert.Empty(t, cp.Token())
	p, err = cp.Get(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())

	p, err = h.engine.ResolvePrincipal(context.Background(), out.SessionToken)
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())

	// Logging out twice, or with garbage, is harmless.
	h.engine.Logout(ctx, out.SessionToken)
	h.engine.Logout(ctx, "garbage")
}

func TestLoginUpdatesCurrentPrincipal(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)

	cp := h.engine.NewCurrentPrincipal("")
	ctx := goAccess.WithCurrentPrincipal(context.Background(), cp)

	p, err := cp.Get(ctx)
	require.NoError(t, err)
	require.True(t, p.IsAnonymous())

	out := h.login(t, ctx, false)
	assert.Equal(t, out.SessionToken, cp.Token())

	p, err = cp.Get(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsAuthenticated())
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.registerConfirmed(t)
	ctx := context.Background()

	first := h.login(t, ctx, false)
	second := h.login(t, ctx, true)

	n, err := h.engine.LogoutAll(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, tok := range []string{first.SessionToken, second.SessionToken} {
		p, err := h.engine.ResolvePrincipal(ctx, tok)
		require.NoError(t, err)
		assert.True(t, p.IsAnonymous())
	}
}

func TestAccountChangeInvalidatesSession(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.registerConfirmed(t)
	ctx := context.Background()

	out := h.login(t, ctx, false)

	acct.Username = "alice2"
	require.NoError(t, h.dir.Save(ctx, acct))

	p, err := h.engine.ResolvePrincipal(ctx, out.SessionToken)
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous(), "renamed account changes the fingerprint")
}

func TestActivationFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	out, err := h.engine.RedeemActivation(ctx, "garbage")
	require.NoError(t, err)
	assert.Equal(t, goAccess.ActivationInvalid, out.Status)
	assert.Error(t, out.Reason)
	assert.Equal(t, "This activation link is invalid or has expired.", out.PublicMessage())

	tok, err := h.engine.IssueActivation(ctx, 999)
	require.NoError(t, err)
	out, err = h.engine.RedeemActivation(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, goAccess.ActivationUnknownAccount, out.Status)
	assert.Equal(t, "This activation link is invalid or has expired.", out.PublicMessage())
}

func TestActivationExpires(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Activation.TTL = time.Hour })
	ctx := context.Background()

	res, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	out, err := h.engine.RedeemActivation(ctx, res.ActivationToken)
	require.NoError(t, err)
	assert.Equal(t, goAccess.ActivationInvalid, out.Status)
	assert.True(t, errors.Is(out.Reason, goAccess.ErrTokenExpired))

	acct, err := h.dir.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.False(t, acct.Confirmed)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  goAccess.RegisterRequest
	}{
		{name: "empty username", req: goAccess.RegisterRequest{Email: "a@example.com", Password: "correct horse"}},
		{name: "short username", req: goAccess.RegisterRequest{Username: "ab", Email: "a@example.com", Password: "correct horse"}},
		{name: "bad username chars", req: goAccess.RegisterRequest{Username: "al ice", Email: "a@example.com", Password: "correct horse"}},
		{name: "bad email", req: goAccess.RegisterRequest{Username: "alice", Email: "not-an-email", Password: "correct horse"}},
		{name: "short password", req: goAccess.RegisterRequest{Username: "alice", Email: "a@example.com", Password: "short"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Register(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, goAccess.ErrRegistrationInvalid))
		})
	}

	assert.Equal(t, 0, h.dir.Len())
}

func TestRegisterDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.registerConfirmed(t)

	_, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "ALICE",
		Email:    "other@example.com",
		Password: "correct horse",
	})
	assert.True(t, errors.Is(err, goAccess.ErrUsernameTaken))

	_, err = h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "bob",
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	assert.True(t, errors.Is(err, goAccess.ErrEmailTaken))

	assert.Equal(t, uint64(2), h.engine.MetricsSnapshot().Counters[goAccess.MetricRegistrationDuplicate])
}

func TestRegistrationDisabled(t *testing.T) {
	h := newHarness(t, func(c *goAccess.Config) { c.Registration.Enabled = false })

	_, err := h.engine.Register(context.Background(), goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	assert.True(t, errors.Is(err, goAccess.ErrRegistrationDisabled))
}

func TestMailerFailureDoesNotFailRegistration(t *testing.T) {
	h := newHarness(t, nil)
	h.mailer.err = errors.New("smtp down")

	res, err := h.engine.Register(context.Background(), goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ActivationToken)
	assert.Equal(t, uint64(1), h.engine.MetricsSnapshot().Counters[goAccess.MetricMailDropped])
}

func TestResendActivation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.engine.Register(ctx, goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	require.NoError(t, h.engine.ResendActivation(ctx, "alice@example.com"))
	h.mailer.mu.Lock()
	sent := len(h.mailer.sent)
	h.mailer.mu.Unlock()
	assert.Equal(t, 2, sent)

	require.NoError(t, h.engine.ResendActivation(ctx, "nobody@example.com"))
	h.mailer.mu.Lock()
	assert.Len(t, h.mailer.sent, 2)
	h.mailer.mu.Unlock()
}

func TestChangePasswordErrors(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.registerConfirmed(t)
	ctx := context.Background()

	err := h.engine.ChangePassword(ctx, acct.ID, "wrong horse", "battery staple")
	assert.True(t, errors.Is(err, goAccess.ErrInvalidCredentials))

	err = h.engine.ChangePassword(ctx, acct.ID, "correct horse", "short")
	assert.True(t, errors.Is(err, goAccess.ErrPasswordPolicy))

	err = h.engine.ChangePassword(ctx, 999, "correct horse", "battery staple")
	assert.True(t, errors.Is(err, goAccess.ErrAccountNotFound))
}

// confirmingDirectory confirms the account right after the first FindByID,
// as if an activation link was redeemed between a read and the write that
// follows it.
type confirmingDirectory struct {
	*memory.Directory
	once sync.Once
}

func (d *confirmingDirectory) FindByID(ctx context.Context, id int64) (goAccess.Account, error) {
	acct, err := d.Directory.FindByID(ctx, id)
	if err == nil {
		d.once.Do(func() { _, _ = d.Directory.ConfirmAccount(ctx, id) })
	}
	return acct, err
}

func TestChangePasswordKeepsConcurrentActivation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	inner := memory.New()
	engine, err := goAccess.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithDirectory(inner).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	res, err := engine.Register(ctx, goAccess.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	before, err := inner.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	require.False(t, before.Confirmed)

	dir := &confirmingDirectory{Directory: inner}
	racing, err := goAccess.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithDirectory(dir).
		Build()
	require.NoError(t, err)
	t.Cleanup(racing.Close)

	require.NoError(t, racing.ChangePassword(ctx, res.Account.ID, "correct horse", "battery staple"))

	got, err := inner.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed, "password change must not revert the activation")
	assert.NotEqual(t, before.PasswordHash, got.PasswordHash)
}

func TestRedisOutageSurfacesError(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)
	ctx := context.Background()

	out := h.login(t, ctx, false)
	h.redis.Close()

	_, err := h.engine.Login(ctx, goAccess.LoginRequest{Username: "alice", Password: "correct horse"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, goAccess.ErrThrottleUnavailable))

	p, err := h.engine.ResolvePrincipal(ctx, out.SessionToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, goAccess.ErrSessionStoreUnavailable))
	assert.True(t, p.IsAnonymous())

	_, err = h.engine.Ping(ctx)
	assert.Error(t, err)
}

func TestAuditEventsCarrySessionRef(t *testing.T) {
	h := newHarness(t, nil)
	h.registerConfirmed(t)
	ctx := clientCtx("10.0.0.7", "ua")

	out := h.login(t, ctx, false)
	h.engine.Close()

	var found bool
	for drained := false; !drained; {
		select {
		case ev := <-h.audit.Events():
			assert.NotEqual(t, out.SessionToken, ev.SessionRef)
			if ev.EventType == "login_success" {
				found = true
				assert.Equal(t, "10.0.0.7", ev.IP)
				assert.Len(t, ev.SessionRef, 12)
				assert.True(t, ev.Success)
			}
		default:
			drained = true
		}
	}
	assert.True(t, found, "expected a login_success audit event")
}

func TestSafeRedirect(t *testing.T) {
	cases := []struct {
		next string
		want string
	}{
		{next: "/dashboard", want: "/dashboard"},
		{next: "/a/b?c=d#e", want: "/a/b?c=d#e"},
		{next: "", want: "/home"},
		{next: "dashboard", want: "/home"},
		{next: "//evil.example", want: "/home"},
		{next: "/\\evil.example", want: "/home"},
		{next: "/a\\b", want: "/home"},
		{next: "https://evil.example/", want: "/home"},
		{next: "/line\nbreak", want: "/home"},
		{next: "javascript:alert(1)", want: "/home"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, goAccess.SafeRedirect(tc.next, "/home"), "next %q", tc.next)
	}
}

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/directory/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const loadtestPassword = "loadtest-password"

type loadtestConfig struct {
	accounts    int
	concurrency int
	logins      int
	resolves    int
	miniredis   bool
}

// Validate checks that the configuration is valid.
func (cfg *loadtestConfig) Validate() error {
	if cfg.accounts <= 0 || cfg.concurrency <= 0 || cfg.logins <= 0 || cfg.resolves <= 0 {
		return fmt.Errorf("accounts, concurrency, logins and resolves must be > 0")
	}
	return nil
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	cfg := &loadtestConfig{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure login and principal resolution throughput",
		Long: `Seed accounts into an in-memory directory, then run a login phase
and a principal resolution phase against Redis and print latency
percentiles. An embedded Redis is used unless --miniredis=false, in which
case --redis-addr is used. Keys are written under the configured prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadtest(cmd, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.accounts, "accounts", 1000, "number of accounts to seed")
	cmd.Flags().IntVar(&cfg.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.logins, "logins", 2000, "login operations")
	cmd.Flags().IntVar(&cfg.resolves, "resolves", 100000, "principal resolutions")
	cmd.Flags().BoolVar(&cfg.miniredis, "miniredis", true, "use an embedded Redis")

	return cmd
}

func runLoadtest(cmd *cobra.Command, cfg *loadtestConfig) error {
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	addr := s.RedisAddr
	if cfg.miniredis {
		mr, err := miniredis.Run()
		if err != nil {
			return oops.Code("REDIS_UNAVAILABLE").With("operation", "start miniredis").Wrap(err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: s.RedisPassword, DB: s.RedisDB})
	defer func() { _ = rdb.Close() }()

	engine, dir, err := loadtestEngine(rdb, s.RedisPrefix)
	if err != nil {
		return err
	}
	defer engine.Close()

	usernames, err := seedAccounts(ctx, engine, dir, cfg.accounts)
	if err != nil {
		return err
	}

	loginStats, tokens := runLoginPhase(ctx, engine, usernames, cfg.logins, cfg.concurrency)
	if len(tokens) == 0 {
		return oops.Code("LOADTEST_FAILED").Errorf("no login succeeded")
	}
	resolveStats := runResolvePhase(ctx, engine, tokens, cfg.resolves, cfg.concurrency)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "resolve", resolveStats)
	return nil
}

// loadtestEngine builds an engine with cheap hashing and without throttling
// so the run measures Redis round trips rather than argon2.
func loadtestEngine(rdb redis.UniversalClient, prefix string) (*goAccess.Engine, *memory.Directory, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, oops.Code("LOADTEST_FAILED").Wrap(err)
	}

	cfg := goAccess.DefaultConfig()
	cfg.Token.Secret = secret
	cfg.Session.RedisPrefix = prefix
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableIPThrottle = false
	cfg.Audit.Enabled = false

	dir := memory.New()
	engine, err := goAccess.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	if err != nil {
		return nil, nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	return engine, dir, nil
}

func seedAccounts(ctx context.Context, engine *goAccess.Engine, dir *memory.Directory, n int) ([]string, error) {
	hash, err := engine.HashPassword(loadtestPassword)
	if err != nil {
		return nil, oops.Code("HASH_FAILED").Wrap(err)
	}

	usernames := make([]string, n)
	for i := range usernames {
		usernames[i] = fmt.Sprintf("user%d", i)
		_, err := dir.Create(ctx, goAccess.Account{
			Username:     usernames[i],
			Email:        fmt.Sprintf("user%d@loadtest.invalid", i),
			PasswordHash: hash,
			Confirmed:    true,
		})
		if err != nil {
			return nil, oops.Code("LOADTEST_FAILED").With("operation", "seed").Wrap(err)
		}
	}
	return usernames, nil
}

func runLoginPhase(ctx context.Context, engine *goAccess.Engine, usernames []string, ops, concurrency int) (phaseStats, []string) {
	var (
		tokensMu sync.Mutex
		tokens   []string
	)

	stats := runPhase(ops, concurrency, func(r *mrand.Rand) error {
		out, err := engine.Login(ctx, goAccess.LoginRequest{
			Username: usernames[r.IntN(len(usernames))],
			Password: loadtestPassword,
		})
		if err != nil {
			return err
		}
		if !out.Succeeded() {
			return fmt.Errorf("login %s", out.Status)
		}
		tokensMu.Lock()
		tokens = append(tokens, out.SessionToken)
		tokensMu.Unlock()
		return nil
	})
	return stats, tokens
}

func runResolvePhase(ctx context.Context, engine *goAccess.Engine, tokens []string, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *mrand.Rand) error {
		p, err := engine.ResolvePrincipal(ctx, tokens[r.IntN(len(tokens))])
		if err != nil {
			return err
		}
		if p.IsAnonymous() {
			return fmt.Errorf("session did not resolve")
		}
		return nil
	})
}

// runPhase runs op ops times across concurrency workers and records the
// latency of every call.
func runPhase(ops, concurrency int, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				if int(cursor.Add(1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

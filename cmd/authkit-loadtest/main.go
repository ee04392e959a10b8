package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const loadPassword = "load-test-password"

type account struct {
	email string
	ctx   context.Context
	mu    sync.Mutex
	state *authkit.State
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of accounts to register and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per session phase (resume + rotate)")
		logins      = flag.Int("logins", 2000, "password logins in the login phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional config file, AUTHKIT_* env vars apply on top")
		verbose     = flag.Bool("v", false, "log engine warnings to stderr")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *logins < 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	cfg, err := authkit.LoadConfig(*configPath, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *configPath == "" {
		// Minimum argon2 cost unless a config file says otherwise.
		cfg.Password.Memory = 8 * 1024
		cfg.Password.Time = 1
		cfg.Password.Parallelism = 1
	}
	cfg.Verification.Required = false

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	}

	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(memory.New()).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]*account, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		a := &account{
			email: fmt.Sprintf("load-%d@example.com", i),
			ctx:   clientContext(i),
		}
		if _, err := engine.Register(a.ctx, authkit.RegisterRequest{Email: a.email, Password: loadPassword}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.Login(a.ctx, nil, a.email, loadPassword, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		a.state = res.State
		states[i] = a
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resumeStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		a := states[r.Intn(len(states))]
		a.mu.Lock()
		sid := a.state.SessionID()
		a.mu.Unlock()
		_, err := engine.Resume(a.ctx, sid)
		return err
	})

	rotateStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		a := states[r.Intn(len(states))]
		a.mu.Lock()
		defer a.mu.Unlock()
		next, err := engine.RotateSession(a.ctx, a.state)
		if err == nil {
			a.state = next
		}
		return err
	})

	var loginStats phaseStats
	if *logins > 0 {
		loginStats = runPhase(*logins, *concurrency, 3571, func(r *rand.Rand, _ int) error {
			a := states[r.Intn(len(states))]
			_, err := engine.Login(a.ctx, nil, a.email, loadPassword, false)
			return err
		})
	}

	fmt.Println("---- results ----")
	printStats("resume", resumeStats)
	printStats("rotate", rotateStats)
	if *logins > 0 {
		printStats("login", loginStats)
	}
	snap := engine.MetricsSnapshot()
	fmt.Printf("rate_limit_hits=%d sessions_created=%d sessions_rotated=%d\n",
		snap.Counters[authkit.MetricRateLimitHit],
		snap.Counters[authkit.MetricSessionCreated],
		snap.Counters[authkit.MetricSessionRotated],
	)
}

// clientContext gives each account its own address so the per-address
// throttle does not cap the seeding loop.
func clientContext(i int) context.Context {
	ctx := authkit.WithClientIP(context.Background(), clientIP(i))
	return authkit.WithUserAgent(ctx, "authkit-loadtest/1")
}

func clientIP(i int) string {
	return fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
		return phaseStats{total: total}
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

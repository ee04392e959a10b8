package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/internal"
	"github.com/MrEthical07/authkit/internal/audit"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/session"
	"github.com/MrEthical07/authkit/throttle"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. Configure it once during initialization;
// Build may be called only once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	accounts  AccountStore
	logger    zerolog.Logger
	clock     clockwork.Clock
	auditSink AuditSink

	// dial opens the client used when none is supplied.
	dial func(RedisConfig) redis.UniversalClient

	built bool
}

const dialTimeout = 5 * time.Second

func dialRedis(cfg RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New returns a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
		dial:   dialRedis,
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client for secrets, throttle buckets and sessions.
// Without it Build dials Config.Redis.Addr.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source for throttle windows, secret expiry and
// session expiry.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component. A client
// dialed from Config.Redis is pinged first and closed again if Build fails.
func (b *Builder) Build() (_ *Engine, err error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, fmt.Errorf("%w: account store required", ErrInvalidConfig)
	}
	if b.redis == nil && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("%w: redis client or redis.addr required", ErrInvalidConfig)
	}

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	// -------- PASSWORD --------
	hasher, err := password.NewArgon2(cfg.Password.hasher())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	// Unknown accounts are verified against this digest so a miss costs
	// the same as a wrong password.
	filler, err := internal.RandomAlphanumeric(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	dummyDigest, err := hasher.Hash(filler)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	// -------- REDIS --------
	client := b.redis
	ownsRedis := false
	if client == nil {
		dial := b.dial
		if dial == nil {
			dial = dialRedis
		}
		client = dial(cfg.Redis)
		ownsRedis = true
		defer func() {
			if err != nil {
				_ = client.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			return nil, fmt.Errorf("%w: redis ping %s: %v", ErrStoreUnavailable, cfg.Redis.Addr, pingErr)
		}
	}

	// -------- THROTTLE --------
	throttler, err := throttle.New(
		throttle.NewRedisStore(client, cfg.Redis.Prefix+":thr"),
		clock,
		cfg.Throttle.limits(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// -------- SESSION --------
	policy, err := session.ParsePolicy(cfg.Session.FingerprintPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	sessions, err := session.NewManager(
		session.NewRedisStore(client, cfg.Redis.Prefix+":ses"),
		clock,
		session.Config{
			TTL:         cfg.Session.TTL,
			RememberTTL: cfg.RememberMe.TTL,
			Policy:      policy,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := b.logger.With().Str("component", "authkit").Logger()

	e := &Engine{
		config:      cfg,
		accounts:    b.accounts,
		pool:        password.NewPool(hasher, cfg.Password.MaxConcurrent),
		dummyDigest: dummyDigest,
		codec:       secret.NewCodec(secret.NewRedisStore(client, cfg.Redis.Prefix+":sec"), clock),
		throttler:   throttler,
		sessions:    sessions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		clock:       clock,
		log:         logger,
		audit:       audit.NewDispatcher(cfg.Audit, b.auditSink, b.logger),
		metrics:     NewMetrics(cfg.Metrics),
	}
	if ownsRedis {
		e.redis = client
	}

	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		logger.Warn().Str("code", w.Code).Str("severity", w.Severity.String()).Msg(w.Message)
	}

	b.built = true
	logger.Debug().
		Str("fingerprint_policy", policy.String()).
		Bool("verification_required", cfg.Verification.Required).
		Msg("engine built")
	return e, nil
}

package goGate

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/passkey"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	principals PrincipalStore
	sessions   SessionStore
	auditSink  AuditSink
	logger     zerolog.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the default session store, the
// default principal store and the sign-in throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore overrides the Redis principal store, e.g. with
// credential.OpenSQLite.
func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every expiry and lockout decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		switch {
		case b.sessions == nil:
			return nil, errors.New("redis client or session store required")
		case b.principals == nil:
			return nil, errors.New("redis client or principal store required")
		case cfg.Throttle.Enabled:
			return nil, errors.New("sign-in throttle requires redis client")
		}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		log:        b.logger,
		now:        now,
		principals: b.principals,
		sessions:   b.sessions,
	}
	if engine.sessions == nil {
		engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	}
	if engine.principals == nil {
		engine.principals = credential.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	if cfg.Throttle.Enabled {
		engine.throttle = rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Window:      cfg.Throttle.Window,
			Prefix:      cfg.Session.RedisPrefix,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     b.logger.With().Str("component", "audit_dispatcher").Logger(),
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}
	pool, err := password.NewPool(hasher, cfg.Password.Workers)
	if err != nil {
		return nil, err
	}
	engine.hashes = pool

	verifier, err := passkey.NewVerifier(passkey.Config{
		Issuer: cfg.Passkey.Issuer,
		Digits: cfg.Passkey.Digits,
		Period: cfg.Passkey.Period,
		Skew:   cfg.Passkey.Skew,
	}, pool)
	if err != nil {
		return nil, err
	}
	engine.passkeys = verifier

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens

	b.built = true
	return engine, nil
}

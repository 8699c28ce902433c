package credlock

import (
	"errors"

	"github.com/credlock/credlock/internal/rate"
	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
	"github.com/credlock/credlock/revocation"
	"github.com/credlock/credlock/seal"
	"github.com/credlock/credlock/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Chain the With* setters and finish with
// Build; a builder is single-use.
//
//	engine, err := credlock.New().
//		WithRedis(client).
//		WithUserStore(store).
//		Build()
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore    UserStore
	ipReputation IPReputation
	auditSink    AuditSink
	clock        Clock

	built bool
}

// New starts a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned;
// later mutations of cfg by the caller do not leak in.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing every store. Single-node,
// cluster, and sentinel clients all satisfy UniversalClient.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the caller-owned account backend.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithIPReputation overrides the default Redis fixed-window IP
// reputation with a caller implementation.
func (b *Builder) WithIPReputation(rep IPReputation) *Builder {
	b.ipReputation = rep
	return b
}

// WithAuditSink sets the destination for audit events. The dispatcher
// only runs when AuditConfig.Enabled is set; an enabled dispatcher with
// no sink discards events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Tests use this to freeze expiry
// arithmetic; production builds never need it.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every store, and wires
// the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:          cfg,
		sessionStore:    session.NewStore(b.redis, cfg.Session.RedisPrefix),
		revocationStore: revocation.NewStore(b.redis, cfg.Revocation.RedisPrefix),
		challengeStore:  newMFAChallengeStore(b.redis),
		userStore:       b.userStore,
		clock:           b.clock,
	}
	if engine.clock == nil {
		engine.clock = realClock{}
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableLoginThrottle:   cfg.RateLimit.EnableLoginThrottle,
		MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
		LoginWindow:           cfg.RateLimit.LoginWindow,
		EnableRefreshThrottle: cfg.RateLimit.EnableRefreshThrottle,
		MaxRefreshAttempts:    cfg.RateLimit.MaxRefreshAttempts,
		RefreshWindow:         cfg.RateLimit.RefreshWindow,
	})

	engine.ipReputation = b.ipReputation
	if engine.ipReputation == nil {
		engine.ipReputation = newRedisIPReputation(b.redis, cfg.RateLimit)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	mfaCfg := cfg.MFA
	if mfaCfg.Issuer == "" {
		mfaCfg.Issuer = cfg.JWT.Issuer
	}
	engine.totp = newTOTPManager(mfaCfg)

	// The sealer stays nil without a key; MFA operations refuse to run
	// until one is configured.
	if len(cfg.MFA.SealKey) == 32 {
		sealer, err := seal.New(cfg.MFA.SealKey)
		if err != nil {
			return nil, err
		}
		engine.sealer = sealer
	}

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

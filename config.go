package summa

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/fx"
	"github.com/ShivamGupta-SM/summa-sub004/internal/hotaccount"
	"github.com/ShivamGupta-SM/summa-sub004/internal/idempotency"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// Defaults applied by Config.withDefaults. Every interval is
// overridable; zero means "use the default", a negative interval
// disables that worker.
const (
	DefaultTransactionTimeout      = 30 * time.Second
	DefaultLockTimeout             = 3 * time.Second
	DefaultHoldExpiryInterval      = time.Minute
	DefaultIdemCleanupInterval     = time.Hour
	DefaultHotCleanupInterval      = 6 * time.Hour
	DefaultChainVerifyInterval     = 10 * time.Minute
	DefaultChartValidationInterval = 5 * time.Minute
	DefaultLeaseCleanupInterval    = 15 * time.Minute
)

// Config wires a Client. Pool is the only required field.
type Config struct {
	// Pool is the primary PostgreSQL connection pool.
	Pool *pgxpool.Pool
	// ReplicaPool, when set, serves plain reads outside transactions.
	ReplicaPool *pgxpool.Pool
	// Schema is the PostgreSQL schema holding the ledger tables.
	// Defaults to "summa".
	Schema string

	// Redis enables the event bus and the KV surface. Optional.
	Redis redis.UniversalClient

	// HMACSecret keys the event hash chain and balance checksums. With
	// an empty secret hashes are plain SHA-256: still tamper-evident
	// against casual edits, not against an attacker who can rewrite the
	// whole chain.
	HMACSecret string

	// LockMode is "wait" (default) or "nowait". "optimistic" is
	// reserved and rejected.
	LockMode string
	// MaxTransactionAmount caps single-operation amounts in minor
	// units. Defaults to 1e11.
	MaxTransactionAmount int64

	TransactionTimeout time.Duration
	LockTimeout        time.Duration
	// Serializable upgrades transactions from READ COMMITTED; row and
	// advisory locks make the default sufficient, this is for belt and
	// suspenders deployments.
	Serializable bool

	LockRetryCount     int
	LockRetryBaseDelay time.Duration
	LockRetryMaxDelay  time.Duration

	IdempotencyTTL             time.Duration
	IdempotencyCleanupInterval time.Duration

	HoldExpiryInterval time.Duration

	HotAccountFlushInterval   time.Duration
	HotAccountBatchSize       int
	HotAccountRetention       time.Duration
	HotAccountCleanupInterval time.Duration

	ChainVerifyInterval     time.Duration
	ChartValidationInterval time.Duration

	// FXResolver supplies cross-currency rates. Without one,
	// cross-currency transfers are rejected.
	FXResolver fx.Resolver

	Plugins []plugin.Plugin

	// SingleProcess keeps worker leases in memory instead of the
	// database table. Only safe when exactly one process embeds this
	// ledger.
	SingleProcess bool

	Logger *zap.Logger
	// LogLevel builds a production logger when Logger is nil.
	LogLevel string
	// Metrics receives the prometheus instruments; nil disables them.
	Metrics prometheus.Registerer
	Clock   clock.Clock
}

func (c Config) withDefaults() (Config, error) {
	if c.Pool == nil {
		return c, errs.New(errs.CodeInvalidArgument, "summa: Pool is required")
	}
	switch balance.LockMode(c.LockMode) {
	case "", balance.LockWait, balance.LockNowait:
	case balance.LockOptimistic:
		return c, errs.New(errs.CodeInvalidArgument, "summa: optimistic lock mode is reserved and not implemented")
	default:
		return c, errs.Newf(errs.CodeInvalidArgument, "summa: unknown lock mode %q", c.LockMode)
	}
	if c.TransactionTimeout == 0 {
		c.TransactionTimeout = DefaultTransactionTimeout
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.IdempotencyTTL == 0 {
		c.IdempotencyTTL = idempotency.DefaultTTL
	}
	if c.IdempotencyCleanupInterval == 0 {
		c.IdempotencyCleanupInterval = DefaultIdemCleanupInterval
	}
	if c.HoldExpiryInterval == 0 {
		c.HoldExpiryInterval = DefaultHoldExpiryInterval
	}
	if c.HotAccountFlushInterval == 0 {
		c.HotAccountFlushInterval = hotaccount.DefaultFlushInterval
	}
	if c.HotAccountBatchSize == 0 {
		c.HotAccountBatchSize = hotaccount.DefaultBatchSize
	}
	if c.HotAccountRetention == 0 {
		c.HotAccountRetention = hotaccount.DefaultRetentionHours * time.Hour
	}
	if c.HotAccountCleanupInterval == 0 {
		c.HotAccountCleanupInterval = DefaultHotCleanupInterval
	}
	if c.ChainVerifyInterval == 0 {
		c.ChainVerifyInterval = DefaultChainVerifyInterval
	}
	if c.ChartValidationInterval == 0 {
		c.ChartValidationInterval = DefaultChartValidationInterval
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	return c, nil
}

package summa

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

func TestConfigRequiresPool(t *testing.T) {
	_, err := Config{}.withDefaults()
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
}

func TestConfigLockModes(t *testing.T) {
	pool := &pgxpool.Pool{}
	for _, mode := range []string{"", "wait", "nowait"} {
		_, err := Config{Pool: pool, LockMode: mode}.withDefaults()
		require.NoError(t, err, "lock mode %q", mode)
	}

	_, err := Config{Pool: pool, LockMode: "optimistic"}.withDefaults()
	require.True(t, errs.IsCode(err, errs.CodeInvalidArgument))

	_, err = Config{Pool: pool, LockMode: "pessimistic"}.withDefaults()
	require.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := Config{Pool: &pgxpool.Pool{}}.withDefaults()
	require.NoError(t, err)

	require.Equal(t, DefaultTransactionTimeout, cfg.TransactionTimeout)
	require.Equal(t, DefaultLockTimeout, cfg.LockTimeout)
	require.Equal(t, DefaultHoldExpiryInterval, cfg.HoldExpiryInterval)
	require.Equal(t, DefaultChainVerifyInterval, cfg.ChainVerifyInterval)
	require.Equal(t, DefaultChartValidationInterval, cfg.ChartValidationInterval)
	require.NotNil(t, cfg.Clock)
	require.Positive(t, cfg.IdempotencyTTL)
	require.Positive(t, cfg.HotAccountBatchSize)
	require.Equal(t, 72*time.Hour, cfg.HotAccountRetention)
}

// Negative intervals survive withDefaults untouched; the worker wiring
// reads them as "disabled".
func TestConfigNegativeIntervalDisables(t *testing.T) {
	cfg, err := Config{Pool: &pgxpool.Pool{}, HoldExpiryInterval: -1}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), cfg.HoldExpiryInterval)
}

package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgres://ledger@localhost/ledger")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WEBHOOK_SECRET", "hook")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 20*time.Millisecond, cfg.RetryBackoff)
	require.True(t, cfg.Rates.PointsPerBRL.Equal(decimal.NewFromInt(1)))
	require.True(t, cfg.Rates.USDTPerPoint.Equal(decimal.RequireFromString("0.18")))
	require.True(t, cfg.Fees.Transaction.Rate.Equal(decimal.RequireFromString("0.03")))
	require.Equal(t, int64(50), cfg.Fees.Transaction.Minimum)
	require.True(t, cfg.Fees.SwapBTC.Rate.Equal(decimal.RequireFromString("0.02")))
	require.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("FEE_TRANSACTION_MIN", "1.25")
	t.Setenv("RATE_POINTS_PER_BRL", "2.5")
	t.Setenv("LEDGER_MAX_RETRIES", "5")
	t.Setenv("LEDGER_RETRY_BACKOFF", "50ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, "9090", cfg.Port)
	require.True(t, cfg.IsProduction())
	require.Equal(t, int64(125), cfg.Fees.Transaction.Minimum)
	require.True(t, cfg.Rates.PointsPerBRL.Equal(decimal.RequireFromString("2.5")))
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 50*time.Millisecond, cfg.RetryBackoff)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing db source", map[string]string{"DB_SOURCE": ""}},
		{"memory driver still needs jwt secret", map[string]string{"STORE_DRIVER": "memory", "JWT_SECRET": ""}},
		{"missing webhook secret", map[string]string{"WEBHOOK_SECRET": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"bad rate", map[string]string{"RATE_USDT_PER_POINT": "lots"}},
		{"zero rate", map[string]string{"RATE_BTC_PER_POINT": "0"}},
		{"fee rate out of range", map[string]string{"FEE_SWAP_USDT_RATE": "1.5"}},
		{"sub-centavo minimum", map[string]string{"FEE_TRANSACTION_MIN": "0.505"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

package service

import (
	"context"
	"testing"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestSwap(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New())
	alice := openFunded(t, svc, "alice@x.com", 3000, domain.Limits{})

	usdt, err := svc.Swap(ctx, alice.ID, 1000, domain.CurrencyUSDT)
	require.NoError(t, err)
	require.Equal(t, domain.TxSwap, usdt.Type)
	require.Equal(t, domain.CurrencyUSDT, usdt.Currency)
	require.Equal(t, int64(-1000), usdt.Amount)
	require.Equal(t, int64(180_000_000), usdt.Gross)
	require.Equal(t, int64(1_800_000), usdt.Fee)
	require.Equal(t, int64(178_200_000), usdt.Net)

	btc, err := svc.Swap(ctx, alice.ID, 1000, domain.CurrencyBTC)
	require.NoError(t, err)
	require.Equal(t, int64(180_000), btc.Gross)
	require.Equal(t, int64(3_600), btc.Fee)
	require.Equal(t, int64(176_400), btc.Net)

	acc, err := svc.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), acc.Points())
	require.Equal(t, int64(178_200_000), acc.USDT())
	require.Equal(t, int64(176_400), acc.BTC())
}

func TestSwap_Rejections(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New())
	alice := openFunded(t, svc, "alice@x.com", 100, domain.Limits{PerTx: 50})

	_, err := svc.Swap(ctx, alice.ID, 10, domain.CurrencyBRL)
	require.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = svc.Swap(ctx, alice.ID, 0, domain.CurrencyUSDT)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Swap(ctx, alice.ID, 60, domain.CurrencyUSDT)
	require.ErrorIs(t, err, domain.ErrLimitExceeded)

	// One point buys 180 satoshi; the 2% fee rounds up to 4.
	row, err := svc.Swap(ctx, alice.ID, 1, domain.CurrencyBTC)
	require.NoError(t, err)
	require.Equal(t, int64(4), row.Fee)

	bob := openFunded(t, svc, "bob@x.com", 10, domain.Limits{})
	_, err = svc.Swap(ctx, bob.ID, 11, domain.CurrencyUSDT)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	acc, err := svc.GetBalance(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), acc.Points())
	require.Zero(t, acc.USDT())
}

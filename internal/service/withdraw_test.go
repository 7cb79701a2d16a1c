package service

import (
	"context"
	"testing"

	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/rates"
	"github.com/pointify/ledger/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New())
	alice := openFunded(t, svc, "alice@x.com", 1000, domain.Limits{})

	_, err := svc.RegisterPixKey(ctx, alice.ID, domain.PixKey{
		Key: "Alice@X.com", Kind: domain.PixKeyEmail, Category: domain.PixKeyWithdrawal,
	})
	require.NoError(t, err)

	row, err := svc.Withdraw(ctx, alice.ID, 400, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, domain.TxWithdrawal, row.Type)
	require.Equal(t, domain.StatusPending, row.Status)
	require.Equal(t, domain.CurrencyBRL, row.Currency)
	require.Equal(t, int64(-400), row.Amount)
	require.Equal(t, int64(40_000), row.Gross)
	require.Equal(t, int64(1_200), row.Fee)
	require.Equal(t, int64(38_800), row.Net)
	require.Nil(t, row.ExternalRef)

	require.Equal(t, int64(600), points(t, svc, alice.ID))

	// One point is R$1.00; the R$0.50 floor applies.
	small, err := svc.Withdraw(ctx, alice.ID, 1, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, int64(50), small.Fee)
	require.Equal(t, int64(50), small.Net)

	typed, err := svc.Withdraw(ctx, alice.ID, 10, "  Alice@X.com ")
	require.NoError(t, err)
	require.Equal(t, "PIX withdrawal to alice@x.com", typed.Description)
}

func TestWithdraw_Rejections(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New())
	alice := openFunded(t, svc, "alice@x.com", 100, domain.Limits{})
	bob := openFunded(t, svc, "bob@x.com", 100, domain.Limits{})

	_, err := svc.RegisterPixKey(ctx, bob.ID, domain.PixKey{
		Key: "12345678000199", Kind: domain.PixKeyDocument, Category: domain.PixKeyWithdrawal,
	})
	require.NoError(t, err)
	network := domain.NetworkERC20
	_, err = svc.RegisterPixKey(ctx, alice.ID, domain.PixKey{
		Key: "0x52908400098527886E0F7030069857D2E4169EE7", Kind: domain.PixKeyWallet,
		Category: domain.PixKeyWithdrawal, Network: &network,
	})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, alice.ID, 10, "12345678000199")
	require.ErrorIs(t, err, domain.ErrPixKeyNotFound)

	_, err = svc.Withdraw(ctx, alice.ID, 10, "nobody@x.com")
	require.ErrorIs(t, err, domain.ErrPixKeyNotFound)

	_, err = svc.Withdraw(ctx, alice.ID, 10, "0x52908400098527886E0F7030069857D2E4169EE7")
	require.ErrorIs(t, err, domain.ErrInvalidPixKey)

	_, err = svc.Withdraw(ctx, alice.ID, 0, "x")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Withdraw(ctx, bob.ID, 101, "12345678000199")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	require.Equal(t, int64(100), points(t, svc, alice.ID))
	require.Equal(t, int64(100), points(t, svc, bob.ID))
}

func TestWithdraw_AmountBelowFee(t *testing.T) {
	ctx := context.Background()
	r := testRates()
	r.PointsPerBRL = decimal.NewFromInt(200)
	svc := NewLedgerService(memstore.New(), rates.NewStatic(r), fee.DefaultTable(), zap.NewNop())
	alice, err := svc.OpenAccount(ctx, "alice@x.com", "Alice", domain.Limits{})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, alice.ID, 10, "alice@x.com")
	require.ErrorIs(t, err, domain.ErrAmountBelowFee)
	require.Equal(t, "AMOUNT_BELOW_FEE", domain.Code(err))
}

func TestRegisterPixKey(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New())
	alice := openFunded(t, svc, "alice@x.com", 0, domain.Limits{})
	bob := openFunded(t, svc, "bob@x.com", 0, domain.Limits{})

	key, err := svc.RegisterPixKey(ctx, alice.ID, domain.PixKey{
		Key: "  +5521912345678 ", Kind: domain.PixKeyPhone, Category: domain.PixKeyReceiving,
	})
	require.NoError(t, err)
	require.Equal(t, alice.ID, key.AccountID)
	require.Equal(t, "+5521912345678", key.Key)
	require.NotZero(t, key.ID)

	_, err = svc.RegisterPixKey(ctx, bob.ID, domain.PixKey{
		Key: "+5521912345678", Kind: domain.PixKeyPhone, Category: domain.PixKeyReceiving,
	})
	require.ErrorIs(t, err, domain.ErrPixKeyTaken)

	_, err = svc.RegisterPixKey(ctx, bob.ID, domain.PixKey{
		Key: "not-an-email", Kind: domain.PixKeyEmail, Category: domain.PixKeyReceiving,
	})
	require.ErrorIs(t, err, domain.ErrInvalidPixKey)

	_, err = svc.RegisterPixKey(ctx, 999, domain.PixKey{
		Key: "ghost@x.com", Kind: domain.PixKeyEmail, Category: domain.PixKeyReceiving,
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.OpenAccount(ctx, " ALICE@x.com ", "Alice again", domain.Limits{})
	require.ErrorIs(t, err, domain.ErrAccountExists)
}

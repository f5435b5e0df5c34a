package businessflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, decimal.RequireFromString(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func commissionFor(id uint, amount string) *models.CommissionRecord {
	return &models.CommissionRecord{
		ID:              id,
		OrderID:         fmt.Sprintf("order-%d", id),
		FinalCommission: decimal.RequireFromString(amount),
	}
}

func createWithdrawal(t *testing.T, testDB *testingutil.TestDB, wallet *models.Wallet, amount string) *models.Withdrawal {
	t.Helper()
	w := &models.Withdrawal{
		UUID:      uuid.New(),
		UserID:    wallet.UserID,
		AdminID:   wallet.AdminID,
		WalletID:  wallet.ID,
		Amount:    decimal.RequireFromString(amount),
		Status:    models.WithdrawalStatusPending,
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
	require.NoError(t, testDB.DB.Create(w).Error)
	return w
}

func assertFoldMatches(t *testing.T, ledger businessflow.WalletLedger, wallet *models.Wallet) {
	t.Helper()
	txs, err := ledger.Transactions(context.Background(), wallet.ID, 0, 0)
	require.NoError(t, err)
	entries := make([]models.WalletTransaction, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, *tx)
	}
	folded := models.FoldWalletTransactions(entries)
	assert.True(t, folded.Equal(wallet.WalletAggregates), "fold %+v != stored %+v", folded, wallet.WalletAggregates)
}

func TestWalletLedger(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		walletRepo := repository.NewWalletRepository(testDB.DB)
		ledger := businessflow.NewWalletLedger(walletRepo, services.NewIDGenerator(), testDB.DB)

		t.Run("CreditsSumIntoBalance", func(t *testing.T) {
			amounts := []string{"10.50", "20.25", "0.25", "100"}
			for i, a := range amounts {
				entry, err := ledger.Credit(ctx, 1, 100, commissionFor(uint(i+1), a))
				require.NoError(t, err)
				assert.Equal(t, models.WalletTransactionStatusPending, entry.Status)
			}

			wallet, err := ledger.Wallet(ctx, 1, 100)
			require.NoError(t, err)
			assertMoney(t, "131.00", wallet.BalanceAmount)
			assertMoney(t, "131.00", wallet.CommissionAmount)
			assertMoney(t, "0", wallet.PaidAmount)
			assertMoney(t, "0", wallet.PendingAmount)

			txs, err := ledger.Transactions(ctx, wallet.ID, 0, 0)
			require.NoError(t, err)
			assert.Len(t, txs, len(amounts))
			assertFoldMatches(t, ledger, wallet)
		})

		t.Run("ReplayedCreditIsRejected", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 2, 100, commissionFor(50, "40"))
			require.NoError(t, err)

			_, err = ledger.Credit(ctx, 2, 100, commissionFor(50, "40"))
			require.Error(t, err)
			assert.True(t, businessflow.IsAlreadyCredited(err))
			assert.True(t, businessflow.IsAlreadyExists(err))

			wallet, err := ledger.Wallet(ctx, 2, 100)
			require.NoError(t, err)
			assertMoney(t, "40", wallet.BalanceAmount)
		})

		t.Run("WalletsAreScopedPerAdmin", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 3, 100, commissionFor(60, "5"))
			require.NoError(t, err)
			_, err = ledger.Credit(ctx, 3, 200, commissionFor(61, "7"))
			require.NoError(t, err)

			a, err := ledger.Wallet(ctx, 3, 100)
			require.NoError(t, err)
			b, err := ledger.Wallet(ctx, 3, 200)
			require.NoError(t, err)
			assert.NotEqual(t, a.ID, b.ID)
			assertMoney(t, "5", a.BalanceAmount)
			assertMoney(t, "7", b.BalanceAmount)
		})

		t.Run("MarkPaid", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 4, 100, commissionFor(70, "30"))
			require.NoError(t, err)

			require.NoError(t, ledger.MarkPaid(ctx, 4, 100, 70))

			wallet, err := ledger.Wallet(ctx, 4, 100)
			require.NoError(t, err)
			assertMoney(t, "30", wallet.CommissionAmount)
			assertMoney(t, "30", wallet.PaidAmount)
			assertMoney(t, "0", wallet.BalanceAmount)
			assertFoldMatches(t, ledger, wallet)

			err = ledger.MarkPaid(ctx, 4, 100, 70)
			assert.True(t, businessflow.IsConflict(err))

			err = ledger.MarkPaid(ctx, 4, 100, 999)
			assert.True(t, businessflow.IsNotFound(err))

			err = ledger.MarkPaid(ctx, 404, 100, 70)
			assert.True(t, businessflow.IsNotFound(err))
		})

		t.Run("WithdrawalHoldAndSettle", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 5, 100, commissionFor(80, "100"))
			require.NoError(t, err)
			wallet, err := ledger.Wallet(ctx, 5, 100)
			require.NoError(t, err)

			w := createWithdrawal(t, testDB, wallet, "60")
			_, err = ledger.HoldWithdrawal(ctx, 5, 100, w)
			require.NoError(t, err)

			wallet, err = ledger.Wallet(ctx, 5, 100)
			require.NoError(t, err)
			assertMoney(t, "60", wallet.PendingAmount)
			assertMoney(t, "40", wallet.BalanceAmount)

			require.NoError(t, ledger.SettleWithdrawalPayout(ctx, w))

			wallet, err = ledger.Wallet(ctx, 5, 100)
			require.NoError(t, err)
			assertMoney(t, "0", wallet.PendingAmount)
			assertMoney(t, "60", wallet.PaidAmount)
			assertMoney(t, "40", wallet.BalanceAmount)
			assertFoldMatches(t, ledger, wallet)

			require.NoError(t, ledger.ReverseWithdrawalPayout(ctx, w))

			wallet, err = ledger.Wallet(ctx, 5, 100)
			require.NoError(t, err)
			assertMoney(t, "0", wallet.PaidAmount)
			assertMoney(t, "100", wallet.BalanceAmount)
			assertFoldMatches(t, ledger, wallet)
		})

		t.Run("PendingIsDecrementedBySpecificAmount", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 6, 100, commissionFor(90, "100"))
			require.NoError(t, err)
			wallet, err := ledger.Wallet(ctx, 6, 100)
			require.NoError(t, err)

			first := createWithdrawal(t, testDB, wallet, "30")
			second := createWithdrawal(t, testDB, wallet, "20")
			_, err = ledger.HoldWithdrawal(ctx, 6, 100, first)
			require.NoError(t, err)
			_, err = ledger.HoldWithdrawal(ctx, 6, 100, second)
			require.NoError(t, err)

			require.NoError(t, ledger.SettleWithdrawalPayout(ctx, first))

			wallet, err = ledger.Wallet(ctx, 6, 100)
			require.NoError(t, err)
			assertMoney(t, "20", wallet.PendingAmount)
			assertMoney(t, "30", wallet.PaidAmount)
			assertMoney(t, "50", wallet.BalanceAmount)

			require.NoError(t, ledger.ReleaseWithdrawal(ctx, second))

			wallet, err = ledger.Wallet(ctx, 6, 100)
			require.NoError(t, err)
			assertMoney(t, "0", wallet.PendingAmount)
			assertMoney(t, "70", wallet.BalanceAmount)
			assertFoldMatches(t, ledger, wallet)

			err = ledger.ReleaseWithdrawal(ctx, second)
			assert.True(t, businessflow.IsConflict(err))
		})

		t.Run("InsufficientBalanceMutatesNothing", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 7, 100, commissionFor(95, "10"))
			require.NoError(t, err)
			wallet, err := ledger.Wallet(ctx, 7, 100)
			require.NoError(t, err)

			w := createWithdrawal(t, testDB, wallet, "10.01")
			_, err = ledger.HoldWithdrawal(ctx, 7, 100, w)
			require.Error(t, err)
			assert.True(t, businessflow.IsInsufficientBalance(err))

			wallet, err = ledger.Wallet(ctx, 7, 100)
			require.NoError(t, err)
			assertMoney(t, "10", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PendingAmount)

			txs, err := ledger.Transactions(ctx, wallet.ID, 0, 0)
			require.NoError(t, err)
			assert.Len(t, txs, 1)
		})

		t.Run("ReconcileRepairsDrift", func(t *testing.T) {
			_, err := ledger.Credit(ctx, 8, 100, commissionFor(97, "25"))
			require.NoError(t, err)
			wallet, err := ledger.Wallet(ctx, 8, 100)
			require.NoError(t, err)

			result, err := ledger.Reconcile(ctx, 100, wallet.ID)
			require.NoError(t, err)
			assert.False(t, result.Drifted)

			require.NoError(t, testDB.DB.Model(&models.Wallet{}).Where("id = ?", wallet.ID).
				Update("balance_amount", decimal.NewFromInt(999)).Error)

			result, err = ledger.Reconcile(ctx, 100, wallet.ID)
			require.NoError(t, err)
			assert.True(t, result.Drifted)
			assertMoney(t, "999", result.Before.BalanceAmount)
			assertMoney(t, "25", result.After.BalanceAmount)

			wallet, err = ledger.Wallet(ctx, 8, 100)
			require.NoError(t, err)
			assertMoney(t, "25", wallet.BalanceAmount)

			_, err = ledger.Reconcile(ctx, 100, 424242)
			assert.True(t, businessflow.IsNotFound(err))

			_, err = ledger.Reconcile(ctx, 101, wallet.ID)
			assert.True(t, businessflow.IsNotFound(err), "wallet of another admin")
		})

		t.Run("ConcurrentCreditsFoldAtomically", func(t *testing.T) {
			const credits = 20
			var wg sync.WaitGroup
			errs := make(chan error, credits)
			for i := 0; i < credits; i++ {
				wg.Add(1)
				go func(id uint) {
					defer wg.Done()
					_, err := ledger.Credit(ctx, 9, 100, commissionFor(id, "1.25"))
					errs <- err
				}(uint(1000 + i))
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			wallet, err := ledger.Wallet(ctx, 9, 100)
			require.NoError(t, err)
			assertMoney(t, "25", wallet.BalanceAmount)
			assertMoney(t, "25", wallet.CommissionAmount)

			txs, err := ledger.Transactions(ctx, wallet.ID, 0, 0)
			require.NoError(t, err)
			assert.Len(t, txs, credits)
			assertFoldMatches(t, ledger, wallet)
		})

		t.Run("ConcurrentReplaysCreditOnce", func(t *testing.T) {
			const attempts = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := ledger.Credit(ctx, 10, 100, commissionFor(2000, "40"))
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
						return
					}
					assert.True(t, businessflow.IsAlreadyCredited(err), "unexpected error: %v", err)
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, succeeded)

			wallet, err := ledger.Wallet(ctx, 10, 100)
			require.NoError(t, err)
			assertMoney(t, "40", wallet.BalanceAmount)
			assertFoldMatches(t, ledger, wallet)
		})

		return nil
	})
	require.NoError(t, err)
}

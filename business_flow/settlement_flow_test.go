package businessflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

// busyLocker behaves as if another instance holds the settlement lock
type busyLocker struct{}

func (busyLocker) Acquire(context.Context) (func(), error) {
	return nil, businessflow.ErrSettlementInProgress
}

// panickyCommissionRepo panics when asked to transition one specific record
type panickyCommissionRepo struct {
	repository.CommissionRecordRepository
	panicID uint
}

func (r *panickyCommissionRepo) TransitionStatus(ctx context.Context, id uint, from, to models.CommissionStatus, fields map[string]any) (bool, error) {
	if id == r.panicID {
		panic("storage driver exploded")
	}
	return r.CommissionRecordRepository.TransitionStatus(ctx, id, from, to, fields)
}

func commissionStatus(t *testing.T, env *flowEnv, id uint) models.CommissionStatus {
	t.Helper()
	record, err := env.commissionRepo.ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.Status
}

func TestSettlementFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newFlowEnv(t, testDB)
		now := utils.UTCNow()

		t.Run("ReturnPeriodBoundary", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			notifier := newMockNotifier(nil)
			flow := env.settlement(notifier, nil)

			user, err := env.fixtures.CreateTestAffiliate(10, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 3)
			require.NoError(t, err)
			due, err := env.fixtures.CreateTestCommission(campaign, "90", models.CommissionStatusPending, now.Add(-4*day-time.Hour))
			require.NoError(t, err)
			notDue, err := env.fixtures.CreateTestCommission(campaign, "40", models.CommissionStatusPending, now.Add(-3*day-time.Hour))
			require.NoError(t, err)
			cancelled, err := env.fixtures.CreateTestCommission(campaign, "15", models.CommissionStatusCancelled, now.Add(-10*day))
			require.NoError(t, err)

			report, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Equal(t, models.SettlementRunStatusCompleted, report.Status)
			assert.Equal(t, 2, report.Scanned)
			assert.Equal(t, 1, report.Settled)
			assert.Equal(t, 1, report.NotDue)
			assert.Zero(t, report.Failed)

			assert.Equal(t, models.CommissionStatusPaid, commissionStatus(t, env, due.ID))
			assert.Equal(t, models.CommissionStatusPending, commissionStatus(t, env, notDue.ID))
			assert.Equal(t, models.CommissionStatusCancelled, commissionStatus(t, env, cancelled.ID))

			settled, err := env.commissionRepo.ByID(ctx, due.ID)
			require.NoError(t, err)
			require.NotNil(t, settled.SettlementRunID)
			assert.Equal(t, report.RunID, *settled.SettlementRunID)
			assert.NotNil(t, settled.PaidAt)

			wallet, err := env.ledger.Wallet(ctx, user.ID, 10)
			require.NoError(t, err)
			assertMoney(t, "90", wallet.BalanceAmount)
			assertFoldMatches(t, env.ledger, wallet)

			storedUser, err := env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assertMoney(t, "90", storedUser.CommissionPaid)

			storedCampaign, err := env.campaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assertMoney(t, "90", storedCampaign.CommissionPaid)
			assertMoney(t, "10", storedCampaign.CommissionPercentage)

			daily, err := env.dailyRepo.ByDay(ctx, user.ID, 10, utils.DayKey(now))
			require.NoError(t, err)
			require.NotNil(t, daily)
			assertMoney(t, "90", daily.PaidCommission)

			assert.Len(t, notifier.payloads(), 2, "one user and one admin notification")

			run, err := env.runRepo.ByID(ctx, report.RunID)
			require.NoError(t, err)
			assert.Equal(t, models.SettlementRunStatusCompleted, run.Status)
			assert.Equal(t, 1, run.Settled)
			assert.Equal(t, 1, run.Skipped)
			assert.NotNil(t, run.FinishedAt)
		})

		t.Run("ExactDueInstant", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			flow := env.settlement(newMockNotifier(nil), nil)
			at := now.Truncate(time.Second)

			user, err := env.fixtures.CreateTestAffiliate(15, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 0)
			require.NoError(t, err)
			exact, err := env.fixtures.CreateTestCommission(campaign, "30", models.CommissionStatusPending, at.Add(-2*day))
			require.NoError(t, err)
			early, err := env.fixtures.CreateTestCommission(campaign, "20", models.CommissionStatusPending, at.Add(-2*day+time.Hour))
			require.NoError(t, err)

			report, err := flow.Run(ctx, at, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Settled)
			assert.Equal(t, 1, report.NotDue)

			assert.Equal(t, models.CommissionStatusPaid, commissionStatus(t, env, exact.ID))
			assert.Equal(t, models.CommissionStatusPending, commissionStatus(t, env, early.ID))

			stored, err := env.commissionRepo.ByID(ctx, exact.ID)
			require.NoError(t, err)
			assert.True(t, stored.UpdatedAt.After(exact.UpdatedAt), "settling moves updated_at")
		})

		t.Run("RerunChangesNothing", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			flow := env.settlement(newMockNotifier(nil), nil)

			user, err := env.fixtures.CreateTestAffiliate(20, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				_, err := env.fixtures.CreateTestCommission(campaign, "10", models.CommissionStatusPending, now.Add(-5*day))
				require.NoError(t, err)
			}

			first, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Equal(t, 5, first.Settled, "batches of two cover every record")

			second, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Zero(t, second.Scanned)
			assert.Zero(t, second.Settled)

			wallet, err := env.ledger.Wallet(ctx, user.ID, 20)
			require.NoError(t, err)
			assertMoney(t, "50", wallet.BalanceAmount)
		})

		t.Run("MissingCampaignIsSkipped", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			flow := env.settlement(newMockNotifier(nil), nil)

			user, err := env.fixtures.CreateTestAffiliate(30, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			record, err := env.fixtures.CreateTestCommission(campaign, "10", models.CommissionStatusPending, now.Add(-5*day))
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Unscoped().Delete(&models.Campaign{}, campaign.ID).Error)

			report, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Skipped)
			assert.Equal(t, models.CommissionStatusPending, commissionStatus(t, env, record.ID))
		})

		t.Run("NotificationFailureKeepsSettlement", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			notifier := newMockNotifier(errors.New("smtp unavailable"))
			flow := env.settlement(notifier, nil)

			user, err := env.fixtures.CreateTestAffiliate(40, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			record, err := env.fixtures.CreateTestCommission(campaign, "25", models.CommissionStatusPending, now.Add(-5*day))
			require.NoError(t, err)

			report, err := flow.Run(ctx, now, businessflow.SettlementTriggerSchedule)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Settled)
			assert.Equal(t, models.CommissionStatusPaid, commissionStatus(t, env, record.ID))
			assert.NotEmpty(t, notifier.payloads())
		})

		t.Run("HeldLockRejectsRun", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			flow := env.settlement(newMockNotifier(nil), busyLocker{})

			_, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.Error(t, err)
			assert.True(t, businessflow.IsSettlementInProgress(err))
			assert.True(t, businessflow.IsConflict(err))

			count, err := env.runRepo.Count(ctx, models.SettlementRunFilter{})
			require.NoError(t, err)
			assert.Zero(t, count)
		})

		t.Run("PanicIsIsolatedToOneRecord", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			user, err := env.fixtures.CreateTestAffiliate(50, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			bad, err := env.fixtures.CreateTestCommission(campaign, "10", models.CommissionStatusPending, now.Add(-5*day))
			require.NoError(t, err)
			good, err := env.fixtures.CreateTestCommission(campaign, "20", models.CommissionStatusPending, now.Add(-5*day))
			require.NoError(t, err)

			repo := &panickyCommissionRepo{CommissionRecordRepository: env.commissionRepo, panicID: bad.ID}
			flow := businessflow.NewSettlementFlow(
				repo, env.campaignRepo, env.userRepo, env.dailyRepo, env.runRepo,
				env.ledger, newMockNotifier(nil), nil, testDB.DB,
				config.SettlementConfig{BatchSize: 10},
			)

			report, err := flow.Run(ctx, now, businessflow.SettlementTriggerManual)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Failed)
			assert.Equal(t, 1, report.Settled)
			assert.Equal(t, models.CommissionStatusPending, commissionStatus(t, env, bad.ID))
			assert.Equal(t, models.CommissionStatusPaid, commissionStatus(t, env, good.ID))

			wallet, err := env.ledger.Wallet(ctx, user.ID, 50)
			require.NoError(t, err)
			assertMoney(t, "20", wallet.BalanceAmount)
		})

		return nil
	})
	require.NoError(t, err)
}

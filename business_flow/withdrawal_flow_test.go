package businessflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

func payoutEvent(event, payoutID, reason string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"payload":{"payout":{"entity":{"id":%q,"status":"x","failure_reason":%q}}}}`, event, payoutID, reason))
}

// fundedAffiliate creates an affiliate with a fund account and a credited wallet
func fundedAffiliate(t *testing.T, env *flowEnv, adminID uint, balance string) *models.AffiliateUser {
	t.Helper()
	ctx := context.Background()
	user, err := env.fixtures.CreateTestAffiliate(adminID, 1, "10")
	require.NoError(t, err)
	require.NoError(t, env.testDB.DB.Model(&models.AffiliateUser{}).Where("id = ?", user.ID).
		Update("fund_account_id", "fa_123").Error)
	campaign, err := env.fixtures.CreateTestCampaign(user, 1)
	require.NoError(t, err)
	record, err := env.fixtures.CreateTestCommission(campaign, balance, models.CommissionStatusPaid, utils.UTCNow())
	require.NoError(t, err)
	_, err = env.ledger.Credit(ctx, user.ID, adminID, record)
	require.NoError(t, err)
	return user
}

func TestWithdrawalFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newFlowEnv(t, testDB)

		t.Run("RequestHoldsAndCancelReleases", func(t *testing.T) {
			flow := env.withdrawals(&mockPayoutGateway{}, webhookSecret)
			user := fundedAffiliate(t, env, 10, "100")

			w, err := flow.Request(ctx, user.ID, 10, decimal.RequireFromString("40"))
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusPending, w.Status)

			wallet, err := env.ledger.Wallet(ctx, user.ID, 10)
			require.NoError(t, err)
			assertMoney(t, "60", wallet.BalanceAmount)
			assertMoney(t, "40", wallet.PendingAmount)

			_, err = flow.Cancel(ctx, user.ID+1, w.ID)
			assert.True(t, businessflow.IsNotFound(err))

			cancelled, err := flow.Cancel(ctx, user.ID, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusCancelled, cancelled.Status)

			wallet, err = env.ledger.Wallet(ctx, user.ID, 10)
			require.NoError(t, err)
			assertMoney(t, "100", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PendingAmount)

			_, err = flow.Cancel(ctx, user.ID, w.ID)
			assert.True(t, businessflow.IsConflict(err))
		})

		t.Run("RequestBeyondBalanceFails", func(t *testing.T) {
			flow := env.withdrawals(&mockPayoutGateway{}, webhookSecret)
			user := fundedAffiliate(t, env, 20, "10")

			_, err := flow.Request(ctx, user.ID, 20, decimal.RequireFromString("10.01"))
			require.Error(t, err)
			assert.True(t, businessflow.IsInsufficientBalance(err))

			_, total, err := flow.List(ctx, user.ID, 20, businessflow.Page{})
			require.NoError(t, err)
			assert.Zero(t, total, "failed hold leaves no withdrawal behind")

			_, err = flow.Request(ctx, user.ID, 20, decimal.Zero)
			assert.True(t, businessflow.IsBadRequest(err))
		})

		t.Run("ApproveAndProcessedWebhook", func(t *testing.T) {
			gateway := &mockPayoutGateway{}
			gateway.On("CreatePayout", mock.Anything, mock.MatchedBy(func(req services.PayoutRequest) bool {
				return req.FundAccountID == "fa_123" && req.Amount.Equal(decimal.NewFromInt(30))
			})).Return(&services.PayoutResult{PayoutID: "pout_1", Status: "processing"}, nil).Once()
			flow := env.withdrawals(gateway, webhookSecret)
			user := fundedAffiliate(t, env, 30, "50")

			w, err := flow.Request(ctx, user.ID, 30, decimal.NewFromInt(30))
			require.NoError(t, err)

			_, err = flow.Approve(ctx, 999, w.ID)
			assert.True(t, businessflow.IsNotFound(err))

			approved, err := flow.Approve(ctx, 30, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusProcessing, approved.Status)
			require.NotNil(t, approved.PayoutID)
			assert.Equal(t, "pout_1", *approved.PayoutID)
			gateway.AssertExpectations(t)

			body := payoutEvent(businessflow.PayoutEventProcessed, "pout_1", "")
			require.NoError(t, flow.HandlePayoutWebhook(ctx, body, utils.SignHMAC(webhookSecret, body)))

			stored, err := env.withdrawalRepo.ByID(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusCompleted, stored.Status)

			wallet, err := env.ledger.Wallet(ctx, user.ID, 30)
			require.NoError(t, err)
			assertMoney(t, "20", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PendingAmount)
			assertMoney(t, "30", wallet.PaidAmount)

			storedUser, err := env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assertMoney(t, "30", storedUser.TotalWithdrawn)

			// replay
			require.NoError(t, flow.HandlePayoutWebhook(ctx, body, utils.SignHMAC(webhookSecret, body)))
			wallet, err = env.ledger.Wallet(ctx, user.ID, 30)
			require.NoError(t, err)
			assertMoney(t, "30", wallet.PaidAmount)

			reversed := payoutEvent(businessflow.PayoutEventReversed, "pout_1", "bank returned")
			require.NoError(t, flow.HandlePayoutWebhook(ctx, reversed, utils.SignHMAC(webhookSecret, reversed)))

			stored, err = env.withdrawalRepo.ByID(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusFailed, stored.Status)
			require.NotNil(t, stored.FailureReason)
			assert.Equal(t, "bank returned", *stored.FailureReason)

			wallet, err = env.ledger.Wallet(ctx, user.ID, 30)
			require.NoError(t, err)
			assertMoney(t, "50", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PaidAmount)
			assertFoldMatches(t, env.ledger, wallet)

			storedUser, err = env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assertMoney(t, "0", storedUser.TotalWithdrawn)
		})

		t.Run("FailedWebhookReleasesHold", func(t *testing.T) {
			gateway := &mockPayoutGateway{}
			gateway.On("CreatePayout", mock.Anything, mock.Anything).
				Return(&services.PayoutResult{PayoutID: "pout_2"}, nil).Once()
			flow := env.withdrawals(gateway, webhookSecret)
			user := fundedAffiliate(t, env, 40, "25")

			w, err := flow.Request(ctx, user.ID, 40, decimal.NewFromInt(25))
			require.NoError(t, err)
			_, err = flow.Approve(ctx, 40, w.ID)
			require.NoError(t, err)

			body := payoutEvent(businessflow.PayoutEventFailed, "pout_2", "invalid account")
			require.NoError(t, flow.HandlePayoutWebhook(ctx, body, utils.SignHMAC(webhookSecret, body)))

			wallet, err := env.ledger.Wallet(ctx, user.ID, 40)
			require.NoError(t, err)
			assertMoney(t, "25", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PendingAmount)

			late := payoutEvent(businessflow.PayoutEventProcessed, "pout_2", "")
			require.NoError(t, flow.HandlePayoutWebhook(ctx, late, utils.SignHMAC(webhookSecret, late)))

			stored, err := env.withdrawalRepo.ByID(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusFailed, stored.Status)
			wallet, err = env.ledger.Wallet(ctx, user.ID, 40)
			require.NoError(t, err)
			assertMoney(t, "25", wallet.BalanceAmount)
			assertMoney(t, "0", wallet.PaidAmount)
		})

		t.Run("GatewayErrorKeepsPending", func(t *testing.T) {
			gateway := &mockPayoutGateway{}
			gateway.On("CreatePayout", mock.Anything, mock.Anything).
				Return(nil, &services.GatewayError{StatusCode: 400, Body: "bad account"}).Once()
			flow := env.withdrawals(gateway, webhookSecret)
			user := fundedAffiliate(t, env, 50, "25")

			w, err := flow.Request(ctx, user.ID, 50, decimal.NewFromInt(5))
			require.NoError(t, err)

			_, err = flow.Approve(ctx, 50, w.ID)
			require.Error(t, err)
			var gwErr *services.GatewayError
			assert.True(t, errors.As(err, &gwErr))

			stored, err := env.withdrawalRepo.ByID(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusPending, stored.Status)
			assert.Nil(t, stored.PayoutID)

			rejected, err := flow.Reject(ctx, 50, w.ID, "account closed")
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusRejected, rejected.Status)
		})

		t.Run("BadSignatureChangesNothing", func(t *testing.T) {
			gateway := &mockPayoutGateway{}
			gateway.On("CreatePayout", mock.Anything, mock.Anything).
				Return(&services.PayoutResult{PayoutID: "pout_3"}, nil).Once()
			flow := env.withdrawals(gateway, webhookSecret)
			user := fundedAffiliate(t, env, 60, "25")

			w, err := flow.Request(ctx, user.ID, 60, decimal.NewFromInt(25))
			require.NoError(t, err)
			_, err = flow.Approve(ctx, 60, w.ID)
			require.NoError(t, err)

			body := payoutEvent(businessflow.PayoutEventProcessed, "pout_3", "")
			err = flow.HandlePayoutWebhook(ctx, body, utils.SignHMAC("wrong-secret", body))
			require.Error(t, err)
			assert.True(t, businessflow.IsUnauthorized(err))
			assert.True(t, businessflow.IsInvalidWebhookSignature(err))

			err = flow.HandlePayoutWebhook(ctx, body, "")
			assert.True(t, businessflow.IsUnauthorized(err))

			stored, err := env.withdrawalRepo.ByID(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusProcessing, stored.Status)

			unknown := payoutEvent("payout.queued", "pout_3", "")
			require.NoError(t, flow.HandlePayoutWebhook(ctx, unknown, utils.SignHMAC(webhookSecret, unknown)))

			malformed := []byte(`{"event":`)
			err = flow.HandlePayoutWebhook(ctx, malformed, utils.SignHMAC(webhookSecret, malformed))
			assert.True(t, businessflow.IsBadRequest(err))
		})

		return nil
	})
	require.NoError(t, err)
}

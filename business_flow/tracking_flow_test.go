package businessflow_test

import (
	"context"
	"testing"

	"github.com/amirphl/affiliate-engine/app/dto"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id, price string, qty int64) dto.PurchaseProduct {
	return dto.PurchaseProduct{ProductID: id, Price: decimal.RequireFromString(price), Quantity: qty}
}

func TestTrackingFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newFlowEnv(t, testDB)
		flow := env.tracking()

		t.Run("PurchaseCreatesPendingCommission", func(t *testing.T) {
			_, err := env.fixtures.CreateTestPlatformConfig(10, models.TDSMethodPercent, "10")
			require.NoError(t, err)
			user, err := env.fixtures.CreateTestAffiliate(10, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 3)
			require.NoError(t, err)

			resp, err := flow.RecordPurchase(ctx, dto.TrackPurchaseRequest{
				ReferralID: user.ReferralID,
				AccessKey:  campaign.AccessKey,
				OrderID:    "A-1",
				Products:   []dto.PurchaseProduct{product("p1", "250", 2), product("p2", "500", 1)},
			})
			require.NoError(t, err)
			assertMoney(t, "1000", resp.PurchaseAmount)
			assertMoney(t, "100", resp.CommissionAmount)
			assertMoney(t, "10", resp.TDSAmount)
			assertMoney(t, "90", resp.FinalCommission)
			assert.Equal(t, string(models.CommissionStatusPending), resp.Status)

			storedUser, err := env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), storedUser.TotalOrders)
			assertMoney(t, "1000", storedUser.TotalSales)
			assertMoney(t, "90", storedUser.CommissionPending)

			storedCampaign, err := env.campaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), storedCampaign.Orders)
			assertMoney(t, "1000", storedCampaign.Sales)
			assertMoney(t, "90", storedCampaign.CommissionPending)

			daily, err := env.dailyRepo.ByDay(ctx, user.ID, 10, utils.DayKey(utils.UTCNow()))
			require.NoError(t, err)
			require.NotNil(t, daily)
			assert.Equal(t, int64(1), daily.Orders)
			assertMoney(t, "90", daily.Earnings)

			_, err = flow.RecordPurchase(ctx, dto.TrackPurchaseRequest{
				ReferralID: user.ReferralID,
				AccessKey:  campaign.AccessKey,
				OrderID:    "A-1",
				Products:   []dto.PurchaseProduct{product("p1", "1", 1)},
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsAlreadyExists(err))

			storedUser, err = env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), storedUser.TotalOrders)
		})

		t.Run("PurchaseAdvancesOrdersAndSalesGoals", func(t *testing.T) {
			_, err := env.fixtures.CreateTestPlatformConfig(20, models.TDSMethodPercent, "")
			require.NoError(t, err)
			user, err := env.fixtures.CreateTestAffiliate(20, 2, "5")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			_, err = env.fixtures.CreateTestTier(20, 2, 1, testingutil.TestLevel{
				Goals: []models.Goal{
					{Type: models.GoalTypeOrders, Target: 1},
					{Type: models.GoalTypeSales, Target: 3},
				},
				Rewards: []models.RewardDefinition{testingutil.Reward("r1", "Bonus")},
			})
			require.NoError(t, err)

			resp, err := flow.RecordPurchase(ctx, dto.TrackPurchaseRequest{
				ReferralID: user.ReferralID,
				AccessKey:  campaign.AccessKey,
				OrderID:    "B-1",
				Products:   []dto.PurchaseProduct{product("p1", "10", 3)},
			})
			require.NoError(t, err)
			assertMoney(t, "0", resp.TDSAmount)
			assertMoney(t, "1.50", resp.FinalCommission)

			earned := rewardLogsOf(t, env, user.ID, 20, models.RewardLogActionRewardEarned)
			assert.Len(t, earned, 1)
		})

		t.Run("ClickCountsAndAdvancesClicksGoal", func(t *testing.T) {
			_, err := env.fixtures.CreateTestPlatformConfig(30, models.TDSMethodPercent, "")
			require.NoError(t, err)
			user, err := env.fixtures.CreateTestAffiliate(30, 1, "5")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)
			_, err = env.fixtures.CreateTestTier(30, 1, 1, testingutil.TestLevel{
				Goals: []models.Goal{{Type: models.GoalTypeClicks, Target: 10}},
			})
			require.NoError(t, err)

			req := dto.TrackClickRequest{ReferralID: user.ReferralID, AccessKey: campaign.AccessKey, EventID: "c-1"}
			resp, err := flow.RecordClick(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, campaign.ID, resp.CampaignID)

			_, err = flow.RecordClick(ctx, req)
			require.NoError(t, err)

			storedCampaign, err := env.campaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), storedCampaign.Clicks)

			progress, err := env.progressRepo.ByKey(ctx, models.ProgressKey{UserID: user.ID, AdminID: 30, PlatformID: 1})
			require.NoError(t, err)
			require.NotNil(t, progress)
			assert.Equal(t, int64(1), progress.GoalProgress[0].Progress, "replayed click event is applied once")
		})

		t.Run("RejectsForeignOrUnapproved", func(t *testing.T) {
			owner, err := env.fixtures.CreateTestAffiliate(40, 1, "5")
			require.NoError(t, err)
			other, err := env.fixtures.CreateTestAffiliate(40, 1, "5")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(owner, 1)
			require.NoError(t, err)

			_, err = flow.RecordClick(ctx, dto.TrackClickRequest{ReferralID: other.ReferralID, AccessKey: campaign.AccessKey, EventID: "x"})
			assert.True(t, businessflow.IsForbidden(err))

			_, err = flow.RecordClick(ctx, dto.TrackClickRequest{ReferralID: "nobody", AccessKey: campaign.AccessKey, EventID: "x"})
			assert.True(t, businessflow.IsNotFound(err))

			require.NoError(t, testDB.DB.Model(&models.AffiliateUser{}).Where("id = ?", owner.ID).
				Update("status", models.AffiliateUserStatusBlocked).Error)
			_, err = flow.RecordClick(ctx, dto.TrackClickRequest{ReferralID: owner.ReferralID, AccessKey: campaign.AccessKey, EventID: "x"})
			assert.True(t, businessflow.IsForbidden(err))
		})

		t.Run("MissingPlatformConfig", func(t *testing.T) {
			user, err := env.fixtures.CreateTestAffiliate(50, 1, "5")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)

			_, err = flow.RecordPurchase(ctx, dto.TrackPurchaseRequest{
				ReferralID: user.ReferralID,
				AccessKey:  campaign.AccessKey,
				OrderID:    "C-1",
				Products:   []dto.PurchaseProduct{product("p1", "10", 1)},
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsConfigurationError(err))

			count, err := env.commissionRepo.Count(ctx, models.CommissionRecordFilter{UserID: &user.ID})
			require.NoError(t, err)
			assert.Zero(t, count)
		})

		t.Run("CancelRollsBackPending", func(t *testing.T) {
			_, err := env.fixtures.CreateTestPlatformConfig(60, models.TDSMethodPercent, "")
			require.NoError(t, err)
			user, err := env.fixtures.CreateTestAffiliate(60, 1, "10")
			require.NoError(t, err)
			campaign, err := env.fixtures.CreateTestCampaign(user, 1)
			require.NoError(t, err)

			resp, err := flow.RecordPurchase(ctx, dto.TrackPurchaseRequest{
				ReferralID: user.ReferralID,
				AccessKey:  campaign.AccessKey,
				OrderID:    "D-1",
				Products:   []dto.PurchaseProduct{product("p1", "200", 1)},
			})
			require.NoError(t, err)

			_, err = flow.CancelCommission(ctx, 999, resp.CommissionID, "returned")
			assert.True(t, businessflow.IsNotFound(err))

			record, err := flow.CancelCommission(ctx, 60, resp.CommissionID, "returned")
			require.NoError(t, err)
			assert.Equal(t, models.CommissionStatusCancelled, record.Status)

			storedUser, err := env.userRepo.ByID(ctx, user.ID)
			require.NoError(t, err)
			assertMoney(t, "0", storedUser.CommissionPending)
			storedCampaign, err := env.campaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assertMoney(t, "0", storedCampaign.CommissionPending)

			_, err = flow.CancelCommission(ctx, 60, resp.CommissionID, "again")
			assert.True(t, businessflow.IsConflict(err))

			page, err := flow.ListCommissions(ctx, user.ID, 60, businessflow.Page{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), page.Pagination.Total)
			require.Len(t, page.Items, 1)
			assert.Equal(t, string(models.CommissionStatusCancelled), page.Items[0].Status)
		})

		return nil
	})
	require.NoError(t, err)
}

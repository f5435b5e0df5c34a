package businessflow_test

import (
	"context"
	"testing"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersGoal(target int64) []models.Goal {
	return []models.Goal{{Type: models.GoalTypeOrders, Target: target}}
}

func rewardLogsOf(t *testing.T, env *flowEnv, userID, adminID uint, action models.RewardLogAction) []*models.RewardLog {
	t.Helper()
	logs, err := env.rewardLogRepo.ByFilter(context.Background(), models.RewardLogFilter{
		UserID:  &userID,
		AdminID: &adminID,
		Action:  &action,
	}, "id ASC", 0, 0)
	require.NoError(t, err)
	return logs
}

func TestTierProgressionFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newFlowEnv(t, testDB)

		t.Run("LazyCreateOnLowestRankedTier", func(t *testing.T) {
			_, err := env.fixtures.CreateTestTier(10, 1, 5, testingutil.TestLevel{Goals: ordersGoal(3)})
			require.NoError(t, err)
			low, err := env.fixtures.CreateTestTier(10, 1, 1, testingutil.TestLevel{Goals: ordersGoal(2)})
			require.NoError(t, err)

			progress, err := env.tiers.EnsureProgress(ctx, models.ProgressKey{UserID: 1, AdminID: 10, PlatformID: 1})
			require.NoError(t, err)
			require.NotNil(t, progress.CurrentTierID)
			assert.Equal(t, low.ID, *progress.CurrentTierID)
			assert.Equal(t, 1, progress.CurrentLevel)
			require.Len(t, progress.GoalProgress, 1)
			assert.Equal(t, int64(2), progress.GoalProgress[0].Target)
			assert.Zero(t, progress.GoalProgress[0].Progress)

			again, err := env.tiers.EnsureProgress(ctx, models.ProgressKey{UserID: 1, AdminID: 10, PlatformID: 1})
			require.NoError(t, err)
			assert.Equal(t, progress.ID, again.ID)
		})

		t.Run("FiveOrdersCompleteLevel", func(t *testing.T) {
			key := models.ProgressKey{UserID: 2, AdminID: 20, PlatformID: 1}
			tier, err := env.fixtures.CreateTestTier(20, 1, 1,
				testingutil.TestLevel{
					Goals:   ordersGoal(5),
					Rewards: []models.RewardDefinition{testingutil.Reward("r1", "Ten"), testingutil.Reward("r2", "Twenty")},
					Spins:   2,
				},
				testingutil.TestLevel{Goals: ordersGoal(1), Rewards: []models.RewardDefinition{testingutil.Reward("r3", "Gift")}},
			)
			require.NoError(t, err)

			for i := 0; i < 4; i++ {
				res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
				require.NoError(t, err)
				assert.True(t, res.Applied)
				assert.Empty(t, res.CompletedLevels)
			}

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			assert.Equal(t, []int{1}, res.CompletedLevels)
			assert.False(t, res.TierCompleted)
			require.Len(t, res.IssuedRewards, 2)

			earned := rewardLogsOf(t, env, 2, 20, models.RewardLogActionRewardEarned)
			require.Len(t, earned, 2)
			for _, rl := range earned {
				assert.Equal(t, tier.ID, rl.TierID)
				assert.Equal(t, 1, rl.Level)
				assert.Equal(t, 2, rl.SpinCount)
				assert.Equal(t, models.RedemptionMechanicSpin, rl.Mechanic)
				assert.Equal(t, models.RewardStatusPending, rl.Status)
				assert.Len(t, rl.Rewards, 2)
			}
			assert.ElementsMatch(t, []string{"r1", "r2"}, []string{earned[0].RewardID, earned[1].RewardID})

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 2, progress.CurrentLevel)
			assert.False(t, progress.IsTierCompleted)
			require.Len(t, progress.GoalProgress, 1)
			assert.Zero(t, progress.GoalProgress[0].Progress)
			require.Len(t, progress.History, 1)
			assert.Equal(t, 1, progress.History[0].Level)

			res, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			assert.True(t, res.TierCompleted)

			progress, err = env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.True(t, progress.IsTierCompleted)
			assert.Len(t, progress.History, 2)

			completed := rewardLogsOf(t, env, 2, 20, models.RewardLogActionTierCompleted)
			require.Len(t, completed, 1)
			assert.Zero(t, completed[0].SpinCount)

			res, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			assert.False(t, res.Applied, "completed progress is terminal")

			var earnedCount, tierDoneCount int
			for _, p := range env.notifier.payloads() {
				switch p.(type) {
				case services.RewardEarned:
					earnedCount++
				case services.TierCompleted:
					tierDoneCount++
				}
			}
			assert.GreaterOrEqual(t, earnedCount, 3)
			assert.GreaterOrEqual(t, tierDoneCount, 1)
		})

		t.Run("UndeclaredGoalIsNoop", func(t *testing.T) {
			key := models.ProgressKey{UserID: 3, AdminID: 30, PlatformID: 1}
			_, err := env.fixtures.CreateTestTier(30, 1, 1, testingutil.TestLevel{Goals: ordersGoal(5)})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeClicks, 1, "")
			require.NoError(t, err)
			assert.False(t, res.Applied)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Zero(t, progress.GoalProgress[0].Progress)
			assert.Zero(t, progress.Version)
		})

		t.Run("EventKeyReplayIsNoop", func(t *testing.T) {
			key := models.ProgressKey{UserID: 4, AdminID: 40, PlatformID: 1}
			_, err := env.fixtures.CreateTestTier(40, 1, 1, testingutil.TestLevel{Goals: ordersGoal(5)})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "order:abc")
			require.NoError(t, err)
			assert.True(t, res.Applied)

			res, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "order:abc")
			require.NoError(t, err)
			assert.False(t, res.Applied)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(1), progress.GoalProgress[0].Progress)
		})

		t.Run("SelfHealIntoNewTier", func(t *testing.T) {
			key := models.ProgressKey{UserID: 5, AdminID: 50, PlatformID: 1}
			_, err := env.fixtures.CreateTestTier(50, 1, 1, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			require.True(t, res.TierCompleted)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.True(t, progress.IsTierCompleted)

			next, err := env.fixtures.CreateTestTier(50, 1, 2, testingutil.TestLevel{Goals: ordersGoal(4)})
			require.NoError(t, err)

			progress, err = env.tiers.EnsureProgress(ctx, key)
			require.NoError(t, err)
			assert.False(t, progress.IsTierCompleted)
			assert.Equal(t, next.ID, *progress.CurrentTierID)
			assert.Equal(t, 1, progress.CurrentLevel)
			assert.Equal(t, int64(4), progress.GoalProgress[0].Target)
			assert.Len(t, progress.History, 1)
		})

		t.Run("ShapeChangeRebuildsVector", func(t *testing.T) {
			key := models.ProgressKey{UserID: 6, AdminID: 60, PlatformID: 1}
			tier, err := env.fixtures.CreateTestTier(60, 1, 1, testingutil.TestLevel{Goals: ordersGoal(5)})
			require.NoError(t, err)

			_, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 3, "")
			require.NoError(t, err)

			_, err = env.tiers.UpdateTier(ctx, 60, tier.ID, &dto.TierRequest{
				Name:  tier.Name,
				Order: tier.Order,
				Levels: []dto.LevelRequest{{
					LevelNumber: 1,
					Goals: []dto.GoalRequest{
						{Type: "ORDERS", Target: 5},
						{Type: "CLICKS", Target: 2},
					},
				}},
			})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeClicks, 1, "")
			require.NoError(t, err)
			assert.True(t, res.Applied)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.Len(t, progress.GoalProgress, 2)
			assert.Equal(t, models.GoalTypeOrders, progress.GoalProgress[0].Type)
			assert.Zero(t, progress.GoalProgress[0].Progress, "rebuilt vector starts from zero")
			assert.Equal(t, int64(1), progress.GoalProgress[1].Progress)
		})

		t.Run("TargetEditRefreshesInPlace", func(t *testing.T) {
			key := models.ProgressKey{UserID: 7, AdminID: 70, PlatformID: 1}
			tier, err := env.fixtures.CreateTestTier(70, 1, 1,
				testingutil.TestLevel{Goals: ordersGoal(10)},
				testingutil.TestLevel{Goals: ordersGoal(10)},
			)
			require.NoError(t, err)

			_, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 3, "")
			require.NoError(t, err)

			_, err = env.tiers.UpdateTier(ctx, 70, tier.ID, &dto.TierRequest{
				Name:  tier.Name,
				Order: tier.Order,
				Levels: []dto.LevelRequest{{
					LevelNumber: 1,
					Goals:       []dto.GoalRequest{{Type: "ORDERS", Target: 4}},
				}},
			})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			assert.Equal(t, []int{1}, res.CompletedLevels, "3 kept + 1 reaches the new target of 4")

			view, err := env.tiers.Progress(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 2, view.Progress.CurrentLevel)
			require.NotNil(t, view.Level)
			assert.Equal(t, 2, view.Level.LevelNumber)
			assert.Equal(t, tier.ID, view.Tier.ID)
		})

		t.Run("InactiveFirstLevelStartsAtLowestActive", func(t *testing.T) {
			tier, err := env.fixtures.CreateTestTier(80, 1, 1,
				testingutil.TestLevel{Goals: ordersGoal(1)},
				testingutil.TestLevel{Goals: ordersGoal(2)},
			)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Level{}).
				Where("tier_id = ? AND level_number = ?", tier.ID, 1).
				Update("is_active", false).Error)

			progress, err := env.tiers.EnsureProgress(ctx, models.ProgressKey{UserID: 8, AdminID: 80, PlatformID: 1})
			require.NoError(t, err)
			assert.Equal(t, 2, progress.CurrentLevel)
		})

		t.Run("NoActiveTier", func(t *testing.T) {
			key := models.ProgressKey{UserID: 9, AdminID: 90, PlatformID: 1}
			_, err := env.tiers.EnsureProgress(ctx, key)
			require.Error(t, err)
			assert.True(t, businessflow.IsNoActiveTier(err))
			assert.True(t, businessflow.IsNotFound(err))

			_, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			assert.True(t, businessflow.IsNoActiveTier(err))

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, progress)
		})

		t.Run("CompletionAdvancesIntoNextTier", func(t *testing.T) {
			key := models.ProgressKey{UserID: 11, AdminID: 110, PlatformID: 1}
			clicks := func(target int64) []models.Goal {
				return []models.Goal{{Type: models.GoalTypeClicks, Target: target}}
			}
			first, err := env.fixtures.CreateTestTier(110, 1, 1, testingutil.TestLevel{Goals: clicks(1)})
			require.NoError(t, err)
			second, err := env.fixtures.CreateTestTier(110, 1, 2, testingutil.TestLevel{Goals: clicks(2)})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeClicks, 1, "")
			require.NoError(t, err)
			assert.True(t, res.TierCompleted)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.False(t, progress.IsTierCompleted)
			require.NotNil(t, progress.CurrentTierID)
			assert.Equal(t, second.ID, *progress.CurrentTierID)
			assert.Equal(t, 1, progress.CurrentLevel)
			require.Len(t, progress.GoalProgress, 1)
			assert.Equal(t, models.GoalTypeClicks, progress.GoalProgress[0].Type)
			assert.Equal(t, int64(2), progress.GoalProgress[0].Target)
			assert.Zero(t, progress.GoalProgress[0].Progress)

			for i := 0; i < 2; i++ {
				res, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeClicks, 1, "")
				require.NoError(t, err)
			}
			assert.True(t, res.TierCompleted)

			progress, err = env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.True(t, progress.IsTierCompleted)
			require.Len(t, progress.History, 2)
			assert.Equal(t, first.ID, progress.History[0].TierID)
			assert.Equal(t, second.ID, progress.History[1].TierID)
			assert.Len(t, rewardLogsOf(t, env, 11, 110, models.RewardLogActionTierCompleted), 2)
		})

		t.Run("TierWithoutActiveLevelIsSkipped", func(t *testing.T) {
			key := models.ProgressKey{UserID: 12, AdminID: 120, PlatformID: 1}
			_, err := env.fixtures.CreateTestTier(120, 1, 1, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)
			empty, err := env.fixtures.CreateTestTier(120, 1, 2, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Level{}).Where("tier_id = ?", empty.ID).Update("is_active", false).Error)
			last, err := env.fixtures.CreateTestTier(120, 1, 3, testingutil.TestLevel{Goals: ordersGoal(3)})
			require.NoError(t, err)

			res, err := env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)
			assert.True(t, res.TierCompleted)

			progress, err := env.progressRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, progress.CurrentTierID)
			assert.Equal(t, last.ID, *progress.CurrentTierID)
			assert.Equal(t, 1, progress.CurrentLevel)
			require.Len(t, progress.GoalProgress, 1)
			assert.Equal(t, int64(3), progress.GoalProgress[0].Target)
		})

		t.Run("OnlyUnplayableTiersLeftIsTerminal", func(t *testing.T) {
			key := models.ProgressKey{UserID: 13, AdminID: 130, PlatformID: 1}
			_, err := env.fixtures.CreateTestTier(130, 1, 1, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)
			empty, err := env.fixtures.CreateTestTier(130, 1, 2, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Level{}).Where("tier_id = ?", empty.ID).Update("is_active", false).Error)

			_, err = env.tiers.IncrementGoal(ctx, key, models.GoalTypeOrders, 1, "")
			require.NoError(t, err)

			progress, err := env.tiers.EnsureProgress(ctx, key)
			require.NoError(t, err)
			assert.True(t, progress.IsTierCompleted)
			assert.Empty(t, progress.GoalProgress)
		})

		t.Run("UnplayableFirstTierStartsAtNext", func(t *testing.T) {
			empty, err := env.fixtures.CreateTestTier(140, 1, 1, testingutil.TestLevel{Goals: ordersGoal(1)})
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Level{}).Where("tier_id = ?", empty.ID).Update("is_active", false).Error)

			_, err = env.tiers.EnsureProgress(ctx, models.ProgressKey{UserID: 14, AdminID: 140, PlatformID: 1})
			require.Error(t, err)
			assert.True(t, businessflow.IsNoActiveTier(err))

			playable, err := env.fixtures.CreateTestTier(140, 1, 2, testingutil.TestLevel{Goals: ordersGoal(2)})
			require.NoError(t, err)

			progress, err := env.tiers.EnsureProgress(ctx, models.ProgressKey{UserID: 14, AdminID: 140, PlatformID: 1})
			require.NoError(t, err)
			require.NotNil(t, progress.CurrentTierID)
			assert.Equal(t, playable.ID, *progress.CurrentTierID)
			assert.Equal(t, 1, progress.CurrentLevel)
		})

		t.Run("TierCRUD", func(t *testing.T) {
			inactive := false
			tier, err := env.tiers.CreateTier(ctx, 100, 1, &dto.TierRequest{
				Name:  "Gold",
				Order: 3,
				Levels: []dto.LevelRequest{{
					LevelNumber: 1,
					Goals:       []dto.GoalRequest{{Type: "SALES", Target: 50}},
					Rewards:     []dto.RewardRequest{{Type: "CASH", Label: "Bonus", Value: "25"}},
				}},
			})
			require.NoError(t, err)
			assert.True(t, tier.IsActive)
			require.Len(t, tier.Levels, 1)
			assert.Equal(t, utils.DefaultSpinsPerReward, tier.Levels[0].SpinsPerReward)
			require.Len(t, tier.Levels[0].Rewards, 1)
			assert.NotEmpty(t, tier.Levels[0].Rewards[0].ID)

			_, err = env.tiers.UpdateTier(ctx, 100, tier.ID, &dto.TierRequest{Name: "Gold", Order: 3, IsActive: &inactive})
			require.NoError(t, err)

			tiers, err := env.tiers.ListTiers(ctx, 100, 1)
			require.NoError(t, err)
			require.Len(t, tiers, 1)
			assert.False(t, tiers[0].IsActive)
			assert.Len(t, tiers[0].Levels, 1, "levels not listed in an update are kept")

			_, err = env.tiers.UpdateTier(ctx, 999, tier.ID, &dto.TierRequest{Name: "x"})
			assert.True(t, businessflow.IsNotFound(err))

			_, err = env.tiers.CreateTier(ctx, 100, 1, &dto.TierRequest{
				Name:   "Bad",
				Levels: []dto.LevelRequest{{LevelNumber: 1, Goals: []dto.GoalRequest{{Type: "LIKES", Target: 1}}}},
			})
			assert.True(t, businessflow.IsBadRequest(err))
		})

		return nil
	})
	require.NoError(t, err)
}

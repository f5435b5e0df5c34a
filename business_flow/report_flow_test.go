package businessflow_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReportFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newFlowEnv(t, testDB)
		reports := businessflow.NewReportFlow(env.runRepo, env.commissionRepo, env.campaignRepo, env.userRepo)
		now := utils.UTCNow()

		user, err := env.fixtures.CreateTestAffiliate(10, 1, "10")
		require.NoError(t, err)
		campaign, err := env.fixtures.CreateTestCampaign(user, 1)
		require.NoError(t, err)
		otherUser, err := env.fixtures.CreateTestAffiliate(11, 1, "10")
		require.NoError(t, err)
		otherCampaign, err := env.fixtures.CreateTestCampaign(otherUser, 1)
		require.NoError(t, err)

		first, err := env.fixtures.CreateTestCommission(campaign, "12.5", models.CommissionStatusPending, now.Add(-5*day))
		require.NoError(t, err)
		second, err := env.fixtures.CreateTestCommission(campaign, "7", models.CommissionStatusPending, now.Add(-5*day))
		require.NoError(t, err)
		_, err = env.fixtures.CreateTestCommission(otherCampaign, "3", models.CommissionStatusPending, now.Add(-5*day))
		require.NoError(t, err)

		report, err := env.settlement(newMockNotifier(nil), nil).Run(ctx, now, businessflow.SettlementTriggerManual)
		require.NoError(t, err)
		require.Equal(t, 3, report.Settled)

		t.Run("ExportContainsOnlyTheAdminsRecords", func(t *testing.T) {
			filename, data, err := reports.ExportSettlementRun(ctx, 10, report.RunID)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("settlement_run_%d.xlsx", report.RunID), filename)

			xl, err := excelize.OpenReader(bytes.NewReader(data))
			require.NoError(t, err)
			defer func() { _ = xl.Close() }()

			assert.Equal(t, []string{"Summary", "Commissions"}, xl.GetSheetList())

			rows, err := xl.GetRows("Commissions")
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "final_commission", rows[0][9])
			assert.Equal(t, fmt.Sprint(first.ID), rows[1][0])
			assert.Equal(t, user.Name, rows[1][2])
			assert.Equal(t, campaign.Name, rows[1][4])
			assert.Equal(t, "12.50", rows[1][9])
			assert.NotEmpty(t, rows[1][10])
			assert.Equal(t, fmt.Sprint(second.ID), rows[2][0])
			assert.Equal(t, "7.00", rows[2][9])

			settled, err := xl.GetCellValue("Summary", "B8")
			require.NoError(t, err)
			assert.Equal(t, "3", settled)
			own, err := xl.GetCellValue("Summary", "B10")
			require.NoError(t, err)
			assert.Equal(t, "2", own)
		})

		t.Run("UnknownRun", func(t *testing.T) {
			_, _, err := reports.ExportSettlementRun(ctx, 10, report.RunID+100)
			require.Error(t, err)
			assert.True(t, businessflow.IsNotFound(err))
		})

		t.Run("ListSettlementRuns", func(t *testing.T) {
			_, err := env.settlement(newMockNotifier(nil), nil).Run(ctx, now, businessflow.SettlementTriggerSchedule)
			require.NoError(t, err)

			runs, total, err := reports.ListSettlementRuns(ctx, businessflow.Page{Limit: 1})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			require.Len(t, runs, 1)
			assert.Equal(t, businessflow.SettlementTriggerSchedule, runs[0].Trigger)
		})

		return nil
	})
	require.NoError(t, err)
}

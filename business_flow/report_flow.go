package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet     = "Summary"
	commissionsSheet = "Commissions"
)

// ReportFlow exports settlement results for admins
type ReportFlow interface {
	ExportSettlementRun(ctx context.Context, adminID, runID uint) (string, []byte, error)
	ListSettlementRuns(ctx context.Context, page Page) ([]*models.SettlementRun, int64, error)
}

// ReportFlowImpl implements ReportFlow
type ReportFlowImpl struct {
	runRepo        repository.SettlementRunRepository
	commissionRepo repository.CommissionRecordRepository
	campaignRepo   repository.CampaignRepository
	userRepo       repository.AffiliateUserRepository
}

// NewReportFlow creates a new report flow
func NewReportFlow(
	runRepo repository.SettlementRunRepository,
	commissionRepo repository.CommissionRecordRepository,
	campaignRepo repository.CampaignRepository,
	userRepo repository.AffiliateUserRepository,
) ReportFlow {
	return &ReportFlowImpl{
		runRepo:        runRepo,
		commissionRepo: commissionRepo,
		campaignRepo:   campaignRepo,
		userRepo:       userRepo,
	}
}

// ExportSettlementRun builds an XLSX workbook of the admin's commissions settled by a run
func (f *ReportFlowImpl) ExportSettlementRun(ctx context.Context, adminID, runID uint) (string, []byte, error) {
	run, err := f.runRepo.ByID(ctx, runID)
	if err != nil {
		return "", nil, NewBusinessError("SETTLEMENT_RUN_LOOKUP_FAILED", "Failed to load settlement run", err)
	}
	if run == nil {
		return "", nil, NewBusinessError(KindNotFound, "Settlement run not found", ErrSettlementRunNotFound)
	}

	records, err := f.commissionRepo.ByFilter(ctx, models.CommissionRecordFilter{
		AdminID:         &adminID,
		SettlementRunID: &runID,
	}, "id ASC", 0, 0)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_COMMISSIONS_FAILED", "Failed to fetch settled commissions", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	xl.SetSheetName(xl.GetSheetName(0), summarySheet)
	finished := ""
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	summary := [][]any{
		{"run_id", run.ID},
		{"status", string(run.Status)},
		{"trigger", run.Trigger},
		{"started_at", run.StartedAt.UTC().Format(time.RFC3339)},
		{"finished_at", finished},
		{"scanned", run.Scanned},
		{"settled", run.Settled},
		{"skipped", run.Skipped},
		{"failed", run.Failed},
		{"admin_commissions", len(records)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(summarySheet, cell, &row); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write summary", err)
		}
	}

	if _, err := xl.NewSheet(commissionsSheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to create sheet", err)
	}
	header := []string{"id", "user_id", "user_name", "campaign_id", "campaign_name", "order_id", "purchase_amount", "commission_amount", "tds_amount", "final_commission", "paid_at"}
	_ = xl.SetSheetRow(commissionsSheet, "A1", &header)

	userNames := map[uint]string{}
	campaignNames := map[uint]string{}
	for ri, r := range records {
		userName, ok := userNames[r.UserID]
		if !ok {
			if u, err := f.userRepo.ByID(ctx, r.UserID); err == nil && u != nil {
				userName = u.Name
			}
			userNames[r.UserID] = userName
		}
		campaignName, ok := campaignNames[r.CampaignID]
		if !ok {
			if c, err := f.campaignRepo.ByID(ctx, r.CampaignID); err == nil && c != nil {
				campaignName = c.Name
			}
			campaignNames[r.CampaignID] = campaignName
		}
		paidAt := ""
		if r.PaidAt != nil {
			paidAt = r.PaidAt.UTC().Format(time.RFC3339)
		}

		record := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.FormatUint(uint64(r.UserID), 10),
			userName,
			strconv.FormatUint(uint64(r.CampaignID), 10),
			campaignName,
			r.OrderID,
			r.PurchaseAmount.StringFixed(2),
			r.CommissionAmount.StringFixed(2),
			r.TDSAmount.StringFixed(2),
			r.FinalCommission.StringFixed(2),
			paidAt,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(commissionsSheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("settlement_run_%d.xlsx", run.ID)
	return filename, buf.Bytes(), nil
}

// ListSettlementRuns returns settlement runs newest first
func (f *ReportFlowImpl) ListSettlementRuns(ctx context.Context, page Page) ([]*models.SettlementRun, int64, error) {
	page = page.normalize()
	runs, err := f.runRepo.ByFilter(ctx, models.SettlementRunFilter{}, "id DESC", page.Limit, page.Offset)
	if err != nil {
		return nil, 0, NewBusinessError("SETTLEMENT_RUN_LIST_FAILED", "Failed to list settlement runs", err)
	}
	total, err := f.runRepo.Count(ctx, models.SettlementRunFilter{})
	if err != nil {
		return nil, 0, NewBusinessError("SETTLEMENT_RUN_LIST_FAILED", "Failed to count settlement runs", err)
	}
	return runs, total, nil
}

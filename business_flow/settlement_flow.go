package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/affiliate-engine/app/metrics"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settlement triggers
const (
	SettlementTriggerSchedule = "schedule"
	SettlementTriggerManual   = "manual"
)

// SettlementReport summarizes one settlement run
type SettlementReport struct {
	RunID      uint                       `json:"run_id"`
	Status     models.SettlementRunStatus `json:"status"`
	Scanned    int                        `json:"scanned"`
	Settled    int                        `json:"settled"`
	NotDue     int                        `json:"not_due"`
	Skipped    int                        `json:"skipped"`
	Failed     int                        `json:"failed"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// SettlementFlow moves aged PENDING commissions to PAID and credits the wallets
type SettlementFlow interface {
	Run(ctx context.Context, now time.Time, trigger string) (*SettlementReport, error)
}

// SettlementFlowImpl implements SettlementFlow
type SettlementFlowImpl struct {
	commissionRepo repository.CommissionRecordRepository
	campaignRepo   repository.CampaignRepository
	userRepo       repository.AffiliateUserRepository
	dailyRepo      repository.DailyActionCounterRepository
	runRepo        repository.SettlementRunRepository
	ledger         WalletLedger
	notifier       services.NotificationService
	locker         RunLocker
	db             *gorm.DB

	batchSize int
}

// NewSettlementFlow creates a new settlement flow. A nil distributed locker leaves only the in-process guard.
func NewSettlementFlow(
	commissionRepo repository.CommissionRecordRepository,
	campaignRepo repository.CampaignRepository,
	userRepo repository.AffiliateUserRepository,
	dailyRepo repository.DailyActionCounterRepository,
	runRepo repository.SettlementRunRepository,
	ledger WalletLedger,
	notifier services.NotificationService,
	distributedLocker RunLocker,
	db *gorm.DB,
	cfg config.SettlementConfig,
) SettlementFlow {
	locker := chainedLocker{&localRunLock{}}
	if distributedLocker != nil {
		locker = append(locker, distributedLocker)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = utils.DefaultSettlementBatchSize
	}

	return &SettlementFlowImpl{
		commissionRepo: commissionRepo,
		campaignRepo:   campaignRepo,
		userRepo:       userRepo,
		dailyRepo:      dailyRepo,
		runRepo:        runRepo,
		ledger:         ledger,
		notifier:       notifier,
		locker:         locker,
		db:             db,
		batchSize:      batchSize,
	}
}

type settleOutcome string

const (
	outcomeSettled settleOutcome = "settled"
	outcomeNotDue  settleOutcome = "not_due"
	outcomeSkipped settleOutcome = "skipped"
	outcomeFailed  settleOutcome = "failed"
)

var errSettledElsewhere = errors.New("commission settled by another writer")

// Run executes one settlement pass over all PENDING commissions
func (s *SettlementFlowImpl) Run(ctx context.Context, now time.Time, trigger string) (*SettlementReport, error) {
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		if IsSettlementInProgress(err) {
			return nil, NewBusinessError(KindConflict, "Settlement is already running", err)
		}
		return nil, NewBusinessError("SETTLEMENT_LOCK_FAILED", "Failed to acquire settlement lock", err)
	}
	defer release()

	now = now.UTC()
	started := utils.UTCNow()
	run := &models.SettlementRun{
		Status:    models.SettlementRunStatusRunning,
		Trigger:   trigger,
		StartedAt: started,
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, NewBusinessError("SETTLEMENT_RUN_CREATE_FAILED", "Failed to record settlement run", err)
	}

	report := &SettlementReport{RunID: run.ID, StartedAt: started}
	scanErr := s.scan(ctx, run.ID, now, report)

	report.FinishedAt = utils.UTCNow()
	run.Scanned = report.Scanned
	run.Settled = report.Settled
	run.Skipped = report.Skipped + report.NotDue
	run.Failed = report.Failed
	run.FinishedAt = &report.FinishedAt
	run.Status = models.SettlementRunStatusCompleted
	if scanErr != nil {
		run.Status = models.SettlementRunStatusFailed
		msg := scanErr.Error()
		run.Error = &msg
	}
	report.Status = run.Status

	// the caller's context may be cancelled; the run row still has to be closed
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runRepo.Finish(finishCtx, run); err != nil {
		log.Printf("settlement run %d: failed to store outcome: %v", run.ID, err)
	}

	metrics.SettlementRunDuration.WithLabelValues(string(run.Status)).Observe(report.FinishedAt.Sub(started).Seconds())
	log.Printf("settlement run %d (%s) %s: scanned=%d settled=%d not_due=%d skipped=%d failed=%d",
		run.ID, trigger, run.Status, report.Scanned, report.Settled, report.NotDue, report.Skipped, report.Failed)

	if scanErr != nil {
		return report, NewBusinessErrorf("SETTLEMENT_RUN_FAILED", "Settlement run %d failed", scanErr, run.ID)
	}
	metrics.SettlementLastSuccess.Set(float64(report.FinishedAt.Unix()))
	return report, nil
}

// scan pages through pending records in id order. Only a scan error aborts the run.
func (s *SettlementFlowImpl) scan(ctx context.Context, runID uint, now time.Time, report *SettlementReport) error {
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := s.commissionRepo.ListPendingAfter(ctx, afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to scan pending commissions after %d: %w", afterID, err)
		}

		for _, record := range records {
			outcome, err := s.settleRecord(ctx, runID, record, now)
			if err != nil {
				log.Printf("settlement run %d: commission %d %s: %v", runID, record.ID, outcome, err)
			}

			report.Scanned++
			switch outcome {
			case outcomeSettled:
				report.Settled++
			case outcomeNotDue:
				report.NotDue++
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
			metrics.SettlementRecordsTotal.WithLabelValues(string(outcome)).Inc()
		}

		if len(records) < s.batchSize {
			return nil
		}
		afterID = records[len(records)-1].ID
	}
}

// settleRecord applies the eligibility rule and settles one record. It never panics.
func (s *SettlementFlowImpl) settleRecord(ctx context.Context, runID uint, record *models.CommissionRecord, now time.Time) (outcome settleOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeFailed
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	campaign, err := s.campaignRepo.ByID(ctx, record.CampaignID)
	if err != nil {
		return outcomeFailed, err
	}
	if campaign == nil {
		return outcomeSkipped, ErrCampaignNotFound
	}

	user, err := s.userRepo.ByID(ctx, campaign.UserID)
	if err != nil {
		return outcomeFailed, err
	}
	if user == nil {
		return outcomeSkipped, ErrAffiliateNotFound
	}

	ageDays := utils.WholeDaysBetween(record.CreatedAt, now)
	if ageDays < campaign.GraceDays()+utils.SettlementGraceDays {
		return outcomeNotDue, nil
	}

	final := record.FinalCommission
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		ok, err := s.commissionRepo.TransitionStatus(txCtx, record.ID, models.CommissionStatusPending, models.CommissionStatusPaid, map[string]any{
			"settlement_run_id": runID,
			"paid_at":           now,
			"updated_at":        now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errSettledElsewhere
		}

		if _, err := s.ledger.Credit(txCtx, user.ID, record.AdminID, record); err != nil && !IsAlreadyCredited(err) {
			return err
		}

		if err := s.userRepo.AdjustCommission(txCtx, user.ID, final.Neg(), final); err != nil {
			return err
		}

		percentage := decimal.Zero
		if record.PurchaseAmount.IsPositive() {
			percentage = roundMoney(final.Div(record.PurchaseAmount).Mul(hundred))
		}
		if err := s.campaignRepo.AdjustCommission(txCtx, campaign.ID, final.Neg(), final, &percentage); err != nil {
			return err
		}

		return s.dailyRepo.Increment(txCtx, user.ID, record.AdminID, utils.DayKey(now), models.DailyActionDelta{PaidCommission: final})
	})
	if err != nil {
		if errors.Is(err, errSettledElsewhere) {
			return outcomeSkipped, err
		}
		return outcomeFailed, err
	}

	notify(ctx, s.notifier, services.UserRecipient(user), services.CommissionSettledUser{
		CommissionID:    record.ID,
		CampaignID:      campaign.ID,
		OrderID:         record.OrderID,
		FinalCommission: final,
	})
	notify(ctx, s.notifier, services.AdminRecipient(record.AdminID), services.CommissionSettledAdmin{
		CommissionID:    record.ID,
		UserID:          user.ID,
		UserName:        user.Name,
		OrderID:         record.OrderID,
		FinalCommission: final,
	})

	return outcomeSettled, nil
}

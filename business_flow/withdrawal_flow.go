package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/metrics"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payout webhook events
const (
	PayoutEventProcessed = "payout.processed"
	PayoutEventFailed    = "payout.failed"
	PayoutEventReversed  = "payout.reversed"
)

// WithdrawalFlow handles withdrawal requests and their payout lifecycle
type WithdrawalFlow interface {
	Request(ctx context.Context, userID, adminID uint, amount decimal.Decimal) (*models.Withdrawal, error)
	Cancel(ctx context.Context, userID, withdrawalID uint) (*models.Withdrawal, error)
	Reject(ctx context.Context, adminID, withdrawalID uint, reason string) (*models.Withdrawal, error)
	Approve(ctx context.Context, adminID, withdrawalID uint) (*models.Withdrawal, error)
	HandlePayoutWebhook(ctx context.Context, rawBody []byte, signature string) error
	List(ctx context.Context, userID, adminID uint, page Page) ([]*models.Withdrawal, int64, error)
}

// WithdrawalFlowImpl implements WithdrawalFlow
type WithdrawalFlowImpl struct {
	withdrawalRepo repository.WithdrawalRepository
	userRepo       repository.AffiliateUserRepository
	ledger         WalletLedger
	gateway        services.PayoutGateway
	notifier       services.NotificationService
	idGen          services.IDGenerator
	db             *gorm.DB
	webhookSecret  string
}

// NewWithdrawalFlow creates a new withdrawal flow
func NewWithdrawalFlow(
	withdrawalRepo repository.WithdrawalRepository,
	userRepo repository.AffiliateUserRepository,
	ledger WalletLedger,
	gateway services.PayoutGateway,
	notifier services.NotificationService,
	idGen services.IDGenerator,
	db *gorm.DB,
	webhookSecret string,
) WithdrawalFlow {
	return &WithdrawalFlowImpl{
		withdrawalRepo: withdrawalRepo,
		userRepo:       userRepo,
		ledger:         ledger,
		gateway:        gateway,
		notifier:       notifier,
		idGen:          idGen,
		db:             db,
		webhookSecret:  webhookSecret,
	}
}

// Request reserves amount from the wallet and records a PENDING withdrawal
func (f *WithdrawalFlowImpl) Request(ctx context.Context, userID, adminID uint, amount decimal.Decimal) (*models.Withdrawal, error) {
	amount = roundMoney(amount)
	if !amount.IsPositive() {
		return nil, NewBusinessError(KindBadRequest, "Withdrawal amount must be positive", ErrInvalidAmount)
	}

	var withdrawal *models.Withdrawal
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		wallet, err := f.ledger.Wallet(txCtx, userID, adminID)
		if err != nil {
			return err
		}

		now := utils.UTCNow()
		withdrawal = &models.Withdrawal{
			UUID:      f.idGen.NewUUID(),
			UserID:    userID,
			AdminID:   adminID,
			WalletID:  wallet.ID,
			Amount:    amount,
			Status:    models.WithdrawalStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.withdrawalRepo.Save(txCtx, withdrawal); err != nil {
			return err
		}
		_, err = f.ledger.HoldWithdrawal(txCtx, userID, adminID, withdrawal)
		return err
	})
	if err != nil {
		switch {
		case IsInsufficientBalance(err):
			return nil, NewBusinessError(KindBadRequest, "Insufficient wallet balance", err)
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Wallet not found", err)
		default:
			return nil, NewBusinessError("WITHDRAWAL_REQUEST_FAILED", "Failed to request withdrawal", err)
		}
	}

	f.notifyStatus(ctx, withdrawal)
	return withdrawal, nil
}

// Cancel withdraws a PENDING request on behalf of its owner and releases the hold
func (f *WithdrawalFlowImpl) Cancel(ctx context.Context, userID, withdrawalID uint) (*models.Withdrawal, error) {
	now := utils.UTCNow()
	w, err := f.closePending(ctx, withdrawalID, func(w *models.Withdrawal) bool { return w.UserID == userID },
		models.WithdrawalStatusCancelled, map[string]any{"cancelled_at": now, "updated_at": now})
	if err != nil {
		return nil, err
	}
	w.CancelledAt = &now
	f.notifyStatus(ctx, w)
	return w, nil
}

// Reject declines a PENDING request on the admin's platform and releases the hold
func (f *WithdrawalFlowImpl) Reject(ctx context.Context, adminID, withdrawalID uint, reason string) (*models.Withdrawal, error) {
	now := utils.UTCNow()
	w, err := f.closePending(ctx, withdrawalID, func(w *models.Withdrawal) bool { return w.AdminID == adminID },
		models.WithdrawalStatusRejected, map[string]any{"failure_reason": reason, "updated_at": now})
	if err != nil {
		return nil, err
	}
	w.FailureReason = &reason
	f.notifyStatus(ctx, w)
	return w, nil
}

func (f *WithdrawalFlowImpl) closePending(ctx context.Context, withdrawalID uint, owns func(*models.Withdrawal) bool, to models.WithdrawalStatus, fields map[string]any) (*models.Withdrawal, error) {
	var w *models.Withdrawal
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		w, err = f.withdrawalRepo.ByID(txCtx, withdrawalID)
		if err != nil {
			return err
		}
		if w == nil || !owns(w) {
			return ErrWithdrawalNotFound
		}

		ok, err := f.withdrawalRepo.TransitionStatus(txCtx, w.ID, []models.WithdrawalStatus{models.WithdrawalStatusPending}, to, fields)
		if err != nil {
			return err
		}
		if !ok {
			return ErrWithdrawalNotPending
		}
		w.Status = to
		return f.ledger.ReleaseWithdrawal(txCtx, w)
	})
	if err != nil {
		return nil, f.wrapError(err, "WITHDRAWAL_UPDATE_FAILED", "Failed to update withdrawal")
	}
	return w, nil
}

// Approve submits the payout to the gateway and moves the withdrawal to PROCESSING.
// On a gateway error the withdrawal stays PENDING.
func (f *WithdrawalFlowImpl) Approve(ctx context.Context, adminID, withdrawalID uint) (*models.Withdrawal, error) {
	w, err := f.withdrawalRepo.ByID(ctx, withdrawalID)
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "Failed to load withdrawal", err)
	}
	if w == nil || w.AdminID != adminID {
		return nil, NewBusinessError(KindNotFound, "Withdrawal not found", ErrWithdrawalNotFound)
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, NewBusinessError(KindConflict, "Withdrawal is not pending", ErrWithdrawalNotPending)
	}

	user, err := getAffiliate(ctx, f.userRepo, w.UserID)
	if err != nil {
		return nil, f.wrapError(err, "WITHDRAWAL_APPROVE_FAILED", "Failed to load affiliate")
	}
	if user.FundAccountID == nil || *user.FundAccountID == "" {
		return nil, NewBusinessError(KindBadRequest, "Affiliate has no fund account", ErrFundAccountMissing)
	}

	// the withdrawal uuid doubles as the gateway idempotency reference
	payout, err := f.gateway.CreatePayout(ctx, services.PayoutRequest{
		FundAccountID: *user.FundAccountID,
		Amount:        w.Amount,
		ReferenceID:   w.UUID.String(),
		Narration:     fmt.Sprintf("Affiliate withdrawal %d", w.ID),
	})
	if err != nil {
		return nil, NewBusinessErrorf("PAYOUT_GATEWAY_FAILED", "Payout gateway rejected withdrawal %d", err, w.ID)
	}

	now := utils.UTCNow()
	ok, err := f.withdrawalRepo.TransitionStatus(ctx, w.ID,
		[]models.WithdrawalStatus{models.WithdrawalStatusPending}, models.WithdrawalStatusProcessing,
		map[string]any{"payout_id": payout.PayoutID, "processed_at": now, "updated_at": now})
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_APPROVE_FAILED", "Failed to store payout", err)
	}
	if !ok {
		log.Printf("withdrawal %d: payout %s submitted but the withdrawal left PENDING concurrently", w.ID, payout.PayoutID)
		return nil, NewBusinessError(KindConflict, "Withdrawal is not pending", ErrWithdrawalNotPending)
	}

	w.Status = models.WithdrawalStatusProcessing
	w.PayoutID = &payout.PayoutID
	w.ProcessedAt = &now
	f.notifyStatus(ctx, w)
	return w, nil
}

// HandlePayoutWebhook verifies and applies a gateway payout event. Replays and unknown events are acknowledged.
func (f *WithdrawalFlowImpl) HandlePayoutWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !utils.VerifyHMAC(f.webhookSecret, rawBody, signature) {
		metrics.PayoutWebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return NewBusinessError(KindUnauthorized, "Invalid webhook signature", ErrInvalidWebhookSignature)
	}

	var event dto.PayoutWebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return NewBusinessError(KindBadRequest, "Malformed webhook payload", fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err))
	}
	entity := event.Payload.Payout.Entity
	if event.Event == "" || entity.ID == "" {
		return NewBusinessError(KindBadRequest, "Webhook payload has no payout", ErrInvalidWebhookPayload)
	}

	switch event.Event {
	case PayoutEventProcessed, PayoutEventFailed, PayoutEventReversed:
	default:
		metrics.PayoutWebhookEventsTotal.WithLabelValues(event.Event, "ignored").Inc()
		log.Printf("payout webhook: ignoring event %s for payout %s", event.Event, entity.ID)
		return nil
	}

	var (
		applied    bool
		withdrawal *models.Withdrawal
	)
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		withdrawal, err = f.withdrawalRepo.ByPayoutID(txCtx, entity.ID)
		if err != nil {
			return err
		}
		if withdrawal == nil || withdrawal.Status.IsTerminal() {
			return nil
		}

		switch event.Event {
		case PayoutEventProcessed:
			applied, err = f.completePayout(txCtx, withdrawal)
		case PayoutEventFailed:
			applied, err = f.failPayout(txCtx, withdrawal, entity.FailureReason)
		case PayoutEventReversed:
			applied, err = f.reversePayout(txCtx, withdrawal, entity.FailureReason)
		}
		return err
	})
	if err != nil {
		metrics.PayoutWebhookEventsTotal.WithLabelValues(event.Event, "error").Inc()
		return NewBusinessErrorf("PAYOUT_WEBHOOK_FAILED", "Failed to apply %s for payout %s", err, event.Event, entity.ID)
	}

	switch {
	case withdrawal == nil:
		metrics.PayoutWebhookEventsTotal.WithLabelValues(event.Event, "unmatched").Inc()
		log.Printf("payout webhook: no withdrawal for payout %s", entity.ID)
	case !applied:
		metrics.PayoutWebhookEventsTotal.WithLabelValues(event.Event, "replay").Inc()
	default:
		metrics.PayoutWebhookEventsTotal.WithLabelValues(event.Event, "applied").Inc()
		f.notifyStatus(ctx, withdrawal)
	}
	return nil
}

func (f *WithdrawalFlowImpl) completePayout(ctx context.Context, w *models.Withdrawal) (bool, error) {
	now := utils.UTCNow()
	ok, err := f.withdrawalRepo.TransitionStatus(ctx, w.ID,
		[]models.WithdrawalStatus{models.WithdrawalStatusProcessing}, models.WithdrawalStatusCompleted,
		map[string]any{"completed_at": now, "updated_at": now})
	if err != nil || !ok {
		return false, err
	}
	if err := f.ledger.SettleWithdrawalPayout(ctx, w); err != nil {
		return false, err
	}
	if err := f.userRepo.AddWithdrawn(ctx, w.UserID, w.Amount); err != nil {
		return false, err
	}
	w.Status = models.WithdrawalStatusCompleted
	w.CompletedAt = &now
	return true, nil
}

func (f *WithdrawalFlowImpl) failPayout(ctx context.Context, w *models.Withdrawal, reason string) (bool, error) {
	now := utils.UTCNow()
	ok, err := f.withdrawalRepo.TransitionStatus(ctx, w.ID,
		[]models.WithdrawalStatus{models.WithdrawalStatusProcessing}, models.WithdrawalStatusFailed,
		failureFields(now, reason))
	if err != nil || !ok {
		return false, err
	}
	if err := f.ledger.ReleaseWithdrawal(ctx, w); err != nil {
		return false, err
	}
	markFailed(w, now, reason)
	return true, nil
}

// reversePayout undoes a completed payout, or fails one still in flight
func (f *WithdrawalFlowImpl) reversePayout(ctx context.Context, w *models.Withdrawal, reason string) (bool, error) {
	now := utils.UTCNow()
	ok, err := f.withdrawalRepo.TransitionStatus(ctx, w.ID,
		[]models.WithdrawalStatus{models.WithdrawalStatusCompleted}, models.WithdrawalStatusFailed,
		failureFields(now, reason))
	if err != nil {
		return false, err
	}
	if !ok {
		return f.failPayout(ctx, w, reason)
	}
	if err := f.ledger.ReverseWithdrawalPayout(ctx, w); err != nil {
		return false, err
	}
	if err := f.userRepo.AddWithdrawn(ctx, w.UserID, w.Amount.Neg()); err != nil {
		return false, err
	}
	markFailed(w, now, reason)
	return true, nil
}

// List returns a page of the affiliate's withdrawals, newest first
func (f *WithdrawalFlowImpl) List(ctx context.Context, userID, adminID uint, page Page) ([]*models.Withdrawal, int64, error) {
	page = page.normalize()
	filter := models.WithdrawalFilter{UserID: &userID, AdminID: &adminID}
	items, err := f.withdrawalRepo.ByFilter(ctx, filter, "id DESC", page.Limit, page.Offset)
	if err != nil {
		return nil, 0, NewBusinessError("WITHDRAWAL_LIST_FAILED", "Failed to list withdrawals", err)
	}
	total, err := f.withdrawalRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewBusinessError("WITHDRAWAL_LIST_FAILED", "Failed to count withdrawals", err)
	}
	return items, total, nil
}

func (f *WithdrawalFlowImpl) notifyStatus(ctx context.Context, w *models.Withdrawal) {
	notify(ctx, f.notifier, services.Recipient{Type: models.RecipientTypeUser, ID: w.UserID}, services.WithdrawalStatusChanged{
		WithdrawalID: w.ID,
		Amount:       w.Amount,
		Status:       w.Status,
		Reason:       w.FailureReason,
	})
}

func (f *WithdrawalFlowImpl) wrapError(err error, code, message string) error {
	switch {
	case IsNotFound(err):
		return NewBusinessError(KindNotFound, "Withdrawal not found", err)
	case IsConflict(err):
		return NewBusinessError(KindConflict, "Withdrawal is not pending", err)
	default:
		return NewBusinessError(code, message, err)
	}
}

func failureFields(now time.Time, reason string) map[string]any {
	fields := map[string]any{"failed_at": now, "updated_at": now}
	if reason != "" {
		fields["failure_reason"] = reason
	}
	return fields
}

func markFailed(w *models.Withdrawal, now time.Time, reason string) {
	w.Status = models.WithdrawalStatusFailed
	w.FailedAt = &now
	if reason != "" {
		w.FailureReason = &reason
	}
}

package businessflow

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"

	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/gorm"
)

// ClaimResult is the outcome of a successful claim
type ClaimResult struct {
	RewardLog *models.RewardLog       `json:"reward_log"`
	Collected *models.CollectedReward `json:"collected"`
}

// RewardClaimFlow redeems issued rewards and tracks their fulfilment
type RewardClaimFlow interface {
	Claim(ctx context.Context, userID, rewardLogID uint, rewardID string) (*ClaimResult, error)
	Spin(ctx context.Context, userID, rewardLogID uint) (*ClaimResult, error)
	UpdateStatus(ctx context.Context, adminID, rewardLogID uint, collectedRewardID string, status models.RewardStatus) (*models.RewardLog, error)
	ListRewardLogs(ctx context.Context, userID, adminID uint, page Page) ([]*models.RewardLog, int64, error)
}

// RewardClaimFlowImpl implements RewardClaimFlow
type RewardClaimFlowImpl struct {
	rewardLogRepo repository.RewardLogRepository
	notifier      services.NotificationService
	idGen         services.IDGenerator
	db            *gorm.DB
}

// NewRewardClaimFlow creates a new reward claim flow
func NewRewardClaimFlow(
	rewardLogRepo repository.RewardLogRepository,
	notifier services.NotificationService,
	idGen services.IDGenerator,
	db *gorm.DB,
) RewardClaimFlow {
	return &RewardClaimFlowImpl{
		rewardLogRepo: rewardLogRepo,
		notifier:      notifier,
		idGen:         idGen,
		db:            db,
	}
}

var errRewardLogVersionConflict = errors.New("reward log version conflict")

// Claim redeems one spin of the reward log for rewardID
func (f *RewardClaimFlowImpl) Claim(ctx context.Context, userID, rewardLogID uint, rewardID string) (*ClaimResult, error) {
	if rewardID == "" {
		return nil, NewBusinessError(KindMissingField, "Reward id is required", ErrMissingField)
	}

	var result *ClaimResult
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		rl, err := f.rewardLogRepo.ByIDAndUser(txCtx, rewardLogID, userID)
		if err != nil {
			return err
		}
		if rl == nil {
			return ErrRewardLogNotFound
		}
		def, ok := rl.Reward(rewardID)
		if !ok {
			return ErrRewardNotFound
		}
		if rl.SpinCount <= 0 || rl.IsCollected {
			return ErrAlreadyClaimed
		}

		now := utils.UTCNow()
		collected := models.CollectedReward{
			ID:          f.idGen.NewUUID().String(),
			RewardID:    def.ID,
			Type:        def.Type,
			Label:       def.Label,
			Value:       def.Value,
			Status:      models.RewardStatusPending,
			ClaimedAt:   now,
			CollectedAt: now,
		}
		rl.CollectedRewards = append(rl.CollectedRewards, collected)
		rl.SpinCount--
		if rl.SpinCount == 0 {
			rl.IsCollected = true
			rl.Action = models.RewardLogActionRewardCollected
			rl.CollectedAt = &now
		}

		updated, err := f.rewardLogRepo.UpdateVersioned(txCtx, rl)
		if err != nil {
			return err
		}
		if !updated {
			return errRewardLogVersionConflict
		}

		result = &ClaimResult{RewardLog: rl, Collected: &collected}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errRewardLogVersionConflict):
			return nil, NewBusinessError(KindAlreadyExists, "Reward was claimed concurrently", ErrAlreadyClaimed)
		case IsAlreadyClaimed(err):
			return nil, NewBusinessError(KindAlreadyExists, "Reward already claimed", err)
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Reward not found", err)
		default:
			return nil, NewBusinessError("REWARD_CLAIM_FAILED", "Failed to claim reward", err)
		}
	}

	notify(ctx, f.notifier, services.Recipient{Type: models.RecipientTypeUser, ID: userID}, services.RewardClaimed{
		RewardLogID:       result.RewardLog.ID,
		CollectedRewardID: result.Collected.ID,
		RewardLabel:       result.Collected.Label,
		RemainingSpins:    result.RewardLog.SpinCount,
	})
	log.Printf("reward log %d: user %d collected %s, %d spins left", rewardLogID, userID, result.Collected.RewardID, result.RewardLog.SpinCount)
	return result, nil
}

// Spin picks a random active reward from the snapshot and claims it
func (f *RewardClaimFlowImpl) Spin(ctx context.Context, userID, rewardLogID uint) (*ClaimResult, error) {
	rl, err := f.rewardLogRepo.ByIDAndUser(ctx, rewardLogID, userID)
	if err != nil {
		return nil, NewBusinessError("REWARD_SPIN_FAILED", "Failed to load reward", err)
	}
	if rl == nil {
		return nil, NewBusinessError(KindNotFound, "Reward not found", ErrRewardLogNotFound)
	}

	var pool []models.RewardDefinition
	for _, def := range rl.Rewards {
		if def.IsActive {
			pool = append(pool, def)
		}
	}
	if len(pool) == 0 {
		return nil, NewBusinessError(KindNotFound, "Reward has nothing to spin for", ErrRewardNotFound)
	}

	pick := pool[rand.IntN(len(pool))]
	return f.Claim(ctx, userID, rewardLogID, pick.ID)
}

// UpdateStatus moves one collected reward through fulfilment
func (f *RewardClaimFlowImpl) UpdateStatus(ctx context.Context, adminID, rewardLogID uint, collectedRewardID string, status models.RewardStatus) (*models.RewardLog, error) {
	if !status.IsAdminSettable() {
		return nil, NewBusinessErrorf(KindBadRequest, "Status %q cannot be set", ErrInvalidRewardStatus, status)
	}

	var rl *models.RewardLog
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		rl, err = f.rewardLogRepo.ByIDAndAdmin(txCtx, rewardLogID, adminID)
		if err != nil {
			return err
		}
		if rl == nil {
			return ErrRewardLogNotFound
		}
		idx := rl.CollectedIndex(collectedRewardID)
		if idx < 0 {
			return ErrCollectedRewardNotFound
		}

		now := utils.UTCNow()
		rl.CollectedRewards[idx].Status = status
		rl.CollectedRewards[idx].StatusUpdatedAt = &now
		if rl.SpinCount == 0 {
			rl.Status = status
			rl.StatusUpdatedAt = &now
		}

		ok, err := f.rewardLogRepo.UpdateVersioned(txCtx, rl)
		if err != nil {
			return err
		}
		if !ok {
			return errRewardLogVersionConflict
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errRewardLogVersionConflict):
			return nil, NewBusinessError(KindConflict, "Reward was updated concurrently", ErrConflict)
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Reward not found", err)
		default:
			return nil, NewBusinessError("REWARD_STATUS_UPDATE_FAILED", "Failed to update reward status", err)
		}
	}
	return rl, nil
}

// ListRewardLogs returns the reward logs of a user on an admin platform, newest first
func (f *RewardClaimFlowImpl) ListRewardLogs(ctx context.Context, userID, adminID uint, page Page) ([]*models.RewardLog, int64, error) {
	page = page.normalize()
	filter := models.RewardLogFilter{UserID: &userID, AdminID: &adminID}

	logs, err := f.rewardLogRepo.ByFilter(ctx, filter, "id DESC", page.Limit, page.Offset)
	if err != nil {
		return nil, 0, NewBusinessError("REWARD_LOG_LIST_FAILED", "Failed to list rewards", err)
	}
	total, err := f.rewardLogRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewBusinessError("REWARD_LOG_LIST_FAILED", "Failed to count rewards", err)
	}
	return logs, total, nil
}

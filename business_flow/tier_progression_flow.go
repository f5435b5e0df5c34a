package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/metrics"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GoalIncrementResult describes what one goal event changed
type GoalIncrementResult struct {
	Applied         bool                `json:"applied"`
	CompletedLevels []int               `json:"completed_levels,omitempty"`
	IssuedRewards   []*models.RewardLog `json:"issued_rewards,omitempty"`
	TierCompleted   bool                `json:"tier_completed"`
	Progress        *models.UserTierProgress
}

// TierProgressionFlow drives the tier/level state machine of each (user, admin, platform)
type TierProgressionFlow interface {
	EnsureProgress(ctx context.Context, key models.ProgressKey) (*models.UserTierProgress, error)
	IncrementGoal(ctx context.Context, key models.ProgressKey, goalType models.GoalType, amount int64, eventKey string) (*GoalIncrementResult, error)
	Progress(ctx context.Context, key models.ProgressKey) (*dto.TierProgressResponse, error)

	CreateTier(ctx context.Context, adminID, platformID uint, req *dto.TierRequest) (*models.Tier, error)
	UpdateTier(ctx context.Context, adminID, tierID uint, req *dto.TierRequest) (*models.Tier, error)
	ListTiers(ctx context.Context, adminID, platformID uint) ([]*models.Tier, error)
}

// TierProgressionFlowImpl implements TierProgressionFlow
type TierProgressionFlowImpl struct {
	tierRepo      repository.TierRepository
	progressRepo  repository.UserTierProgressRepository
	rewardLogRepo repository.RewardLogRepository
	notifier      services.NotificationService
	idGen         services.IDGenerator
	db            *gorm.DB
}

// NewTierProgressionFlow creates a new tier progression flow
func NewTierProgressionFlow(
	tierRepo repository.TierRepository,
	progressRepo repository.UserTierProgressRepository,
	rewardLogRepo repository.RewardLogRepository,
	notifier services.NotificationService,
	idGen services.IDGenerator,
	db *gorm.DB,
) TierProgressionFlow {
	return &TierProgressionFlowImpl{
		tierRepo:      tierRepo,
		progressRepo:  progressRepo,
		rewardLogRepo: rewardLogRepo,
		notifier:      notifier,
		idGen:         idGen,
		db:            db,
	}
}

var errProgressVersionConflict = errors.New("tier progress version conflict")

// tierCompletion is collected inside the transaction and notified after commit
type tierCompletion struct {
	tier *models.Tier
	next *models.Tier
}

// EnsureProgress returns the progress row, creating it on the lowest ranked active tier
func (f *TierProgressionFlowImpl) EnsureProgress(ctx context.Context, key models.ProgressKey) (*models.UserTierProgress, error) {
	var progress *models.UserTierProgress
	err := f.withVersionRetry(ctx, func(txCtx context.Context) error {
		tiers, err := f.tierRepo.ActiveTiers(txCtx, key.AdminID, key.PlatformID)
		if err != nil {
			return err
		}
		progress, err = f.ensure(txCtx, key, tiers)
		return err
	})
	if err != nil {
		return nil, f.wrapProgressError(err, "TIER_PROGRESS_ENSURE_FAILED", "Failed to load tier progress")
	}
	return progress, nil
}

// IncrementGoal adds amount to the goalType slot of the current level and advances on completion.
// A non-empty eventKey makes the call idempotent.
func (f *TierProgressionFlowImpl) IncrementGoal(ctx context.Context, key models.ProgressKey, goalType models.GoalType, amount int64, eventKey string) (*GoalIncrementResult, error) {
	if !goalType.Valid() {
		return nil, NewBusinessErrorf(KindBadRequest, "Unknown goal type %q", ErrInvalidGoalType, goalType)
	}
	if amount <= 0 {
		return &GoalIncrementResult{}, nil
	}

	var (
		result      *GoalIncrementResult
		completions []tierCompletion
	)
	err := f.withVersionRetry(ctx, func(txCtx context.Context) error {
		result = &GoalIncrementResult{}
		completions = nil

		tiers, err := f.tierRepo.ActiveTiers(txCtx, key.AdminID, key.PlatformID)
		if err != nil {
			return err
		}
		progress, err := f.ensure(txCtx, key, tiers)
		if err != nil {
			return err
		}
		result.Progress = progress

		if progress.IsTierCompleted || progress.CurrentTierID == nil {
			return nil
		}
		tier := findTier(tiers, *progress.CurrentTierID)
		if tier == nil {
			return nil
		}
		level := tier.Level(progress.CurrentLevel)
		if level == nil || !level.IsActive || !level.DeclaresGoal(goalType) {
			return nil
		}

		if eventKey != "" {
			fresh, err := f.progressRepo.MarkEventProcessed(txCtx, progress.ID, eventKey)
			if err != nil {
				return err
			}
			if !fresh {
				return nil
			}
		}

		syncGoalShape(progress, level)
		for i := range progress.GoalProgress {
			if progress.GoalProgress[i].Type == goalType {
				progress.GoalProgress[i].Progress += amount
			}
		}
		result.Applied = true

		if levelComplete(progress) {
			issued, completion, err := f.completeLevel(txCtx, progress, tier, level, tiers)
			if err != nil {
				return err
			}
			result.CompletedLevels = append(result.CompletedLevels, level.LevelNumber)
			result.IssuedRewards = issued
			if completion != nil {
				result.TierCompleted = true
				completions = append(completions, *completion)
			}
		}

		ok, err := f.progressRepo.UpdateVersioned(txCtx, progress)
		if err != nil {
			return err
		}
		if !ok {
			return errProgressVersionConflict
		}
		return nil
	})
	if err != nil {
		return nil, f.wrapProgressError(err, "TIER_GOAL_INCREMENT_FAILED", "Failed to increment goal")
	}

	if len(result.CompletedLevels) > 0 {
		metrics.TierLevelsCompletedTotal.WithLabelValues(strconv.FormatBool(result.TierCompleted)).Inc()
	}
	recipient := services.Recipient{Type: models.RecipientTypeUser, ID: key.UserID}
	for _, rl := range result.IssuedRewards {
		label := rl.RewardID
		if def, ok := rl.Reward(rl.RewardID); ok {
			label = def.Label
		}
		notify(ctx, f.notifier, recipient, services.RewardEarned{
			RewardLogID: rl.ID,
			TierID:      rl.TierID,
			Level:       rl.Level,
			RewardLabel: label,
			SpinCount:   rl.SpinCount,
		})
	}
	for _, c := range completions {
		payload := services.TierCompleted{TierID: c.tier.ID, TierName: c.tier.Name}
		if c.next != nil {
			payload.NextTier = &c.next.ID
		}
		notify(ctx, f.notifier, recipient, payload)
	}

	return result, nil
}

// Progress returns the progress with the tier and level it points at
func (f *TierProgressionFlowImpl) Progress(ctx context.Context, key models.ProgressKey) (*dto.TierProgressResponse, error) {
	progress, err := f.EnsureProgress(ctx, key)
	if err != nil {
		return nil, err
	}

	resp := &dto.TierProgressResponse{Progress: progress}
	if progress.CurrentTierID == nil {
		return resp, nil
	}

	tier, err := f.tierRepo.ByIDWithLevels(ctx, *progress.CurrentTierID)
	if err != nil {
		return nil, NewBusinessError("TIER_PROGRESS_LOOKUP_FAILED", "Failed to load current tier", err)
	}
	if tier == nil {
		return resp, nil
	}
	resp.Tier = tier
	if level := tier.Level(progress.CurrentLevel); level != nil {
		resp.Level = level
		if !progress.IsTierCompleted {
			syncGoalShape(progress, level)
		}
	}
	return resp, nil
}

// withVersionRetry runs fn in a transaction and retries it on optimistic lock conflicts
func (f *TierProgressionFlowImpl) withVersionRetry(ctx context.Context, fn func(txCtx context.Context) error) error {
	for attempt := 1; attempt <= utils.MaxProgressUpdateAttempts; attempt++ {
		err := repository.WithTransaction(ctx, f.db, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errProgressVersionConflict) && !repository.IsDuplicateKeyError(err) {
			return err
		}
		log.Printf("tier progress: attempt %d lost a concurrent update: %v", attempt, err)
	}
	return ErrProgressContended
}

func (f *TierProgressionFlowImpl) wrapProgressError(err error, code, message string) error {
	switch {
	case IsNoActiveTier(err):
		return NewBusinessError(KindNotFound, "No active tier is configured", err)
	case errors.Is(err, ErrProgressContended):
		return NewBusinessError(KindConflict, "Tier progress is being updated concurrently", err)
	default:
		return NewBusinessError(code, message, err)
	}
}

// ensure loads or creates the progress and resumes a completed progress into a newly added tier.
// Must run inside a transaction.
func (f *TierProgressionFlowImpl) ensure(ctx context.Context, key models.ProgressKey, tiers []*models.Tier) (*models.UserTierProgress, error) {
	progress, err := f.progressRepo.ByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if progress == nil {
		var first *models.Tier
		if len(tiers) > 0 {
			first = playableTier(tiers, tiers[0])
		}
		if first == nil {
			return nil, ErrNoActiveTier
		}
		now := utils.UTCNow()
		progress = &models.UserTierProgress{
			UserID:     key.UserID,
			AdminID:    key.AdminID,
			PlatformID: key.PlatformID,
			History:    datatypes.JSONSlice[models.AchievementEntry]{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		pointAtTier(progress, first)
		if err := f.progressRepo.Save(ctx, progress); err != nil {
			return nil, err
		}
		return progress, nil
	}

	if !progress.IsTierCompleted {
		return progress, nil
	}

	currentOrder := -1
	var currentID uint
	if progress.CurrentTierID != nil {
		currentID = *progress.CurrentTierID
		current, err := f.tierRepo.ByID(ctx, currentID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			currentOrder = current.Order
		}
	}

	next := playableTier(tiers, nextTier(tiers, currentOrder, currentID))
	if next == nil {
		return progress, nil
	}

	pointAtTier(progress, next)
	progress.IsTierCompleted = false
	ok, err := f.progressRepo.UpdateVersioned(ctx, progress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errProgressVersionConflict
	}
	log.Printf("tier progress %d resumed into tier %d", progress.ID, next.ID)
	return progress, nil
}

// completeLevel issues the level rewards, records history and advances the pointer
func (f *TierProgressionFlowImpl) completeLevel(ctx context.Context, progress *models.UserTierProgress, tier *models.Tier, level *models.Level, tiers []*models.Tier) ([]*models.RewardLog, *tierCompletion, error) {
	now := utils.UTCNow()

	active := level.ActiveRewards()
	snapshot := datatypes.JSONSlice[models.RewardDefinition](active)
	spins := level.SpinsPerReward
	if spins <= 0 {
		spins = utils.DefaultSpinsPerReward
	}

	issued := make([]*models.RewardLog, 0, len(active))
	for _, reward := range active {
		issued = append(issued, &models.RewardLog{
			UUID:       f.idGen.NewUUID(),
			UserID:     progress.UserID,
			AdminID:    progress.AdminID,
			PlatformID: progress.PlatformID,
			TierID:     tier.ID,
			Level:      level.LevelNumber,
			Action:     models.RewardLogActionRewardEarned,
			Mechanic:   level.Mechanic,
			RewardID:   reward.ID,
			Rewards:    snapshot,
			SpinCount:  spins,
			Status:     models.RewardStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := f.rewardLogRepo.SaveBatch(ctx, issued); err != nil {
		return nil, nil, fmt.Errorf("failed to issue level rewards: %w", err)
	}

	progress.History = append(progress.History, models.AchievementEntry{
		TierID:     tier.ID,
		Level:      level.LevelNumber,
		AchievedAt: now,
	})

	if next := tier.Level(level.LevelNumber + 1); next != nil && next.IsActive {
		progress.CurrentLevel = next.LevelNumber
		progress.GoalProgress = models.NewGoalProgress(next.Goals)
		return issued, nil, nil
	}

	marker := &models.RewardLog{
		UUID:        f.idGen.NewUUID(),
		UserID:      progress.UserID,
		AdminID:     progress.AdminID,
		PlatformID:  progress.PlatformID,
		TierID:      tier.ID,
		Level:       level.LevelNumber,
		Action:      models.RewardLogActionTierCompleted,
		Mechanic:    level.Mechanic,
		Rewards:     datatypes.JSONSlice[models.RewardDefinition]{},
		SpinCount:   0,
		IsCollected: true,
		Status:      models.RewardStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.rewardLogRepo.Save(ctx, marker); err != nil {
		return nil, nil, fmt.Errorf("failed to log tier completion: %w", err)
	}

	completion := &tierCompletion{tier: tier}
	if next := playableTier(tiers, nextTier(tiers, tier.Order, tier.ID)); next != nil {
		pointAtTier(progress, next)
		completion.next = next
	} else {
		progress.IsTierCompleted = true
		progress.GoalProgress = datatypes.JSONSlice[models.GoalProgress]{}
	}
	return issued, completion, nil
}

// CreateTier stores a tier with its levels
func (f *TierProgressionFlowImpl) CreateTier(ctx context.Context, adminID, platformID uint, req *dto.TierRequest) (*models.Tier, error) {
	if err := validateTierRequest(req); err != nil {
		return nil, NewBusinessError(KindBadRequest, "Invalid tier definition", err)
	}

	now := utils.UTCNow()
	tier := &models.Tier{
		UUID:       f.idGen.NewUUID(),
		AdminID:    adminID,
		PlatformID: platformID,
		Name:       req.Name,
		Order:      req.Order,
		IsActive:   utils.DerefOr(req.IsActive, true),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, lr := range req.Levels {
		tier.Levels = append(tier.Levels, f.buildLevel(lr, now))
	}

	if err := f.tierRepo.Save(ctx, tier); err != nil {
		return nil, NewBusinessError("TIER_CREATE_FAILED", "Failed to create tier", err)
	}
	return tier, nil
}

// UpdateTier overwrites the tier fields and upserts the listed levels. Unlisted levels are kept.
func (f *TierProgressionFlowImpl) UpdateTier(ctx context.Context, adminID, tierID uint, req *dto.TierRequest) (*models.Tier, error) {
	if err := validateTierRequest(req); err != nil {
		return nil, NewBusinessError(KindBadRequest, "Invalid tier definition", err)
	}

	var tier *models.Tier
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		tier, err = f.tierRepo.ByIDWithLevels(txCtx, tierID)
		if err != nil {
			return err
		}
		if tier == nil || tier.AdminID != adminID {
			return ErrTierNotFound
		}

		now := utils.UTCNow()
		tier.Name = req.Name
		tier.Order = req.Order
		if req.IsActive != nil {
			tier.IsActive = *req.IsActive
		}
		tier.UpdatedAt = now
		if err := f.tierRepo.UpdateTier(txCtx, tier); err != nil {
			return err
		}

		for _, lr := range req.Levels {
			level := f.buildLevel(lr, now)
			level.TierID = tier.ID
			if existing := tier.Level(lr.LevelNumber); existing != nil {
				level.ID = existing.ID
				level.CreatedAt = existing.CreatedAt
			}
			if err := f.tierRepo.SaveLevel(txCtx, &level); err != nil {
				return err
			}
		}

		tier, err = f.tierRepo.ByIDWithLevels(txCtx, tierID)
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, NewBusinessError(KindNotFound, "Tier not found", err)
		}
		return nil, NewBusinessError("TIER_UPDATE_FAILED", "Failed to update tier", err)
	}
	return tier, nil
}

// ListTiers returns every tier of an admin platform, active or not
func (f *TierProgressionFlowImpl) ListTiers(ctx context.Context, adminID, platformID uint) ([]*models.Tier, error) {
	tiers, err := f.tierRepo.ByFilter(ctx, models.TierFilter{AdminID: &adminID, PlatformID: &platformID}, "tier_order ASC, id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("TIER_LIST_FAILED", "Failed to list tiers", err)
	}
	for i, t := range tiers {
		full, err := f.tierRepo.ByIDWithLevels(ctx, t.ID)
		if err != nil {
			return nil, NewBusinessError("TIER_LIST_FAILED", "Failed to load tier levels", err)
		}
		if full != nil {
			tiers[i] = full
		}
	}
	return tiers, nil
}

func (f *TierProgressionFlowImpl) buildLevel(lr dto.LevelRequest, now time.Time) models.Level {
	mechanic := models.RedemptionMechanic(lr.Mechanic)
	if mechanic == "" {
		mechanic = models.RedemptionMechanicSpin
	}
	spins := lr.SpinsPerReward
	if spins <= 0 {
		spins = utils.DefaultSpinsPerReward
	}

	goals := make(datatypes.JSONSlice[models.Goal], 0, len(lr.Goals))
	for _, g := range lr.Goals {
		goals = append(goals, models.Goal{Type: models.GoalType(g.Type), Target: g.Target})
	}
	rewards := make(datatypes.JSONSlice[models.RewardDefinition], 0, len(lr.Rewards))
	for _, r := range lr.Rewards {
		id := r.ID
		if id == "" {
			id = f.idGen.NewUUID().String()
		}
		rewards = append(rewards, models.RewardDefinition{
			ID:       id,
			Type:     models.RewardType(r.Type),
			Label:    r.Label,
			Value:    r.Value,
			IsActive: utils.DerefOr(r.IsActive, true),
		})
	}

	return models.Level{
		LevelNumber:    lr.LevelNumber,
		Name:           lr.Name,
		IsActive:       utils.DerefOr(lr.IsActive, true),
		Mechanic:       mechanic,
		SpinsPerReward: spins,
		Goals:          goals,
		Rewards:        rewards,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func validateTierRequest(req *dto.TierRequest) error {
	if req == nil {
		return ErrMissingField
	}
	seenLevels := make(map[int]bool, len(req.Levels))
	for _, lr := range req.Levels {
		if lr.LevelNumber < 1 {
			return fmt.Errorf("level number %d: %w", lr.LevelNumber, ErrBadRequest)
		}
		if seenLevels[lr.LevelNumber] {
			return fmt.Errorf("level %d declared twice: %w", lr.LevelNumber, ErrBadRequest)
		}
		seenLevels[lr.LevelNumber] = true

		if len(lr.Goals) == 0 {
			return fmt.Errorf("level %d has no goals: %w", lr.LevelNumber, ErrMissingField)
		}
		for _, g := range lr.Goals {
			if !models.GoalType(g.Type).Valid() {
				return fmt.Errorf("level %d goal %q: %w", lr.LevelNumber, g.Type, ErrInvalidGoalType)
			}
			if g.Target <= 0 {
				return fmt.Errorf("level %d goal %s target must be positive: %w", lr.LevelNumber, g.Type, ErrBadRequest)
			}
		}

		seenRewards := make(map[string]bool, len(lr.Rewards))
		for _, r := range lr.Rewards {
			if r.ID == "" {
				continue
			}
			if seenRewards[r.ID] {
				return fmt.Errorf("level %d reward %q declared twice: %w", lr.LevelNumber, r.ID, ErrBadRequest)
			}
			seenRewards[r.ID] = true
		}
	}
	return nil
}

// entryLevel is level 1 of tier, or its lowest active level when level 1 is inactive
func entryLevel(tier *models.Tier) *models.Level {
	level := tier.Level(1)
	if level == nil || !level.IsActive {
		level = tier.LowestActiveLevel()
	}
	return level
}

// playableTier returns from, or the first tier ranked after it, that has an active level
func playableTier(tiers []*models.Tier, from *models.Tier) *models.Tier {
	for t := from; t != nil; t = nextTier(tiers, t.Order, t.ID) {
		if entryLevel(t) != nil {
			return t
		}
	}
	return nil
}

// pointAtTier moves the progress to the entry level of tier. tier must come from playableTier.
func pointAtTier(progress *models.UserTierProgress, tier *models.Tier) {
	id := tier.ID
	level := entryLevel(tier)
	progress.CurrentTierID = &id
	progress.CurrentLevel = level.LevelNumber
	progress.GoalProgress = models.NewGoalProgress(level.Goals)
}

// syncGoalShape rebuilds the vector when the goal set changed shape and refreshes targets otherwise
func syncGoalShape(progress *models.UserTierProgress, level *models.Level) {
	if !progress.MatchesShape(level.Goals) {
		progress.GoalProgress = models.NewGoalProgress(level.Goals)
		return
	}
	for i, g := range level.Goals {
		progress.GoalProgress[i].Target = g.Target
	}
}

func levelComplete(progress *models.UserTierProgress) bool {
	if len(progress.GoalProgress) == 0 {
		return false
	}
	for _, g := range progress.GoalProgress {
		if !g.Met() {
			return false
		}
	}
	return true
}

func findTier(tiers []*models.Tier, id uint) *models.Tier {
	for _, t := range tiers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// nextTier returns the first active tier ranked after (order, id). tiers is sorted by rank.
func nextTier(tiers []*models.Tier, order int, id uint) *models.Tier {
	for _, t := range tiers {
		if t.ID == id {
			continue
		}
		if t.Order > order || (t.Order == order && t.ID > id) {
			return t
		}
	}
	return nil
}

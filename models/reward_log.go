package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RewardLogAction records what a reward log entry represents
type RewardLogAction string

const (
	RewardLogActionRewardEarned    RewardLogAction = "REWARD_EARNED"
	RewardLogActionRewardCollected RewardLogAction = "REWARD_COLLECTED"
	RewardLogActionLevelCompleted  RewardLogAction = "LEVEL_COMPLETED"
	RewardLogActionTierCompleted   RewardLogAction = "TIER_COMPLETED"
)

// RewardStatus is the fulfilment state of a reward
type RewardStatus string

const (
	RewardStatusPending    RewardStatus = "PENDING"
	RewardStatusProcessing RewardStatus = "PROCESSING"
	RewardStatusPaid       RewardStatus = "PAID"
	RewardStatusDelivered  RewardStatus = "DELIVERED"
)

// IsAdminSettable reports whether an admin may move a collected reward to s
func (s RewardStatus) IsAdminSettable() bool {
	switch s {
	case RewardStatusProcessing, RewardStatusPaid, RewardStatusDelivered:
		return true
	default:
		return false
	}
}

// CollectedReward is the snapshot recorded each time a user redeems a spin
type CollectedReward struct {
	ID              string       `json:"id"`
	RewardID        string       `json:"reward_id"`
	Type            RewardType   `json:"type"`
	Label           string       `json:"label"`
	Value           string       `json:"value"`
	Status          RewardStatus `json:"status"`
	ClaimedAt       time.Time    `json:"claimed_at"`
	CollectedAt     time.Time    `json:"collected_at"`
	StatusUpdatedAt *time.Time   `json:"status_updated_at,omitempty"`
}

// RewardLog is a reward grant issued on level completion, or a tier completion marker
type RewardLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	UserID     uint      `gorm:"not null;index:idx_reward_log_owner" json:"user_id"`
	AdminID    uint      `gorm:"not null;index:idx_reward_log_owner" json:"admin_id"`
	PlatformID uint      `gorm:"not null" json:"platform_id"`
	TierID     uint      `gorm:"not null;index" json:"tier_id"`
	Level      int       `gorm:"not null" json:"level"`

	Action   RewardLogAction    `gorm:"type:varchar(30);not null;index" json:"action"`
	Mechanic RedemptionMechanic `gorm:"type:varchar(20)" json:"mechanic"`
	RewardID string             `gorm:"type:varchar(64)" json:"reward_id"`

	// Rewards is the terms snapshot of the level's active rewards at issuance
	Rewards          datatypes.JSONSlice[RewardDefinition] `gorm:"column:rewards" json:"rewards"`
	CollectedRewards datatypes.JSONSlice[CollectedReward]  `gorm:"column:collected_rewards" json:"collected_rewards"`
	SpinCount        int                                   `gorm:"not null;default:0" json:"spin_count"`
	IsCollected      bool                                  `gorm:"not null;default:false" json:"is_collected"`

	Status          RewardStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	StatusUpdatedAt *time.Time   `json:"status_updated_at,omitempty"`
	CollectedAt     *time.Time   `json:"collected_at,omitempty"`
	Version         int64        `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RewardLog) TableName() string {
	return "reward_logs"
}

// Reward returns the snapshot reward with the given id
func (r *RewardLog) Reward(rewardID string) (RewardDefinition, bool) {
	for _, def := range r.Rewards {
		if def.ID == rewardID {
			return def, true
		}
	}
	return RewardDefinition{}, false
}

// CollectedIndex returns the index of the collected snapshot with the given id, or -1
func (r *RewardLog) CollectedIndex(collectedID string) int {
	for i, c := range r.CollectedRewards {
		if c.ID == collectedID {
			return i
		}
	}
	return -1
}

// RewardLogFilter represents filter criteria for reward log queries
type RewardLogFilter struct {
	UserID  *uint
	AdminID *uint
	TierID  *uint
	Action  *RewardLogAction
}

package dto

import (
	"github.com/amirphl/affiliate-engine/models"
)

// GoalRequest is one goal of a level
type GoalRequest struct {
	Type   string `json:"type" validate:"required,oneof=ORDERS CLICKS SALES"`
	Target int64  `json:"target" validate:"min=1"`
}

// RewardRequest is a reward attached to a level. An empty ID is generated.
type RewardRequest struct {
	ID       string `json:"id" validate:"omitempty,max=64"`
	Type     string `json:"type" validate:"required,oneof=CASH COUPON GIFT POINTS"`
	Label    string `json:"label" validate:"required,max=255"`
	Value    string `json:"value" validate:"max=255"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// LevelRequest describes a level of a tier
type LevelRequest struct {
	LevelNumber    int             `json:"level_number" validate:"min=1"`
	Name           string          `json:"name" validate:"max=255"`
	IsActive       *bool           `json:"is_active,omitempty"`
	Mechanic       string          `json:"mechanic" validate:"omitempty,oneof=SPIN SCRATCHCARD"`
	SpinsPerReward int             `json:"spins_per_reward" validate:"min=0,max=100"`
	Goals          []GoalRequest   `json:"goals" validate:"required,min=1,dive"`
	Rewards        []RewardRequest `json:"rewards" validate:"dive"`
}

// TierRequest creates or updates a tier with its levels
type TierRequest struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Order    int            `json:"order" validate:"min=0"`
	IsActive *bool          `json:"is_active,omitempty"`
	Levels   []LevelRequest `json:"levels" validate:"dive"`
}

// TierProgressResponse is the progress of an affiliate together with the definitions it points at
type TierProgressResponse struct {
	Progress *models.UserTierProgress `json:"progress"`
	Tier     *models.Tier             `json:"tier,omitempty"`
	Level    *models.Level            `json:"level,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GoalType is the measurable dimension of a level goal
type GoalType string

const (
	GoalTypeOrders GoalType = "ORDERS"
	GoalTypeClicks GoalType = "CLICKS"
	GoalTypeSales  GoalType = "SALES"
)

// Valid checks if the goal type is valid
func (g GoalType) Valid() bool {
	switch g {
	case GoalTypeOrders, GoalTypeClicks, GoalTypeSales:
		return true
	default:
		return false
	}
}

// RedemptionMechanic is how a user redeems a reward grant
type RedemptionMechanic string

const (
	RedemptionMechanicSpin        RedemptionMechanic = "SPIN"
	RedemptionMechanicScratchcard RedemptionMechanic = "SCRATCHCARD"
)

// RewardType classifies what a reward pays out
type RewardType string

const (
	RewardTypeCash   RewardType = "CASH"
	RewardTypeCoupon RewardType = "COUPON"
	RewardTypeGift   RewardType = "GIFT"
	RewardTypePoints RewardType = "POINTS"
)

// Goal is one target of a level
type Goal struct {
	Type   GoalType `json:"type"`
	Target int64    `json:"target"`
}

// RewardDefinition is a reward an admin attaches to a level
type RewardDefinition struct {
	ID       string     `json:"id"`
	Type     RewardType `json:"type"`
	Label    string     `json:"label"`
	Value    string     `json:"value"`
	IsActive bool       `json:"is_active"`
}

// Tier is an ordered program of levels owned by an admin on a platform
type Tier struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	AdminID    uint      `gorm:"not null;index:idx_tier_owner" json:"admin_id"`
	PlatformID uint      `gorm:"not null;index:idx_tier_owner" json:"platform_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Order      int       `gorm:"column:tier_order;not null" json:"order"`
	IsActive   bool      `gorm:"not null" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Levels []Level `gorm:"foreignKey:TierID" json:"levels,omitempty"`
}

func (Tier) TableName() string {
	return "tiers"
}

// Level returns the level with the given number, or nil
func (t *Tier) Level(number int) *Level {
	for i := range t.Levels {
		if t.Levels[i].LevelNumber == number {
			return &t.Levels[i]
		}
	}
	return nil
}

// LowestActiveLevel returns the active level with the smallest number, or nil
func (t *Tier) LowestActiveLevel() *Level {
	var lowest *Level
	for i := range t.Levels {
		l := &t.Levels[i]
		if !l.IsActive {
			continue
		}
		if lowest == nil || l.LevelNumber < lowest.LevelNumber {
			lowest = l
		}
	}
	return lowest
}

// Level is a milestone inside a tier
type Level struct {
	ID             uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	TierID         uint               `gorm:"not null;uniqueIndex:idx_level_tier_number" json:"tier_id"`
	LevelNumber    int                `gorm:"not null;uniqueIndex:idx_level_tier_number" json:"level_number"`
	Name           string             `gorm:"type:varchar(255)" json:"name"`
	IsActive       bool               `gorm:"not null" json:"is_active"`
	Mechanic       RedemptionMechanic `gorm:"type:varchar(20);not null;default:'SPIN'" json:"mechanic"`
	SpinsPerReward int                `gorm:"not null;default:1" json:"spins_per_reward"`

	Goals   datatypes.JSONSlice[Goal]             `gorm:"column:goals" json:"goals"`
	Rewards datatypes.JSONSlice[RewardDefinition] `gorm:"column:rewards" json:"rewards"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Level) TableName() string {
	return "levels"
}

// DeclaresGoal reports whether the level has a goal of the given type
func (l *Level) DeclaresGoal(goalType GoalType) bool {
	for _, g := range l.Goals {
		if g.Type == goalType {
			return true
		}
	}
	return false
}

// ActiveRewards returns the rewards currently offered by the level
func (l *Level) ActiveRewards() []RewardDefinition {
	var out []RewardDefinition
	for _, r := range l.Rewards {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

// TierFilter represents filter criteria for tier queries
type TierFilter struct {
	AdminID    *uint
	PlatformID *uint
	IsActive   *bool
}

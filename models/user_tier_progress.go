package models

import (
	"time"

	"gorm.io/datatypes"
)

// GoalProgress is one slot of the progress vector, aligned with the level's goals
type GoalProgress struct {
	Type     GoalType `json:"type"`
	Target   int64    `json:"target"`
	Progress int64    `json:"progress"`
}

// Met reports whether the slot reached its target
func (g GoalProgress) Met() bool {
	return g.Progress >= g.Target
}

// AchievementEntry records a completed level
type AchievementEntry struct {
	TierID     uint      `json:"tier_id"`
	Level      int       `json:"level"`
	AchievedAt time.Time `json:"achieved_at"`
}

// ProgressKey identifies a progress row
type ProgressKey struct {
	UserID     uint
	AdminID    uint
	PlatformID uint
}

// UserTierProgress is the tier state machine of one user on one admin platform
type UserTierProgress struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint `gorm:"not null;uniqueIndex:idx_progress_owner" json:"user_id"`
	AdminID    uint `gorm:"not null;uniqueIndex:idx_progress_owner" json:"admin_id"`
	PlatformID uint `gorm:"not null;uniqueIndex:idx_progress_owner" json:"platform_id"`

	CurrentTierID   *uint                                 `json:"current_tier_id"`
	CurrentLevel    int                                   `gorm:"not null;default:0" json:"current_level"`
	GoalProgress    datatypes.JSONSlice[GoalProgress]     `gorm:"column:goal_progress" json:"goal_progress"`
	IsTierCompleted bool                                  `gorm:"not null;default:false" json:"is_tier_completed"`
	History         datatypes.JSONSlice[AchievementEntry] `gorm:"column:history" json:"history"`
	Version         int64                                 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UserTierProgress) TableName() string {
	return "user_tier_progresses"
}

// MatchesShape reports whether the stored vector has the same goal types, slot by slot, as goals
func (p *UserTierProgress) MatchesShape(goals []Goal) bool {
	if len(p.GoalProgress) != len(goals) {
		return false
	}
	for i, g := range goals {
		if p.GoalProgress[i].Type != g.Type {
			return false
		}
	}
	return true
}

// NewGoalProgress builds a zeroed progress vector for goals
func NewGoalProgress(goals []Goal) datatypes.JSONSlice[GoalProgress] {
	out := make(datatypes.JSONSlice[GoalProgress], 0, len(goals))
	for _, g := range goals {
		out = append(out, GoalProgress{Type: g.Type, Target: g.Target})
	}
	return out
}

// ProcessedGoalEvent marks a goal event as applied to a progress row
type ProcessedGoalEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	ProgressID uint      `gorm:"not null;uniqueIndex:idx_goal_event"`
	EventKey   string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_goal_event"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProcessedGoalEvent) TableName() string {
	return "processed_goal_events"
}

// UserTierProgressFilter represents filter criteria for progress queries
type UserTierProgressFilter struct {
	UserID          *uint
	AdminID         *uint
	PlatformID      *uint
	IsTierCompleted *bool
}

package models

import (
	"time"
)

// SettlementRunStatus is the outcome of a settlement batch invocation
type SettlementRunStatus string

const (
	SettlementRunStatusRunning   SettlementRunStatus = "RUNNING"
	SettlementRunStatusCompleted SettlementRunStatus = "COMPLETED"
	SettlementRunStatusFailed    SettlementRunStatus = "FAILED"
)

// SettlementRun records one execution of the settlement batch
type SettlementRun struct {
	ID      uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	Status  SettlementRunStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Trigger string              `gorm:"type:varchar(20);not null" json:"trigger"` // schedule, manual

	Scanned int `gorm:"not null;default:0" json:"scanned"`
	Settled int `gorm:"not null;default:0" json:"settled"`
	Skipped int `gorm:"not null;default:0" json:"skipped"`
	Failed  int `gorm:"not null;default:0" json:"failed"`

	Error      *string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (SettlementRun) TableName() string {
	return "settlement_runs"
}

// SettlementRunFilter represents filter criteria for settlement run queries
type SettlementRunFilter struct {
	Status *SettlementRunStatus
}

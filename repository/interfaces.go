// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// AffiliateUserRepository defines operations for affiliates
type AffiliateUserRepository interface {
	Repository[models.AffiliateUser, models.AffiliateUserFilter]
	ByReferralID(ctx context.Context, referralID string) (*models.AffiliateUser, error)
	IncrementCounters(ctx context.Context, userID uint, clicks, orders int64, sales decimal.Decimal) error
	AdjustCommission(ctx context.Context, userID uint, pendingDelta, paidDelta decimal.Decimal) error
	AddWithdrawn(ctx context.Context, userID uint, delta decimal.Decimal) error
	TransitionStatus(ctx context.Context, id uint, from []models.AffiliateUserStatus, to models.AffiliateUserStatus) (bool, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByAccessKey(ctx context.Context, accessKey string) (*models.Campaign, error)
	IncrementCounters(ctx context.Context, campaignID uint, clicks, orders int64, sales decimal.Decimal) error
	AdjustCommission(ctx context.Context, campaignID uint, pendingDelta, paidDelta decimal.Decimal, percentage *decimal.Decimal) error
}

// PlatformConfigRepository defines operations for per-admin platform settings
type PlatformConfigRepository interface {
	Repository[models.PlatformConfig, models.PlatformConfigFilter]
	ByAdminID(ctx context.Context, adminID uint) (*models.PlatformConfig, error)
	Update(ctx context.Context, cfg *models.PlatformConfig) error
}

// CommissionRecordRepository defines operations for commission records
type CommissionRecordRepository interface {
	Repository[models.CommissionRecord, models.CommissionRecordFilter]
	ByCampaignAndOrder(ctx context.Context, campaignID uint, orderID string) (*models.CommissionRecord, error)
	ListPendingAfter(ctx context.Context, afterID uint, limit int) ([]*models.CommissionRecord, error)
	// TransitionStatus moves a record from one status to another only if it is still in from.
	// It reports false when another writer got there first.
	TransitionStatus(ctx context.Context, id uint, from, to models.CommissionStatus, fields map[string]any) (bool, error)
}

// WalletRepository defines operations for wallets and their ledger
type WalletRepository interface {
	Repository[models.Wallet, models.WalletFilter]
	ByUserAndAdmin(ctx context.Context, userID, adminID uint) (*models.Wallet, error)
	// Ensure inserts the wallet unless one exists for its (user, admin) and returns the stored row
	Ensure(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	ApplyDelta(ctx context.Context, walletID uint, delta models.WalletAggregates) error
	// ApplyDeltaIfBalance applies delta only while balance_amount >= minBalance
	ApplyDeltaIfBalance(ctx context.Context, walletID uint, delta models.WalletAggregates, minBalance decimal.Decimal) (bool, error)
	OverwriteAggregates(ctx context.Context, walletID uint, agg models.WalletAggregates) error

	AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error
	TransactionByReference(ctx context.Context, walletID uint, txType models.WalletTransactionType, referenceID uint) (*models.WalletTransaction, error)
	TransitionTransaction(ctx context.Context, txID uint, from, to models.WalletTransactionStatus) (bool, error)
	Transactions(ctx context.Context, walletID uint, limit, offset int) ([]*models.WalletTransaction, error)
}

// DailyActionCounterRepository defines operations for daily activity counters
type DailyActionCounterRepository interface {
	Repository[models.DailyActionCounter, models.DailyActionCounterFilter]
	ByDay(ctx context.Context, userID, adminID uint, day string) (*models.DailyActionCounter, error)
	Increment(ctx context.Context, userID, adminID uint, day string, delta models.DailyActionDelta) error
}

// TierRepository defines operations for tiers and their levels
type TierRepository interface {
	Repository[models.Tier, models.TierFilter]
	ByIDWithLevels(ctx context.Context, id uint) (*models.Tier, error)
	// ActiveTiers returns active tiers of an owner ordered by rank, with levels ordered by number
	ActiveTiers(ctx context.Context, adminID, platformID uint) ([]*models.Tier, error)
	UpdateTier(ctx context.Context, tier *models.Tier) error
	// SaveLevel inserts a new level or updates an existing one
	SaveLevel(ctx context.Context, level *models.Level) error
}

// UserTierProgressRepository defines operations for tier progress
type UserTierProgressRepository interface {
	Repository[models.UserTierProgress, models.UserTierProgressFilter]
	ByKey(ctx context.Context, key models.ProgressKey) (*models.UserTierProgress, error)
	// UpdateVersioned writes progress if its version is unchanged and bumps the version
	UpdateVersioned(ctx context.Context, progress *models.UserTierProgress) (bool, error)
	// MarkEventProcessed records eventKey for the progress; false means it was seen before
	MarkEventProcessed(ctx context.Context, progressID uint, eventKey string) (bool, error)
}

// RewardLogRepository defines operations for reward logs
type RewardLogRepository interface {
	Repository[models.RewardLog, models.RewardLogFilter]
	ByIDAndUser(ctx context.Context, id, userID uint) (*models.RewardLog, error)
	ByIDAndAdmin(ctx context.Context, id, adminID uint) (*models.RewardLog, error)
	UpdateVersioned(ctx context.Context, log *models.RewardLog) (bool, error)
}

// WithdrawalRepository defines operations for withdrawals
type WithdrawalRepository interface {
	Repository[models.Withdrawal, models.WithdrawalFilter]
	ByPayoutID(ctx context.Context, payoutID string) (*models.Withdrawal, error)
	TransitionStatus(ctx context.Context, id uint, from []models.WithdrawalStatus, to models.WithdrawalStatus, fields map[string]any) (bool, error)
}

// NotificationRepository defines operations for notifications
type NotificationRepository interface {
	Repository[models.Notification, models.NotificationFilter]
	MarkRead(ctx context.Context, recipientType models.RecipientType, recipientID, notificationID uint) error
}

// SettlementRunRepository defines operations for settlement runs
type SettlementRunRepository interface {
	Repository[models.SettlementRun, models.SettlementRunFilter]
	Finish(ctx context.Context, run *models.SettlementRun) error
}

package utils

import (
	"time"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Settlement constants
const (
	// DefaultReturnPeriodDays is used when a campaign has no positive return period
	DefaultReturnPeriodDays = 1

	// SettlementGraceDays is the extra full day past the return window before payout
	SettlementGraceDays = 1

	// DefaultSettlementBatchSize is the page size for scanning pending commissions
	DefaultSettlementBatchSize = 200

	// SettlementLockKey is the redis key guarding a settlement run
	SettlementLockKey = "affiliate:settlement:lock"

	// DefaultSettlementLockTTL bounds how long a crashed run can hold the lock
	DefaultSettlementLockTTL = 30 * time.Minute
)

// Tier engine constants
const (
	// MaxProgressUpdateAttempts bounds optimistic-lock retries on tier progress
	MaxProgressUpdateAttempts = 5

	// DefaultSpinsPerReward is the redemption allowance of a freshly issued reward log
	DefaultSpinsPerReward = 1
)

// Money constants
const (
	// MoneyScale is the number of decimal places persisted for currency
	MoneyScale = 2
)

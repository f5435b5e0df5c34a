// Package businessflow contains the core business logic of the affiliate engine
package businessflow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/amirphl/affiliate-engine/repository"
)

// Error kinds, used as BusinessError codes and as the API error code
const (
	KindNotFound           = "NotFound"
	KindMissingField       = "MissingField"
	KindBadRequest         = "BadRequest"
	KindUnauthorized       = "Unauthorized"
	KindForbidden          = "Forbidden"
	KindAlreadyExists      = "AlreadyExists"
	KindConflict           = "Conflict"
	KindConfigurationError = "ConfigurationError"
	KindInternal           = "InternalError"
)

// Business flow error constants
var (
	// Kind roots. Every specific sentinel below wraps one of them.
	ErrNotFound      = errors.New("not found")
	ErrMissingField  = errors.New("missing field")
	ErrBadRequest    = errors.New("bad request")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")

	// Affiliate and campaign errors
	ErrAffiliateNotFound     = fmt.Errorf("affiliate not found: %w", ErrNotFound)
	ErrAffiliateNotApproved  = fmt.Errorf("affiliate is not approved: %w", ErrForbidden)
	ErrCampaignNotFound      = fmt.Errorf("campaign not found: %w", ErrNotFound)
	ErrCampaignAccessDenied  = fmt.Errorf("campaign does not belong to affiliate: %w", ErrForbidden)
	ErrCampaignInactive      = fmt.Errorf("campaign is inactive: %w", ErrForbidden)
	ErrPlatformConfigMissing = fmt.Errorf("platform config not found: %w", ErrConfiguration)
	ErrAffiliateStatus       = fmt.Errorf("affiliate status does not allow this change: %w", ErrConflict)
	ErrReferralIDExhausted   = fmt.Errorf("could not allocate a unique referral id: %w", ErrConflict)

	// Commission errors
	ErrCommissionNotFound      = fmt.Errorf("commission not found: %w", ErrNotFound)
	ErrCommissionAlreadyExists = fmt.Errorf("commission already recorded for order: %w", ErrAlreadyExists)
	ErrCommissionNotPending    = fmt.Errorf("commission is not pending: %w", ErrConflict)
	ErrCommissionNotSettled    = fmt.Errorf("commission is not settled: %w", ErrConflict)
	ErrEmptyOrder              = fmt.Errorf("order has no products: %w", ErrMissingField)

	// Wallet errors
	ErrWalletNotFound            = fmt.Errorf("wallet not found: %w", ErrNotFound)
	ErrWalletTransactionNotFound = fmt.Errorf("wallet transaction not found: %w", ErrNotFound)
	ErrAlreadyCredited           = fmt.Errorf("commission already credited: %w", ErrAlreadyExists)
	ErrInsufficientBalance       = fmt.Errorf("insufficient balance: %w", ErrBadRequest)
	ErrInvalidAmount             = fmt.Errorf("amount must be positive: %w", ErrBadRequest)
	ErrLedgerEntryStateMismatch  = fmt.Errorf("ledger entry is not in the expected state: %w", ErrConflict)

	// Settlement errors
	ErrSettlementInProgress  = fmt.Errorf("settlement already in progress: %w", ErrConflict)
	ErrSettlementRunNotFound = fmt.Errorf("settlement run not found: %w", ErrNotFound)

	// Tier errors
	ErrNoActiveTier      = fmt.Errorf("no active tier: %w", ErrNotFound)
	ErrTierNotFound      = fmt.Errorf("tier not found: %w", ErrNotFound)
	ErrInvalidGoalType   = fmt.Errorf("invalid goal type: %w", ErrBadRequest)
	ErrProgressContended = fmt.Errorf("tier progress updated concurrently: %w", ErrConflict)

	// Reward errors
	ErrRewardLogNotFound       = fmt.Errorf("reward log not found: %w", ErrNotFound)
	ErrRewardNotFound          = fmt.Errorf("reward not found: %w", ErrNotFound)
	ErrCollectedRewardNotFound = fmt.Errorf("collected reward not found: %w", ErrNotFound)
	ErrAlreadyClaimed          = fmt.Errorf("reward already claimed: %w", ErrAlreadyExists)
	ErrInvalidRewardStatus     = fmt.Errorf("invalid reward status: %w", ErrBadRequest)

	// Withdrawal errors
	ErrWithdrawalNotFound      = fmt.Errorf("withdrawal not found: %w", ErrNotFound)
	ErrWithdrawalNotPending    = fmt.Errorf("withdrawal is not pending: %w", ErrConflict)
	ErrFundAccountMissing      = fmt.Errorf("affiliate has no fund account: %w", ErrBadRequest)
	ErrInvalidWebhookSignature = fmt.Errorf("invalid webhook signature: %w", ErrUnauthorized)
	ErrInvalidWebhookPayload   = fmt.Errorf("invalid webhook payload: %w", ErrBadRequest)
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsMissingField(err error) bool {
	return errors.Is(err, ErrMissingField)
}

func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || repository.IsDuplicateKeyError(err)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsAlreadyCredited(err error) bool {
	return errors.Is(err, ErrAlreadyCredited)
}

func IsAlreadyClaimed(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed)
}

func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

func IsSettlementInProgress(err error) bool {
	return errors.Is(err, ErrSettlementInProgress)
}

func IsNoActiveTier(err error) bool {
	return errors.Is(err, ErrNoActiveTier)
}

func IsInvalidWebhookSignature(err error) bool {
	return errors.Is(err, ErrInvalidWebhookSignature)
}

// ErrorKind resolves the kind name of err from its sentinel chain
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return KindNotFound
	case IsMissingField(err):
		return KindMissingField
	case IsBadRequest(err):
		return KindBadRequest
	case IsUnauthorized(err):
		return KindUnauthorized
	case IsForbidden(err):
		return KindForbidden
	case IsAlreadyExists(err):
		return KindAlreadyExists
	case IsConflict(err):
		return KindConflict
	case IsConfigurationError(err):
		return KindConfigurationError
	default:
		return KindInternal
	}
}

// StatusForError maps err to an HTTP status code
func StatusForError(err error) int {
	switch ErrorKind(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindMissingField, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindAlreadyExists, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

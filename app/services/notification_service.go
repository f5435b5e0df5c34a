// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

// NotificationPayload is implemented by the closed set of notification variants
type NotificationPayload interface {
	Kind() models.NotificationKind
	Title() string
	Message() string
}

// Recipient addresses a notification
type Recipient struct {
	Type  models.RecipientType
	ID    uint
	Email *string
}

// UserRecipient addresses an affiliate
func UserRecipient(user *models.AffiliateUser) Recipient {
	return Recipient{Type: models.RecipientTypeUser, ID: user.ID, Email: user.Email}
}

// AdminRecipient addresses an admin
func AdminRecipient(adminID uint) Recipient {
	return Recipient{Type: models.RecipientTypeAdmin, ID: adminID}
}

// CommissionSettledUser tells an affiliate a commission was paid into the wallet
type CommissionSettledUser struct {
	CommissionID    uint            `json:"commission_id"`
	CampaignID      uint            `json:"campaign_id"`
	OrderID         string          `json:"order_id"`
	FinalCommission decimal.Decimal `json:"final_commission"`
}

func (CommissionSettledUser) Kind() models.NotificationKind {
	return models.NotificationKindCommissionSettledUser
}
func (CommissionSettledUser) Title() string { return "Commission settled" }
func (n CommissionSettledUser) Message() string {
	return fmt.Sprintf("Your commission of %s for order %s was added to your wallet.", n.FinalCommission.StringFixed(utils.MoneyScale), n.OrderID)
}

// CommissionSettledAdmin tells the paying admin a commission was settled
type CommissionSettledAdmin struct {
	CommissionID    uint            `json:"commission_id"`
	UserID          uint            `json:"user_id"`
	UserName        string          `json:"user_name"`
	OrderID         string          `json:"order_id"`
	FinalCommission decimal.Decimal `json:"final_commission"`
}

func (CommissionSettledAdmin) Kind() models.NotificationKind {
	return models.NotificationKindCommissionSettledAdmin
}
func (CommissionSettledAdmin) Title() string { return "Affiliate commission settled" }
func (n CommissionSettledAdmin) Message() string {
	return fmt.Sprintf("Commission of %s for order %s was settled to %s.", n.FinalCommission.StringFixed(utils.MoneyScale), n.OrderID, n.UserName)
}

// RewardEarned tells an affiliate a level reward was issued
type RewardEarned struct {
	RewardLogID uint   `json:"reward_log_id"`
	TierID      uint   `json:"tier_id"`
	Level       int    `json:"level"`
	RewardLabel string `json:"reward_label"`
	SpinCount   int    `json:"spin_count"`
}

func (RewardEarned) Kind() models.NotificationKind { return models.NotificationKindRewardEarned }
func (RewardEarned) Title() string                 { return "New reward unlocked" }
func (n RewardEarned) Message() string {
	return fmt.Sprintf("You completed level %d and earned %q with %d spin(s).", n.Level, n.RewardLabel, n.SpinCount)
}

// RewardClaimed confirms a redeemed spin
type RewardClaimed struct {
	RewardLogID       uint   `json:"reward_log_id"`
	CollectedRewardID string `json:"collected_reward_id"`
	RewardLabel       string `json:"reward_label"`
	RemainingSpins    int    `json:"remaining_spins"`
}

func (RewardClaimed) Kind() models.NotificationKind { return models.NotificationKindRewardClaimed }
func (RewardClaimed) Title() string                 { return "Reward claimed" }
func (n RewardClaimed) Message() string {
	return fmt.Sprintf("You claimed %q. Remaining spins: %d.", n.RewardLabel, n.RemainingSpins)
}

// TierCompleted tells an affiliate a whole tier was completed
type TierCompleted struct {
	TierID   uint   `json:"tier_id"`
	TierName string `json:"tier_name"`
	NextTier *uint  `json:"next_tier_id,omitempty"`
}

func (TierCompleted) Kind() models.NotificationKind { return models.NotificationKindTierCompleted }
func (TierCompleted) Title() string                 { return "Tier completed" }
func (n TierCompleted) Message() string {
	if n.NextTier == nil {
		return fmt.Sprintf("You completed %s, the final tier.", n.TierName)
	}
	return fmt.Sprintf("You completed %s. The next tier is now open.", n.TierName)
}

// WithdrawalStatusChanged reports a withdrawal transition
type WithdrawalStatusChanged struct {
	WithdrawalID uint                    `json:"withdrawal_id"`
	Amount       decimal.Decimal         `json:"amount"`
	Status       models.WithdrawalStatus `json:"status"`
	Reason       *string                 `json:"reason,omitempty"`
}

func (WithdrawalStatusChanged) Kind() models.NotificationKind {
	return models.NotificationKindWithdrawalStatusChanged
}
func (WithdrawalStatusChanged) Title() string { return "Withdrawal update" }
func (n WithdrawalStatusChanged) Message() string {
	msg := fmt.Sprintf("Your withdrawal of %s is now %s.", n.Amount.StringFixed(utils.MoneyScale), strings.ToLower(string(n.Status)))
	if n.Reason != nil && *n.Reason != "" {
		msg += " Reason: " + *n.Reason
	}
	return msg
}

// NotificationService persists notifications and fans them out to email
type NotificationService interface {
	Notify(ctx context.Context, recipient Recipient, payload NotificationPayload) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	notificationRepo repository.NotificationRepository
	emailProvider    EmailProvider
}

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(email, subject, message string) error
}

// NewNotificationService creates a new notification service. A nil email provider disables email.
func NewNotificationService(notificationRepo repository.NotificationRepository, emailProvider EmailProvider) NotificationService {
	return &NotificationServiceImpl{
		notificationRepo: notificationRepo,
		emailProvider:    emailProvider,
	}
}

// Notify stores the notification and emails it when the recipient has an address
func (s *NotificationServiceImpl) Notify(ctx context.Context, recipient Recipient, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", payload.Kind(), err)
	}

	notification := &models.Notification{
		RecipientType: recipient.Type,
		RecipientID:   recipient.ID,
		Kind:          payload.Kind(),
		Title:         payload.Title(),
		Message:       payload.Message(),
		Payload:       body,
		CreatedAt:     utils.UTCNow(),
	}
	if err := s.notificationRepo.Save(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist %s notification: %w", payload.Kind(), err)
	}

	if s.emailProvider == nil || recipient.Email == nil || !strings.Contains(*recipient.Email, "@") {
		return nil
	}
	if err := s.emailProvider.SendEmail(*recipient.Email, payload.Title(), payload.Message()); err != nil {
		return fmt.Errorf("failed to email %s notification: %w", payload.Kind(), err)
	}
	return nil
}

type MockEmailProvider struct{}

func NewMockEmailProvider() EmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(email, subject, message string) error {
	log.Printf("Email sent to %s [%s]: %s", email, subject, message)
	return nil
}

type SMTPEmailProvider struct {
	dialer    *gomail.Dialer
	fromEmail string
}

func NewSMTPEmailProvider(host string, port int, username, password, fromEmail string) EmailProvider {
	return &SMTPEmailProvider{
		dialer:    gomail.NewDialer(host, port, username, password),
		fromEmail: fromEmail,
	}
}

func (p *SMTPEmailProvider) SendEmail(email, subject, message string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", p.fromEmail)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", message)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email, err)
	}
	return nil
}

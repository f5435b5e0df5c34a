// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"log"

	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
)

// Page is a limit/offset window for list operations
type Page struct {
	Limit  int
	Offset int
}

// normalize clamps the page to sane bounds
func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// roundMoney rounds an amount to the persisted currency scale
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(utils.MoneyScale)
}

// notify delivers a notification and only logs failures
func notify(ctx context.Context, notifier services.NotificationService, recipient services.Recipient, payload services.NotificationPayload) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, recipient, payload); err != nil {
		log.Printf("notification %s to %s %d failed: %v", payload.Kind(), recipient.Type, recipient.ID, err)
	}
}

func getAffiliate(ctx context.Context, repo repository.AffiliateUserRepository, id uint) (*models.AffiliateUser, error) {
	user, err := repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAffiliateNotFound
	}
	return user, nil
}

package businessflow

import (
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TDSResult is the withholding applied to a gross commission
type TDSResult struct {
	TDSAmount       decimal.Decimal `json:"tds_amount"`
	FinalCommission decimal.Decimal `json:"final_commission"`
}

// CalculateTDS computes the tax withheld from commissionAmount.
// The final commission is not clamped and goes negative when a fixed TDS exceeds the commission.
func CalculateTDS(commissionAmount decimal.Decimal, linkType models.TDSLinkType, platformConfig *models.PlatformConfig, isTDSEnabled bool) (TDSResult, error) {
	if platformConfig == nil {
		return TDSResult{}, NewBusinessError(KindConfigurationError, "Platform config is required to compute TDS", ErrPlatformConfigMissing)
	}

	if !isTDSEnabled {
		return TDSResult{TDSAmount: decimal.Zero, FinalCommission: commissionAmount}, nil
	}

	method := platformConfig.MethodFor(linkType)

	var tds decimal.Decimal
	switch method.Type {
	case models.TDSMethodPercent:
		tds = roundMoney(commissionAmount.Mul(method.Rate).Div(hundred))
	case models.TDSMethodFixed:
		tds = method.Rate
	default:
		return TDSResult{}, NewBusinessErrorf(KindConfigurationError, "Unknown TDS method %q", ErrConfiguration, method.Type)
	}

	return TDSResult{
		TDSAmount:       tds,
		FinalCommission: commissionAmount.Sub(tds),
	}, nil
}

// CalculateCommission returns the gross commission an affiliate earns on a purchase
func CalculateCommission(purchaseAmount decimal.Decimal, user *models.AffiliateUser) (decimal.Decimal, error) {
	if user == nil {
		return decimal.Zero, NewBusinessError(KindNotFound, "Affiliate is required to compute commission", ErrAffiliateNotFound)
	}

	switch user.CommissionBasis {
	case models.CommissionBasisPercent:
		return roundMoney(purchaseAmount.Mul(user.CommissionRate).Div(hundred)), nil
	case models.CommissionBasisFixed:
		return roundMoney(user.CommissionRate), nil
	default:
		return decimal.Zero, NewBusinessError(KindConfigurationError, "Invalid commission basis",
			fmt.Errorf("affiliate %d has basis %q: %w", user.ID, user.CommissionBasis, ErrConfiguration))
	}
}

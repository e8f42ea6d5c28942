package rateprofile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DataQuality grades how much historical sales data backs a rate estimate.
type DataQuality string

const (
	QualityInsufficient DataQuality = "INSUFFICIENT"
	QualityLow          DataQuality = "LOW"
	QualityMedium       DataQuality = "MEDIUM"
	QualityHigh         DataQuality = "HIGH"
)

// Thresholds classify sample sufficiency. They come from configuration, not
// constants, so finance can tune them without a release.
type Thresholds struct {
	LowMinPolicies        int
	MediumMinPolicies     int
	HighMinPolicies       int
	HighMinLookbackMonths int
}

// ProductRate is one commission-bearing product available at a contract level.
type ProductRate struct {
	ProductID      uuid.UUID
	ProductName    string
	CommissionRate decimal.Decimal
}

// ProductHistory is the agent's own production for one product inside the
// lookback window.
type ProductHistory struct {
	ProductID    uuid.UUID
	PolicyCount  int
	TotalPremium decimal.Decimal
}

// ProductBreakdown is the per-product slice of a computed profile.
type ProductBreakdown struct {
	ProductID      uuid.UUID       `json:"product_id"`
	ProductName    string          `json:"product_name"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	PremiumWeight  decimal.Decimal `json:"premium_weight"`
	PolicyCount    int             `json:"policy_count"`
	TotalPremium   decimal.Decimal `json:"total_premium"`
}

// Profile is the blended commission-rate recommendation for an agent. It is
// derived, never stored: recomputable at any time from the policy ledger.
type Profile struct {
	AgentID             uuid.UUID          `json:"agent_id"`
	ContractLevel       int                `json:"contract_level"`
	SimpleAverageRate   decimal.Decimal    `json:"simple_average_rate"`
	WeightedAverageRate *decimal.Decimal   `json:"weighted_average_rate,omitempty"`
	RecommendedRate     decimal.Decimal    `json:"recommended_rate"`
	DataQuality         DataQuality        `json:"data_quality"`
	LookbackMonths      int                `json:"lookback_months"`
	ProductBreakdown    []ProductBreakdown `json:"product_breakdown"`
	CalculatedAt        time.Time          `json:"calculated_at"`
}

// Classify grades the sample backing a profile. Zero premium is always
// INSUFFICIENT; otherwise tiers are cut on policy count, with HIGH requiring
// the lookback window to be wide enough to smooth seasonality.
func Classify(totalPolicies, lookbackMonths int, totalPremium decimal.Decimal, th Thresholds) DataQuality {
	if totalPremium.IsZero() || totalPolicies == 0 {
		return QualityInsufficient
	}
	switch {
	case totalPolicies >= th.HighMinPolicies && lookbackMonths >= th.HighMinLookbackMonths:
		return QualityHigh
	case totalPolicies >= th.MediumMinPolicies:
		return QualityMedium
	default:
		return QualityLow
	}
}

// Blend computes a profile from the contract-level product catalog and the
// agent's own production. Pure: same inputs, same output, no side effects.
func Blend(agentID uuid.UUID, contractLevel, lookbackMonths int, now time.Time, rates []ProductRate, history []ProductHistory, th Thresholds) Profile {
	profile := Profile{
		AgentID:        agentID,
		ContractLevel:  contractLevel,
		LookbackMonths: lookbackMonths,
		CalculatedAt:   now,
	}

	if len(rates) > 0 {
		sum := decimal.Zero
		for _, r := range rates {
			sum = sum.Add(r.CommissionRate)
		}
		profile.SimpleAverageRate = sum.Div(decimal.NewFromInt(int64(len(rates))))
	}

	rated := make(map[uuid.UUID]bool, len(rates))
	for _, r := range rates {
		rated[r.ProductID] = true
	}

	// Premium on products with no rate at this contract level carries no
	// signal about the rate, so it is excluded from the weighting.
	historyByProduct := make(map[uuid.UUID]ProductHistory, len(history))
	totalPremium := decimal.Zero
	totalPolicies := 0
	for _, h := range history {
		if !rated[h.ProductID] {
			continue
		}
		historyByProduct[h.ProductID] = h
		totalPremium = totalPremium.Add(h.TotalPremium)
		totalPolicies += h.PolicyCount
	}

	weightedSum := decimal.Zero
	for _, r := range rates {
		h := historyByProduct[r.ProductID]
		breakdown := ProductBreakdown{
			ProductID:      r.ProductID,
			ProductName:    r.ProductName,
			CommissionRate: r.CommissionRate,
			PolicyCount:    h.PolicyCount,
			TotalPremium:   h.TotalPremium,
			PremiumWeight:  decimal.Zero,
		}
		if totalPremium.IsPositive() && h.TotalPremium.IsPositive() {
			breakdown.PremiumWeight = h.TotalPremium.Div(totalPremium)
			weightedSum = weightedSum.Add(r.CommissionRate.Mul(h.TotalPremium))
		}
		profile.ProductBreakdown = append(profile.ProductBreakdown, breakdown)
	}

	profile.DataQuality = Classify(totalPolicies, lookbackMonths, totalPremium, th)

	if profile.DataQuality == QualityInsufficient {
		profile.RecommendedRate = profile.SimpleAverageRate
		return profile
	}

	weighted := weightedSum.Div(totalPremium)
	profile.WeightedAverageRate = &weighted

	if profile.DataQuality == QualityMedium || profile.DataQuality == QualityHigh {
		profile.RecommendedRate = weighted
	} else {
		profile.RecommendedRate = profile.SimpleAverageRate
	}
	return profile
}

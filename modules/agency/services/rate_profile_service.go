package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/modules/agency/domain/rateprofile"
	"github.com/coverline/agency-sdk/pkg/configuration"
)

type LedgerRepository interface {
	ListProductRates(ctx context.Context, tenantID uuid.UUID, contractLevel int) ([]rateprofile.ProductRate, error)
	ListAgentProduction(ctx context.Context, tenantID, agentID uuid.UUID, since time.Time) ([]rateprofile.ProductHistory, error)
}

type RateProfileService struct {
	agents AgentRepository
	ledger LedgerRepository
}

func NewRateProfileService(agents AgentRepository, ledger LedgerRepository) *RateProfileService {
	return &RateProfileService{agents: agents, ledger: ledger}
}

// ComputeProfile blends the agent's recommended commission rate from the
// product catalog at their contract level and their own production inside the
// lookback window. Advisory and side-effect free: recomputable at any time.
func (s *RateProfileService) ComputeProfile(ctx context.Context, tenantID, agentID uuid.UUID, lookbackMonths int) (*rateprofile.Profile, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	if agentID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_INVALID_BODY", "agent_id is required", nil)
	}

	conf := configuration.Use()
	if lookbackMonths <= 0 {
		lookbackMonths = conf.Blending.DefaultLookbackMonths
	}
	thresholds := rateprofile.Thresholds{
		LowMinPolicies:        conf.Blending.LowMinPolicies,
		MediumMinPolicies:     conf.Blending.MediumMinPolicies,
		HighMinPolicies:       conf.Blending.HighMinPolicies,
		HighMinLookbackMonths: conf.Blending.HighMinLookbackMonths,
	}

	profile, err := inTx(ctx, tenantID, func(txCtx context.Context) (*rateprofile.Profile, error) {
		a, err := s.agents.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}

		rates, err := s.ledger.ListProductRates(txCtx, tenantID, a.ContractLevel)
		if err != nil {
			return nil, mapPgError(err)
		}

		now := time.Now().UTC()
		since := now.AddDate(0, -lookbackMonths, 0)
		history, err := s.ledger.ListAgentProduction(txCtx, tenantID, agentID, since)
		if err != nil {
			return nil, mapPgError(err)
		}

		p := rateprofile.Blend(agentID, a.ContractLevel, lookbackMonths, now, rates, history, thresholds)
		return &p, nil
	})
	if err != nil {
		return nil, err
	}

	agencyProfileRequests.WithLabelValues(string(profile.DataQuality)).Inc()
	return profile, nil
}

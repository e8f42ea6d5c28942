package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/domain/commission"
	"github.com/coverline/agency-sdk/modules/agency/domain/ratetable"
	"github.com/coverline/agency-sdk/pkg/eventbus"
)

type OverrideRepository interface {
	GetEventByIdempotenceKey(ctx context.Context, tenantID, policyID uuid.UUID, kind string, occurredAt time.Time) (*commission.Event, error)
	InsertEvent(ctx context.Context, tenantID uuid.UUID, ev commission.Event) (uuid.UUID, error)
	InsertOverride(ctx context.Context, tenantID uuid.UUID, ov commission.Override) (uuid.UUID, error)
	ListOverridesByEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]commission.Override, error)
	ListOverridesByPolicy(ctx context.Context, tenantID, policyID uuid.UUID) ([]commission.Override, error)
	GetOverride(ctx context.Context, tenantID, overrideID uuid.UUID) (*commission.Override, error)
	UpdateOverrideStatus(ctx context.Context, tenantID, overrideID uuid.UUID, from, to string) (int64, error)
	ChargebackPolicyOverrides(ctx context.Context, tenantID, policyID uuid.UUID, at time.Time) (int64, error)
}

type OverrideService struct {
	repo      OverrideRepository
	agents    AgentRepository
	rates     *ratetable.Table
	publisher eventbus.EventBus
}

func NewOverrideService(repo OverrideRepository, agents AgentRepository, rates *ratetable.Table, publisher eventbus.EventBus) *OverrideService {
	return &OverrideService{repo: repo, agents: agents, rates: rates, publisher: publisher}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type DistributeInput struct {
	SourceAgentID uuid.UUID    `validate:"required"`
	PolicyID      uuid.UUID    `validate:"required"`
	BaseAmount    *money.Money `validate:"required"`
	OccurredAt    time.Time
}

func (in *DistributeInput) validate() error {
	if err := validate.Struct(in); err != nil {
		return newServiceError(http.StatusBadRequest, "AGENCY_INVALID_BODY", "source_agent_id/policy_id/base_commission_amount are required", err)
	}
	if in.BaseAmount.Amount() <= 0 {
		return newServiceError(http.StatusBadRequest, "AGENCY_INVALID_BODY", "base_commission_amount must be positive", nil)
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}
	return nil
}

// Distribute records a base commission event and fans overrides out to the
// source agent's ancestors. Everything commits atomically: a failure on any
// row leaves zero rows for the event. Replaying the same event is a no-op
// that returns the rows written the first time.
func (s *OverrideService) Distribute(ctx context.Context, tenantID uuid.UUID, in DistributeInput) ([]commission.Override, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	if err := in.validate(); err != nil {
		recordDistribution(commission.KindWrite, "invalid")
		return nil, err
	}

	overrides, err := inTx(ctx, tenantID, func(txCtx context.Context) ([]commission.Override, error) {
		existing, err := s.repo.GetEventByIdempotenceKey(txCtx, tenantID, in.PolicyID, commission.KindWrite, in.OccurredAt)
		if err != nil {
			return nil, mapPgError(err)
		}
		if existing != nil {
			recordDistribution(commission.KindWrite, "replay")
			rows, err := s.repo.ListOverridesByEvent(txCtx, tenantID, existing.ID)
			if err != nil {
				return nil, mapPgError(err)
			}
			return rows, nil
		}

		src, err := s.agents.GetByID(txCtx, tenantID, in.SourceAgentID)
		if err != nil {
			svcErr := mapPgError(err)
			var se *ServiceError
			if errors.As(svcErr, &se) && se.Code == "AGENCY_NOT_FOUND" {
				return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_SOURCE_NOT_FOUND", "source agent not found", err)
			}
			return nil, svcErr
		}

		ancestors, err := fetchAncestors(txCtx, s.agents, tenantID, src)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		eventID, err := s.repo.InsertEvent(txCtx, tenantID, commission.Event{
			TenantID:      tenantID,
			SourceAgentID: in.SourceAgentID,
			PolicyID:      in.PolicyID,
			Kind:          commission.KindWrite,
			BaseAmount:    in.BaseAmount,
			OccurredAt:    in.OccurredAt,
			CreatedAt:     now,
		})
		if err != nil {
			return nil, mapPgError(err)
		}

		planned := planOverrides(tenantID, eventID, src, ancestors, in.PolicyID, in.BaseAmount, s.rates, now)
		for i := range planned {
			id, err := s.repo.InsertOverride(txCtx, tenantID, planned[i])
			if err != nil {
				return nil, mapPgError(err)
			}
			planned[i].ID = id
		}
		return planned, nil
	})
	if err != nil {
		recordDistribution(commission.KindWrite, "error")
		return nil, err
	}

	recordDistribution(commission.KindWrite, "ok")
	agencyOverridesEmitted.Add(float64(len(overrides)))
	if s.publisher != nil && len(overrides) > 0 {
		s.publisher.Publish(commission.DistributedEvent{
			TenantID:      tenantID,
			EventID:       overrides[0].EventID,
			PolicyID:      in.PolicyID,
			SourceAgentID: in.SourceAgentID,
			OverrideCount: len(overrides),
			OccurredAt:    in.OccurredAt,
		})
	}
	return overrides, nil
}

// planOverrides walks the ancestor chain nearest-first. A zero rate ends the
// walk; an inactive ancestor is passed over without stopping it. Snapshots of
// depth, contract levels and amounts are taken here so later tree changes
// cannot rewrite the emitted rows.
func planOverrides(tenantID, eventID uuid.UUID, src *agent.Agent, ancestors []*agent.Agent, policyID uuid.UUID, base *money.Money, rates *ratetable.Table, now time.Time) []commission.Override {
	out := make([]commission.Override, 0, len(ancestors))
	for i, anc := range ancestors {
		level := i + 1
		rate := rates.RateForLevel(level, anc.ContractLevel)
		if rate.IsZero() {
			break
		}
		if !anc.IsActive {
			continue
		}
		out = append(out, commission.Override{
			TenantID:             tenantID,
			EventID:              eventID,
			PolicyID:             policyID,
			SourceAgentID:        src.ID,
			BeneficiaryAgentID:   anc.ID,
			HierarchyDepthAtTime: level,
			SourceContractLevel:  src.ContractLevel,
			BeneficiaryContract:  anc.ContractLevel,
			BaseAmount:           base,
			OverrideRate:         rate,
			OverrideAmount:       commission.OverrideAmount(base, rate),
			Status:               commission.StatusPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return out
}

type ChargebackInput struct {
	SourceAgentID uuid.UUID
	PolicyID      uuid.UUID
	BaseAmount    *money.Money
	OccurredAt    time.Time
}

type ChargebackResult struct {
	EventID      uuid.UUID
	RevokedCount int64
	Overrides    []commission.Override
}

// Chargeback records a compensating event for a policy and flips every
// non-paid override row for that policy to chargedback. Paid rows stay as
// they are; money already disbursed is reconciled outside this engine.
func (s *OverrideService) Chargeback(ctx context.Context, tenantID uuid.UUID, in ChargebackInput) (*ChargebackResult, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	di := DistributeInput(in)
	if err := di.validate(); err != nil {
		recordDistribution(commission.KindChargeback, "invalid")
		return nil, err
	}
	in.OccurredAt = di.OccurredAt

	result, err := inTx(ctx, tenantID, func(txCtx context.Context) (*ChargebackResult, error) {
		existing, err := s.repo.GetEventByIdempotenceKey(txCtx, tenantID, in.PolicyID, commission.KindChargeback, in.OccurredAt)
		if err != nil {
			return nil, mapPgError(err)
		}
		if existing != nil {
			recordDistribution(commission.KindChargeback, "replay")
			rows, err := s.repo.ListOverridesByPolicy(txCtx, tenantID, in.PolicyID)
			if err != nil {
				return nil, mapPgError(err)
			}
			return &ChargebackResult{EventID: existing.ID, Overrides: rows}, nil
		}

		now := time.Now().UTC()
		eventID, err := s.repo.InsertEvent(txCtx, tenantID, commission.Event{
			TenantID:      tenantID,
			SourceAgentID: in.SourceAgentID,
			PolicyID:      in.PolicyID,
			Kind:          commission.KindChargeback,
			BaseAmount:    in.BaseAmount,
			OccurredAt:    in.OccurredAt,
			CreatedAt:     now,
		})
		if err != nil {
			return nil, mapPgError(err)
		}

		revoked, err := s.repo.ChargebackPolicyOverrides(txCtx, tenantID, in.PolicyID, now)
		if err != nil {
			return nil, mapPgError(err)
		}

		rows, err := s.repo.ListOverridesByPolicy(txCtx, tenantID, in.PolicyID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &ChargebackResult{EventID: eventID, RevokedCount: revoked, Overrides: rows}, nil
	})
	if err != nil {
		recordDistribution(commission.KindChargeback, "error")
		return nil, err
	}

	recordDistribution(commission.KindChargeback, "ok")
	if s.publisher != nil {
		s.publisher.Publish(commission.ChargedBackEvent{
			TenantID:      tenantID,
			EventID:       result.EventID,
			PolicyID:      in.PolicyID,
			SourceAgentID: in.SourceAgentID,
			RevokedCount:  result.RevokedCount,
			OccurredAt:    in.OccurredAt,
		})
	}
	return result, nil
}

// MarkEarned advances a pending override. Payroll calls this when the policy
// clears its persistency window.
func (s *OverrideService) MarkEarned(ctx context.Context, tenantID, overrideID uuid.UUID) (*commission.Override, error) {
	return s.transition(ctx, tenantID, overrideID, commission.StatusEarned)
}

// MarkPaid finalizes an override after disbursement.
func (s *OverrideService) MarkPaid(ctx context.Context, tenantID, overrideID uuid.UUID) (*commission.Override, error) {
	return s.transition(ctx, tenantID, overrideID, commission.StatusPaid)
}

func (s *OverrideService) transition(ctx context.Context, tenantID, overrideID uuid.UUID, to string) (*commission.Override, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*commission.Override, error) {
		ov, err := s.repo.GetOverride(txCtx, tenantID, overrideID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !commission.CanTransition(ov.Status, to) {
			return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_INVALID_STATUS", "override cannot transition from "+ov.Status+" to "+to, nil)
		}
		affected, err := s.repo.UpdateOverrideStatus(txCtx, tenantID, overrideID, ov.Status, to)
		if err != nil {
			return nil, mapPgError(err)
		}
		if affected == 0 {
			recordWriteConflict("status")
			return nil, newServiceError(http.StatusConflict, "AGENCY_CONCURRENT_MODIFICATION", "override status changed concurrently, retry", nil)
		}
		return s.repo.GetOverride(txCtx, tenantID, overrideID)
	})
}

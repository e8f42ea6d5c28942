package services

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/pkg/configuration"
)

type QueryRepository interface {
	ListTenantAgents(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error)
	OverrideTotals(ctx context.Context, tenantID, beneficiaryID uuid.UUID) ([]OverrideStatusTotal, error)
	ListPerformanceByDepth(ctx context.Context, tenantID uuid.UUID, depth int, since time.Time) ([]AgentPerformanceRow, error)
	ListPerformanceByPrefix(ctx context.Context, tenantID uuid.UUID, prefix string, since time.Time) ([]AgentPerformanceRow, error)
	HierarchyStats(ctx context.Context, tenantID uuid.UUID) (HierarchyStatsRow, error)
}

// OverrideStatusTotal is one status bucket of a beneficiary's overrides.
// Amounts are minor units in the tenant's settlement currency.
type OverrideStatusTotal struct {
	Status      string `json:"status"`
	Count       int64  `json:"count"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

type AgentPerformanceRow struct {
	AgentID      uuid.UUID       `json:"agent_id"`
	AgentCode    string          `json:"agent_code"`
	PolicyCount  int64           `json:"policy_count"`
	TotalPremium decimal.Decimal `json:"total_premium"`
	Persistency  decimal.Decimal `json:"persistency"`
}

type HierarchyStatsRow struct {
	AgentCount    int64 `json:"agent_count"`
	ActiveCount   int64 `json:"active_count"`
	RootCount     int64 `json:"root_count"`
	MaxDepth      int   `json:"max_depth"`
	OverrideCount int64 `json:"override_count"`
}

// TreeNode is the flat hierarchy projection consumed by tree UIs.
type TreeNode struct {
	ID            uuid.UUID  `json:"id"`
	AgentCode     string     `json:"agent_code"`
	Email         string     `json:"email"`
	UplineID      *uuid.UUID `json:"upline_id"`
	Depth         int        `json:"depth"`
	ContractLevel int        `json:"contract_level"`
	IsActive      bool       `json:"is_active"`
}

type PeerComparison struct {
	AgentID               uuid.UUID       `json:"agent_id"`
	HierarchyDepth        int             `json:"hierarchy_depth"`
	PeerCount             int             `json:"peer_count"`
	TotalPremium          decimal.Decimal `json:"total_premium"`
	PremiumPercentile     decimal.Decimal `json:"premium_percentile"`
	PolicyCount           int64           `json:"policy_count"`
	PolicyCountPercentile decimal.Decimal `json:"policy_count_percentile"`
	Persistency           decimal.Decimal `json:"persistency"`
	PersistencyPercentile decimal.Decimal `json:"persistency_percentile"`
}

type QueryService struct {
	repo   QueryRepository
	agents AgentRepository
}

func NewQueryService(repo QueryRepository, agents AgentRepository) *QueryService {
	return &QueryService{repo: repo, agents: agents}
}

// HierarchyTree returns every agent of the tenant ordered parent-before-child
// (depth ascending, code as tie-break), ready for indentation rendering.
func (s *QueryService) HierarchyTree(ctx context.Context, tenantID uuid.UUID) ([]TreeNode, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]TreeNode, error) {
		agents, err := s.repo.ListTenantAgents(txCtx, tenantID)
		if err != nil {
			return nil, mapPgError(err)
		}
		sort.SliceStable(agents, func(i, j int) bool {
			if agents[i].HierarchyDepth != agents[j].HierarchyDepth {
				return agents[i].HierarchyDepth < agents[j].HierarchyDepth
			}
			return agents[i].AgentCode < agents[j].AgentCode
		})
		nodes := make([]TreeNode, 0, len(agents))
		for _, a := range agents {
			nodes = append(nodes, TreeNode{
				ID:            a.ID,
				AgentCode:     a.AgentCode,
				Email:         a.Email,
				UplineID:      a.UplineID,
				Depth:         a.HierarchyDepth,
				ContractLevel: a.ContractLevel,
				IsActive:      a.IsActive,
			})
		}
		return nodes, nil
	})
}

// OverrideSummary sums a beneficiary's override rows by status.
func (s *QueryService) OverrideSummary(ctx context.Context, tenantID, beneficiaryID uuid.UUID) ([]OverrideStatusTotal, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]OverrideStatusTotal, error) {
		if _, err := s.agents.GetByID(txCtx, tenantID, beneficiaryID); err != nil {
			return nil, mapPgError(err)
		}
		totals, err := s.repo.OverrideTotals(txCtx, tenantID, beneficiaryID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return totals, nil
	})
}

// PeerComparison ranks an agent's production against every agent at the same
// hierarchy depth inside the lookback window.
func (s *QueryService) PeerComparison(ctx context.Context, tenantID, agentID uuid.UUID, lookbackMonths int) (*PeerComparison, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	if lookbackMonths <= 0 {
		lookbackMonths = configuration.Use().Blending.DefaultLookbackMonths
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*PeerComparison, error) {
		a, err := s.agents.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		since := time.Now().UTC().AddDate(0, -lookbackMonths, 0)
		peers, err := s.repo.ListPerformanceByDepth(txCtx, tenantID, a.HierarchyDepth, since)
		if err != nil {
			return nil, mapPgError(err)
		}
		return comparePeers(a, peers), nil
	})
}

func comparePeers(a *agent.Agent, peers []AgentPerformanceRow) *PeerComparison {
	own := AgentPerformanceRow{AgentID: a.ID, TotalPremium: decimal.Zero, Persistency: decimal.Zero}
	for _, p := range peers {
		if p.AgentID == a.ID {
			own = p
			break
		}
	}

	premiums := make([]decimal.Decimal, 0, len(peers))
	counts := make([]decimal.Decimal, 0, len(peers))
	persistency := make([]decimal.Decimal, 0, len(peers))
	for _, p := range peers {
		premiums = append(premiums, p.TotalPremium)
		counts = append(counts, decimal.NewFromInt(p.PolicyCount))
		persistency = append(persistency, p.Persistency)
	}

	return &PeerComparison{
		AgentID:               a.ID,
		HierarchyDepth:        a.HierarchyDepth,
		PeerCount:             len(peers),
		TotalPremium:          own.TotalPremium,
		PremiumPercentile:     percentileRank(premiums, own.TotalPremium),
		PolicyCount:           own.PolicyCount,
		PolicyCountPercentile: percentileRank(counts, decimal.NewFromInt(own.PolicyCount)),
		Persistency:           own.Persistency,
		PersistencyPercentile: percentileRank(persistency, own.Persistency),
	}
}

// percentileRank is the share of the sample strictly below the value, as a
// percentage. An empty sample ranks at zero.
func percentileRank(sample []decimal.Decimal, value decimal.Decimal) decimal.Decimal {
	if len(sample) == 0 {
		return decimal.Zero
	}
	below := 0
	for _, v := range sample {
		if v.LessThan(value) {
			below++
		}
	}
	return decimal.NewFromInt(int64(below * 100)).Div(decimal.NewFromInt(int64(len(sample)))).Round(2)
}

// HierarchyStats reports tenant-wide tree shape counters for dashboards.
func (s *QueryService) HierarchyStats(ctx context.Context, tenantID uuid.UUID) (*HierarchyStatsRow, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*HierarchyStatsRow, error) {
		stats, err := s.repo.HierarchyStats(txCtx, tenantID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &stats, nil
	})
}

// DownlinePerformance lists production per agent across an agent's whole
// subtree, best producers first.
func (s *QueryService) DownlinePerformance(ctx context.Context, tenantID, agentID uuid.UUID, lookbackMonths int) ([]AgentPerformanceRow, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	if lookbackMonths <= 0 {
		lookbackMonths = configuration.Use().Blending.DefaultLookbackMonths
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]AgentPerformanceRow, error) {
		a, err := s.agents.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		since := time.Now().UTC().AddDate(0, -lookbackMonths, 0)
		rows, err := s.repo.ListPerformanceByPrefix(txCtx, tenantID, agent.SubtreePrefix(a.HierarchyPath, a.ID), since)
		if err != nil {
			return nil, mapPgError(err)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TotalPremium.GreaterThan(rows[j].TotalPremium)
		})
		return rows, nil
	})
}

package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/services"
	"github.com/coverline/agency-sdk/pkg/composables"
)

type QueryRepository struct {
	agents *AgentRepository
}

func NewQueryRepository(agents *AgentRepository) *QueryRepository {
	return &QueryRepository{agents: agents}
}

func (r *QueryRepository) ListTenantAgents(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error) {
	return r.agents.ListTenantAgents(ctx, tenantID)
}

func (r *QueryRepository) OverrideTotals(ctx context.Context, tenantID, beneficiaryID uuid.UUID) ([]services.OverrideStatusTotal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT
	status,
	COUNT(*),
	COALESCE(SUM(override_amount), 0),
	MIN(currency)
FROM override_commissions
WHERE tenant_id = $1 AND beneficiary_agent_id = $2
GROUP BY status
ORDER BY status`, pgUUID(tenantID), pgUUID(beneficiaryID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]services.OverrideStatusTotal, 0, 4)
	for rows.Next() {
		var t services.OverrideStatusTotal
		if err := rows.Scan(&t.Status, &t.Count, &t.TotalAmount, &t.Currency); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

const performanceSelect = `
SELECT
	a.id,
	a.agent_code,
	COUNT(p.id),
	COALESCE(SUM(p.premium_amount), 0),
	COALESCE(AVG(CASE WHEN p.status IN ('lapsed', 'cancelled') THEN 0 ELSE 1 END), 0)
FROM agents a
LEFT JOIN policies p
	ON p.tenant_id = a.tenant_id
	AND p.agent_id = a.id
	AND p.effective_date >= $3`

func (r *QueryRepository) ListPerformanceByDepth(ctx context.Context, tenantID uuid.UUID, depth int, since time.Time) ([]services.AgentPerformanceRow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, performanceSelect+`
WHERE a.tenant_id = $1 AND a.hierarchy_depth = $2
GROUP BY a.id, a.agent_code
ORDER BY a.agent_code`, pgUUID(tenantID), depth, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPerformance(rows)
}

func (r *QueryRepository) ListPerformanceByPrefix(ctx context.Context, tenantID uuid.UUID, prefix string, since time.Time) ([]services.AgentPerformanceRow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, performanceSelect+`
WHERE a.tenant_id = $1
	AND (a.hierarchy_path = $2 OR a.hierarchy_path LIKE $2 || '.%')
GROUP BY a.id, a.agent_code
ORDER BY a.agent_code`, pgUUID(tenantID), prefix, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPerformance(rows)
}

func collectPerformance(rows pgx.Rows) ([]services.AgentPerformanceRow, error) {
	out := make([]services.AgentPerformanceRow, 0, 32)
	for rows.Next() {
		var row services.AgentPerformanceRow
		if err := rows.Scan(&row.AgentID, &row.AgentCode, &row.PolicyCount, &row.TotalPremium, &row.Persistency); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *QueryRepository) HierarchyStats(ctx context.Context, tenantID uuid.UUID) (services.HierarchyStatsRow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.HierarchyStatsRow{}, err
	}

	var stats services.HierarchyStatsRow
	err = tx.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM agents WHERE tenant_id = $1),
	(SELECT COUNT(*) FROM agents WHERE tenant_id = $1 AND is_active),
	(SELECT COUNT(*) FROM agents WHERE tenant_id = $1 AND upline_id IS NULL),
	(SELECT COALESCE(MAX(hierarchy_depth), 0) FROM agents WHERE tenant_id = $1),
	(SELECT COUNT(*) FROM override_commissions WHERE tenant_id = $1)`,
		pgUUID(tenantID),
	).Scan(&stats.AgentCount, &stats.ActiveCount, &stats.RootCount, &stats.MaxDepth, &stats.OverrideCount)
	if err != nil {
		return services.HierarchyStatsRow{}, err
	}
	return stats, nil
}

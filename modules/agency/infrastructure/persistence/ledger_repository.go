package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/modules/agency/domain/rateprofile"
	"github.com/coverline/agency-sdk/pkg/composables"
)

// LedgerRepository reads the product catalog and the policy ledger owned by
// the policy subsystem. This engine only ever reads them.
type LedgerRepository struct{}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// ListProductRates returns, per active product, the best rate the contract
// level qualifies for: the row with the highest min_contract_level not above
// the agent's own.
func (r *LedgerRepository) ListProductRates(ctx context.Context, tenantID uuid.UUID, contractLevel int) ([]rateprofile.ProductRate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT DISTINCT ON (p.id)
	p.id,
	p.name,
	pr.commission_rate
FROM products p
JOIN product_rates pr
	ON pr.tenant_id = p.tenant_id
	AND pr.product_id = p.id
	AND pr.min_contract_level <= $2
WHERE p.tenant_id = $1 AND p.is_active
ORDER BY p.id, pr.min_contract_level DESC`, pgUUID(tenantID), contractLevel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]rateprofile.ProductRate, 0, 16)
	for rows.Next() {
		var pr rateprofile.ProductRate
		if err := rows.Scan(&pr.ProductID, &pr.ProductName, &pr.CommissionRate); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListAgentProduction groups the agent's policies written since the cutoff by
// product.
func (r *LedgerRepository) ListAgentProduction(ctx context.Context, tenantID, agentID uuid.UUID, since time.Time) ([]rateprofile.ProductHistory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT
	product_id,
	COUNT(*),
	COALESCE(SUM(premium_amount), 0)
FROM policies
WHERE tenant_id = $1 AND agent_id = $2 AND effective_date >= $3
GROUP BY product_id`, pgUUID(tenantID), pgUUID(agentID), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]rateprofile.ProductHistory, 0, 16)
	for rows.Next() {
		var h rateprofile.ProductHistory
		if err := rows.Scan(&h.ProductID, &h.PolicyCount, &h.TotalPremium); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

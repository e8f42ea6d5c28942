package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/coverline/agency-sdk/modules/agency/domain/commission"
	"github.com/coverline/agency-sdk/pkg/composables"
)

const overrideColumns = `
	tenant_id,
	id,
	event_id,
	policy_id,
	source_agent_id,
	beneficiary_agent_id,
	hierarchy_depth_at_time,
	source_contract_level,
	beneficiary_contract_level,
	base_amount,
	currency,
	override_rate,
	override_amount,
	status,
	chargeback_at,
	paid_at,
	created_at,
	updated_at`

type OverrideRepository struct{}

func NewOverrideRepository() *OverrideRepository {
	return &OverrideRepository{}
}

func (r *OverrideRepository) GetEventByIdempotenceKey(ctx context.Context, tenantID, policyID uuid.UUID, kind string, occurredAt time.Time) (*commission.Event, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var ev commission.Event
	var amount int64
	var currency string
	err = tx.QueryRow(ctx, `
SELECT tenant_id, id, source_agent_id, policy_id, kind, base_amount, currency, occurred_at, created_at
FROM commission_events
WHERE tenant_id = $1 AND policy_id = $2 AND kind = $3 AND occurred_at = $4`,
		pgUUID(tenantID), pgUUID(policyID), kind, occurredAt,
	).Scan(&ev.TenantID, &ev.ID, &ev.SourceAgentID, &ev.PolicyID, &ev.Kind, &amount, &currency, &ev.OccurredAt, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.BaseAmount = money.New(amount, currency)
	return &ev, nil
}

func (r *OverrideRepository) InsertEvent(ctx context.Context, tenantID uuid.UUID, ev commission.Event) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO commission_events (tenant_id, source_agent_id, policy_id, kind, base_amount, currency, occurred_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		pgUUID(tenantID),
		pgUUID(ev.SourceAgentID),
		pgUUID(ev.PolicyID),
		ev.Kind,
		ev.BaseAmount.Amount(),
		ev.BaseAmount.Currency().Code,
		ev.OccurredAt,
		ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *OverrideRepository) InsertOverride(ctx context.Context, tenantID uuid.UUID, ov commission.Override) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO override_commissions (
	tenant_id, event_id, policy_id, source_agent_id, beneficiary_agent_id,
	hierarchy_depth_at_time, source_contract_level, beneficiary_contract_level,
	base_amount, currency, override_rate, override_amount, status, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id`,
		pgUUID(tenantID),
		pgUUID(ov.EventID),
		pgUUID(ov.PolicyID),
		pgUUID(ov.SourceAgentID),
		pgUUID(ov.BeneficiaryAgentID),
		ov.HierarchyDepthAtTime,
		ov.SourceContractLevel,
		ov.BeneficiaryContract,
		ov.BaseAmount.Amount(),
		ov.BaseAmount.Currency().Code,
		ov.OverrideRate,
		ov.OverrideAmount.Amount(),
		ov.Status,
		ov.CreatedAt,
		ov.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func scanOverride(row pgx.Row) (*commission.Override, error) {
	var ov commission.Override
	var baseAmount, overrideAmount int64
	var currency string
	var chargebackAt, paidAt pgtype.Timestamptz
	if err := row.Scan(
		&ov.TenantID,
		&ov.ID,
		&ov.EventID,
		&ov.PolicyID,
		&ov.SourceAgentID,
		&ov.BeneficiaryAgentID,
		&ov.HierarchyDepthAtTime,
		&ov.SourceContractLevel,
		&ov.BeneficiaryContract,
		&baseAmount,
		&currency,
		&ov.OverrideRate,
		&overrideAmount,
		&ov.Status,
		&chargebackAt,
		&paidAt,
		&ov.CreatedAt,
		&ov.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ov.BaseAmount = money.New(baseAmount, currency)
	ov.OverrideAmount = money.New(overrideAmount, currency)
	if chargebackAt.Valid {
		ov.ChargebackAt = &chargebackAt.Time
	}
	if paidAt.Valid {
		ov.PaidAt = &paidAt.Time
	}
	return &ov, nil
}

func collectOverrides(rows pgx.Rows) ([]commission.Override, error) {
	out := make([]commission.Override, 0, 8)
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ov)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *OverrideRepository) ListOverridesByEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]commission.Override, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT`+overrideColumns+`
FROM override_commissions
WHERE tenant_id = $1 AND event_id = $2
ORDER BY hierarchy_depth_at_time ASC`, pgUUID(tenantID), pgUUID(eventID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOverrides(rows)
}

func (r *OverrideRepository) ListOverridesByPolicy(ctx context.Context, tenantID, policyID uuid.UUID) ([]commission.Override, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT`+overrideColumns+`
FROM override_commissions
WHERE tenant_id = $1 AND policy_id = $2
ORDER BY created_at ASC, hierarchy_depth_at_time ASC`, pgUUID(tenantID), pgUUID(policyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOverrides(rows)
}

func (r *OverrideRepository) GetOverride(ctx context.Context, tenantID, overrideID uuid.UUID) (*commission.Override, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	return scanOverride(tx.QueryRow(ctx, `SELECT`+overrideColumns+`
FROM override_commissions
WHERE tenant_id = $1 AND id = $2`, pgUUID(tenantID), pgUUID(overrideID)))
}

func (r *OverrideRepository) UpdateOverrideStatus(ctx context.Context, tenantID, overrideID uuid.UUID, from, to string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
UPDATE override_commissions
SET status = $4,
	paid_at = CASE WHEN $4 = 'paid' THEN $5 ELSE paid_at END,
	updated_at = $5
WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		pgUUID(tenantID), pgUUID(overrideID), from, to, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ChargebackPolicyOverrides flips every pending or earned row for the policy.
// Paid rows are deliberately left alone.
func (r *OverrideRepository) ChargebackPolicyOverrides(ctx context.Context, tenantID, policyID uuid.UUID, at time.Time) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
UPDATE override_commissions
SET status = 'chargedback',
	chargeback_at = $3,
	updated_at = $3
WHERE tenant_id = $1 AND policy_id = $2 AND status IN ('pending', 'earned')`,
		pgUUID(tenantID), pgUUID(policyID), at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

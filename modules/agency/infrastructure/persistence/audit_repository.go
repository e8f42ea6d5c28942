package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/modules/agency/services"
	"github.com/coverline/agency-sdk/pkg/composables"
)

type AuditRepository struct{}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Insert(ctx context.Context, tenantID uuid.UUID, entry services.AuditLogInsert) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	meta, err := entry.MarshalMeta()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO hierarchy_audit_log (
	tenant_id, request_id, initiator_id, action, agent_id,
	old_upline_id, new_upline_id, reason, meta, occurred_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		pgUUID(tenantID),
		entry.RequestID,
		pgUUID(entry.InitiatorID),
		entry.Action,
		pgUUID(entry.AgentID),
		pgNullableUUID(entry.OldUplineID),
		pgNullableUUID(entry.NewUplineID),
		entry.Reason,
		meta,
		entry.OccurredAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/services"
	"github.com/coverline/agency-sdk/pkg/composables"
)

const agentColumns = `
	tenant_id,
	id,
	email,
	agent_code,
	upline_id,
	hierarchy_path,
	hierarchy_depth,
	contract_level,
	is_active,
	version,
	created_at,
	updated_at`

type AgentRepository struct{}

func NewAgentRepository() *AgentRepository {
	return &AgentRepository{}
}

func scanAgent(row pgx.Row) (*agent.Agent, error) {
	var a agent.Agent
	var upline pgtype.UUID
	var path string
	if err := row.Scan(
		&a.TenantID,
		&a.ID,
		&a.Email,
		&a.AgentCode,
		&upline,
		&path,
		&a.HierarchyDepth,
		&a.ContractLevel,
		&a.IsActive,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.UplineID = fromPgUUID(upline)
	parsed, err := agent.ParsePath(path)
	if err != nil {
		return nil, err
	}
	a.HierarchyPath = parsed
	return &a, nil
}

func (r *AgentRepository) getByID(ctx context.Context, tenantID, agentID uuid.UUID, forUpdate bool) (*agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + agentColumns + `
FROM agents
WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += `
FOR UPDATE`
	}
	return scanAgent(tx.QueryRow(ctx, query, pgUUID(tenantID), pgUUID(agentID)))
}

func (r *AgentRepository) GetByID(ctx context.Context, tenantID, agentID uuid.UUID) (*agent.Agent, error) {
	return r.getByID(ctx, tenantID, agentID, false)
}

func (r *AgentRepository) GetByIDForUpdate(ctx context.Context, tenantID, agentID uuid.UUID) (*agent.Agent, error) {
	return r.getByID(ctx, tenantID, agentID, true)
}

func (r *AgentRepository) GetManyByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*agent.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT`+agentColumns+`
FROM agents
WHERE tenant_id = $1 AND id = ANY($2)`, pgUUID(tenantID), pgUUIDArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (r *AgentRepository) listByPathPrefix(ctx context.Context, tenantID uuid.UUID, prefix string, forUpdate bool) ([]*agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	// Direct reports carry the prefix exactly; deeper descendants extend it
	// with a separator. Depth order keeps parents ahead of their children.
	query := `SELECT` + agentColumns + `
FROM agents
WHERE tenant_id = $1
	AND (hierarchy_path = $2 OR hierarchy_path LIKE $2 || '.%')
ORDER BY hierarchy_depth ASC, agent_code ASC`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	rows, err := tx.Query(ctx, query, pgUUID(tenantID), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (r *AgentRepository) ListByPathPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]*agent.Agent, error) {
	return r.listByPathPrefix(ctx, tenantID, prefix, false)
}

func (r *AgentRepository) ListByPathPrefixForUpdate(ctx context.Context, tenantID uuid.UUID, prefix string) ([]*agent.Agent, error) {
	return r.listByPathPrefix(ctx, tenantID, prefix, true)
}

func (r *AgentRepository) CountByPathPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	err = tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM agents
WHERE tenant_id = $1
	AND (hierarchy_path = $2 OR hierarchy_path LIKE $2 || '.%')`, pgUUID(tenantID), prefix).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AgentRepository) UpdatePlacement(ctx context.Context, tenantID uuid.UUID, upd services.PlacementUpdate) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
UPDATE agents
SET upline_id = $3,
	hierarchy_path = $4,
	hierarchy_depth = $5,
	version = version + 1,
	updated_at = $6
WHERE tenant_id = $1 AND id = $2 AND version = $7`,
		pgUUID(tenantID),
		pgUUID(upd.AgentID),
		pgNullableUUID(upd.UplineID),
		upd.Path.String(),
		upd.Depth,
		time.Now().UTC(),
		upd.ExpectedVersion,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *AgentRepository) ListTenantAgents(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT`+agentColumns+`
FROM agents
WHERE tenant_id = $1
ORDER BY hierarchy_depth ASC, agent_code ASC`, pgUUID(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func collectAgents(rows pgx.Rows) ([]*agent.Agent, error) {
	out := make([]*agent.Agent, 0, 64)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

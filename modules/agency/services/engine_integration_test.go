package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/domain/commission"
	"github.com/coverline/agency-sdk/modules/agency/domain/rateprofile"
	"github.com/coverline/agency-sdk/modules/agency/domain/ratetable"
	"github.com/coverline/agency-sdk/modules/agency/infrastructure/persistence"
	"github.com/coverline/agency-sdk/modules/agency/permissions"
	"github.com/coverline/agency-sdk/modules/agency/services"
	"github.com/coverline/agency-sdk/pkg/itf"
)

const integrationRateTable = `
default:
  - level: 1
    rate: "0.05"
  - level: 2
    rate: "0.02"
`

type engineFixture struct {
	pool      *pgxpool.Pool
	tenantID  uuid.UUID
	hierarchy *services.HierarchyService
	overrides *services.OverrideService
	queries   *services.QueryService
	editCap   permissions.HierarchyEditCapability
}

func newEngineFixture(t *testing.T, ctx context.Context) *engineFixture {
	t.Helper()

	pool := itf.NewTestDB(t, ctx, "../../../migrations")
	tenantID := itf.CreateTenant(t, ctx, pool)

	table, err := ratetable.Parse([]byte(integrationRateTable))
	require.NoError(t, err)

	agents := persistence.NewAgentRepository()
	audit := persistence.NewAuditRepository()
	overrides := persistence.NewOverrideRepository()

	enforcer, err := permissions.NewEnforcer()
	require.NoError(t, err)
	admin := uuid.New()
	require.NoError(t, enforcer.GrantRole(admin, permissions.RoleAdmin))
	editCap, err := enforcer.HierarchyEdit(admin)
	require.NoError(t, err)

	return &engineFixture{
		pool:      pool,
		tenantID:  tenantID,
		hierarchy: services.NewHierarchyService(agents, audit, nil),
		overrides: services.NewOverrideService(overrides, agents, table, nil),
		queries:   services.NewQueryService(persistence.NewQueryRepository(agents), agents),
		editCap:   editCap,
	}
}

func (f *engineFixture) ctx(ctx context.Context) context.Context {
	return itf.Context(ctx, f.pool, f.tenantID)
}

func (f *engineFixture) insertAgent(t *testing.T, ctx context.Context, code string, upline *agent.Agent, contractLevel int, active bool) *agent.Agent {
	t.Helper()

	path := agent.ChildPath(upline)
	a := &agent.Agent{
		TenantID:       f.tenantID,
		ID:             uuid.New(),
		Email:          code + "@example.com",
		AgentCode:      code,
		HierarchyPath:  path,
		HierarchyDepth: path.Depth(),
		ContractLevel:  contractLevel,
		IsActive:       active,
		Version:        1,
	}
	if upline != nil {
		a.UplineID = &upline.ID
	}

	var uplineID any
	if a.UplineID != nil {
		uplineID = *a.UplineID
	}
	_, err := f.pool.Exec(ctx, `
INSERT INTO agents (tenant_id, id, email, agent_code, upline_id, hierarchy_path, hierarchy_depth, contract_level, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.tenantID, a.ID, a.Email, a.AgentCode, uplineID, path.String(), a.HierarchyDepth, contractLevel, active)
	require.NoError(t, err)
	return a
}

// Three-level chain per the canonical scenario: C reports to B reports to A,
// rate table {1: 5%, 2: 2%}, C writes a $1,000 base commission.
func TestEngine_DistributeThreeLevelChain(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)
	c := f.insertAgent(t, ctx, "C", b, 70, true)

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, services.DistributeInput{
		SourceAgentID: c.ID,
		PolicyID:      uuid.New(),
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    occurred,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, b.ID, rows[0].BeneficiaryAgentID)
	require.Equal(t, 1, rows[0].HierarchyDepthAtTime)
	require.Equal(t, int64(5000), rows[0].OverrideAmount.Amount())

	require.Equal(t, a.ID, rows[1].BeneficiaryAgentID)
	require.Equal(t, 2, rows[1].HierarchyDepthAtTime)
	require.Equal(t, int64(2000), rows[1].OverrideAmount.Amount())
}

func TestEngine_DistributeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)

	in := services.DistributeInput{
		SourceAgentID: b.ID,
		PolicyID:      uuid.New(),
		BaseAmount:    money.New(50000, money.USD),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	first, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, in)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, in)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
}

func TestEngine_ReparentCascadesAndPreservesHistory(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)
	c := f.insertAgent(t, ctx, "C", b, 70, true)
	d := f.insertAgent(t, ctx, "D", nil, 90, true)

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, services.DistributeInput{
		SourceAgentID: c.ID,
		PolicyID:      uuid.New(),
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    occurred,
	})
	require.NoError(t, err)
	require.Len(t, before, 2)

	res, err := f.hierarchy.Reparent(f.ctx(ctx), f.tenantID, "req-1", f.editCap, services.ReparentInput{
		AgentID:     b.ID,
		NewUplineID: &d.ID,
		Reason:      "team restructure",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.MovedCount)
	require.Equal(t, 1, res.NewDepth)

	// C follows B under the new root with its suffix preserved.
	movedC, err := f.hierarchy.GetAgent(f.ctx(ctx), f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, agent.Path{d.ID, b.ID}.String(), movedC.HierarchyPath.String())
	require.Equal(t, 2, movedC.HierarchyDepth)

	ancestors, err := f.hierarchy.GetAncestors(f.ctx(ctx), f.tenantID, c.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	require.Equal(t, b.ID, ancestors[0].ID)
	require.Equal(t, d.ID, ancestors[1].ID)

	// Historical override snapshots are untouched by the move.
	after := itf.WithTenantTx(t, ctx, f.pool, f.tenantID, func(txCtx context.Context) []commission.Override {
		rows, err := persistence.NewOverrideRepository().ListOverridesByEvent(txCtx, f.tenantID, before[0].EventID)
		require.NoError(t, err)
		return rows
	})
	require.Len(t, after, 2)
	for i, row := range after {
		require.Equal(t, before[i].HierarchyDepthAtTime, row.HierarchyDepthAtTime)
		require.Equal(t, before[i].OverrideAmount.Amount(), row.OverrideAmount.Amount())
		require.Equal(t, before[i].BeneficiaryAgentID, row.BeneficiaryAgentID)
	}
}

func TestEngine_ReparentRejectsCycleAndLeavesTreeUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)
	c := f.insertAgent(t, ctx, "C", b, 70, true)

	_, err := f.hierarchy.Reparent(f.ctx(ctx), f.tenantID, "req-1", f.editCap, services.ReparentInput{
		AgentID:     a.ID,
		NewUplineID: &c.ID,
		Reason:      "bad idea",
	})
	var svcErr *services.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "AGENCY_CYCLE", svcErr.Code)

	unchanged, err := f.hierarchy.GetAgent(f.ctx(ctx), f.tenantID, c.ID)
	require.NoError(t, err)
	require.Equal(t, agent.Path{a.ID, b.ID}.String(), unchanged.HierarchyPath.String())
}

func TestEngine_ChargebackLeavesPaidRowsAlone(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)
	c := f.insertAgent(t, ctx, "C", b, 70, true)

	policyID := uuid.New()
	rows, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, services.DistributeInput{
		SourceAgentID: c.ID,
		PolicyID:      policyID,
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	paid, err := f.overrides.MarkPaid(f.ctx(ctx), f.tenantID, rows[0].ID)
	require.NoError(t, err)
	require.Equal(t, commission.StatusPaid, paid.Status)

	res, err := f.overrides.Chargeback(f.ctx(ctx), f.tenantID, services.ChargebackInput{
		SourceAgentID: c.ID,
		PolicyID:      policyID,
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RevokedCount)
	require.Len(t, res.Overrides, 2)

	byID := map[uuid.UUID]string{}
	for _, row := range res.Overrides {
		byID[row.ID] = row.Status
	}
	require.Equal(t, commission.StatusPaid, byID[rows[0].ID])
	require.Equal(t, commission.StatusChargedback, byID[rows[1].ID])
}

func TestEngine_InactiveAncestorIsSkippedNotBlocking(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, false)
	c := f.insertAgent(t, ctx, "C", b, 70, true)

	rows, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, services.DistributeInput{
		SourceAgentID: c.ID,
		PolicyID:      uuid.New(),
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, a.ID, rows[0].BeneficiaryAgentID)
	require.Equal(t, 2, rows[0].HierarchyDepthAtTime)
}

func TestEngine_OverrideSummaryGroupsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 90, true)
	b := f.insertAgent(t, ctx, "B", a, 80, true)

	_, err := f.overrides.Distribute(f.ctx(ctx), f.tenantID, services.DistributeInput{
		SourceAgentID: b.ID,
		PolicyID:      uuid.New(),
		BaseAmount:    money.New(100000, money.USD),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	totals, err := f.queries.OverrideSummary(f.ctx(ctx), f.tenantID, a.ID)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.Equal(t, commission.StatusPending, totals[0].Status)
	require.Equal(t, int64(1), totals[0].Count)
	require.Equal(t, int64(5000), totals[0].TotalAmount)
}

func (f *engineFixture) insertProduct(t *testing.T, ctx context.Context, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := f.pool.QueryRow(ctx, `
INSERT INTO products (tenant_id, name) VALUES ($1, $2) RETURNING id`, f.tenantID, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func (f *engineFixture) insertProductRate(t *testing.T, ctx context.Context, productID uuid.UUID, minContractLevel int, rate string) {
	t.Helper()
	_, err := f.pool.Exec(ctx, `
INSERT INTO product_rates (tenant_id, product_id, min_contract_level, commission_rate)
VALUES ($1, $2, $3, $4)`, f.tenantID, productID, minContractLevel, rate)
	require.NoError(t, err)
}

func (f *engineFixture) insertPolicy(t *testing.T, ctx context.Context, agentID, productID uuid.UUID, premium string, effective time.Time) {
	t.Helper()
	_, err := f.pool.Exec(ctx, `
INSERT INTO policies (tenant_id, agent_id, product_id, premium_amount, effective_date)
VALUES ($1, $2, $3, $4, $5)`, f.tenantID, agentID, productID, premium, effective)
	require.NoError(t, err)
}

func TestEngine_ComputeProfileBlendsLedgerHistory(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, ctx)

	a := f.insertAgent(t, ctx, "A", nil, 70, true)

	term := f.insertProduct(t, ctx, "Term Life")
	whole := f.insertProduct(t, ctx, "Whole Life")
	f.insertProductRate(t, ctx, term, 0, "0.80")
	f.insertProductRate(t, ctx, whole, 0, "0.40")

	now := time.Now().UTC()
	for i := 0; i < 9; i++ {
		f.insertPolicy(t, ctx, a.ID, term, "1000.00", now.AddDate(0, -1, 0))
	}
	for i := 0; i < 3; i++ {
		f.insertPolicy(t, ctx, a.ID, whole, "500.00", now.AddDate(0, -2, 0))
	}

	profiles := services.NewRateProfileService(persistence.NewAgentRepository(), persistence.NewLedgerRepository())
	p, err := profiles.ComputeProfile(f.ctx(ctx), f.tenantID, a.ID, 12)
	require.NoError(t, err)

	// 12 policies in the window clears the medium tier, so the weighted
	// average drives the recommendation and premium skews it toward term.
	require.Equal(t, rateprofile.QualityMedium, p.DataQuality)
	require.NotNil(t, p.WeightedAverageRate)
	require.True(t, p.RecommendedRate.Equal(*p.WeightedAverageRate))
	require.True(t, p.WeightedAverageRate.GreaterThan(p.SimpleAverageRate))
	require.Len(t, p.ProductBreakdown, 2)
}

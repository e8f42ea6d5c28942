package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/permissions"
)

func grantedCapability(t *testing.T) permissions.HierarchyEditCapability {
	t.Helper()
	e, err := permissions.NewEnforcer()
	require.NoError(t, err)
	admin := uuid.New()
	require.NoError(t, e.GrantRole(admin, permissions.RoleAdmin))
	editCap, err := e.HierarchyEdit(admin)
	require.NoError(t, err)
	return editCap
}

func TestReparent_RejectsMissingTenant(t *testing.T) {
	svc := NewHierarchyService(nil, nil, nil)
	_, err := svc.Reparent(context.Background(), uuid.Nil, "req-1", grantedCapability(t), ReparentInput{
		AgentID: uuid.New(),
		Reason:  "restructure",
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, 400, svcErr.Status)
	require.Equal(t, "AGENCY_NO_TENANT", svcErr.Code)
}

func TestReparent_RejectsUngrantedCapability(t *testing.T) {
	svc := NewHierarchyService(nil, nil, nil)
	_, err := svc.Reparent(context.Background(), uuid.New(), "req-1", permissions.HierarchyEditCapability{}, ReparentInput{
		AgentID: uuid.New(),
		Reason:  "restructure",
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, 403, svcErr.Status)
	require.Equal(t, "AGENCY_FORBIDDEN", svcErr.Code)
}

func TestReparent_RejectsSelfReference(t *testing.T) {
	svc := NewHierarchyService(nil, nil, nil)
	agentID := uuid.New()
	_, err := svc.Reparent(context.Background(), uuid.New(), "req-1", grantedCapability(t), ReparentInput{
		AgentID:     agentID,
		NewUplineID: &agentID,
		Reason:      "restructure",
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "AGENCY_SELF_REFERENCE", svcErr.Code)
	require.ErrorIs(t, err, agent.ErrSelfReference)
}

func TestReparent_RejectsMissingReason(t *testing.T) {
	svc := NewHierarchyService(nil, nil, nil)
	_, err := svc.Reparent(context.Background(), uuid.New(), "req-1", grantedCapability(t), ReparentInput{
		AgentID: uuid.New(),
		Reason:  "   ",
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "AGENCY_INVALID_BODY", svcErr.Code)
}

func TestOrderNearestFirst(t *testing.T) {
	root := &agent.Agent{ID: uuid.New()}
	mid := &agent.Agent{ID: uuid.New()}
	path := agent.Path{root.ID, mid.ID}

	ordered := orderNearestFirst(path, []*agent.Agent{root, mid})
	require.Len(t, ordered, 2)
	require.Equal(t, mid.ID, ordered[0].ID)
	require.Equal(t, root.ID, ordered[1].ID)
}

func TestSameUpline(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	require.True(t, sameUpline(nil, nil))
	require.True(t, sameUpline(&a, &a))
	require.False(t, sameUpline(&a, &b))
	require.False(t, sameUpline(&a, nil))
	require.False(t, sameUpline(nil, &b))
}

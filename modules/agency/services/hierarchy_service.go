package services

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/modules/agency/domain/agent"
	"github.com/coverline/agency-sdk/modules/agency/permissions"
	"github.com/coverline/agency-sdk/pkg/configuration"
	"github.com/coverline/agency-sdk/pkg/eventbus"
)

type AgentRepository interface {
	GetByID(ctx context.Context, tenantID, agentID uuid.UUID) (*agent.Agent, error)
	GetByIDForUpdate(ctx context.Context, tenantID, agentID uuid.UUID) (*agent.Agent, error)
	GetManyByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*agent.Agent, error)
	ListByPathPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]*agent.Agent, error)
	ListByPathPrefixForUpdate(ctx context.Context, tenantID uuid.UUID, prefix string) ([]*agent.Agent, error)
	CountByPathPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (int64, error)
	UpdatePlacement(ctx context.Context, tenantID uuid.UUID, upd PlacementUpdate) (int64, error)
}

// PlacementUpdate rewrites one agent's position in the tree. ExpectedVersion
// guards the subtree root against a concurrent move; descendants are already
// row-locked when they get here, so they pass their freshly read version too.
type PlacementUpdate struct {
	AgentID         uuid.UUID
	UplineID        *uuid.UUID
	Path            agent.Path
	Depth           int
	ExpectedVersion int64
}

type HierarchyService struct {
	repo      AgentRepository
	audit     AuditRepository
	publisher eventbus.EventBus
}

func NewHierarchyService(repo AgentRepository, audit AuditRepository, publisher eventbus.EventBus) *HierarchyService {
	return &HierarchyService{repo: repo, audit: audit, publisher: publisher}
}

func (s *HierarchyService) GetAgent(ctx context.Context, tenantID, agentID uuid.UUID) (*agent.Agent, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*agent.Agent, error) {
		a, err := s.repo.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return a, nil
	})
}

// GetAncestors returns the agent's upline chain ordered nearest-first, the
// direct upline at index 0.
func (s *HierarchyService) GetAncestors(ctx context.Context, tenantID, agentID uuid.UUID) ([]*agent.Agent, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]*agent.Agent, error) {
		a, err := s.repo.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return fetchAncestors(txCtx, s.repo, tenantID, a)
	})
}

func fetchAncestors(ctx context.Context, repo AgentRepository, tenantID uuid.UUID, a *agent.Agent) ([]*agent.Agent, error) {
	if len(a.HierarchyPath) == 0 {
		return nil, nil
	}
	fetched, err := repo.GetManyByIDs(ctx, tenantID, a.HierarchyPath)
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(fetched) != len(a.HierarchyPath) {
		return nil, newServiceError(http.StatusInternalServerError, "AGENCY_INTERNAL", "ancestor chain has dangling references", nil)
	}
	return orderNearestFirst(a.HierarchyPath, fetched), nil
}

// orderNearestFirst arranges fetched ancestors so the direct upline comes
// first. The path itself is stored root-first.
func orderNearestFirst(path agent.Path, fetched []*agent.Agent) []*agent.Agent {
	byID := make(map[uuid.UUID]*agent.Agent, len(fetched))
	for _, f := range fetched {
		byID[f.ID] = f
	}
	out := make([]*agent.Agent, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		if anc, ok := byID[path[i]]; ok {
			out = append(out, anc)
		}
	}
	return out
}

// GetDescendants returns every agent in the subtree below agentID, shallowest
// first, the agent itself excluded.
func (s *HierarchyService) GetDescendants(ctx context.Context, tenantID, agentID uuid.UUID) ([]*agent.Agent, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]*agent.Agent, error) {
		a, err := s.repo.GetByID(txCtx, tenantID, agentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		descendants, err := s.repo.ListByPathPrefix(txCtx, tenantID, agent.SubtreePrefix(a.HierarchyPath, a.ID))
		if err != nil {
			return nil, mapPgError(err)
		}
		sort.SliceStable(descendants, func(i, j int) bool {
			return descendants[i].HierarchyDepth < descendants[j].HierarchyDepth
		})
		return descendants, nil
	})
}

type ReparentInput struct {
	AgentID     uuid.UUID
	NewUplineID *uuid.UUID
	Reason      string
}

type ReparentResult struct {
	AgentID     uuid.UUID
	OldUplineID *uuid.UUID
	NewUplineID *uuid.UUID
	NewDepth    int
	MovedCount  int
}

// Reparent moves an agent (and its whole subtree) under a new upline, or to
// the root when NewUplineID is nil. The target row and every descendant row
// are locked and rewritten in one transaction; a concurrent move of the same
// subtree loses on the version check and surfaces as a retryable conflict.
func (s *HierarchyService) Reparent(ctx context.Context, tenantID uuid.UUID, requestID string, editCap permissions.HierarchyEditCapability, in ReparentInput) (*ReparentResult, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_NO_TENANT", "tenant_id is required", nil)
	}
	if !editCap.Granted() {
		recordReparent("forbidden")
		return nil, newServiceError(http.StatusForbidden, "AGENCY_FORBIDDEN", "hierarchy edit capability is required", nil)
	}
	if in.AgentID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_INVALID_BODY", "agent_id is required", nil)
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return nil, newServiceError(http.StatusBadRequest, "AGENCY_INVALID_BODY", "reason is required", nil)
	}
	if in.NewUplineID != nil && *in.NewUplineID == in.AgentID {
		recordReparent("self_reference")
		return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_SELF_REFERENCE", "agent cannot be its own upline", agent.ErrSelfReference)
	}

	maxSubtree := configuration.Use().ReparentMaxSubtree

	result, err := inTx(ctx, tenantID, func(txCtx context.Context) (*ReparentResult, error) {
		a, err := s.repo.GetByIDForUpdate(txCtx, tenantID, in.AgentID)
		if err != nil {
			return nil, mapPgError(err)
		}

		var newUpline *agent.Agent
		if in.NewUplineID != nil {
			newUpline, err = s.repo.GetByIDForUpdate(txCtx, tenantID, *in.NewUplineID)
			if err != nil {
				svcErr := mapPgError(err)
				var se *ServiceError
				if errors.As(svcErr, &se) && se.Code == "AGENCY_NOT_FOUND" {
					return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_UPLINE_NOT_FOUND", "new upline not found", err)
				}
				return nil, svcErr
			}
			if newUpline.ID == a.ID || newUpline.IsDescendantOf(a.ID) {
				recordReparent("cycle")
				return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_CYCLE", "new upline is a descendant of the agent", agent.ErrCycle)
			}
		}

		if sameUpline(a.UplineID, in.NewUplineID) {
			recordReparent("noop")
			return &ReparentResult{
				AgentID:     a.ID,
				OldUplineID: a.UplineID,
				NewUplineID: in.NewUplineID,
				NewDepth:    a.HierarchyDepth,
			}, nil
		}

		prefix := agent.SubtreePrefix(a.HierarchyPath, a.ID)

		if maxSubtree > 0 {
			count, err := s.repo.CountByPathPrefix(txCtx, tenantID, prefix)
			if err != nil {
				return nil, mapPgError(err)
			}
			if count > int64(maxSubtree) {
				recordReparent("subtree_too_large")
				return nil, newServiceError(http.StatusUnprocessableEntity, "AGENCY_SUBTREE_TOO_LARGE", "subtree exceeds the configured reparent limit", agent.ErrSubtreeTooLarge)
			}
		}

		// Descendants are captured and locked before the target's path
		// changes, so the prefix query cannot miss or double-count nodes.
		descendants, err := s.repo.ListByPathPrefixForUpdate(txCtx, tenantID, prefix)
		if err != nil {
			return nil, mapPgError(err)
		}

		newPath := agent.ChildPath(newUpline)
		affected, err := s.repo.UpdatePlacement(txCtx, tenantID, PlacementUpdate{
			AgentID:         a.ID,
			UplineID:        in.NewUplineID,
			Path:            newPath,
			Depth:           newPath.Depth(),
			ExpectedVersion: a.Version,
		})
		if err != nil {
			return nil, mapPgError(err)
		}
		if affected == 0 {
			recordReparent("conflict")
			recordWriteConflict("version")
			return nil, newServiceError(http.StatusConflict, "AGENCY_CONCURRENT_MODIFICATION", "agent was modified concurrently, retry", agent.ErrConcurrentModification)
		}

		for _, d := range descendants {
			spliced, err := agent.Splice(d.HierarchyPath, a.ID, newPath)
			if err != nil {
				return nil, newServiceError(http.StatusInternalServerError, "AGENCY_INTERNAL", "descendant path does not contain the moved agent", err)
			}
			affected, err := s.repo.UpdatePlacement(txCtx, tenantID, PlacementUpdate{
				AgentID:         d.ID,
				UplineID:        d.UplineID,
				Path:            spliced,
				Depth:           spliced.Depth(),
				ExpectedVersion: d.Version,
			})
			if err != nil {
				return nil, mapPgError(err)
			}
			if affected == 0 {
				recordReparent("conflict")
				recordWriteConflict("version")
				return nil, newServiceError(http.StatusConflict, "AGENCY_CONCURRENT_MODIFICATION", "subtree was modified concurrently, retry", agent.ErrConcurrentModification)
			}
		}

		now := time.Now().UTC()
		_, err = s.audit.Insert(txCtx, tenantID, AuditLogInsert{
			RequestID:   requestID,
			InitiatorID: editCap.Subject(),
			Action:      "hierarchy.reparent",
			AgentID:     a.ID,
			OldUplineID: a.UplineID,
			NewUplineID: in.NewUplineID,
			OldDepth:    a.HierarchyDepth,
			NewDepth:    newPath.Depth(),
			MovedCount:  len(descendants),
			Reason:      in.Reason,
			OccurredAt:  now,
		})
		if err != nil {
			return nil, mapPgError(err)
		}

		return &ReparentResult{
			AgentID:     a.ID,
			OldUplineID: a.UplineID,
			NewUplineID: in.NewUplineID,
			NewDepth:    newPath.Depth(),
			MovedCount:  len(descendants),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if sameUpline(result.OldUplineID, result.NewUplineID) {
		return result, nil
	}

	recordReparent("ok")
	agencyReparentSubtreeSize.Observe(float64(result.MovedCount))
	if s.publisher != nil {
		s.publisher.Publish(agent.ReparentedEvent{
			TenantID:    tenantID,
			AgentID:     result.AgentID,
			OldUplineID: result.OldUplineID,
			NewUplineID: result.NewUplineID,
			MovedCount:  result.MovedCount,
			Reason:      in.Reason,
			OccurredAt:  time.Now().UTC(),
		})
	}
	return result, nil
}

func sameUpline(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

package agent

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a node in the agency hierarchy. The materialized path holds the
// ancestor chain root-first, excluding the agent itself; depth is the path
// length, so root agents sit at depth 0.
type Agent struct {
	TenantID       uuid.UUID
	ID             uuid.UUID
	Email          string
	AgentCode      string
	UplineID       *uuid.UUID
	HierarchyPath  Path
	HierarchyDepth int
	ContractLevel  int
	IsActive       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsRoot reports whether the agent has no upline.
func (a *Agent) IsRoot() bool {
	return a.UplineID == nil
}

// IsDescendantOf reports whether other appears in this agent's ancestor chain.
func (a *Agent) IsDescendantOf(otherID uuid.UUID) bool {
	return a.HierarchyPath.Contains(otherID)
}

// ChildPath is the materialized path a direct report of upline must carry.
// A nil upline yields the empty path of a root agent.
func ChildPath(upline *Agent) Path {
	if upline == nil {
		return nil
	}
	return upline.HierarchyPath.Append(upline.ID)
}

package agent

import (
	"time"

	"github.com/google/uuid"
)

// ReparentedEvent is published after a reparent commits. Subscribers see the
// tree only in its post-commit shape.
type ReparentedEvent struct {
	TenantID    uuid.UUID
	AgentID     uuid.UUID
	OldUplineID *uuid.UUID
	NewUplineID *uuid.UUID
	MovedCount  int
	Reason      string
	OccurredAt  time.Time
}

package commission

import (
	"time"

	"github.com/google/uuid"
)

// DistributedEvent is published after an override fan-out commits.
type DistributedEvent struct {
	TenantID      uuid.UUID
	EventID       uuid.UUID
	PolicyID      uuid.UUID
	SourceAgentID uuid.UUID
	OverrideCount int
	OccurredAt    time.Time
}

// ChargedBackEvent is published after a chargeback commits.
type ChargedBackEvent struct {
	TenantID      uuid.UUID
	EventID       uuid.UUID
	PolicyID      uuid.UUID
	SourceAgentID uuid.UUID
	RevokedCount  int64
	OccurredAt    time.Time
}

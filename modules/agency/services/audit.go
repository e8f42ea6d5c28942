package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditRepository interface {
	Insert(ctx context.Context, tenantID uuid.UUID, entry AuditLogInsert) (uuid.UUID, error)
}

// AuditLogInsert records one committed hierarchy change. The reason comes from
// the change request verbatim; old/new uplines make the log self-contained.
type AuditLogInsert struct {
	RequestID   string
	InitiatorID uuid.UUID
	Action      string
	AgentID     uuid.UUID
	OldUplineID *uuid.UUID
	NewUplineID *uuid.UUID
	OldDepth    int
	NewDepth    int
	MovedCount  int
	Reason      string
	OccurredAt  time.Time
}

func (a AuditLogInsert) MarshalMeta() (string, error) {
	meta := map[string]any{
		"request_id":  a.RequestID,
		"old_depth":   a.OldDepth,
		"new_depth":   a.NewDepth,
		"moved_count": a.MovedCount,
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

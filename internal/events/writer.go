package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	TaskCreated          = "task.created"
	TaskDeleted          = "task.deleted"
	TaskTransitioned     = "task.transitioned"
	DeliveryAdded        = "delivery.added"
	DeliveryRemoved      = "delivery.removed"
	DeliverySubmitted    = "delivery.submitted"
	DeliveryReviewed     = "delivery.reviewed"
	UserCreated          = "user.created"
	APIKeyCreated        = "api_key.created"
	BlobCleanupScheduled = "blob.cleanup_scheduled"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry is one audit event before it is stored.
type Entry struct {
	Type       string
	TaskID     string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,task_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339Nano), e.Type, nullable(e.TaskID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

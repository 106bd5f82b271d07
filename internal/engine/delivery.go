package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"blinkworks/internal/blob"
	"blinkworks/internal/domain"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/events"
	"blinkworks/internal/repo"
)

// Pseudo-events used in rejections of artifact edits.
const (
	opAddArtifact    Event = "add_artifact"
	opRemoveArtifact Event = "remove_artifact"
)

// checkArtifactEdit guards every change to the artifact lists.
func checkArtifactEdit(t domain.Task, actor domain.User, op Event) error {
	if t.DesignerDeliveries.StatusIs(domain.DeliveryApproved) {
		return reject(t, op, "", ErrImmutable)
	}
	if err := auth.RequireAssignee(actor, t); err != nil {
		return reject(t, op, "only the assigned designer may change deliveries", err)
	}
	switch t.Status {
	case domain.StatusInProgress, domain.StatusRevisionRequested:
		return nil
	case domain.StatusDraft, domain.StatusSubmitted, domain.StatusInfoRequested, domain.StatusInReview,
		domain.StatusReadyForReview, domain.StatusApproved, domain.StatusCompleted, domain.StatusCancelled:
	}
	return reject(t, op, "deliveries can only change while work is in progress or under revision", nil)
}

func appendArtifact(t domain.Task, item domain.DesignerDelivery) *domain.DesignerDeliveries {
	d := t.DesignerDeliveries.Clone()
	if d == nil {
		d = &domain.DesignerDeliveries{}
	}
	d.Append(item)
	return d
}

type AddFileInput struct {
	TaskID      string `validate:"required"`
	ActorID     string `validate:"required"`
	Name        string `validate:"required,max=255"`
	ContentType string `validate:"max=255"`
	Description string `validate:"max=2000"`
	// Size is the declared body length, or 0 if unknown.
	Size int64 `validate:"gte=0"`
	Body io.Reader `validate:"-"`
}

// AddDeliveryFile uploads the file to the blob store and appends it to the
// task's deliveries. If the task write fails the uploaded blob is handed to the
// janitor and the write error is returned.
func (e Engine) AddDeliveryFile(ctx context.Context, in AddFileInput) (domain.Task, error) {
	in.Name = trimmed(in.Name)
	if err := validateInput(in); err != nil {
		return domain.Task{}, err
	}
	if in.Body == nil {
		return domain.Task{}, ValidationError{Field: "body", Reason: "required"}
	}
	limit := e.maxUploadBytes()
	if in.Size > limit {
		return domain.Task{}, ValidationError{Field: "body", Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	if e.Blobs == nil {
		return domain.Task{}, StoreError{Op: "upload artifact", Err: errors.New("no blob store configured")}
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	// Check before uploading so a rejected edit never leaves a blob behind.
	cur, err := e.Repo.GetTask(ctx, in.TaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, NotFoundError{Kind: "task", ID: in.TaskID}
	}
	if err != nil {
		return domain.Task{}, storeErr("get task", err)
	}
	if err := checkArtifactEdit(cur, actor, opAddArtifact); err != nil {
		return domain.Task{}, err
	}

	item := domain.DesignerDelivery{
		ID:          uuid.NewString(),
		Type:        domain.DeliveryFile,
		Name:        in.Name,
		Description: trimmed(in.Description),
		UploadedAt:  e.now(),
		UploadedBy:  actor.ID,
	}
	item.StorageKey = blob.DeliveryKey(cur.ID, item.ID, in.Name)
	body := io.LimitReader(in.Body, limit+1)
	counter := &countingReader{r: body}
	url, err := e.Blobs.Put(ctx, item.StorageKey, counter, in.ContentType)
	if err != nil {
		return domain.Task{}, storeErr("upload artifact", err)
	}
	if counter.n > limit {
		e.discardBlob(ctx, cur.ID, actor, item.StorageKey)
		return domain.Task{}, ValidationError{Field: "body", Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	item.URL = url

	t, err := e.mutate(ctx, in.TaskID, actor, func(t domain.Task) (change, error) {
		if err := checkArtifactEdit(t, actor, opAddArtifact); err != nil {
			return change{}, err
		}
		return change{
			Patch:   domain.TaskPatch{Deliveries: appendArtifact(t, item)},
			Event:   events.DeliveryAdded,
			Kind:    "delivery",
			Entity:  item.ID,
			Payload: events.Payload{"type": item.Type, "name": item.Name, "bytes": counter.n},
		}, nil
	})
	if err != nil {
		e.discardBlob(ctx, cur.ID, actor, item.StorageKey)
		return domain.Task{}, err
	}
	return t, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (e Engine) maxUploadBytes() int64 {
	if e.Config != nil && e.Config.Storage.MaxBytes > 0 {
		return e.Config.Storage.MaxBytes
	}
	return 50 << 20
}

// discardBlob hands an unreferenced blob to the janitor and records a
// blob.cleanup_scheduled event for taskID. Failures are logged and the blob leaks.
func (e Engine) discardBlob(ctx context.Context, taskID string, actor domain.User, key string) {
	if key == "" {
		return
	}
	if e.Janitor == nil {
		e.logf("engine: blob %s is orphaned; no cleanup queue configured", key)
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.Janitor.ScheduleBlobDelete(ctx, key); err != nil {
		e.logf("engine: schedule delete of blob %s: %v", key, err)
		return
	}
	if err := e.recordEvent(ctx, events.Entry{
		Type:       events.BlobCleanupScheduled,
		TaskID:     taskID,
		EntityKind: "blob",
		EntityID:   key,
		ActorID:    actor.ID,
	}); err != nil {
		e.logf("engine: record cleanup of blob %s: %v", key, err)
	}
}

// recordEvent appends one event in its own transaction.
func (e Engine) recordEvent(ctx context.Context, entry events.Entry) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

type AddLinkInput struct {
	TaskID      string `validate:"required"`
	ActorID     string `validate:"required"`
	Name        string `validate:"max=255"`
	URL         string `validate:"required,url"`
	Description string `validate:"max=2000"`
}

// AddDeliveryLink appends an external link to the task's deliveries.
func (e Engine) AddDeliveryLink(ctx context.Context, in AddLinkInput) (domain.Task, error) {
	in.URL = trimmed(in.URL)
	in.Name = trimmed(in.Name)
	if in.URL == "" {
		return domain.Task{}, ValidationError{Field: "url", Reason: "link url is required"}
	}
	if err := validateInput(in); err != nil {
		return domain.Task{}, err
	}
	if in.Name == "" {
		in.Name = in.URL
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	item := domain.DesignerDelivery{
		ID:          uuid.NewString(),
		Type:        domain.DeliveryLink,
		Name:        in.Name,
		URL:         in.URL,
		Description: trimmed(in.Description),
		UploadedAt:  e.now(),
		UploadedBy:  actor.ID,
	}
	return e.mutate(ctx, in.TaskID, actor, func(t domain.Task) (change, error) {
		if err := checkArtifactEdit(t, actor, opAddArtifact); err != nil {
			return change{}, err
		}
		return change{
			Patch:   domain.TaskPatch{Deliveries: appendArtifact(t, item)},
			Event:   events.DeliveryAdded,
			Kind:    "delivery",
			Entity:  item.ID,
			Payload: events.Payload{"type": item.Type, "url": item.URL},
		}, nil
	})
}

// RemoveDelivery drops one artifact. Approved deliveries are immutable.
func (e Engine) RemoveDelivery(ctx context.Context, taskID, deliveryID, actorID string) (domain.Task, error) {
	if deliveryID == "" {
		return domain.Task{}, ValidationError{Field: "delivery_id", Reason: "required"}
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	var removed domain.DesignerDelivery
	t, err := e.mutate(ctx, taskID, actor, func(t domain.Task) (change, error) {
		if err := checkArtifactEdit(t, actor, opRemoveArtifact); err != nil {
			return change{}, err
		}
		item, ok := t.DesignerDeliveries.Find(deliveryID)
		if !ok {
			return change{}, NotFoundError{Kind: "delivery", ID: deliveryID}
		}
		d := t.DesignerDeliveries.Clone()
		d.Remove(deliveryID)
		removed = item
		return change{
			Patch:   domain.TaskPatch{Deliveries: d},
			Event:   events.DeliveryRemoved,
			Kind:    "delivery",
			Entity:  item.ID,
			Payload: events.Payload{"type": item.Type, "name": item.Name},
		}, nil
	})
	if err != nil {
		return t, err
	}
	e.discardBlob(ctx, taskID, actor, removed.StorageKey)
	return t, nil
}

// SubmitDelivery marks the delivery SUBMITTED and the task READY_FOR_REVIEW in one write.
func (e Engine) SubmitDelivery(ctx context.Context, taskID, actorID string, notes *string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.mutate(ctx, taskID, actor, func(t domain.Task) (change, error) {
		to, ok := Next(t.Status, EventSubmitDelivery)
		if !ok {
			return change{}, reject(t, EventSubmitDelivery, "", nil)
		}
		if err := auth.RequireAssignee(actor, t); err != nil {
			return change{}, reject(t, EventSubmitDelivery, "only the assigned designer may submit", err)
		}
		if t.DesignerDeliveries.Count() == 0 {
			return change{}, reject(t, EventSubmitDelivery, "at least one file or link is required", nil)
		}
		d := t.DesignerDeliveries.Clone()
		submitted := domain.DeliverySubmitted
		d.Status = &submitted
		d.SubmittedAt = &now
		patch := domain.TaskPatch{Status: &to, Deliveries: d}
		if notes != nil {
			d.Notes = trimmed(*notes)
			patch.DesignerNotes = &d.Notes
		}
		return change{
			Patch:   patch,
			Event:   events.DeliverySubmitted,
			Payload: events.Payload{"event": EventSubmitDelivery, "files": len(d.Files), "links": len(d.Links)},
		}, nil
	})
}

type ReviewInput struct {
	TaskID   string                `validate:"required"`
	ActorID  string                `validate:"required"`
	Decision domain.DeliveryStatus `validate:"required"`
	Feedback string
}

func reviewEvent(d domain.DeliveryStatus) (Event, bool) {
	switch d {
	case domain.DeliveryApproved:
		return EventApproveDelivery, true
	case domain.DeliveryRejected:
		return EventRejectDelivery, true
	case domain.DeliveryRevisionRequested:
		return EventRequestRevision, true
	case domain.DeliverySubmitted:
		return "", false
	}
	return "", false
}

// ReviewDelivery records an admin or client decision on a submitted delivery.
// APPROVED completes the task; REJECTED and REVISION_REQUESTED send it back to
// the designer and require feedback.
func (e Engine) ReviewDelivery(ctx context.Context, in ReviewInput) (domain.Task, error) {
	in.Feedback = trimmed(in.Feedback)
	if err := validateInput(in); err != nil {
		return domain.Task{}, err
	}
	ev, ok := reviewEvent(in.Decision)
	if !ok {
		return domain.Task{}, ValidationError{Field: "decision", Reason: fmt.Sprintf("must be APPROVED, REJECTED or REVISION_REQUESTED, got %q", in.Decision)}
	}
	if in.Decision != domain.DeliveryApproved {
		if err := requireFeedback("feedback", in.Feedback); err != nil {
			return domain.Task{}, err
		}
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.mutate(ctx, in.TaskID, actor, func(t domain.Task) (change, error) {
		to, ok := Next(t.Status, ev)
		if !ok {
			return change{}, reject(t, ev, "", nil)
		}
		if err := auth.RequireReviewer(actor, t); err != nil {
			return change{}, reject(t, ev, "only an admin or the owning client may review", err)
		}
		if !t.DesignerDeliveries.StatusIs(domain.DeliverySubmitted) {
			return change{}, reject(t, ev, "no submitted delivery to review", nil)
		}
		d := t.DesignerDeliveries.Clone()
		decision := in.Decision
		d.Status = &decision
		d.ReviewedBy = actor.ID
		d.ReviewedAt = &now
		if in.Feedback != "" {
			if actor.Role == domain.RoleAdmin {
				d.AdminFeedback = in.Feedback
			} else {
				d.ClientFeedback = in.Feedback
			}
		}
		patch := domain.TaskPatch{Status: &to, Deliveries: d}
		switch decision {
		case domain.DeliveryApproved:
			patch.ReviewedAt = &now
		case domain.DeliveryRevisionRequested:
			d.RevisionRequestedAt = &now
		case domain.DeliveryRejected, domain.DeliverySubmitted:
		}
		return change{
			Patch:   patch,
			Event:   events.DeliveryReviewed,
			Payload: events.Payload{"event": ev, "decision": decision, "reviewer_role": actor.Role},
		}, nil
	})
}

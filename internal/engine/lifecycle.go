package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"blinkworks/internal/domain"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/events"
	"blinkworks/internal/repo"
)

func trimmed(s string) string { return strings.TrimSpace(s) }

// validateInput runs struct tags and reports the first failing field.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return ValidationError{Field: snake(fe.Field()), Reason: "failed " + fe.Tag()}
	}
	return ValidationError{Field: "input", Reason: err.Error()}
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

type CreateTaskInput struct {
	ActorID      string              `validate:"required"`
	Type         domain.TaskType     `validate:"required"`
	Priority     domain.Priority     `validate:"omitempty,oneof=low medium high urgent"`
	Title        string              `validate:"required,max=200"`
	Description  string              `validate:"max=20000"`
	BrandID      string              `validate:"max=100"`
	Requirements domain.Requirements `validate:"-"`
	Deadline     *time.Time
	// Draft keeps the task private to the client until SubmitDraft.
	Draft bool
}

// CreateTask stores a new brief as SUBMITTED (or DRAFT) owned by the acting client.
func (e Engine) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	in.Title = trimmed(in.Title)
	if err := validateInput(in); err != nil {
		return domain.Task{}, err
	}
	if err := validateInput(in.Requirements); err != nil {
		return domain.Task{}, err
	}
	if !e.taskTypeAllowed(in.Type) {
		return domain.Task{}, ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", in.Type)}
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireRole(actor, domain.RoleClient); err != nil {
		return domain.Task{}, err
	}
	status := domain.StatusSubmitted
	if in.Draft {
		status = domain.StatusDraft
	}
	t := domain.Task{
		ID:           uuid.NewString(),
		Type:         in.Type,
		Priority:     in.Priority,
		UserID:       actor.ID,
		BrandID:      in.BrandID,
		Status:       status,
		Title:        in.Title,
		Description:  in.Description,
		Requirements: in.Requirements,
		Deadline:     in.Deadline,
		CreatedAt:    e.now(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, storeErr("begin", err)
	}
	defer tx.Rollback()
	t, err = e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, storeErr("insert task", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TaskCreated,
		TaskID:     t.ID,
		EntityKind: "task",
		EntityID:   t.ID,
		ActorID:    actor.ID,
		Payload:    events.Payload{"status": t.Status, "type": t.Type, "priority": t.Priority},
	}); err != nil {
		return domain.Task{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, storeErr("commit", err)
	}
	return t, nil
}

func (e Engine) taskTypeAllowed(tt domain.TaskType) bool {
	if e.Config == nil || len(e.Config.Tasks.Types) == 0 {
		for _, known := range domain.TaskTypes {
			if known == tt {
				return true
			}
		}
		return false
	}
	for _, allowed := range e.Config.Tasks.Types {
		if domain.TaskType(allowed) == tt {
			return true
		}
	}
	return false
}

// SubmitDraft moves a DRAFT brief into the admin queue.
func (e Engine) SubmitDraft(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	return e.transition(ctx, taskID, actor, EventSubmitDraft, func(t domain.Task, _ *domain.TaskPatch) error {
		if err := auth.RequireOwner(actor, t); err != nil {
			return reject(t, EventSubmitDraft, "only the owning client may submit", err)
		}
		return nil
	})
}

// SendToMarketplace publishes the task for designers to claim. From IN_PROGRESS it
// is only allowed for a directly assigned task and releases that designer.
func (e Engine) SendToMarketplace(ctx context.Context, taskID, actorID, adminNotes string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	var released []string
	task, err := e.transition(ctx, taskID, actor, EventSendToMarketplace, func(t domain.Task, p *domain.TaskPatch) error {
		if err := requireRole(t, EventSendToMarketplace, actor, domain.RoleAdmin); err != nil {
			return err
		}
		if t.PushedToMarketplace {
			return reject(t, EventSendToMarketplace, "already pushed to the marketplace", nil)
		}
		pushed := true
		p.PushedToMarketplace = &pushed
		p.PushedAt = &now
		released = nil
		if t.Status == domain.StatusInProgress {
			p.ReleaseDesigner = true
			// The next designer starts from an empty delivery.
			p.ClearDeliveries = true
			for _, f := range t.DesignerDeliveries.Files {
				released = append(released, f.StorageKey)
			}
		}
		if notes := trimmed(adminNotes); notes != "" {
			p.AdminNotes = &notes
		}
		return nil
	})
	if err != nil {
		return task, err
	}
	for _, key := range released {
		e.discardBlob(ctx, task.ID, actor, key)
	}
	return task, nil
}

// AssignDesigner routes a SUBMITTED task straight to a designer, bypassing the marketplace.
func (e Engine) AssignDesigner(ctx context.Context, taskID, actorID, designerID, adminNotes string) (domain.Task, error) {
	if designerID == "" {
		return domain.Task{}, ValidationError{Field: "designer_id", Reason: "required"}
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	designer, err := e.actor(ctx, designerID)
	if err != nil {
		return domain.Task{}, err
	}
	if designer.Role != domain.RoleDesigner {
		return domain.Task{}, ValidationError{Field: "designer_id", Reason: fmt.Sprintf("user %s is not a designer", designerID)}
	}
	now := e.now()
	return e.transition(ctx, taskID, actor, EventAssignDesigner, func(t domain.Task, p *domain.TaskPatch) error {
		if err := requireRole(t, EventAssignDesigner, actor, domain.RoleAdmin); err != nil {
			return err
		}
		if t.PushedToMarketplace {
			return reject(t, EventAssignDesigner, "task is already in the marketplace", nil)
		}
		p.AssignedDesigner = &designer.ID
		p.ClaimedAt = &now
		if notes := trimmed(adminNotes); notes != "" {
			p.AdminNotes = &notes
		}
		return nil
	})
}

// RequestInfo sends a SUBMITTED brief back to the client with feedback.
func (e Engine) RequestInfo(ctx context.Context, taskID, actorID, feedback string) (domain.Task, error) {
	feedback = trimmed(feedback)
	if err := requireFeedback("feedback", feedback); err != nil {
		return domain.Task{}, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.transition(ctx, taskID, actor, EventRequestInfo, func(t domain.Task, p *domain.TaskPatch) error {
		if err := requireRole(t, EventRequestInfo, actor, domain.RoleAdmin); err != nil {
			return err
		}
		if t.OpenFeedback() >= 0 {
			return reject(t, EventRequestInfo, "an information request is already open", nil)
		}
		p.AdminFeedback = &feedback
		p.AppendFeedback = &domain.FeedbackEntry{
			ID:          uuid.NewString(),
			Feedback:    feedback,
			RequestedBy: actor.ID,
			RequestedAt: now,
		}
		return nil
	})
}

type ResubmitInput struct {
	TaskID       string `validate:"required"`
	ActorID      string `validate:"required"`
	Description  *string
	Requirements *domain.Requirements
}

// Resubmit answers an information request and returns the brief to the admin queue.
func (e Engine) Resubmit(ctx context.Context, in ResubmitInput) (domain.Task, error) {
	if err := validateInput(in); err != nil {
		return domain.Task{}, err
	}
	if in.Requirements != nil {
		if err := validateInput(*in.Requirements); err != nil {
			return domain.Task{}, err
		}
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.transition(ctx, in.TaskID, actor, EventResubmit, func(t domain.Task, p *domain.TaskPatch) error {
		if err := auth.RequireOwner(actor, t); err != nil {
			return reject(t, EventResubmit, "only the owning client may resubmit", err)
		}
		if idx := t.OpenFeedback(); idx >= 0 {
			p.ResolveFeedback = &domain.ResolveFeedback{ID: t.AdminFeedbackHistory[idx].ID, At: now}
		}
		cleared := ""
		p.AdminFeedback = &cleared
		p.Description = in.Description
		p.Requirements = in.Requirements
		return nil
	})
}

// Claim takes an unassigned marketplace task for the acting designer.
func (e Engine) Claim(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.mutate(ctx, taskID, actor, func(t domain.Task) (change, error) {
		if err := requireRole(t, EventClaim, actor, domain.RoleDesigner); err != nil {
			return change{}, err
		}
		if t.AssignedDesigner != nil {
			return change{}, reject(t, EventClaim, "", ErrAlreadyClaimed)
		}
		if !t.InMarketplace() {
			return change{}, reject(t, EventClaim, "", ErrNotAvailable)
		}
		to, ok := Next(t.Status, EventClaim)
		if !ok {
			return change{}, reject(t, EventClaim, "", ErrNotAvailable)
		}
		return change{
			Patch:   domain.TaskPatch{Status: &to, AssignedDesigner: &actor.ID, ClaimedAt: &now},
			Payload: events.Payload{"event": EventClaim},
		}, nil
	})
}

// ApproveWork is the admin sign-off that makes a delivery visible to the client.
func (e Engine) ApproveWork(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	return e.transition(ctx, taskID, actor, EventAdminApprove, func(t domain.Task, p *domain.TaskPatch) error {
		if err := requireRole(t, EventAdminApprove, actor, domain.RoleAdmin); err != nil {
			return err
		}
		if !t.DesignerDeliveries.StatusIs(domain.DeliverySubmitted) {
			return reject(t, EventAdminApprove, "no submitted delivery to approve", nil)
		}
		p.ReviewedAt = &now
		return nil
	})
}

// CancelTask ends the task. Admins may cancel anything not terminal; the owning
// client only before a designer starts work.
func (e Engine) CancelTask(ctx context.Context, taskID, actorID, reason string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	return e.mutate(ctx, taskID, actor, func(t domain.Task) (change, error) {
		to, ok := Next(t.Status, EventCancel)
		if !ok {
			return change{}, reject(t, EventCancel, "", nil)
		}
		switch actor.Role {
		case domain.RoleAdmin:
		case domain.RoleClient:
			if err := auth.RequireOwner(actor, t); err != nil {
				return change{}, reject(t, EventCancel, "only the owning client may cancel", err)
			}
			if !clientCancellable(t.Status) {
				return change{}, reject(t, EventCancel, "work has started; ask an admin to cancel", nil)
			}
		case domain.RoleDesigner:
			return change{}, reject(t, EventCancel, "designers cannot cancel tasks", auth.ForbiddenError{Permission: auth.PermAdmin, ActorID: actor.ID})
		}
		payload := events.Payload{"event": EventCancel}
		if r := trimmed(reason); r != "" {
			payload["reason"] = r
		}
		return change{Patch: domain.TaskPatch{Status: &to}, Payload: payload}, nil
	})
}

const opDelete Event = "delete"

// DeleteTask hard-deletes a brief that no designer has touched.
func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Kind: "task", ID: taskID}
	}
	if err != nil {
		return storeErr("get task", err)
	}
	if err := auth.RequireOwner(actor, t); err != nil {
		return reject(t, opDelete, "only the owning client may delete", err)
	}
	if t.Status != domain.StatusSubmitted && t.Status != domain.StatusInfoRequested {
		return reject(t, opDelete, "only SUBMITTED or INFO_REQUESTED tasks can be deleted", nil)
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID, t.Version); err != nil {
		return storeErr("delete task", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TaskDeleted,
		TaskID:     t.ID,
		EntityKind: "task",
		EntityID:   t.ID,
		ActorID:    actor.ID,
		Payload:    events.Payload{"status": t.Status},
	}); err != nil {
		return storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// GetTask returns the task if the actor may see it.
func (e Engine) GetTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return t, NotFoundError{Kind: "task", ID: taskID}
	}
	if err != nil {
		return t, storeErr("get task", err)
	}
	if !auth.CanView(actor, t) {
		return domain.Task{}, auth.ForbiddenError{Permission: "task.read", ActorID: actor.ID}
	}
	return t, nil
}

type ListTasksInput struct {
	ActorID     string
	OwnerID     string
	AssigneeID  string
	Marketplace bool
	Status      string
	Limit       int
}

// ListTasks lists tasks visible to the actor. Clients always see only their own
// tasks; designers see the marketplace or their assignments.
func (e Engine) ListTasks(ctx context.Context, in ListTasksInput) ([]domain.Task, error) {
	f := repo.TaskFilter{Limit: in.Limit}
	if in.Status != "" {
		s, err := domain.ParseTaskStatus(in.Status)
		if err != nil {
			return nil, ValidationError{Field: "status", Reason: err.Error()}
		}
		f.Status = s
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case domain.RoleAdmin:
		f.OwnerID = in.OwnerID
		f.AssigneeID = in.AssigneeID
		f.Marketplace = in.Marketplace
	case domain.RoleClient:
		f.OwnerID = actor.ID
	case domain.RoleDesigner:
		if in.Marketplace {
			f.Marketplace = true
		} else {
			f.AssigneeID = actor.ID
		}
	}
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// TaskEvents returns the audit trail of a task, newest first.
func (e Engine) TaskEvents(ctx context.Context, taskID, actorID string, limit int) ([]domain.Event, error) {
	if _, err := e.GetTask(ctx, taskID, actorID); err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, repo.EventFilter{TaskID: taskID, Limit: limit})
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return evts, nil
}

// RecentEvents is the admin audit feed across all tasks, newest first.
func (e Engine) RecentEvents(ctx context.Context, actorID string, f repo.EventFilter) ([]domain.Event, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return evts, nil
}

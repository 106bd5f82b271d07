package domain

import "time"

// ResolveFeedback marks the open history entry ID as resolved at At.
type ResolveFeedback struct {
	ID string
	At time.Time
}

// TaskPatch is a partial task update with merge semantics. Nil fields are left untouched.
// Feedback history can only grow or gain ResolvedAt.
type TaskPatch struct {
	Status              *TaskStatus
	AssignedDesigner    *string
	ReleaseDesigner     bool
	PushedToMarketplace *bool
	PushedAt            *time.Time
	ClaimedAt           *time.Time
	ReviewedAt          *time.Time
	Description         *string
	Requirements        *Requirements
	AdminNotes          *string
	DesignerNotes       *string
	AdminFeedback       *string
	AppendFeedback      *FeedbackEntry
	ResolveFeedback     *ResolveFeedback
	Deliveries          *DesignerDeliveries
	ClearDeliveries     bool
}

// Apply merges p into t. It does not stamp UpdatedAt; the store does.
func (p TaskPatch) Apply(t *Task) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ReleaseDesigner {
		t.AssignedDesigner = nil
		t.ClaimedAt = nil
	}
	if p.AssignedDesigner != nil {
		id := *p.AssignedDesigner
		t.AssignedDesigner = &id
	}
	if p.PushedToMarketplace != nil {
		t.PushedToMarketplace = *p.PushedToMarketplace
	}
	if p.PushedAt != nil {
		t.PushedAt = timePtr(*p.PushedAt)
	}
	if p.ClaimedAt != nil {
		t.ClaimedAt = timePtr(*p.ClaimedAt)
	}
	if p.ReviewedAt != nil {
		t.ReviewedAt = timePtr(*p.ReviewedAt)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Requirements != nil {
		t.Requirements = *p.Requirements
	}
	if p.AdminNotes != nil {
		t.AdminNotes = *p.AdminNotes
	}
	if p.DesignerNotes != nil {
		t.DesignerNotes = *p.DesignerNotes
	}
	if p.AdminFeedback != nil {
		t.AdminFeedback = *p.AdminFeedback
	}
	if p.ResolveFeedback != nil {
		history := append([]FeedbackEntry(nil), t.AdminFeedbackHistory...)
		for i := range history {
			if history[i].ID == p.ResolveFeedback.ID && history[i].Open() {
				history[i].ResolvedAt = timePtr(p.ResolveFeedback.At)
			}
		}
		t.AdminFeedbackHistory = history
	}
	if p.AppendFeedback != nil {
		t.AdminFeedbackHistory = append(append([]FeedbackEntry(nil), t.AdminFeedbackHistory...), *p.AppendFeedback)
	}
	if p.ClearDeliveries {
		t.DesignerDeliveries = nil
	}
	if p.Deliveries != nil {
		t.DesignerDeliveries = p.Deliveries.Clone()
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

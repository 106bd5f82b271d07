package domain

import (
	"fmt"
	"time"
)

// TaskStatus is the primary state variable of a task.
type TaskStatus string

const (
	StatusDraft             TaskStatus = "DRAFT"
	StatusSubmitted         TaskStatus = "SUBMITTED"
	StatusInReview          TaskStatus = "IN_REVIEW"
	StatusInProgress        TaskStatus = "IN_PROGRESS"
	StatusReadyForReview    TaskStatus = "READY_FOR_REVIEW"
	StatusRevisionRequested TaskStatus = "REVISION_REQUESTED"
	StatusCompleted         TaskStatus = "COMPLETED"
	StatusCancelled         TaskStatus = "CANCELLED"
	StatusInfoRequested     TaskStatus = "INFO_REQUESTED"
	StatusApproved          TaskStatus = "APPROVED"
)

// TaskStatuses lists every task status in lifecycle order.
var TaskStatuses = []TaskStatus{
	StatusDraft,
	StatusSubmitted,
	StatusInfoRequested,
	StatusInReview,
	StatusInProgress,
	StatusReadyForReview,
	StatusRevisionRequested,
	StatusApproved,
	StatusCompleted,
	StatusCancelled,
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusInReview, StatusInProgress, StatusReadyForReview,
		StatusRevisionRequested, StatusCompleted, StatusCancelled, StatusInfoRequested, StatusApproved:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusDraft, StatusSubmitted, StatusInReview, StatusInProgress, StatusReadyForReview,
		StatusRevisionRequested, StatusInfoRequested, StatusApproved:
		return false
	}
	return false
}

// Active reports whether the status counts toward workload.
func (s TaskStatus) Active() bool {
	switch s {
	case StatusSubmitted, StatusInReview, StatusInProgress, StatusReadyForReview, StatusRevisionRequested:
		return true
	case StatusDraft, StatusCompleted, StatusCancelled, StatusInfoRequested, StatusApproved:
		return false
	}
	return false
}

// ParseTaskStatus is exact-match; "submitted" is not a status.
func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid task status %q", v)
	}
	return s, nil
}

// DeliveryStatus is the review state of a designer submission.
type DeliveryStatus string

const (
	DeliverySubmitted         DeliveryStatus = "SUBMITTED"
	DeliveryApproved          DeliveryStatus = "APPROVED"
	DeliveryRejected          DeliveryStatus = "REJECTED"
	DeliveryRevisionRequested DeliveryStatus = "REVISION_REQUESTED"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliverySubmitted, DeliveryApproved, DeliveryRejected, DeliveryRevisionRequested:
		return true
	}
	return false
}

func ParseDeliveryStatus(v string) (DeliveryStatus, error) {
	s := DeliveryStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid delivery status %q", v)
	}
	return s, nil
}

type TaskType string

const (
	TypeStaticDesign TaskType = "static_design"
	TypeVideo        TaskType = "video"
	TypeAnimation    TaskType = "animation"
	TypeIllustration TaskType = "illustration"
	TypeBranding     TaskType = "branding"
	TypeWebDesign    TaskType = "web_design"
	TypeOther        TaskType = "other"
)

var TaskTypes = []TaskType{
	TypeStaticDesign, TypeVideo, TypeAnimation, TypeIllustration, TypeBranding, TypeWebDesign, TypeOther,
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Role is the platform role of a user.
type Role string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDesigner, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role" enum:"client,designer,admin"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reference is an uploaded reference file attached to a brief.
type Reference struct {
	Name string `json:"name"`
	URL  string `json:"url" validate:"required,url"`
}

// Requirements is the structured creative brief.
type Requirements struct {
	ContentTypes    []string    `json:"content_types,omitempty"`
	BrandGuidelines string      `json:"brand_guidelines,omitempty"`
	MustInclude     string      `json:"must_include,omitempty"`
	MustExclude     string      `json:"must_exclude,omitempty"`
	ReferenceFiles  []Reference `json:"reference_files,omitempty" validate:"dive"`
	ReferenceLinks  []string    `json:"reference_links,omitempty" validate:"dive,url"`
}

// FeedbackEntry records one info-request cycle. Only ResolvedAt may change after append.
type FeedbackEntry struct {
	ID          string     `json:"id"`
	Feedback    string     `json:"feedback"`
	RequestedBy string     `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func (f FeedbackEntry) Open() bool { return f.ResolvedAt == nil }

type Task struct {
	ID                   string              `json:"id"`
	Type                 TaskType            `json:"type"`
	Priority             Priority            `json:"priority"`
	UserID               string              `json:"user_id"`
	BrandID              string              `json:"brand_id,omitempty"`
	AssignedDesigner     *string             `json:"assigned_designer,omitempty"`
	Status               TaskStatus          `json:"status"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	Requirements         Requirements        `json:"requirements"`
	AdminNotes           string              `json:"admin_notes,omitempty"`
	DesignerNotes        string              `json:"designer_notes,omitempty"`
	AdminFeedback        string              `json:"admin_feedback,omitempty"`
	AdminFeedbackHistory []FeedbackEntry     `json:"admin_feedback_history"`
	PushedToMarketplace  bool                `json:"pushed_to_marketplace"`
	PushedAt             *time.Time          `json:"pushed_at,omitempty"`
	ClaimedAt            *time.Time          `json:"claimed_at,omitempty"`
	ReviewedAt           *time.Time          `json:"reviewed_at,omitempty"`
	Deadline             *time.Time          `json:"deadline,omitempty"`
	DesignerDeliveries   *DesignerDeliveries `json:"designer_deliveries,omitempty"`
	Version              int64               `json:"version"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// OpenFeedback returns the index of the unresolved feedback entry, or -1.
func (t Task) OpenFeedback() int {
	for i := len(t.AdminFeedbackHistory) - 1; i >= 0; i-- {
		if t.AdminFeedbackHistory[i].Open() {
			return i
		}
	}
	return -1
}

func (t Task) AssignedTo(userID string) bool {
	return t.AssignedDesigner != nil && *t.AssignedDesigner == userID
}

// InMarketplace reports whether designers may claim the task.
func (t Task) InMarketplace() bool {
	return t.Status == StatusInReview && t.PushedToMarketplace && t.AssignedDesigner == nil
}

// Overdue is deadline-before-now on any task that is not completed.
func (t Task) Overdue(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now) && t.Status != StatusCompleted
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TaskID     string `json:"task_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

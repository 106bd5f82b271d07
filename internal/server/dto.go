package server

import (
	"encoding/json"
	"time"

	"blinkworks/internal/config"
	"blinkworks/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Type         string              `json:"type" enum:"static_design,video,animation,illustration,branding,web_design,other"`
	Priority     string              `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Title        string              `json:"title" minLength:"1" maxLength:"200"`
	Description  string              `json:"description,omitempty"`
	BrandID      string              `json:"brand_id,omitempty"`
	Requirements domain.Requirements `json:"requirements,omitempty"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	Draft        bool                `json:"draft,omitempty" doc:"Keep the brief private until submitted"`
}

type AdminNotesRequest struct {
	AdminNotes string `json:"admin_notes,omitempty"`
}

type AssignDesignerRequest struct {
	DesignerID string `json:"designer_id"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

type ResubmitRequest struct {
	Description  *string              `json:"description,omitempty"`
	Requirements *domain.Requirements `json:"requirements,omitempty"`
}

type CancelTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AddLinkRequest struct {
	Name        string `json:"name,omitempty"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

type SubmitDeliveryRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type ReviewDeliveryRequest struct {
	Decision string `json:"decision" enum:"APPROVED,REJECTED,REVISION_REQUESTED"`
	Feedback string `json:"feedback,omitempty"`
}

type CreateUserRequest struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role" enum:"client,designer,admin"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type TaskResponse struct {
	domain.Task
	Overdue       bool `json:"overdue"`
	InMarketplace bool `json:"in_marketplace"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TaskID     string         `json:"task_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty" doc:"Shown once"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MeResponse struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	Name   string      `json:"name"`
	Email  string      `json:"email,omitempty"`
	Source string      `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type PlatformResponse struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	TaskTypes  []string `json:"task_types"`
	Priorities []string `json:"priorities"`
	MaxUpload  int64    `json:"max_upload_bytes"`
}

type paginatedTasks struct {
	Items []TaskResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func taskResponse(t domain.Task, now time.Time) TaskResponse {
	if t.AdminFeedbackHistory == nil {
		t.AdminFeedbackHistory = []domain.FeedbackEntry{}
	}
	return TaskResponse{Task: t, Overdue: t.Overdue(now), InMarketplace: t.InMarketplace()}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TaskID:     e.TaskID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func apiKeyResponse(k domain.APIKey, raw string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}
}

func platformResponse(cfg *config.Config) PlatformResponse {
	return PlatformResponse{
		ID:         cfg.Platform.ID,
		Kind:       cfg.Platform.Kind,
		TaskTypes:  nonNilSlice(cfg.Tasks.Types),
		Priorities: nonNilSlice(cfg.Tasks.Priorities),
		MaxUpload:  cfg.Storage.MaxBytes,
	}
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

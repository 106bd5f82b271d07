package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"blinkworks/internal/db"
	"blinkworks/internal/domain"
	"blinkworks/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := Repo{DB: conn, Now: func() time.Time { return now }}
	for _, u := range []domain.User{
		{ID: "client-1", Role: domain.RoleClient, Name: "Cleo"},
		{ID: "designer-1", Role: domain.RoleDesigner, Name: "Dana"},
		{ID: "admin-1", Role: domain.RoleAdmin, Name: "Ari"},
	} {
		if _, err := r.InsertUser(context.Background(), nil, u); err != nil {
			t.Fatalf("insert user %s: %v", u.ID, err)
		}
	}
	return r
}

func insertTask(t *testing.T, r Repo, id string, status domain.TaskStatus) domain.Task {
	t.Helper()
	task, err := r.InsertTask(context.Background(), nil, domain.Task{
		ID:       id,
		Type:     domain.TypeBranding,
		Priority: domain.PriorityHigh,
		UserID:   "client-1",
		Status:   status,
		Title:    "Logo refresh",
	})
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return task
}

func TestTaskRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	deadline := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	in := domain.Task{
		ID:       "task-1",
		Type:     domain.TypeVideo,
		Priority: domain.PriorityUrgent,
		UserID:   "client-1",
		Status:   domain.StatusSubmitted,
		Title:    "Teaser",
		Requirements: domain.Requirements{
			ContentTypes:   []string{"mp4"},
			ReferenceLinks: []string{"https://example.com/ref"},
		},
		Deadline: &deadline,
	}
	if _, err := r.InsertTask(ctx, nil, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Status != domain.StatusSubmitted || got.Priority != domain.PriorityUrgent {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Fatalf("deadline lost: %v", got.Deadline)
	}
	if len(got.Requirements.ReferenceLinks) != 1 || got.AdminFeedbackHistory == nil {
		t.Fatalf("json columns not decoded: %+v", got)
	}
	if got.DesignerDeliveries != nil {
		t.Fatalf("deliveries should be absent until the first artifact")
	}
	if _, err := r.GetTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutTaskIsConditionalOnVersion(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	task := insertTask(t, r, "task-1", domain.StatusInReview)

	designer := "designer-1"
	status := domain.StatusInProgress
	updated, err := r.PutTask(ctx, nil, task.ID, task.Version, domain.TaskPatch{Status: &status, AssignedDesigner: &designer})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if updated.Version != 2 || !updated.AssignedTo("designer-1") {
		t.Fatalf("unexpected update: %+v", updated)
	}

	other := "designer-2"
	if _, err := r.PutTask(ctx, nil, task.ID, task.Version, domain.TaskPatch{AssignedDesigner: &other}); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale write should conflict, got %v", err)
	}
	stored, err := r.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.AssignedTo("designer-1") {
		t.Fatalf("stale write leaked: %+v", stored.AssignedDesigner)
	}
	if _, err := r.PutTask(ctx, nil, "missing", 1, domain.TaskPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutTaskStoresDeliveriesAndHistory(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	task := insertTask(t, r, "task-1", domain.StatusSubmitted)

	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	d := &domain.DesignerDeliveries{}
	d.Append(domain.DesignerDelivery{ID: "f1", Type: domain.DeliveryFile, Name: "logo.png", URL: "/files/x", UploadedAt: at})
	updated, err := r.PutTask(ctx, nil, task.ID, task.Version, domain.TaskPatch{
		AppendFeedback: &domain.FeedbackEntry{ID: "fb-1", Feedback: "which colours?", RequestedBy: "admin-1", RequestedAt: at},
		Deliveries:     d,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := r.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.AdminFeedbackHistory) != 1 || got.OpenFeedback() != 0 {
		t.Fatalf("history not stored: %+v", got.AdminFeedbackHistory)
	}
	if got.DesignerDeliveries.Count() != 1 || got.DesignerDeliveries.Files[0].Name != "logo.png" {
		t.Fatalf("deliveries not stored: %+v", got.DesignerDeliveries)
	}
	if !got.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Fatalf("updated_at mismatch: %v vs %v", got.UpdatedAt, updated.UpdatedAt)
	}
}

func TestListTasksFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertTask(t, r, "task-a", domain.StatusSubmitted)
	pushed := insertTask(t, r, "task-b", domain.StatusInReview)
	yes := true
	if _, err := r.PutTask(ctx, nil, pushed.ID, pushed.Version, domain.TaskPatch{PushedToMarketplace: &yes}); err != nil {
		t.Fatalf("push: %v", err)
	}
	claimed := insertTask(t, r, "task-c", domain.StatusInReview)
	designer := "designer-1"
	if _, err := r.PutTask(ctx, nil, claimed.ID, claimed.Version, domain.TaskPatch{PushedToMarketplace: &yes, AssignedDesigner: &designer}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	all, err := r.ListTasks(ctx, TaskFilter{OwnerID: "client-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	market, err := r.ListTasks(ctx, TaskFilter{Marketplace: true})
	if err != nil {
		t.Fatalf("list marketplace: %v", err)
	}
	if len(market) != 1 || market[0].ID != "task-b" {
		t.Fatalf("unexpected marketplace: %+v", market)
	}
	mine, err := r.ListTasks(ctx, TaskFilter{AssigneeID: "designer-1"})
	if err != nil {
		t.Fatalf("list assignee: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "task-c" {
		t.Fatalf("unexpected assignee list: %+v", mine)
	}
}

func TestDeleteTask(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	task := insertTask(t, r, "task-1", domain.StatusSubmitted)
	if err := r.DeleteTask(ctx, nil, task.ID, task.Version+1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := r.DeleteTask(ctx, nil, task.ID, task.Version); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteTask(ctx, nil, task.ID, task.Version); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	hash := HashAPIKey(" secret ")
	if hash != HashAPIKey("secret") {
		t.Fatalf("hash should ignore surrounding whitespace")
	}
	if err := r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", UserID: "admin-1", KeyHash: hash}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.UserID != "admin-1" {
		t.Fatalf("lookup: %+v %v", key, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListUsersByRole(t *testing.T) {
	r := newTestRepo(t)
	designers, err := r.ListUsers(context.Background(), domain.RoleDesigner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(designers) != 1 || designers[0].ID != "designer-1" {
		t.Fatalf("unexpected designers: %+v", designers)
	}
	if _, err := r.GetUser(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

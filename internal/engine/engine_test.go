package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"blinkworks/internal/blob"
	"blinkworks/internal/config"
	"blinkworks/internal/db"
	"blinkworks/internal/domain"
	"blinkworks/internal/engine"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/migrate"
	"blinkworks/internal/repo"
)

const (
	adminID     = "admin-1"
	clientID    = "client-1"
	otherClient = "client-2"
	designerA   = "designer-a"
	designerB   = "designer-b"
)

type fakeJanitor struct {
	mu   sync.Mutex
	keys []string
}

func (j *fakeJanitor) ScheduleBlobDelete(_ context.Context, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keys = append(j.keys, key)
	return nil
}

func (j *fakeJanitor) Keys() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.keys...)
}

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Files   afero.Fs
	Janitor *fakeJanitor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	files := afero.NewMemMapFs()
	eng.Blobs = blob.FS{Fs: files, Root: "/files", BaseURL: "/files"}
	janitor := &fakeJanitor{}
	eng.Janitor = janitor

	seed := []engine.CreateUserInput{
		{ID: adminID, Role: domain.RoleAdmin, Name: "Ada Admin"},
		{ActorID: adminID, ID: clientID, Role: domain.RoleClient, Name: "Cleo Client", Email: "cleo@example.com"},
		{ActorID: adminID, ID: otherClient, Role: domain.RoleClient, Name: "Otto Other"},
		{ActorID: adminID, ID: designerA, Role: domain.RoleDesigner, Name: "Dana A"},
		{ActorID: adminID, ID: designerB, Role: domain.RoleDesigner, Name: "Dev B"},
	}
	for _, in := range seed {
		if _, err := eng.CreateUser(ctx, in); err != nil {
			t.Fatalf("seed user %s: %v", in.ID, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx, Files: files, Janitor: janitor}
}

func (env testEnv) createTask(t *testing.T) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{
		ActorID: clientID,
		Type:    domain.TypeStaticDesign,
		Title:   "Spring campaign banner",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// claimed returns a task IN_PROGRESS for designerA via the marketplace.
func (env testEnv) claimed(t *testing.T) domain.Task {
	t.Helper()
	task := env.createTask(t)
	if _, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, ""); err != nil {
		t.Fatalf("send to marketplace: %v", err)
	}
	task, err := env.Engine.Claim(env.Ctx, task.ID, designerA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return task
}

// readyForReview returns a task with one submitted link.
func (env testEnv) readyForReview(t *testing.T) domain.Task {
	t.Helper()
	task := env.claimed(t)
	if _, err := env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerA, URL: "https://figma.com/file/abc"}); err != nil {
		t.Fatalf("add link: %v", err)
	}
	task, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil)
	if err != nil {
		t.Fatalf("submit delivery: %v", err)
	}
	return task
}

func TestMarketplaceClaimFlow(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if task.Status != domain.StatusSubmitted {
		t.Fatalf("new task status = %s", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("default priority = %s", task.Priority)
	}

	task, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, "good brief")
	if err != nil {
		t.Fatalf("send to marketplace: %v", err)
	}
	if task.Status != domain.StatusInReview || !task.PushedToMarketplace || task.PushedAt == nil {
		t.Fatalf("unexpected task after push: %+v", task)
	}

	task, err = env.Engine.Claim(env.Ctx, task.ID, designerA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task.Status != domain.StatusInProgress || !task.AssignedTo(designerA) || task.ClaimedAt == nil {
		t.Fatalf("unexpected task after claim: %+v", task)
	}

	_, err = env.Engine.Claim(env.Ctx, task.ID, designerB)
	if !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID, adminID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !got.AssignedTo(designerA) {
		t.Fatalf("assignee changed to %v", got.AssignedDesigner)
	}
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, ""); err != nil {
		t.Fatalf("send to marketplace: %v", err)
	}

	designers := []string{designerA, designerB}
	errs := make([]error, len(designers))
	var wg sync.WaitGroup
	for i, id := range designers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.Engine.Claim(env.Ctx, task.ID, id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, engine.ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.AssignedDesigner == nil || got.Status != domain.StatusInProgress {
		t.Fatalf("task not claimed: %+v", got)
	}
}

func TestClaimRequiresMarketplace(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	_, err := env.Engine.Claim(env.Ctx, task.ID, designerA)
	if !errors.Is(err, engine.ErrNotAvailable) {
		t.Fatalf("claim on SUBMITTED err = %v, want ErrNotAvailable", err)
	}
	_, err = env.Engine.Claim(env.Ctx, task.ID, clientID)
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("client claim err = %v, want forbidden", err)
	}
}

func TestInfoRequestCycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)

	if _, err := env.Engine.RequestInfo(env.Ctx, task.ID, adminID, "   "); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("blank feedback err = %v, want validation", err)
	}
	task, err := env.Engine.RequestInfo(env.Ctx, task.ID, adminID, "need more detail")
	if err != nil {
		t.Fatalf("request info: %v", err)
	}
	if task.Status != domain.StatusInfoRequested || task.AdminFeedback != "need more detail" {
		t.Fatalf("unexpected task: status=%s feedback=%q", task.Status, task.AdminFeedback)
	}
	if len(task.AdminFeedbackHistory) != 1 || !task.AdminFeedbackHistory[0].Open() {
		t.Fatalf("history = %+v, want one open entry", task.AdminFeedbackHistory)
	}

	desc := "Banner 1200x628, brand blue, include logo"
	task, err = env.Engine.Resubmit(env.Ctx, engine.ResubmitInput{TaskID: task.ID, ActorID: clientID, Description: &desc})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if task.Status != domain.StatusSubmitted || task.AdminFeedback != "" || task.Description != desc {
		t.Fatalf("unexpected task after resubmit: %+v", task)
	}
	if len(task.AdminFeedbackHistory) != 1 || task.AdminFeedbackHistory[0].ResolvedAt == nil {
		t.Fatalf("history entry not resolved: %+v", task.AdminFeedbackHistory)
	}

	// A second cycle appends; the first entry is untouched.
	first := task.AdminFeedbackHistory[0]
	task, err = env.Engine.RequestInfo(env.Ctx, task.ID, adminID, "which logo?")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if len(task.AdminFeedbackHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(task.AdminFeedbackHistory))
	}
	if got := task.AdminFeedbackHistory[0]; got.ID != first.ID || got.Feedback != first.Feedback || !got.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Fatalf("first entry rewritten: %+v", got)
	}
}

func TestResubmitOnlyByOwner(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.RequestInfo(env.Ctx, task.ID, adminID, "more please"); err != nil {
		t.Fatalf("request info: %v", err)
	}
	_, err := env.Engine.Resubmit(env.Ctx, engine.ResubmitInput{TaskID: task.ID, ActorID: otherClient})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != auth.PermTaskOwner {
		t.Fatalf("err = %v, want task.owner forbidden", err)
	}
}

func TestAssignDesignerBypassesMarketplace(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.AssignDesigner(env.Ctx, task.ID, adminID, clientID, ""); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("assigning a client err = %v, want validation", err)
	}
	task, err := env.Engine.AssignDesigner(env.Ctx, task.ID, adminID, designerB, "rush job")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if task.Status != domain.StatusInProgress || !task.AssignedTo(designerB) || task.PushedToMarketplace || task.AdminNotes != "rush job" {
		t.Fatalf("unexpected task: %+v", task)
	}

	// Pushing a directly assigned task releases the designer.
	task, err = env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, "")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if task.Status != domain.StatusInReview || task.AssignedDesigner != nil || task.ClaimedAt != nil {
		t.Fatalf("designer not released: %+v", task)
	}
}

func TestPushFromClaimedInProgressRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	_, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, "")
	if !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("err = %v, want illegal transition", err)
	}
}

func TestPushReleasesDeliveries(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.AssignDesigner(env.Ctx, task.ID, adminID, designerA, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	task = addFile(t, env, task.ID, "draft.png", "draft")
	key := task.DesignerDeliveries.Files[0].StorageKey
	if _, err := env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerA, URL: "https://figma.com/file/draft"}); err != nil {
		t.Fatalf("add link: %v", err)
	}

	task, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, "")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if task.DesignerDeliveries.Count() != 0 {
		t.Fatalf("released designer's deliveries kept: %+v", task.DesignerDeliveries)
	}
	if keys := env.Janitor.Keys(); len(keys) != 1 || keys[0] != key {
		t.Fatalf("janitor keys = %v, want [%s]", keys, key)
	}

	if _, err := env.Engine.Claim(env.Ctx, task.ID, designerB); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerB, nil); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("submit with no artifacts err = %v, want illegal transition", err)
	}
}

func TestRoleChecksAreTransitionErrors(t *testing.T) {
	env := newTestEnv(t)
	submitted := env.createTask(t)
	pushed := env.createTask(t)
	if _, err := env.Engine.SendToMarketplace(env.Ctx, pushed.ID, adminID, ""); err != nil {
		t.Fatalf("push: %v", err)
	}
	review := env.readyForReview(t)

	cases := []struct {
		name string
		call func() error
	}{
		{"designer pushes", func() error {
			_, err := env.Engine.SendToMarketplace(env.Ctx, submitted.ID, designerA, "")
			return err
		}},
		{"client assigns", func() error {
			_, err := env.Engine.AssignDesigner(env.Ctx, submitted.ID, clientID, designerA, "")
			return err
		}},
		{"client requests info", func() error {
			_, err := env.Engine.RequestInfo(env.Ctx, submitted.ID, clientID, "why?")
			return err
		}},
		{"admin claims", func() error {
			_, err := env.Engine.Claim(env.Ctx, pushed.ID, adminID)
			return err
		}},
		{"client approves work", func() error {
			_, err := env.Engine.ApproveWork(env.Ctx, review.ID, clientID)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.Is(err, engine.ErrIllegalTransition) {
				t.Fatalf("err = %v, want illegal transition", err)
			}
			var fe auth.ForbiddenError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want forbidden cause", err)
			}
			var te engine.TransitionError
			if !errors.As(err, &te) || te.Reason == "" {
				t.Fatalf("err = %v, want a reason", err)
			}
		})
	}

	got, err := env.Engine.GetTask(env.Ctx, submitted.ID, adminID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusSubmitted || got.Version != submitted.Version {
		t.Fatalf("rejected calls wrote the task: %+v", got)
	}
}

func TestDraftSubmit(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{ActorID: clientID, Type: domain.TypeVideo, Title: "Teaser", Draft: true})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if task.Status != domain.StatusDraft {
		t.Fatalf("status = %s", task.Status)
	}
	task, err = env.Engine.SubmitDraft(env.Ctx, task.ID, clientID)
	if err != nil {
		t.Fatalf("submit draft: %v", err)
	}
	if task.Status != domain.StatusSubmitted {
		t.Fatalf("status = %s", task.Status)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		in    engine.CreateTaskInput
		field string
	}{
		{"blank title", engine.CreateTaskInput{ActorID: clientID, Type: domain.TypeVideo, Title: "  "}, "title"},
		{"unknown type", engine.CreateTaskInput{ActorID: clientID, Type: "sculpture", Title: "x"}, "type"},
		{"bad priority", engine.CreateTaskInput{ActorID: clientID, Type: domain.TypeVideo, Title: "x", Priority: "URGENT"}, "priority"},
		{"bad link", engine.CreateTaskInput{ActorID: clientID, Type: domain.TypeVideo, Title: "x", Requirements: domain.Requirements{ReferenceLinks: []string{"not a url"}}}, "reference_links[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, tt.in)
			var ve engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{ActorID: designerA, Type: domain.TypeVideo, Title: "x"}); err == nil {
		t.Fatalf("designer created a task")
	}
}

func TestCancelPermissions(t *testing.T) {
	env := newTestEnv(t)

	task := env.createTask(t)
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, designerA, ""); err == nil {
		t.Fatalf("designer cancelled a task")
	}
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, otherClient, ""); err == nil {
		t.Fatalf("non-owner cancelled a task")
	}
	task, err := env.Engine.CancelTask(env.Ctx, task.ID, clientID, "changed plans")
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if task.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", task.Status)
	}
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, adminID, ""); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("cancel of cancelled task err = %v", err)
	}

	started := env.claimed(t)
	if _, err := env.Engine.CancelTask(env.Ctx, started.ID, clientID, ""); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("client cancel of started work err = %v", err)
	}
	if _, err := env.Engine.CancelTask(env.Ctx, started.ID, adminID, ""); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, otherClient); err == nil {
		t.Fatalf("non-owner deleted task")
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, clientID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := env.Engine.GetTask(env.Ctx, task.ID, clientID)
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}

	claimed := env.claimed(t)
	if err := env.Engine.DeleteTask(env.Ctx, claimed.ID, clientID); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("delete of claimed task err = %v", err)
	}
}

func TestVisibility(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.GetTask(env.Ctx, task.ID, otherClient); err == nil {
		t.Fatalf("other client saw task")
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID, designerA); err == nil {
		t.Fatalf("designer saw an unpublished task")
	}
	if _, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, ""); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID, designerA); err != nil {
		t.Fatalf("designer cannot see marketplace task: %v", err)
	}

	market, err := env.Engine.ListTasks(env.Ctx, engine.ListTasksInput{ActorID: designerB, Marketplace: true})
	if err != nil {
		t.Fatalf("list marketplace: %v", err)
	}
	if len(market) != 1 || market[0].ID != task.ID {
		t.Fatalf("marketplace = %+v", market)
	}
	own, err := env.Engine.ListTasks(env.Ctx, engine.ListTasksInput{ActorID: otherClient, OwnerID: clientID})
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own) != 0 {
		t.Fatalf("client listed another client's tasks: %+v", own)
	}
	if _, err := env.Engine.ListTasks(env.Ctx, engine.ListTasksInput{ActorID: adminID, Status: "submitted"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("lower-case status filter err = %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	evts, err := env.Engine.TaskEvents(env.Ctx, task.ID, adminID, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("events = %d, want 3", len(evts))
	}
	if evts[len(evts)-1].Type != "task.created" || evts[0].ActorID != designerA {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestRejectedOperationDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, adminID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	before, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	attempts := map[string]func() error{
		"submit_draft":        func() error { _, err := env.Engine.SubmitDraft(env.Ctx, task.ID, clientID); return err },
		"send_to_marketplace": func() error { _, err := env.Engine.SendToMarketplace(env.Ctx, task.ID, adminID, ""); return err },
		"assign":              func() error { _, err := env.Engine.AssignDesigner(env.Ctx, task.ID, adminID, designerA, ""); return err },
		"request_info":        func() error { _, err := env.Engine.RequestInfo(env.Ctx, task.ID, adminID, "x"); return err },
		"resubmit": func() error {
			_, err := env.Engine.Resubmit(env.Ctx, engine.ResubmitInput{TaskID: task.ID, ActorID: clientID})
			return err
		},
		"claim":           func() error { _, err := env.Engine.Claim(env.Ctx, task.ID, designerA); return err },
		"submit_delivery": func() error { _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil); return err },
		"admin_approve":   func() error { _, err := env.Engine.ApproveWork(env.Ctx, task.ID, adminID); return err },
		"review": func() error {
			_, err := env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: adminID, Decision: domain.DeliveryApproved})
			return err
		},
		"cancel": func() error { _, err := env.Engine.CancelTask(env.Ctx, task.ID, adminID, ""); return err },
	}
	for name, fn := range attempts {
		if err := fn(); err == nil {
			t.Fatalf("%s succeeded on a cancelled task", name)
		}
	}
	after, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Version != before.Version || after.Status != domain.StatusCancelled {
		t.Fatalf("task changed: before v%d after v%d status %s", before.Version, after.Version, after.Status)
	}
}

func TestOverviewAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.claimed(t)
	if _, err := env.Engine.DesignerWorkload(env.Ctx, clientID); err == nil {
		t.Fatalf("client read designer workload")
	}
	ws, err := env.Engine.DesignerWorkload(env.Ctx, adminID)
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if len(ws) != 2 || ws[0].DesignerID != designerA || ws[0].Active != 1 {
		t.Fatalf("workload = %+v", ws)
	}
	cs, err := env.Engine.ClientOverview(env.Ctx, adminID)
	if err != nil {
		t.Fatalf("clients: %v", err)
	}
	if len(cs) != 2 || cs[0].ClientID != clientID || cs[0].AssignedDesignerID != designerA {
		t.Fatalf("clients = %+v", cs)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, "", "ci", clientID)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.UserID != clientID || raw == "" || key.KeyHash == raw {
		t.Fatalf("unexpected key: %+v", key)
	}
	u, err := env.Engine.ResolveAPIKey(env.Ctx, raw)
	if err != nil || u.ID != clientID {
		t.Fatalf("resolve: %v %+v", err, u)
	}
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, designerA, "", clientID); err == nil {
		t.Fatalf("client minted a key for someone else")
	}
	if _, err := env.Engine.ResolveAPIKey(env.Ctx, "bw_nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown key err = %v", err)
	}
}

func TestFirstUserMustBeAdmin(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	if _, err := eng.CreateUser(ctx, engine.CreateUserInput{Role: domain.RoleClient, Name: "early"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	admin, err := eng.CreateUser(ctx, engine.CreateUserInput{Role: domain.RoleAdmin, Name: "root"})
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if _, err := eng.CreateUser(ctx, engine.CreateUserInput{Role: domain.RoleAdmin, Name: "second"}); err == nil {
		t.Fatalf("anonymous user created after bootstrap")
	}
	if _, err := eng.CreateUser(ctx, engine.CreateUserInput{ActorID: admin.ID, ID: admin.ID, Role: domain.RoleClient, Name: "dup"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("duplicate id err = %v", err)
	}
}

func TestConcurrentBootstrapCreatesOneAdmin(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.CreateUser(ctx, engine.CreateUserInput{Role: domain.RoleAdmin, Name: "root"})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("created %d bootstrap admins, want 1 (errs %v)", created, errs)
	}
	users, err := eng.Repo.ListUsers(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %+v, want one", users)
	}
}

package engine_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"blinkworks/internal/domain"
	"blinkworks/internal/engine"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/events"
)

func addFile(t *testing.T, env testEnv, taskID, name, body string) domain.Task {
	t.Helper()
	task, err := env.Engine.AddDeliveryFile(env.Ctx, engine.AddFileInput{
		TaskID:      taskID,
		ActorID:     designerA,
		Name:        name,
		ContentType: "image/png",
		Body:        strings.NewReader(body),
		Size:        int64(len(body)),
	})
	if err != nil {
		t.Fatalf("add file %s: %v", name, err)
	}
	return task
}

func TestRevisionCycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)

	addFile(t, env, task.ID, "banner-a.png", "aaaa")
	task = addFile(t, env, task.ID, "banner-b.png", "bbbb")
	task, err := env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerA, URL: "https://figma.com/file/xyz"})
	if err != nil {
		t.Fatalf("add link: %v", err)
	}
	d := task.DesignerDeliveries
	if d == nil || len(d.Files) != 2 || len(d.Links) != 1 {
		t.Fatalf("deliveries = %+v", d)
	}
	if d.Links[0].Name != "https://figma.com/file/xyz" {
		t.Fatalf("link name = %q, want url", d.Links[0].Name)
	}
	for _, f := range d.Files {
		ok, err := afero.Exists(env.Files, "/files/"+f.StorageKey)
		if err != nil || !ok {
			t.Fatalf("blob %s missing: %v", f.StorageKey, err)
		}
		if !strings.HasPrefix(f.URL, "/files/deliveries/"+task.ID+"/") {
			t.Fatalf("url = %q", f.URL)
		}
	}

	notes := "two sizes plus source"
	task, err = env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, &notes)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != domain.StatusReadyForReview || !task.DesignerDeliveries.StatusIs(domain.DeliverySubmitted) {
		t.Fatalf("after submit: status=%s deliveries=%+v", task.Status, task.DesignerDeliveries)
	}
	if task.DesignerDeliveries.Notes != notes || task.DesignerDeliveries.SubmittedAt == nil {
		t.Fatalf("notes/submitted_at not recorded: %+v", task.DesignerDeliveries)
	}

	if _, err := env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: clientID, Decision: domain.DeliveryRevisionRequested}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("revision without feedback err = %v", err)
	}
	task, err = env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{
		TaskID:   task.ID,
		ActorID:  clientID,
		Decision: domain.DeliveryRevisionRequested,
		Feedback: "change color",
	})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	d = task.DesignerDeliveries
	if task.Status != domain.StatusRevisionRequested || !d.StatusIs(domain.DeliveryRevisionRequested) {
		t.Fatalf("after revision: status=%s deliveries=%+v", task.Status, d)
	}
	if d.ClientFeedback != "change color" || d.AdminFeedback != "" || d.ReviewedBy != clientID || d.RevisionRequestedAt == nil {
		t.Fatalf("review fields: %+v", d)
	}

	task, err = env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if task.Status != domain.StatusReadyForReview || !task.DesignerDeliveries.StatusIs(domain.DeliverySubmitted) {
		t.Fatalf("after resubmit: status=%s", task.Status)
	}
}

func TestApprovedDeliveryIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	task = addFile(t, env, task.ID, "final.png", "final")
	fileID := task.DesignerDeliveries.Files[0].ID
	if _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	task, err := env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: clientID, Decision: domain.DeliveryApproved})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if task.Status != domain.StatusCompleted || !task.DesignerDeliveries.StatusIs(domain.DeliveryApproved) || task.ReviewedAt == nil {
		t.Fatalf("after approve: %+v", task)
	}

	_, err = env.Engine.RemoveDelivery(env.Ctx, task.ID, fileID, designerA)
	if !errors.Is(err, engine.ErrImmutable) {
		t.Fatalf("remove after approve err = %v, want ErrImmutable", err)
	}
	_, err = env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerA, URL: "https://example.com/late"})
	if !errors.Is(err, engine.ErrImmutable) {
		t.Fatalf("add after approve err = %v, want ErrImmutable", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != task.Version || len(got.DesignerDeliveries.Files) != 1 {
		t.Fatalf("approved delivery changed: %+v", got.DesignerDeliveries)
	}
	if len(env.Janitor.Keys()) != 0 {
		t.Fatalf("blobs scheduled for delete: %v", env.Janitor.Keys())
	}
}

func TestAdminApproveThenClientApproves(t *testing.T) {
	env := newTestEnv(t)
	task := env.readyForReview(t)
	if _, err := env.Engine.ApproveWork(env.Ctx, task.ID, clientID); err == nil {
		t.Fatalf("client used admin approval")
	}
	task, err := env.Engine.ApproveWork(env.Ctx, task.ID, adminID)
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if task.Status != domain.StatusApproved || !task.DesignerDeliveries.StatusIs(domain.DeliverySubmitted) {
		t.Fatalf("after admin approve: %+v", task)
	}
	task, err = env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: clientID, Decision: domain.DeliveryApproved})
	if err != nil {
		t.Fatalf("client approve: %v", err)
	}
	if task.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", task.Status)
	}
}

func TestRejectedDeliveryReturnsToDesigner(t *testing.T) {
	env := newTestEnv(t)
	task := env.readyForReview(t)
	task, err := env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{
		TaskID:   task.ID,
		ActorID:  adminID,
		Decision: domain.DeliveryRejected,
		Feedback: "off brand",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if task.Status != domain.StatusRevisionRequested || !task.DesignerDeliveries.StatusIs(domain.DeliveryRejected) {
		t.Fatalf("after reject: status=%s", task.Status)
	}
	if task.DesignerDeliveries.AdminFeedback != "off brand" || task.DesignerDeliveries.ClientFeedback != "" {
		t.Fatalf("feedback routed wrong: %+v", task.DesignerDeliveries)
	}
	if _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil); err != nil {
		t.Fatalf("resubmit after reject: %v", err)
	}
}

func TestReviewPermissionsAndDecision(t *testing.T) {
	env := newTestEnv(t)
	task := env.readyForReview(t)

	_, err := env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: otherClient, Decision: domain.DeliveryApproved})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != auth.PermTaskReviewer {
		t.Fatalf("other client review err = %v", err)
	}
	_, err = env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: designerA, Decision: domain.DeliveryApproved})
	if !errors.As(err, &fe) {
		t.Fatalf("designer review err = %v", err)
	}
	_, err = env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: clientID, Decision: domain.DeliverySubmitted})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "decision" {
		t.Fatalf("SUBMITTED decision err = %v", err)
	}
	_, err = env.Engine.ReviewDelivery(env.Ctx, engine.ReviewInput{TaskID: task.ID, ActorID: clientID, Decision: "approved"})
	if !errors.As(err, &ve) {
		t.Fatalf("lower-case decision err = %v", err)
	}
}

func TestSubmitRequiresArtifactAndAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	if _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, nil); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("empty submit err = %v", err)
	}
	if _, err := env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerB, URL: "https://example.com"}); err == nil {
		t.Fatalf("unassigned designer added a link")
	}
	if _, err := env.Engine.AddDeliveryLink(env.Ctx, engine.AddLinkInput{TaskID: task.ID, ActorID: designerA, URL: "  "}); err == nil {
		t.Fatalf("blank url accepted")
	} else {
		var ve engine.ValidationError
		if !errors.As(err, &ve) || ve.Field != "url" {
			t.Fatalf("blank url err = %v", err)
		}
	}
	addFile(t, env, task.ID, "x.png", "x")
	if _, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerB, nil); err == nil {
		t.Fatalf("unassigned designer submitted")
	}
}

func TestSubmitNotesReachTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	addFile(t, env, task.ID, "x.png", "x")
	notes := "  two crops, see layer names  "
	task, err := env.Engine.SubmitDelivery(env.Ctx, task.ID, designerA, &notes)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.DesignerNotes != "two crops, see layer names" || task.DesignerDeliveries.Notes != task.DesignerNotes {
		t.Fatalf("notes = %q / %q", task.DesignerNotes, task.DesignerDeliveries.Notes)
	}
	stored, err := env.Engine.GetTask(env.Ctx, task.ID, adminID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.DesignerNotes != task.DesignerNotes {
		t.Fatalf("stored notes = %q", stored.DesignerNotes)
	}
}

func TestRemoveDeliveryDeletesBlob(t *testing.T) {
	env := newTestEnv(t)
	task := env.claimed(t)
	task = addFile(t, env, task.ID, "a.png", "a")
	task = addFile(t, env, task.ID, "b.png", "b")
	removed := task.DesignerDeliveries.Files[0]

	_, err := env.Engine.RemoveDelivery(env.Ctx, task.ID, "nope", designerA)
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "delivery" {
		t.Fatalf("remove unknown err = %v", err)
	}
	task, err = env.Engine.RemoveDelivery(env.Ctx, task.ID, removed.ID, designerA)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(task.DesignerDeliveries.Files) != 1 || task.DesignerDeliveries.Files[0].Name != "b.png" {
		t.Fatalf("files = %+v", task.DesignerDeliveries.Files)
	}
	keys := env.Janitor.Keys()
	if len(keys) != 1 || keys[0] != removed.StorageKey {
		t.Fatalf("janitor keys = %v, want [%s]", keys, removed.StorageKey)
	}
	evts, err := env.Engine.TaskEvents(env.Ctx, task.ID, adminID, 1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].Type != events.BlobCleanupScheduled || evts[0].EntityID != removed.StorageKey || evts[0].ActorID != designerA {
		t.Fatalf("latest event = %+v, want cleanup of %s", evts, removed.StorageKey)
	}
}

func TestUploadLimit(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Storage.MaxBytes = 4
	task := env.claimed(t)

	_, err := env.Engine.AddDeliveryFile(env.Ctx, engine.AddFileInput{TaskID: task.ID, ActorID: designerA, Name: "big.png", Body: strings.NewReader("12345"), Size: 5})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("declared oversize err = %v", err)
	}
	// Undeclared size is caught while streaming and the blob is discarded.
	_, err = env.Engine.AddDeliveryFile(env.Ctx, engine.AddFileInput{TaskID: task.ID, ActorID: designerA, Name: "big.png", Body: strings.NewReader("12345")})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("streamed oversize err = %v", err)
	}
	if len(env.Janitor.Keys()) != 1 {
		t.Fatalf("oversize blob not discarded: %v", env.Janitor.Keys())
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DesignerDeliveries.Count() != 0 {
		t.Fatalf("oversize file recorded")
	}
}

func TestRejectedUploadLeavesNoBlob(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	_, err := env.Engine.AddDeliveryFile(env.Ctx, engine.AddFileInput{TaskID: task.ID, ActorID: designerA, Name: "early.png", Body: strings.NewReader("x")})
	if !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("err = %v, want illegal transition", err)
	}
	ok, _ := afero.DirExists(env.Files, "/files/deliveries/"+task.ID)
	if ok {
		t.Fatalf("blob written for rejected upload")
	}
}

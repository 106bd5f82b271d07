package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"blinkworks/internal/blob"
	"blinkworks/internal/config"
	"blinkworks/internal/domain"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/events"
	"blinkworks/internal/repo"
)

// Directory resolves the acting user.
type Directory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Janitor removes blobs that are no longer referenced. A nil Janitor leaks them.
type Janitor interface {
	ScheduleBlobDelete(ctx context.Context, key string) error
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Users   Directory
	Events  events.Writer
	Config  *config.Config
	Blobs   blob.Store
	Janitor Janitor
	Logger  *log.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Users:  r,
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (e Engine) maxAttempts() int {
	if e.Config != nil && e.Config.Engine.MaxAttempts > 0 {
		return e.Config.Engine.MaxAttempts
	}
	return 3
}

func (e Engine) users() Directory {
	if e.Users != nil {
		return e.Users
	}
	return e.Repo
}

// actor resolves id through the user directory.
func (e Engine) actor(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	u, err := e.users().GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return u, NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return u, storeErr("get user", err)
	}
	return u, nil
}

// change is what a transition wants written: the patch plus its audit event.
type change struct {
	Patch   domain.TaskPatch
	Event   string
	Kind    string
	Entity  string
	Payload events.Payload
}

// mutate re-reads the task, lets fn decide the change and writes it
// conditionally on the version read. Version conflicts are retried with a
// fresh read so fn always validates against current state.
func (e Engine) mutate(ctx context.Context, taskID string, actor domain.User, fn func(domain.Task) (change, error)) (domain.Task, error) {
	attempts := e.maxAttempts()
	var err error
	for i := 0; i < attempts; i++ {
		var t domain.Task
		t, err = e.mutateOnce(ctx, taskID, actor, fn)
		if !errors.Is(err, repo.ErrConflict) {
			return t, err
		}
		e.logf("engine: task %s changed concurrently, retrying (%d/%d)", taskID, i+1, attempts)
	}
	return domain.Task{}, storeErr("put task", err)
}

func (e Engine) mutateOnce(ctx context.Context, taskID string, actor domain.User, fn func(domain.Task) (change, error)) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	cur, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return cur, NotFoundError{Kind: "task", ID: taskID}
	}
	if err != nil {
		return cur, storeErr("get task", err)
	}
	ch, err := fn(cur)
	if err != nil {
		return cur, err
	}
	next, err := e.Repo.PutTask(ctx, tx, cur.ID, cur.Version, ch.Patch)
	if errors.Is(err, repo.ErrConflict) {
		return cur, err
	}
	if err != nil {
		return cur, storeErr("put task", err)
	}
	if ch.Event == "" {
		ch.Event = events.TaskTransitioned
	}
	if ch.Kind == "" {
		ch.Kind = "task"
		ch.Entity = cur.ID
	}
	if ch.Payload == nil {
		ch.Payload = events.Payload{}
	}
	if cur.Status != next.Status {
		ch.Payload["from"] = cur.Status
		ch.Payload["to"] = next.Status
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       ch.Event,
		TaskID:     cur.ID,
		EntityKind: ch.Kind,
		EntityID:   ch.Entity,
		ActorID:    actor.ID,
		Payload:    ch.Payload,
	}); err != nil {
		return cur, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return cur, storeErr("commit", err)
	}
	return next, nil
}

// transition applies a table-driven status change. check runs after the
// table lookup and may add guards or side effects to patch.
func (e Engine) transition(ctx context.Context, taskID string, actor domain.User, ev Event, check func(t domain.Task, patch *domain.TaskPatch) error) (domain.Task, error) {
	return e.mutate(ctx, taskID, actor, func(t domain.Task) (change, error) {
		to, ok := Next(t.Status, ev)
		if !ok {
			return change{}, reject(t, ev, "", nil)
		}
		patch := domain.TaskPatch{Status: &to}
		if check != nil {
			if err := check(t, &patch); err != nil {
				return change{}, err
			}
		}
		return change{Patch: patch, Payload: events.Payload{"event": ev}}, nil
	})
}

// requireRole rejects ev for an actor without role. The cause stays
// reachable as an auth.ForbiddenError.
func requireRole(t domain.Task, ev Event, actor domain.User, role domain.Role) error {
	if err := auth.RequireRole(actor, role); err != nil {
		return reject(t, ev, fmt.Sprintf("%s only", role), err)
	}
	return nil
}

func requireFeedback(field, feedback string) error {
	if trimmed(feedback) == "" {
		return ValidationError{Field: field, Reason: "feedback is required"}
	}
	return nil
}

// Package jobs runs background cleanup on an asynq queue.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"blinkworks/internal/blob"
)

const (
	TypeBlobDelete = "blob:delete"
	QueueCleanup   = "cleanup"
)

type blobDeletePayload struct {
	Key string `json:"key"`
}

// NewBlobDeleteTask builds the task that removes an orphaned or discarded blob.
func NewBlobDeleteTask(key string) (*asynq.Task, error) {
	if key == "" {
		return nil, errors.New("blob key required")
	}
	data, err := json.Marshal(blobDeletePayload{Key: key})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBlobDelete, data), nil
}

// enqueuer is the subset of *asynq.Client used by Client.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client schedules jobs.
type Client struct {
	q enqueuer
}

func NewClient(opt asynq.RedisClientOpt) (*Client, *asynq.Client) {
	c := asynq.NewClient(opt)
	return &Client{q: c}, c
}

// ScheduleBlobDelete enqueues deletion of key.
func (c *Client) ScheduleBlobDelete(ctx context.Context, key string) error {
	task, err := NewBlobDeleteTask(key)
	if err != nil {
		return err
	}
	_, err = c.q.EnqueueContext(ctx, task,
		asynq.Queue(QueueCleanup),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeBlobDelete, err)
	}
	return nil
}

// Worker processes cleanup jobs.
type Worker struct {
	Blobs  blob.Store
	Logger *log.Logger
}

func (w Worker) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// HandleBlobDelete removes the blob named by the task payload.
func (w Worker) HandleBlobDelete(ctx context.Context, t *asynq.Task) error {
	var p blobDeletePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TypeBlobDelete, err, asynq.SkipRetry)
	}
	if p.Key == "" {
		return fmt.Errorf("empty blob key: %w", asynq.SkipRetry)
	}
	if err := w.Blobs.Delete(ctx, p.Key); err != nil {
		if errors.Is(err, blob.ErrInvalidKey) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	w.logf("jobs: deleted blob %s", p.Key)
	return nil
}

// Mux routes task types to handlers.
func (w Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBlobDelete, w.HandleBlobDelete)
	return mux
}

// Run processes jobs until ctx is cancelled.
func (w Worker) Run(ctx context.Context, opt asynq.RedisClientOpt, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueCleanup: 1},
		LogLevel:    asynq.WarnLevel,
	})
	if err := srv.Start(w.Mux()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

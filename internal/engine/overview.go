package engine

import (
	"context"

	"blinkworks/internal/domain"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/overview"
	"blinkworks/internal/repo"
)

func (e Engine) thresholds() overview.Thresholds {
	th := overview.DefaultThresholds()
	if e.Config == nil {
		return th
	}
	w := e.Config.Workload
	if w.Designer.Moderate > 0 {
		th.DesignerModerate = w.Designer.Moderate
	}
	if w.Designer.High > 0 {
		th.DesignerHigh = w.Designer.High
	}
	if w.Designer.Overloaded > 0 {
		th.DesignerOverloaded = w.Designer.Overloaded
	}
	if w.Client.Medium > 0 {
		th.ClientMedium = w.Client.Medium
	}
	if w.Client.High > 0 {
		th.ClientHigh = w.Client.High
	}
	return th
}

func (e Engine) snapshot(ctx context.Context, actorID string) ([]domain.User, []domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return nil, nil, err
	}
	users, err := e.Repo.ListUsers(ctx, "")
	if err != nil {
		return nil, nil, storeErr("list users", err)
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilter{})
	if err != nil {
		return nil, nil, storeErr("list tasks", err)
	}
	return users, tasks, nil
}

// DesignerWorkload is the admin view of designer load.
func (e Engine) DesignerWorkload(ctx context.Context, actorID string) ([]overview.DesignerWorkload, error) {
	users, tasks, err := e.snapshot(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return overview.Designers(users, tasks, e.now(), e.thresholds()), nil
}

// ClientOverview is the admin view of client demand.
func (e Engine) ClientOverview(ctx context.Context, actorID string) ([]overview.ClientOverview, error) {
	users, tasks, err := e.snapshot(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return overview.Clients(users, tasks, e.now(), e.thresholds()), nil
}

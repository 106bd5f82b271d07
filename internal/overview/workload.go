// Package overview derives workload and client dashboards from a snapshot of
// users and tasks. Nothing here writes.
package overview

import (
	"math"
	"sort"
	"time"

	"blinkworks/internal/domain"
)

type Level string

const (
	LevelLow        Level = "LOW"
	LevelModerate   Level = "MODERATE"
	LevelHigh       Level = "HIGH"
	LevelOverloaded Level = "OVERLOADED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	}
	return 0
}

// Thresholds are inclusive lower bounds on active task counts.
type Thresholds struct {
	DesignerModerate   int
	DesignerHigh       int
	DesignerOverloaded int
	ClientMedium       int
	ClientHigh         int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DesignerModerate:   1,
		DesignerHigh:       3,
		DesignerOverloaded: 5,
		ClientMedium:       1,
		ClientHigh:         3,
	}
}

type Counts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
	// AvgCompletionDays is nil when no completed task has timestamps.
	AvgCompletionDays *float64 `json:"avg_completion_days"`
}

type DesignerWorkload struct {
	DesignerID string `json:"designer_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Counts
	Level Level `json:"level"`
}

type ClientOverview struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Counts
	Priority             Priority `json:"priority"`
	AssignedDesignerID   string   `json:"assigned_designer_id,omitempty"`
	AssignedDesignerName string   `json:"assigned_designer_name,omitempty"`
}

type tally struct {
	Counts
	completedDays float64
	// timed counts completed tasks that contributed to completedDays.
	timed int
}

func (t *tally) add(task domain.Task, now time.Time) {
	t.Total++
	if task.Status.Active() {
		t.Active++
	}
	if task.Status == domain.StatusCompleted {
		t.Completed++
		if !task.CreatedAt.IsZero() && !task.UpdatedAt.IsZero() {
			t.completedDays += task.UpdatedAt.Sub(task.CreatedAt).Hours() / 24
			t.timed++
		}
	}
	if task.Overdue(now) {
		t.Overdue++
	}
}

func (t tally) counts() Counts {
	c := t.Counts
	if t.timed > 0 {
		avg := math.Round(t.completedDays/float64(t.timed)*10) / 10
		c.AvgCompletionDays = &avg
	}
	return c
}

// Designers returns one row per designer sorted by active tasks desc, then ID.
func Designers(users []domain.User, tasks []domain.Task, now time.Time, th Thresholds) []DesignerWorkload {
	byDesigner := make(map[string]*tally)
	for _, task := range tasks {
		if task.AssignedDesigner == nil || *task.AssignedDesigner == "" {
			continue
		}
		id := *task.AssignedDesigner
		if byDesigner[id] == nil {
			byDesigner[id] = &tally{}
		}
		byDesigner[id].add(task, now)
	}
	var res []DesignerWorkload
	for _, u := range users {
		if u.Role != domain.RoleDesigner {
			continue
		}
		var c Counts
		if t := byDesigner[u.ID]; t != nil {
			c = t.counts()
		}
		res = append(res, DesignerWorkload{
			DesignerID: u.ID,
			Name:       u.Name,
			Email:      u.Email,
			Counts:     c,
			Level:      designerLevel(c, th),
		})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Active != res[j].Active {
			return res[i].Active > res[j].Active
		}
		return res[i].DesignerID < res[j].DesignerID
	})
	return res
}

func designerLevel(c Counts, th Thresholds) Level {
	switch {
	case c.Active >= th.DesignerOverloaded || c.Overdue > 0:
		return LevelOverloaded
	case c.Active >= th.DesignerHigh:
		return LevelHigh
	case c.Active >= th.DesignerModerate:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Clients returns one row per client sorted by priority desc, active desc, then ID.
func Clients(users []domain.User, tasks []domain.Task, now time.Time, th Thresholds) []ClientOverview {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	byClient := make(map[string]*tally)
	latest := make(map[string]domain.Task)
	for _, task := range tasks {
		if byClient[task.UserID] == nil {
			byClient[task.UserID] = &tally{}
		}
		byClient[task.UserID].add(task, now)
		if !task.Status.Active() || task.AssignedDesigner == nil {
			continue
		}
		prev, ok := latest[task.UserID]
		if !ok || task.CreatedAt.After(prev.CreatedAt) || (task.CreatedAt.Equal(prev.CreatedAt) && task.ID > prev.ID) {
			latest[task.UserID] = task
		}
	}
	var res []ClientOverview
	for _, u := range users {
		if u.Role != domain.RoleClient {
			continue
		}
		var c Counts
		if t := byClient[u.ID]; t != nil {
			c = t.counts()
		}
		row := ClientOverview{
			ClientID: u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Counts:   c,
			Priority: clientPriority(c, th),
		}
		if task, ok := latest[u.ID]; ok {
			row.AssignedDesignerID = *task.AssignedDesigner
			row.AssignedDesignerName = names[row.AssignedDesignerID]
		}
		res = append(res, row)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if ri, rj := res[i].Priority.rank(), res[j].Priority.rank(); ri != rj {
			return ri > rj
		}
		if res[i].Active != res[j].Active {
			return res[i].Active > res[j].Active
		}
		return res[i].ClientID < res[j].ClientID
	})
	return res
}

func clientPriority(c Counts, th Thresholds) Priority {
	switch {
	case c.Overdue > 0:
		return PriorityUrgent
	case c.Active >= th.ClientHigh:
		return PriorityHigh
	case c.Active >= th.ClientMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

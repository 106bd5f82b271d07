package overview

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinkworks/internal/domain"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func designerTasks(designer string, n int, status domain.TaskStatus) []domain.Task {
	var tasks []domain.Task
	for i := 0; i < n; i++ {
		d := designer
		tasks = append(tasks, domain.Task{
			ID:               fmt.Sprintf("%s-%d", designer, i),
			UserID:           "client-1",
			AssignedDesigner: &d,
			Status:           status,
			CreatedAt:        now.Add(-48 * time.Hour),
			UpdatedAt:        now.Add(-24 * time.Hour),
		})
	}
	return tasks
}

func TestDesignerClassificationScenario(t *testing.T) {
	users := []domain.User{
		{ID: "d-idle", Role: domain.RoleDesigner, Name: "Idle"},
		{ID: "d-busy", Role: domain.RoleDesigner, Name: "Busy"},
		{ID: "d-swamped", Role: domain.RoleDesigner, Name: "Swamped"},
		{ID: "client-1", Role: domain.RoleClient, Name: "Cleo"},
	}
	var tasks []domain.Task
	tasks = append(tasks, designerTasks("d-busy", 4, domain.StatusInProgress)...)
	swamped := designerTasks("d-swamped", 6, domain.StatusInProgress)
	past := now.Add(-time.Hour)
	swamped[0].Deadline = &past
	tasks = append(tasks, swamped...)

	rows := Designers(users, tasks, now, DefaultThresholds())
	require.Len(t, rows, 3)
	assert.Equal(t, "d-swamped", rows[0].DesignerID)
	assert.Equal(t, LevelOverloaded, rows[0].Level)
	assert.Equal(t, 1, rows[0].Overdue)
	assert.Equal(t, "d-busy", rows[1].DesignerID)
	assert.Equal(t, LevelHigh, rows[1].Level)
	assert.Equal(t, "d-idle", rows[2].DesignerID)
	assert.Equal(t, LevelLow, rows[2].Level)
	assert.Nil(t, rows[2].AvgCompletionDays)
}

func TestDesignerLevels(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		active, overdue int
		want            Level
	}{
		{0, 0, LevelLow},
		{1, 0, LevelModerate},
		{2, 0, LevelModerate},
		{3, 0, LevelHigh},
		{4, 0, LevelHigh},
		{5, 0, LevelOverloaded},
		{0, 1, LevelOverloaded},
	}
	for _, tt := range tests {
		got := designerLevel(Counts{Active: tt.active, Overdue: tt.overdue}, th)
		assert.Equal(t, tt.want, got, "active=%d overdue=%d", tt.active, tt.overdue)
	}
}

func TestAverageCompletionDays(t *testing.T) {
	d := "d1"
	users := []domain.User{{ID: "d1", Role: domain.RoleDesigner}}
	tasks := []domain.Task{
		{ID: "a", AssignedDesigner: &d, Status: domain.StatusCompleted, CreatedAt: now.Add(-72 * time.Hour), UpdatedAt: now},
		{ID: "b", AssignedDesigner: &d, Status: domain.StatusCompleted, CreatedAt: now.Add(-36 * time.Hour), UpdatedAt: now},
		{ID: "c", AssignedDesigner: &d, Status: domain.StatusCancelled, CreatedAt: now.Add(-999 * time.Hour), UpdatedAt: now},
	}
	rows := Designers(users, tasks, now, DefaultThresholds())
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].AvgCompletionDays)
	assert.Equal(t, 2.3, *rows[0].AvgCompletionDays)
	assert.Equal(t, 2, rows[0].Completed)
	assert.Equal(t, 0, rows[0].Active)
	assert.Equal(t, 3, rows[0].Total)
}

func TestAverageSkipsUntimedCompletions(t *testing.T) {
	d := "d1"
	users := []domain.User{{ID: "d1", Role: domain.RoleDesigner}}
	tasks := []domain.Task{
		{ID: "a", AssignedDesigner: &d, Status: domain.StatusCompleted, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now},
		{ID: "imported", AssignedDesigner: &d, Status: domain.StatusCompleted},
	}
	rows := Designers(users, tasks, now, DefaultThresholds())
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].AvgCompletionDays)
	assert.Equal(t, 2.0, *rows[0].AvgCompletionDays)
	assert.Equal(t, 2, rows[0].Completed)

	rows = Designers(users, tasks[1:], now, DefaultThresholds())
	assert.Equal(t, 1, rows[0].Completed)
	assert.Nil(t, rows[0].AvgCompletionDays)
}

func TestOverdueIgnoresCompletedOnly(t *testing.T) {
	d := "d1"
	past := now.Add(-time.Minute)
	users := []domain.User{{ID: "d1", Role: domain.RoleDesigner}}
	tasks := []domain.Task{
		{ID: "done", AssignedDesigner: &d, Status: domain.StatusCompleted, Deadline: &past},
		{ID: "wip", AssignedDesigner: &d, Status: domain.StatusRevisionRequested, Deadline: &past},
	}
	rows := Designers(users, tasks, now, DefaultThresholds())
	assert.Equal(t, 1, rows[0].Overdue)
}

func TestClients(t *testing.T) {
	d1, d2 := "d1", "d2"
	past := now.Add(-time.Hour)
	users := []domain.User{
		{ID: "c-quiet", Role: domain.RoleClient, Name: "Quiet"},
		{ID: "c-busy", Role: domain.RoleClient, Name: "Busy"},
		{ID: "c-late", Role: domain.RoleClient, Name: "Late"},
		{ID: "d1", Role: domain.RoleDesigner, Name: "Dana"},
		{ID: "d2", Role: domain.RoleDesigner, Name: "Dev"},
	}
	tasks := []domain.Task{
		{ID: "b1", UserID: "c-busy", Status: domain.StatusSubmitted, CreatedAt: now.Add(-5 * time.Hour)},
		{ID: "b2", UserID: "c-busy", Status: domain.StatusInProgress, AssignedDesigner: &d1, CreatedAt: now.Add(-4 * time.Hour)},
		{ID: "b3", UserID: "c-busy", Status: domain.StatusReadyForReview, AssignedDesigner: &d2, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "b4", UserID: "c-busy", Status: domain.StatusCompleted, AssignedDesigner: &d1, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "l1", UserID: "c-late", Status: domain.StatusInReview, Deadline: &past},
	}
	rows := Clients(users, tasks, now, DefaultThresholds())
	require.Len(t, rows, 3)

	assert.Equal(t, "c-late", rows[0].ClientID)
	assert.Equal(t, PriorityUrgent, rows[0].Priority)
	assert.Empty(t, rows[0].AssignedDesignerID)

	assert.Equal(t, "c-busy", rows[1].ClientID)
	assert.Equal(t, PriorityHigh, rows[1].Priority)
	assert.Equal(t, 3, rows[1].Active)
	assert.Equal(t, "d2", rows[1].AssignedDesignerID, "most recent active task wins over newer completed one")
	assert.Equal(t, "Dev", rows[1].AssignedDesignerName)

	assert.Equal(t, "c-quiet", rows[2].ClientID)
	assert.Equal(t, PriorityLow, rows[2].Priority)
}

func TestAggregationIsDeterministic(t *testing.T) {
	users := []domain.User{
		{ID: "d-b", Role: domain.RoleDesigner},
		{ID: "d-a", Role: domain.RoleDesigner},
		{ID: "client-1", Role: domain.RoleClient},
	}
	tasks := append(designerTasks("d-a", 2, domain.StatusInProgress), designerTasks("d-b", 2, domain.StatusInProgress)...)
	tasks = append(tasks, domain.Task{ID: "bare"})

	first := Designers(users, tasks, now, DefaultThresholds())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Designers(users, tasks, now, DefaultThresholds()))
	}
	assert.Equal(t, "d-a", first[0].DesignerID, "ties break by id")
	assert.Equal(t, Clients(users, tasks, now, DefaultThresholds()), Clients(users, tasks, now, DefaultThresholds()))
}

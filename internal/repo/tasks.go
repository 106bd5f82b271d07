package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"blinkworks/internal/domain"
)

const taskColumns = `id,user_id,brand_id,assigned_designer,type,priority,status,title,description,requirements_json,
admin_notes,designer_notes,admin_feedback,admin_feedback_history_json,pushed_to_marketplace,pushed_at,claimed_at,
reviewed_at,deadline,designer_deliveries_json,version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var brandID, assignee, description sql.NullString
	var adminNotes, designerNotes, adminFeedback sql.NullString
	var pushedAt, claimedAt, reviewedAt, deadline, deliveries sql.NullString
	var requirementsJSON, historyJSON, createdAt, updatedAt string
	var pushed int
	err := row.Scan(&t.ID, &t.UserID, &brandID, &assignee, &t.Type, &t.Priority, &t.Status, &t.Title, &description,
		&requirementsJSON, &adminNotes, &designerNotes, &adminFeedback, &historyJSON, &pushed, &pushedAt, &claimedAt,
		&reviewedAt, &deadline, &deliveries, &t.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.BrandID = brandID.String
	if assignee.Valid && assignee.String != "" {
		id := assignee.String
		t.AssignedDesigner = &id
	}
	t.Description = description.String
	t.AdminNotes = adminNotes.String
	t.DesignerNotes = designerNotes.String
	t.AdminFeedback = adminFeedback.String
	t.PushedToMarketplace = pushed != 0
	if err := json.Unmarshal([]byte(requirementsJSON), &t.Requirements); err != nil {
		return t, fmt.Errorf("task %s requirements: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &t.AdminFeedbackHistory); err != nil {
		return t, fmt.Errorf("task %s feedback history: %w", t.ID, err)
	}
	if deliveries.Valid && deliveries.String != "" {
		var d domain.DesignerDeliveries
		if err := json.Unmarshal([]byte(deliveries.String), &d); err != nil {
			return t, fmt.Errorf("task %s deliveries: %w", t.ID, err)
		}
		t.DesignerDeliveries = &d
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{pushedAt, &t.PushedAt},
		{claimedAt, &t.ClaimedAt},
		{reviewedAt, &t.ReviewedAt},
		{deadline, &t.Deadline},
	} {
		v, err := parseNullTime(f.src)
		if err != nil {
			return t, err
		}
		*f.dst = v
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, err
	}
	return t, nil
}

type taskRow struct {
	requirements string
	history      string
	deliveries   any
}

func encodeTask(t domain.Task) (taskRow, error) {
	var row taskRow
	req, err := json.Marshal(t.Requirements)
	if err != nil {
		return row, fmt.Errorf("marshal requirements: %w", err)
	}
	history := t.AdminFeedbackHistory
	if history == nil {
		history = []domain.FeedbackEntry{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return row, fmt.Errorf("marshal feedback history: %w", err)
	}
	row.requirements = string(req)
	row.history = string(hist)
	if t.DesignerDeliveries != nil {
		d, err := json.Marshal(t.DesignerDeliveries)
		if err != nil {
			return row, fmt.Errorf("marshal deliveries: %w", err)
		}
		row.deliveries = string(d)
	}
	return row, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertTask stores a new task at version 1.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (domain.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	t.UpdatedAt = t.CreatedAt
	t.Version = 1
	enc, err := encodeTask(t)
	if err != nil {
		return t, err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, nullable(t.BrandID), nullableStringPtr(t.AssignedDesigner), t.Type, t.Priority, t.Status, t.Title,
		nullable(t.Description), enc.requirements, nullable(t.AdminNotes), nullable(t.DesignerNotes), nullable(t.AdminFeedback),
		enc.history, boolInt(t.PushedToMarketplace), nullableTime(t.PushedAt), nullableTime(t.ClaimedAt), nullableTime(t.ReviewedAt),
		nullableTime(t.Deadline), enc.deliveries, t.Version, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// PutTask merges patch into the stored task if its version still equals
// expectedVersion. It stamps UpdatedAt, bumps Version and returns the new row.
func (r Repo) PutTask(ctx context.Context, tx *sql.Tx, id string, expectedVersion int64, patch domain.TaskPatch) (domain.Task, error) {
	q := r.q(tx)
	cur, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return cur, err
	}
	if cur.Version != expectedVersion {
		return cur, ErrConflict
	}
	next := cur
	patch.Apply(&next)
	next.UpdatedAt = r.now()
	next.Version = cur.Version + 1
	enc, err := encodeTask(next)
	if err != nil {
		return cur, err
	}
	res, err := q.ExecContext(ctx, `UPDATE tasks SET assigned_designer=?, status=?, description=?, requirements_json=?,
admin_notes=?, designer_notes=?, admin_feedback=?, admin_feedback_history_json=?, pushed_to_marketplace=?, pushed_at=?,
claimed_at=?, reviewed_at=?, designer_deliveries_json=?, version=?, updated_at=? WHERE id=? AND version=?`,
		nullableStringPtr(next.AssignedDesigner), next.Status, nullable(next.Description), enc.requirements,
		nullable(next.AdminNotes), nullable(next.DesignerNotes), nullable(next.AdminFeedback), enc.history,
		boolInt(next.PushedToMarketplace), nullableTime(next.PushedAt), nullableTime(next.ClaimedAt),
		nullableTime(next.ReviewedAt), enc.deliveries, next.Version, formatTime(next.UpdatedAt), id, expectedVersion)
	if err != nil {
		return cur, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cur, ErrConflict
	}
	return next, nil
}

// DeleteTask removes the task if its version still equals expectedVersion.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string, expectedVersion int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND version=?`, id, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTaskTx(ctx, tx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	OwnerID     string
	AssigneeID  string
	Status      domain.TaskStatus
	Marketplace bool
	Limit       int
}

// ListTasks returns matching tasks, newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.OwnerID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_designer=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Marketplace {
		clauses = append(clauses, "status=?", "pushed_to_marketplace=1", "assigned_designer IS NULL")
		args = append(args, domain.StatusInReview)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

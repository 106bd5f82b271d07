package repo

import (
	"context"
	"database/sql"
	"errors"

	"blinkworks/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (domain.User, error) {
	if u.ID == "" {
		return u, errors.New("id required")
	}
	if !u.Role.Valid() {
		return u, errors.New("invalid role")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id, role, name, email, created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Role, u.Name, nullable(u.Email), formatTime(u.CreatedAt))
	return u, err
}

// GetUser resolves a user by ID. It satisfies the engine's user directory.
func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT id, role, name, COALESCE(email,''), created_at FROM users WHERE id=?`, id))
}

// CountUsersTx counts users inside tx so an emptiness check and the
// following insert see the same snapshot.
func (r Repo) CountUsersTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ListUsers returns users ordered by ID, optionally filtered by role.
func (r Repo) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	query := `SELECT id, role, name, COALESCE(email,''), created_at FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Role, &u.Name, &u.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.CreatedAt, err = parseTime(createdAt)
	return u, err
}

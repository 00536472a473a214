package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
)

const userColumns = `u.id, u.name, u.email, u.password_hash, u.role, u.active,
	u.password_changed_at, u.created_at, u.updated_at`

// UserQuery parses list parameters for users.
var UserQuery = query.NewBuilder(map[string]query.Field{
	"name":      {Column: "u.name", Kind: query.Text},
	"email":     {Column: "u.email", Kind: query.Text},
	"role":      {Column: "u.role", Kind: query.Text},
	"createdAt": {Column: "u.created_at", Kind: query.Time},
	"updatedAt": {Column: "u.updated_at", Kind: query.Time},
}, "-createdAt")

// UserPatch lists the user fields an administrator may change.
type UserPatch struct {
	Name  *string
	Email *string
	Role  *db.Role
}

func scanUser(row scanner) (*db.User, error) {
	var u db.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Active,
		&u.PasswordChangedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user and fills its timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *db.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, active, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING active, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.PasswordChangedAt,
	).Scan(&user.Active, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return classify(err, "create user")
	}
	return nil
}

// FindActiveUser returns an active user by id.
func (r *Repository) FindActiveUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1 AND u.active`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "query user")
	}
	return user, nil
}

// FindUserByEmail returns an active user by email address.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE lower(u.email) = lower($1) AND u.active`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, classify(err, "query user by email")
	}
	return user, nil
}

// ListUsers returns active users matching q.
func (r *Repository) ListUsers(ctx context.Context, q query.Query) ([]db.User, error) {
	sql, args := buildList(`SELECT `+userColumns+` FROM users u`, []string{"u.active"}, nil, q)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "query users")
	}
	defer rows.Close()

	users := []db.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return users, nil
}

// UpdateUser applies p to an active user and returns the result.
func (r *Repository) UpdateUser(ctx context.Context, id uuid.UUID, p UserPatch) (*db.User, error) {
	var up patch
	if p.Name != nil {
		up.set("name", *p.Name)
	}
	if p.Email != nil {
		up.set("email", *p.Email)
	}
	if p.Role != nil {
		up.set("role", *p.Role)
	}
	if up.empty() {
		return r.FindActiveUser(ctx, id)
	}

	sql, args := up.update("users u", id, "u.active")
	user, err := scanUser(r.pool.QueryRow(ctx, sql+` RETURNING `+userColumns, args...))
	if err != nil {
		return nil, classify(err, "update user")
	}
	return user, nil
}

// SetPassword replaces the password hash and records when it changed.
func (r *Repository) SetPassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) (*db.User, error) {
	query := `
		UPDATE users u
		SET password_hash = $1, password_changed_at = $2, updated_at = now()
		WHERE u.id = $3 AND u.active
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, hash, changedAt, id))
	if err != nil {
		return nil, classify(err, "update password")
	}
	return user, nil
}

// DeactivateUser hides a user from every lookup.
func (r *Repository) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	return r.deactivate(ctx, "users", id)
}

func (r *Repository) deactivate(ctx context.Context, table string, id uuid.UUID) error {
	sql := fmt.Sprintf(`UPDATE %s SET active = FALSE, updated_at = now() WHERE id = $1 AND active`, pgx.Identifier{table}.Sanitize())

	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		return classify(err, "deactivate "+table)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

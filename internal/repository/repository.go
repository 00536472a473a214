package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/meter-reading-service/internal/query"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

// classify converts driver errors into ErrNotFound and ErrDuplicate and wraps the rest.
func classify(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// buildList appends the query's filter, order and page to selectFrom. filters
// and args are fixed conditions that precede the query's own.
func buildList(selectFrom string, filters []string, args []any, q query.Query) (string, []any) {
	where, qargs := q.Where(len(args) + 1)
	if where != "" {
		filters = append(filters, where)
		args = append(args, qargs...)
	}

	var sb strings.Builder
	sb.WriteString(selectFrom)
	if len(filters) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(filters, " AND "))
	}
	if order := q.OrderBy(); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, q.Limit, q.Offset())
	}
	return sb.String(), args
}

// patch collects SET clauses for a partial update.
type patch struct {
	sets []string
	args []any
}

func (p *patch) set(column string, value any) {
	p.args = append(p.args, value)
	p.sets = append(p.sets, fmt.Sprintf("%s = $%d", column, len(p.args)))
}

func (p *patch) empty() bool {
	return len(p.sets) == 0
}

// update renders "UPDATE table SET ..., updated_at = now() WHERE id = $n" and
// returns its args with id appended.
func (p *patch) update(table string, id any, extraWhere string) (string, []any) {
	args := append(p.args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s, updated_at = now() WHERE id = $%d",
		table, strings.Join(p.sets, ", "), len(args))
	if extraWhere != "" {
		sql += " AND " + extraWhere
	}
	return sql, args
}

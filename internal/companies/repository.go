package companies

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/db"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
)

// Repository defines persistence operations for companies.
type Repository interface {
	List(ctx context.Context, filter authz.Filter, q ListQuery) ([]Company, int, error)
	ListAll(ctx context.Context) ([]Company, error)
	Get(ctx context.Context, id int64) (Company, error)
	Children(ctx context.Context, parentID int64) ([]Company, error)
	Count(ctx context.Context, filter authz.Filter) (int, error)
	Create(ctx context.Context, input CreateInput) (Company, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const companyColumns = `id, name, kind, COALESCE(parent_id, 0), reference, notify_by_email, active, created_at, updated_at`

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.ParentID, &c.Reference, &c.NotifyByEmail, &c.Active, &createdAt, &updatedAt); err != nil {
		return Company{}, err
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return c, nil
}

// List applies the caller's visibility filter plus search and pagination.
// The filter clause is combined, never interpreted.
func (r *repository) List(ctx context.Context, filter authz.Filter, q ListQuery) ([]Company, int, error) {
	scope, scopeArgs := filter.SQLClause("id", 1)
	args := append([]any{}, scopeArgs...)
	query := `SELECT ` + companyColumns + ` FROM companies WHERE ` + scope
	countQuery := `SELECT COUNT(*) FROM companies WHERE ` + scope

	if !q.IncludeInactive {
		query += ` AND active`
		countQuery += ` AND active`
	}
	if q.Search != "" {
		idx := strconv.Itoa(len(args) + 1)
		query += ` AND (name ILIKE $` + idx + ` OR reference ILIKE $` + idx + `)`
		countQuery += ` AND (name ILIKE $` + idx + ` OR reference ILIKE $` + idx + `)`
		args = append(args, "%"+q.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("companies: count: %w", err)
	}

	query += ` ORDER BY name ASC`
	if q.PerPage > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, q.PerPage)
		offset := (q.Page - 1) * q.PerPage
		if offset < 0 {
			offset = 0
		}
		query += ` OFFSET $` + strconv.Itoa(len(args)+1)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("companies: list: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// ListAll returns every company, active or not. Used to build the tree
// snapshot; soft-deleted companies stay in the tree with active=false so
// dangling parent ids still resolve.
func (r *repository) ListAll(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("companies: list all: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, httpx.ErrNotFound
		}
		return Company{}, fmt.Errorf("companies: get: %w", err)
	}
	return c, nil
}

func (r *repository) Children(ctx context.Context, parentID int64) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("companies: children: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Count(ctx context.Context, filter authz.Filter) (int, error) {
	scope, args := filter.SQLClause("id", 1)
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies WHERE active AND `+scope, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("companies: count: %w", err)
	}
	return total, nil
}

func (r *repository) Create(ctx context.Context, input CreateInput) (Company, error) {
	now := time.Now().UTC()
	var parent any
	if input.ParentID != 0 {
		parent = input.ParentID
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO companies (name, kind, parent_id, reference, notify_by_email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		RETURNING `+companyColumns,
		input.Name, string(input.Kind), parent, input.Reference, input.NotifyByEmail,
		pgtype.Timestamptz{Time: now, Valid: true},
	)
	c, err := scanCompany(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Company{}, fmt.Errorf("%w: reference %q", httpx.ErrDuplicate, input.Reference)
		}
		return Company{}, fmt.Errorf("companies: create: %w", err)
	}
	return c, nil
}

// Update rewrites the mutable fields. Parent changes take an advisory lock
// on the company row key so two concurrent re-parents of the same node
// cannot interleave into a cycle the snapshot check missed.
func (r *repository) Update(ctx context.Context, id int64, input UpdateInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, id); err != nil {
			return fmt.Errorf("companies: lock: %w", err)
		}
		var parent any
		if input.ParentID != 0 {
			parent = input.ParentID
		}
		tag, err := tx.Exec(ctx, `
			UPDATE companies
			SET name = $1, parent_id = $2, reference = $3, notify_by_email = $4, updated_at = $5
			WHERE id = $6`,
			input.Name, parent, input.Reference, input.NotifyByEmail,
			pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}, id,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: reference %q", httpx.ErrDuplicate, input.Reference)
			}
			return fmt.Errorf("companies: update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE companies SET active = $1, updated_at = $2 WHERE id = $3`,
		active, pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}, id,
	)
	if err != nil {
		return fmt.Errorf("companies: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

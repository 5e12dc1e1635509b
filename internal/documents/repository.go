package documents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
)

// RepositoryPort defines persistence operations for billing documents.
type RepositoryPort interface {
	List(ctx context.Context, filter authz.Filter, q ListQuery) ([]Document, int, error)
	Get(ctx context.Context, id int64) (Document, error)
	Count(ctx context.Context, filter authz.Filter, q ListQuery) (int, error)
	Summarize(ctx context.Context, filter authz.Filter) ([]KindCount, error)
	Create(ctx context.Context, doc Document) (Document, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{pool: pool}
}

const documentColumns = `id, number, company_id, kind, status, currency, total, issued_at, due_at, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var issuedAt, dueAt, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&d.ID, &d.Number, &d.CompanyID, &d.Kind, &d.Status, &d.Currency, &d.Total, &issuedAt, &dueAt, &createdAt, &updatedAt); err != nil {
		return Document{}, err
	}
	if issuedAt.Valid {
		d.IssuedAt = issuedAt.Time
	}
	if dueAt.Valid {
		d.DueAt = dueAt.Time
	}
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return d, nil
}

// queryConditions renders the list filters on top of the scope clause.
func queryConditions(q ListQuery, args []any) (string, []any) {
	cond := ""
	if q.Kind != "" {
		cond += ` AND kind = $` + strconv.Itoa(len(args)+1)
		args = append(args, string(q.Kind))
	}
	if q.Status != "" {
		cond += ` AND status = $` + strconv.Itoa(len(args)+1)
		args = append(args, string(q.Status))
	}
	if q.OverdueOnly {
		cond += ` AND status = 'OPEN' AND due_at < NOW()`
	}
	if q.Search != "" {
		cond += ` AND number ILIKE $` + strconv.Itoa(len(args)+1)
		args = append(args, "%"+q.Search+"%")
	}
	return cond, args
}

// List applies the caller's visibility filter plus kind/status/overdue
// filters and pagination. The scope clause is combined, never interpreted.
func (r *repository) List(ctx context.Context, filter authz.Filter, q ListQuery) ([]Document, int, error) {
	scope, scopeArgs := filter.SQLClause("company_id", 1)
	args := append([]any{}, scopeArgs...)
	cond, args := queryConditions(q, args)
	base := ` FROM documents WHERE ` + scope + cond

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("documents: count: %w", err)
	}

	query := `SELECT ` + documentColumns + base + ` ORDER BY issued_at DESC, id DESC`
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
		return nil, 0, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, httpx.ErrNotFound
		}
		return Document{}, fmt.Errorf("documents: get: %w", err)
	}
	return d, nil
}

func (r *repository) Count(ctx context.Context, filter authz.Filter, q ListQuery) (int, error) {
	scope, scopeArgs := filter.SQLClause("company_id", 1)
	args := append([]any{}, scopeArgs...)
	cond, args := queryConditions(q, args)

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE `+scope+cond, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("documents: count: %w", err)
	}
	return total, nil
}

// Summarize aggregates open/overdue counts and outstanding totals per kind
// within the caller's scope.
func (r *repository) Summarize(ctx context.Context, filter authz.Filter) ([]KindCount, error) {
	scope, args := filter.SQLClause("company_id", 1)
	query := `
		SELECT kind,
		       COUNT(*) FILTER (WHERE status = 'OPEN'),
		       COUNT(*) FILTER (WHERE status = 'OPEN' AND due_at < NOW()),
		       COALESCE(SUM(total) FILTER (WHERE status = 'OPEN'), 0)
		FROM documents
		WHERE ` + scope + `
		GROUP BY kind
		ORDER BY kind`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("documents: summarize: %w", err)
	}
	defer rows.Close()

	var out []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Open, &kc.Overdue, &kc.Total); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, doc Document) (Document, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (number, company_id, kind, status, currency, total, issued_at, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, created_at, updated_at`,
		doc.Number, doc.CompanyID, string(doc.Kind), string(doc.Status), doc.Currency, doc.Total,
		pgtype.Timestamptz{Time: doc.IssuedAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: doc.DueAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: now, Valid: true},
	)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&doc.ID, &createdAt, &updatedAt); err != nil {
		return Document{}, fmt.Errorf("documents: create: %w", err)
	}
	doc.CreatedAt = createdAt.Time
	doc.UpdatedAt = updatedAt.Time
	return doc, nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("documents: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

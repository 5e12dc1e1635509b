package users

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

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filter authz.Filter, q ListQuery) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Count(ctx context.Context, filter authz.Filter) (int, error)
	Create(ctx context.Context, input CreateInput, passwordHash string) (User, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SetRole(ctx context.Context, id int64, role authz.Role) error
	SetCompanies(ctx context.Context, id int64, companyIDs []int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{pool: pool}
}

// visibilityClause renders the caller's scope as a predicate over a user's
// assigned companies: a user is visible when any assignment intersects the
// accessible set. Staff accounts without assignments are only visible to
// unrestricted callers.
func visibilityClause(filter authz.Filter, argIndex int) (string, []any) {
	if filter.Unrestricted() {
		return "TRUE", nil
	}
	ids := filter.CompanyIDs()
	if len(ids) == 0 {
		return "FALSE", nil
	}
	clause := fmt.Sprintf("EXISTS (SELECT 1 FROM user_companies uc WHERE uc.user_id = u.id AND uc.company_id = ANY($%d))", argIndex)
	return clause, []any{ids}
}

func (r *repository) List(ctx context.Context, filter authz.Filter, q ListQuery) ([]User, int, error) {
	scope, scopeArgs := visibilityClause(filter, 1)
	args := append([]any{}, scopeArgs...)
	base := ` FROM users u WHERE ` + scope
	if q.Search != "" {
		idx := strconv.Itoa(len(args) + 1)
		base += ` AND (u.name ILIKE $` + idx + ` OR u.email ILIKE $` + idx + `)`
		args = append(args, "%"+q.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	query := `SELECT u.id, u.email, u.name, u.role, u.password_hash, u.is_active, u.created_at, u.updated_at` + base + ` ORDER BY u.name ASC`
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
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		ids, err := r.companyIDs(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].CompanyIDs = ids
	}
	return out, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.name, u.role, u.password_hash, u.is_active, u.created_at, u.updated_at FROM users u WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	u.CompanyIDs, err = r.companyIDs(ctx, u.ID)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.name, u.role, u.password_hash, u.is_active, u.created_at, u.updated_at FROM users u WHERE lower(u.email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, fmt.Errorf("users: find by email: %w", err)
	}
	u.CompanyIDs, err = r.companyIDs(ctx, u.ID)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *repository) Count(ctx context.Context, filter authz.Filter) (int, error) {
	scope, args := visibilityClause(filter, 1)
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE u.is_active AND `+scope, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return total, nil
}

func (r *repository) Create(ctx context.Context, input CreateInput, passwordHash string) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
		row := tx.QueryRow(ctx, `
			INSERT INTO users (email, name, role, password_hash, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, $5, $5)
			RETURNING id, email, name, role, password_hash, is_active, created_at, updated_at`,
			input.Email, input.Name, input.Role.String(), passwordHash, now,
		)
		u, err := scanUser(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: email %q", httpx.ErrDuplicate, input.Email)
			}
			return fmt.Errorf("users: create: %w", err)
		}
		for _, companyID := range input.CompanyIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_companies (user_id, company_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				u.ID, companyID); err != nil {
				return fmt.Errorf("users: assign company: %w", err)
			}
		}
		u.CompanyIDs = append([]int64(nil), input.CompanyIDs...)
		created = u
		return nil
	})
	return created, err
}

func (r *repository) Update(ctx context.Context, id int64, input UpdateInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $1, email = $2, updated_at = $3 WHERE id = $4`,
		input.Name, input.Email, pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q", httpx.ErrDuplicate, input.Email)
		}
		return fmt.Errorf("users: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) SetRole(ctx context.Context, id int64, role authz.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`,
		role.String(), pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}, id,
	)
	if err != nil {
		return fmt.Errorf("users: set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) SetCompanies(ctx context.Context, id int64, companyIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_companies WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("users: clear companies: %w", err)
		}
		for _, companyID := range companyIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_companies (user_id, company_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, companyID); err != nil {
				return fmt.Errorf("users: assign company: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}, id,
	)
	if err != nil {
		return fmt.Errorf("users: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) companyIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT company_id FROM user_companies WHERE user_id = $1 ORDER BY company_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: company ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var roleName string
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &roleName, &u.PasswordHash, &u.IsActive, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	role, err := authz.ParseRole(roleName)
	if err != nil {
		return User{}, err
	}
	u.Role = role
	if createdAt.Valid {
		u.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		u.UpdatedAt = updatedAt.Time
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

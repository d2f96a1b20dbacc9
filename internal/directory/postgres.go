package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FallSteph/Syllabuksu/model"
)

const uniqueViolation = "23505"

const userColumns = `id, employee_id, first_name, last_name, email, role, college, department,
	status, notifications_enabled, created_at`

// PgUserStore is a PostgreSQL-backed UserStore using pgx/v5.
type PgUserStore struct {
	pool *pgxpool.Pool
}

// NewPgUserStore creates a new PostgreSQL user store.
func NewPgUserStore(pool *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{pool: pool}
}

// GetUser retrieves a user by ID.
func (s *PgUserStore) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *PgUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("no user with email %q", email))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

// FindActiveUserByRole returns the first active user, ordered by name, that
// holds role inside scope.
func (s *PgUserStore) FindActiveUserByRole(ctx context.Context, role model.Role, scope model.Scope) (model.User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND status = $2`
	args := []any{role, model.UserActive}
	if scope.College != "" {
		args = append(args, scope.College)
		query += fmt.Sprintf(" AND lower(college) = lower($%d)", len(args))
	}
	if scope.Department != "" {
		args = append(args, scope.Department)
		query += fmt.Sprintf(" AND lower(department) = lower($%d)", len(args))
	}
	query += " ORDER BY lower(last_name), lower(first_name), id LIMIT 1"

	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("find %s reviewer: %w", role, err)
	}
	return u, true, nil
}

// Create validates and inserts a new user. The ID is generated when empty.
func (s *PgUserStore) Create(ctx context.Context, u model.User) (model.User, error) {
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	u = Prepare(u, id, time.Now().UTC())
	if err := Validate(u); err != nil {
		return model.User{}, err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.EmployeeID, u.FirstName, u.LastName, u.Email, u.Role, u.College, u.Department,
		u.Status, u.NotificationsEnabled, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.User{}, model.NewConflictError(fmt.Sprintf("email %q is already registered", u.Email))
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// List returns users matching filters sorted by last name, then first name.
func (s *PgUserStore) List(ctx context.Context, filters model.UserFilters) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.Role != "" {
		add("role = $%d", filters.Role)
	}
	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.College != "" {
		add("lower(college) = lower($%d)", filters.College)
	}
	if filters.Department != "" {
		add("lower(department) = lower($%d)", filters.Department)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY lower(last_name), lower(first_name), id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	result := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// Update applies patch to the user and validates the result. The read and
// write share a row lock.
func (s *PgUserStore) Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("begin update user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", err)
	}

	updated := Prepare(patch.Apply(u), id, u.CreatedAt)
	if err := Validate(updated); err != nil {
		return model.User{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, role = $4, college = $5, department = $6,
		    status = $7, notifications_enabled = $8
		WHERE id = $1`,
		id, updated.FirstName, updated.LastName, updated.Role, updated.College, updated.Department,
		updated.Status, updated.NotificationsEnabled,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.User{}, fmt.Errorf("commit update user: %w", err)
	}
	return updated, nil
}

// SetStatus archives or reactivates a user.
func (s *PgUserStore) SetStatus(ctx context.Context, id string, status model.UserStatus) (model.User, error) {
	return s.Update(ctx, id, model.UserPatch{Status: &status})
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.EmployeeID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.College, &u.Department,
		&u.Status, &u.NotificationsEnabled, &u.CreatedAt,
	)
	return u, err
}

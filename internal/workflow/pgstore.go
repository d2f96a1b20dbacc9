package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FallSteph/Syllabuksu/model"
)

const uniqueViolation = "23505"

// PgSyllabusStore is a PostgreSQL-backed SyllabusStore using pgx/v5.
type PgSyllabusStore struct {
	pool *pgxpool.Pool
}

// NewPgSyllabusStore creates a new PostgreSQL syllabus store.
func NewPgSyllabusStore(pool *pgxpool.Pool) *PgSyllabusStore {
	return &PgSyllabusStore{pool: pool}
}

const syllabusColumns = `id, course_code, course_title, semester_period, college, department,
	faculty_id, faculty_name, file_ref, form17_link, form18_link, compliance_score,
	status, feedback, version, created_at, updated_at`

// Create inserts a new syllabus and its initial review history.
func (s *PgSyllabusStore) Create(ctx context.Context, syl model.Syllabus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create syllabus: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO syllabi (`+syllabusColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		syl.ID, syl.CourseCode, syl.CourseTitle, syl.SemesterPeriod, syl.College, syl.Department,
		syl.FacultyID, syl.FacultyName, syl.FileRef, syl.Form17Link, syl.Form18Link, syl.ComplianceScore,
		syl.Status, syl.Feedback, syl.Version, syl.CreatedAt, syl.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.NewConflictError(fmt.Sprintf("syllabus %q already exists", syl.ID))
		}
		return fmt.Errorf("insert syllabus: %w", err)
	}

	if err := insertReviewActions(ctx, tx, syl.ID, 0, syl.ReviewHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create syllabus: %w", err)
	}
	return nil
}

// Get retrieves a syllabus and its review history.
func (s *PgSyllabusStore) Get(ctx context.Context, id string) (model.Syllabus, error) {
	syl, err := scanSyllabus(s.pool.QueryRow(ctx, `
		SELECT `+syllabusColumns+`
		FROM syllabi
		WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Syllabus{}, model.NewNotFoundError(
			fmt.Sprintf("syllabus %q not found", id),
		)
	}
	if err != nil {
		return model.Syllabus{}, fmt.Errorf("query syllabus: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, reviewer_id, reviewer_name, reviewer_role, kind, comment, created_at
		FROM review_actions
		WHERE syllabus_id = $1
		ORDER BY seq ASC`, id)
	if err != nil {
		return model.Syllabus{}, fmt.Errorf("query review actions: %w", err)
	}
	defer rows.Close()

	syl.ReviewHistory = []model.ReviewAction{}
	for rows.Next() {
		var ra model.ReviewAction
		if err := rows.Scan(
			&ra.ID, &ra.ReviewerID, &ra.ReviewerName, &ra.ReviewerRole,
			&ra.Kind, &ra.Comment, &ra.Timestamp,
		); err != nil {
			return model.Syllabus{}, fmt.Errorf("scan review action: %w", err)
		}
		syl.ReviewHistory = append(syl.ReviewHistory, ra)
	}
	if err := rows.Err(); err != nil {
		return model.Syllabus{}, fmt.Errorf("iterate review actions: %w", err)
	}
	return syl, nil
}

// Save persists a transitioned syllabus with optimistic locking. The update
// and the history append commit in one transaction.
func (s *PgSyllabusStore) Save(ctx context.Context, syl model.Syllabus, expected model.SyllabusStatus) (model.Syllabus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Syllabus{}, fmt.Errorf("begin save syllabus: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE syllabi SET
			status = $1,
			feedback = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND version = $6 AND status = $7`,
		syl.Status, syl.Feedback, syl.Version+1, syl.UpdatedAt,
		syl.ID, syl.Version, expected,
	)
	if err != nil {
		return model.Syllabus{}, fmt.Errorf("update syllabus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM syllabi WHERE id = $1)`, syl.ID).Scan(&exists); err != nil {
			return model.Syllabus{}, fmt.Errorf("check syllabus: %w", err)
		}
		if !exists {
			return model.Syllabus{}, model.NewNotFoundError(fmt.Sprintf("syllabus %q not found", syl.ID))
		}
		return model.Syllabus{}, model.NewConflictError(
			fmt.Sprintf("syllabus %q was changed by another reviewer (expected %s, version %d)", syl.ID, expected.Label(), syl.Version),
		)
	}

	var stored int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM review_actions WHERE syllabus_id = $1`, syl.ID).Scan(&stored); err != nil {
		return model.Syllabus{}, fmt.Errorf("count review actions: %w", err)
	}
	if stored > len(syl.ReviewHistory) {
		return model.Syllabus{}, fmt.Errorf("save syllabus %q: review history shrank from %d to %d entries",
			syl.ID, stored, len(syl.ReviewHistory))
	}
	if err := insertReviewActions(ctx, tx, syl.ID, stored, syl.ReviewHistory[stored:]); err != nil {
		return model.Syllabus{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Syllabus{}, fmt.Errorf("commit save syllabus: %w", err)
	}

	syl.Version++
	return syl, nil
}

// List returns summaries matching filters.
func (s *PgSyllabusStore) List(ctx context.Context, filters model.SyllabusFilters) ([]model.SyllabusSummary, error) {
	query := `SELECT id, course_code, course_title, semester_period, college, department,
	                 faculty_id, faculty_name, status, updated_at
	          FROM syllabi`
	var conds []string
	var args []any
	argIdx := 1

	add := func(cond string, arg any) {
		conds = append(conds, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}
	if filters.FacultyID != "" {
		add("faculty_id = $%d", filters.FacultyID)
	}
	if filters.College != "" {
		add("lower(college) = lower($%d)", filters.College)
	}
	if filters.Department != "" {
		add("lower(department) = lower($%d)", filters.Department)
	}
	if filters.Semester != "" {
		add("semester_period = $%d", filters.Semester)
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, st := range filters.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY updated_at DESC, id ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query syllabi: %w", err)
	}
	defer rows.Close()

	result := []model.SyllabusSummary{}
	for rows.Next() {
		var sum model.SyllabusSummary
		if err := rows.Scan(
			&sum.ID, &sum.CourseCode, &sum.CourseTitle, &sum.SemesterPeriod, &sum.College, &sum.Department,
			&sum.FacultyID, &sum.FacultyName, &sum.Status, &sum.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan syllabus: %w", err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

func scanSyllabus(row pgx.Row) (model.Syllabus, error) {
	var syl model.Syllabus
	err := row.Scan(
		&syl.ID, &syl.CourseCode, &syl.CourseTitle, &syl.SemesterPeriod, &syl.College, &syl.Department,
		&syl.FacultyID, &syl.FacultyName, &syl.FileRef, &syl.Form17Link, &syl.Form18Link, &syl.ComplianceScore,
		&syl.Status, &syl.Feedback, &syl.Version, &syl.CreatedAt, &syl.UpdatedAt,
	)
	return syl, err
}

func insertReviewActions(ctx context.Context, tx pgx.Tx, syllabusID string, startSeq int, actions []model.ReviewAction) error {
	for i, ra := range actions {
		_, err := tx.Exec(ctx, `
			INSERT INTO review_actions (
				id, syllabus_id, seq, reviewer_id, reviewer_name, reviewer_role, kind, comment, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ra.ID, syllabusID, startSeq+i, ra.ReviewerID, ra.ReviewerName, ra.ReviewerRole,
			ra.Kind, ra.Comment, ra.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert review action: %w", err)
		}
	}
	return nil
}

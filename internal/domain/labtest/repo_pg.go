package labtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labportal/portal/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const testCols = `id, code, patient_id, category, status, requested_by, assigned_to, assigned_name,
	result_summary, requested_at, taken_at, executed_at, reported_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.Code, &t.PatientID, &t.Category, &t.Status,
		&t.RequestedBy, &t.AssignedTo, &t.AssignedName, &t.ResultSummary,
		&t.RequestedAt, &t.TakenAt, &t.ExecutedAt, &t.ReportedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Test) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test (id, code, patient_id, category, status, requested_by, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Code, t.PatientID, t.Category, t.Status, t.RequestedBy, t.RequestedAt)
	if err != nil {
		return fmt.Errorf("lab_test create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Test, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM lab_test WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Test, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM lab_test WHERE code = $1`, code))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Test, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_test WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, t *Test) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_test SET status=$2, assigned_to=$3, assigned_name=$4, result_summary=$5,
			taken_at=$6, executed_at=$7, reported_at=$8, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Status, t.AssignedTo, t.AssignedName, t.ResultSummary,
		t.TakenAt, t.ExecutedAt, t.ReportedAt)
	if err != nil {
		return fmt.Errorf("lab_test update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Test, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	i := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", i)
		args = append(args, f.Status)
		i++
	}
	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", i)
		args = append(args, f.Category)
		i++
	}
	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(" AND patient_id = $%d", i)
		args = append(args, f.PatientID)
		i++
	}
	if f.RequestedBy != uuid.Nil {
		where += fmt.Sprintf(" AND requested_by = $%d", i)
		args = append(args, f.RequestedBy)
		i++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_test`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + testCols + ` FROM lab_test` + where +
		fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d OFFSET $%d", i, i+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []*Test
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.Code, &t.PatientID, &t.Category, &t.Status,
			&t.RequestedBy, &t.AssignedTo, &t.AssignedName, &t.ResultSummary,
			&t.RequestedAt, &t.TakenAt, &t.ExecutedAt, &t.ReportedAt,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tests = append(tests, &t)
	}
	return tests, total, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

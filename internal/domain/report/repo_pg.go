package report

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

const reportCols = `id, test_id, source, file_path, digest, signed_path, signed_at, created_by, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.TestID, &rep.Source, &rep.FilePath, &rep.Digest,
		&rep.SignedPath, &rep.SignedAt, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &rep, err
}

func (r *repoPG) Create(ctx context.Context, rep *Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO report (id, test_id, source, file_path, digest, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rep.ID, rep.TestID, rep.Source, rep.FilePath, rep.Digest, rep.CreatedBy)
	if err != nil {
		return fmt.Errorf("report create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+` FROM report WHERE id = $1`, id))
}

func (r *repoPG) GetByTestID(ctx context.Context, testID uuid.UUID) (*Report, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+` FROM report WHERE test_id = $1`, testID))
}

func (r *repoPG) Update(ctx context.Context, rep *Report) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE report SET source=$2, file_path=$3, digest=$4,
			signed_path=$5, signed_at=$6, created_by=$7, created_at=$8,
			updated_at=NOW()
		WHERE id = $1`,
		rep.ID, rep.Source, rep.FilePath, rep.Digest, rep.SignedPath, rep.SignedAt,
		rep.CreatedBy, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("report update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM report WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("report delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM report`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reportCols+` FROM report
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.TestID, &rep.Source, &rep.FilePath, &rep.Digest,
			&rep.SignedPath, &rep.SignedAt, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, 0, err
		}
		reports = append(reports, &rep)
	}
	return reports, total, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

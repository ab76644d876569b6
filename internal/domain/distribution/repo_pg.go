package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/domain/report"
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

const deliveryCols = `
	t.id, t.code, t.patient_id, t.category, t.status, t.requested_by, t.assigned_to, t.assigned_name,
	t.result_summary, t.requested_at, t.taken_at, t.executed_at, t.reported_at, t.created_at, t.updated_at,
	p.id, p.given_name, p.family_name, p.fiscal_code, p.birth_date, p.sex, p.created_at, p.updated_at,
	r.id, r.test_id, r.source, r.file_path, r.digest, r.signed_path, r.signed_at, r.created_by, r.created_at, r.updated_at`

func (r *repoPG) scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	var repID, repTestID, repCreatedBy *uuid.UUID
	var repSource, repPath, repDigest, repSignedPath *string
	var repSignedAt, repCreatedAt, repUpdatedAt *time.Time

	err := row.Scan(
		&d.Test.ID, &d.Test.Code, &d.Test.PatientID, &d.Test.Category, &d.Test.Status,
		&d.Test.RequestedBy, &d.Test.AssignedTo, &d.Test.AssignedName,
		&d.Test.ResultSummary, &d.Test.RequestedAt, &d.Test.TakenAt, &d.Test.ExecutedAt,
		&d.Test.ReportedAt, &d.Test.CreatedAt, &d.Test.UpdatedAt,
		&d.Patient.ID, &d.Patient.GivenName, &d.Patient.FamilyName, &d.Patient.FiscalCode,
		&d.Patient.BirthDate, &d.Patient.Sex, &d.Patient.CreatedAt, &d.Patient.UpdatedAt,
		&repID, &repTestID, &repSource, &repPath, &repDigest,
		&repSignedPath, &repSignedAt, &repCreatedBy, &repCreatedAt, &repUpdatedAt)
	if err != nil {
		return nil, err
	}

	if repID != nil {
		d.Report = &report.Report{
			ID:         *repID,
			TestID:     *repTestID,
			Source:     *repSource,
			FilePath:   *repPath,
			Digest:     *repDigest,
			SignedPath: repSignedPath,
			SignedAt:   repSignedAt,
			CreatedBy:  *repCreatedBy,
			CreatedAt:  *repCreatedAt,
			UpdatedAt:  *repUpdatedAt,
		}
	}
	return &d, nil
}

func (r *repoPG) MatchCredentials(ctx context.Context, testCode, fiscalCode string) (*Delivery, error) {
	d, err := r.scanDelivery(r.conn(ctx).QueryRow(ctx, `
		SELECT `+deliveryCols+`
		FROM lab_test t
		JOIN patient p ON p.id = t.patient_id
		LEFT JOIN report r ON r.test_id = t.id
		WHERE t.code = $1 AND p.fiscal_code = $2`,
		testCode, patient.NormalizeFiscalCode(fiscalCode)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	return d, err
}

func (r *repoPG) FindByDigest(ctx context.Context, testCode, digest string) (*Delivery, error) {
	d, err := r.scanDelivery(r.conn(ctx).QueryRow(ctx, `
		SELECT `+deliveryCols+`
		FROM lab_test t
		JOIN patient p ON p.id = t.patient_id
		JOIN report r ON r.test_id = t.id
		WHERE t.code = $1 AND r.digest = $2`,
		testCode, digest))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVerifyNotFound
	}
	return d, err
}

func (r *repoPG) InsertAccess(ctx context.Context, entry *AccessLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO distribution_access_log (id, test_code, fiscal_code, fiscal_hint, outcome, ip, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.TestCode, entry.FiscalCode, entry.FiscalHint, entry.Outcome, entry.IP, entry.UserAgent)
	if err != nil {
		return fmt.Errorf("access log insert: %w", err)
	}
	return nil
}

func (r *repoPG) ListAccess(ctx context.Context, limit, offset int) ([]*AccessLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM distribution_access_log`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, test_code, fiscal_code, fiscal_hint, outcome, ip, user_agent, created_at
		FROM distribution_access_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*AccessLog
	for rows.Next() {
		var e AccessLog
		if err := rows.Scan(&e.ID, &e.TestCode, &e.FiscalCode, &e.FiscalHint,
			&e.Outcome, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

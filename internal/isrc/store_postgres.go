package isrc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
	txcontext "tunecast/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists issued codes in PostgreSQL. The registry_codes table
// carries a unique index on (registrant_code, year, designation_number).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, code *Code) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registry_codes (
			code, country_code, registrant_code, year, designation_number,
			release_id, status, cleared_for_distribution, territorial_restrictions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		code.Code,
		code.CountryCode,
		code.RegistrantCode,
		code.Year,
		code.DesignationNumber,
		uuid.UUID(code.ReleaseID),
		string(code.Status),
		code.ClearedForDistribution,
		pq.Array(code.TerritorialRestrictions),
		code.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return dErrors.Wrap(err, dErrors.CodeConflict, "designation number already issued")
		}
		return fmt.Errorf("insert registry code: %w", err)
	}
	return nil
}

const codeColumns = `
	code, country_code, registrant_code, year, designation_number,
	release_id, status, cleared_for_distribution, territorial_restrictions, created_at`

func (s *PostgresStore) scanCode(row *sql.Row) (*Code, error) {
	var code Code
	var releaseID uuid.UUID
	var status string
	err := row.Scan(
		&code.Code,
		&code.CountryCode,
		&code.RegistrantCode,
		&code.Year,
		&code.DesignationNumber,
		&releaseID,
		&status,
		&code.ClearedForDistribution,
		pq.Array(&code.TerritorialRestrictions),
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "code not found")
		}
		return nil, fmt.Errorf("scan registry code: %w", err)
	}
	code.ReleaseID = id.ReleaseID(releaseID)
	code.Status = Status(status)
	return &code, nil
}

func (s *PostgresStore) ByCode(ctx context.Context, code string) (*Code, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM registry_codes WHERE code = $1`, code)
	return s.scanCode(row)
}

func (s *PostgresStore) ActiveByRelease(ctx context.Context, releaseID id.ReleaseID) (*Code, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM registry_codes WHERE release_id = $1 AND status = $2`,
		uuid.UUID(releaseID), string(StatusActive))
	code, err := s.scanCode(row)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no active code for release")
	}
	return code, err
}

func (s *PostgresStore) MaxDesignation(ctx context.Context, registrant string, year int) (int, error) {
	var max int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(designation_number), 0)
		FROM registry_codes
		WHERE registrant_code = $1 AND year = $2`,
		registrant, year).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max designation: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, code string, status Status) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE registry_codes SET status = $1 WHERE code = $2`, string(status), code)
	if err != nil {
		return fmt.Errorf("update code status: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SetCleared(ctx context.Context, code string, cleared bool) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE registry_codes SET cleared_for_distribution = $1 WHERE code = $2`, cleared, code)
	if err != nil {
		return fmt.Errorf("set code cleared: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "code not found")
	}
	return nil
}

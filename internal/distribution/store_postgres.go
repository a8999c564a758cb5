package distribution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
	txcontext "tunecast/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists distributions in PostgreSQL. The distributions
// table carries a unique index on (release_id, platform_code) and
// GetForUpdate takes a row-level lock to serialize per-row mutation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	return json.Marshal(meta)
}

func (s *PostgresStore) Create(ctx context.Context, d *Distribution) error {
	distMeta, err := marshalMeta(d.DistributionMetadata)
	if err != nil {
		return fmt.Errorf("marshal distribution metadata: %w", err)
	}
	platMeta, err := marshalMeta(d.PlatformMetadata)
	if err != nil {
		return fmt.Errorf("marshal platform metadata: %w", err)
	}

	var batchID any
	if d.BatchID != nil {
		batchID = uuid.UUID(*d.BatchID)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO distributions (
			id, release_id, batch_id, platform_code, status, isrc, territories,
			distribution_metadata, platform_metadata, retry_count, error_message,
			platform_submission_id, platform_url, live_date, removal_requested_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		uuid.UUID(d.ID),
		uuid.UUID(d.ReleaseID),
		batchID,
		string(d.Platform),
		string(d.Status),
		d.ISRC,
		pq.Array(d.Territories),
		distMeta,
		platMeta,
		d.RetryCount,
		nullString(d.ErrorMessage),
		nullString(d.PlatformSubmissionID),
		nullString(d.PlatformURL),
		nullTime(d.LiveDate),
		nullTime(d.RemovalRequestedAt),
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return dErrors.Wrap(err, dErrors.CodeConflict, "distribution already exists for release and platform")
		}
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

const distColumns = `
	id, release_id, batch_id, platform_code, status, isrc, territories,
	distribution_metadata, platform_metadata, retry_count, error_message,
	platform_submission_id, platform_url, live_date, removal_requested_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (*Distribution, error) {
	var (
		d                  Distribution
		rowID, releaseID   uuid.UUID
		batchID            uuid.NullUUID
		platform, status   string
		distMeta, platMeta []byte
		errMsg, subID, url sql.NullString
		liveDate, removal  sql.NullTime
	)
	err := row.Scan(
		&rowID, &releaseID, &batchID, &platform, &status, &d.ISRC,
		pq.Array(&d.Territories), &distMeta, &platMeta, &d.RetryCount,
		&errMsg, &subID, &url, &liveDate, &removal, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "distribution not found")
		}
		return nil, fmt.Errorf("scan distribution: %w", err)
	}

	d.ID = id.DistributionID(rowID)
	d.ReleaseID = id.ReleaseID(releaseID)
	if batchID.Valid {
		converted := id.BatchID(batchID.UUID)
		d.BatchID = &converted
	}
	d.Platform = Platform(platform)
	d.Status = Status(status)
	if err := json.Unmarshal(distMeta, &d.DistributionMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal distribution metadata: %w", err)
	}
	if err := json.Unmarshal(platMeta, &d.PlatformMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal platform metadata: %w", err)
	}
	d.ErrorMessage = errMsg.String
	d.PlatformSubmissionID = subID.String
	d.PlatformURL = url.String
	if liveDate.Valid {
		t := liveDate.Time
		d.LiveDate = &t
	}
	if removal.Valid {
		t := removal.Time
		d.RemovalRequestedAt = &t
	}
	return &d, nil
}

func (s *PostgresStore) Get(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+distColumns+` FROM distributions WHERE id = $1`, uuid.UUID(distributionID))
	return scanDistribution(row)
}

func (s *PostgresStore) GetForUpdate(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+distColumns+` FROM distributions WHERE id = $1 FOR UPDATE`, uuid.UUID(distributionID))
	return scanDistribution(row)
}

func (s *PostgresStore) Update(ctx context.Context, d *Distribution) error {
	distMeta, err := marshalMeta(d.DistributionMetadata)
	if err != nil {
		return fmt.Errorf("marshal distribution metadata: %w", err)
	}
	platMeta, err := marshalMeta(d.PlatformMetadata)
	if err != nil {
		return fmt.Errorf("marshal platform metadata: %w", err)
	}

	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE distributions SET
			status = $2, territories = $3, distribution_metadata = $4,
			platform_metadata = $5, retry_count = $6, error_message = $7,
			platform_submission_id = $8, platform_url = $9, live_date = $10,
			removal_requested_at = $11, updated_at = $12
		WHERE id = $1`,
		uuid.UUID(d.ID),
		string(d.Status),
		pq.Array(d.Territories),
		distMeta,
		platMeta,
		d.RetryCount,
		nullString(d.ErrorMessage),
		nullString(d.PlatformSubmissionID),
		nullString(d.PlatformURL),
		nullTime(d.LiveDate),
		nullTime(d.RemovalRequestedAt),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "distribution not found")
	}
	return nil
}

func (s *PostgresStore) ByPlatformSubmission(ctx context.Context, platform Platform, submissionID string) (*Distribution, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+distColumns+` FROM distributions WHERE platform_code = $1 AND platform_submission_id = $2`,
		string(platform), submissionID)
	d, err := scanDistribution(row)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no distribution for platform submission")
	}
	return d, err
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO distribution_events (distribution_id, status, message, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.UUID(event.DistributionID), string(event.Status), event.Message, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert distribution event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, distributionID id.DistributionID) ([]Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT distribution_id, status, message, occurred_at
		FROM distribution_events
		WHERE distribution_id = $1
		ORDER BY occurred_at ASC`, uuid.UUID(distributionID))
	if err != nil {
		return nil, fmt.Errorf("list distribution events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var distID uuid.UUID
		var status string
		if err := rows.Scan(&distID, &status, &event.Message, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan distribution event: %w", err)
		}
		event.DistributionID = id.DistributionID(distID)
		event.Status = Status(status)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch *BulkBatch) error {
	releases := make([]uuid.UUID, len(batch.Releases))
	for i, r := range batch.Releases {
		releases[i] = uuid.UUID(r)
	}
	platforms := make([]string, len(batch.Platforms))
	for i, p := range batch.Platforms {
		platforms[i] = string(p)
	}

	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO bulk_batches (id, created_by, release_ids, platform_codes, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(batch.ID), uuid.UUID(batch.CreatedBy), pq.Array(releases), pq.Array(platforms), batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bulk batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Batch(ctx context.Context, batchID id.BatchID) (*BulkBatch, error) {
	var (
		batch     BulkBatch
		rowID     uuid.UUID
		createdBy uuid.UUID
		releases  []uuid.UUID
		platforms []string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, created_by, release_ids, platform_codes, created_at
		FROM bulk_batches WHERE id = $1`, uuid.UUID(batchID)).
		Scan(&rowID, &createdBy, pq.Array(&releases), pq.Array(&platforms), &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, fmt.Errorf("scan bulk batch: %w", err)
	}

	batch.ID = id.BatchID(rowID)
	batch.CreatedBy = id.UserID(createdBy)
	for _, r := range releases {
		batch.Releases = append(batch.Releases, id.ReleaseID(r))
	}
	for _, p := range platforms {
		batch.Platforms = append(batch.Platforms, Platform(p))
	}
	return &batch, nil
}

func (s *PostgresStore) BatchMembers(ctx context.Context, batchID id.BatchID) ([]*Distribution, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+distColumns+` FROM distributions WHERE batch_id = $1 ORDER BY created_at ASC`,
		uuid.UUID(batchID))
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	defer rows.Close()

	var members []*Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, d)
	}
	return members, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

package webhook

import (
	"context"
	"database/sql"
	"fmt"

	"tunecast/internal/distribution"
)

// PostgresReconcileStore persists orphan webhook events in the
// webhook_orphans table.
type PostgresReconcileStore struct {
	db *sql.DB
}

func NewPostgresReconcileStore(db *sql.DB) *PostgresReconcileStore {
	return &PostgresReconcileStore{db: db}
}

func (s *PostgresReconcileStore) RecordOrphan(ctx context.Context, orphan OrphanEvent) error {
	const query = `
		INSERT INTO webhook_orphans (platform_code, submission_id, event, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		string(orphan.Platform), orphan.SubmissionID, orphan.Event, orphan.Payload, orphan.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert webhook orphan: %w", err)
	}
	return nil
}

func (s *PostgresReconcileStore) Orphans(ctx context.Context, platform distribution.Platform) ([]OrphanEvent, error) {
	const query = `
		SELECT platform_code, submission_id, event, payload, received_at
		FROM webhook_orphans
		WHERE platform_code = $1
		ORDER BY received_at ASC`

	rows, err := s.db.QueryContext(ctx, query, string(platform))
	if err != nil {
		return nil, fmt.Errorf("query webhook orphans: %w", err)
	}
	defer rows.Close()

	var orphans []OrphanEvent
	for rows.Next() {
		var orphan OrphanEvent
		var platformCode string
		if err := rows.Scan(&platformCode, &orphan.SubmissionID, &orphan.Event, &orphan.Payload, &orphan.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook orphan: %w", err)
		}
		orphan.Platform = distribution.Platform(platformCode)
		orphans = append(orphans, orphan)
	}
	return orphans, rows.Err()
}

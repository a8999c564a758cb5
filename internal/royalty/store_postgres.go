package royalty

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "tunecast/pkg/domain"
)

// PostgresStore persists revenue records in the revenue_records table,
// unique on (distribution_id, period).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, record RevenueRecord) error {
	const query = `
		INSERT INTO revenue_records (distribution_id, period, streams, revenue, currency, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (distribution_id, period)
		DO UPDATE SET streams = EXCLUDED.streams,
		              revenue = EXCLUDED.revenue,
		              currency = EXCLUDED.currency,
		              reported_at = EXCLUDED.reported_at`

	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(record.DistributionID), record.Period, record.Streams,
		record.Revenue, record.Currency, record.ReportedAt)
	if err != nil {
		return fmt.Errorf("upsert revenue record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByDistribution(ctx context.Context, distID id.DistributionID) ([]RevenueRecord, error) {
	const query = `
		SELECT distribution_id, period, streams, revenue, currency, reported_at
		FROM revenue_records
		WHERE distribution_id = $1
		ORDER BY period ASC`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(distID))
	if err != nil {
		return nil, fmt.Errorf("query revenue records: %w", err)
	}
	defer rows.Close()

	var records []RevenueRecord
	for rows.Next() {
		var record RevenueRecord
		var rawID uuid.UUID
		if err := rows.Scan(&rawID, &record.Period, &record.Streams, &record.Revenue, &record.Currency, &record.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan revenue record: %w", err)
		}
		record.DistributionID = id.DistributionID(rawID)
		records = append(records, record)
	}
	return records, rows.Err()
}

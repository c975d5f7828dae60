package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rsclarke/keyward/internal/models"
)

// AppendUsageEvent inserts an event and then trims the table so that at most
// retention events remain, dropping the oldest first. Both statements run in
// one transaction. A retention of zero or less disables trimming.
func AppendUsageEvent(ctx context.Context, d *sql.DB, e *models.UsageEvent, retention int) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	success := 0
	if e.Success {
		success = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_events (id, key_id, occurred_at, ip, user_agent, endpoint, success, response_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.KeyID, toMillis(e.Timestamp), e.IP, e.UserAgent, e.Endpoint, success, e.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}

	if retention > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM usage_events WHERE seq <= (
				SELECT seq FROM usage_events ORDER BY seq DESC LIMIT 1 OFFSET ?
			)`, retention)
		if err != nil {
			return fmt.Errorf("trim usage events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListUsageEvents returns all retained events in insertion order.
func ListUsageEvents(ctx context.Context, d *sql.DB) ([]models.UsageEvent, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, key_id, occurred_at, ip, user_agent, endpoint, success, response_time_ms
		FROM usage_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query usage events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]models.UsageEvent, 0)
	for rows.Next() {
		var (
			e          models.UsageEvent
			occurredAt int64
			userAgent  sql.NullString
			success    int
		)
		if err := rows.Scan(&e.ID, &e.KeyID, &occurredAt, &e.IP, &userAgent, &e.Endpoint, &success, &e.ResponseTimeMs); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		e.Timestamp = fromMillis(occurredAt)
		if userAgent.Valid {
			ua := userAgent.String
			e.UserAgent = &ua
		}
		e.Success = success != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage events: %w", err)
	}
	return events, nil
}

// CountUsageEvents returns the number of retained events.
func CountUsageEvents(ctx context.Context, d *sql.DB) (int, error) {
	var count int
	err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_events").Scan(&count)
	return count, err
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// ActivityLogRepository is the append-only sink for lifecycle events.
type ActivityLogRepository interface {
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error
	// ListByTicket returns entries oldest first.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLogEntry, error)
}

type activityLogRepository struct {
	pool *pgxpool.Pool
}

// NewActivityLogRepository builds the Postgres repository.
func NewActivityLogRepository(pool *pgxpool.Pool) ActivityLogRepository {
	return &activityLogRepository{pool: pool}
}

func (r *activityLogRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ticket_activity_logs (id, ticket_id, action, performed_by, details, timestamp)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.Action,
		entry.PerformedBy,
		entry.Details,
		entry.Timestamp,
	); err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

func (r *activityLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLogEntry, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return []domain.ActivityLogEntry{}, nil
	}
	const query = `
        SELECT id, ticket_id, action, performed_by, details, timestamp
        FROM ticket_activity_logs WHERE ticket_id=$1 ORDER BY timestamp ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	defer rows.Close()

	result := []domain.ActivityLogEntry{}
	for rows.Next() {
		var entry domain.ActivityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.Details,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

type sqliteActivityLogRepository struct {
	db *sql.DB
}

// NewSQLiteActivityLogRepository builds the SQLite repository.
func NewSQLiteActivityLogRepository(db *sql.DB) ActivityLogRepository {
	return &sqliteActivityLogRepository{db: db}
}

func (r *sqliteActivityLogRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_activity_logs (id, ticket_id, action, performed_by, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TicketID,
		string(entry.Action),
		entry.PerformedBy,
		entry.Details,
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

func (r *sqliteActivityLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, action, performed_by, details, timestamp
		FROM ticket_activity_logs WHERE ticket_id = ? ORDER BY timestamp ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	defer rows.Close()

	result := []domain.ActivityLogEntry{}
	for rows.Next() {
		var (
			entry     domain.ActivityLogEntry
			action    string
			timestamp string
		)
		if err := rows.Scan(&entry.ID, &entry.TicketID, &action, &entry.PerformedBy, &entry.Details, &timestamp); err != nil {
			return nil, err
		}
		entry.Action = domain.ActivityAction(action)
		if entry.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

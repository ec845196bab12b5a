package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

type sqliteTicketRepository struct {
	db *sql.DB
}

// NewSQLiteTicketRepository instantiates the SQLite repository.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db}
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	normalizeTicket(ticket)
	attachments, updates, err := encodeTicketJSON(ticket)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, ticket_number, title, description, category, priority, status,
			submitted_by, submitted_by_email, submitted_by_name, attachments, status_updates,
			created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Description,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		ticket.SubmittedBy,
		ticket.SubmittedByEmail,
		ticket.SubmittedByName,
		attachments,
		updates,
		formatTime(ticket.CreatedAt),
		formatTime(ticket.UpdatedAt),
		formatNullTime(ticket.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *sqliteTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	normalizeTicket(ticket)
	attachments, updates, err := encodeTicketJSON(ticket)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET title=?, description=?, category=?, priority=?, status=?,
			attachments=?, status_updates=?, updated_at=?, closed_at=?
		WHERE id=?`,
		ticket.Title,
		ticket.Description,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		attachments,
		updates,
		formatTime(ticket.UpdatedAt),
		formatNullTime(ticket.ClosedAt),
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	ticket, err := scanSQLiteTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (r *sqliteTicketRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return count, nil
}

func (r *sqliteTicketRepository) FindMany(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Category != nil {
		clauses = append(clauses, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.SubmittedBy != nil {
		clauses = append(clauses, "submitted_by = ?")
		args = append(args, *filter.SubmittedBy)
	}
	if filter.CreatedBetween != nil {
		clauses = append(clauses, "created_at >= ? AND created_at <= ?")
		args = append(args, formatTime(filter.CreatedBetween.From), formatTime(filter.CreatedBetween.To))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, ticket_number DESC`,
		ticketColumns, strings.Join(clauses, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket                     domain.Ticket
		category, priority, status string
		attachments, updates       string
		createdAt, updatedAt       string
		closedAt                   sql.NullString
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&category,
		&priority,
		&status,
		&ticket.SubmittedBy,
		&ticket.SubmittedByEmail,
		&ticket.SubmittedByName,
		&attachments,
		&updates,
		&createdAt,
		&updatedAt,
		&closedAt,
	); err != nil {
		return nil, err
	}
	ticket.Category = domain.TicketCategory(category)
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)

	if err := json.Unmarshal([]byte(attachments), &ticket.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if err := json.Unmarshal([]byte(updates), &ticket.StatusUpdates); err != nil {
		return nil, fmt.Errorf("decode status updates: %w", err)
	}

	var err error
	if ticket.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ticket.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if ticket.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func encodeTicketJSON(ticket *domain.Ticket) (string, string, error) {
	attachments, err := marshalJSON(ticket.Attachments)
	if err != nil {
		return "", "", fmt.Errorf("encode attachments: %w", err)
	}
	updates, err := marshalJSON(ticket.StatusUpdates)
	if err != nil {
		return "", "", fmt.Errorf("encode status updates: %w", err)
	}
	return attachments, updates, nil
}

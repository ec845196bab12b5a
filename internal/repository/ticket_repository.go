package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// TimeRange is an inclusive creation-time window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// TicketFilter narrows FindMany. Nil fields are not applied.
type TicketFilter struct {
	Status         *domain.TicketStatus
	Category       *domain.TicketCategory
	SubmittedBy    *string
	CreatedBetween *TimeRange
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// FindMany returns matching tickets, newest first.
	FindMany(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Save overwrites the mutable fields of a known ticket.
	Save(ctx context.Context, ticket *domain.Ticket) error
	Count(ctx context.Context) (int64, error)
}

const ticketColumns = `id, ticket_number, title, description, category, priority, status,
       submitted_by, submitted_by_email, submitted_by_name, attachments, status_updates,
       created_at, updated_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	normalizeTicket(ticket)
	const query = `
        INSERT INTO tickets (id, ticket_number, title, description, category, priority, status,
            submitted_by, submitted_by_email, submitted_by_name, attachments, status_updates,
            created_at, updated_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.SubmittedBy,
		ticket.SubmittedByEmail,
		ticket.SubmittedByName,
		ticket.Attachments,
		ticket.StatusUpdates,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	normalizeTicket(ticket)
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, priority=$4, status=$5,
            attachments=$6, status_updates=$7, updated_at=$8, closed_at=$9
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.Attachments,
		ticket.StatusUpdates,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (r *ticketRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return count, nil
}

func (r *ticketRepository) FindMany(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.SubmittedBy != nil {
		if _, err := uuid.Parse(*filter.SubmittedBy); err != nil {
			return []domain.Ticket{}, nil
		}
		args = append(args, *filter.SubmittedBy)
		clauses = append(clauses, fmt.Sprintf("submitted_by=$%d", len(args)))
	}
	if filter.CreatedBetween != nil {
		args = append(args, filter.CreatedBetween.From, filter.CreatedBetween.To)
		clauses = append(clauses, fmt.Sprintf("created_at BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, ticket_number DESC`,
		ticketColumns, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.SubmittedBy,
		&ticket.SubmittedByEmail,
		&ticket.SubmittedByName,
		&ticket.Attachments,
		&ticket.StatusUpdates,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// normalizeTicket keeps the JSON columns from being written as null.
func normalizeTicket(ticket *domain.Ticket) {
	if ticket.Attachments == nil {
		ticket.Attachments = []domain.Attachment{}
	}
	if ticket.StatusUpdates == nil {
		ticket.StatusUpdates = []domain.StatusUpdate{}
	}
}

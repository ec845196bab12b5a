package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/domain"
	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/repository"
)

// AuditSubscriberName identifies the activity log subscriber in logs and metrics.
const AuditSubscriberName = "activity_log"

// AuditService turns lifecycle events into activity log entries.
type AuditService struct {
	logs   repository.ActivityLogRepository
	logger *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(logs repository.ActivityLogRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{logs: logs, logger: logger}
}

// RegisterHandlers subscribes to every lifecycle event.
func (a *AuditService) RegisterHandlers(dispatcher events.Dispatcher) error {
	return dispatcher.Subscribe(AuditSubscriberName, a.Handle,
		events.EventTicketCreated,
		events.EventTicketClosed,
		events.EventTicketStatusChanged,
	)
}

// Handle appends one entry for event.
func (a *AuditService) Handle(ctx context.Context, event events.Event) error {
	entry, err := activityEntryFor(event)
	if err != nil {
		return err
	}
	if err := a.logs.Append(ctx, entry); err != nil {
		return err
	}
	a.logger.Debug("activity recorded",
		zap.String("ticket_id", event.TicketID),
		zap.String("action", string(entry.Action)))
	return nil
}

func activityEntryFor(event events.Event) (*domain.ActivityLogEntry, error) {
	entry := &domain.ActivityLogEntry{
		TicketID:    event.TicketID,
		PerformedBy: event.Actor.UserID,
		Timestamp:   event.Timestamp,
	}
	switch event.Type {
	case events.EventTicketCreated:
		entry.Action = domain.ActivityCreated
		entry.Details = "Ticket created"
	case events.EventTicketClosed:
		entry.Action = domain.ActivityClosed
		entry.Details = "Ticket closed"
	case events.EventTicketStatusChanged:
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		entry.Action = domain.ActivityStatusUpdate
		entry.Details = fmt.Sprintf("Status changed from %s to %s", payload.OldStatus, payload.NewStatus)
	default:
		return nil, fmt.Errorf("unsupported event type %q", event.Type)
	}
	return entry, nil
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/domain"
	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/service"
)

type memoryLog struct {
	entries []domain.ActivityLogEntry
}

func (m *memoryLog) Append(_ context.Context, entry *domain.ActivityLogEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryLog) ListByTicket(context.Context, string) ([]domain.ActivityLogEntry, error) {
	return m.entries, nil
}

func TestStartAuditWorkerFreezesRegistry(t *testing.T) {
	logs := &memoryLog{}
	notifier := events.NewNotifier(zap.NewNop(), events.NotifierOptions{})
	if err := StartAuditWorker(notifier, service.NewAuditService(logs, nil), nil, zap.NewNop()); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := notifier.Subscribe("late", func(context.Context, events.Event) error { return nil }, events.EventTicketCreated)
	if !errors.Is(err, events.ErrRegistryFrozen) {
		t.Fatalf("expected frozen registry, got %v", err)
	}

	notifier.Publish(context.Background(), events.Event{
		ID:        "evt-1",
		Type:      events.EventTicketClosed,
		TicketID:  "ticket-1",
		Actor:     events.Actor{UserID: "admin-1"},
		Timestamp: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := notifier.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(logs.entries) != 1 || logs.entries[0].Action != domain.ActivityClosed {
		t.Fatalf("expected one closed entry, got %+v", logs.entries)
	}
}

package worker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/service"
)

// StartAuditWorker registers the lifecycle subscribers and starts delivery.
// The registry is frozen afterwards. stream may be nil when Redis is disabled.
func StartAuditWorker(notifier *events.Notifier, audit *service.AuditService, stream *events.RedisStreamSubscriber, logger *zap.Logger) error {
	if audit != nil {
		if err := audit.RegisterHandlers(notifier); err != nil {
			return fmt.Errorf("register audit subscriber: %w", err)
		}
	}
	if stream != nil {
		if err := notifier.Subscribe(stream.Name(), stream.Handle,
			events.EventTicketCreated,
			events.EventTicketClosed,
			events.EventTicketStatusChanged,
		); err != nil {
			return fmt.Errorf("register %s: %w", stream.Name(), err)
		}
		logger.Info("mirroring lifecycle events to redis", zap.String("subscriber", stream.Name()))
	}
	notifier.Start()
	return nil
}

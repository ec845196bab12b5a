package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/observability"
	"github.com/spec-kit/hr-ticketing/internal/report"
	"github.com/spec-kit/hr-ticketing/pkg/util/errorutil"
)

// ReportService renders filtered ticket sets through a format registry.
type ReportService struct {
	tickets  *TicketService
	registry report.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewReportService wires the report engine. A nil registry uses report.DefaultRegistry.
func NewReportService(tickets *TicketService, registry report.Registry, metrics *observability.Metrics, logger *zap.Logger) *ReportService {
	if registry == nil {
		registry = report.DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{tickets: tickets, registry: registry, metrics: metrics, logger: logger}
}

// Render resolves format before querying, lists tickets with the shared filter and
// hands them to the selected strategy.
func (r *ReportService) Render(ctx context.Context, filter TicketListFilter, format string, sink report.Sink) error {
	strategy, ok := r.registry.Lookup(format)
	if !ok {
		return errorutil.NewValidationError("unsupported report format", map[string]any{
			"format":  format,
			"allowed": r.registry.Formats(),
		})
	}

	tickets, err := r.tickets.List(ctx, filter)
	if err != nil {
		r.metrics.RecordReport(format, "error")
		return err
	}

	if err := strategy.Render(ctx, tickets, sink); err != nil {
		outcome := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "cancelled"
		}
		r.metrics.RecordReport(format, outcome)
		r.logger.Warn("report rendering failed", zap.String("format", format), zap.Int("tickets", len(tickets)), zap.Error(err))
		return err
	}
	r.metrics.RecordReport(format, "ok")
	return nil
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hr-ticketing/internal/service"
)

const defaultReportFormat = "pdf"

// ReportsHandler serves ticket exports.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Export GET /tickets/report/export?format=pdf|excel. Accepts the list filters.
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	format := c.Query("format", defaultReportFormat)

	sink := &responseSink{c: c}
	if err := h.reports.Render(c.UserContext(), filter, format, sink); err != nil {
		sink.reset()
		return err
	}
	return nil
}

// responseSink writes report bytes straight into the fiber response body.
type responseSink struct {
	c *fiber.Ctx
}

func (s *responseSink) SetHeader(key, value string) {
	s.c.Set(key, value)
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.c.Response().BodyWriter().Write(p)
}

func (s *responseSink) reset() {
	s.c.Response().ResetBody()
	s.c.Response().Header.Del(fiber.HeaderContentDisposition)
}

package report

import (
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// PDFStrategy renders one text block per ticket. Headers are set before
// rendering. The document is built in memory and reaches the sink only after
// every ticket has been laid out, so callers should not expect partial output.
type PDFStrategy struct {
	Compress bool
}

func (p *PDFStrategy) ContentType() string { return "application/pdf" }

func (p *PDFStrategy) FileName() string { return "ticket_report.pdf" }

// Render sets the response headers before building the document, then emits it to sink.
func (p *PDFStrategy) Render(ctx context.Context, tickets []domain.Ticket, sink Sink) error {
	writeHeaders(sink, p)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(p.Compress)
	pdf.SetTitle("Ticket Report", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Ticket Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	for _, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines := []string{
			fmt.Sprintf("Ticket: %s", ticket.TicketNumber),
			fmt.Sprintf("Title: %s", ticket.Title),
			fmt.Sprintf("Status: %s", ticket.Status),
			fmt.Sprintf("Category: %s", ticket.Category),
			fmt.Sprintf("Priority: %s", ticket.Priority),
			fmt.Sprintf("Submitted By: %s", submitterName(ticket)),
			fmt.Sprintf("Date: %s", formatDate(ticket.CreatedAt)),
		}
		for _, line := range lines {
			pdf.MultiCell(0, 6, tr(line), "", "L", false)
		}
		pdf.Ln(2)
		pdf.CellFormat(0, 6, "-----------------------------------", "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return pdf.Output(sink)
}

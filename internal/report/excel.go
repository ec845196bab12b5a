package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// SheetName is the worksheet holding the ticket rows.
const SheetName = "Tickets"

// ExcelColumns are the header cells of the ticket sheet.
var ExcelColumns = []string{"Ticket ID", "Title", "Status", "Category", "Priority", "Submitted By", "Email", "Created At"}

var excelColumnWidths = []float64{14, 40, 14, 18, 12, 26, 30, 20}

// ExcelStrategy renders tickets as an xlsx workbook, buffered in full before writing.
type ExcelStrategy struct{}

func (e *ExcelStrategy) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *ExcelStrategy) FileName() string { return "ticket_report.xlsx" }

func (e *ExcelStrategy) Render(ctx context.Context, tickets []domain.Ticket, sink Sink) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	for i, width := range excelColumnWidths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(ExcelColumns))
	for i, col := range ExcelColumns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, excelRow(ticket)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	writeHeaders(sink, e)
	_, err = sink.Write(buf.Bytes())
	return err
}

func excelRow(t domain.Ticket) []interface{} {
	return []interface{}{
		t.TicketNumber,
		t.Title,
		string(t.Status),
		string(t.Category),
		string(t.Priority),
		submitterName(t),
		submitterEmail(t),
		formatStamp(t.CreatedAt),
	}
}

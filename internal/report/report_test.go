package report

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

func sampleTickets() []domain.Ticket {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return []domain.Ticket{
		{
			TicketNumber:     "TKT-000002",
			Title:            "Printer broken",
			Status:           domain.TicketStatusInProgress,
			Category:         domain.TicketCategoryBug,
			Priority:         domain.TicketPriorityHigh,
			SubmittedByName:  "Ada Lovelace",
			SubmittedByEmail: "ada@example.com",
			CreatedAt:        created,
		},
		{
			TicketNumber: "TKT-000001",
			Title:        "Orphaned request",
			Status:       domain.TicketStatusPending,
			Category:     domain.TicketCategoryOther,
			Priority:     domain.TicketPriorityMedium,
			CreatedAt:    created.Add(-time.Hour),
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range []string{"pdf", "PDF", " excel "} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("expected %q to resolve", name)
		}
	}
	for _, name := range []string{"csv", "xlsx", ""} {
		if _, ok := reg.Lookup(name); ok {
			t.Errorf("expected %q to be unsupported", name)
		}
	}
	if got := reg.Formats(); !reflect.DeepEqual(got, []string{"excel", "pdf"}) {
		t.Errorf("unexpected formats %v", got)
	}
}

func TestExcelRendersRows(t *testing.T) {
	sink := NewBufferSink()
	if err := (&ExcelStrategy{}).Render(context.Background(), sampleTickets(), sink); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := sink.Header.Get("Content-Disposition"); got != "attachment; filename=ticket_report.xlsx" {
		t.Errorf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(sink.Header.Get("Content-Type"), "application/vnd.openxmlformats") {
		t.Errorf("unexpected content type %q", sink.Header.Get("Content-Type"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(sink.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], ExcelColumns) {
		t.Errorf("unexpected header %v", rows[0])
	}
	want := []string{"TKT-000002", "Printer broken", "In Progress", "Bug", "High", "Ada Lovelace", "ada@example.com", "2024-05-06 07:08:09"}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[2][5] != "Unknown" || rows[2][6] != "-" {
		t.Errorf("expected placeholders, got %q / %q", rows[2][5], rows[2][6])
	}
}

func TestPDFRendersTicketBlocks(t *testing.T) {
	sink := NewBufferSink()
	if err := (&PDFStrategy{}).Render(context.Background(), sampleTickets(), sink); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := sink.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := sink.Header.Get("Content-Disposition"); got != "attachment; filename=ticket_report.pdf" {
		t.Errorf("unexpected disposition %q", got)
	}
	body := sink.String()
	if !strings.HasPrefix(body, "%PDF-") {
		t.Fatalf("expected pdf header, got %q", body[:min(len(body), 8)])
	}
	for _, needle := range []string{"Ticket: TKT-000002", "Title: Printer broken", "Submitted By: Unknown", "Date: 2024-05-06"} {
		if !strings.Contains(body, needle) {
			t.Errorf("expected pdf to contain %q", needle)
		}
	}
}

// orderSink records which headers were present when the body started.
type orderSink struct {
	BufferSink
	headersAtFirstWrite map[string]string
}

func (s *orderSink) Write(p []byte) (int, error) {
	if s.headersAtFirstWrite == nil {
		s.headersAtFirstWrite = map[string]string{
			"Content-Type":        s.Header.Get("Content-Type"),
			"Content-Disposition": s.Header.Get("Content-Disposition"),
		}
	}
	return s.BufferSink.Write(p)
}

func TestPDFSetsHeadersBeforeBody(t *testing.T) {
	sink := &orderSink{BufferSink: *NewBufferSink()}
	if err := (&PDFStrategy{}).Render(context.Background(), sampleTickets(), sink); err != nil {
		t.Fatalf("render: %v", err)
	}
	if sink.headersAtFirstWrite == nil {
		t.Fatal("expected the document to be written")
	}
	if got := sink.headersAtFirstWrite["Content-Type"]; got != "application/pdf" {
		t.Errorf("content type not set before body, got %q", got)
	}
	if got := sink.headersAtFirstWrite["Content-Disposition"]; got != "attachment; filename=ticket_report.pdf" {
		t.Errorf("disposition not set before body, got %q", got)
	}
	body := sink.String()
	if !strings.HasPrefix(body, "%PDF-") || !strings.Contains(body, "%%EOF") {
		t.Errorf("expected a complete pdf document")
	}
}

func TestRenderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, strategy := range DefaultRegistry() {
		sink := NewBufferSink()
		err := strategy.Render(ctx, sampleTickets(), sink)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%s: expected context.Canceled, got %v", name, err)
		}
		if sink.Len() != 0 {
			t.Errorf("%s: expected no body on cancellation", name)
		}
	}
}

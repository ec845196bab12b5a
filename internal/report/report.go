// Package report renders ticket collections into downloadable documents.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// Format names a rendering strategy.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
)

const (
	unknownName  = "Unknown"
	unknownEmail = "-"
	dateLayout   = "2006-01-02"
	stampLayout  = "2006-01-02 15:04:05"
)

// Sink receives a rendered report. Headers must be set before the first Write.
type Sink interface {
	io.Writer
	SetHeader(key, value string)
}

// Strategy renders tickets in one output encoding.
type Strategy interface {
	ContentType() string
	FileName() string
	Render(ctx context.Context, tickets []domain.Ticket, sink Sink) error
}

// Registry maps formats to strategies.
type Registry map[Format]Strategy

// DefaultRegistry returns the pdf and excel strategies.
func DefaultRegistry() Registry {
	return Registry{
		FormatPDF:   &PDFStrategy{Compress: true},
		FormatExcel: &ExcelStrategy{},
	}
}

// Lookup resolves a format name case-insensitively.
func (r Registry) Lookup(format string) (Strategy, bool) {
	strategy, ok := r[Format(strings.ToLower(strings.TrimSpace(format)))]
	return strategy, ok
}

// Formats lists the registered format names in order.
func (r Registry) Formats() []string {
	names := make([]string, 0, len(r))
	for format := range r {
		names = append(names, string(format))
	}
	sort.Strings(names)
	return names
}

func writeHeaders(sink Sink, s Strategy) {
	sink.SetHeader("Content-Type", s.ContentType())
	sink.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%s", s.FileName()))
}

func submitterName(t domain.Ticket) string {
	if strings.TrimSpace(t.SubmittedByName) == "" {
		return unknownName
	}
	return t.SubmittedByName
}

func submitterEmail(t domain.Ticket) string {
	if strings.TrimSpace(t.SubmittedByEmail) == "" {
		return unknownEmail
	}
	return t.SubmittedByEmail
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return unknownEmail
	}
	return t.UTC().Format(dateLayout)
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return unknownEmail
	}
	return t.UTC().Format(stampLayout)
}

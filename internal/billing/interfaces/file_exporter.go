package interfaces

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/observability/metrics"
)

const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ExportRecorder remembers where an invoice document was written.
type ExportRecorder interface {
	RecordExport(ctx context.Context, invoiceID, format, path string) error
}

// FileExporter writes invoice PDFs and summary workbooks under a directory,
// one subdirectory per period.
type FileExporter struct {
	dir      string
	recorder ExportRecorder
	logger   zerolog.Logger
}

// NewFileExporter constructs an exporter. The recorder is optional.
func NewFileExporter(dir string, recorder ExportRecorder, logger zerolog.Logger) (*FileExporter, error) {
	if dir == "" {
		return nil, errors.New("file exporter: empty directory")
	}
	return &FileExporter{dir: dir, recorder: recorder, logger: logger}, nil
}

// WriteInvoice renders and writes one invoice PDF.
func (e *FileExporter) WriteInvoice(ctx context.Context, record *billing.InvoiceRecord) error {
	if record == nil {
		return errors.New("file exporter: nil record")
	}
	start := time.Now()
	path, err := e.write(record.Period, fmt.Sprintf("%s_%s.pdf", record.TenantID, record.Period.Key()), func() ([]byte, error) {
		return BuildInvoicePDF(record)
	})
	e.observe(FormatPDF, start, err)
	if err != nil {
		return err
	}
	if e.recorder != nil {
		if err := e.recorder.RecordExport(ctx, record.ID, FormatPDF, path); err != nil {
			return fmt.Errorf("record export: %w", err)
		}
	}
	e.logger.Debug().Str("invoice", record.ID).Str("path", path).Msg("invoice exported")
	return nil
}

// WriteSummary renders and writes the period's summary workbook.
func (e *FileExporter) WriteSummary(ctx context.Context, summary billing.Summary) error {
	_ = ctx
	start := time.Now()
	path, err := e.write(summary.Period, fmt.Sprintf("summary_%s.xlsx", summary.Period.Key()), func() ([]byte, error) {
		return BuildSummaryXLSX(summary)
	})
	e.observe(FormatXLSX, start, err)
	if err != nil {
		return err
	}
	e.logger.Debug().Str("period", summary.Period.Key()).Str("path", path).Msg("summary exported")
	return nil
}

func (e *FileExporter) write(period billing.Period, name string, render func() ([]byte, error)) (string, error) {
	data, err := render()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(e.dir, period.Key())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (e *FileExporter) observe(format string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(format, result, time.Since(start))
}

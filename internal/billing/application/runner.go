package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	billing "utility-billing/internal/billing/domain"
)

// DocumentSink receives rendered-ready results of a billing run.
type DocumentSink interface {
	WriteInvoice(ctx context.Context, record *billing.InvoiceRecord) error
	WriteSummary(ctx context.Context, summary billing.Summary) error
}

// Runner generates, stores and exports the invoices of one period.
type Runner struct {
	service *InvoiceService
	sink    DocumentSink
	logger  zerolog.Logger
}

// NewRunner constructs a runner. The sink is optional.
func NewRunner(service *InvoiceService, sink DocumentSink, logger zerolog.Logger) (*Runner, error) {
	if service == nil {
		return nil, errors.New("billing runner: nil invoice service")
	}
	return &Runner{service: service, sink: sink, logger: logger}, nil
}

// Run bills the given tenants, or all tenants when none are given. Export
// failures are logged and do not fail the run.
func (r *Runner) Run(ctx context.Context, period billing.Period, tenantIDs []string) (billing.Summary, error) {
	summary, records, err := r.service.GenerateAll(ctx, period, tenantIDs)
	if err != nil {
		return billing.Summary{}, err
	}
	for _, entry := range summary.Entries {
		if entry.Failed() {
			r.logger.Warn().
				Str("tenant", entry.TenantID).
				Str("period", period.Key()).
				Str("reason", entry.FailureMessage()).
				Msg("tenant skipped")
		}
	}
	if r.sink == nil {
		return summary, nil
	}
	for _, record := range records {
		if err := r.sink.WriteInvoice(ctx, record); err != nil {
			r.logger.Error().Err(err).Str("invoice", record.ID).Msg("invoice export failed")
		}
	}
	if err := r.sink.WriteSummary(ctx, summary); err != nil {
		r.logger.Error().Err(err).Str("period", period.Key()).Msg("summary export failed")
	}
	return summary, nil
}

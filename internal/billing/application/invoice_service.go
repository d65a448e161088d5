package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/observability/metrics"
)

const defaultSummaryConcurrency = 4

// InvoiceGenerated is emitted when a stored invoice is created or its content changes.
type InvoiceGenerated struct {
	InvoiceID  string
	TenantID   string
	Period     billing.Period
	Amount     float64
	Clamped    int
	Recomputed bool
	OccurredAt time.Time
}

// InvoicePublisher emits invoice generated events.
type InvoicePublisher interface {
	PublishInvoiceGenerated(ctx context.Context, event InvoiceGenerated) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ServiceOption configures the invoice service.
type ServiceOption func(*InvoiceService)

// WithCurrency sets the currency stamped on stored invoices.
func WithCurrency(currency string) ServiceOption {
	return func(s *InvoiceService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithSummaryConcurrency bounds the tenants computed in parallel by Summarize.
func WithSummaryConcurrency(n int) ServiceOption {
	return func(s *InvoiceService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// InvoiceService runs the billing engine against stored facts.
type InvoiceService struct {
	facts       billing.FactsQuery
	store       billing.InvoiceStore
	publisher   InvoicePublisher
	clock       Clock
	logger      zerolog.Logger
	currency    string
	concurrency int
}

// NewInvoiceService constructs the service. The publisher is optional.
func NewInvoiceService(
	facts billing.FactsQuery,
	store billing.InvoiceStore,
	publisher InvoicePublisher,
	clock Clock,
	logger zerolog.Logger,
	opts ...ServiceOption,
) (*InvoiceService, error) {
	if facts == nil {
		return nil, errors.New("invoice service: nil facts query")
	}
	if store == nil {
		return nil, errors.New("invoice service: nil invoice store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	s := &InvoiceService{
		facts:       facts,
		store:       store,
		publisher:   publisher,
		clock:       clock,
		logger:      logger,
		currency:    "EUR",
		concurrency: defaultSummaryConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ComputeInvoice computes a tenant's invoice without storing it.
func (s *InvoiceService) ComputeInvoice(ctx context.Context, tenantID string, period billing.Period) (billing.Invoice, error) {
	entry := s.summaryEntry(ctx, billing.Tenant{ID: tenantID, Name: tenantID}, period)
	if entry.Failed() {
		return billing.Invoice{}, entry.Err
	}
	return *entry.Invoice, nil
}

// summaryEntry computes one tenant's entry and records its metrics. Single
// invoices and summaries share it so both observe the same outcome.
func (s *InvoiceService) summaryEntry(ctx context.Context, tenant billing.Tenant, period billing.Period) billing.SummaryEntry {
	start := time.Now()
	entry := s.computeEntry(ctx, tenant, period)
	if entry.Failed() || entry.Invoice == nil {
		metrics.ObserveInvoiceCompute(metrics.ResultError, time.Since(start))
		s.logger.Error().Err(entry.Err).Str("tenant", tenant.ID).Str("period", period.Key()).Msg("invoice computation failed")
		return entry
	}
	metrics.ObserveInvoiceCompute(metrics.ResultSuccess, time.Since(start))
	metrics.ObserveInvoiceAmount(entry.Invoice.Total)
	s.reportAnomalies(*entry.Invoice)
	return entry
}

func (s *InvoiceService) computeEntry(ctx context.Context, tenant billing.Tenant, period billing.Period) billing.SummaryEntry {
	entry := billing.SummaryEntry{TenantID: tenant.ID, TenantName: tenant.Name}
	if tenant.ID == "" {
		entry.Err = billing.ErrEmptyTenantID
		return entry
	}
	if err := period.Validate(); err != nil {
		entry.Err = err
		return entry
	}
	facts, err := s.facts.LoadFacts(ctx, tenant.ID, period)
	if err != nil {
		entry.Err = fmt.Errorf("load facts for tenant %s: %w", tenant.ID, err)
		return entry
	}
	return billing.SummaryEntryFor(facts, period)
}

func (s *InvoiceService) reportAnomalies(inv billing.Invoice) {
	if !inv.Clamped() {
		return
	}
	metrics.AddClampedConsumption(inv.TenantID, len(inv.Anomalies))
	for _, a := range inv.Anomalies {
		s.logger.Warn().
			Str("tenant", inv.TenantID).
			Str("period", inv.Period.Key()).
			Str("meter", a.MeterID).
			Float64("shortfall", a.Shortfall).
			Msg("consumption clamped to zero")
	}
}

// PublishError reports an invoice that was stored but whose event could not be
// published. The event stays pending and is retried by the next Generate.
type PublishError struct {
	InvoiceID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish invoice %s: %v", e.InvoiceID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Generate computes the invoice and upserts its record. Adjustments already
// recorded against the tenant/period are kept. On a *PublishError the stored
// record is returned along with the error.
func (s *InvoiceService) Generate(ctx context.Context, tenantID string, period billing.Period) (*billing.InvoiceRecord, error) {
	inv, err := s.ComputeInvoice(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, inv)
}

// persist stores the record, then announces content that has not been
// published yet. The published fingerprint is stored only after the publisher
// accepted the event, so a failed publish is retried on the next run.
func (s *InvoiceService) persist(ctx context.Context, inv billing.Invoice) (*billing.InvoiceRecord, error) {
	now := s.clock.Now()
	existing, err := s.store.FindByTenantPeriod(ctx, inv.TenantID, inv.Period)
	if err != nil {
		return nil, err
	}

	var record *billing.InvoiceRecord
	if existing == nil {
		record, err = billing.NewInvoiceRecord(inv, s.currency, now)
		if err != nil {
			return nil, err
		}
	} else {
		record = existing
		if err := record.Refresh(inv, now); err != nil {
			return nil, err
		}
	}
	if s.publisher == nil {
		record.MarkPublished()
	}
	pending := record.Unpublished()

	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("tenant", record.TenantID).
		Str("period", record.Period.Key()).
		Str("invoice", record.ID).
		Float64("amount", record.Amount).
		Bool("pending_event", pending).
		Msg("invoice stored")

	if !pending {
		return record, nil
	}
	err = s.publisher.PublishInvoiceGenerated(ctx, InvoiceGenerated{
		InvoiceID:  record.ID,
		TenantID:   record.TenantID,
		Period:     record.Period,
		Amount:     record.Amount,
		Clamped:    len(inv.Anomalies),
		Recomputed: record.PublishedFingerprint != "",
		OccurredAt: now,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("invoice", record.ID).Msg("invoice event not published")
		return record, &PublishError{InvoiceID: record.ID, Err: err}
	}
	record.MarkPublished()
	if err := s.store.Save(ctx, record); err != nil {
		return record, fmt.Errorf("mark invoice %s published: %w", record.ID, err)
	}
	return record, nil
}

// AddAdjustment records a signed monetary correction on a stored invoice.
func (s *InvoiceService) AddAdjustment(ctx context.Context, invoiceID string, amount float64, description string) (*billing.InvoiceRecord, error) {
	record, err := s.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	adj, err := record.AddAdjustment(amount, description, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	metrics.IncAdjustment()
	s.logger.Info().
		Str("invoice", record.ID).
		Str("adjustment", adj.ID).
		Float64("amount", adj.Amount).
		Float64("invoice_amount", record.Amount).
		Msg("invoice adjusted")
	return record, nil
}

// ListAdjustments returns the adjustments of a stored invoice in creation order.
func (s *InvoiceService) ListAdjustments(ctx context.Context, invoiceID string) ([]billing.InvoiceAdjustment, error) {
	record, err := s.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return record.Adjustments, nil
}

// ListInvoices returns the stored invoices of a period.
func (s *InvoiceService) ListInvoices(ctx context.Context, period billing.Period) ([]billing.InvoiceRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListByPeriod(ctx, period)
}

// Completeness lists the data missing for a tenant's period.
func (s *InvoiceService) Completeness(ctx context.Context, tenantID string, period billing.Period) ([]billing.Issue, error) {
	if tenantID == "" {
		return nil, billing.ErrEmptyTenantID
	}
	facts, err := s.facts.LoadFacts(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	return billing.CheckCompleteness(facts, period), nil
}

// Summarize computes invoices for many tenants in parallel. An empty
// tenantIDs means every known tenant. A tenant that fails is recorded in its
// entry; only context cancellation aborts the batch.
func (s *InvoiceService) Summarize(ctx context.Context, period billing.Period, tenantIDs []string) (billing.Summary, error) {
	start := time.Now()
	if err := period.Validate(); err != nil {
		return billing.Summary{}, err
	}
	tenants, err := s.resolveTenants(ctx, tenantIDs)
	if err != nil {
		return billing.Summary{}, err
	}

	entries := make([]billing.SummaryEntry, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, tenant := range tenants {
		i, tenant := i, tenant
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = s.summaryEntry(gctx, tenant, period)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return billing.Summary{}, err
	}

	summary := billing.NewSummary(period, entries)
	metrics.ObserveSummary(len(entries)-summary.Failures, summary.Failures, time.Since(start))
	s.logger.Info().
		Str("period", period.Key()).
		Int("tenants", len(entries)).
		Int("failures", summary.Failures).
		Float64("total", summary.Total).
		Msg("summary computed")
	return summary, nil
}

// GenerateAll summarizes and stores every successful invoice. A tenant whose
// record cannot be stored is marked failed in the returned summary; a stored
// invoice whose event could not be published is kept and retried next run.
func (s *InvoiceService) GenerateAll(ctx context.Context, period billing.Period, tenantIDs []string) (billing.Summary, []*billing.InvoiceRecord, error) {
	summary, err := s.Summarize(ctx, period, tenantIDs)
	if err != nil {
		return billing.Summary{}, nil, err
	}
	entries := make([]billing.SummaryEntry, len(summary.Entries))
	var records []*billing.InvoiceRecord
	for i, entry := range summary.Entries {
		if !entry.Failed() && entry.Invoice != nil {
			record, err := s.persist(ctx, *entry.Invoice)
			var publishErr *PublishError
			switch {
			case errors.As(err, &publishErr):
				records = append(records, record)
			case err != nil:
				s.logger.Error().Err(err).Str("tenant", entry.TenantID).Msg("invoice store failed")
				entry.Err = fmt.Errorf("store invoice: %w", err)
				entry.Invoice = nil
			default:
				records = append(records, record)
			}
		}
		entries[i] = entry
	}
	return billing.NewSummary(period, entries), records, nil
}

func (s *InvoiceService) resolveTenants(ctx context.Context, tenantIDs []string) ([]billing.Tenant, error) {
	if len(tenantIDs) == 0 {
		return s.facts.ListTenants(ctx)
	}
	tenants := make([]billing.Tenant, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		tenants = append(tenants, billing.Tenant{ID: id, Name: id})
	}
	return tenants, nil
}

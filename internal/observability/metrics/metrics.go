package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "billing_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	invoiceComputeTotal   *prometheus.CounterVec
	invoiceComputeLatency *prometheus.HistogramVec
	invoiceAmount         prometheus.Histogram

	clampedConsumption *prometheus.CounterVec

	summaryTenantsTotal *prometheus.CounterVec
	summaryLatency      prometheus.Histogram

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	adjustmentsTotal prometheus.Counter
)

// Init registers billing metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		invoiceComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_compute_total",
				Help: "Total invoice computations by result",
			},
			[]string{"result"},
		)
		invoiceComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_compute_latency_seconds",
				Help:    "Invoice computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoiceAmount = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_amount",
				Help:    "Computed invoice totals",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
		)

		clampedConsumption = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "consumption_clamped_total",
				Help: "Meters whose consumption was clamped to zero, by tenant",
			},
			[]string{"tenant"},
		)

		summaryTenantsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_tenants_total",
				Help: "Tenants processed in summaries by result",
			},
			[]string{"result"},
		)
		summaryLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "summary_latency_seconds",
				Help:    "Multi-tenant summary latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total document exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		adjustmentsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_adjustments_total",
				Help: "Invoice-level monetary adjustments recorded",
			},
		)

		prometheus.MustRegister(
			invoiceComputeTotal,
			invoiceComputeLatency,
			invoiceAmount,
			clampedConsumption,
			summaryTenantsTotal,
			summaryLatency,
			exportTotal,
			exportLatency,
			adjustmentsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveInvoiceCompute records invoice computation latency and result.
func ObserveInvoiceCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceComputeTotal != nil {
		invoiceComputeTotal.WithLabelValues(result).Inc()
	}
	if invoiceComputeLatency != nil {
		invoiceComputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveInvoiceAmount records a computed invoice total.
func ObserveInvoiceAmount(amount float64) {
	if invoiceAmount != nil {
		invoiceAmount.Observe(amount)
	}
}

// AddClampedConsumption counts clamped meters of a tenant.
func AddClampedConsumption(tenantID string, count int) {
	if count <= 0 {
		return
	}
	if tenantID == "" {
		tenantID = "unknown"
	}
	if clampedConsumption != nil {
		clampedConsumption.WithLabelValues(tenantID).Add(float64(count))
	}
}

// ObserveSummary records a finished summary run.
func ObserveSummary(succeeded, failed int, duration time.Duration) {
	if summaryTenantsTotal != nil {
		summaryTenantsTotal.WithLabelValues(resultSuccess).Add(float64(succeeded))
		summaryTenantsTotal.WithLabelValues(resultError).Add(float64(failed))
	}
	if summaryLatency != nil {
		summaryLatency.Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncAdjustment counts an invoice adjustment.
func IncAdjustment() {
	if adjustmentsTotal != nil {
		adjustmentsTotal.Inc()
	}
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

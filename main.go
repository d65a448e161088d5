package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"utility-billing/internal/billing/application"
	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/billing/infrastructure/memory"
	"utility-billing/internal/billing/infrastructure/postgres"
	"utility-billing/internal/billing/interfaces"
	"utility-billing/internal/config"
	"utility-billing/internal/logging"
	"utility-billing/internal/observability/metrics"
)

type options struct {
	period       string
	tenants      string
	migrate      bool
	importFile   string
	schedule     bool
	completeness bool
	adjustID     string
	adjustAmount float64
	adjustNote   string
	pending      bool
	invoices     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.period, "period", "", "billing month YYYY-MM (default: previous month)")
	flag.StringVar(&opts.tenants, "tenant", "", "comma separated tenant ids (default: all tenants)")
	flag.BoolVar(&opts.migrate, "migrate", false, "apply database migrations before running")
	flag.StringVar(&opts.importFile, "import", "", "load a YAML facts file into the database")
	flag.BoolVar(&opts.schedule, "schedule", false, "run the monthly scheduler until interrupted")
	flag.BoolVar(&opts.completeness, "completeness", false, "report missing readings and tariffs instead of billing")
	flag.StringVar(&opts.adjustID, "adjust", "", "invoice id to add a monetary adjustment to")
	flag.Float64Var(&opts.adjustAmount, "amount", 0, "signed adjustment amount, used with -adjust")
	flag.StringVar(&opts.adjustNote, "note", "", "adjustment description, used with -adjust")
	flag.BoolVar(&opts.pending, "pending-events", false, "list pending invoice events in the outbox")
	flag.BoolVar(&opts.invoices, "invoices", false, "list stored invoices of the period instead of billing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error().Err(err).Msg("billing failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger zerolog.Logger) error {
	var (
		facts    billing.FactsQuery
		store    billing.InvoiceStore
		recorder interfaces.ExportRecorder
		db       *sql.DB
	)
	publisher := interfaces.MultiPublisher{interfaces.NewLoggingPublisher(logger)}
	if cfg.UsesDatabase() {
		var err error
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		if opts.migrate {
			if err := postgres.RunMigrations(db); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
		}
		if opts.importFile != "" {
			fixture, err := memory.LoadFactsFile(opts.importFile)
			if err != nil {
				return err
			}
			if err := postgres.ImportFacts(ctx, db, fixture.AllFacts()); err != nil {
				return fmt.Errorf("import %s: %w", opts.importFile, err)
			}
			logger.Info().Str("file", opts.importFile).Msg("facts imported")
		}
		outbox := postgres.NewOutboxStore(db)
		if opts.pending {
			return listPending(ctx, outbox)
		}
		pgStore := postgres.NewInvoiceStore(db)
		facts, store, recorder = postgres.NewFactsQuery(db), pgStore, pgStore
		publisher = append(publisher, interfaces.NewOutboxPublisher(outbox))
	} else {
		fixture, err := memory.LoadFactsFile(cfg.FactsFile)
		if err != nil {
			return err
		}
		facts, store = fixture, memory.NewInvoiceStore()
		if opts.pending {
			return fmt.Errorf("-pending-events requires DATABASE_URL")
		}
	}

	metrics.Init(db, logger)
	defer func() {
		if cfg.MetricsTextfile == "" {
			return
		}
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("metrics textfile write failed")
		}
	}()

	service, err := application.NewInvoiceService(
		facts,
		store,
		publisher,
		application.SystemClock{},
		logger,
		application.WithCurrency(cfg.Currency),
		application.WithSummaryConcurrency(cfg.SummaryConcurrency),
	)
	if err != nil {
		return err
	}

	if opts.adjustID != "" {
		record, err := service.AddAdjustment(ctx, opts.adjustID, opts.adjustAmount, opts.adjustNote)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s %s\n", record.TenantID, record.Period, billing.FormatMoney(record.Amount), record.Currency)
		return nil
	}

	exporter, err := interfaces.NewFileExporter(cfg.ExportDir, recorder, logger)
	if err != nil {
		return err
	}
	runner, err := application.NewRunner(service, exporter, logger)
	if err != nil {
		return err
	}

	if opts.schedule {
		tenants := cfg.Schedule.Tenants
		if opts.tenants != "" {
			tenants = splitTenants(opts.tenants)
		}
		logger.Info().
			Int("day", cfg.Schedule.DayOfMonth).
			Str("at", cfg.Schedule.At).
			Msg("scheduler started")
		application.NewScheduler(runner, cfg.Schedule.DayOfMonth, cfg.Schedule.At, tenants, logger).Start(ctx)
		return nil
	}

	period, err := resolvePeriod(opts.period, time.Now().UTC())
	if err != nil {
		return err
	}
	tenants := splitTenants(opts.tenants)

	if opts.completeness {
		return reportCompleteness(ctx, service, facts, period, tenants)
	}
	if opts.invoices {
		return listInvoices(ctx, service, period)
	}

	summary, err := runner.Run(ctx, period, tenants)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func reportCompleteness(ctx context.Context, service *application.InvoiceService, facts billing.FactsQuery, period billing.Period, tenantIDs []string) error {
	if len(tenantIDs) == 0 {
		tenants, err := facts.ListTenants(ctx)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			tenantIDs = append(tenantIDs, t.ID)
		}
	}
	for _, id := range tenantIDs {
		issues, err := service.Completeness(ctx, id, period)
		if err != nil {
			fmt.Printf("%s\t%s\n", id, err)
			continue
		}
		for _, issue := range issues {
			fmt.Printf("%s\t%s\t%s\t%s\n", id, issue.Kind, issue.MeterID, issue.Message)
		}
	}
	return nil
}

func listInvoices(ctx context.Context, service *application.InvoiceService, period billing.Period) error {
	records, err := service.ListInvoices(ctx, period)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\t%s %s\n", r.ID, r.TenantID, r.Invoice.TenantName, billing.FormatMoney(r.Amount), r.Currency)
	}
	return nil
}

func listPending(ctx context.Context, outbox *postgres.OutboxStore) error {
	events, err := outbox.ListPending(ctx, 100)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.OccurredAt.Format(time.RFC3339), e.EventType, e.TenantID, e.InvoiceID, e.Payload)
	}
	return nil
}

func printSummary(summary billing.Summary) {
	for _, entry := range summary.Entries {
		if entry.Failed() || entry.Invoice == nil {
			fmt.Printf("%s\t%s\tFAILED: %s\n", entry.TenantID, entry.TenantName, entry.FailureMessage())
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", entry.TenantID, entry.TenantName, billing.FormatMoney(entry.Invoice.Total))
	}
	fmt.Printf("total %s\t%s\tfailures %d\n", summary.Period, billing.FormatMoney(summary.Total), summary.Failures)
}

func resolvePeriod(value string, now time.Time) (billing.Period, error) {
	if value == "" {
		return billing.MonthPeriod(now.Year(), now.Month()).Previous(), nil
	}
	return billing.ParseMonth(value)
}

func splitTenants(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

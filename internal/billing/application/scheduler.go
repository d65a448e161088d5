package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	billing "utility-billing/internal/billing/domain"
)

// Scheduler bills the previous month once a month at a fixed day and time (UTC).
type Scheduler struct {
	runner     *Runner
	dayOfMonth int
	at         string
	tenants    []string
	logger     zerolog.Logger
	lastPeriod string
}

// NewScheduler constructs a Scheduler. An empty tenants list bills every tenant.
func NewScheduler(runner *Runner, dayOfMonth int, at string, tenants []string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		dayOfMonth: dayOfMonth,
		at:         at,
		tenants:    tenants,
		logger:     logger,
	}
}

// Start begins the scheduler loop and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	if now.Day() != s.dayOfMonth {
		return false
	}
	hour, minute, err := parseAt(s.at)
	if err != nil {
		return false
	}
	if now.Hour() != hour || now.Minute() != minute {
		return false
	}
	return billedPeriod(now).Key() != s.lastPeriod
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	period := billedPeriod(now)
	s.lastPeriod = period.Key()
	summary, err := s.runner.Run(ctx, period, s.tenants)
	if err != nil {
		s.logger.Error().Err(err).Str("period", period.Key()).Msg("scheduled billing run failed")
		return
	}
	s.logger.Info().
		Str("period", period.Key()).
		Int("tenants", len(summary.Entries)).
		Int("failures", summary.Failures).
		Msg("scheduled billing run finished")
}

// billedPeriod is the calendar month before now.
func billedPeriod(now time.Time) billing.Period {
	return billing.MonthPeriod(now.Year(), now.Month()).Previous()
}

func parseAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

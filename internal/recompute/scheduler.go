package recompute

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/metrics"
)

// Counter is the optimistic, atomic callsCount increment.
type Counter interface {
	IncrementCallsCount(ctx context.Context, tenantID string, delta int64) error
}

// Scheduler consumes call-created events: it bumps callsCount and schedules a
// delayed full recompute. It never returns an error; failures are logged,
// journaled and metered.
type Scheduler struct {
	counter    Counter
	dispatcher Dispatcher
	settings   Settings

	journal *audit.Service
	metrics *metrics.Pipeline
	log     *slog.Logger
	now     func() time.Time
}

func NewScheduler(counter Counter, dispatcher Dispatcher, settings Settings, journal *audit.Service, m *metrics.Pipeline, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		counter:    counter,
		dispatcher: dispatcher,
		settings:   settings,
		journal:    journal,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for NotBefore.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Scheduler) OnCallCreated(ctx context.Context, ev calls.Created) {
	log := s.log.With("tenant_id", ev.TenantID, "lead_id", ev.LeadID, "call_id", ev.CallID)
	if ev.TenantID == "" {
		log.Warn("call created without tenant; ignoring")
		return
	}

	err := s.counter.IncrementCallsCount(ctx, ev.TenantID, 1)
	s.metrics.IncIncrement(err)
	if err != nil {
		log.Warn("optimistic callsCount increment failed", "err", err)
		s.journalErr(log, s.journal.IncrementFailed(ctx, ev.TenantID, ev.LeadID, ev.CallID, err))
	}

	d, err := s.settings.NewDispatch(ev.TenantID, ev.CallID, s.now())
	if errors.Is(err, ErrSchedulingDisabled) {
		s.metrics.IncSchedule(metrics.ResultSkipped)
		log.Warn("recompute scheduling skipped", "reason", err.Error())
		return
	}
	if err == nil {
		if s.dispatcher == nil {
			err = errors.New("recompute: dispatcher not configured")
		} else {
			err = s.dispatcher.Schedule(ctx, d)
		}
	}
	if err != nil {
		s.metrics.IncSchedule(metrics.ResultError)
		log.Error("recompute scheduling failed", "err", err)
		s.journalErr(log, s.journal.ScheduleFailed(ctx, ev.TenantID, ev.LeadID, ev.CallID, err))
		return
	}

	s.metrics.IncSchedule(metrics.ResultOK)
	log.Info("recompute scheduled", "queue", d.Queue, "not_before", d.NotBefore, "auth", string(d.Auth))
}

func (s *Scheduler) journalErr(log *slog.Logger, err error) {
	if err != nil && s.journal != nil {
		log.Warn("journal write failed", "err", err)
	}
}

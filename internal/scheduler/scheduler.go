package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thebronway/domain-manager/pkg/logger"
)

// Kind identifies a class of scheduled work.
type Kind string

const (
	KindIPCheck    Kind = "ip_check"
	KindSSLCheck   Kind = "ssl_check"
	KindLogCleanup Kind = "log_cleanup"
)

type triggerKind int

const (
	hourlyAt triggerKind = iota
	dailyAt
)

// Trigger is a recurrence rule. Fixed-local-time rules are converted to a
// UTC clock value once at registration; a timezone change requires
// re-registration, not live recomputation.
type Trigger struct {
	kind   triggerKind
	minute int // hourlyAt: minute of the hour
	hour   int // dailyAt: UTC hour
	min    int // dailyAt: UTC minute
}

// HourlyAt fires once per hour at the given minute.
func HourlyAt(minute int) Trigger {
	return Trigger{kind: hourlyAt, minute: minute}
}

// DailyAtUTC fires once per day at the given UTC clock value.
func DailyAtUTC(hour, minute int) Trigger {
	return Trigger{kind: dailyAt, hour: hour, min: minute}
}

// DailyAtLocal converts a local "HH:MM" clock value in loc to a fixed UTC
// trigger, using now to resolve the current UTC offset.
func DailyAtLocal(localTime string, loc *time.Location, now time.Time) (Trigger, error) {
	parsed, err := time.Parse("15:04", localTime)
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid local time %q: %w", localTime, err)
	}

	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, loc).UTC()

	return DailyAtUTC(target.Hour(), target.Minute()), nil
}

// nextRun computes the next trigger instant strictly after now. It is a
// pure function of its inputs so it can be tested with a fake clock.
func nextRun(now time.Time, tr Trigger) time.Time {
	now = now.UTC()

	switch tr.kind {
	case hourlyAt:
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), tr.minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next
	default: // dailyAt
		next := time.Date(now.Year(), now.Month(), now.Day(), tr.hour, tr.min, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

type task struct {
	kind    Kind
	trigger Trigger
	job     func(ctx context.Context)
	nextRun time.Time
}

// TaskInfo describes a registered task for status queries.
type TaskInfo struct {
	Kind    Kind
	NextRun time.Time
}

// Scheduler runs all registered tasks inline on a single cooperative
// loop. A slow job blocks the loop until it returns; long-running work
// (the SSL batch) must hand off to its own worker before returning.
type Scheduler struct {
	mu       sync.Mutex
	tasks    []*task
	log      *logger.Logger
	nowFn    func() time.Time
	tick     time.Duration
	startup  func(ctx context.Context)
	eagerJob func(ctx context.Context)
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		log:   logger.GetLogger(),
		nowFn: func() time.Time { return time.Now().UTC() },
		tick:  time.Second,
	}
}

func (s *Scheduler) register(kind Kind, tr Trigger, job func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &task{
		kind:    kind,
		trigger: tr,
		job:     job,
		nextRun: nextRun(s.nowFn(), tr),
	})
}

// RegisterDailyLocal registers a task at a fixed local time of day.
func (s *Scheduler) RegisterDailyLocal(kind Kind, localTime string, loc *time.Location, job func(ctx context.Context)) error {
	tr, err := DailyAtLocal(localTime, loc, s.nowFn())
	if err != nil {
		return err
	}
	s.register(kind, tr, job)
	return nil
}

// RegisterIPCheck registers the DDNS check according to the configured
// interval. 5m/10m expand to per-hour minute ticks, 60m to one hourly
// tick, 24h to midnight local time, disabled registers nothing and also
// suppresses the eager first check. An unrecognized value falls back to
// 5m with a warning.
func (s *Scheduler) RegisterIPCheck(interval string, loc *time.Location, job func(ctx context.Context)) {
	registerEvery := func(step int) {
		for minute := 0; minute < 60; minute += step {
			s.register(KindIPCheck, HourlyAt(minute), job)
		}
	}

	switch interval {
	case "5m":
		registerEvery(5)
		s.log.Info("DDNS check scheduled every 5 minutes (at :00, :05...)")
	case "10m":
		registerEvery(10)
		s.log.Info("DDNS check scheduled every 10 minutes (at :00, :10...)")
	case "60m":
		s.register(KindIPCheck, HourlyAt(0), job)
		s.log.Info("DDNS check scheduled every hour (at :00)")
	case "24h":
		tr, err := DailyAtLocal("00:00", loc, s.nowFn())
		if err != nil {
			tr = DailyAtUTC(0, 0)
		}
		s.register(KindIPCheck, tr, job)
		s.log.Info("DDNS check scheduled daily at 00:00 local")
	case "disabled":
		s.log.Info("DDNS check is disabled")
		return
	default:
		s.log.Warn("Invalid ip_check_interval, defaulting to 5 minutes", "value", interval)
		registerEvery(5)
	}

	s.eagerJob = job
}

// SetStartup registers one-time initialization that runs before the eager
// check and the steady-state loop.
func (s *Scheduler) SetStartup(fn func(ctx context.Context)) {
	s.startup = fn
}

// NextRun returns the earliest upcoming run for the given kind.
func (s *Scheduler) NextRun(kind Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	found := false
	for _, t := range s.tasks {
		if t.kind != kind {
			continue
		}
		if !found || t.nextRun.Before(earliest) {
			earliest = t.nextRun
			found = true
		}
	}
	return earliest, found
}

// Tasks returns the registered tasks for status queries.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskInfo{Kind: t.kind, NextRun: t.nextRun})
	}
	return out
}

// Run executes the startup hook, the eager DDNS check (unless disabled),
// then the steady-state loop: run all due tasks inline, sleep one tick,
// repeat until the context is canceled. No failure escapes the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if s.startup != nil {
		s.runSafely(ctx, "startup", s.startup)
	}

	if s.eagerJob != nil {
		s.log.Info("Running initial DDNS check...")
		s.runSafely(ctx, string(KindIPCheck), s.eagerJob)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue executes every task whose next-run instant has passed, inline
// and in registration order, then recomputes its next run from the time
// the job finished.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.nowFn()

	s.mu.Lock()
	due := make([]*task, 0)
	for _, t := range s.tasks {
		if !now.Before(t.nextRun) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.runSafely(ctx, string(t.kind), t.job)

		s.mu.Lock()
		t.nextRun = nextRun(s.nowFn(), t.trigger)
		s.mu.Unlock()
	}
}

// runSafely keeps a panicking job from halting all future scheduling.
func (s *Scheduler) runSafely(ctx context.Context, name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Scheduled job panicked", "task", name, "panic", r)
		}
	}()
	job(ctx)
}

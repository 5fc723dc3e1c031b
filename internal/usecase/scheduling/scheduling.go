package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds one run of any scheduled job.
const jobTimeout = 5 * time.Minute

// Scheduler runs named background jobs on cron expressions or fixed
// intervals. Jobs are registered before Start; there is no runtime CRUD,
// schedules come from configuration.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler builds a scheduler in the given timezone. An empty or
// unknown timezone falls back to UTC.
func NewScheduler(timezone string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		} else {
			log.Warn("unknown timezone, using UTC", "timezone", timezone)
		}
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log,
	}
}

// AddJob schedules fn under name. The spec is a five-field cron
// expression ("30 7 * * *"), a descriptor ("@hourly"), or a duration
// ("45m"). Each run gets its own bounded context.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			s.log.Debug("scheduler stopped, skipping job", "job", name)
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(runCtx); err != nil {
			s.log.Warn("scheduled job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		s.log.Info("scheduled job completed", "job", name, "duration", time.Since(start))
	}))

	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start begins firing jobs. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels job contexts and waits for in-flight runs. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	// Job closures take s.mu to read s.ctx, so the drain wait must not
	// hold the lock or a just-fired job blocks it forever.
	<-s.cron.Stop().Done()
}

// ParseSpec parses a cron expression, descriptor, or duration string.
func ParseSpec(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", spec)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", spec)
	}
	return constantDelay(dur), nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it supports
// sub-second durations, which the tests rely on.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

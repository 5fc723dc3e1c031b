// Package cronjob runs the background maintenance jobs: the stale-request
// sweep and the morning plan reminder. Schedules come from configuration;
// there is no runtime job CRUD.
package cronjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/usecase/records"
	"adjutant/internal/usecase/scheduling"
)

// StaleTag marks requests the sweep found idle past the threshold.
const StaleTag = "stale"

// Jobs owns the scheduled maintenance work over the record store.
type Jobs struct {
	store     *records.Store
	bus       domain.EventBus
	staleDays int
	log       *slog.Logger
}

// NewJobs builds the maintenance jobs. staleDays is the idle threshold
// for the sweep; zero means 14.
func NewJobs(store *records.Store, bus domain.EventBus, staleDays int, log *slog.Logger) *Jobs {
	if staleDays <= 0 {
		staleDays = 14
	}
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{store: store, bus: bus, staleDays: staleDays, log: log}
}

// Register adds the configured jobs to the scheduler. An empty spec
// disables that job.
func (j *Jobs) Register(sched *scheduling.Scheduler, staleSpec, briefingSpec string) error {
	if staleSpec != "" {
		if err := sched.AddJob("stale-sweep", staleSpec, j.SweepStale); err != nil {
			return err
		}
	}
	if briefingSpec != "" {
		if err := sched.AddJob("morning-reminder", briefingSpec, j.MorningReminder); err != nil {
			return err
		}
	}
	return nil
}

// SweepStale tags open requests untouched for the configured number of
// days. Already-tagged requests are left alone so versions only bump on
// a state change.
func (j *Jobs) SweepStale(ctx context.Context) error {
	stale := j.store.ListRequests(records.RequestFilter{StaleDays: j.staleDays})

	var tagged []string
	for _, r := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hasTag(r.Tags, StaleTag) {
			continue
		}
		r.Tags = append(r.Tags, StaleTag)
		if _, err := j.store.SaveRequest(r); err != nil {
			return fmt.Errorf("sweep: tag %s: %w", r.ID, err)
		}
		tagged = append(tagged, r.ID)
	}

	j.log.Info("stale sweep completed", "candidates", len(stale), "tagged", len(tagged))
	if len(tagged) > 0 && j.bus != nil {
		j.bus.Publish(domain.NewEvent(domain.EventSweepStaleFired, "", map[string]any{
			"request_ids": tagged,
			"stale_days":  j.staleDays,
		}))
	}
	return nil
}

// MorningReminder publishes the daily nudge: whether today's plan exists
// and how many P0s are open. Channels subscribed to the event decide how
// to surface it.
func (j *Jobs) MorningReminder(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	today := time.Now().UTC().Format("2006-01-02")

	hasPlan := false
	if _, err := j.store.PlanForDate(today); err == nil {
		hasPlan = true
	}
	openP0 := 0
	for _, r := range j.store.ListRequests(records.RequestFilter{Priority: domain.PriorityP0}) {
		if r.Status != domain.RequestStatusClosed {
			openP0++
		}
	}

	msg := "Good morning. Paste your briefing and I'll build today's plan."
	if hasPlan {
		msg = "Good morning. Today's plan is ready; ask for it any time."
	}
	if openP0 > 0 {
		msg += fmt.Sprintf(" Heads up: %d open P0 request(s).", openP0)
	}

	j.log.Info("morning reminder", "date", today, "has_plan", hasPlan, "open_p0", openP0)
	if j.bus != nil {
		j.bus.Publish(domain.NewEvent(domain.EventMorningReminder, "", map[string]any{
			"date":     today,
			"has_plan": hasPlan,
			"open_p0":  openP0,
			"message":  msg,
		}))
	}
	return nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

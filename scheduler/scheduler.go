// Package scheduler wraps gocron for the daemon mode. Jobs are singleton:
// a run still in flight when the next cron tick fires is never doubled up,
// the tick is rescheduled instead.
package scheduler

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// JobFunc represents a function that can be scheduled.
type JobFunc func(ctx context.Context) error

// Scheduler manages the scheduled jobs.
type Scheduler struct {
	gocron gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler.
func New() (*Scheduler, error) {
	gocronScheduler, err := gocron.NewScheduler(gocron.WithLogger(newCronLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		gocron: gocronScheduler,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddCronJob schedules a singleton job with a crontab expression. If
// instantAfterStart is set, the job also runs once as soon as the scheduler
// starts.
func (s *Scheduler) AddCronJob(name, crontab string, jobFunc JobFunc, instantAfterStart bool) error {
	jobOptions := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if instantAfterStart {
		jobOptions = append(jobOptions, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err := s.gocron.NewJob(
		gocron.CronJob(crontab, false),
		gocron.NewTask(func() {
			log.Info("Starting scheduled job", "name", name)
			if err := jobFunc(s.ctx); err != nil {
				log.Error("Scheduled job failed", "name", name, "error", err)
				return
			}
			log.Info("Scheduled job completed", "name", name)
		}),
		jobOptions...,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	log.Info("Added job to scheduler", "name", name, "schedule", crontab)
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	log.Info("Starting job scheduler")
	s.gocron.Start()
}

// Stop cancels the running job, if any, and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	log.Info("Stopping job scheduler")
	s.cancel()
	return s.gocron.Shutdown()
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/farmtime"
)

const reminderTimeout = 2 * time.Minute

// ReminderRunner sends the daily missing-entries reminder.
type ReminderRunner interface {
	Run(ctx context.Context) error
}

// FormSweeper drops idle form sessions.
type FormSweeper interface {
	Sweep(now time.Time, idle time.Duration) int
	Len() int
}

// Purger drops expired entries from an in-memory cache.
type Purger interface {
	Purge() int
}

// FormGauge reports the number of open forms.
type FormGauge interface {
	SetOpenForms(n int)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	reminders ReminderRunner
	forms     FormSweeper
	gauge     FormGauge
	purgers   []Purger
	tz        farmtime.TimezoneContext
	cfg       config.Config
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. Jobs run in the farm's
// timezone. reminders, forms and gauge may be nil to skip their job.
// Caches are added with WithPurgers.
func NewScheduler(cfg config.Config, tz farmtime.TimezoneContext, reminders ReminderRunner, forms FormSweeper, gauge FormGauge, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithLocation(tz.Location()))

	return &Scheduler{
		cron:      c,
		reminders: reminders,
		forms:     forms,
		gauge:     gauge,
		tz:        tz,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithPurgers registers caches whose expired entries the sweep job drops.
func (s *Scheduler) WithPurgers(purgers ...Purger) *Scheduler {
	for _, p := range purgers {
		if p != nil {
			s.purgers = append(s.purgers, p)
		}
	}
	return s
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("timezone", s.tz.Name()))

	if s.reminders != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reminders.CronSchedule, s.sendReminder); err != nil {
			return fmt.Errorf("schedule reminder %q: %w", s.cfg.Reminders.CronSchedule, err)
		}
	}

	if (s.forms != nil || len(s.purgers) > 0) && s.cfg.Forms.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.Forms.SweepSchedule, s.sweep); err != nil {
			return fmt.Errorf("schedule sweep %q: %w", s.cfg.Forms.SweepSchedule, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) sendReminder() {
	s.logger.Info("checking daily entries")
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	if err := s.reminders.Run(ctx); err != nil {
		s.logger.Error("daily reminder failed", zap.Error(err))
	}
}

func (s *Scheduler) sweep() {
	if s.forms != nil {
		s.sweepForms()
	}
	purged := 0
	for _, p := range s.purgers {
		purged += p.Purge()
	}
	if purged > 0 {
		s.logger.Debug("purged expired cache entries", zap.Int("removed", purged))
	}
}

func (s *Scheduler) sweepForms() {
	removed := s.forms.Sweep(s.tz.Now(), s.cfg.Forms.IdleTimeout)
	open := s.forms.Len()
	if s.gauge != nil {
		s.gauge.SetOpenForms(open)
	}
	if removed > 0 {
		s.logger.Info("dropped idle forms", zap.Int("removed", removed), zap.Int("open", open))
	}
}

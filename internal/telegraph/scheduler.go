package telegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/task"
	"github.com/zulandar/taskline/internal/user"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultLookahead is how far ahead of its fire instant a reminder may be sent.
const DefaultLookahead = 60 * time.Second

// schedulerLease names the lease that elects the sweeping process.
const schedulerLease = "scheduler"

// Scheduler runs the reminder and daily summary sweeps on a cron schedule.
// It shares no in-process state with the dialogue controller. With a
// Holder set, only the process holding the scheduler lease sweeps.
type Scheduler struct {
	db           *gorm.DB
	adapter      Adapter
	resolver     *locale.Resolver
	cron         string
	lookahead    time.Duration
	holder       string
	leaseTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	DB        *gorm.DB
	Adapter   Adapter
	Resolver  *locale.Resolver
	Cron      string        // defaults to "* * * * *"
	Lookahead time.Duration // defaults to DefaultLookahead

	// Holder identifies this process for the scheduler lease. Empty
	// disables the lease for single-instance deployments.
	Holder       string
	LeaseTimeout time.Duration // defaults to DefaultLeaseTimeout

	Logger *zap.Logger
	Now    func() time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: scheduler: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: scheduler: adapter is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("telegraph: scheduler: resolver is required")
	}
	expr := opts.Cron
	if expr == "" {
		expr = "* * * * *"
	}
	if err := ValidateCron(expr); err != nil {
		return nil, err
	}
	s := &Scheduler{
		db:           opts.DB,
		adapter:      opts.Adapter,
		resolver:     opts.Resolver,
		cron:         expr,
		lookahead:    opts.Lookahead,
		holder:       opts.Holder,
		leaseTimeout: opts.LeaseTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.lookahead <= 0 {
		s.lookahead = DefaultLookahead
	}
	if s.leaseTimeout <= 0 {
		s.leaseTimeout = DefaultLeaseTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run fires both sweeps on every cron tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(nextCronDuration(s.cron, s.now()))
	defer timer.Stop()

	s.logger.Info("scheduler started", zap.String("cron", s.cron), zap.Duration("lookahead", s.lookahead))
	for {
		select {
		case <-ctx.Done():
			if s.holder != "" {
				if err := ReleaseLease(s.db, schedulerLease, s.holder); err != nil {
					s.logger.Warn("release scheduler lease", zap.Error(err))
				}
			}
			return nil
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(nextCronDuration(s.cron, s.now()))
		}
	}
}

// Tick runs one reminder sweep and one summary sweep. Errors are logged.
// Nothing runs when another process holds the scheduler lease.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	if s.holder != "" {
		if _, err := AcquireLease(s.db.WithContext(ctx), schedulerLease, s.holder, s.leaseTimeout, now); err != nil {
			if errors.Is(err, ErrLeaseHeld) {
				s.logger.Debug("sweep skipped", zap.Error(err))
			} else {
				s.logger.Error("scheduler lease", zap.Error(err))
			}
			return
		}
	}
	if _, err := s.SweepReminders(ctx, now); err != nil {
		s.logger.Error("reminder sweep", zap.Error(err))
	}
	if _, err := s.SweepSummaries(ctx, now); err != nil {
		s.logger.Error("summary sweep", zap.Error(err))
	}
}

// SweepReminders sends every unsent, unclaimed reminder due by
// now+lookahead and returns how many were delivered. Each reminder is
// claimed before sending: a claim that outlives a crash is never resent,
// and a failed send releases the claim for the next sweep.
func (s *Scheduler) SweepReminders(ctx context.Context, now time.Time) (int, error) {
	db := s.db.WithContext(ctx)
	due, err := task.DueReminders(db, now.Add(s.lookahead))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		log := s.logger.With(zap.String("reminder_id", r.ID), zap.String("user_id", r.UserID))

		claimed, err := task.ClaimReminder(db, r.ID, now)
		if err != nil {
			log.Error("claim reminder", zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		if r.Task.Status == models.TaskDone || r.User.Handle == "" {
			// Nothing to deliver; retire it.
			if err := task.MarkReminderSent(db, r.ID, now); err != nil {
				log.Error("retire reminder", zap.Error(err))
			}
			continue
		}

		loc := s.resolver.Location(r.User.Timezone)
		err = s.adapter.Send(ctx, OutboundMessage{Handle: r.User.Handle, Text: formatReminder(r.Task, loc)})
		if err != nil {
			log.Warn("send reminder, releasing claim", zap.Error(err))
			if err := task.ReleaseReminder(db, r.ID); err != nil {
				log.Error("release reminder", zap.Error(err))
			}
			continue
		}
		if err := task.MarkReminderSent(db, r.ID, now); err != nil {
			log.Error("mark reminder sent", zap.Error(err))
			continue
		}
		sent++
		log.Info("reminder sent", zap.String("task_id", r.TaskID))
	}
	return sent, nil
}

// SweepSummaries sends tomorrow's digest to every user whose configured
// summary time equals the current local clock. A user receives at most one
// digest per local day, and none when nothing is due.
func (s *Scheduler) SweepSummaries(ctx context.Context, now time.Time) (int, error) {
	db := s.db.WithContext(ctx)
	users, err := user.WithSummary(db)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range users {
		if u.DailySummaryTime == nil {
			continue
		}
		loc := s.resolver.Location(u.Timezone)
		if locale.Clock(now, loc) != *u.DailySummaryTime {
			continue
		}
		today := locale.LocalDate(now, loc)
		if u.LastSummaryDate == today {
			continue
		}

		log := s.logger.With(zap.String("user_id", u.ID))
		start, end := locale.DayBounds(now, loc, 1)
		tasks, err := task.DueBetween(db, u.ID, start, end)
		if err != nil {
			log.Error("tasks due tomorrow", zap.Error(err))
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		if err := s.adapter.Send(ctx, OutboundMessage{Handle: u.Handle, Text: formatSummary(start, tasks, loc)}); err != nil {
			log.Warn("send summary", zap.Error(err))
			continue
		}
		if err := user.MarkSummarySent(db, u.ID, today); err != nil {
			log.Error("mark summary sent", zap.Error(err))
		}
		sent++
		log.Info("daily summary sent", zap.Int("tasks", len(tasks)))
	}
	return sent, nil
}

package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
	robfig "github.com/robfig/cron/v3"
)

// Scheduler triggers jobs on their configured cron schedules
type Scheduler struct {
	cron    *robfig.Cron
	runner  *Runner
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]robfig.EntryID
}

// Entry is a registered job and its next run time
type Entry struct {
	Name string
	Next time.Time
}

// cronLogger adapts the package logger to robfig's logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("cron: "+msg, append([]any{err}, keysAndValues...)...)
}

// NewScheduler registers every enabled job in jobs
func NewScheduler(cfg *podds.PoddsConfig, runner *Runner, jobs map[string]JobFunc) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("unknown scheduler timezone %q: %w", cfg.SchedulerTimezone, err)
	}

	l := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: robfig.New(
			robfig.WithLocation(loc),
			robfig.WithLogger(l),
			robfig.WithChain(robfig.Recover(l), robfig.SkipIfStillRunning(l)),
		),
		runner:  runner,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]robfig.EntryID),
	}

	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		policy := cfg.Policy(name)
		if policy.Disabled || policy.Schedule == "" {
			logger.Info("Job not scheduled", name)
			continue
		}
		fn := jobs[name]
		id, err := s.cron.AddFunc(policy.Schedule, func() {
			// failures are already logged, audited and alerted by the runner
			_, _ = s.runner.Run(s.ctx, name, fn)
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s (%q): %w", name, policy.Schedule, err)
		}
		s.entries[name] = id
	}
	return s, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.Entries() {
		logger.Info("Scheduled job", e.Name, e.Next.Format(time.RFC3339))
	}
}

// Stop stops scheduling and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// Entries lists the scheduled jobs by name
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, Entry{Name: name, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

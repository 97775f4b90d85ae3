package cron

import (
	"context"
	"errors"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

// Alerter is told about job outcomes. Calls must not block.
type Alerter interface {
	NotifyJobFailure(jobName, message, stack string, details map[string]any)
	NotifyJobSuccess(jobName string, details map[string]any)
}

// Runner runs jobs under their configured policy and audits each run
type Runner struct {
	cfg     *podds.PoddsConfig
	tracker *Tracker
	alerter Alerter
}

// NewRunner returns a runner. alerter may be nil.
func NewRunner(cfg *podds.PoddsConfig, tracker *Tracker, alerter Alerter) *Runner {
	return &Runner{cfg: cfg, tracker: tracker, alerter: alerter}
}

// Run executes fn as job name under its configured policy, recording the
// execution and alerting on failure
func (r *Runner) Run(ctx context.Context, name string, fn JobFunc) (JobStats, error) {
	policy := r.cfg.Policy(name)
	logger.Info("Starting job", name)
	started := time.Now()

	// the audit trail is best effort, a job still runs without it
	ce, err := r.tracker.Start(ctx, name)
	if err != nil {
		logger.Warn("Failed to record job start", name, err)
	}

	stats, jobErr := ExecutorFor(policy).Execute(ctx, fn)

	if ce != nil {
		// the job context may be the one that expired
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := r.tracker.Finish(finishCtx, ce, stats, jobErr); err != nil {
			logger.Warn("Failed to record job outcome", name, err)
		}
		cancel()
	}

	elapsed := time.Since(started)
	if jobErr != nil {
		logger.Error("Job failed", name, elapsed.String(), jobErr)
		if r.alerter != nil {
			details := map[string]any{
				"attempts": policy.Attempts,
				"timeout":  policy.Timeout.String(),
				"duration": elapsed.String(),
				"timedOut": errors.Is(jobErr, ErrTimeout),
			}
			if ce != nil {
				details["executionId"] = ce.ID
			}
			r.alerter.NotifyJobFailure(name, jobErr.Error(), stackOf(jobErr), details)
		}
		return stats, jobErr
	}

	logger.Inform("Job finished", name, elapsed.String(), stats)
	if r.alerter != nil && r.cfg.AlertSuccessNotifications {
		details := make(map[string]any, len(stats)+1)
		for k, v := range stats {
			details[k] = v
		}
		details["duration"] = elapsed.String()
		r.alerter.NotifyJobSuccess(name, details)
	}
	return stats, nil
}

func stackOf(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return ""
}

package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richard-senior/podds/pkg/podds"
)

// ExecutionStore persists audit rows
type ExecutionStore interface {
	Save(ctx context.Context, obj podds.Persistable) error
}

// Tracker records the start and outcome of every job run
type Tracker struct {
	store ExecutionStore
	loc   *time.Location
	now   func() time.Time
}

// NewTracker returns a tracker stamping local times in loc
func NewTracker(store ExecutionStore, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{store: store, loc: loc, now: time.Now}
}

// Start writes a started row and returns it
func (t *Tracker) Start(ctx context.Context, jobName string) (*podds.CronExecution, error) {
	now := t.now()
	ce := &podds.CronExecution{
		ID:             uuid.NewString(),
		JobName:        jobName,
		StartedAt:      now.UnixMilli(),
		StartedAtUTC:   now.UTC().Format(time.RFC3339),
		StartedAtLocal: now.In(t.loc).Format(time.RFC3339),
		Timezone:       t.loc.String(),
		Status:         podds.ExecutionStarted,
	}
	if err := t.store.Save(ctx, ce); err != nil {
		return ce, fmt.Errorf("record start of %s: %w", jobName, err)
	}
	return ce, nil
}

// Finish records the outcome of a run started with Start
func (t *Tracker) Finish(ctx context.Context, ce *podds.CronExecution, stats JobStats, jobErr error) error {
	ce.DurationMillis = t.now().UnixMilli() - ce.StartedAt
	ce.Status = podds.ExecutionSuccess
	ce.Error = ""
	if jobErr != nil {
		ce.Status = podds.ExecutionFailed
		ce.Error = jobErr.Error()
	}
	if len(stats) > 0 {
		b, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encode stats of %s: %w", ce.JobName, err)
		}
		ce.Details = string(b)
	}
	if err := t.store.Save(ctx, ce); err != nil {
		return fmt.Errorf("record end of %s: %w", ce.JobName, err)
	}
	return nil
}

package podds

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check to ensure CronExecution implements Persistable interface
var _ Persistable = (*CronExecution)(nil)

// Execution states
const (
	ExecutionStarted = "started"
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
)

// CronExecution is the audit row for one job run
type CronExecution struct {
	ID             string `json:"id" column:"id" dbtype:"TEXT NOT NULL" primary:"true"`
	JobName        string `json:"jobName" column:"job_name" dbtype:"TEXT NOT NULL" index:"true"`
	StartedAt      int64  `json:"startedAt" column:"started_at" dbtype:"INTEGER NOT NULL" index:"true"` // unix millis, UTC
	StartedAtUTC   string `json:"startedAtUtc" column:"started_at_utc" dbtype:"TEXT"`
	StartedAtLocal string `json:"startedAtLocal" column:"started_at_local" dbtype:"TEXT"`
	Timezone       string `json:"timezone" column:"timezone" dbtype:"TEXT"`
	Status         string `json:"status" column:"status" dbtype:"TEXT NOT NULL" index:"true"`
	DurationMillis int64  `json:"durationMs" column:"duration_ms" dbtype:"INTEGER DEFAULT 0"`
	Error          string `json:"error,omitempty" column:"error" dbtype:"TEXT DEFAULT ''"`
	Details        string `json:"details,omitempty" column:"details" dbtype:"TEXT DEFAULT ''"` // JSON
}

// GetPrimaryKey returns the primary key as a map
func (ce *CronExecution) GetPrimaryKey() map[string]any {
	return map[string]any{"id": ce.ID}
}

// GetTableName returns the table name for job executions
func (ce *CronExecution) GetTableName() string {
	return "cron_executions"
}

// BeforeSave checks the row can be addressed
func (ce *CronExecution) BeforeSave() error {
	if ce.ID == "" || ce.JobName == "" {
		return fmt.Errorf("cron execution needs an id and a job name")
	}
	return nil
}

// StartTime returns StartedAt as a time
func (ce *CronExecution) StartTime() time.Time {
	return time.UnixMilli(ce.StartedAt).UTC()
}

// RecentExecutions returns the latest runs, optionally for one job only
func (s *Store) RecentExecutions(ctx context.Context, jobName string, limit int) ([]*CronExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	if jobName == "" {
		return FindWhere[CronExecution](ctx, s, "1 = 1 ORDER BY started_at DESC LIMIT ?", limit)
	}
	return FindWhere[CronExecution](ctx, s, "job_name = ? ORDER BY started_at DESC LIMIT ?", jobName, limit)
}

// DeleteExecutionsBefore prunes audit rows older than t
func (s *Store) DeleteExecutionsBefore(ctx context.Context, t time.Time) (int64, error) {
	n, err := s.Exec(ctx, "DELETE FROM cron_executions WHERE started_at < ?", t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cron executions: %w", err)
	}
	return n, nil
}

package podds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultPoddsConfig()
	require.NoError(t, ValidateConfig(c))
	assert.Equal(t, 100000, c.Simulations)
	assert.Equal(t, 0.08, c.Lambda3)
	assert.Equal(t, 0.03, c.DixonColesRho)
	assert.Equal(t, time.Hour, c.CacheTTL)
	assert.Equal(t, 10, c.BatchSize)
	assert.Len(t, c.Jobs, 7)
}

func TestValidateConfigRejectsNonsense(t *testing.T) {
	tests := map[string]func(*PoddsConfig){
		"no simulations":    func(c *PoddsConfig) { c.Simulations = 0 },
		"negative rho":      func(c *PoddsConfig) { c.DixonColesRho = -1 },
		"lambda3 too large": func(c *PoddsConfig) { c.Lambda3 = 1 },
		"inverted form":     func(c *PoddsConfig) { c.FormFactorMin, c.FormFactorMax = 1.2, 0.8 },
		"zero batch":        func(c *PoddsConfig) { c.BatchSize = 0 },
		"zero attempts": func(c *PoddsConfig) {
			c.Jobs[JobCleanup] = JobPolicy{Attempts: 0}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultPoddsConfig()
			mutate(c)
			assert.Error(t, ValidateConfig(c))
		})
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SIMULATIONS", "2500")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_TTL_SECONDS", "120")
	t.Setenv("MODEL_RHO", "0.05")
	t.Setenv("TEAM_STATS_TTL_HOURS", "0")
	t.Setenv("LEAGUES", "39, 140")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com,dev@example.com")
	t.Setenv("JOBS_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2500, c.Simulations)
	assert.False(t, c.CacheEnabled)
	assert.Equal(t, 2*time.Minute, c.CacheTTL)
	assert.Equal(t, 0.05, c.DixonColesRho)
	assert.Equal(t, 0, c.TeamStatsTTLHours)
	assert.Equal(t, []int64{39, 140}, c.Leagues)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, c.AlertRecipients)
}

func TestLoadConfigRejectsBadLeague(t *testing.T) {
	t.Setenv("LEAGUES", "39,premier")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadJobPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	doc := `
jobs:
  sync-fixtures:
    schedule: "*/5 * * * *"
    attempts: 3
    retry_delay: 10s
    timeout: 5m
  cleanup:
    disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	jobs, err := LoadJobPolicies(path, DefaultJobPolicies())
	require.NoError(t, err)

	sync := jobs[JobSyncFixtures]
	assert.Equal(t, "*/5 * * * *", sync.Schedule)
	assert.Equal(t, 3, sync.Attempts)
	assert.Equal(t, 10*time.Second, sync.RetryDelay)
	assert.Equal(t, 5*time.Minute, sync.Timeout)

	cleanup := jobs[JobCleanup]
	assert.True(t, cleanup.Disabled)
	assert.Equal(t, DefaultJobPolicies()[JobCleanup].Schedule, cleanup.Schedule)

	assert.Equal(t, DefaultJobPolicies()[JobProcessResults], jobs[JobProcessResults])
}

func TestLoadJobPoliciesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs: [unterminated"), 0o644))
	_, err := LoadJobPolicies(path, DefaultJobPolicies())
	assert.Error(t, err)
}

func TestPolicyFallback(t *testing.T) {
	c := DefaultPoddsConfig()
	assert.Equal(t, 1, c.Policy("unknown").Attempts)
	assert.Equal(t, 2, c.Policy(JobSyncFixtures).Attempts)
}

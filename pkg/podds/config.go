package podds

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PoddsConfig contains all configurable parameters that influence prediction outcomes
// and the jobs that keep predictions fed. This centralizes all magic numbers.
type PoddsConfig struct {
	// Database
	DbPath   string // The location of the podds sqlite database
	LogLevel string

	// === MONTE CARLO ===
	Simulations         int   // Number of Monte Carlo trials per match (default: 100000)
	SimulationSeed      int64 // 0 means seed from the clock
	SampleSize          int   // Raw (home, away) draws kept on the prediction for inspection
	PoissonIterationCap int   // Product-of-uniforms iteration cap per Poisson variate (default: 10)

	// === GOAL-RATE ESTIMATOR ===
	OwnAttackWeight      float64 // weight of the team's own attack rate (default: 0.7)
	OpponentConcedeWeight float64 // weight of the opponent's concede rate (default: 0.3)
	HomeMultiplier       float64 // default: 1.10
	AwayMultiplier       float64 // default: 0.95
	FormSwing            float64 // factor = 1 + FormSwing*(winRate-lossRate) (default: 0.35)
	FormFactorMin        float64 // default: 0.85
	FormFactorMax        float64 // default: 1.15
	MinExpectedGoals     float64 // default: 0.5
	MaxExpectedGoals     float64 // default: 4.0

	// === BIVARIATE POISSON / DIXON-COLES ===
	Lambda3          float64 // shared shock intensity (default: 0.08)
	MinSpecificRate  float64 // floor for lambda - lambda3 (default: 0.1)
	DixonColesRho    float64 // low score correction strength (default: 0.03)
	ModelVersion     string

	// === PICK THRESHOLDS (percent) ===
	Over25PickThreshold  float64 // default: 55
	Under25PickThreshold float64 // default: 25

	// === CACHE ===
	CacheEnabled  bool
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// === DATA FRESHNESS ===
	TeamStatsTTLHours int           // 0 = always refresh
	UpcomingWindow    time.Duration // how far ahead prediction jobs look (default: 7 days)

	// === BATCHING ===
	BatchSize int // concurrent predictions per batch (default: 10)

	// === PROVIDER ===
	ProviderBaseURL       string
	ProviderAPIKey        string
	ProviderRatePerMinute int
	Leagues               []int64 // league ids the jobs maintain

	// === ALERTING ===
	AlertRecipients           []string
	AlertSuccessNotifications bool
	DiscordWebhookURL         string
	SMTPAddr                  string
	SMTPFrom                  string
	SMTPUsername              string
	SMTPPassword              string

	// === JOBS ===
	JobsConfigPath     string
	CronRetentionDays  int
	MatchRetentionDays int
	SchedulerTimezone  string
	Jobs               map[string]JobPolicy
}

// JobPolicy describes how a single scheduled job is run
type JobPolicy struct {
	Schedule   string        `yaml:"schedule"`
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
	Disabled   bool          `yaml:"disabled"`
}

// Job names understood by the scheduler
const (
	JobSyncFixtures           = "sync-fixtures"
	JobRefreshTeamStats       = "refresh-team-stats"
	JobUpdateLeagueAverages   = "update-league-averages"
	JobGeneratePredictions    = "generate-predictions"
	JobRegeneratePlaceholders = "regenerate-placeholders"
	JobProcessResults         = "process-results"
	JobCleanup                = "cleanup"
)

// DefaultJobPolicies returns the built in schedule and resilience settings per job
func DefaultJobPolicies() map[string]JobPolicy {
	return map[string]JobPolicy{
		JobSyncFixtures:           {Schedule: "*/15 * * * *", Attempts: 2, RetryDelay: 30 * time.Second, Timeout: 10 * time.Minute},
		JobRefreshTeamStats:       {Schedule: "0 */6 * * *", Attempts: 2, RetryDelay: time.Minute, Timeout: 30 * time.Minute},
		JobUpdateLeagueAverages:   {Schedule: "30 3 * * *", Attempts: 2, RetryDelay: time.Minute, Timeout: 15 * time.Minute},
		JobGeneratePredictions:    {Schedule: "0 * * * *", Attempts: 2, RetryDelay: time.Minute, Timeout: 30 * time.Minute},
		JobRegeneratePlaceholders: {Schedule: "20 */2 * * *", Attempts: 2, RetryDelay: time.Minute, Timeout: 30 * time.Minute},
		JobProcessResults:         {Schedule: "*/10 * * * *", Attempts: 2, RetryDelay: 30 * time.Second, Timeout: 10 * time.Minute},
		JobCleanup:                {Schedule: "0 4 * * 0", Attempts: 1, RetryDelay: 0, Timeout: 2 * time.Hour},
	}
}

// DefaultPoddsConfig returns the default configuration with all standard values
func DefaultPoddsConfig() *PoddsConfig {
	return &PoddsConfig{
		DbPath:   "podds.db",
		LogLevel: "info",

		Simulations:         100000,
		SimulationSeed:      0,
		SampleSize:          20,
		PoissonIterationCap: 10,

		OwnAttackWeight:       0.7,
		OpponentConcedeWeight: 0.3,
		HomeMultiplier:        1.10,
		AwayMultiplier:        0.95,
		FormSwing:             0.35,
		FormFactorMin:         0.85,
		FormFactorMax:         1.15,
		MinExpectedGoals:      0.5,
		MaxExpectedGoals:      4.0,

		Lambda3:         0.08,
		MinSpecificRate: 0.1,
		DixonColesRho:   0.03,
		ModelVersion:    "dixon-coles-v1",

		Over25PickThreshold:  55,
		Under25PickThreshold: 25,

		CacheEnabled: true,
		CacheTTL:     time.Hour,
		RedisAddr:    "localhost:6379",

		TeamStatsTTLHours: 24,
		UpcomingWindow:    7 * 24 * time.Hour,
		BatchSize:         10,

		ProviderBaseURL:       "https://v3.football.api-sports.io",
		ProviderRatePerMinute: 30,
		Leagues:               []int64{39, 40},

		JobsConfigPath:     "jobs.yaml",
		CronRetentionDays:  30,
		MatchRetentionDays: 365,
		SchedulerTimezone:  "UTC",
		Jobs:               DefaultJobPolicies(),
	}
}

// LoadConfig reads an optional .env file, overlays environment variables onto the
// defaults and merges the per-job YAML policy file when it exists.
func LoadConfig() (*PoddsConfig, error) {
	_ = godotenv.Load()

	c := DefaultPoddsConfig()
	c.DbPath = envStr("PODDS_DB_PATH", c.DbPath)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)

	c.Simulations = envInt("SIMULATIONS", c.Simulations)
	c.SimulationSeed = int64(envInt("SIMULATION_SEED", int(c.SimulationSeed)))
	c.Lambda3 = envFloat("MODEL_LAMBDA3", c.Lambda3)
	c.DixonColesRho = envFloat("MODEL_RHO", c.DixonColesRho)

	c.CacheEnabled = envBool("CACHE_ENABLED", c.CacheEnabled)
	c.CacheTTL = time.Duration(envInt("CACHE_TTL_SECONDS", int(c.CacheTTL/time.Second))) * time.Second
	c.RedisAddr = envStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)

	c.TeamStatsTTLHours = envInt("TEAM_STATS_TTL_HOURS", c.TeamStatsTTLHours)
	c.BatchSize = envInt("BATCH_SIZE", c.BatchSize)

	c.ProviderBaseURL = envStr("PROVIDER_BASE_URL", c.ProviderBaseURL)
	c.ProviderAPIKey = envStr("PROVIDER_API_KEY", c.ProviderAPIKey)
	c.ProviderRatePerMinute = envInt("PROVIDER_RATE_PER_MINUTE", c.ProviderRatePerMinute)
	if leagues, err := envInt64List("LEAGUES", c.Leagues); err != nil {
		return nil, err
	} else {
		c.Leagues = leagues
	}

	c.AlertRecipients = envList("ALERT_RECIPIENTS", c.AlertRecipients)
	c.AlertSuccessNotifications = envBool("ALERT_SUCCESS_NOTIFICATIONS", c.AlertSuccessNotifications)
	c.DiscordWebhookURL = envStr("DISCORD_WEBHOOK_URL", c.DiscordWebhookURL)
	c.SMTPAddr = envStr("SMTP_ADDR", c.SMTPAddr)
	c.SMTPFrom = envStr("SMTP_FROM", c.SMTPFrom)
	c.SMTPUsername = envStr("SMTP_USERNAME", c.SMTPUsername)
	c.SMTPPassword = envStr("SMTP_PASSWORD", c.SMTPPassword)

	c.JobsConfigPath = envStr("JOBS_CONFIG_PATH", c.JobsConfigPath)
	c.CronRetentionDays = envInt("CRON_RETENTION_DAYS", c.CronRetentionDays)
	c.MatchRetentionDays = envInt("MATCH_RETENTION_DAYS", c.MatchRetentionDays)
	c.SchedulerTimezone = envStr("SCHEDULER_TIMEZONE", c.SchedulerTimezone)

	if _, err := os.Stat(c.JobsConfigPath); err == nil {
		jobs, err := LoadJobPolicies(c.JobsConfigPath, c.Jobs)
		if err != nil {
			return nil, err
		}
		c.Jobs = jobs
	}

	if err := ValidateConfig(c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadJobPolicies reads a YAML document of the form
//
//	jobs:
//	  sync-fixtures:
//	    schedule: "*/5 * * * *"
//	    attempts: 3
//	    retry_delay: 10s
//	    timeout: 5m
//
// and overlays it onto base. Fields left out keep the base value.
func LoadJobPolicies(path string, base map[string]JobPolicy) (map[string]JobPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job policies: %w", err)
	}

	var doc struct {
		Jobs map[string]JobPolicy `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job policies: %w", err)
	}

	merged := make(map[string]JobPolicy, len(base))
	for name, p := range base {
		merged[name] = p
	}
	for name, p := range doc.Jobs {
		cur := merged[name]
		if p.Schedule != "" {
			cur.Schedule = p.Schedule
		}
		if p.Attempts > 0 {
			cur.Attempts = p.Attempts
		}
		if p.RetryDelay > 0 {
			cur.RetryDelay = p.RetryDelay
		}
		if p.Timeout > 0 {
			cur.Timeout = p.Timeout
		}
		cur.Disabled = p.Disabled
		merged[name] = cur
	}
	return merged, nil
}

// Policy returns the policy for a job, falling back to a single attempt with no timeout
func (c *PoddsConfig) Policy(name string) JobPolicy {
	if p, ok := c.Jobs[name]; ok {
		return p
	}
	return JobPolicy{Attempts: 1}
}

// === CONFIGURATION VALIDATION ===

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *PoddsConfig) error {
	if config.Simulations < 1 {
		return fmt.Errorf("Simulations must be positive, got: %d", config.Simulations)
	}
	if config.PoissonIterationCap < 1 {
		return fmt.Errorf("PoissonIterationCap must be positive, got: %d", config.PoissonIterationCap)
	}
	if config.Lambda3 < 0 || config.Lambda3 >= config.MinExpectedGoals {
		return fmt.Errorf("Lambda3 should be between 0 and %.2f, got: %f", config.MinExpectedGoals, config.Lambda3)
	}
	if config.DixonColesRho < 0 || config.DixonColesRho > 1 {
		return fmt.Errorf("DixonColesRho should be between 0 and 1, got: %f", config.DixonColesRho)
	}
	if config.OwnAttackWeight < 0 || config.OpponentConcedeWeight < 0 {
		return fmt.Errorf("goal rate weights must not be negative")
	}
	if config.MinExpectedGoals <= 0 || config.MaxExpectedGoals < config.MinExpectedGoals {
		return fmt.Errorf("expected goals bounds are invalid: [%f, %f]", config.MinExpectedGoals, config.MaxExpectedGoals)
	}
	if config.FormFactorMin > config.FormFactorMax {
		return fmt.Errorf("FormFactorMin (%f) exceeds FormFactorMax (%f)", config.FormFactorMin, config.FormFactorMax)
	}
	if config.BatchSize < 1 {
		return fmt.Errorf("BatchSize must be positive, got: %d", config.BatchSize)
	}
	if config.TeamStatsTTLHours < 0 {
		return fmt.Errorf("TeamStatsTTLHours must not be negative, got: %d", config.TeamStatsTTLHours)
	}
	for name, p := range config.Jobs {
		if p.Attempts < 1 {
			return fmt.Errorf("job %s must allow at least one attempt", name)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt64List(key string, fallback []int64) ([]int64, error) {
	parts := envList(key, nil)
	if parts == nil {
		return fallback, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid league id %q: %w", key, p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

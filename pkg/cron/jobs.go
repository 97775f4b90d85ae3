package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

// Store is the persistence the jobs need. *podds.Store implements it.
type Store interface {
	Save(ctx context.Context, obj podds.Persistable) error
	FindLeague(ctx context.Context, id int64) (*podds.League, error)
	FindMatch(ctx context.Context, id int64) (*podds.Match, error)
	FindMatchesBefore(ctx context.Context, t time.Time) ([]*podds.Match, error)
	FindMatchesWithoutPrediction(ctx context.Context, from, to time.Time) ([]int64, error)
	FindPlaceholderMatches(ctx context.Context, from, to time.Time) ([]int64, error)
	FindUnprocessedFinished(ctx context.Context) ([]int64, error)
	DeleteMatch(ctx context.Context, id int64) (int64, error)
	DeleteExecutionsBefore(ctx context.Context, t time.Time) (int64, error)
}

// Predictions is the prediction service as the jobs use it
type Predictions interface {
	GenerateForMatches(ctx context.Context, matchIDs []int64) []*podds.MatchPrediction
	Regenerate(ctx context.Context, matchID int64) (*podds.MatchPrediction, error)
	ProcessMatch(ctx context.Context, matchID int64) (*podds.MatchPrediction, error)
}

// Statistics maintains teams, team statistics and league averages
type Statistics interface {
	EnsureTeam(ctx context.Context, teamID int64) (*podds.Team, error)
	RefreshLeague(ctx context.Context, leagueID int64, season int) (updated, failed int, err error)
	UpdateLeagueAverages(ctx context.Context, leagueID int64, season int) (*podds.LeagueAverages, error)
}

// Jobs holds the job entry points
type Jobs struct {
	cfg      *podds.PoddsConfig
	store    Store
	service  Predictions
	stats    Statistics
	provider podds.Provider
	now      func() time.Time
}

// NewJobs wires the job entry points. provider may be nil, which makes sync-fixtures fail.
func NewJobs(cfg *podds.PoddsConfig, store Store, service Predictions, stats Statistics, provider podds.Provider) *Jobs {
	return &Jobs{cfg: cfg, store: store, service: service, stats: stats, provider: provider, now: time.Now}
}

// All returns every job keyed by name
func (j *Jobs) All() map[string]JobFunc {
	return map[string]JobFunc{
		podds.JobSyncFixtures:           j.SyncFixtures,
		podds.JobRefreshTeamStats:       j.RefreshTeamStats,
		podds.JobUpdateLeagueAverages:   j.UpdateLeagueAverages,
		podds.JobGeneratePredictions:    j.GeneratePredictions,
		podds.JobRegeneratePlaceholders: j.RegeneratePlaceholders,
		podds.JobProcessResults:         j.ProcessResults,
		podds.JobCleanup:                j.Cleanup,
	}
}

// season resolves the season a league is currently playing
func (j *Jobs) season(ctx context.Context, leagueID int64) (int, error) {
	league, err := j.store.FindLeague(ctx, leagueID)
	if err != nil {
		return 0, err
	}
	return podds.CurrentSeason(league, j.now()), nil
}

// forEachLeague runs fn per configured league. It only fails when every league failed.
func (j *Jobs) forEachLeague(ctx context.Context, stats JobStats, fn func(leagueID int64, season int) error) error {
	var errs []error
	for _, leagueID := range j.cfg.Leagues {
		if err := ctx.Err(); err != nil {
			return err
		}
		season, err := j.season(ctx, leagueID)
		if err == nil {
			err = fn(leagueID, season)
		}
		if err != nil {
			logger.Warn("League failed", leagueID, err)
			stats["failedLeagues"]++
			errs = append(errs, fmt.Errorf("league %d: %w", leagueID, err))
		}
	}
	if len(errs) > 0 && len(errs) == len(j.cfg.Leagues) {
		return errors.Join(errs...)
	}
	return nil
}

// SyncFixtures upserts the fixtures of every configured league and grades
// the predictions of matches that have just finished
func (j *Jobs) SyncFixtures(ctx context.Context) (JobStats, error) {
	if j.provider == nil {
		return nil, errors.New("no fixture provider configured")
	}
	stats := JobStats{"created": 0, "updated": 0, "finished": 0, "failed": 0, "missingTeams": 0}

	err := j.forEachLeague(ctx, stats, func(leagueID int64, season int) error {
		fixtures, err := j.provider.FetchFixtures(ctx, leagueID, season)
		if err != nil {
			return err
		}
		teams := make(map[int64]bool)
		for _, f := range fixtures {
			if err := j.syncFixture(ctx, f, teams, stats); err != nil {
				logger.Warn("Failed to sync fixture", f.ID, err)
				stats["failed"]++
			}
		}
		return nil
	})
	return stats, err
}

func (j *Jobs) syncFixture(ctx context.Context, f *podds.Match, teams map[int64]bool, stats JobStats) error {
	existing, err := j.store.FindMatch(ctx, f.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := j.store.Save(ctx, f); err != nil {
			return err
		}
		stats["created"]++
		j.ensureTeams(ctx, f, teams, stats)
		return nil
	}
	j.ensureTeams(ctx, existing, teams, stats)

	changed := !existing.Equals(f) || existing.Round != f.Round
	becameFinished := existing.Merge(f)
	if !changed {
		return nil
	}
	if becameFinished {
		j.fillCorners(ctx, existing)
	}
	if err := j.store.Save(ctx, existing); err != nil {
		return err
	}
	stats["updated"]++

	if becameFinished {
		logger.Info("Match finished", existing.ID, existing.ScoreString(), existing.KickoffTime().Format(time.RFC3339))
		if _, err := j.service.ProcessMatch(ctx, existing.ID); err != nil {
			return fmt.Errorf("grade match %d: %w", existing.ID, err)
		}
		stats["finished"]++
	}
	return nil
}

// ensureTeams stores both sides of a fixture once per sync. Predictions need the team rows.
func (j *Jobs) ensureTeams(ctx context.Context, m *podds.Match, seen map[int64]bool, stats JobStats) {
	for _, teamID := range []int64{m.HomeTeamID, m.AwayTeamID} {
		if seen[teamID] {
			continue
		}
		seen[teamID] = true
		team, err := j.stats.EnsureTeam(ctx, teamID)
		if err != nil || team == nil {
			logger.Warn("Team unavailable", teamID, err)
			stats["missingTeams"]++
		}
	}
}

// fillCorners fetches corner counts for a finished match when they are unknown
func (j *Jobs) fillCorners(ctx context.Context, m *podds.Match) bool {
	if _, ok := m.CornersTotal(); ok || j.provider == nil {
		return false
	}
	home, away, err := j.provider.FetchFixtureStatistics(ctx, m.ID)
	if err != nil {
		logger.Debug("No corner statistics yet", m.ID, err)
		return false
	}
	m.HomeCorners, m.AwayCorners = home, away
	return true
}

// RefreshTeamStats refreshes stale statistics of every team in the configured leagues
func (j *Jobs) RefreshTeamStats(ctx context.Context) (JobStats, error) {
	stats := JobStats{"updated": 0, "failed": 0}
	err := j.forEachLeague(ctx, stats, func(leagueID int64, season int) error {
		updated, failed, err := j.stats.RefreshLeague(ctx, leagueID, season)
		stats["updated"] += updated
		stats["failed"] += failed
		return err
	})
	return stats, err
}

// UpdateLeagueAverages recomputes the averages of every configured league
func (j *Jobs) UpdateLeagueAverages(ctx context.Context) (JobStats, error) {
	stats := JobStats{"updated": 0, "skipped": 0, "failed": 0}
	err := j.forEachLeague(ctx, stats, func(leagueID int64, season int) error {
		la, err := j.stats.UpdateLeagueAverages(ctx, leagueID, season)
		switch {
		case err != nil:
			stats["failed"]++
			return err
		case la == nil:
			stats["skipped"]++
		default:
			stats["updated"]++
		}
		return nil
	})
	return stats, err
}

// window is the upcoming kickoff range the prediction jobs look at
func (j *Jobs) window() (time.Time, time.Time) {
	now := j.now().UTC()
	return now, now.Add(j.cfg.UpcomingWindow)
}

// GeneratePredictions creates predictions for upcoming matches that have none
func (j *Jobs) GeneratePredictions(ctx context.Context) (JobStats, error) {
	from, to := j.window()
	ids, err := j.store.FindMatchesWithoutPrediction(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := JobStats{"created": 0, "placeholders": 0, "failed": 0}
	predictions := j.service.GenerateForMatches(ctx, ids)
	for _, p := range predictions {
		if p.IsPlaceholder() {
			stats["placeholders"]++
		} else {
			stats["created"]++
		}
	}
	stats["failed"] = len(ids) - len(predictions)
	return stats, nil
}

// RegeneratePlaceholders retries upcoming matches whose prediction is still a placeholder
func (j *Jobs) RegeneratePlaceholders(ctx context.Context) (JobStats, error) {
	from, to := j.window()
	ids, err := j.store.FindPlaceholderMatches(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := JobStats{"updated": 0, "stillPlaceholder": 0, "failed": 0}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p, err := j.service.Regenerate(ctx, id)
		switch {
		case err != nil:
			logger.Warn("Failed to regenerate prediction", id, err)
			stats["failed"]++
		case p == nil:
			stats["failed"]++
		case p.IsPlaceholder():
			stats["stillPlaceholder"]++
		default:
			stats["updated"]++
		}
	}
	return stats, nil
}

// ProcessResults grades finished matches whose prediction has not been graded,
// catching anything sync-fixtures missed
func (j *Jobs) ProcessResults(ctx context.Context) (JobStats, error) {
	ids, err := j.store.FindUnprocessedFinished(ctx)
	if err != nil {
		return nil, err
	}

	stats := JobStats{"processed": 0, "skipped": 0, "failed": 0}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if m, err := j.store.FindMatch(ctx, id); err == nil && m != nil && j.fillCorners(ctx, m) {
			if err := j.store.Save(ctx, m); err != nil {
				logger.Warn("Failed to store corners", id, err)
			}
		}

		p, err := j.service.ProcessMatch(ctx, id)
		switch {
		case err != nil:
			logger.Warn("Failed to grade prediction", id, err)
			stats["failed"]++
		case p == nil || !p.IsProcessed:
			stats["skipped"]++
		default:
			stats["processed"]++
		}
	}
	return stats, nil
}

// Cleanup removes matches, with their predictions, and execution rows past retention
func (j *Jobs) Cleanup(ctx context.Context) (JobStats, error) {
	now := j.now().UTC()
	stats := JobStats{"deletedMatches": 0, "deletedPredictions": 0, "deletedExecutions": 0}

	old, err := j.store.FindMatchesBefore(ctx, now.AddDate(0, 0, -j.cfg.MatchRetentionDays))
	if err != nil {
		return stats, err
	}
	for _, m := range old {
		n, err := j.store.DeleteMatch(ctx, m.ID)
		if err != nil {
			return stats, fmt.Errorf("delete match %d: %w", m.ID, err)
		}
		stats["deletedMatches"]++
		stats["deletedPredictions"] += int(n)
	}

	n, err := j.store.DeleteExecutionsBefore(ctx, now.AddDate(0, 0, -j.cfg.CronRetentionDays))
	if err != nil {
		return stats, err
	}
	stats["deletedExecutions"] = int(n)
	return stats, nil
}

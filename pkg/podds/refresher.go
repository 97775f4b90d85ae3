package podds

import (
	"context"
	"fmt"
	"time"

	"github.com/richard-senior/podds/internal/logger"
)

// StatsRefresher keeps team statistics and league averages current
type StatsRefresher struct {
	repo     Repository
	provider Provider
	cfg      *PoddsConfig
	now      func() time.Time
}

// NewStatsRefresher returns a refresher. provider may be nil, in which case
// only stored data is ever returned.
func NewStatsRefresher(cfg *PoddsConfig, repo Repository, provider Provider) *StatsRefresher {
	return &StatsRefresher{repo: repo, provider: provider, cfg: cfg, now: time.Now}
}

// EnsureTeamStats returns stored statistics while they are fresh and otherwise
// refetches them. Provider failures fall back to whatever is stored, which may be nil.
func (r *StatsRefresher) EnsureTeamStats(ctx context.Context, teamID, leagueID int64, season int) (*TeamStatistics, error) {
	stored, err := r.repo.FindTeamStatistics(ctx, teamID, leagueID, season)
	if err != nil {
		return nil, err
	}
	if stored != nil && !stored.IsStale(r.cfg.TeamStatsTTLHours, r.now()) {
		return stored, nil
	}
	if r.provider == nil {
		return stored, nil
	}

	fetched, err := r.provider.FetchTeamStatistics(ctx, teamID, leagueID, season)
	if err != nil {
		logger.Warn("Failed to fetch team statistics", teamID, leagueID, season, err)
		return stored, nil
	}
	if fetched == nil {
		return stored, nil
	}
	fetched.TeamID, fetched.LeagueID, fetched.Season = teamID, leagueID, season
	fetched.FetchedAt = r.now().Unix()
	if err := r.repo.Save(ctx, fetched); err != nil {
		return nil, fmt.Errorf("save statistics for team %d: %w", teamID, err)
	}
	return fetched, nil
}

// EnsureTeam makes sure a team row exists, fetching its details when missing
func (r *StatsRefresher) EnsureTeam(ctx context.Context, teamID int64) (*Team, error) {
	team, err := r.repo.FindTeam(ctx, teamID)
	if err != nil || team != nil || r.provider == nil {
		return team, err
	}
	team, err = r.provider.FetchTeamDetails(ctx, teamID)
	if err != nil {
		logger.Warn("Failed to fetch team details", teamID, err)
		return nil, nil
	}
	if team == nil {
		return nil, nil
	}
	team.ID = teamID
	if err := r.repo.Save(ctx, team); err != nil {
		return nil, fmt.Errorf("save team %d: %w", teamID, err)
	}
	return team, nil
}

// RefreshLeague refreshes the statistics of every team seen in a league season's
// fixtures, storing any team it has not seen before
func (r *StatsRefresher) RefreshLeague(ctx context.Context, leagueID int64, season int) (updated, failed int, err error) {
	matches, err := r.repo.FindMatchesByLeagueSeason(ctx, leagueID, season)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[int64]bool)
	for _, m := range matches {
		for _, teamID := range []int64{m.HomeTeamID, m.AwayTeamID} {
			if seen[teamID] {
				continue
			}
			seen[teamID] = true
			if err := ctx.Err(); err != nil {
				return updated, failed, err
			}

			if _, err := r.EnsureTeam(ctx, teamID); err != nil {
				logger.Warn("Failed to store team", teamID, err)
			}
			before, err := r.repo.FindTeamStatistics(ctx, teamID, leagueID, season)
			if err != nil {
				return updated, failed, err
			}
			after, err := r.EnsureTeamStats(ctx, teamID, leagueID, season)
			switch {
			case err != nil:
				logger.Warn("Failed to refresh team statistics", teamID, err)
				failed++
			case after == nil:
				failed++
			case before == nil || after.FetchedAt != before.FetchedAt:
				updated++
			}
		}
	}
	return updated, failed, nil
}

// UpdateLeagueAverages recomputes and stores the averages of a league season.
// It returns nil when the season has no finished matches.
func (r *StatsRefresher) UpdateLeagueAverages(ctx context.Context, leagueID int64, season int) (*LeagueAverages, error) {
	finished, err := r.repo.FindFinishedMatches(ctx, leagueID, season)
	if err != nil {
		return nil, err
	}
	la := ComputeLeagueAverages(leagueID, season, finished)
	if la == nil {
		return nil, nil
	}
	if err := r.repo.Save(ctx, la); err != nil {
		return nil, fmt.Errorf("save league averages %d/%d: %w", leagueID, season, err)
	}
	return la, nil
}

// LeagueAverages returns stored averages, computing them when missing. The
// previous season is tried when the current one has nothing finished yet.
func (r *StatsRefresher) LeagueAverages(ctx context.Context, leagueID int64, season int) (*LeagueAverages, error) {
	for _, s := range []int{season, season - 1} {
		la, err := r.repo.FindLeagueAverages(ctx, leagueID, s)
		if err != nil {
			return nil, err
		}
		if la != nil {
			return la, nil
		}
		la, err = r.UpdateLeagueAverages(ctx, leagueID, s)
		if err != nil {
			return nil, err
		}
		if la != nil {
			return la, nil
		}
	}
	return nil, nil
}

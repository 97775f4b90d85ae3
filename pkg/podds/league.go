package podds

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check to ensure League implements Persistable interface
var _ Persistable = (*League)(nil)

// League represents a competition. CurrentSeason is the start year of the
// season the provider reports as current, 0 when unknown.
type League struct {
	ID            int64     `json:"id" column:"id" dbtype:"INTEGER NOT NULL" primary:"true"`
	Name          string    `json:"name" column:"name" dbtype:"TEXT"`
	Country       string    `json:"country" column:"country" dbtype:"TEXT"`
	CurrentSeason int       `json:"currentSeason" column:"current_season" dbtype:"INTEGER DEFAULT 0"`
	CreatedAt     time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME" update:"false"`
	UpdatedAt     time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

// GetPrimaryKey returns the primary key as a map
func (l *League) GetPrimaryKey() map[string]any {
	return map[string]any{"id": l.ID}
}

// GetTableName returns the table name for leagues
func (l *League) GetTableName() string {
	return "leagues"
}

// BeforeSave stamps the audit times
func (l *League) BeforeSave() error {
	if l.ID <= 0 {
		return fmt.Errorf("league id must be positive, got %d", l.ID)
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	return nil
}

// FindLeague loads a league by id, nil when absent
func (s *Store) FindLeague(ctx context.Context, id int64) (*League, error) {
	return FindByPrimaryKey[League](ctx, s, map[string]any{"id": id})
}

// Compile-time check to ensure LeagueAverages implements Persistable interface
var _ Persistable = (*LeagueAverages)(nil)

// LeagueAverages holds per league/season scoring averages over finished fixtures.
// They are a fallback signal and are not part of the goal-rate formula.
type LeagueAverages struct {
	LeagueID int64 `json:"leagueId" column:"league_id" dbtype:"INTEGER NOT NULL" primary:"true"`
	Season   int   `json:"season" column:"season" dbtype:"INTEGER NOT NULL" primary:"true"`

	AvgGoalsPerMatch float64 `json:"avgGoalsPerMatch" column:"avg_goals_per_match" dbtype:"REAL DEFAULT 0.0"`
	AvgHomeGoals     float64 `json:"avgHomeGoals" column:"avg_home_goals" dbtype:"REAL DEFAULT 0.0"`
	AvgAwayGoals     float64 `json:"avgAwayGoals" column:"avg_away_goals" dbtype:"REAL DEFAULT 0.0"`
	BTTSRate         float64 `json:"bttsRate" column:"btts_rate" dbtype:"REAL DEFAULT 0.0"`
	MatchesCounted   int     `json:"matchesCounted" column:"matches_counted" dbtype:"INTEGER DEFAULT 0"`

	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

// GetPrimaryKey returns the compound primary key
func (la *LeagueAverages) GetPrimaryKey() map[string]any {
	return map[string]any{"league_id": la.LeagueID, "season": la.Season}
}

// GetTableName returns the table name for league averages
func (la *LeagueAverages) GetTableName() string {
	return "league_averages"
}

// BeforeSave stamps the update time
func (la *LeagueAverages) BeforeSave() error {
	la.UpdatedAt = time.Now().UTC()
	return nil
}

// FindLeagueAverages loads the averages for a league season, nil when absent
func (s *Store) FindLeagueAverages(ctx context.Context, leagueID int64, season int) (*LeagueAverages, error) {
	return FindByPrimaryKey[LeagueAverages](ctx, s, map[string]any{"league_id": leagueID, "season": season})
}

// ComputeLeagueAverages aggregates finished matches into league averages.
// It returns nil when there is nothing to aggregate.
func ComputeLeagueAverages(leagueID int64, season int, matches []*Match) *LeagueAverages {
	la := &LeagueAverages{LeagueID: leagueID, Season: season}
	var home, away, btts int
	for _, m := range matches {
		if !m.IsFinished() {
			continue
		}
		la.MatchesCounted++
		home += m.HomeGoals
		away += m.AwayGoals
		if m.HomeGoals > 0 && m.AwayGoals > 0 {
			btts++
		}
	}
	if la.MatchesCounted == 0 {
		return nil
	}
	n := float64(la.MatchesCounted)
	la.AvgHomeGoals = float64(home) / n
	la.AvgAwayGoals = float64(away) / n
	la.AvgGoalsPerMatch = float64(home+away) / n
	la.BTTSRate = float64(btts) / n
	return la
}

package podds

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Compile-time check to ensure TeamStatistics implements Persistable interface
var _ Persistable = (*TeamStatistics)(nil)

// TeamStatistics holds a team's season to date record in one league
type TeamStatistics struct {
	// Compound primary key
	TeamID   int64 `json:"teamId" column:"team_id" dbtype:"INTEGER NOT NULL" primary:"true"`
	LeagueID int64 `json:"leagueId" column:"league_id" dbtype:"INTEGER NOT NULL" primary:"true"`
	Season   int   `json:"season" column:"season" dbtype:"INTEGER NOT NULL" primary:"true"`

	MatchesPlayed int `json:"matchesPlayed" column:"matches_played" dbtype:"INTEGER DEFAULT 0"`
	Wins          int `json:"wins" column:"wins" dbtype:"INTEGER DEFAULT 0"`
	Draws         int `json:"draws" column:"draws" dbtype:"INTEGER DEFAULT 0"`
	Losses        int `json:"losses" column:"losses" dbtype:"INTEGER DEFAULT 0"`

	GoalsFor        int     `json:"goalsFor" column:"goals_for" dbtype:"INTEGER DEFAULT 0"`
	GoalsAgainst    int     `json:"goalsAgainst" column:"goals_against" dbtype:"INTEGER DEFAULT 0"`
	GoalsForAvg     float64 `json:"goalsForAvg" column:"goals_for_avg" dbtype:"REAL DEFAULT 0.0"`
	GoalsAgainstAvg float64 `json:"goalsAgainstAvg" column:"goals_against_avg" dbtype:"REAL DEFAULT 0.0"`

	// expected goals proxies, 0 when the provider has none
	XG  float64 `json:"xg" column:"xg" dbtype:"REAL DEFAULT 0.0"`
	XGA float64 `json:"xga" column:"xga" dbtype:"REAL DEFAULT 0.0"`

	Form          string `json:"form" column:"form" dbtype:"TEXT DEFAULT ''"` // most recent last, e.g. "WWDLW"
	CleanSheets   int    `json:"cleanSheets" column:"clean_sheets" dbtype:"INTEGER DEFAULT 0"`
	FailedToScore int    `json:"failedToScore" column:"failed_to_score" dbtype:"INTEGER DEFAULT 0"`
	YellowCards   int    `json:"yellowCards" column:"yellow_cards" dbtype:"INTEGER DEFAULT 0"`
	RedCards      int    `json:"redCards" column:"red_cards" dbtype:"INTEGER DEFAULT 0"`

	FetchedAt int64 `json:"fetchedAt" column:"fetched_at" dbtype:"INTEGER DEFAULT 0"` // unix seconds
}

// GetPrimaryKey returns the compound primary key
func (ts *TeamStatistics) GetPrimaryKey() map[string]any {
	return map[string]any{"team_id": ts.TeamID, "league_id": ts.LeagueID, "season": ts.Season}
}

// GetTableName returns the table name for team statistics
func (ts *TeamStatistics) GetTableName() string {
	return "team_statistics"
}

// BeforeSave derives the averages when only totals were supplied
func (ts *TeamStatistics) BeforeSave() error {
	if ts.TeamID <= 0 || ts.LeagueID <= 0 {
		return fmt.Errorf("team statistics need a team and league, got team=%d league=%d", ts.TeamID, ts.LeagueID)
	}
	if ts.MatchesPlayed > 0 {
		if ts.GoalsForAvg == 0 && ts.GoalsFor > 0 {
			ts.GoalsForAvg = float64(ts.GoalsFor) / float64(ts.MatchesPlayed)
		}
		if ts.GoalsAgainstAvg == 0 && ts.GoalsAgainst > 0 {
			ts.GoalsAgainstAvg = float64(ts.GoalsAgainst) / float64(ts.MatchesPlayed)
		}
	}
	ts.Form = strings.ToUpper(strings.TrimSpace(ts.Form))
	if ts.FetchedAt == 0 {
		ts.FetchedAt = time.Now().Unix()
	}
	return nil
}

// IsInsufficient is true when the record carries too little data to model from
func (ts *TeamStatistics) IsInsufficient() bool {
	return ts == nil || ts.MatchesPlayed == 0 || ts.GoalsForAvg == 0
}

// IsStale reports whether the record should be refetched. A ttl of 0 means always.
func (ts *TeamStatistics) IsStale(ttlHours int, now time.Time) bool {
	if ts == nil || ttlHours <= 0 {
		return true
	}
	return now.Sub(time.Unix(ts.FetchedAt, 0)) >= time.Duration(ttlHours)*time.Hour
}

// AttackRate is xG when present, else goals scored per match
func (ts *TeamStatistics) AttackRate() float64 {
	if ts.XG > 0 {
		return ts.XG
	}
	return ts.GoalsForAvg
}

// ConcedeRate is xGA when present, else goals conceded per match
func (ts *TeamStatistics) ConcedeRate() float64 {
	if ts.XGA > 0 {
		return ts.XGA
	}
	return ts.GoalsAgainstAvg
}

// FindTeamStatistics loads the statistics for a team in a league season, nil when absent
func (s *Store) FindTeamStatistics(ctx context.Context, teamID, leagueID int64, season int) (*TeamStatistics, error) {
	return FindByPrimaryKey[TeamStatistics](ctx, s, map[string]any{"team_id": teamID, "league_id": leagueID, "season": season})
}

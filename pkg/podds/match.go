package podds

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check to ensure Match implements Persistable interface
var _ Persistable = (*Match)(nil)

// Status short codes as reported by the fixture provider
const (
	StatusNotStarted = "NS"
	StatusFullTime   = "FT"
	StatusAfterExtra = "AET"
	StatusPenalties  = "PEN"
	StatusPostponed  = "PST"
	StatusCancelled  = "CANC"
)

// Match represents a football fixture. Goals and corners are -1 until known.
type Match struct {
	// Primary key
	ID int64 `json:"id" column:"id" dbtype:"INTEGER NOT NULL" primary:"true"`
	// Info
	LeagueID int64  `json:"leagueId" column:"league_id" dbtype:"INTEGER NOT NULL" index:"true"`
	Season   int    `json:"season" column:"season" dbtype:"INTEGER NOT NULL" index:"true"`
	Round    string `json:"round" column:"round" dbtype:"TEXT"`
	Kickoff  int64  `json:"kickoff" column:"kickoff" dbtype:"INTEGER NOT NULL DEFAULT 0" index:"true"` // unix seconds
	Status   string `json:"status" column:"status" dbtype:"TEXT NOT NULL DEFAULT 'NS'" index:"true"`

	HomeTeamID int64 `json:"homeTeam" column:"home_team_id" dbtype:"INTEGER NOT NULL" index:"true"`
	AwayTeamID int64 `json:"awayTeam" column:"away_team_id" dbtype:"INTEGER NOT NULL" index:"true"`

	HomeGoals         int `json:"homeGoals" column:"home_goals" dbtype:"INTEGER DEFAULT -1"`
	AwayGoals         int `json:"awayGoals" column:"away_goals" dbtype:"INTEGER DEFAULT -1"`
	HalfTimeHomeGoals int `json:"halfTimeHomeGoals" column:"ht_home_goals" dbtype:"INTEGER DEFAULT -1"`
	HalfTimeAwayGoals int `json:"halfTimeAwayGoals" column:"ht_away_goals" dbtype:"INTEGER DEFAULT -1"`

	HomeCorners int `json:"homeCorners" column:"home_corners" dbtype:"INTEGER DEFAULT -1"`
	AwayCorners int `json:"awayCorners" column:"away_corners" dbtype:"INTEGER DEFAULT -1"`

	// Metadata
	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME" update:"false"`
	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

// NewMatch returns a match with every unknown numeric field set to -1
func NewMatch(id, leagueID int64, season int) *Match {
	return &Match{
		ID:                id,
		LeagueID:          leagueID,
		Season:            season,
		Status:            StatusNotStarted,
		HomeGoals:         -1,
		AwayGoals:         -1,
		HalfTimeHomeGoals: -1,
		HalfTimeAwayGoals: -1,
		HomeCorners:       -1,
		AwayCorners:       -1,
	}
}

/////////////////////////////////////////////////////////////////////////
////// Persistable Interface Implementation
/////////////////////////////////////////////////////////////////////////

// GetPrimaryKey returns the primary key as a map
func (m *Match) GetPrimaryKey() map[string]any {
	return map[string]any{"id": m.ID}
}

// GetTableName returns the table name for matches
func (m *Match) GetTableName() string {
	return "matches"
}

// BeforeSave stamps the audit times
func (m *Match) BeforeSave() error {
	if m.ID <= 0 {
		return fmt.Errorf("match id must be positive, got %d", m.ID)
	}
	if m.HomeTeamID == m.AwayTeamID {
		return fmt.Errorf("match %d has the same home and away team %d", m.ID, m.HomeTeamID)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

/////////////////////////////////////////////////////////////////////////
////// State
/////////////////////////////////////////////////////////////////////////

// IsFinishedStatus reports whether a provider status code means the result is final
func IsFinishedStatus(status string) bool {
	switch status {
	case StatusFullTime, StatusAfterExtra, StatusPenalties:
		return true
	}
	return false
}

// IsFinished is true once the match has a final result
func (m *Match) IsFinished() bool {
	return IsFinishedStatus(m.Status) && m.HasBeenPlayed()
}

// HasBeenPlayed is true once both goal counts are known
func (m *Match) HasBeenPlayed() bool {
	return m.HomeGoals >= 0 && m.AwayGoals >= 0
}

// KickoffTime returns the kickoff as a UTC time
func (m *Match) KickoffTime() time.Time {
	return time.Unix(m.Kickoff, 0).UTC()
}

// CornersTotal returns the total corner count, false when corners were never recorded
func (m *Match) CornersTotal() (int, bool) {
	if m.HomeCorners < 0 || m.AwayCorners < 0 {
		return 0, false
	}
	return m.HomeCorners + m.AwayCorners, true
}

// ScoreString renders the result as "h-a", or "v" when unplayed
func (m *Match) ScoreString() string {
	if !m.HasBeenPlayed() {
		return "v"
	}
	return fmt.Sprintf("%d-%d", m.HomeGoals, m.AwayGoals)
}

// Merge copies the provider controlled fields of n onto m and reports whether
// the match has just transitioned into a finished state.
func (m *Match) Merge(n *Match) (becameFinished bool) {
	wasFinished := m.IsFinished()

	m.LeagueID = n.LeagueID
	m.Season = n.Season
	m.Round = n.Round
	m.Kickoff = n.Kickoff
	m.Status = n.Status
	m.HomeTeamID = n.HomeTeamID
	m.AwayTeamID = n.AwayTeamID
	m.HomeGoals = n.HomeGoals
	m.AwayGoals = n.AwayGoals
	m.HalfTimeHomeGoals = n.HalfTimeHomeGoals
	m.HalfTimeAwayGoals = n.HalfTimeAwayGoals
	// corners arrive from a separate call, don't wipe them
	if n.HomeCorners >= 0 && n.AwayCorners >= 0 {
		m.HomeCorners = n.HomeCorners
		m.AwayCorners = n.AwayCorners
	}

	return !wasFinished && m.IsFinished()
}

// Equals compares the provider controlled fields
func (m *Match) Equals(n *Match) bool {
	if n == nil {
		return false
	}
	return m.ID == n.ID &&
		m.LeagueID == n.LeagueID &&
		m.Season == n.Season &&
		m.Kickoff == n.Kickoff &&
		m.Status == n.Status &&
		m.HomeTeamID == n.HomeTeamID &&
		m.AwayTeamID == n.AwayTeamID &&
		m.HomeGoals == n.HomeGoals &&
		m.AwayGoals == n.AwayGoals &&
		m.HalfTimeHomeGoals == n.HalfTimeHomeGoals &&
		m.HalfTimeAwayGoals == n.HalfTimeAwayGoals
}

/////////////////////////////////////////////////////////////////////////
////// Queries
/////////////////////////////////////////////////////////////////////////

// FindMatch loads a match by id, nil when absent
func (s *Store) FindMatch(ctx context.Context, id int64) (*Match, error) {
	return FindByPrimaryKey[Match](ctx, s, map[string]any{"id": id})
}

// FindMatchesByLeagueSeason returns all matches of a league season ordered by kickoff
func (s *Store) FindMatchesByLeagueSeason(ctx context.Context, leagueID int64, season int) ([]*Match, error) {
	return FindWhere[Match](ctx, s, "league_id = ? AND season = ? ORDER BY kickoff, id", leagueID, season)
}

// FindFinishedMatches returns the finished matches of a league season
func (s *Store) FindFinishedMatches(ctx context.Context, leagueID int64, season int) ([]*Match, error) {
	return FindWhere[Match](ctx, s,
		"league_id = ? AND season = ? AND status IN (?, ?, ?) AND home_goals >= 0 AND away_goals >= 0 ORDER BY kickoff, id",
		leagueID, season, StatusFullTime, StatusAfterExtra, StatusPenalties)
}

// FindMatchesBefore returns matches that kicked off before t
func (s *Store) FindMatchesBefore(ctx context.Context, t time.Time) ([]*Match, error) {
	return FindWhere[Match](ctx, s, "kickoff < ? ORDER BY kickoff, id", t.Unix())
}

// DeleteMatch removes a match together with its prediction. It reports how many
// prediction rows went with it.
func (s *Store) DeleteMatch(ctx context.Context, id int64) (predictionsDeleted int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM match_predictions WHERE match_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prediction for match %d: %w", id, err)
	}
	predictionsDeleted, _ = res.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM matches WHERE id = ?", id); err != nil {
		return 0, fmt.Errorf("failed to delete match %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return predictionsDeleted, nil
}

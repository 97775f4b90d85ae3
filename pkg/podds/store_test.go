package podds

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "podds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateCreateTableSQL(t *testing.T) {
	sql := generateCreateTableSQL(&TeamStatistics{}, "team_statistics")
	assert.True(t, strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS team_statistics ("))
	assert.Contains(t, sql, "PRIMARY KEY (team_id, league_id, season)")
	assert.Contains(t, sql, "goals_for_avg REAL DEFAULT 0.0")

	idx := generateIndexSQL(&Match{}, "matches")
	assert.Contains(t, idx, "CREATE INDEX IF NOT EXISTS idx_matches_kickoff ON matches(kickoff)")
}

func TestSaveUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	team := &Team{ID: 1, Name: "Arsenal"}
	require.NoError(t, s.Save(ctx, team))
	created := team.CreatedAt

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Save(ctx, &Team{ID: 1, Name: "Arsenal FC"}))

	got, err := s.FindTeam(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Arsenal FC", got.Name)
	assert.Equal(t, "Arsenal FC", got.ShortName)
	assert.True(t, created.Equal(got.CreatedAt), "created_at is not overwritten by an upsert")

	all, err := FindWhere[Team](ctx, s, "1 = 1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindMissingIsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.FindMatch(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, m)

	p, err := s.FindPrediction(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestBeforeSaveRejectsInvalidRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := NewMatch(1, 39, 2024)
	m.HomeTeamID, m.AwayTeamID = 5, 5
	assert.Error(t, s.Save(ctx, m))
	assert.Error(t, s.Save(ctx, &Team{ID: 0, Name: "x"}))
}

func TestInsertPredictionReportsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertPrediction(ctx, NewPlaceholder(10, ReasonMissingTeamStats)))
	err := s.InsertPrediction(ctx, NewPlaceholder(10, ReasonInsufficientTeamData))
	assert.ErrorIs(t, err, ErrDuplicate)

	n, err := s.CountPredictions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.FindPrediction(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingTeamStats, p.PlaceholderReason())
}

func TestReplacePlaceholderOnlyTouchesUngradedPlaceholders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertPrediction(ctx, NewPlaceholder(11, ReasonMissingTeamStats)))
	replaced, err := s.ReplacePlaceholder(ctx, computedPrediction(t, 11))
	require.NoError(t, err)
	assert.True(t, replaced)

	n, err := s.CountPredictions(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.FindPrediction(ctx, 11)
	require.NoError(t, err)
	assert.False(t, p.IsPlaceholder())
	assert.Empty(t, p.PlaceholderReason())

	counted, err := s.MarkStatsCounted(ctx, 11)
	require.NoError(t, err)
	require.True(t, counted)

	// a computed row is never replaced, so the counted flag survives
	replaced, err = s.ReplacePlaceholder(ctx, computedPrediction(t, 11))
	require.NoError(t, err)
	assert.False(t, replaced)
	counted, err = s.MarkStatsCounted(ctx, 11)
	require.NoError(t, err)
	assert.False(t, counted)

	require.NoError(t, s.InsertPrediction(ctx, NewPlaceholder(14, ReasonMissingTeamStats)))
	_, err = s.ClaimGrading(ctx, 14, PredictionPending, nil, 1, 0)
	require.NoError(t, err)
	replaced, err = s.ReplacePlaceholder(ctx, computedPrediction(t, 14))
	require.NoError(t, err)
	assert.False(t, replaced, "graded placeholders stay as they are")
}

func TestMarkStatsCountedOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertPrediction(ctx, computedPrediction(t, 12)))

	first, err := s.MarkStatsCounted(ctx, 12)
	require.NoError(t, err)
	second, err := s.MarkStatsCounted(ctx, 12)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestClaimGradingOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertPrediction(ctx, computedPrediction(t, 13)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimGrading(ctx, 13, PredictionPartial, []string{FieldBTTS}, 1, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claims)

	p, err := s.FindPrediction(ctx, 13)
	require.NoError(t, err)
	assert.True(t, p.IsProcessed)
	assert.Equal(t, PredictionPartial, p.Status)
	assert.Equal(t, []string{FieldBTTS}, p.WinningFields)
	assert.Equal(t, 1, p.ActualHome)

	ps, err := s.FindPredictionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ps.WonTotal)
	assert.Equal(t, int64(1), ps.BTTSWon)
}

func TestClaimGradingRejectsUnknownFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertPrediction(ctx, computedPrediction(t, 15)))

	ok, err := s.ClaimGrading(ctx, 15, PredictionPartial, []string{"nope"}, 1, 0)
	assert.Error(t, err)
	assert.False(t, ok)

	p, err := s.FindPrediction(ctx, 15)
	require.NoError(t, err)
	assert.False(t, p.IsProcessed, "a failed grade leaves the row claimable")

	ok, err = s.ClaimGrading(ctx, 15, PredictionPartial, []string{FieldDoubleChance1X}, 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatsIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ps, err := s.FindPredictionStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, ps.SimulatedTotal)

	require.NoError(t, s.IncrementSimulated(ctx))
	require.NoError(t, s.IncrementSimulated(ctx))
	cols, err := wonColumns([]string{FieldBTTS, FieldOver25})
	require.NoError(t, err)
	require.NoError(t, incrementStats(ctx, s.db, cols))
	none, err := wonColumns(nil)
	require.NoError(t, err)
	require.NoError(t, incrementStats(ctx, s.db, none))
	_, err = wonColumns([]string{"nope"})
	assert.Error(t, err)

	ps, err = s.FindPredictionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ps.SimulatedTotal)
	assert.Equal(t, int64(1), ps.WonTotal)
	for _, f := range GradedFields {
		sim, _ := ps.FieldCounts(f)
		assert.Equal(t, int64(2), sim, f)
	}
	_, bttsWon := ps.FieldCounts(FieldBTTS)
	assert.Equal(t, int64(1), bttsWon)
	assert.Equal(t, 50.0, ps.WinRate(FieldBTTS))
	assert.Equal(t, 0.0, ps.WinRate(FieldCorners))
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cols, err := wonColumns([]string{FieldDoubleChance1X})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, incrementStats(ctx, s.db, cols))
		}()
	}
	wg.Wait()

	ps, err := s.FindPredictionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), ps.WonTotal)
	assert.Equal(t, int64(20), ps.DoubleChance1XWon)
}

func TestMatchQueriesAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	upcoming := NewMatch(1, 39, 2024)
	upcoming.HomeTeamID, upcoming.AwayTeamID = 1, 2
	upcoming.Kickoff = now.Add(24 * time.Hour).Unix()

	old := NewMatch(2, 39, 2024)
	old.HomeTeamID, old.AwayTeamID = 2, 1
	old.Kickoff = now.Add(-400 * 24 * time.Hour).Unix()
	old.Status, old.HomeGoals, old.AwayGoals = StatusFullTime, 2, 2

	require.NoError(t, s.Save(ctx, upcoming))
	require.NoError(t, s.Save(ctx, old))
	require.NoError(t, s.InsertPrediction(ctx, NewPlaceholder(2, ReasonMissingTeamStats)))

	without, err := s.FindMatchesWithoutPrediction(ctx, now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, without)

	finished, err := s.FindFinishedMatches(ctx, 39, 2024)
	require.NoError(t, err)
	require.Len(t, finished, 1)

	unprocessed, err := s.FindUnprocessedFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, unprocessed)

	before, err := s.FindMatchesBefore(ctx, now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, before, 1)

	deleted, err := s.DeleteMatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := s.FindMatch(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCronExecutionQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	for i, age := range []time.Duration{0, time.Hour, 40 * 24 * time.Hour} {
		require.NoError(t, s.Save(ctx, &CronExecution{
			ID:        string(rune('a' + i)),
			JobName:   JobSyncFixtures,
			StartedAt: now.Add(-age).UnixMilli(),
			Status:    ExecutionSuccess,
		}))
	}

	recent, err := s.RecentExecutions(ctx, JobSyncFixtures, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a", recent[0].ID)

	n, err := s.DeleteExecutionsBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

package podds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computedPrediction(t *testing.T, matchID int64) *MatchPrediction {
	t.Helper()
	c := testPredictor(5).Simulate(1.8, 1.1)
	return NewComputed(matchID, c)
}

func TestPlaceholderJSONHasNullOutcomes(t *testing.T) {
	p := NewPlaceholder(7, ReasonMissingTeamStats)

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.Equal(t, true, doc["isPlaceholder"])
	assert.Equal(t, "MISSING_TEAM_STATS", doc["placeholderReason"])
	assert.Equal(t, "pending", doc["status"])
	for _, key := range []string{"dixonColesParams", "modelPrediction", "simulations", "actualResult"} {
		v, ok := doc[key]
		assert.True(t, ok, "%s must be present", key)
		assert.Nil(t, v, "%s must be null", key)
	}

	outcomes, ok := doc["outcomes"].(map[string]any)
	require.True(t, ok, "outcomes must be an object of nulls")
	for _, key := range []string{"homeWin", "draw", "awayWin", "over25", "under25", "btts", "mostLikelyScore", "doubleChance1X", "over25Boolean"} {
		v, ok := outcomes[key]
		assert.True(t, ok, "outcomes.%s must be present", key)
		assert.Nil(t, v, "outcomes.%s must be null", key)
	}
}

func TestComputedJSONRoundTrip(t *testing.T) {
	p := computedPrediction(t, 9)
	p.ManualCorners = &ManualCorners{Prediction: "over", Threshold: 9.5}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var back MatchPrediction
	require.NoError(t, json.Unmarshal(b, &back))

	assert.False(t, back.IsPlaceholder())
	want, _ := p.Computed()
	got, ok := back.Computed()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, p.ManualCorners, back.ManualCorners)
	assert.Equal(t, -1, back.ActualHome)
}

func TestPlaceholderJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewPlaceholder(3, ReasonInsufficientTeamData))
	require.NoError(t, err)

	var back MatchPrediction
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.IsPlaceholder())
	assert.Equal(t, ReasonInsufficientTeamData, back.PlaceholderReason())
}

func TestIsCorrectOnlyOnExactScore(t *testing.T) {
	p := computedPrediction(t, 1)
	c, _ := p.Computed()
	c.Model.HomeScore, c.Model.AwayScore = 2, 1

	assert.Equal(t, PredictionCorrect, p.IsCorrect(2, 1))
	// right direction, wrong score
	assert.Equal(t, PredictionPartial, p.IsCorrect(3, 1))
	// wrong direction is still partial
	assert.Equal(t, PredictionPartial, p.IsCorrect(0, 4))

	assert.Equal(t, PredictionPending, NewPlaceholder(1, ReasonMissingTeamStats).IsCorrect(0, 0))
}

func TestWinningFields(t *testing.T) {
	p := computedPrediction(t, 1)
	tests := []struct {
		name       string
		home, away int
		want       []string
	}{
		{"home win", 2, 0, []string{FieldDoubleChance1X, FieldUnder25}},
		{"score draw", 1, 1, []string{FieldDoubleChance1X, FieldDoubleChanceX2, FieldBTTS, FieldUnder25}},
		{"away win high scoring", 1, 3, []string{FieldDoubleChanceX2, FieldBTTS, FieldOver25}},
		{"goalless", 0, 0, []string{FieldDoubleChance1X, FieldDoubleChanceX2, FieldUnder25}},
		{"three goals", 3, 0, []string{FieldDoubleChance1X, FieldOver25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.WinningFieldsFor(tt.home, tt.away, 0, false))
		})
	}
}

func TestCornersGrading(t *testing.T) {
	p := computedPrediction(t, 1)
	p.ManualCorners = &ManualCorners{Prediction: "over", Threshold: 9}

	assert.Contains(t, p.WinningFieldsFor(1, 0, 11, true), FieldCorners)
	assert.NotContains(t, p.WinningFieldsFor(1, 0, 9, true), FieldCorners, "threshold is strict")
	assert.NotContains(t, p.WinningFieldsFor(1, 0, 11, false), FieldCorners, "unknown corners never win")

	p.ManualCorners = &ManualCorners{Prediction: "under", Threshold: 9}
	assert.Contains(t, p.WinningFieldsFor(1, 0, 8, true), FieldCorners)
	assert.NotContains(t, p.WinningFieldsFor(1, 0, 9, true), FieldCorners)

	p.ManualCorners = nil
	assert.NotContains(t, p.WinningFieldsFor(1, 0, 20, true), FieldCorners)
}

func TestRecordRoundTrip(t *testing.T) {
	p := computedPrediction(t, 4)
	p.WinningFields = []string{FieldBTTS, FieldOver25}

	r, err := p.toRecord()
	require.NoError(t, err)
	assert.False(t, r.IsPlaceholder)
	assert.Equal(t, "btts,over25", r.WinningFields)

	back, err := r.toPrediction()
	require.NoError(t, err)
	assert.Equal(t, p.Result, back.Result)
	assert.Equal(t, p.WinningFields, back.WinningFields)

	ph, err := NewPlaceholder(4, ReasonMissingLeagueAverages).toRecord()
	require.NoError(t, err)
	assert.True(t, ph.IsPlaceholder)
	assert.Empty(t, ph.OutcomesJSON)
}

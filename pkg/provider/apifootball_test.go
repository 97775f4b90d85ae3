package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teamStatsBody = `{
  "get": "teams/statistics",
  "errors": [],
  "results": 11,
  "response": {
    "form": "wdlwwdwwlw",
    "fixtures": {
      "played": {"home": 5, "away": 5, "total": 10},
      "wins": {"total": 6},
      "draws": {"total": 2},
      "loses": {"total": 2}
    },
    "goals": {
      "for": {"total": {"total": 18}, "average": {"total": "1.8"}},
      "against": {"total": {"total": 9}, "average": {"total": "0.9"}}
    },
    "clean_sheet": {"total": 4},
    "failed_to_score": {"total": 1},
    "cards": {
      "yellow": {"0-15": {"total": 2, "percentage": "10%"}, "16-30": {"total": null, "percentage": null}, "76-90": {"total": 5}},
      "red": {"46-60": {"total": 1}}
    }
  }
}`

const fixturesBody = `{
  "errors": [],
  "results": 3,
  "response": [
    {
      "fixture": {"id": 100, "timestamp": 1723230000, "status": {"short": "FT"}},
      "league": {"id": 39, "season": 2024, "round": "Regular Season - 1"},
      "teams": {"home": {"id": 33}, "away": {"id": 36}},
      "goals": {"home": 1, "away": 0},
      "score": {"halftime": {"home": 0, "away": 0}}
    },
    {
      "fixture": {"id": 101, "timestamp": 1733230000, "status": {"short": "NS"}},
      "league": {"id": 39, "season": 2024, "round": "Regular Season - 15"},
      "teams": {"home": {"id": 40}, "away": {"id": 50}},
      "goals": {"home": null, "away": null},
      "score": {"halftime": {"home": null, "away": null}}
    },
    {
      "fixture": {"id": 102, "timestamp": 1733230000, "status": {"short": "TBD"}},
      "league": {"id": 39, "season": 2024},
      "teams": {"home": {"id": 0}, "away": {"id": 50}},
      "goals": {"home": null, "away": null}
    }
  ]
}`

const fixtureStatsBody = `{
  "errors": [],
  "response": [
    {"team": {"id": 33}, "statistics": [{"type": "Shots on Goal", "value": 6}, {"type": "Ball Possession", "value": "55%"}, {"type": "Corner Kicks", "value": 7}]},
    {"team": {"id": 36}, "statistics": [{"type": "Corner Kicks", "value": "4"}, {"type": "Passes %", "value": null}]}
  ]
}`

const teamBody = `{
  "errors": [],
  "response": [{"team": {"id": 33, "name": "Manchester United", "code": "MUN", "country": "England", "logo": "https://media.example/33.png"}}]
}`

func newTestProvider(t *testing.T, routes map[string]string) *APIFootball {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-apisports-key"))
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := podds.DefaultPoddsConfig()
	cfg.ProviderBaseURL = srv.URL + "/"
	cfg.ProviderAPIKey = "key"
	cfg.ProviderRatePerMinute = 0
	return New(cfg)
}

func TestFetchTeamStatistics(t *testing.T) {
	p := newTestProvider(t, map[string]string{"/teams/statistics": teamStatsBody})

	ts, err := p.FetchTeamStatistics(context.Background(), 33, 39, 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(33), ts.TeamID)
	assert.Equal(t, 10, ts.MatchesPlayed)
	assert.Equal(t, 6, ts.Wins)
	assert.Equal(t, 2, ts.Losses)
	assert.Equal(t, 18, ts.GoalsFor)
	assert.Equal(t, 1.8, ts.GoalsForAvg)
	assert.Equal(t, 0.9, ts.GoalsAgainstAvg)
	assert.Equal(t, 1.8, ts.XG)
	assert.Equal(t, 0.9, ts.XGA)
	assert.Equal(t, "WWLW", ts.Form[1:])
	assert.Len(t, ts.Form, 5)
	assert.Equal(t, 7, ts.YellowCards)
	assert.Equal(t, 1, ts.RedCards)
	assert.Equal(t, 4, ts.CleanSheets)
}

func TestFetchFixtures(t *testing.T) {
	p := newTestProvider(t, map[string]string{"/fixtures": fixturesBody})

	matches, err := p.FetchFixtures(context.Background(), 39, 2024)
	require.NoError(t, err)
	require.Len(t, matches, 2, "fixtures without both teams are skipped")

	played := matches[0]
	assert.Equal(t, int64(100), played.ID)
	assert.True(t, played.IsFinished())
	assert.Equal(t, 1, played.HomeGoals)
	assert.Equal(t, 0, played.HalfTimeAwayGoals)
	assert.Equal(t, -1, played.HomeCorners)

	upcoming := matches[1]
	assert.Equal(t, podds.StatusNotStarted, upcoming.Status)
	assert.Equal(t, -1, upcoming.HomeGoals)
	assert.Equal(t, -1, upcoming.HalfTimeHomeGoals)
	assert.Equal(t, int64(1733230000), upcoming.Kickoff)
	assert.Equal(t, "Regular Season - 15", upcoming.Round)
}

func TestFetchFixtureStatistics(t *testing.T) {
	p := newTestProvider(t, map[string]string{"/fixtures/statistics": fixtureStatsBody})

	home, away, err := p.FetchFixtureStatistics(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 7, home)
	assert.Equal(t, 4, away)
}

func TestFetchFixtureStatisticsNotYetAvailable(t *testing.T) {
	p := newTestProvider(t, map[string]string{"/fixtures/statistics": `{"errors": [], "response": []}`})

	home, away, err := p.FetchFixtureStatistics(context.Background(), 100)
	assert.ErrorIs(t, err, ErrNoStatistics)
	assert.Equal(t, -1, home)
	assert.Equal(t, -1, away)
}

func TestFetchTeamDetails(t *testing.T) {
	p := newTestProvider(t, map[string]string{"/teams": teamBody})

	team, err := p.FetchTeamDetails(context.Background(), 33)
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Equal(t, "Manchester United", team.Name)
	assert.Equal(t, "MUN", team.ShortName)

	empty := newTestProvider(t, map[string]string{"/teams": `{"errors": [], "response": []}`})
	team, err = empty.FetchTeamDetails(context.Background(), 34)
	assert.NoError(t, err)
	assert.Nil(t, team)
}

func TestErrorsPayloadBecomesError(t *testing.T) {
	p := newTestProvider(t, map[string]string{
		"/fixtures": `{"errors": {"requests": "You have reached the request limit for the day"}, "response": []}`,
	})

	_, err := p.FetchFixtures(context.Background(), 39, 2024)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "request limit")
}

func TestHTTPFailureSurfaces(t *testing.T) {
	p := newTestProvider(t, map[string]string{})

	_, err := p.FetchTeamStatistics(context.Background(), 1, 39, 2024)
	var se *transport.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestDecodeErrors(t *testing.T) {
	assert.Empty(t, decodeErrors(nil))
	assert.Empty(t, decodeErrors([]byte(`[]`)))
	assert.Equal(t, map[string]string{"token": "bad"}, decodeErrors([]byte(`{"token":"bad"}`)))
	assert.Equal(t, map[string]string{"0": "oops"}, decodeErrors([]byte(`["oops"]`)))
}

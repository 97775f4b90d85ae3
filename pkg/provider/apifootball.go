// Package provider fetches fixtures, teams and statistics from an
// API-Football v3 compatible endpoint.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/transport"
)

// Compile-time check to ensure APIFootball implements podds.Provider
var _ podds.Provider = (*APIFootball)(nil)

// ErrNoStatistics is returned when a fixture has no corner statistics yet
var ErrNoStatistics = errors.New("fixture statistics not available")

// APIError carries the errors object of an otherwise successful response
type APIError struct {
	Endpoint string
	Messages map[string]string
}

func (e *APIError) Error() string {
	keys := make([]string, 0, len(e.Messages))
	for k := range e.Messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Messages[k])
	}
	return fmt.Sprintf("provider error from %s: %s", e.Endpoint, strings.Join(parts, "; "))
}

// APIFootball is the provider client
type APIFootball struct {
	baseURL string
	client  *transport.Client
}

// New returns a client for cfg's provider settings
func New(cfg *podds.PoddsConfig) *APIFootball {
	client := transport.NewClient(transport.Options{
		Timeout:       30 * time.Second,
		RatePerMinute: cfg.ProviderRatePerMinute,
		Headers:       map[string]string{"x-apisports-key": cfg.ProviderAPIKey},
	})
	return NewWithClient(cfg.ProviderBaseURL, client)
}

// NewWithClient returns a provider using an existing transport client
func NewWithClient(baseURL string, client *transport.Client) *APIFootball {
	return &APIFootball{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// envelope is the wrapper every endpoint responds with
type envelope struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

// get calls endpoint and decodes its response member into out
func (p *APIFootball) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := p.baseURL + endpoint + "?" + params.Encode()
	logger.Debug("Provider request", u)

	var env envelope
	if err := p.client.GetJSON(ctx, u, &env); err != nil {
		return err
	}
	if msgs := decodeErrors(env.Errors); len(msgs) > 0 {
		return &APIError{Endpoint: endpoint, Messages: msgs}
	}
	if len(env.Response) == 0 {
		return fmt.Errorf("provider response from %s has no body", endpoint)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// decodeErrors accepts both shapes the errors member takes: an empty array
// or an object of name to message
func decodeErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make(map[string]string, len(obj))
		for k, v := range obj {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		out := make(map[string]string, len(list))
		for i, v := range list {
			out[strconv.Itoa(i)] = fmt.Sprint(v)
		}
		return out
	}
	return nil
}

/////////////////////////////////////////////////////////////////////////
////// Team statistics
/////////////////////////////////////////////////////////////////////////

type split struct {
	Total *int `json:"total"`
}

type goalSide struct {
	Total   split `json:"total"`
	Average struct {
		Total flexFloat `json:"total"`
	} `json:"average"`
}

type teamStatisticsResponse struct {
	Form     string `json:"form"`
	Fixtures struct {
		Played split `json:"played"`
		Wins   split `json:"wins"`
		Draws  split `json:"draws"`
		Loses  split `json:"loses"`
	} `json:"fixtures"`
	Goals struct {
		For     goalSide `json:"for"`
		Against goalSide `json:"against"`
	} `json:"goals"`
	CleanSheet    split `json:"clean_sheet"`
	FailedToScore split `json:"failed_to_score"`
	Cards         struct {
		Yellow map[string]split `json:"yellow"`
		Red    map[string]split `json:"red"`
	} `json:"cards"`
}

// FetchTeamStatistics returns a team's season record in a league
func (p *APIFootball) FetchTeamStatistics(ctx context.Context, teamID, leagueID int64, season int) (*podds.TeamStatistics, error) {
	params := url.Values{}
	params.Set("team", strconv.FormatInt(teamID, 10))
	params.Set("league", strconv.FormatInt(leagueID, 10))
	params.Set("season", strconv.Itoa(season))

	var r teamStatisticsResponse
	if err := p.get(ctx, "/teams/statistics", params, &r); err != nil {
		return nil, fmt.Errorf("team statistics %d/%d/%d: %w", teamID, leagueID, season, err)
	}

	ts := &podds.TeamStatistics{
		TeamID:          teamID,
		LeagueID:        leagueID,
		Season:          season,
		MatchesPlayed:   r.Fixtures.Played.value(),
		Wins:            r.Fixtures.Wins.value(),
		Draws:           r.Fixtures.Draws.value(),
		Losses:          r.Fixtures.Loses.value(),
		GoalsFor:        r.Goals.For.Total.value(),
		GoalsAgainst:    r.Goals.Against.Total.value(),
		GoalsForAvg:     float64(r.Goals.For.Average.Total),
		GoalsAgainstAvg: float64(r.Goals.Against.Average.Total),
		Form:            lastResults(r.Form, 5),
		CleanSheets:     r.CleanSheet.value(),
		FailedToScore:   r.FailedToScore.value(),
		YellowCards:     sumBuckets(r.Cards.Yellow),
		RedCards:        sumBuckets(r.Cards.Red),
	}
	// no xG on this plan, goal averages stand in
	ts.XG, ts.XGA = ts.GoalsForAvg, ts.GoalsAgainstAvg
	return ts, nil
}

func (s split) value() int {
	if s.Total == nil {
		return 0
	}
	return *s.Total
}

func sumBuckets(buckets map[string]split) int {
	n := 0
	for _, b := range buckets {
		n += b.value()
	}
	return n
}

// lastResults keeps the n most recent results of a season form string
func lastResults(form string, n int) string {
	form = strings.ToUpper(strings.TrimSpace(form))
	if len(form) > n {
		return form[len(form)-n:]
	}
	return form
}

// flexFloat decodes numbers that arrive as JSON numbers, strings or
// percentages. Anything else reads as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSuffix(strings.Trim(string(b), `"`), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}

/////////////////////////////////////////////////////////////////////////
////// Fixtures
/////////////////////////////////////////////////////////////////////////

type fixtureResponse struct {
	Fixture struct {
		ID        int64 `json:"id"`
		Timestamp int64 `json:"timestamp"`
		Status    struct {
			Short string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     int64  `json:"id"`
		Season int    `json:"season"`
		Round  string `json:"round"`
	} `json:"league"`
	Teams struct {
		Home struct {
			ID int64 `json:"id"`
		} `json:"home"`
		Away struct {
			ID int64 `json:"id"`
		} `json:"away"`
	} `json:"teams"`
	Goals score `json:"goals"`
	Score struct {
		Halftime score `json:"halftime"`
	} `json:"score"`
}

type score struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

func orUnknown(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// FetchFixtures returns every fixture of a league season
func (p *APIFootball) FetchFixtures(ctx context.Context, leagueID int64, season int) ([]*podds.Match, error) {
	params := url.Values{}
	params.Set("league", strconv.FormatInt(leagueID, 10))
	params.Set("season", strconv.Itoa(season))

	var rows []fixtureResponse
	if err := p.get(ctx, "/fixtures", params, &rows); err != nil {
		return nil, fmt.Errorf("fixtures %d/%d: %w", leagueID, season, err)
	}

	matches := make([]*podds.Match, 0, len(rows))
	for _, r := range rows {
		if r.Fixture.ID <= 0 || r.Teams.Home.ID <= 0 || r.Teams.Away.ID <= 0 {
			logger.Warn("Skipping incomplete fixture", r.Fixture.ID)
			continue
		}
		m := podds.NewMatch(r.Fixture.ID, leagueID, season)
		m.Round = r.League.Round
		m.Kickoff = r.Fixture.Timestamp
		if r.Fixture.Status.Short != "" {
			m.Status = r.Fixture.Status.Short
		}
		m.HomeTeamID, m.AwayTeamID = r.Teams.Home.ID, r.Teams.Away.ID
		m.HomeGoals, m.AwayGoals = orUnknown(r.Goals.Home), orUnknown(r.Goals.Away)
		m.HalfTimeHomeGoals = orUnknown(r.Score.Halftime.Home)
		m.HalfTimeAwayGoals = orUnknown(r.Score.Halftime.Away)
		matches = append(matches, m)
	}
	return matches, nil
}

type fixtureStatisticsResponse struct {
	Team struct {
		ID int64 `json:"id"`
	} `json:"team"`
	Statistics []struct {
		Type  string    `json:"type"`
		Value flexFloat `json:"value"`
	} `json:"statistics"`
}

// FetchFixtureStatistics returns the corners each side won. The home side is listed first.
func (p *APIFootball) FetchFixtureStatistics(ctx context.Context, fixtureID int64) (int, int, error) {
	params := url.Values{}
	params.Set("fixture", strconv.FormatInt(fixtureID, 10))

	var rows []fixtureStatisticsResponse
	if err := p.get(ctx, "/fixtures/statistics", params, &rows); err != nil {
		return -1, -1, fmt.Errorf("fixture statistics %d: %w", fixtureID, err)
	}
	if len(rows) < 2 {
		return -1, -1, ErrNoStatistics
	}
	home, okHome := corners(rows[0])
	away, okAway := corners(rows[1])
	if !okHome || !okAway {
		return -1, -1, ErrNoStatistics
	}
	return home, away, nil
}

func corners(r fixtureStatisticsResponse) (int, bool) {
	for _, s := range r.Statistics {
		if strings.EqualFold(s.Type, "Corner Kicks") {
			return int(s.Value), true
		}
	}
	return 0, false
}

/////////////////////////////////////////////////////////////////////////
////// Teams
/////////////////////////////////////////////////////////////////////////

type teamResponse struct {
	Team struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Code    string `json:"code"`
		Country string `json:"country"`
		Logo    string `json:"logo"`
	} `json:"team"`
}

// FetchTeamDetails returns a team's name and badge. (nil, nil) when the provider does not know it.
func (p *APIFootball) FetchTeamDetails(ctx context.Context, teamID int64) (*podds.Team, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(teamID, 10))

	var rows []teamResponse
	if err := p.get(ctx, "/teams", params, &rows); err != nil {
		return nil, fmt.Errorf("team %d: %w", teamID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].Team
	return &podds.Team{
		ID:        teamID,
		Name:      t.Name,
		ShortName: t.Code,
		Country:   t.Country,
		Logo:      t.Logo,
	}, nil
}

// Package podds estimates football match outcomes with a bivariate Poisson
// model and keeps one prediction per match consistent with the fixtures,
// team statistics and results it is fed.
package podds

import (
	"context"
	"strconv"
	"time"
)

// Cache is a best-effort byte cache. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Provider fetches fixtures, teams and statistics from the upstream data source
type Provider interface {
	FetchTeamStatistics(ctx context.Context, teamID, leagueID int64, season int) (*TeamStatistics, error)
	FetchFixtures(ctx context.Context, leagueID int64, season int) ([]*Match, error)
	FetchTeamDetails(ctx context.Context, teamID int64) (*Team, error)
	FetchFixtureStatistics(ctx context.Context, fixtureID int64) (homeCorners, awayCorners int, err error)
}

// predictionCacheKey is the cache key holding a match's prediction
func predictionCacheKey(matchID int64) string {
	return "match_prediction:" + strconv.FormatInt(matchID, 10)
}

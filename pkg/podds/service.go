package podds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Repository is the persistence the prediction service depends on. *Store implements it.
type Repository interface {
	Save(ctx context.Context, obj Persistable) error

	FindMatch(ctx context.Context, id int64) (*Match, error)
	FindMatchesByLeagueSeason(ctx context.Context, leagueID int64, season int) ([]*Match, error)
	FindFinishedMatches(ctx context.Context, leagueID int64, season int) ([]*Match, error)
	FindTeam(ctx context.Context, id int64) (*Team, error)
	FindTeamStatistics(ctx context.Context, teamID, leagueID int64, season int) (*TeamStatistics, error)
	FindLeagueAverages(ctx context.Context, leagueID int64, season int) (*LeagueAverages, error)

	FindPrediction(ctx context.Context, matchID int64) (*MatchPrediction, error)
	InsertPrediction(ctx context.Context, p *MatchPrediction) error
	ReplacePlaceholder(ctx context.Context, p *MatchPrediction) (bool, error)
	MarkStatsCounted(ctx context.Context, matchID int64) (bool, error)
	ClaimGrading(ctx context.Context, matchID int64, status PredictionStatus, winningFields []string, homeGoals, awayGoals int) (bool, error)
	SetManualCorners(ctx context.Context, matchID int64, mc ManualCorners) (bool, error)

	IncrementSimulated(ctx context.Context) error
	FindPredictionStats(ctx context.Context) (*PredictionStats, error)
}

var _ Repository = (*Store)(nil)

// Service generates, stores and grades match predictions
type Service struct {
	cfg       *PoddsConfig
	repo      Repository
	cache     Cache
	refresher *StatsRefresher
	group     singleflight.Group
}

// NewService wires the prediction service. cache and provider may be nil.
func NewService(cfg *PoddsConfig, repo Repository, cache Cache, provider Provider) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		cache:     cache,
		refresher: NewStatsRefresher(cfg, repo, provider),
	}
}

// Refresher exposes the statistics refresher the service uses
func (s *Service) Refresher() *StatsRefresher {
	return s.refresher
}

/////////////////////////////////////////////////////////////////////////
////// Get or generate
/////////////////////////////////////////////////////////////////////////

// GetOrGenerate returns the prediction for a match, creating it on first use.
// It returns (nil, nil) when the match or either team is unknown. Placeholders
// are valid results. Concurrent callers for one match share a single generation.
func (s *Service) GetOrGenerate(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(matchID, 10), func() (any, error) {
		return s.getOrGenerate(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*MatchPrediction)
	return p, nil
}

func (s *Service) getOrGenerate(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	if p := s.cached(ctx, matchID); p != nil {
		return p, nil
	}

	stored, err := s.repo.FindPrediction(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load prediction for match %d: %w", matchID, err)
	}
	if stored != nil {
		return stored, nil
	}

	p, err := s.build(ctx, matchID)
	if err != nil || p == nil {
		return nil, err
	}

	if err := s.repo.InsertPrediction(ctx, p); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("store prediction for match %d: %w", matchID, err)
		}
		// someone else won the race, theirs is the prediction
		logger.Debug("Prediction already stored by another writer", matchID)
		return s.repo.FindPrediction(ctx, matchID)
	}

	if !p.IsPlaceholder() {
		s.countSimulated(ctx, p)
		s.store(ctx, p)
	}
	return p, nil
}

// Regenerate rebuilds a placeholder prediction in place. Computed predictions
// are returned untouched and a missing prediction is generated as usual. It
// shares GetOrGenerate's per-match flight.
func (s *Service) Regenerate(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(matchID, 10), func() (any, error) {
		return s.regenerate(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*MatchPrediction)
	return p, nil
}

func (s *Service) regenerate(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	stored, err := s.repo.FindPrediction(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load prediction for match %d: %w", matchID, err)
	}
	if stored == nil {
		return s.getOrGenerate(ctx, matchID)
	}
	if !stored.IsPlaceholder() || stored.IsProcessed {
		return stored, nil
	}

	p, err := s.build(ctx, matchID)
	if err != nil || p == nil {
		return stored, err
	}
	if p.IsPlaceholder() && p.PlaceholderReason() == stored.PlaceholderReason() {
		return stored, nil
	}

	replaced, err := s.repo.ReplacePlaceholder(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("update prediction for match %d: %w", matchID, err)
	}
	if !replaced {
		// upgraded or graded elsewhere since we looked
		return s.repo.FindPrediction(ctx, matchID)
	}
	p.CreatedAt = stored.CreatedAt
	p.ManualCorners = stored.ManualCorners
	if !p.IsPlaceholder() {
		logger.Info("Placeholder prediction upgraded", matchID)
		s.countSimulated(ctx, p)
		s.store(ctx, p)
	}
	return p, nil
}

// build gathers the model inputs for a match and either simulates it or
// explains with a placeholder why it cannot. (nil, nil) means the match or a
// team is unknown.
func (s *Service) build(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	match, err := s.repo.FindMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", matchID, err)
	}
	if match == nil {
		logger.Warn("No match found for prediction", matchID)
		return nil, nil
	}

	home, err := s.repo.FindTeam(ctx, match.HomeTeamID)
	if err != nil {
		return nil, fmt.Errorf("load home team %d: %w", match.HomeTeamID, err)
	}
	away, err := s.repo.FindTeam(ctx, match.AwayTeamID)
	if err != nil {
		return nil, fmt.Errorf("load away team %d: %w", match.AwayTeamID, err)
	}
	if home == nil || away == nil {
		logger.Warn("Missing team for match, no prediction possible", matchID, match.HomeTeamID, match.AwayTeamID)
		return nil, nil
	}

	homeStats, err := s.teamStats(ctx, match.HomeTeamID, match.LeagueID, match.Season)
	if err != nil {
		return nil, err
	}
	awayStats, err := s.teamStats(ctx, match.AwayTeamID, match.LeagueID, match.Season)
	if err != nil {
		return nil, err
	}
	if homeStats == nil || awayStats == nil {
		logger.Inform("Team statistics missing, storing placeholder", matchID)
		return NewPlaceholder(matchID, ReasonMissingTeamStats), nil
	}

	if homeStats.IsInsufficient() {
		if homeStats, err = s.previousSeasonFallback(ctx, homeStats); err != nil {
			return nil, err
		}
	}
	if awayStats.IsInsufficient() {
		if awayStats, err = s.previousSeasonFallback(ctx, awayStats); err != nil {
			return nil, err
		}
	}
	if homeStats.IsInsufficient() || awayStats.IsInsufficient() {
		logger.Inform("Team statistics too thin, storing placeholder", matchID)
		return NewPlaceholder(matchID, ReasonInsufficientTeamData), nil
	}

	averages, err := s.refresher.LeagueAverages(ctx, match.LeagueID, match.Season)
	if err != nil {
		return nil, err
	}
	if averages == nil {
		logger.Inform("League averages unavailable, storing placeholder", matchID, match.LeagueID)
		return NewPlaceholder(matchID, ReasonMissingLeagueAverages), nil
	}

	computed, err := NewPredictor(s.cfg, s.newRand(matchID)).Predict(homeStats, awayStats)
	if err != nil {
		return nil, err
	}
	logger.Info("Prediction computed", matchID, home.Name, computed.Model.HomeScore, away.Name, computed.Model.AwayScore)
	return NewComputed(matchID, computed), nil
}

// teamStats looks statistics up, refreshing once from the provider when absent
func (s *Service) teamStats(ctx context.Context, teamID, leagueID int64, season int) (*TeamStatistics, error) {
	ts, err := s.repo.FindTeamStatistics(ctx, teamID, leagueID, season)
	if err != nil {
		return nil, fmt.Errorf("load statistics for team %d: %w", teamID, err)
	}
	if ts != nil {
		return ts, nil
	}
	if _, err := s.refresher.EnsureTeamStats(ctx, teamID, leagueID, season); err != nil {
		logger.Warn("On demand statistics refresh failed", teamID, err)
	}
	ts, err = s.repo.FindTeamStatistics(ctx, teamID, leagueID, season)
	if err != nil {
		return nil, fmt.Errorf("load statistics for team %d: %w", teamID, err)
	}
	return ts, nil
}

// previousSeasonFallback swaps thin statistics for last season's when those are usable
func (s *Service) previousSeasonFallback(ctx context.Context, current *TeamStatistics) (*TeamStatistics, error) {
	prev, err := s.teamStats(ctx, current.TeamID, current.LeagueID, current.Season-1)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.IsInsufficient() {
		return current, nil
	}
	logger.Debug("Using previous season statistics", current.TeamID, prev.Season)
	return prev, nil
}

// countSimulated bumps the simulated counters once per match
func (s *Service) countSimulated(ctx context.Context, p *MatchPrediction) {
	ok, err := s.repo.MarkStatsCounted(ctx, p.MatchID)
	if err != nil {
		logger.Error("Failed to mark prediction counted", p.MatchID, err)
		return
	}
	if !ok {
		return
	}
	p.StatsCounted = true
	if err := s.repo.IncrementSimulated(ctx); err != nil {
		logger.Error("Failed to increment simulated stats", p.MatchID, err)
	}
}

// newRand seeds per match when a seed is configured so runs are repeatable
func (s *Service) newRand(matchID int64) *rand.Rand {
	if s.cfg.SimulationSeed != 0 {
		return rand.New(rand.NewSource(s.cfg.SimulationSeed + matchID))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano() ^ matchID))
}

/////////////////////////////////////////////////////////////////////////
////// Batch
/////////////////////////////////////////////////////////////////////////

// GenerateForMatches predicts many matches, BatchSize at a time. A failing or
// panicking item is logged and skipped. Results keep input order.
func (s *Service) GenerateForMatches(ctx context.Context, matchIDs []int64) []*MatchPrediction {
	results := make([]*MatchPrediction, len(matchIDs))
	batch := s.cfg.BatchSize
	if batch < 1 {
		batch = 1
	}

	failed := 0
	errs := make([]error, len(matchIDs))
	for start := 0; start < len(matchIDs); start += batch {
		end := min(start+batch, len(matchIDs))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i], errs[i] = s.safeGetOrGenerate(ctx, matchIDs[i])
				return nil
			})
		}
		_ = g.Wait()

		for i := start; i < end; i++ {
			if errs[i] != nil {
				failed++
				logger.Error("Prediction failed", matchIDs[i], errs[i])
			}
		}
	}

	out := make([]*MatchPrediction, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, p)
		}
	}
	logger.Info("Batch prediction finished", "requested", len(matchIDs), "produced", len(out), "failed", failed)
	return out
}

func (s *Service) safeGetOrGenerate(ctx context.Context, matchID int64) (p *MatchPrediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic predicting match %d: %v", matchID, r)
		}
	}()
	return s.GetOrGenerate(ctx, matchID)
}

/////////////////////////////////////////////////////////////////////////
////// Grading
/////////////////////////////////////////////////////////////////////////

// ProcessMatch grades a finished match's prediction exactly once and updates
// the running stats. It returns (nil, nil) when there is no prediction.
func (s *Service) ProcessMatch(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	p, err := s.repo.FindPrediction(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load prediction for match %d: %w", matchID, err)
	}
	if p == nil || p.IsProcessed {
		return p, nil
	}

	match, err := s.repo.FindMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", matchID, err)
	}
	if match == nil || !match.IsFinished() {
		return p, nil
	}

	status := p.Status
	var won []string
	if !p.IsPlaceholder() {
		corners, hasCorners := match.CornersTotal()
		status = p.IsCorrect(match.HomeGoals, match.AwayGoals)
		won = p.WinningFieldsFor(match.HomeGoals, match.AwayGoals, corners, hasCorners)
	}

	claimed, err := s.repo.ClaimGrading(ctx, matchID, status, won, match.HomeGoals, match.AwayGoals)
	if err != nil {
		return nil, err
	}
	if claimed {
		logger.Info("Prediction graded", matchID, match.ScoreString(), string(status), strings.Join(won, ","))
	}

	s.evict(ctx, matchID)
	return s.repo.FindPrediction(ctx, matchID)
}

// SetManualCorners records an operator corners pick ("over" or "under" a threshold)
// on an ungraded prediction.
func (s *Service) SetManualCorners(ctx context.Context, matchID int64, direction string, threshold float64) (*MatchPrediction, error) {
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "over" && direction != "under" {
		return nil, fmt.Errorf("corner prediction must be over or under, got %q", direction)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("corner threshold must be positive, got %v", threshold)
	}

	p, err := s.repo.FindPrediction(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrNotFound)
	}
	if p.IsProcessed {
		return nil, fmt.Errorf("prediction for match %d is already graded", matchID)
	}

	if _, err := s.repo.SetManualCorners(ctx, matchID, ManualCorners{Prediction: direction, Threshold: threshold}); err != nil {
		return nil, err
	}
	s.evict(ctx, matchID)
	return s.repo.FindPrediction(ctx, matchID)
}

// Stats returns the global prediction tally
func (s *Service) Stats(ctx context.Context) (*PredictionStats, error) {
	return s.repo.FindPredictionStats(ctx)
}

/////////////////////////////////////////////////////////////////////////
////// Cache
/////////////////////////////////////////////////////////////////////////

// cached returns a cached prediction, nil on miss or any cache trouble
func (s *Service) cached(ctx context.Context, matchID int64) *MatchPrediction {
	if s.cache == nil || !s.cfg.CacheEnabled {
		return nil
	}
	b, ok, err := s.cache.Get(ctx, predictionCacheKey(matchID))
	if err != nil {
		logger.Warn("Cache read failed", matchID, err)
		return nil
	}
	if !ok {
		return nil
	}
	var p MatchPrediction
	if err := json.Unmarshal(b, &p); err != nil {
		logger.Warn("Discarding unreadable cache entry", matchID, err)
		return nil
	}
	return &p
}

// store writes a computed prediction through to the cache
func (s *Service) store(ctx context.Context, p *MatchPrediction) {
	if s.cache == nil || !s.cfg.CacheEnabled {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		logger.Warn("Failed to encode prediction for cache", p.MatchID, err)
		return
	}
	if err := s.cache.Set(ctx, predictionCacheKey(p.MatchID), b, s.cfg.CacheTTL); err != nil {
		logger.Warn("Cache write failed", p.MatchID, err)
		return
	}

	// a grade landing between insert and this write must not leave a pending copy
	current, err := s.repo.FindPrediction(ctx, p.MatchID)
	if err != nil || current == nil || current.IsProcessed {
		s.evict(ctx, p.MatchID)
	}
}

func (s *Service) evict(ctx context.Context, matchID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, predictionCacheKey(matchID)); err != nil {
		logger.Warn("Cache delete failed", matchID, err)
	}
}

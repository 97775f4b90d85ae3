package podds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PredictionStatus is the grading state of a prediction
type PredictionStatus string

const (
	PredictionPending PredictionStatus = "pending"
	PredictionCorrect PredictionStatus = "correct"
	PredictionPartial PredictionStatus = "partial"
)

// PlaceholderReason says why no prediction could be computed
type PlaceholderReason string

const (
	ReasonMissingTeamStats      PlaceholderReason = "MISSING_TEAM_STATS"
	ReasonInsufficientTeamData  PlaceholderReason = "INSUFFICIENT_TEAM_DATA"
	ReasonMissingLeagueAverages PlaceholderReason = "MISSING_LEAGUE_AVERAGES"
)

// Graded fields, in the order they are reported
const (
	FieldDoubleChance1X = "doubleChance1X"
	FieldDoubleChanceX2 = "doubleChanceX2"
	FieldBTTS           = "btts"
	FieldOver25         = "over25"
	FieldUnder25        = "under25"
	FieldCorners        = "corners"
)

// GradedFields is the fixed set of fields tracked in PredictionStats
var GradedFields = []string{FieldDoubleChance1X, FieldDoubleChanceX2, FieldBTTS, FieldOver25, FieldUnder25, FieldCorners}

// DixonColesParams are the model inputs a prediction was computed with
type DixonColesParams struct {
	Lambda1      float64 `json:"lambda1"`
	Lambda2      float64 `json:"lambda2"`
	Lambda3      float64 `json:"lambda3"`
	Rho          float64 `json:"rho"`
	ModelVersion string  `json:"modelVersion"`
}

// ModelPrediction is the headline score line
type ModelPrediction struct {
	HomeScore  int     `json:"homeScore"`
	AwayScore  int     `json:"awayScore"`
	Confidence float64 `json:"confidence"`
}

// GoalLine is one rung of the over/under ladder
type GoalLine struct {
	Line  float64 `json:"line"`
	Over  float64 `json:"over"`
	Under float64 `json:"under"`
}

// Outcomes is the full probability surface in percent
type Outcomes struct {
	HomeWin float64 `json:"homeWin"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"awayWin"`

	GoalLines []GoalLine `json:"goalLines"`
	Over25    float64    `json:"over25"`
	Under25   float64    `json:"under25"`

	BTTS   float64 `json:"btts"`
	BTTSNo float64 `json:"bttsNo"`

	DoubleChance1X float64 `json:"doubleChance1X"`
	DoubleChance12 float64 `json:"doubleChance12"`
	DoubleChanceX2 float64 `json:"doubleChanceX2"`

	MostLikelyScore            string  `json:"mostLikelyScore"`
	MostLikelyScoreProbability float64 `json:"mostLikelyScoreProbability"`

	HomeCleanSheet float64 `json:"homeCleanSheet"`
	AwayCleanSheet float64 `json:"awayCleanSheet"`

	HomeWinBoolean bool `json:"homeWinBoolean"`
	DrawBoolean    bool `json:"drawBoolean"`
	AwayWinBoolean bool `json:"awayWinBoolean"`
	Over25Boolean  bool `json:"over25Boolean"`
	Under25Boolean bool `json:"under25Boolean"`
}

// SimulationSample is one raw (home, away) draw kept for inspection
type SimulationSample struct {
	HomeGoals int `json:"homeGoals"`
	AwayGoals int `json:"awayGoals"`
}

// Result is either a *Placeholder or a *Computed prediction
type Result interface {
	isResult()
}

// Placeholder stands in for a prediction whose inputs are not available yet
type Placeholder struct {
	Reason PlaceholderReason
}

// Computed is a simulated prediction
type Computed struct {
	Params      DixonColesParams
	Model       ModelPrediction
	Outcomes    Outcomes
	Simulations []SimulationSample
}

func (*Placeholder) isResult() {}
func (*Computed) isResult()    {}

// ManualCorners is an operator supplied corners pick
type ManualCorners struct {
	Prediction string  `json:"cornerPrediction"` // "over" or "under"
	Threshold  float64 `json:"cornerThreshold"`
}

// MatchPrediction is the single prediction held for a match
type MatchPrediction struct {
	MatchID       int64
	Result        Result
	Status        PredictionStatus
	IsProcessed   bool
	StatsCounted  bool
	ManualCorners *ManualCorners
	WinningFields []string
	ActualHome    int
	ActualAway    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPlaceholder builds an ungraded placeholder prediction
func NewPlaceholder(matchID int64, reason PlaceholderReason) *MatchPrediction {
	return &MatchPrediction{
		MatchID:    matchID,
		Result:     &Placeholder{Reason: reason},
		Status:     PredictionPending,
		ActualHome: -1,
		ActualAway: -1,
	}
}

// NewComputed builds an ungraded computed prediction
func NewComputed(matchID int64, c *Computed) *MatchPrediction {
	return &MatchPrediction{
		MatchID:    matchID,
		Result:     c,
		Status:     PredictionPending,
		ActualHome: -1,
		ActualAway: -1,
	}
}

// IsPlaceholder reports whether no prediction could be computed
func (p *MatchPrediction) IsPlaceholder() bool {
	_, ok := p.Result.(*Placeholder)
	return ok
}

// PlaceholderReason returns the reason, empty for computed predictions
func (p *MatchPrediction) PlaceholderReason() PlaceholderReason {
	if ph, ok := p.Result.(*Placeholder); ok {
		return ph.Reason
	}
	return ""
}

// Computed returns the computed result when there is one
func (p *MatchPrediction) Computed() (*Computed, bool) {
	c, ok := p.Result.(*Computed)
	return c, ok
}

/////////////////////////////////////////////////////////////////////////
////// Grading
/////////////////////////////////////////////////////////////////////////

// IsCorrect grades the prediction against the final score.
// Known quirk: anything short of the exact score is "partial", even when the
// 1X2 direction was wrong. Kept as is until the intended grading is settled.
func (p *MatchPrediction) IsCorrect(homeGoals, awayGoals int) PredictionStatus {
	c, ok := p.Computed()
	if !ok {
		return PredictionPending
	}
	if c.Model.HomeScore == homeGoals && c.Model.AwayScore == awayGoals {
		return PredictionCorrect
	}
	return PredictionPartial
}

// WinningFieldsFor evaluates each graded field against the final result.
// corners is the actual corner total and hasCorners says whether it is known.
func (p *MatchPrediction) WinningFieldsFor(homeGoals, awayGoals, corners int, hasCorners bool) []string {
	var won []string
	if homeGoals >= awayGoals {
		won = append(won, FieldDoubleChance1X)
	}
	if awayGoals >= homeGoals {
		won = append(won, FieldDoubleChanceX2)
	}
	if homeGoals > 0 && awayGoals > 0 {
		won = append(won, FieldBTTS)
	}
	total := float64(homeGoals + awayGoals)
	if total > 2.5 {
		won = append(won, FieldOver25)
	}
	if total < 2.5 {
		won = append(won, FieldUnder25)
	}
	if mc := p.ManualCorners; mc != nil && hasCorners {
		c := float64(corners)
		switch strings.ToLower(mc.Prediction) {
		case "over":
			if c > mc.Threshold {
				won = append(won, FieldCorners)
			}
		case "under":
			if c < mc.Threshold {
				won = append(won, FieldCorners)
			}
		}
	}
	return won
}

/////////////////////////////////////////////////////////////////////////
////// JSON
/////////////////////////////////////////////////////////////////////////

type actualResultJSON struct {
	HomeGoals int `json:"homeGoals"`
	AwayGoals int `json:"awayGoals"`
}

// MarshalJSON emits the flat wire shape. Placeholders carry null for every
// computed field and for every individual outcome.
func (p *MatchPrediction) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"match":             p.MatchID,
		"isPlaceholder":     p.IsPlaceholder(),
		"placeholderReason": nil,
		"dixonColesParams":  nil,
		"modelPrediction":   nil,
		"outcomes":          nil,
		"simulations":       nil,
		"status":            p.Status,
		"isProcessed":       p.IsProcessed,
		"manualCorners":     p.ManualCorners,
		"winningFields":     p.WinningFields,
		"actualResult":      nil,
		"createdAt":         p.CreatedAt,
		"updatedAt":         p.UpdatedAt,
	}
	if p.WinningFields == nil {
		out["winningFields"] = []string{}
	}
	if p.ActualHome >= 0 && p.ActualAway >= 0 {
		out["actualResult"] = actualResultJSON{HomeGoals: p.ActualHome, AwayGoals: p.ActualAway}
	}

	switch r := p.Result.(type) {
	case *Placeholder:
		out["placeholderReason"] = r.Reason
		nulls, err := nullOutcomes()
		if err != nil {
			return nil, err
		}
		out["outcomes"] = nulls
	case *Computed:
		out["dixonColesParams"] = r.Params
		out["modelPrediction"] = r.Model
		out["outcomes"] = r.Outcomes
		out["simulations"] = r.Simulations
	default:
		return nil, fmt.Errorf("prediction for match %d has no result", p.MatchID)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape written by MarshalJSON
func (p *MatchPrediction) UnmarshalJSON(data []byte) error {
	var w struct {
		Match             int64             `json:"match"`
		IsPlaceholder     bool              `json:"isPlaceholder"`
		PlaceholderReason PlaceholderReason `json:"placeholderReason"`
		DixonColesParams  *DixonColesParams `json:"dixonColesParams"`
		ModelPrediction   *ModelPrediction  `json:"modelPrediction"`
		Outcomes          json.RawMessage   `json:"outcomes"`
		Simulations       []SimulationSample `json:"simulations"`
		Status            PredictionStatus  `json:"status"`
		IsProcessed       bool              `json:"isProcessed"`
		ManualCorners     *ManualCorners    `json:"manualCorners"`
		WinningFields     []string          `json:"winningFields"`
		ActualResult      *actualResultJSON `json:"actualResult"`
		CreatedAt         time.Time         `json:"createdAt"`
		UpdatedAt         time.Time         `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*p = MatchPrediction{
		MatchID:       w.Match,
		Status:        w.Status,
		IsProcessed:   w.IsProcessed,
		ManualCorners: w.ManualCorners,
		ActualHome:    -1,
		ActualAway:    -1,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	if len(w.WinningFields) > 0 {
		p.WinningFields = w.WinningFields
	}
	if w.ActualResult != nil {
		p.ActualHome, p.ActualAway = w.ActualResult.HomeGoals, w.ActualResult.AwayGoals
	}

	if w.IsPlaceholder {
		p.Result = &Placeholder{Reason: w.PlaceholderReason}
		return nil
	}
	if w.DixonColesParams == nil || w.ModelPrediction == nil {
		return fmt.Errorf("prediction for match %d is neither placeholder nor computed", w.Match)
	}
	c := &Computed{Params: *w.DixonColesParams, Model: *w.ModelPrediction, Simulations: w.Simulations}
	if err := json.Unmarshal(w.Outcomes, &c.Outcomes); err != nil {
		return fmt.Errorf("decode outcomes for match %d: %w", w.Match, err)
	}
	p.Result = c
	return nil
}

// nullOutcomes returns every outcome key mapped to null
func nullOutcomes() (map[string]any, error) {
	b, err := json.Marshal(Outcomes{})
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k := range m {
		m[k] = nil
	}
	return m, nil
}

/////////////////////////////////////////////////////////////////////////
////// Persistence
/////////////////////////////////////////////////////////////////////////

// Compile-time check to ensure PredictionRecord implements Persistable interface
var _ Persistable = (*PredictionRecord)(nil)

// PredictionRecord is the row form of a MatchPrediction. match_id is the
// primary key, which is what keeps predictions at one per match.
type PredictionRecord struct {
	MatchID           int64  `column:"match_id" dbtype:"INTEGER NOT NULL" primary:"true"`
	Status            string `column:"status" dbtype:"TEXT NOT NULL DEFAULT 'pending'" index:"true"`
	IsPlaceholder     bool   `column:"is_placeholder" dbtype:"INTEGER NOT NULL DEFAULT 0" index:"true"`
	PlaceholderReason string `column:"placeholder_reason" dbtype:"TEXT DEFAULT ''"`

	// JSON documents, empty for placeholders
	ParamsJSON      string `column:"params_json" dbtype:"TEXT DEFAULT ''"`
	ModelJSON       string `column:"model_json" dbtype:"TEXT DEFAULT ''"`
	OutcomesJSON    string `column:"outcomes_json" dbtype:"TEXT DEFAULT ''"`
	SimulationsJSON string `column:"simulations_json" dbtype:"TEXT DEFAULT ''"`

	CornerPrediction string  `column:"corner_prediction" dbtype:"TEXT DEFAULT ''"`
	CornerThreshold  float64 `column:"corner_threshold" dbtype:"REAL DEFAULT 0.0"`

	IsProcessed   bool   `column:"is_processed" dbtype:"INTEGER NOT NULL DEFAULT 0" index:"true"`
	StatsCounted  bool   `column:"stats_counted" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	WinningFields string `column:"winning_fields" dbtype:"TEXT DEFAULT ''"` // comma separated
	ActualHome    int    `column:"actual_home" dbtype:"INTEGER DEFAULT -1"`
	ActualAway    int    `column:"actual_away" dbtype:"INTEGER DEFAULT -1"`

	CreatedAt time.Time `column:"created_at" dbtype:"DATETIME" update:"false"`
	UpdatedAt time.Time `column:"updated_at" dbtype:"DATETIME"`
}

// GetPrimaryKey returns the primary key as a map
func (r *PredictionRecord) GetPrimaryKey() map[string]any {
	return map[string]any{"match_id": r.MatchID}
}

// GetTableName returns the table name for predictions
func (r *PredictionRecord) GetTableName() string {
	return "match_predictions"
}

// BeforeSave stamps the audit times
func (r *PredictionRecord) BeforeSave() error {
	if r.MatchID <= 0 {
		return fmt.Errorf("prediction needs a match id, got %d", r.MatchID)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// toRecord flattens a prediction into its row form
func (p *MatchPrediction) toRecord() (*PredictionRecord, error) {
	r := &PredictionRecord{
		MatchID:       p.MatchID,
		Status:        string(p.Status),
		IsProcessed:   p.IsProcessed,
		StatsCounted:  p.StatsCounted,
		WinningFields: strings.Join(p.WinningFields, ","),
		ActualHome:    p.ActualHome,
		ActualAway:    p.ActualAway,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if r.Status == "" {
		r.Status = string(PredictionPending)
	}
	if p.ManualCorners != nil {
		r.CornerPrediction = p.ManualCorners.Prediction
		r.CornerThreshold = p.ManualCorners.Threshold
	}

	switch res := p.Result.(type) {
	case *Placeholder:
		r.IsPlaceholder = true
		r.PlaceholderReason = string(res.Reason)
	case *Computed:
		docs := []struct {
			dst *string
			v   any
		}{
			{&r.ParamsJSON, res.Params},
			{&r.ModelJSON, res.Model},
			{&r.OutcomesJSON, res.Outcomes},
			{&r.SimulationsJSON, res.Simulations},
		}
		for _, d := range docs {
			b, err := json.Marshal(d.v)
			if err != nil {
				return nil, fmt.Errorf("encode prediction for match %d: %w", p.MatchID, err)
			}
			*d.dst = string(b)
		}
	default:
		return nil, fmt.Errorf("prediction for match %d has no result", p.MatchID)
	}
	return r, nil
}

// toPrediction rebuilds the tagged prediction from its row form
func (r *PredictionRecord) toPrediction() (*MatchPrediction, error) {
	p := &MatchPrediction{
		MatchID:      r.MatchID,
		Status:       PredictionStatus(r.Status),
		IsProcessed:  r.IsProcessed,
		StatsCounted: r.StatsCounted,
		ActualHome:   r.ActualHome,
		ActualAway:   r.ActualAway,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.WinningFields != "" {
		p.WinningFields = strings.Split(r.WinningFields, ",")
	}
	if r.CornerPrediction != "" {
		p.ManualCorners = &ManualCorners{Prediction: r.CornerPrediction, Threshold: r.CornerThreshold}
	}

	if r.IsPlaceholder {
		p.Result = &Placeholder{Reason: PlaceholderReason(r.PlaceholderReason)}
		return p, nil
	}

	c := &Computed{}
	docs := []struct {
		src string
		v   any
	}{
		{r.ParamsJSON, &c.Params},
		{r.ModelJSON, &c.Model},
		{r.OutcomesJSON, &c.Outcomes},
		{r.SimulationsJSON, &c.Simulations},
	}
	for _, d := range docs {
		if d.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(d.src), d.v); err != nil {
			return nil, fmt.Errorf("decode prediction for match %d: %w", r.MatchID, err)
		}
	}
	p.Result = c
	return p, nil
}

/////////////////////////////////////////////////////////////////////////
////// Queries
/////////////////////////////////////////////////////////////////////////

// FindPrediction loads the prediction for a match, nil when absent
func (s *Store) FindPrediction(ctx context.Context, matchID int64) (*MatchPrediction, error) {
	r, err := FindByPrimaryKey[PredictionRecord](ctx, s, map[string]any{"match_id": matchID})
	if err != nil || r == nil {
		return nil, err
	}
	return r.toPrediction()
}

// InsertPrediction creates the prediction row. A concurrent insert for the same
// match yields ErrDuplicate.
func (s *Store) InsertPrediction(ctx context.Context, p *MatchPrediction) error {
	r, err := p.toRecord()
	if err != nil {
		return err
	}
	if err := s.Insert(ctx, r); err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = r.CreatedAt, r.UpdatedAt
	return nil
}

// ReplacePlaceholder overwrites the result of a placeholder that is not graded
// yet. It returns false when the row already holds a computed prediction or has
// been graded, leaving it untouched. Counters, grading and corner picks are kept.
func (s *Store) ReplacePlaceholder(ctx context.Context, p *MatchPrediction) (bool, error) {
	r, err := p.toRecord()
	if err != nil {
		return false, err
	}
	r.UpdatedAt = time.Now().UTC()
	n, err := s.Exec(ctx,
		`UPDATE match_predictions
		 SET is_placeholder = ?, placeholder_reason = ?, params_json = ?, model_json = ?,
		     outcomes_json = ?, simulations_json = ?, updated_at = ?
		 WHERE match_id = ? AND is_placeholder = 1 AND is_processed = 0`,
		r.IsPlaceholder, r.PlaceholderReason, r.ParamsJSON, r.ModelJSON,
		r.OutcomesJSON, r.SimulationsJSON, r.UpdatedAt, r.MatchID)
	if err != nil {
		return false, fmt.Errorf("failed to replace placeholder for match %d: %w", p.MatchID, err)
	}
	if n == 1 {
		p.UpdatedAt = r.UpdatedAt
	}
	return n == 1, nil
}

// MarkStatsCounted flips stats_counted once. It returns true only for the caller
// that performed the flip.
func (s *Store) MarkStatsCounted(ctx context.Context, matchID int64) (bool, error) {
	n, err := s.Exec(ctx, "UPDATE match_predictions SET stats_counted = 1 WHERE match_id = ? AND stats_counted = 0 AND is_placeholder = 0", matchID)
	if err != nil {
		return false, fmt.Errorf("failed to mark stats counted for match %d: %w", matchID, err)
	}
	return n == 1, nil
}

// ClaimGrading marks a prediction processed, records the grade and counts its
// winning fields in one transaction. It returns false when another caller got
// there first, in which case nothing is counted.
func (s *Store) ClaimGrading(ctx context.Context, matchID int64, status PredictionStatus, winningFields []string, homeGoals, awayGoals int) (bool, error) {
	wonCols, err := wonColumns(winningFields)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE match_predictions
		 SET is_processed = 1, status = ?, winning_fields = ?, actual_home = ?, actual_away = ?, updated_at = ?
		 WHERE match_id = ? AND is_processed = 0`,
		string(status), strings.Join(winningFields, ","), homeGoals, awayGoals, time.Now().UTC(), matchID)
	if err != nil {
		return false, fmt.Errorf("failed to claim grading for match %d: %w", matchID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return false, nil
	}
	if err := incrementStats(ctx, tx, wonCols); err != nil {
		return false, fmt.Errorf("count wins for match %d: %w", matchID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit grading for match %d: %w", matchID, err)
	}
	return true, nil
}

// SetManualCorners stores an operator corners pick on an existing prediction
func (s *Store) SetManualCorners(ctx context.Context, matchID int64, mc ManualCorners) (bool, error) {
	n, err := s.Exec(ctx,
		"UPDATE match_predictions SET corner_prediction = ?, corner_threshold = ?, updated_at = ? WHERE match_id = ?",
		mc.Prediction, mc.Threshold, time.Now().UTC(), matchID)
	if err != nil {
		return false, fmt.Errorf("failed to set corners for match %d: %w", matchID, err)
	}
	return n == 1, nil
}

// FindUnprocessedFinished returns ids of finished matches whose prediction is not graded yet
func (s *Store) FindUnprocessedFinished(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT p.match_id FROM match_predictions p JOIN matches m ON m.id = p.match_id
		 WHERE p.is_processed = 0 AND m.status IN (?, ?, ?) AND m.home_goals >= 0 AND m.away_goals >= 0
		 ORDER BY m.kickoff, m.id`,
		StatusFullTime, StatusAfterExtra, StatusPenalties)
}

// FindPlaceholderMatches returns ids of not-started matches in [from, to) holding a placeholder
func (s *Store) FindPlaceholderMatches(ctx context.Context, from, to time.Time) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT p.match_id FROM match_predictions p JOIN matches m ON m.id = p.match_id
		 WHERE p.is_placeholder = 1 AND m.status = ? AND m.kickoff >= ? AND m.kickoff < ?
		 ORDER BY m.kickoff, m.id`,
		StatusNotStarted, from.Unix(), to.Unix())
}

// FindMatchesWithoutPrediction returns ids of not-started matches in [from, to) with no prediction
func (s *Store) FindMatchesWithoutPrediction(ctx context.Context, from, to time.Time) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT m.id FROM matches m LEFT JOIN match_predictions p ON p.match_id = m.id
		 WHERE p.match_id IS NULL AND m.status = ? AND m.kickoff >= ? AND m.kickoff < ?
		 ORDER BY m.kickoff, m.id`,
		StatusNotStarted, from.Unix(), to.Unix())
}

// CountPredictions returns the number of prediction rows for a match
func (s *Store) CountPredictions(ctx context.Context, matchID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM match_predictions WHERE match_id = ?", matchID).Scan(&n)
	return n, err
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

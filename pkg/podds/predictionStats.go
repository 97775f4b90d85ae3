package podds

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Compile-time check to ensure PredictionStats implements Persistable interface
var _ Persistable = (*PredictionStats)(nil)

// globalStatsID is the id of the single PredictionStats row
const globalStatsID = "global"

// PredictionStats is the global running tally of predictions and wins.
// Counters only ever grow and are changed with SQL increments, never read-modify-write.
type PredictionStats struct {
	ID string `json:"id" column:"id" dbtype:"TEXT NOT NULL" primary:"true"`

	SimulatedTotal int64 `json:"simulatedTotal" column:"simulated_total" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	WonTotal       int64 `json:"wonTotal" column:"won_total" dbtype:"INTEGER NOT NULL DEFAULT 0"`

	DoubleChance1XSimulated int64 `json:"doubleChance1XSimulated" column:"double_chance_1x_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	DoubleChance1XWon       int64 `json:"doubleChance1XWon" column:"double_chance_1x_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	DoubleChanceX2Simulated int64 `json:"doubleChanceX2Simulated" column:"double_chance_x2_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	DoubleChanceX2Won       int64 `json:"doubleChanceX2Won" column:"double_chance_x2_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	BTTSSimulated           int64 `json:"bttsSimulated" column:"btts_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	BTTSWon                 int64 `json:"bttsWon" column:"btts_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	Over25Simulated         int64 `json:"over25Simulated" column:"over25_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	Over25Won               int64 `json:"over25Won" column:"over25_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	Under25Simulated        int64 `json:"under25Simulated" column:"under25_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	Under25Won              int64 `json:"under25Won" column:"under25_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	CornersSimulated        int64 `json:"cornersSimulated" column:"corners_simulated" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	CornersWon              int64 `json:"cornersWon" column:"corners_won" dbtype:"INTEGER NOT NULL DEFAULT 0"`

	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

// GetPrimaryKey returns the primary key as a map
func (ps *PredictionStats) GetPrimaryKey() map[string]any {
	return map[string]any{"id": ps.ID}
}

// GetTableName returns the table name for the stats singleton
func (ps *PredictionStats) GetTableName() string {
	return "prediction_stats"
}

// BeforeSave pins the singleton id
func (ps *PredictionStats) BeforeSave() error {
	ps.ID = globalStatsID
	ps.UpdatedAt = time.Now().UTC()
	return nil
}

// FieldCounts returns (simulated, won) for a graded field
func (ps *PredictionStats) FieldCounts(field string) (int64, int64) {
	switch field {
	case FieldDoubleChance1X:
		return ps.DoubleChance1XSimulated, ps.DoubleChance1XWon
	case FieldDoubleChanceX2:
		return ps.DoubleChanceX2Simulated, ps.DoubleChanceX2Won
	case FieldBTTS:
		return ps.BTTSSimulated, ps.BTTSWon
	case FieldOver25:
		return ps.Over25Simulated, ps.Over25Won
	case FieldUnder25:
		return ps.Under25Simulated, ps.Under25Won
	case FieldCorners:
		return ps.CornersSimulated, ps.CornersWon
	}
	return 0, 0
}

// WinRate returns the won/simulated percentage for a graded field, 0 when nothing was simulated
func (ps *PredictionStats) WinRate(field string) float64 {
	sim, won := ps.FieldCounts(field)
	if sim == 0 {
		return 0
	}
	return float64(won) / float64(sim) * 100
}

// statsColumnPrefix maps a graded field onto its column prefix
var statsColumnPrefix = map[string]string{
	FieldDoubleChance1X: "double_chance_1x",
	FieldDoubleChanceX2: "double_chance_x2",
	FieldBTTS:           "btts",
	FieldOver25:         "over25",
	FieldUnder25:        "under25",
	FieldCorners:        "corners",
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// incrementStats creates the singleton if it is missing and applies
// col = col + 1 to every named column in one statement
func incrementStats(ctx context.Context, ex execer, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	if _, err := ex.ExecContext(ctx, "INSERT INTO prediction_stats (id, updated_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING",
		globalStatsID, now); err != nil {
		return fmt.Errorf("failed to create prediction stats: %w", err)
	}
	sets := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		sets = append(sets, fmt.Sprintf("%s = %s + 1", c, c))
	}
	sets = append(sets, "updated_at = ?")
	query := fmt.Sprintf("UPDATE prediction_stats SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := ex.ExecContext(ctx, query, now, globalStatsID); err != nil {
		return fmt.Errorf("failed to increment prediction stats: %w", err)
	}
	return nil
}

// IncrementSimulated counts one more real prediction against every graded field
func (s *Store) IncrementSimulated(ctx context.Context) error {
	cols := []string{"simulated_total"}
	for _, f := range GradedFields {
		cols = append(cols, statsColumnPrefix[f]+"_simulated")
	}
	return incrementStats(ctx, s.db, cols)
}

// wonColumns maps winning fields to the counters they bump. wonTotal goes up
// once when any field won.
func wonColumns(winningFields []string) ([]string, error) {
	if len(winningFields) == 0 {
		return nil, nil
	}
	cols := []string{"won_total"}
	for _, f := range winningFields {
		prefix, ok := statsColumnPrefix[f]
		if !ok {
			return nil, fmt.Errorf("unknown graded field %q", f)
		}
		cols = append(cols, prefix+"_won")
	}
	return cols, nil
}

// FindPredictionStats loads the stats singleton, zero valued when nothing has been counted
func (s *Store) FindPredictionStats(ctx context.Context) (*PredictionStats, error) {
	ps, err := FindByPrimaryKey[PredictionStats](ctx, s, map[string]any{"id": globalStatsID})
	if err != nil {
		return nil, err
	}
	if ps == nil {
		return &PredictionStats{ID: globalStatsID}, nil
	}
	return ps, nil
}

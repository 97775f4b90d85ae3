package podds

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
)

// goalLines is the over/under ladder
var goalLines = []float64{0.5, 1.5, 2.5, 3.5, 4.5, 5.5, 6.5, 7.5, 8.5, 9.5}

// over25Index is the position of the 2.5 line in goalLines
const over25Index = 2

// Predictor runs the goal model. It owns a random source and is not safe for
// concurrent use, so build one per prediction.
type Predictor struct {
	cfg *PoddsConfig
	rng *rand.Rand
}

// NewPredictor returns a predictor drawing from rng
func NewPredictor(cfg *PoddsConfig, rng *rand.Rand) *Predictor {
	return &Predictor{cfg: cfg, rng: rng}
}

/////////////////////////////////////////////////////////////////////////
////// Goal rate estimation
/////////////////////////////////////////////////////////////////////////

// FormFactor turns a W/D/L form string into a multiplier around 1.0.
// Characters other than W, D and L are ignored and an empty form is neutral.
func FormFactor(form string, swing, lo, hi float64) float64 {
	var w, d, l int
	for _, r := range strings.ToUpper(form) {
		switch r {
		case 'W':
			w++
		case 'D':
			d++
		case 'L':
			l++
		}
	}
	n := w + d + l
	if n == 0 {
		return 1.0
	}
	factor := 1 + swing*(float64(w)/float64(n)-float64(l)/float64(n))
	return math.Min(math.Max(factor, lo), hi)
}

// ExpectedGoals estimates a side's goal rate from its own attack and the
// opponent's defence. The result always lies in [MinExpectedGoals, MaxExpectedGoals].
func (p *Predictor) ExpectedGoals(own, opponent *TeamStatistics, isHome bool) float64 {
	c := p.cfg
	weighted := c.OwnAttackWeight*own.AttackRate() + c.OpponentConcedeWeight*opponent.ConcedeRate()

	multiplier := c.AwayMultiplier
	if isHome {
		multiplier = c.HomeMultiplier
	}

	xg := weighted * multiplier * FormFactor(own.Form, c.FormSwing, c.FormFactorMin, c.FormFactorMax)
	if math.IsNaN(xg) || xg < c.MinExpectedGoals {
		return c.MinExpectedGoals
	}
	return math.Min(xg, c.MaxExpectedGoals)
}

/////////////////////////////////////////////////////////////////////////
////// Sampling
/////////////////////////////////////////////////////////////////////////

// samplePoisson draws a Poisson variate by multiplying uniforms until the
// product drops below exp(-lambda), stopping after PoissonIterationCap rounds.
func (p *Predictor) samplePoisson(lambda float64) int {
	limit := math.Exp(-lambda)
	prod := 1.0
	k := 0
	for k < p.cfg.PoissonIterationCap {
		prod *= p.rng.Float64()
		if prod <= limit {
			break
		}
		k++
	}
	return k
}

// SampleBivariate draws a correlated (home, away) pair. Both sides share the
// Z ~ Poisson(lambda3) component so their covariance is Var(Z).
func (p *Predictor) SampleBivariate(lambda1, lambda2, lambda3 float64) (int, int) {
	adj1 := math.Max(lambda1-lambda3, p.cfg.MinSpecificRate)
	adj2 := math.Max(lambda2-lambda3, p.cfg.MinSpecificRate)
	x := p.samplePoisson(adj1)
	y := p.samplePoisson(adj2)
	z := p.samplePoisson(lambda3)
	return x + z, y + z
}

// DixonColesWeight is the importance weight of one simulated score. Low
// scores (total <= 1, or 1-1) are down-weighted, everything else counts 1.
func DixonColesWeight(homeGoals, awayGoals int, lambda1, lambda2, rho float64) float64 {
	if homeGoals+awayGoals <= 1 || (homeGoals == 1 && awayGoals == 1) {
		return math.Exp(-rho * math.Sqrt(lambda1*lambda2))
	}
	return 1.0
}

/////////////////////////////////////////////////////////////////////////
////// Monte Carlo
/////////////////////////////////////////////////////////////////////////

// tally accumulates weighted trial outcomes
type tally struct {
	total       float64
	home        float64
	draw        float64
	away        float64
	over        []float64
	btts        float64
	homeClean   float64
	awayClean   float64
	scores      [][]float64
	firstSeen   [][2]int
	samples     []SimulationSample
	sampleLimit int
}

func newTally(maxGoals, sampleLimit int) *tally {
	scores := make([][]float64, maxGoals+1)
	for i := range scores {
		scores[i] = make([]float64, maxGoals+1)
	}
	return &tally{
		over:        make([]float64, len(goalLines)),
		scores:      scores,
		sampleLimit: sampleLimit,
	}
}

func (t *tally) add(h, a int, w float64) {
	t.total += w
	switch {
	case h > a:
		t.home += w
	case h == a:
		t.draw += w
	default:
		t.away += w
	}
	goals := float64(h + a)
	for i, line := range goalLines {
		if goals > line {
			t.over[i] += w
		}
	}
	if h > 0 && a > 0 {
		t.btts += w
	}
	if a == 0 {
		t.homeClean += w
	}
	if h == 0 {
		t.awayClean += w
	}
	if t.scores[h][a] == 0 {
		t.firstSeen = append(t.firstSeen, [2]int{h, a})
	}
	t.scores[h][a] += w
	if len(t.samples) < t.sampleLimit {
		t.samples = append(t.samples, SimulationSample{HomeGoals: h, AwayGoals: a})
	}
}

// Simulate runs the configured number of weighted trials for the given rates
// and aggregates them into a computed prediction.
func (p *Predictor) Simulate(lambda1, lambda2 float64) *Computed {
	c := p.cfg
	t := newTally(2*c.PoissonIterationCap, c.SampleSize)

	for i := 0; i < c.Simulations; i++ {
		h, a := p.SampleBivariate(lambda1, lambda2, c.Lambda3)
		t.add(h, a, DixonColesWeight(h, a, lambda1, lambda2, c.DixonColesRho))
	}

	pct := func(x float64) float64 {
		return roundPercent(x / t.total * 100)
	}

	o := Outcomes{
		HomeWin:        pct(t.home),
		Draw:           pct(t.draw),
		AwayWin:        pct(t.away),
		BTTS:           pct(t.btts),
		BTTSNo:         pct(t.total - t.btts),
		DoubleChance1X: pct(t.home + t.draw),
		DoubleChance12: pct(t.home + t.away),
		DoubleChanceX2: pct(t.draw + t.away),
		HomeCleanSheet: pct(t.homeClean),
		AwayCleanSheet: pct(t.awayClean),
	}
	for i, line := range goalLines {
		o.GoalLines = append(o.GoalLines, GoalLine{Line: line, Over: pct(t.over[i]), Under: pct(t.total - t.over[i])})
	}
	o.Over25 = o.GoalLines[over25Index].Over
	o.Under25 = o.GoalLines[over25Index].Under

	// strict > keeps the first seen score on ties
	var best [2]int
	bestWeight := -1.0
	for _, s := range t.firstSeen {
		if w := t.scores[s[0]][s[1]]; w > bestWeight {
			best, bestWeight = s, w
		}
	}
	o.MostLikelyScore = fmt.Sprintf("%d-%d", best[0], best[1])
	o.MostLikelyScoreProbability = pct(bestWeight)

	switch {
	case o.DoubleChance1X >= o.DoubleChance12 && o.DoubleChance1X >= o.DoubleChanceX2:
		o.HomeWinBoolean = true
	case o.DoubleChanceX2 >= o.DoubleChance12:
		o.DrawBoolean = true
	default:
		o.AwayWinBoolean = true
	}
	o.Over25Boolean = o.Over25 > c.Over25PickThreshold
	o.Under25Boolean = o.Under25 > c.Under25PickThreshold

	return &Computed{
		Params: DixonColesParams{
			Lambda1:      lambda1,
			Lambda2:      lambda2,
			Lambda3:      c.Lambda3,
			Rho:          c.DixonColesRho,
			ModelVersion: c.ModelVersion,
		},
		Model: ModelPrediction{
			HomeScore:  int(math.Round(lambda1)),
			AwayScore:  int(math.Round(lambda2)),
			Confidence: math.Max(o.HomeWin, math.Max(o.Draw, o.AwayWin)),
		},
		Outcomes:    o,
		Simulations: t.samples,
	}
}

// Predict estimates both goal rates and simulates the match
func (p *Predictor) Predict(home, away *TeamStatistics) (*Computed, error) {
	if home == nil || away == nil {
		return nil, fmt.Errorf("both teams need statistics to predict")
	}
	lambda1 := p.ExpectedGoals(home, away, true)
	lambda2 := p.ExpectedGoals(away, home, false)
	return p.Simulate(lambda1, lambda2), nil
}

// roundPercent rounds to two decimal places
func roundPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

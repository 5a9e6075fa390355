package analytics

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pairflow-go/internal/metrics"
)

const (
	// DefaultWindow is the rolling window applied when a request does not
	// specify one.
	DefaultWindow = 20
	// minHedgePoints is the aligned length below which the OLS hedge ratio
	// degrades to 1.0 instead of failing the analysis.
	minHedgePoints = 10
	// minAlignedFloor is the absolute minimum aligned length regardless of
	// window size.
	minAlignedFloor = 5
)

// InsufficientDataError reports that two series do not overlap enough to
// analyze. It is a first-class outcome, not a fault.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient aligned data: %d points, need at least %d", e.Have, e.Need)
}

// Sanitize maps non-finite values to an explicit missing marker (nil) so no
// NaN or infinity ever crosses the core boundary. Finite values pass through
// untouched — never silently zeroed.
func Sanitize(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

// PairStats groups the descriptive blocks of one analysis. A nil block means
// the underlying series was too short to summarize.
type PairStats struct {
	Symbol1 *BasicStats `json:"symbol1"`
	Symbol2 *BasicStats `json:"symbol2"`
	Spread  *BasicStats `json:"spread"`
}

// SeriesBundle carries the three plot-safety-gated output series.
type SeriesBundle struct {
	Spread      Series `json:"spread"`
	ZScore      Series `json:"zscore"`
	Correlation Series `json:"correlation"`
}

// Result is the snapshot produced by one pair analysis. Scalar pointers are
// nil when the value is undefined for this request.
type Result struct {
	Symbol1            string       `json:"symbol1"`
	Symbol2            string       `json:"symbol2"`
	HedgeRatio         *float64     `json:"hedge_ratio"`
	RSquared           *float64     `json:"r_squared"`
	CurrentSpread      *float64     `json:"current_spread"`
	CurrentZScore      *float64     `json:"current_zscore"`
	CurrentCorrelation *float64     `json:"current_correlation"`
	Stats              PairStats    `json:"stats"`
	ADF                ADFResult    `json:"adf_test"`
	Series             SeriesBundle `json:"series"`
}

// Analyzer runs the request-scoped pair analysis pipeline.
type Analyzer struct {
	window int
	log    zerolog.Logger
}

// NewAnalyzer builds an analyzer with the given default rolling window.
func NewAnalyzer(window int, log zerolog.Logger) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{window: window, log: log}
}

// AnalyzePair aligns two close-price series and computes the hedge ratio,
// spread, rolling z-score, rolling correlation, descriptive statistics, and
// stationarity test. The error return is *InsufficientDataError when the
// aligned overlap is below max(5, window); every other insufficiency degrades
// inside the result instead of failing it.
func (a *Analyzer) AnalyzePair(symbol1, symbol2 string, prices1, prices2 Series, window int) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	if window <= 0 {
		window = a.window
	}

	p1, p2 := Align(prices1, prices2)
	minRequired := window
	if minRequired < minAlignedFloor {
		minRequired = minAlignedFloor
	}
	if len(p1) < minRequired {
		a.log.Warn().Int("aligned", len(p1)).Int("required", minRequired).
			Str("symbol1", symbol1).Str("symbol2", symbol2).Msg("insufficient aligned data")
		return nil, &InsufficientDataError{Have: len(p1), Need: minRequired}
	}

	hedgeRatio, rSquared := 1.0, 0.0
	if len(p1) >= minHedgePoints {
		hedgeRatio, _, rSquared = OLS(p1.Values(), p2.Values())
	} else {
		a.log.Warn().Int("aligned", len(p1)).Msg("not enough points for OLS hedge ratio, defaulting to 1.0")
	}

	// Spread = p1 - hedge*p2 elementwise; undefined entries are dropped,
	// never zero-filled.
	spread := make(Series, 0, len(p1))
	for i := range p1 {
		v := p1[i].Value - hedgeRatio*p2[i].Value
		if isFinite(v) {
			spread = append(spread, Point{Ts: p1[i].Ts, Value: v})
		}
	}

	zscore := RollingZScore(spread, window)
	correlation := RollingCorrelation(p1, p2, window)

	stats1, _ := ComputeBasicStats(p1)
	stats2, _ := ComputeBasicStats(p2)
	spreadStats, _ := ComputeBasicStats(spread)

	adf := TestStationarity(spread.Values())

	result := &Result{
		Symbol1:            symbol1,
		Symbol2:            symbol2,
		HedgeRatio:         Sanitize(hedgeRatio),
		RSquared:           Sanitize(rSquared),
		CurrentSpread:      lastSanitized(spread),
		CurrentZScore:      lastSanitized(zscore),
		CurrentCorrelation: lastSanitized(correlation),
		Stats: PairStats{
			Symbol1: stats1,
			Symbol2: stats2,
			Spread:  spreadStats,
		},
		ADF: adf,
		Series: SeriesBundle{
			Spread:      Gate(spread),
			ZScore:      Gate(zscore),
			Correlation: Gate(correlation),
		},
	}

	a.log.Debug().
		Int("aligned", len(p1)).
		Int("spread_pts", len(result.Series.Spread)).
		Int("zscore_pts", len(result.Series.ZScore)).
		Int("corr_pts", len(result.Series.Correlation)).
		Msg("pair analysis complete")
	return result, nil
}

func lastSanitized(s Series) *float64 {
	v, ok := s.Last()
	if !ok {
		return nil
	}
	return Sanitize(v)
}

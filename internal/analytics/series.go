// Package analytics implements the pairs-trading statistics pipeline:
// series alignment, hedge-ratio estimation, spread construction, rolling
// statistics, stationarity testing, and the plot-safety gating that keeps
// degenerate output away from consumers.
package analytics

import (
	"encoding/json"
	"math"
	"time"
)

// Point is one timestamped observation.
type Point struct {
	Ts    time.Time
	Value float64
}

// MarshalJSON emits [timestamp, value] pairs, the shape chart consumers expect.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Ts.UTC().Format(time.RFC3339Nano), p.Value})
}

// Series is a time-indexed sequence of observations, ascending by timestamp.
type Series []Point

// Values extracts the raw observations.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Last returns the most recent value, ok=false when empty.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1].Value, true
}

func (s Series) dropNonFinite() Series {
	out := make(Series, 0, len(s))
	for _, p := range s {
		if isFinite(p.Value) {
			out = append(out, p)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Align restricts two series to the timestamp set where both have a value.
// Inputs must be ascending by timestamp; outputs have identical length and
// an identical, strictly increasing timestamp index.
func Align(a, b Series) (Series, Series) {
	outA := make(Series, 0, min(len(a), len(b)))
	outB := make(Series, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Ts.Before(b[j].Ts):
			i++
		case b[j].Ts.Before(a[i].Ts):
			j++
		default:
			outA = append(outA, a[i])
			outB = append(outB, b[j])
			i++
			j++
		}
	}
	return outA, outB
}

// RollingZScore computes (value - rolling mean) / rolling std over a trailing
// window. Positions where the rolling std is exactly zero are undefined and
// dropped, never emitted as zero or infinity. Fewer than window source points
// yield an empty series.
func RollingZScore(s Series, window int) Series {
	if window < 2 || len(s) < window {
		return Series{}
	}
	out := make(Series, 0, len(s)-window+1)
	for i := window - 1; i < len(s); i++ {
		win := s[i-window+1 : i+1].Values()
		m := mean(win)
		sd := sampleStd(win)
		if sd == 0 || !isFinite(sd) {
			continue
		}
		z := (s[i].Value - m) / sd
		if !isFinite(z) {
			continue
		}
		out = append(out, Point{Ts: s[i].Ts, Value: z})
	}
	return out
}

// RollingCorrelation computes trailing-window Pearson correlation between two
// aligned series. Undefined positions (zero variance on either side) are
// dropped. Fewer than window points yield an empty series.
func RollingCorrelation(a, b Series, window int) Series {
	n := min(len(a), len(b))
	if window < 2 || n < window {
		return Series{}
	}
	out := make(Series, 0, n-window+1)
	for i := window - 1; i < n; i++ {
		c := pearson(a[i-window+1:i+1].Values(), b[i-window+1:i+1].Values())
		if !isFinite(c) {
			continue
		}
		out = append(out, Point{Ts: a[i].Ts, Value: c})
	}
	return out
}

// IsPlotSafe reports whether a series can be handed to a visualization layer:
// at least minPoints observations, every value finite, and more than one
// distinct value. Constant series break downstream domain math and convey
// nothing.
func IsPlotSafe(s Series, minPoints int) bool {
	if len(s) < minPoints {
		return false
	}
	distinct := make(map[float64]struct{}, 2)
	for _, p := range s {
		if !isFinite(p.Value) {
			return false
		}
		if len(distinct) < 2 {
			distinct[p.Value] = struct{}{}
		}
	}
	return len(distinct) > 1
}

// Gate applies the plot-safety filter uniformly to an outbound series:
// unsafe series are replaced with an empty one, and a filtered series that
// drops below 2 points is emptied as well.
func Gate(s Series) Series {
	if !IsPlotSafe(s, 3) {
		return Series{}
	}
	out := s.dropNonFinite()
	if len(out) < 2 {
		return Series{}
	}
	return out
}

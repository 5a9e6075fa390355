package analytics

import "math"

// tradingDaysPerYear scales return volatility to an annual figure.
const tradingDaysPerYear = 252

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 denominator standard deviation. NaN below 2 points.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN()
	}
	mx, my := mean(x), mean(y)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	return cov / math.Sqrt(vx*vy)
}

// OLS fits y = slope*x + intercept and reports the squared correlation
// coefficient. A zero-variance regressor yields NaN results, which the
// sanitizing boundary turns into an explicit missing marker downstream.
func OLS(y, x []float64) (slope, intercept, r2 float64) {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mx, my := mean(x), mean(y)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	slope = cov / vx
	intercept = my - slope*mx
	r := cov / math.Sqrt(vx*vy)
	return slope, intercept, r * r
}

// BasicStats is the descriptive-statistics block computed per price series
// and for the spread.
type BasicStats struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Last       float64 `json:"last"`
	Volatility float64 `json:"volatility"`
}

// ComputeBasicStats summarizes a series. ok=false below 2 points.
// Annualized volatility is the sample std of simple returns scaled by √252;
// a degenerate returns series (single-valued or containing non-finite
// entries) reports 0.0 rather than an undefined number.
func ComputeBasicStats(s Series) (*BasicStats, bool) {
	if len(s) < 2 {
		return nil, false
	}
	vals := s.Values()
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	returns := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		returns = append(returns, vals[i]/vals[i-1]-1)
	}
	vol := sampleStd(returns) * math.Sqrt(tradingDaysPerYear)
	if !isFinite(vol) {
		vol = 0.0
	}

	return &BasicStats{
		Mean:       mean(vals),
		Std:        sampleStd(vals),
		Min:        lo,
		Max:        hi,
		Last:       vals[len(vals)-1],
		Volatility: vol,
	}, true
}

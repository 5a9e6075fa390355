package analytics

import (
	"encoding/json"
	"errors"
	"math"
)

// minADFPoints is the smallest spread the unit-root test accepts.
const minADFPoints = 12

// ADFResult is the outcome of the augmented Dickey-Fuller test. Exactly one
// variant is populated: the statistics, or Err when the series is too short
// or the regression is degenerate. The error stays localized to this block;
// it never fails the surrounding analysis.
type ADFResult struct {
	Statistic    float64
	PValue       float64
	UsedLag      int
	NObs         int
	Crit1        float64
	Crit5        float64
	Crit10       float64
	IsStationary bool
	Err          string
}

// MarshalJSON renders the populated variant only.
func (r ADFResult) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	return json.Marshal(struct {
		Statistic      float64            `json:"adf_statistic"`
		PValue         float64            `json:"p_value"`
		UsedLag        int                `json:"used_lag"`
		NObs           int                `json:"n_observations"`
		CriticalValues map[string]float64 `json:"critical_values"`
		IsStationary   bool               `json:"is_stationary"`
	}{
		Statistic: r.Statistic,
		PValue:    r.PValue,
		UsedLag:   r.UsedLag,
		NObs:      r.NObs,
		CriticalValues: map[string]float64{
			"1%":  r.Crit1,
			"5%":  r.Crit5,
			"10%": r.Crit10,
		},
		IsStationary: r.IsStationary,
	})
}

// TestStationarity runs an augmented Dickey-Fuller unit-root test with a
// constant term and automatic lag selection by AIC. The stationarity verdict
// uses the 5% significance level.
func TestStationarity(values []float64) ADFResult {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) < minADFPoints {
		return ADFResult{Err: "insufficient data for ADF test"}
	}

	stat, usedLag, nobs, err := adfStatistic(xs)
	if err != nil {
		return ADFResult{Err: err.Error()}
	}

	p := mackinnonP(stat)
	c1, c5, c10 := mackinnonCrit(nobs)
	return ADFResult{
		Statistic:    stat,
		PValue:       p,
		UsedLag:      usedLag,
		NObs:         nobs,
		Crit1:        c1,
		Crit5:        c5,
		Crit10:       c10,
		IsStationary: p < 0.05,
	}
}

// adfStatistic regresses Δy_t on y_{t-1}, lagged differences, and a constant,
// returning the t-statistic of the y_{t-1} coefficient. The candidate lag is
// chosen by minimizing AIC over a common sample (Schwert's rule bounds the
// maximum lag).
func adfStatistic(y []float64) (tstat float64, usedLag, nobs int, err error) {
	n := len(y)
	dy := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		dy[i] = y[i+1] - y[i]
	}

	maxLag := int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	if lim := n/2 - 2; maxLag > lim {
		maxLag = lim
	}
	if maxLag < 0 {
		maxLag = 0
	}

	bestLag := -1
	bestAIC := math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		X, resp := adfDesign(y, dy, lag, maxLag)
		fit, ferr := olsFit(X, resp)
		if ferr != nil || fit.ssr <= 0 {
			continue
		}
		nf := float64(len(resp))
		llf := -nf / 2 * (math.Log(2*math.Pi) + math.Log(fit.ssr/nf) + 1)
		aic := -2*llf + 2*float64(lag+2)
		if aic < bestAIC {
			bestAIC = aic
			bestLag = lag
		}
	}
	if bestLag < 0 {
		return 0, 0, 0, errors.New("degenerate series in ADF regression")
	}

	X, resp := adfDesign(y, dy, bestLag, bestLag)
	fit, ferr := olsFit(X, resp)
	if ferr != nil {
		return 0, 0, 0, ferr
	}
	if fit.stderr[0] == 0 || !isFinite(fit.stderr[0]) {
		return 0, 0, 0, errors.New("degenerate series in ADF regression")
	}
	return fit.coef[0] / fit.stderr[0], bestLag, len(resp), nil
}

// adfDesign builds the regression sample starting at startLag so candidate
// models with different lag orders share the same observations. Column 0 is
// the lagged level, followed by lagged differences, then the constant.
func adfDesign(y, dy []float64, lag, startLag int) ([][]float64, []float64) {
	rows := len(dy) - startLag
	X := make([][]float64, 0, rows)
	resp := make([]float64, 0, rows)
	for t := startLag; t < len(dy); t++ {
		row := make([]float64, 0, lag+2)
		row = append(row, y[t])
		for k := 1; k <= lag; k++ {
			row = append(row, dy[t-k])
		}
		row = append(row, 1)
		X = append(X, row)
		resp = append(resp, dy[t])
	}
	return X, resp
}

type olsResult struct {
	coef   []float64
	stderr []float64
	ssr    float64
}

// olsFit solves a small multivariate least squares via normal equations with
// Gaussian elimination, returning coefficient standard errors from the
// inverted moment matrix.
func olsFit(X [][]float64, y []float64) (olsResult, error) {
	n := len(X)
	if n == 0 {
		return olsResult{}, errors.New("empty design matrix")
	}
	p := len(X[0])
	if n <= p {
		return olsResult{}, errors.New("not enough observations for regression")
	}

	// A = XᵀX augmented with the identity for the inverse, b = Xᵀy.
	a := make([][]float64, p)
	b := make([]float64, p)
	for i := 0; i < p; i++ {
		a[i] = make([]float64, 2*p)
		a[i][p+i] = 1
		for j := 0; j < p; j++ {
			sum := 0.0
			for r := 0; r < n; r++ {
				sum += X[r][i] * X[r][j]
			}
			a[i][j] = sum
		}
		sum := 0.0
		for r := 0; r < n; r++ {
			sum += X[r][i] * y[r]
		}
		b[i] = sum
	}

	// Gauss-Jordan with partial pivoting.
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return olsResult{}, errors.New("singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		inv := 1 / a[col][col]
		for j := 0; j < 2*p; j++ {
			a[col][j] *= inv
		}
		b[col] *= inv
		for r := 0; r < p; r++ {
			if r == col {
				continue
			}
			factor := a[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*p; j++ {
				a[r][j] -= factor * a[col][j]
			}
			b[r] -= factor * b[col]
		}
	}

	coef := b
	ssr := 0.0
	for r := 0; r < n; r++ {
		pred := 0.0
		for j := 0; j < p; j++ {
			pred += X[r][j] * coef[j]
		}
		resid := y[r] - pred
		ssr += resid * resid
	}

	s2 := ssr / float64(n-p)
	stderr := make([]float64, p)
	for j := 0; j < p; j++ {
		stderr[j] = math.Sqrt(s2 * a[j][p+j])
	}
	return olsResult{coef: coef, stderr: stderr, ssr: ssr}, nil
}

// MacKinnon one-sided p-value approximation for the constant-only Dickey-
// Fuller distribution.
func mackinnonP(tau float64) float64 {
	const (
		tauMax  = 2.74
		tauMin  = -18.83
		tauStar = -1.61
	)
	switch {
	case tau > tauMax:
		return 1.0
	case tau < tauMin:
		return 0.0
	}
	var coeffs []float64
	if tau <= tauStar {
		coeffs = []float64{2.1659, 1.4412, 0.038269}
	} else {
		coeffs = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	}
	return normCDF(polyval(coeffs, tau))
}

// MacKinnon finite-sample critical values (constant regression) from the
// response-surface coefficients.
func mackinnonCrit(nobs int) (c1, c5, c10 float64) {
	n := float64(nobs)
	surface := func(b0, b1, b2, b3 float64) float64 {
		return b0 + b1/n + b2/(n*n) + b3/(n*n*n)
	}
	c1 = surface(-3.43035, -6.5393, -16.786, -79.433)
	c5 = surface(-2.86154, -2.8903, -4.234, -40.04)
	c10 = surface(-2.56677, -1.5384, -2.809, 0)
	return c1, c5, c10
}

func polyval(coeffs []float64, x float64) float64 {
	sum := 0.0
	pow := 1.0
	for _, c := range coeffs {
		sum += c * pow
		pow *= x
	}
	return sum
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

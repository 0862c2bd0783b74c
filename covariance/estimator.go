// Package covariance estimates annualized covariance matrices from return
// series, with Ledoit-Wolf shrinkage for short samples and a guaranteed
// positive semi-definite result.
package covariance

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

// Mode selects when shrinkage is applied.
type Mode string

const (
	ShrinkAuto   Mode = "auto"
	ShrinkAlways Mode = "always"
	ShrinkNever  Mode = "never"
)

// Target is the structured matrix the sample covariance is shrunk toward.
type Target string

const (
	TargetIdentity            Target = "identity"
	TargetConstantCorrelation Target = "constant_correlation"
)

const (
	DefaultPeriodsPerYear = 252
	DefaultMinObsRatio    = 10
	DefaultPSDTolerance   = 1e-10
)

type Options struct {
	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year"`
	Shrinkage      Mode    `json:"shrinkage" yaml:"shrinkage"`
	Target         Target  `json:"target" yaml:"target"`

	// MinObsRatio is the observations-per-asset ratio below which auto mode
	// shrinks.
	MinObsRatio  float64 `json:"min_obs_ratio" yaml:"min_obs_ratio"`
	PSDTolerance float64 `json:"psd_tolerance" yaml:"psd_tolerance"`

	Log logrus.FieldLogger `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		PeriodsPerYear: DefaultPeriodsPerYear,
		Shrinkage:      ShrinkAuto,
		Target:         TargetIdentity,
		MinObsRatio:    DefaultMinObsRatio,
		PSDTolerance:   DefaultPSDTolerance,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = d.PeriodsPerYear
	}
	if o.Shrinkage == "" {
		o.Shrinkage = d.Shrinkage
	}
	if o.Target == "" {
		o.Target = d.Target
	}
	if o.MinObsRatio <= 0 {
		o.MinObsRatio = d.MinObsRatio
	}
	if o.PSDTolerance <= 0 {
		o.PSDTolerance = d.PSDTolerance
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}

// Validate rejects unknown modes and targets.
func (o Options) Validate() error {
	switch o.Shrinkage {
	case "", ShrinkAuto, ShrinkAlways, ShrinkNever:
	default:
		return portfolio.Configuration("unknown shrinkage mode %q", o.Shrinkage)
	}
	switch o.Target {
	case "", TargetIdentity, TargetConstantCorrelation:
	default:
		return portfolio.Configuration("unknown shrinkage target %q", o.Target)
	}
	return nil
}

// Diagnostics describes how a Matrix was produced and how well conditioned
// it is.
type Diagnostics struct {
	Observations    int     `json:"observations"`
	Shrunk          bool    `json:"shrunk"`
	Target          Target  `json:"target,omitempty"`
	Intensity       float64 `json:"intensity"`
	ConditionNumber float64 `json:"condition_number"`
	EffectiveRank   float64 `json:"effective_rank"`
	MinEigenvalue   float64 `json:"min_eigenvalue"`
	MaxEigenvalue   float64 `json:"max_eigenvalue"`
	Regularized     bool    `json:"regularized"`
	Ridge           float64 `json:"ridge"`
}

// Matrix is an annualized covariance matrix. It is created fresh by every
// call and never modified afterwards.
type Matrix struct {
	Assets      []string      `json:"assets"`
	Cov         *mat.SymDense `json:"-"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

// Estimate computes the annualized covariance of rs.
func Estimate(rs *market.ReturnSeries, opts Options) (*Matrix, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	T, N := rs.Len(), rs.Width()
	if T < 2 {
		return nil, portfolio.DataInsufficient("covariance needs at least 2 observations, have %d", T)
	}

	X := rs.Matrix()
	sample := mat.NewSymDense(N, nil)
	stat.CovarianceMatrix(sample, X, nil)

	diag := Diagnostics{Observations: T}
	cov := sample

	shrink := false
	switch opts.Shrinkage {
	case ShrinkAlways:
		shrink = true
	case ShrinkAuto:
		shrink = float64(T) < opts.MinObsRatio*float64(N)
	}
	if shrink && N > 1 {
		target := opts.Target
		centered := demean(X)
		var delta float64
		var F *mat.SymDense
		if target == TargetConstantCorrelation {
			var ok bool
			delta, ok = constantCorrelationIntensity(centered)
			if !ok {
				opts.Log.WithField("observations", T).Warn("zero-variance asset, falling back to identity shrinkage target")
				target = TargetIdentity
			} else {
				F = constantCorrelationTarget(sample)
			}
		}
		if target == TargetIdentity {
			delta = identityIntensity(centered)
			F = identityTarget(sample)
		}
		cov = blend(sample, F, delta)
		diag.Shrunk = true
		diag.Target = target
		diag.Intensity = delta
	}

	cov.ScaleSym(opts.PeriodsPerYear, cov)

	m, err := finish(rs.Assets(), cov, diag, opts)
	if err != nil {
		return nil, err
	}
	opts.Log.WithFields(logrus.Fields{
		"assets":       N,
		"observations": T,
		"shrunk":       m.Diagnostics.Shrunk,
		"intensity":    m.Diagnostics.Intensity,
		"condition":    m.Diagnostics.ConditionNumber,
	}).Debug("covariance estimated")
	return m, nil
}

// New wraps an explicit annualized covariance matrix, enforcing PSD and
// computing diagnostics. The input is copied.
func New(assets []string, cov *mat.SymDense, opts Options) (*Matrix, error) {
	opts = opts.withDefaults()
	if cov == nil || cov.SymmetricDim() != len(assets) {
		return nil, fmt.Errorf("covariance: %d assets for a matrix of size %d", len(assets), symDim(cov))
	}
	if len(assets) == 0 {
		return nil, portfolio.DataInsufficient("covariance has no assets")
	}
	c := mat.NewSymDense(len(assets), nil)
	c.CopySym(cov)
	return finish(assets, c, Diagnostics{}, opts)
}

func symDim(s *mat.SymDense) int {
	if s == nil {
		return 0
	}
	return s.SymmetricDim()
}

func finish(assets []string, cov *mat.SymDense, diag Diagnostics, opts Options) (*Matrix, error) {
	vals, ridge, err := enforcePSD(cov, opts.PSDTolerance)
	if err != nil {
		return nil, err
	}
	if ridge > 0 {
		diag.Regularized = true
		diag.Ridge = ridge
		opts.Log.WithField("ridge", ridge).Warn("covariance was not positive semi-definite, added ridge")
	}
	diag.MinEigenvalue = vals[0]
	diag.MaxEigenvalue = vals[len(vals)-1]
	diag.ConditionNumber = conditionNumber(vals)
	diag.EffectiveRank = effectiveRank(vals)

	return &Matrix{
		Assets:      append([]string(nil), assets...),
		Cov:         cov,
		Diagnostics: diag,
	}, nil
}

func (m *Matrix) Dim() int { return len(m.Assets) }

func (m *Matrix) At(i, j int) float64 { return m.Cov.At(i, j) }

// Variance returns wᵀΣw.
func (m *Matrix) Variance(w []float64) float64 {
	v := mat.NewVecDense(len(w), append([]float64(nil), w...))
	return mat.Inner(v, m.Cov, v)
}

// Volatility returns sqrt(wᵀΣw).
func (m *Matrix) Volatility(w []float64) float64 {
	return math.Sqrt(math.Max(m.Variance(w), 0))
}

// Vols returns the per-asset volatilities.
func (m *Matrix) Vols() []float64 {
	out := make([]float64, m.Dim())
	for i := range out {
		out[i] = math.Sqrt(math.Max(m.Cov.At(i, i), 0))
	}
	return out
}

// RiskContributions returns w_i(Σw)_i / wᵀΣw for each asset. The entries sum
// to one for a portfolio with non-zero variance.
func (m *Matrix) RiskContributions(w []float64) []float64 {
	n := len(w)
	wv := mat.NewVecDense(n, append([]float64(nil), w...))
	var sw mat.VecDense
	sw.MulVec(m.Cov, wv)
	total := mat.Dot(wv, &sw)
	out := make([]float64, n)
	if total <= 0 {
		return out
	}
	for i := range out {
		out[i] = w[i] * sw.AtVec(i) / total
	}
	return out
}

// Correlation returns the correlation matrix implied by the covariance.
// Zero-variance assets get zero correlation with everything else.
func (m *Matrix) Correlation() *mat.SymDense {
	n := m.Dim()
	vol := m.Vols()
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			switch {
			case i == j:
				c.SetSym(i, j, 1)
			case vol[i] > 0 && vol[j] > 0:
				c.SetSym(i, j, m.Cov.At(i, j)/(vol[i]*vol[j]))
			}
		}
	}
	return c
}

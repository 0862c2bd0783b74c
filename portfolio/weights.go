// Package portfolio holds the types shared by the estimation, optimization
// and simulation packages: weight vectors, weight bounds and the error
// taxonomy.
package portfolio

import (
	"fmt"
	"math"
	"strings"
)

const (
	// SumTolerance is the allowed deviation of Σw from 1.
	SumTolerance = 1e-6

	// BoundTolerance is the allowed violation of a weight bound.
	BoundTolerance = 1e-9
)

// Bounds limits every weight to [Min, Max].
type Bounds struct {
	Min float64 `json:"min_weight" yaml:"min_weight"`
	Max float64 `json:"max_weight" yaml:"max_weight"`
}

// LongOnly is the default box: no shorting, no leverage.
func LongOnly() Bounds { return Bounds{Min: 0, Max: 1} }

// Feasible reports whether n weights in the box can sum to one.
func (b Bounds) Feasible(n int) error {
	if n <= 0 {
		return DataInsufficient("no assets")
	}
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min > b.Max {
		return Infeasible("min_weight %.4f > max_weight %.4f", b.Min, b.Max)
	}
	lo := float64(n) * b.Min
	hi := float64(n) * b.Max
	if lo > 1+SumTolerance || hi < 1-SumTolerance {
		return Infeasible("%d weights in [%.4f, %.4f] cannot sum to 1", n, b.Min, b.Max)
	}
	return nil
}

// Weights is a weight vector keyed by position in Assets.
type Weights struct {
	Assets []string  `json:"assets" yaml:"assets"`
	Values []float64 `json:"weights" yaml:"weights"`
}

// NewWeights copies assets and values into a Weights.
func NewWeights(assets []string, values []float64) Weights {
	return Weights{
		Assets: append([]string(nil), assets...),
		Values: append([]float64(nil), values...),
	}
}

// Equal returns 1/n for every asset.
func Equal(assets []string) Weights {
	v := make([]float64, len(assets))
	for i := range v {
		v[i] = 1 / float64(len(v))
	}
	return Weights{Assets: append([]string(nil), assets...), Values: v}
}

func (w Weights) Len() int { return len(w.Values) }

func (w Weights) Sum() float64 {
	s := 0.0
	for _, v := range w.Values {
		s += v
	}
	return s
}

// Get returns the weight of asset, or 0 if it is not held.
func (w Weights) Get(asset string) float64 {
	for i, a := range w.Assets {
		if a == asset {
			return w.Values[i]
		}
	}
	return 0
}

// Align reorders w onto assets. Assets missing from w get weight 0.
func (w Weights) Align(assets []string) []float64 {
	out := make([]float64, len(assets))
	for i, a := range assets {
		out[i] = w.Get(a)
	}
	return out
}

// Validate checks the sum-to-one and bound invariants.
func (w Weights) Validate(b Bounds) error {
	if len(w.Values) == 0 {
		return InvalidWeights("empty weight vector")
	}
	if len(w.Assets) != 0 && len(w.Assets) != len(w.Values) {
		return InvalidWeights("%d assets but %d weights", len(w.Assets), len(w.Values))
	}
	for i, v := range w.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return InvalidWeights("weight %d is not finite", i)
		}
		if v < b.Min-BoundTolerance || v > b.Max+BoundTolerance {
			return InvalidWeights("weight %s=%.6f outside [%.4f, %.4f]", w.name(i), v, b.Min, b.Max)
		}
	}
	if s := w.Sum(); math.Abs(s-1) >= SumTolerance {
		return InvalidWeights("weights sum to %.8f, want 1", s)
	}
	return nil
}

func (w Weights) name(i int) string {
	if i < len(w.Assets) {
		return w.Assets[i]
	}
	return fmt.Sprintf("#%d", i)
}

func (w Weights) String() string {
	var sb strings.Builder
	for i, v := range w.Values {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s=%.4f", w.name(i), v)
	}
	return sb.String()
}

// Turnover is the L1 distance between two weight vectors. A nil prior is
// treated as an all-cash book.
func Turnover(prior, next []float64) float64 {
	t := 0.0
	for i, v := range next {
		p := 0.0
		if i < len(prior) {
			p = prior[i]
		}
		t += math.Abs(v - p)
	}
	return t
}

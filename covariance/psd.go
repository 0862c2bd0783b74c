package covariance

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/portfolio"
)

const maxRidgeDoublings = 8

// enforcePSD makes cov positive semi-definite in place by adding a ridge to
// its diagonal when the smallest eigenvalue is below -tol (relative to the
// average variance). It returns the ascending eigenvalues of the final
// matrix and the total ridge added.
func enforcePSD(cov *mat.SymDense, tol float64) ([]float64, float64, error) {
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, 0, portfolio.SingularCovariance("entry (%d,%d) is not finite", i, j)
			}
		}
	}

	scale := mat.Trace(cov) / float64(n)
	if scale <= 0 {
		scale = 1
	}

	vals, err := eigenvalues(cov)
	if err != nil {
		return nil, 0, err
	}
	if vals[0] >= -tol*scale {
		return vals, 0, nil
	}

	ridge := 0.0
	eps := -vals[0] + 1e-8*scale
	for k := 0; k < maxRidgeDoublings; k++ {
		addDiagonal(cov, eps)
		ridge += eps
		if vals, err = eigenvalues(cov); err != nil {
			return nil, 0, err
		}
		if vals[0] >= -tol*scale {
			return vals, ridge, nil
		}
		eps *= 2
	}
	return nil, 0, portfolio.SingularCovariance("min eigenvalue %.3g after ridge %.3g", vals[0], ridge)
}

func eigenvalues(cov *mat.SymDense) ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(cov, false); !ok {
		return nil, portfolio.SingularCovariance("eigendecomposition failed")
	}
	return es.Values(nil), nil
}

func addDiagonal(cov *mat.SymDense, eps float64) {
	for i := 0; i < cov.SymmetricDim(); i++ {
		cov.SetSym(i, i, cov.At(i, i)+eps)
	}
}

func conditionNumber(vals []float64) float64 {
	lo, hi := vals[0], vals[len(vals)-1]
	if lo <= 0 {
		return math.Inf(1)
	}
	return hi / lo
}

// effectiveRank is exp of the Shannon entropy of the normalized eigenvalue
// spectrum. Negative round-off eigenvalues count as zero.
func effectiveRank(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, v := range vals {
		if v <= 0 {
			continue
		}
		p := v / total
		h -= p * math.Log(p)
	}
	return math.Exp(h)
}

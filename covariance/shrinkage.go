package covariance

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func demean(X *mat.Dense) *mat.Dense {
	T, N := X.Dims()
	out := mat.NewDense(T, N, nil)
	for j := 0; j < N; j++ {
		mean := 0.0
		for t := 0; t < T; t++ {
			mean += X.At(t, j)
		}
		mean /= float64(T)
		for t := 0; t < T; t++ {
			out.Set(t, j, X.At(t, j)-mean)
		}
	}
	return out
}

// secondMoment returns XᵀX/T for a demeaned X.
func secondMoment(X *mat.Dense) *mat.SymDense {
	T, N := X.Dims()
	S := mat.NewSymDense(N, nil)
	S.SymOuterK(1/float64(T), X.T())
	return S
}

// identityIntensity is the Ledoit-Wolf (2004) intensity toward a scaled
// identity. X must be demeaned.
func identityIntensity(X *mat.Dense) float64 {
	T, N := X.Dims()
	S := secondMoment(X)

	m := mat.Trace(S) / float64(N)
	d2 := 0.0
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			v := S.At(i, j)
			if i == j {
				v -= m
			}
			d2 += v * v
		}
	}
	if d2 == 0 {
		return 0
	}

	b2 := 0.0
	row := make([]float64, N)
	for t := 0; t < T; t++ {
		mat.Row(row, t, X)
		for i := 0; i < N; i++ {
			for j := 0; j < N; j++ {
				v := row[i]*row[j] - S.At(i, j)
				b2 += v * v
			}
		}
	}
	b2 /= float64(T) * float64(T)
	b2 = math.Min(b2, d2)
	return b2 / d2
}

// identityTarget is mI with m the average variance of S.
func identityTarget(S *mat.SymDense) *mat.SymDense {
	n := S.SymmetricDim()
	m := mat.Trace(S) / float64(n)
	F := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		F.SetSym(i, i, m)
	}
	return F
}

// constantCorrelationIntensity is the Ledoit-Wolf (2003) intensity toward
// the constant-correlation target. X must be demeaned. It reports false when
// an asset has zero variance.
func constantCorrelationIntensity(X *mat.Dense) (float64, bool) {
	T, N := X.Dims()
	S := secondMoment(X)

	s := make([]float64, N)
	for i := range s {
		s[i] = S.At(i, i)
		if s[i] <= 0 {
			return 0, false
		}
	}
	rbar := averageCorrelation(S, s)

	// pi[i][j] = mean_t (x_ti x_tj - s_ij)²
	// theta[i][j] = mean_t (x_ti² - s_ii)(x_ti x_tj - s_ij)
	pi := make([][]float64, N)
	theta := make([][]float64, N)
	for i := range pi {
		pi[i] = make([]float64, N)
		theta[i] = make([]float64, N)
	}
	row := make([]float64, N)
	for t := 0; t < T; t++ {
		mat.Row(row, t, X)
		for i := 0; i < N; i++ {
			sq := row[i]*row[i] - s[i]
			for j := 0; j < N; j++ {
				v := row[i]*row[j] - S.At(i, j)
				pi[i][j] += v * v
				theta[i][j] += sq * v
			}
		}
	}
	piHat, rho, gamma := 0.0, 0.0, 0.0
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			pi[i][j] /= float64(T)
			theta[i][j] /= float64(T)
		}
	}
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			piHat += pi[i][j]
			if i == j {
				rho += pi[i][i]
				continue
			}
			rho += rbar / 2 * (math.Sqrt(s[j]/s[i])*theta[i][j] + math.Sqrt(s[i]/s[j])*theta[j][i])
			f := rbar * math.Sqrt(s[i]*s[j])
			d := f - S.At(i, j)
			gamma += d * d
		}
	}
	if gamma == 0 {
		return 0, true
	}
	kappa := (piHat - rho) / gamma
	return math.Max(0, math.Min(1, kappa/float64(T))), true
}

func averageCorrelation(S *mat.SymDense, s []float64) float64 {
	n := len(s)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += S.At(i, j) / math.Sqrt(s[i]*s[j])
		}
	}
	return 2 * sum / float64(n*(n-1))
}

// constantCorrelationTarget keeps the variances of S and replaces every
// correlation by their average.
func constantCorrelationTarget(S *mat.SymDense) *mat.SymDense {
	n := S.SymmetricDim()
	s := make([]float64, n)
	for i := range s {
		s[i] = S.At(i, i)
	}
	rbar := averageCorrelation(S, s)
	F := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		F.SetSym(i, i, s[i])
		for j := i + 1; j < n; j++ {
			F.SetSym(i, j, rbar*math.Sqrt(s[i]*s[j]))
		}
	}
	return F
}

// blend returns (1-δ)S + δF.
func blend(S, F *mat.SymDense, delta float64) *mat.SymDense {
	n := S.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (1-delta)*S.At(i, j)+delta*F.At(i, j))
		}
	}
	return out
}

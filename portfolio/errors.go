package portfolio

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every package in the engine. Callers match with
// errors.Is; the constructors below add context while keeping the sentinel
// in the chain.
var (
	// ErrDataInsufficient means the inputs do not hold enough observations.
	ErrDataInsufficient = errors.New("insufficient data")

	// ErrSingularCovariance means a covariance matrix could not be made PSD.
	ErrSingularCovariance = errors.New("singular covariance")

	// ErrInfeasible means the constraints admit no portfolio.
	ErrInfeasible = errors.New("optimization infeasible")

	// ErrConvergence means an iterative method stopped before meeting its tolerance.
	ErrConvergence = errors.New("convergence failure")

	// ErrInvalidWeights means caller supplied weights break the sum or bound invariants.
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrConfiguration means a run configuration is inconsistent.
	ErrConfiguration = errors.New("configuration error")
)

// DataInsufficient wraps ErrDataInsufficient with a formatted message.
func DataInsufficient(format string, args ...any) error {
	return wrap(ErrDataInsufficient, format, args...)
}

// SingularCovariance wraps ErrSingularCovariance with a formatted message.
func SingularCovariance(format string, args ...any) error {
	return wrap(ErrSingularCovariance, format, args...)
}

// Infeasible wraps ErrInfeasible with a formatted message.
func Infeasible(format string, args ...any) error {
	return wrap(ErrInfeasible, format, args...)
}

// InvalidWeights wraps ErrInvalidWeights with a formatted message.
func InvalidWeights(format string, args ...any) error {
	return wrap(ErrInvalidWeights, format, args...)
}

// Configuration wraps ErrConfiguration with a formatted message.
func Configuration(format string, args ...any) error {
	return wrap(ErrConfiguration, format, args...)
}

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// ConvergenceError is returned alongside a best-effort result when an
// iterative solver runs out of iterations.
type ConvergenceError struct {
	Method     string
	Iterations int
	Residual   float64
	Tolerance  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: %s did not converge after %d iterations (residual %.3g > tol %.3g)",
		ErrConvergence, e.Method, e.Iterations, e.Residual, e.Tolerance)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// Kind classifies err by the corrective action a user has to take. It
// returns "" for errors outside the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataInsufficient):
		return "insufficient data: supply a longer history or fewer assets"
	case errors.Is(err, ErrSingularCovariance):
		return "singular covariance: the return series are degenerate"
	case errors.Is(err, ErrInfeasible):
		return "infeasible constraints: relax bounds, target return or turnover cap"
	case errors.Is(err, ErrConvergence):
		return "solver did not converge: raise the iteration limit or loosen the tolerance"
	case errors.Is(err, ErrInvalidWeights):
		return "invalid weights: weights must sum to 1 and respect the bounds"
	case errors.Is(err, ErrConfiguration):
		return "configuration error: fix the run configuration"
	}
	return ""
}

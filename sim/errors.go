package sim

import "errors"

// Sentinel errors classifying why a model could not be built or a simulation could not run.
// Callers match them with errors.Is; messages carry the detail.
var (
	// ErrInvalidParameter covers missing or out-of-range model parameters, frequency vectors
	// that do not sum to 1, and negative branch lengths.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInconsistent covers inputs that are individually valid but do not fit together:
	// a branch label with no matching model, mismatched alphabets or category counts.
	ErrInconsistent = errors.New("inconsistent configuration")

	// ErrNumerical is returned when no matrix exponential method produced a row-stochastic P(t).
	ErrNumerical = errors.New("numerical failure")
)

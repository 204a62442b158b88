package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// probabilityTolerance bounds how far a probability vector may sum from 1.
const probabilityTolerance = 1e-6

// RateCategory is one class of among-site rate variation.
type RateCategory struct {
	Rate        float64 // relative substitution rate multiplier (>= 0)
	Probability float64 // probability a site falls in this class
}

// DefaultRateCategories is the homogeneous case: one category, rate 1.
func DefaultRateCategories() []RateCategory {
	return []RateCategory{{Rate: 1, Probability: 1}}
}

// NewRateCategories pairs explicit rates with probabilities.
func NewRateCategories(rates, probs []float64) ([]RateCategory, error) {
	if len(rates) != len(probs) {
		return nil, fmt.Errorf("%w: %d rates but %d probabilities", ErrInvalidParameter, len(rates), len(probs))
	}
	cats := make([]RateCategory, len(rates))
	for i := range rates {
		cats[i] = RateCategory{Rate: rates[i], Probability: probs[i]}
	}
	if err := ValidateRateCategories(cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// GammaRateCategories discretizes a mean-one gamma distribution with shape alpha
// into n equiprobable categories, each represented by its conditional mean.
func GammaRateCategories(alpha float64, n int) ([]RateCategory, error) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha <= 0 {
		return nil, fmt.Errorf("%w: gamma shape alpha must be a positive finite number, got %f", ErrInvalidParameter, alpha)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: num_categories must be at least 1, got %d", ErrInvalidParameter, n)
	}
	if n == 1 {
		return DefaultRateCategories(), nil
	}
	g := distuv.Gamma{Alpha: alpha, Beta: alpha}
	cats := make([]RateCategory, n)
	lower := 0.0 // incomplete gamma ratio at the previous cut point
	for k := 0; k < n; k++ {
		upper := 1.0
		if k < n-1 {
			cut := g.Quantile(float64(k+1) / float64(n))
			upper = mathext.GammaIncReg(alpha+1, cut*alpha)
		}
		cats[k] = RateCategory{Rate: float64(n) * (upper - lower), Probability: 1 / float64(n)}
		lower = upper
	}
	return cats, nil
}

// WithInvariantSites appends a rate-zero category holding proportion pinv of sites.
// Variable categories are rescaled so the mean rate stays 1.
func WithInvariantSites(cats []RateCategory, pinv float64) ([]RateCategory, error) {
	if math.IsNaN(pinv) || pinv < 0 || pinv >= 1 {
		return nil, fmt.Errorf("%w: proportion of invariant sites must be in [0, 1), got %f", ErrInvalidParameter, pinv)
	}
	if pinv == 0 {
		return cats, nil
	}
	out := make([]RateCategory, 0, len(cats)+1)
	for _, c := range cats {
		out = append(out, RateCategory{Rate: c.Rate / (1 - pinv), Probability: c.Probability * (1 - pinv)})
	}
	return append(out, RateCategory{Rate: 0, Probability: pinv}), nil
}

// ValidateRateCategories checks that rates are non-negative and probabilities form a distribution.
func ValidateRateCategories(cats []RateCategory) error {
	if len(cats) == 0 {
		return fmt.Errorf("%w: at least one rate category required", ErrInvalidParameter)
	}
	total := 0.0
	for i, c := range cats {
		if math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) || c.Rate < 0 {
			return fmt.Errorf("%w: rate category %d: rate must be a non-negative finite number, got %f", ErrInvalidParameter, i+1, c.Rate)
		}
		if math.IsNaN(c.Probability) || c.Probability < 0 {
			return fmt.Errorf("%w: rate category %d: probability must be non-negative, got %f", ErrInvalidParameter, i+1, c.Probability)
		}
		total += c.Probability
	}
	if math.Abs(total-1) > probabilityTolerance {
		return fmt.Errorf("%w: rate category probabilities sum to %f, want 1", ErrInvalidParameter, total)
	}
	return nil
}

// ValidateFrequencies checks that freqs is a probability vector over alphabet.
func ValidateFrequencies(alphabet Alphabet, freqs []float64) error {
	if len(freqs) != alphabet.Size() {
		return fmt.Errorf("%w: %s frequencies need %d entries, got %d", ErrInvalidParameter, alphabet, alphabet.Size(), len(freqs))
	}
	total := 0.0
	for i, f := range freqs {
		if math.IsNaN(f) || f < 0 {
			return fmt.Errorf("%w: frequency of %s must be non-negative, got %f", ErrInvalidParameter, alphabet.Symbol(i), f)
		}
		total += f
	}
	if math.Abs(total-1) > probabilityTolerance {
		return fmt.Errorf("%w: %s frequencies sum to %.8f, want 1", ErrInvalidParameter, alphabet, total)
	}
	return nil
}

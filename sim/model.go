package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// rowZeroTolerance bounds |sum_j Q_ij| relative to |Q_ii|.
const rowZeroTolerance = 1e-10

// stationaryTolerance bounds |(pi Q)_j| relative to the largest |Q_ij|.
const stationaryTolerance = 1e-8

// SubstitutionModel is an immutable continuous-time Markov substitution process:
// a validated rate matrix Q, its stationary distribution, among-site rate categories
// and the label branches use to select it.
//
// Q is decomposed once at construction; every P(t) afterwards costs O(n^2) per row.
// A SubstitutionModel is safe for concurrent use.
type SubstitutionModel struct {
	label      string
	alphabet   Alphabet
	q          *mat.Dense
	stationary []float64
	categories []RateCategory

	engine   expEngine
	fallback *padeEngine
}

// NewSubstitutionModel validates q and stationary and precomputes the decomposition
// used for transition probabilities. A nil or empty categories slice means DefaultRateCategories.
func NewSubstitutionModel(label string, alphabet Alphabet, q mat.Matrix, stationary []float64, categories []RateCategory) (*SubstitutionModel, error) {
	prefix := "model"
	if label != "" {
		prefix = fmt.Sprintf("model %q", label)
	}
	n := alphabet.Size()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s: unknown alphabet %v", ErrInvalidParameter, prefix, alphabet)
	}
	if r, c := q.Dims(); r != n || c != n {
		return nil, fmt.Errorf("%w: %s: rate matrix is %dx%d, %s alphabet needs %dx%d", ErrInconsistent, prefix, r, c, alphabet, n, n)
	}
	if err := ValidateFrequencies(alphabet, stationary); err != nil {
		return nil, fmt.Errorf("%s: stationary distribution: %w", prefix, err)
	}
	if len(categories) == 0 {
		categories = DefaultRateCategories()
	}
	if err := ValidateRateCategories(categories); err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	qc := mat.DenseCopyOf(q)
	if err := validateRateMatrix(qc); err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	if err := validateStationary(qc, stationary); err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}

	m := &SubstitutionModel{
		label:      label,
		alphabet:   alphabet,
		q:          qc,
		stationary: append([]float64(nil), stationary...),
		categories: append([]RateCategory(nil), categories...),
		engine:     newExpEngine(qc, stationary),
		fallback:   newPadeEngine(qc),
	}
	logrus.Debugf("%s: %s alphabet, %d rate categories, transition method %s",
		prefix, alphabet, len(categories), m.engine.method())
	return m, nil
}

// validateRateMatrix enforces non-negative finite off-diagonals and zero row sums.
func validateRateMatrix(q *mat.Dense) error {
	n, _ := q.Dims()
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			v := q.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: Q[%d][%d] is not finite", ErrInvalidParameter, i, j)
			}
			if i != j && v < 0 {
				return fmt.Errorf("%w: Q[%d][%d] = %g is a negative rate", ErrInvalidParameter, i, j, v)
			}
			sum += v
		}
		if q.At(i, i) > 0 {
			return fmt.Errorf("%w: Q[%d][%d] = %g is a positive diagonal", ErrInconsistent, i, i, q.At(i, i))
		}
		if math.Abs(sum) > rowZeroTolerance*math.Max(1, math.Abs(q.At(i, i))) {
			return fmt.Errorf("%w: row %d of Q sums to %g, want 0", ErrInvalidParameter, i, sum)
		}
	}
	return nil
}

// validateStationary checks pi Q = 0, i.e. pi is a left null vector of Q.
func validateStationary(q *mat.Dense, pi []float64) error {
	n, _ := q.Dims()
	scale := 1.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(q.At(i, i)))
	}
	for j := 0; j < n; j++ {
		flux := 0.0
		for i := 0; i < n; i++ {
			flux += pi[i] * q.At(i, j)
		}
		if math.Abs(flux) > stationaryTolerance*scale {
			return fmt.Errorf("%w: stationary distribution is not invariant under Q ((pi Q)[%d] = %g)", ErrInconsistent, j, flux)
		}
	}
	return nil
}

// Label returns the name branches use to select this model.
func (m *SubstitutionModel) Label() string { return m.label }

// Alphabet returns the model's state space.
func (m *SubstitutionModel) Alphabet() Alphabet { return m.alphabet }

// Q returns a copy of the instantaneous rate matrix.
func (m *SubstitutionModel) Q() *mat.Dense { return mat.DenseCopyOf(m.q) }

// Stationary returns a copy of the stationary distribution.
func (m *SubstitutionModel) Stationary() []float64 {
	return append([]float64(nil), m.stationary...)
}

// RateCategories returns a copy of the among-site rate categories.
func (m *SubstitutionModel) RateCategories() []RateCategory {
	return append([]RateCategory(nil), m.categories...)
}

// NumCategories is the number of among-site rate categories.
func (m *SubstitutionModel) NumCategories() int { return len(m.categories) }

// Method names the primary matrix exponential method chosen for Q.
func (m *SubstitutionModel) Method() string { return m.engine.method() }

// TransitionRow returns row from of P_c(t) = exp(Q rate_c t) for rate category c (0-based).
func (m *SubstitutionModel) TransitionRow(t float64, category, from int) ([]float64, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return nil, fmt.Errorf("%w: branch length must be finite and non-negative, got %f", ErrInvalidParameter, t)
	}
	if category < 0 || category >= len(m.categories) {
		return nil, fmt.Errorf("%w: rate category %d out of range [0, %d)", ErrInconsistent, category, len(m.categories))
	}
	n := m.alphabet.Size()
	if from < 0 || from >= n {
		return nil, fmt.Errorf("%w: state %d out of range [0, %d)", ErrInconsistent, from, n)
	}
	row := make([]float64, n)
	scaled := t * m.categories[category].Rate
	if math.IsInf(scaled, 0) {
		return nil, fmt.Errorf("%w: branch length %g scaled by rate %g overflows", ErrInvalidParameter, t, m.categories[category].Rate)
	}
	if scaled == 0 {
		row[from] = 1
		return row, nil
	}
	m.engine.row(scaled, from, row)
	if checkStochasticRow(row) {
		return row, nil
	}
	if m.engine.method() != MethodPade {
		logrus.Warnf("model %q: %s transition row for t=%g is not stochastic; retrying with Padé exponential",
			m.label, m.engine.method(), scaled)
		m.fallback.row(scaled, from, row)
		if checkStochasticRow(row) {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: model %q: P(%g) row %d does not sum to 1 within %g", ErrNumerical, m.label, scaled, from, rowSumTolerance)
}

// TransitionMatrix returns P_c(t) for rate category c (0-based).
func (m *SubstitutionModel) TransitionMatrix(t float64, category int) (*mat.Dense, error) {
	n := m.alphabet.Size()
	p := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		row, err := m.TransitionRow(t, category, i)
		if err != nil {
			return nil, err
		}
		p.SetRow(i, row)
	}
	return p, nil
}

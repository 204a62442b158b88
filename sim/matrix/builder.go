// Package matrix builds instantaneous rate matrices (Q) for each supported model class.
//
// Every builder is a pure function of its validated parameters: constructors check
// parameters eagerly, BuildQ returns a matrix whose rows sum to zero and whose mean
// substitution rate under the stationary distribution is 1, and Stationary returns
// the distribution that matrix preserves.
package matrix

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// Builder is the capability shared by every model class.
type Builder interface {
	// Alphabet is the state space of the built matrix.
	Alphabet() sim.Alphabet
	// BuildQ returns the normalized instantaneous rate matrix.
	BuildQ() (*mat.Dense, error)
	// Stationary returns the equilibrium distribution of BuildQ's matrix.
	Stationary() ([]float64, error)
}

// NewModel builds b's matrix and wraps it as a labeled SubstitutionModel.
func NewModel(label string, b Builder, categories []sim.RateCategory) (*sim.SubstitutionModel, error) {
	q, err := b.BuildQ()
	if err != nil {
		return nil, err
	}
	pi, err := b.Stationary()
	if err != nil {
		return nil, err
	}
	return sim.NewSubstitutionModel(label, b.Alphabet(), q, pi, categories)
}

// Scaling selects how a codon matrix is normalized.
type Scaling string

const (
	// ScalingYang normalizes the mean substitution rate to 1 (the default).
	ScalingYang Scaling = "yang"
	// ScalingNeutral normalizes by the mean rate the matrix would have with no selection
	// (omega = 1), so branch lengths count neutral substitutions.
	ScalingNeutral Scaling = "neutral"
)

func validateScaling(s Scaling) error {
	switch s {
	case "", ScalingYang, ScalingNeutral:
		return nil
	}
	return fmt.Errorf("%w: unknown scaling %q; valid: yang, neutral", sim.ErrInvalidParameter, s)
}

// === Nucleotide mutation process ===

// nucleotidePairs are the six unordered nucleotide pairs, each written alphabetically.
var nucleotidePairs = []string{"AC", "AG", "AT", "CG", "CT", "GT"}

// Mutation is a symmetric nucleotide-level mutation process, given either as six
// exchangeabilities keyed by alphabetical pair ("AC", "AG", "AT", "CG", "CT", "GT")
// or as a single transition/transversion ratio Kappa. Exactly one form must be set.
type Mutation struct {
	Mu    map[string]float64
	Kappa *float64
}

// EqualMutation is the Jukes-Cantor mutation process: all six rates equal to 1.
func EqualMutation() Mutation {
	mu := make(map[string]float64, len(nucleotidePairs))
	for _, p := range nucleotidePairs {
		mu[p] = 1
	}
	return Mutation{Mu: mu}
}

// KappaMutation is the HKY/K80 mutation process with transition/transversion ratio kappa.
func KappaMutation(kappa float64) Mutation {
	return Mutation{Kappa: &kappa}
}

// rates expands the mutation process into a symmetric 4x4 matrix over ACGT.
func (m Mutation) rates() ([4][4]float64, error) {
	var r [4][4]float64
	switch {
	case m.Mu != nil && m.Kappa != nil:
		return r, fmt.Errorf("%w: set either mu or kappa, not both", sim.ErrInvalidParameter)
	case m.Mu != nil:
		for key := range m.Mu {
			if !isNucleotidePair(key) {
				return r, fmt.Errorf("%w: unknown mutation rate key %q; valid: %v (alphabetical order)", sim.ErrInvalidParameter, key, nucleotidePairs)
			}
		}
		for _, pair := range nucleotidePairs {
			v, ok := m.Mu[pair]
			if !ok {
				return r, fmt.Errorf("%w: missing mutation rate %q", sim.ErrInvalidParameter, pair)
			}
			if err := nonNegative("mu."+pair, v); err != nil {
				return r, err
			}
			i, j := nucleotideIndex(pair[0]), nucleotideIndex(pair[1])
			r[i][j], r[j][i] = v, v
		}
	case m.Kappa != nil:
		if err := nonNegative("kappa", *m.Kappa); err != nil {
			return r, err
		}
		for _, pair := range nucleotidePairs {
			v := 1.0
			if pair == "AG" || pair == "CT" {
				v = *m.Kappa
			}
			i, j := nucleotideIndex(pair[0]), nucleotideIndex(pair[1])
			r[i][j], r[j][i] = v, v
		}
	default:
		return r, fmt.Errorf("%w: missing mutation parameters (mu or kappa)", sim.ErrInvalidParameter)
	}
	return r, nil
}

func isNucleotidePair(key string) bool {
	i := sort.SearchStrings(nucleotidePairs, key)
	return i < len(nucleotidePairs) && nucleotidePairs[i] == key
}

func nucleotideIndex(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	}
	return -1
}

// === Shared helpers ===

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a non-negative finite number, got %f", sim.ErrInvalidParameter, name, v)
	}
	return nil
}

// validateFrequencies checks a required stationary vector.
func validateFrequencies(alphabet sim.Alphabet, freqs []float64) error {
	if freqs == nil {
		return fmt.Errorf("%w: missing %s state frequencies", sim.ErrInvalidParameter, alphabet)
	}
	return sim.ValidateFrequencies(alphabet, freqs)
}

// fillDiagonal sets each diagonal entry to the negative sum of its row's off-diagonals.
func fillDiagonal(q *mat.Dense) error {
	n, _ := q.Dims()
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if v := q.At(i, j); v < 0 || math.IsNaN(v) {
				return fmt.Errorf("%w: rate %d->%d is %g", sim.ErrInvalidParameter, i, j, v)
			}
			sum += q.At(i, j)
		}
		q.Set(i, i, -sum)
	}
	return nil
}

// meanRate is -sum_i pi_i Q_ii, the expected number of substitutions per unit time.
func meanRate(q *mat.Dense, pi []float64) float64 {
	diag := make([]float64, len(pi))
	for i := range pi {
		diag[i] = q.At(i, i)
	}
	return -floats.Dot(pi, diag)
}

// normalize divides q by scale, rejecting matrices with no substitutions at all.
func normalize(q *mat.Dense, scale float64) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: matrix has mean substitution rate %g; at least one rate between states with positive frequency is required",
			sim.ErrInvalidParameter, scale)
	}
	q.Scale(1/scale, q)
	return nil
}

// finalize fills the diagonal and normalizes q to mean rate 1 under pi.
func finalize(q *mat.Dense, pi []float64) (*mat.Dense, error) {
	if err := fillDiagonal(q); err != nil {
		return nil, err
	}
	if err := normalize(q, meanRate(q, pi)); err != nil {
		return nil, err
	}
	return q, nil
}

// reversibleQ is the common functional form Q_ij = S_ij * pi_j for a symmetric
// exchangeability matrix S.
func reversibleQ(exch func(i, j int) float64, pi []float64) (*mat.Dense, error) {
	n := len(pi)
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				q.Set(i, j, exch(i, j)*pi[j])
			}
		}
	}
	return finalize(q, pi)
}

// codonChange reports the single position at which two codons differ and the
// nucleotides involved; ok is false when they differ at zero or several positions.
func codonChange(a, b string) (pos int, from, to byte, ok bool) {
	diffs := 0
	for p := 0; p < 3; p++ {
		if a[p] != b[p] {
			diffs++
			pos, from, to = p, a[p], b[p]
		}
	}
	return pos, from, to, diffs == 1
}

package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// frequencyFloor replaces zero frequencies when fitness is derived from them,
// keeping every state reachable.
const frequencyFloor = 1e-12

// MutationSelectionParams parameterizes the Halpern-Bruno mutation-selection model
// over nucleotides or codons. Selection is given either as per-state scaled fitness
// values or as target equilibrium frequencies (fitness = log frequency).
type MutationSelectionParams struct {
	Alphabet    sim.Alphabet
	Mutation    Mutation
	Fitness     []float64
	Frequencies []float64
}

// MutationSelectionBuilder builds Q_ij = mu(i->j) * fix(F_j - F_i), where
// fix(x) = x / (1 - e^-x) and fix(0) = 1. Codons differing at more than one
// position have rate 0.
type MutationSelectionBuilder struct {
	alphabet sim.Alphabet
	rates    [4][4]float64
	fitness  []float64
}

// NewMutationSelectionBuilder validates p.
func NewMutationSelectionBuilder(p MutationSelectionParams) (*MutationSelectionBuilder, error) {
	if p.Alphabet != sim.Nucleotide && p.Alphabet != sim.Codon {
		return nil, fmt.Errorf("%w: mutation-selection models need a nucleotide or codon alphabet, got %s", sim.ErrInvalidParameter, p.Alphabet)
	}
	rates, err := p.Mutation.rates()
	if err != nil {
		return nil, err
	}
	b := &MutationSelectionBuilder{alphabet: p.Alphabet, rates: rates}
	n := p.Alphabet.Size()
	switch {
	case p.Fitness != nil && p.Frequencies != nil:
		return nil, fmt.Errorf("%w: set either fitness or frequencies, not both", sim.ErrInvalidParameter)
	case p.Fitness != nil:
		if len(p.Fitness) != n {
			return nil, fmt.Errorf("%w: %s fitness needs %d values, got %d", sim.ErrInvalidParameter, p.Alphabet, n, len(p.Fitness))
		}
		for i, f := range p.Fitness {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: fitness of %s is not finite", sim.ErrInvalidParameter, p.Alphabet.Symbol(i))
			}
		}
		b.fitness = append([]float64(nil), p.Fitness...)
	case p.Frequencies != nil:
		if err := sim.ValidateFrequencies(p.Alphabet, p.Frequencies); err != nil {
			return nil, err
		}
		b.fitness = FitnessFromFrequencies(p.Frequencies)
	default:
		return nil, fmt.Errorf("%w: missing selection parameters (fitness or frequencies)", sim.ErrInvalidParameter)
	}
	return b, nil
}

// FitnessFromFrequencies returns log frequencies, flooring zeros.
func FitnessFromFrequencies(freqs []float64) []float64 {
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = math.Log(math.Max(f, frequencyFloor))
	}
	return out
}

// FixationProbability is the Halpern-Bruno relative fixation rate for a scaled
// selection coefficient x.
func FixationProbability(x float64) float64 {
	if x == 0 {
		return 1
	}
	return x / -math.Expm1(-x)
}

// Alphabet is the nucleotide or codon alphabet the fitness values index.
func (b *MutationSelectionBuilder) Alphabet() sim.Alphabet { return b.alphabet }

// BuildQ applies the Halpern-Bruno fixation probability to the mutation rates.
func (b *MutationSelectionBuilder) BuildQ() (*mat.Dense, error) {
	pi, err := b.Stationary()
	if err != nil {
		return nil, err
	}
	states := b.alphabet.States()
	n := len(states)
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			var mu float64
			if b.alphabet == sim.Nucleotide {
				mu = b.rates[nucleotideIndex(states[i][0])][nucleotideIndex(states[j][0])]
			} else {
				_, from, to, ok := codonChange(states[i], states[j])
				if !ok {
					continue
				}
				mu = b.rates[nucleotideIndex(from)][nucleotideIndex(to)]
			}
			if mu == 0 {
				continue
			}
			q.Set(i, j, mu*FixationProbability(b.fitness[j]-b.fitness[i]))
		}
	}
	return finalize(q, pi)
}

// Stationary is pi_i proportional to exp(F_i), the equilibrium under symmetric mutation.
func (b *MutationSelectionBuilder) Stationary() ([]float64, error) {
	maxF := math.Inf(-1)
	for _, f := range b.fitness {
		maxF = math.Max(maxF, f)
	}
	pi := make([]float64, len(b.fitness))
	total := 0.0
	for i, f := range b.fitness {
		pi[i] = math.Exp(f - maxF)
		total += pi[i]
	}
	for i := range pi {
		pi[i] /= total
	}
	return pi, nil
}

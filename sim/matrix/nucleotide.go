package matrix

import (
	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// NucleotideParams parameterizes the GTR family. JC69, K80, F81, HKY85 and TN93 are
// presets of the same form: equal or kappa-only mutation rates, equal or custom frequencies.
type NucleotideParams struct {
	Mutation    Mutation
	Frequencies []float64 // over A, C, G, T
}

// NucleotideBuilder builds Q_ij = mu(i,j) * pi_j over nucleotides.
type NucleotideBuilder struct {
	rates [4][4]float64
	freqs []float64
}

// NewNucleotideBuilder validates p.
func NewNucleotideBuilder(p NucleotideParams) (*NucleotideBuilder, error) {
	rates, err := p.Mutation.rates()
	if err != nil {
		return nil, err
	}
	if err := validateFrequencies(sim.Nucleotide, p.Frequencies); err != nil {
		return nil, err
	}
	return &NucleotideBuilder{rates: rates, freqs: append([]float64(nil), p.Frequencies...)}, nil
}

// Alphabet is sim.Nucleotide.
func (b *NucleotideBuilder) Alphabet() sim.Alphabet { return sim.Nucleotide }

// BuildQ returns Q_ij = r_ij pi_j normalized to mean rate 1.
func (b *NucleotideBuilder) BuildQ() (*mat.Dense, error) {
	return reversibleQ(func(i, j int) float64 { return b.rates[i][j] }, b.freqs)
}

// Stationary returns a copy of the supplied frequencies.
func (b *NucleotideBuilder) Stationary() ([]float64, error) {
	return append([]float64(nil), b.freqs...), nil
}

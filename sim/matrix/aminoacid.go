package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// AminoAcidParams names an empirical table and, optionally, frequencies that replace
// the table's published ones.
type AminoAcidParams struct {
	Table       *Exchangeabilities
	Frequencies []float64
}

// AminoAcidBuilder builds Q_ij = S_ij * pi_j over amino acids.
type AminoAcidBuilder struct {
	table *Exchangeabilities
	freqs []float64
}

// NewAminoAcidBuilder validates p.
func NewAminoAcidBuilder(p AminoAcidParams) (*AminoAcidBuilder, error) {
	table, freqs, err := empiricalInputs(sim.AminoAcid, p.Table, p.Frequencies)
	if err != nil {
		return nil, err
	}
	return &AminoAcidBuilder{table: table, freqs: freqs}, nil
}

// Alphabet is sim.AminoAcid.
func (b *AminoAcidBuilder) Alphabet() sim.Alphabet { return sim.AminoAcid }

// BuildQ weights the table exchangeabilities by pi_j and normalizes to mean rate 1.
func (b *AminoAcidBuilder) BuildQ() (*mat.Dense, error) {
	return reversibleQ(func(i, j int) float64 { return b.table.Rates[i][j] }, b.freqs)
}

// Stationary returns the custom frequencies, or the table's own when none were given.
func (b *AminoAcidBuilder) Stationary() ([]float64, error) {
	return append([]float64(nil), b.freqs...), nil
}

// empiricalInputs checks a table against alphabet and resolves the frequencies to use.
func empiricalInputs(alphabet sim.Alphabet, table *Exchangeabilities, freqs []float64) (*Exchangeabilities, []float64, error) {
	if table == nil {
		return nil, nil, fmt.Errorf("%w: missing %s exchangeability table", sim.ErrInvalidParameter, alphabet)
	}
	if table.Alphabet != alphabet {
		return nil, nil, fmt.Errorf("%w: table %q is over %s, want %s", sim.ErrInconsistent, table.Name, table.Alphabet, alphabet)
	}
	if freqs == nil {
		if table.Frequencies == nil {
			return nil, nil, fmt.Errorf("%w: table %q has no published frequencies; supply state frequencies", sim.ErrInvalidParameter, table.Name)
		}
		freqs = table.Frequencies
	}
	if err := sim.ValidateFrequencies(alphabet, freqs); err != nil {
		return nil, nil, err
	}
	return table, append([]float64(nil), freqs...), nil
}

package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// CodonSubset restricts an empirical codon matrix to some kinds of changes.
type CodonSubset string

const (
	SubsetAll           CodonSubset = "all"
	SubsetSynonymous    CodonSubset = "synonymous"
	SubsetNonsynonymous CodonSubset = "nonsynonymous"
)

// EmpiricalCodonParams parameterizes ECM-style models (Kosiol et al. 2007).
type EmpiricalCodonParams struct {
	Table       *Exchangeabilities
	Frequencies []float64
	Omega       *float64 // multiplies nonsynonymous exchangeabilities; default 1
	Subset      CodonSubset
}

// EmpiricalCodonBuilder builds Q_ij = S_ij * pi_j * (omega if nonsynonymous) over codons,
// with exchangeabilities outside the selected subset set to zero.
type EmpiricalCodonBuilder struct {
	table  *Exchangeabilities
	freqs  []float64
	omega  float64
	subset CodonSubset
}

// NewEmpiricalCodonBuilder validates p.
func NewEmpiricalCodonBuilder(p EmpiricalCodonParams) (*EmpiricalCodonBuilder, error) {
	table, freqs, err := empiricalInputs(sim.Codon, p.Table, p.Frequencies)
	if err != nil {
		return nil, err
	}
	b := &EmpiricalCodonBuilder{table: table, freqs: freqs, omega: 1, subset: p.Subset}
	if p.Omega != nil {
		if err := nonNegative("omega", *p.Omega); err != nil {
			return nil, err
		}
		b.omega = *p.Omega
	}
	switch b.subset {
	case "":
		b.subset = SubsetAll
	case SubsetAll, SubsetSynonymous, SubsetNonsynonymous:
	default:
		return nil, fmt.Errorf("%w: unknown codon subset %q; valid: all, synonymous, nonsynonymous", sim.ErrInvalidParameter, p.Subset)
	}
	return b, nil
}

// Alphabet is sim.Codon.
func (b *EmpiricalCodonBuilder) Alphabet() sim.Alphabet { return sim.Codon }

// BuildQ scales nonsynonymous exchangeabilities by omega and zeroes the pairs
// excluded by the subset.
func (b *EmpiricalCodonBuilder) BuildQ() (*mat.Dense, error) {
	codons := sim.Codon.States()
	return reversibleQ(func(i, j int) float64 {
		syn := sim.IsSynonymous(codons[i], codons[j])
		switch {
		case b.subset == SubsetSynonymous && !syn:
			return 0
		case b.subset == SubsetNonsynonymous && syn:
			return 0
		case !syn:
			return b.table.Rates[i][j] * b.omega
		}
		return b.table.Rates[i][j]
	}, b.freqs)
}

// Stationary returns the codon frequencies the builder was given.
func (b *EmpiricalCodonBuilder) Stationary() ([]float64, error) {
	return append([]float64(nil), b.freqs...), nil
}

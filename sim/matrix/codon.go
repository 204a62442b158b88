package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/phylosim/phylosim/sim"
)

// CodonForm selects which equilibrium frequency enters a mechanistic codon rate.
type CodonForm string

const (
	// FormGY94 multiplies by the target codon's frequency (Goldman and Yang 1994).
	FormGY94 CodonForm = "GY94"
	// FormMG94 multiplies by the target nucleotide's frequency at the changed codon
	// position (Muse and Gaut 1994); position frequencies are derived from the codon
	// frequencies (F3x4).
	FormMG94 CodonForm = "MG94"
)

// MechanisticCodonParams parameterizes the GY94/MG94 family. Selection is given either
// as Omega (dN/dS) or as separate Alpha (synonymous) and Beta (nonsynonymous) rates.
type MechanisticCodonParams struct {
	Mutation    Mutation
	Omega       *float64
	Alpha       *float64
	Beta        *float64
	Frequencies []float64 // over the 61 sense codons
	Form        CodonForm
	Scaling     Scaling
}

// MechanisticCodonBuilder builds single-nucleotide-change codon matrices:
// Q_ij = mu(nucleotide change) * target frequency * (Beta if nonsynonymous else Alpha).
// Codons differing at more than one position have rate 0; stop codons are not states.
type MechanisticCodonBuilder struct {
	rates     [4][4]float64
	syn       float64
	nonsyn    float64
	freqs     []float64
	positions [3][4]float64 // F3x4 nucleotide frequencies, used by MG94
	form      CodonForm
	scaling   Scaling
}

// NewMechanisticCodonBuilder validates p.
func NewMechanisticCodonBuilder(p MechanisticCodonParams) (*MechanisticCodonBuilder, error) {
	rates, err := p.Mutation.rates()
	if err != nil {
		return nil, err
	}
	b := &MechanisticCodonBuilder{rates: rates, form: p.Form, scaling: p.Scaling}
	switch {
	case p.Omega != nil && (p.Alpha != nil || p.Beta != nil):
		return nil, fmt.Errorf("%w: set either omega or alpha/beta, not both", sim.ErrInvalidParameter)
	case p.Omega != nil:
		if err := nonNegative("omega", *p.Omega); err != nil {
			return nil, err
		}
		b.syn, b.nonsyn = 1, *p.Omega
	case p.Alpha != nil && p.Beta != nil:
		if err := nonNegative("alpha", *p.Alpha); err != nil {
			return nil, err
		}
		if err := nonNegative("beta", *p.Beta); err != nil {
			return nil, err
		}
		if *p.Alpha == 0 && *p.Beta == 0 {
			return nil, fmt.Errorf("%w: alpha and beta cannot both be zero", sim.ErrInvalidParameter)
		}
		b.syn, b.nonsyn = *p.Alpha, *p.Beta
	case p.Alpha != nil || p.Beta != nil:
		return nil, fmt.Errorf("%w: alpha and beta must be given together", sim.ErrInvalidParameter)
	default:
		return nil, fmt.Errorf("%w: missing selection parameters (omega, or alpha and beta)", sim.ErrInvalidParameter)
	}
	if b.form == "" {
		b.form = FormGY94
	}
	if b.form != FormGY94 && b.form != FormMG94 {
		return nil, fmt.Errorf("%w: unknown codon model form %q; valid: GY94, MG94", sim.ErrInvalidParameter, p.Form)
	}
	if err := validateScaling(p.Scaling); err != nil {
		return nil, err
	}
	if err := validateFrequencies(sim.Codon, p.Frequencies); err != nil {
		return nil, err
	}
	b.freqs = append([]float64(nil), p.Frequencies...)
	b.positions = positionFrequencies(b.freqs)
	return b, nil
}

// Alphabet is sim.Codon.
func (b *MechanisticCodonBuilder) Alphabet() sim.Alphabet { return sim.Codon }

// BuildQ allows single-nucleotide changes only, scaling nonsynonymous ones by omega.
func (b *MechanisticCodonBuilder) BuildQ() (*mat.Dense, error) {
	pi, err := b.Stationary()
	if err != nil {
		return nil, err
	}
	q := b.rawQ(b.syn, b.nonsyn)
	if err := fillDiagonal(q); err != nil {
		return nil, err
	}
	scale := meanRate(q, pi)
	if b.scaling == ScalingNeutral {
		neutral := b.rawQ(1, 1)
		if err := fillDiagonal(neutral); err != nil {
			return nil, err
		}
		scale = meanRate(neutral, pi)
	}
	if err := normalize(q, scale); err != nil {
		return nil, err
	}
	return q, nil
}

// rawQ fills off-diagonal rates with the given synonymous and nonsynonymous factors.
func (b *MechanisticCodonBuilder) rawQ(syn, nonsyn float64) *mat.Dense {
	codons := sim.Codon.States()
	n := len(codons)
	q := mat.NewDense(n, n, nil)
	for i, ci := range codons {
		for j, cj := range codons {
			pos, from, to, ok := codonChange(ci, cj)
			if !ok {
				continue
			}
			target := b.freqs[j]
			if b.form == FormMG94 {
				target = b.positions[pos][nucleotideIndex(to)]
			}
			factor := nonsyn
			if sim.IsSynonymous(ci, cj) {
				factor = syn
			}
			q.Set(i, j, b.rates[nucleotideIndex(from)][nucleotideIndex(to)]*target*factor)
		}
	}
	return q
}

// Stationary is the supplied codon frequencies for GY94. For MG94 it is the normalized
// product of position frequencies, which satisfies detailed balance with the MG94 rates.
func (b *MechanisticCodonBuilder) Stationary() ([]float64, error) {
	if b.form != FormMG94 {
		return append([]float64(nil), b.freqs...), nil
	}
	codons := sim.Codon.States()
	pi := make([]float64, len(codons))
	total := 0.0
	for i, c := range codons {
		pi[i] = 1
		for p := 0; p < 3; p++ {
			pi[i] *= b.positions[p][nucleotideIndex(c[p])]
		}
		total += pi[i]
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: position frequencies give every sense codon zero weight", sim.ErrInvalidParameter)
	}
	for i := range pi {
		pi[i] /= total
	}
	return pi, nil
}

// positionFrequencies derives per-position nucleotide frequencies from codon frequencies.
func positionFrequencies(freqs []float64) [3][4]float64 {
	var out [3][4]float64
	for i, c := range sim.Codon.States() {
		for p := 0; p < 3; p++ {
			out[p][nucleotideIndex(c[p])] += freqs[i]
		}
	}
	return out
}

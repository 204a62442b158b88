package freqs

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/phylosim/phylosim/sim"
)

// Convert maps a frequency vector between alphabets:
//   - amino acid -> codon: each amino acid's frequency is split evenly over its codons
//   - codon -> amino acid: codon frequencies are summed per amino acid
//   - nucleotide -> codon: F1x4, the product of position frequencies, renormalized over sense codons
//   - codon -> nucleotide: nucleotide composition averaged over the three positions
//
// Amino acid <-> nucleotide conversions go through codons.
func Convert(freqs []float64, from, to sim.Alphabet) ([]float64, error) {
	if err := sim.ValidateFrequencies(from, freqs); err != nil {
		return nil, err
	}
	switch {
	case from == to:
		return append([]float64(nil), freqs...), nil
	case from == sim.AminoAcid && to == sim.Codon:
		return aminoToCodon(freqs), nil
	case from == sim.Codon && to == sim.AminoAcid:
		return codonToAmino(freqs), nil
	case from == sim.Nucleotide && to == sim.Codon:
		return nucleotideToCodon(freqs)
	case from == sim.Codon && to == sim.Nucleotide:
		return codonToNucleotide(freqs), nil
	case from == sim.AminoAcid && to == sim.Nucleotide:
		return codonToNucleotide(aminoToCodon(freqs)), nil
	case from == sim.Nucleotide && to == sim.AminoAcid:
		codons, err := nucleotideToCodon(freqs)
		if err != nil {
			return nil, err
		}
		return codonToAmino(codons), nil
	}
	return nil, fmt.Errorf("%w: cannot convert %s frequencies to %s", sim.ErrInvalidParameter, from, to)
}

func aminoToCodon(freqs []float64) []float64 {
	codons := sim.Codon.States()
	synonyms := make(map[string]int)
	for _, c := range codons {
		aa, _ := sim.Translate(c)
		synonyms[aa]++
	}
	out := make([]float64, len(codons))
	for i, c := range codons {
		aa, _ := sim.Translate(c)
		idx, _ := sim.AminoAcid.Index(aa)
		out[i] = freqs[idx] / float64(synonyms[aa])
	}
	return out
}

func codonToAmino(freqs []float64) []float64 {
	out := make([]float64, sim.AminoAcid.Size())
	for i, c := range sim.Codon.States() {
		aa, _ := sim.Translate(c)
		idx, _ := sim.AminoAcid.Index(aa)
		out[idx] += freqs[i]
	}
	return out
}

func nucleotideToCodon(freqs []float64) ([]float64, error) {
	codons := sim.Codon.States()
	out := make([]float64, len(codons))
	for i, c := range codons {
		w := 1.0
		for p := 0; p < 3; p++ {
			idx, _ := sim.Nucleotide.Index(c[p : p+1])
			w *= freqs[idx]
		}
		out[i] = w
	}
	total := floats.Sum(out)
	if total <= 0 {
		return nil, fmt.Errorf("%w: nucleotide frequencies give every sense codon zero weight", sim.ErrInvalidParameter)
	}
	floats.Scale(1/total, out)
	return out, nil
}

func codonToNucleotide(freqs []float64) []float64 {
	out := make([]float64, sim.Nucleotide.Size())
	for i, c := range sim.Codon.States() {
		for p := 0; p < 3; p++ {
			idx, _ := sim.Nucleotide.Index(c[p : p+1])
			out[idx] += freqs[i] / 3
		}
	}
	return out
}

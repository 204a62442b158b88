package sim

import (
	"fmt"
	"strings"
)

// Alphabet is the discrete state space a substitution model operates on.
type Alphabet int

const (
	// Nucleotide states A, C, G, T.
	Nucleotide Alphabet = iota + 1
	// AminoAcid states in one-letter alphabetical order.
	AminoAcid
	// Codon states: the 61 sense codons of the standard genetic code in ACGT order.
	Codon
)

const (
	nucleotideSymbols = "ACGT"
	aminoAcidSymbols  = "ACDEFGHIKLMNPQRSTVWY"

	// standardCode is NCBI translation table 1, indexed by codon over TCAG (first base slowest).
	standardCode = "FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG"
	tcag         = "TCAG"
)

var (
	nucleotideStates []string
	aminoAcidStates  []string
	codonStates      []string

	stateIndex  = map[Alphabet]map[string]int{}
	geneticCode = map[string]string{} // all 64 codons -> one-letter amino acid, "*" for stop
)

func init() {
	for _, c := range nucleotideSymbols {
		nucleotideStates = append(nucleotideStates, string(c))
	}
	for _, c := range aminoAcidSymbols {
		aminoAcidStates = append(aminoAcidStates, string(c))
	}
	for i, a := range tcag {
		for j, b := range tcag {
			for k, c := range tcag {
				geneticCode[string([]rune{a, b, c})] = string(standardCode[16*i+4*j+k])
			}
		}
	}
	for _, a := range nucleotideSymbols {
		for _, b := range nucleotideSymbols {
			for _, c := range nucleotideSymbols {
				codon := string([]rune{a, b, c})
				if geneticCode[codon] != "*" {
					codonStates = append(codonStates, codon)
				}
			}
		}
	}
	for _, a := range []Alphabet{Nucleotide, AminoAcid, Codon} {
		idx := make(map[string]int, a.Size())
		for i, s := range a.States() {
			idx[s] = i
		}
		stateIndex[a] = idx
	}
}

// ParseAlphabet accepts the names used in scenario files ("nuc", "amino", "codon" and their long forms).
func ParseAlphabet(name string) (Alphabet, error) {
	switch strings.ToLower(name) {
	case "nuc", "nucleotide", "dna":
		return Nucleotide, nil
	case "amino", "amino_acid", "aa", "protein":
		return AminoAcid, nil
	case "codon":
		return Codon, nil
	}
	return 0, fmt.Errorf("%w: unknown alphabet %q; valid: nucleotide, amino_acid, codon", ErrInvalidParameter, name)
}

// Size returns the number of states (4, 20 or 61).
func (a Alphabet) Size() int {
	return len(a.States())
}

// States returns the ordered state symbols. The slice must not be modified.
func (a Alphabet) States() []string {
	switch a {
	case Nucleotide:
		return nucleotideStates
	case AminoAcid:
		return aminoAcidStates
	case Codon:
		return codonStates
	}
	return nil
}

// Symbol returns the symbol for state index i.
func (a Alphabet) Symbol(i int) string {
	return a.States()[i]
}

// Index returns the state index of symbol, case-insensitively.
func (a Alphabet) Index(symbol string) (int, bool) {
	i, ok := stateIndex[a][strings.ToUpper(symbol)]
	return i, ok
}

// SymbolWidth is the number of sequence characters one state occupies.
func (a Alphabet) SymbolWidth() int {
	if a == Codon {
		return 3
	}
	return 1
}

func (a Alphabet) String() string {
	switch a {
	case Nucleotide:
		return "nucleotide"
	case AminoAcid:
		return "amino_acid"
	case Codon:
		return "codon"
	}
	return fmt.Sprintf("Alphabet(%d)", int(a))
}

// Translate returns the one-letter amino acid a codon encodes, or "*" for stop codons.
func Translate(codon string) (string, bool) {
	aa, ok := geneticCode[strings.ToUpper(codon)]
	return aa, ok
}

// IsStopCodon reports whether codon is a stop codon in the standard code.
func IsStopCodon(codon string) bool {
	return geneticCode[strings.ToUpper(codon)] == "*"
}

// IsSynonymous reports whether two sense codons encode the same amino acid.
func IsSynonymous(a, b string) bool {
	return geneticCode[a] == geneticCode[b]
}

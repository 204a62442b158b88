// Package freqs computes equilibrium state frequencies for substitution models.
//
// A Calculator works in one alphabet (its "by" alphabet) and converts the result to
// the alphabet the model needs, so amino acid preferences can drive a codon model
// and nucleotide composition can drive an F1x4 codon model.
package freqs

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/matrix"
	"github.com/phylosim/phylosim/sim/seqio"
)

// Calculator produces a probability vector over a target alphabet.
type Calculator interface {
	Calculate(target sim.Alphabet) ([]float64, error)
}

// Equal assigns equal frequency to every state of By, or only to Restrict when set.
type Equal struct {
	By       sim.Alphabet
	Restrict []string
}

// Calculate spreads mass uniformly and converts it to target.
func (c Equal) Calculate(target sim.Alphabet) ([]float64, error) {
	mask, err := restriction(c.By, c.Restrict)
	if err != nil {
		return nil, err
	}
	out := make([]float64, c.By.Size())
	for i := range out {
		if mask[i] {
			out[i] = 1
		}
	}
	return finish(out, c.By, target)
}

// Random draws flat-ish frequencies: each allowed state gets a weight uniform in [0.5, 1.5).
type Random struct {
	By       sim.Alphabet
	Restrict []string
	Rng      *rand.Rand
}

// Calculate draws one weight per allowed state from Rng and converts to target.
func (c Random) Calculate(target sim.Alphabet) ([]float64, error) {
	if c.Rng == nil {
		return nil, fmt.Errorf("%w: random frequencies need a random number source", sim.ErrInvalidParameter)
	}
	mask, err := restriction(c.By, c.Restrict)
	if err != nil {
		return nil, err
	}
	out := make([]float64, c.By.Size())
	for i := range out {
		w := 0.5 + c.Rng.Float64()
		if mask[i] {
			out[i] = w
		}
	}
	return finish(out, c.By, target)
}

// Custom takes frequencies for some states of By; unlisted states get 0.
// The values must sum to 1.
type Custom struct {
	By     sim.Alphabet
	Values map[string]float64
}

// Calculate checks the listed symbols and converts the vector to target.
func (c Custom) Calculate(target sim.Alphabet) ([]float64, error) {
	if len(c.Values) == 0 {
		return nil, fmt.Errorf("%w: custom frequencies are empty", sim.ErrInvalidParameter)
	}
	out := make([]float64, c.By.Size())
	for symbol, v := range c.Values {
		i, ok := c.By.Index(symbol)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a %s state", sim.ErrInvalidParameter, symbol, c.By)
		}
		if math.IsNaN(v) || v < 0 {
			return nil, fmt.Errorf("%w: frequency of %s must be non-negative, got %f", sim.ErrInvalidParameter, symbol, v)
		}
		out[i] = v
	}
	if err := sim.ValidateFrequencies(c.By, out); err != nil {
		return nil, err
	}
	return finish(out, c.By, target)
}

// FromSequences counts states in sequences read as By. Characters that are not states
// of By (gaps, ambiguity codes, stop codons) are skipped. Columns optionally restricts
// counting to 1-based alignment columns, measured in By's units (codons for Codon).
type FromSequences struct {
	By      sim.Alphabet
	Records []seqio.Record
	Columns []int
}

// Calculate counts symbols in Records and converts the normalized counts to target.
func (c FromSequences) Calculate(target sim.Alphabet) ([]float64, error) {
	if len(c.Records) == 0 {
		return nil, fmt.Errorf("%w: no sequences to count frequencies from", sim.ErrInvalidParameter)
	}
	width := c.By.SymbolWidth()
	var columns []int
	if len(c.Columns) > 0 {
		length := len(c.Records[0].Sequence)
		for _, r := range c.Records {
			if len(r.Sequence) != length {
				return nil, fmt.Errorf("%w: column selection requires an alignment; %q has length %d, want %d",
					sim.ErrInconsistent, r.ID, len(r.Sequence), length)
			}
		}
		for _, col := range c.Columns {
			if col < 1 || col*width > length {
				return nil, fmt.Errorf("%w: column %d is outside the alignment (%d columns)", sim.ErrInvalidParameter, col, length/width)
			}
			columns = append(columns, col-1)
		}
	}

	counts := make([]float64, c.By.Size())
	count := func(seq string, site int) {
		if i, ok := c.By.Index(seq[site*width : site*width+width]); ok {
			counts[i]++
		}
	}
	for _, r := range c.Records {
		seq := strings.ToUpper(r.Sequence)
		if columns != nil {
			for _, site := range columns {
				count(seq, site)
			}
			continue
		}
		for site := 0; site < len(seq)/width; site++ {
			count(seq, site)
		}
	}
	return finish(counts, c.By, target)
}

// Empirical uses an exchangeability table's published frequencies.
type Empirical struct {
	Table *matrix.Exchangeabilities
}

// Calculate returns the table frequencies, converted when target differs.
func (c Empirical) Calculate(target sim.Alphabet) ([]float64, error) {
	if c.Table == nil {
		return nil, fmt.Errorf("%w: empirical frequencies need a table", sim.ErrInvalidParameter)
	}
	if c.Table.Frequencies == nil {
		return nil, fmt.Errorf("%w: table %q has no published frequencies", sim.ErrInvalidParameter, c.Table.Name)
	}
	return finish(append([]float64(nil), c.Table.Frequencies...), c.Table.Alphabet, target)
}

// restriction marks the states of by that may receive weight; nil restrict allows all.
func restriction(by sim.Alphabet, restrict []string) ([]bool, error) {
	if by.Size() == 0 {
		return nil, fmt.Errorf("%w: unknown alphabet %v", sim.ErrInvalidParameter, by)
	}
	mask := make([]bool, by.Size())
	if len(restrict) == 0 {
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	for _, s := range restrict {
		i, ok := by.Index(s)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a %s state", sim.ErrInvalidParameter, s, by)
		}
		mask[i] = true
	}
	return mask, nil
}

// finish normalizes weights over by and converts them to target.
func finish(weights []float64, by, target sim.Alphabet) ([]float64, error) {
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, fmt.Errorf("%w: every %s state has zero frequency", sim.ErrInvalidParameter, by)
	}
	floats.Scale(1/total, weights)
	return Convert(weights, by, target)
}

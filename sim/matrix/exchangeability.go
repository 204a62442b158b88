package matrix

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/phylosim/phylosim/sim"
)

// pamlAminoAcidOrder is the state order of PAML-format amino acid files (WAG, JTT, LG, ...).
const pamlAminoAcidOrder = "ARNDCQEGHILKMFPSTWYV"

// Exchangeabilities is a named, symmetric empirical exchangeability table with
// optional published equilibrium frequencies, in the alphabet's state order.
type Exchangeabilities struct {
	Name        string
	Alphabet    sim.Alphabet
	Rates       [][]float64 // n x n, symmetric, zero diagonal
	Frequencies []float64   // nil when the source provides none
}

// NewExchangeabilities validates a table given in the alphabet's state order.
func NewExchangeabilities(name string, alphabet sim.Alphabet, rates [][]float64, freqs []float64) (*Exchangeabilities, error) {
	n := alphabet.Size()
	if name == "" {
		return nil, fmt.Errorf("%w: exchangeability table needs a name", sim.ErrInvalidParameter)
	}
	if len(rates) != n {
		return nil, fmt.Errorf("%w: table %q has %d rows, %s needs %d", sim.ErrInvalidParameter, name, len(rates), alphabet, n)
	}
	copied := make([][]float64, n)
	for i := range rates {
		if len(rates[i]) != n {
			return nil, fmt.Errorf("%w: table %q row %d has %d entries, want %d", sim.ErrInvalidParameter, name, i, len(rates[i]), n)
		}
		copied[i] = append([]float64(nil), rates[i]...)
	}
	for i := 0; i < n; i++ {
		copied[i][i] = 0
		for j := 0; j < i; j++ {
			if err := nonNegative(fmt.Sprintf("table %q entry (%d,%d)", name, i, j), copied[i][j]); err != nil {
				return nil, err
			}
			if math.Abs(copied[i][j]-copied[j][i]) > 1e-12*math.Max(1, copied[i][j]) {
				return nil, fmt.Errorf("%w: table %q is not symmetric at (%d,%d)", sim.ErrInvalidParameter, name, i, j)
			}
		}
	}
	t := &Exchangeabilities{Name: name, Alphabet: alphabet, Rates: copied}
	if freqs != nil {
		normalized, err := normalizeTableFrequencies(name, alphabet, freqs)
		if err != nil {
			return nil, err
		}
		t.Frequencies = normalized
	}
	return t, nil
}

// normalizeTableFrequencies rescales published frequencies, which are often rounded
// so they do not sum to exactly 1.
func normalizeTableFrequencies(name string, alphabet sim.Alphabet, freqs []float64) ([]float64, error) {
	if len(freqs) != alphabet.Size() {
		return nil, fmt.Errorf("%w: table %q has %d frequencies, want %d", sim.ErrInvalidParameter, name, len(freqs), alphabet.Size())
	}
	total := 0.0
	for i, f := range freqs {
		if err := nonNegative(fmt.Sprintf("table %q frequency %d", name, i), f); err != nil {
			return nil, err
		}
		total += f
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: table %q frequencies sum to zero", sim.ErrInvalidParameter, name)
	}
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = f / total
	}
	return out, nil
}

// PoissonExchangeabilities is the flat table (all exchangeabilities 1, equal frequencies).
func PoissonExchangeabilities(alphabet sim.Alphabet) *Exchangeabilities {
	n := alphabet.Size()
	rates := make([][]float64, n)
	freqs := make([]float64, n)
	for i := range rates {
		rates[i] = make([]float64, n)
		for j := range rates[i] {
			if i != j {
				rates[i][j] = 1
			}
		}
		freqs[i] = 1 / float64(n)
	}
	return &Exchangeabilities{Name: "poisson", Alphabet: alphabet, Rates: rates, Frequencies: freqs}
}

// PAMLOrder is the state order used by PAML-format files: ARNDCQEGHILKMFPSTWYV for
// amino acids, TCAG-ordered sense codons for codons, TCAG for nucleotides.
func PAMLOrder(alphabet sim.Alphabet) []string {
	var order []string
	switch alphabet {
	case sim.AminoAcid:
		for _, c := range pamlAminoAcidOrder {
			order = append(order, string(c))
		}
	case sim.Nucleotide:
		for _, c := range "TCAG" {
			order = append(order, string(c))
		}
	case sim.Codon:
		for _, a := range "TCAG" {
			for _, b := range "TCAG" {
				for _, c := range "TCAG" {
					codon := string([]rune{a, b, c})
					if !sim.IsStopCodon(codon) {
						order = append(order, codon)
					}
				}
			}
		}
	}
	return order
}

// ReadPAML parses a PAML-format table: the strict lower triangle of exchangeabilities
// row by row, optionally followed by the equilibrium frequencies. Anything after those
// numbers (references, comments) is ignored. order lists the file's states; nil means PAMLOrder.
func ReadPAML(r io.Reader, name string, alphabet sim.Alphabet, order []string) (*Exchangeabilities, error) {
	if order == nil {
		order = PAMLOrder(alphabet)
	}
	n := alphabet.Size()
	if len(order) != n {
		return nil, fmt.Errorf("%w: table %q: order lists %d states, %s has %d", sim.ErrInvalidParameter, name, len(order), alphabet, n)
	}
	perm := make([]int, n)
	for k, s := range order {
		idx, ok := alphabet.Index(s)
		if !ok {
			return nil, fmt.Errorf("%w: table %q: %q is not a %s state", sim.ErrInvalidParameter, name, s, alphabet)
		}
		perm[k] = idx
	}

	want := n*(n-1)/2 + n
	values := make([]float64, 0, want)
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for len(values) < want && scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			if len(values) < n*(n-1)/2 {
				return nil, fmt.Errorf("%w: table %q: token %d %q is not a number", sim.ErrInvalidParameter, name, len(values)+1, scanner.Text())
			}
			break
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading table %q: %w", name, err)
	}
	if len(values) < n*(n-1)/2 {
		return nil, fmt.Errorf("%w: table %q: found %d exchangeabilities, want %d", sim.ErrInvalidParameter, name, len(values), n*(n-1)/2)
	}

	rates := make([][]float64, n)
	for i := range rates {
		rates[i] = make([]float64, n)
	}
	k := 0
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			a, b := perm[i], perm[j]
			rates[a][b], rates[b][a] = values[k], values[k]
			k++
		}
	}
	var freqs []float64
	if len(values) == want {
		freqs = make([]float64, n)
		for i := 0; i < n; i++ {
			freqs[perm[i]] = values[k+i]
		}
	}
	return NewExchangeabilities(name, alphabet, rates, freqs)
}

// LoadPAML reads a PAML-format table from path.
func LoadPAML(path, name string, alphabet sim.Alphabet) (*Exchangeabilities, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening table %q: %w", name, err)
	}
	defer f.Close()
	return ReadPAML(f, name, alphabet, nil)
}

// === Registry ===

var (
	registryMu sync.RWMutex
	registry   = map[sim.Alphabet]map[string]*Exchangeabilities{}
)

func init() {
	MustRegister(PoissonExchangeabilities(sim.AminoAcid))
	MustRegister(PoissonExchangeabilities(sim.Codon))
	registerBuiltinTables()
}

// Register makes t available to Lookup under its lower-cased name, replacing any
// table of the same name and alphabet.
func Register(t *Exchangeabilities) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: cannot register an unnamed table", sim.ErrInvalidParameter)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	byName, ok := registry[t.Alphabet]
	if !ok {
		byName = make(map[string]*Exchangeabilities)
		registry[t.Alphabet] = byName
	}
	byName[strings.ToLower(t.Name)] = t
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func MustRegister(t *Exchangeabilities) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the registered table for alphabet and name (case-insensitive).
func Lookup(alphabet sim.Alphabet, name string) (*Exchangeabilities, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if t, ok := registry[alphabet][strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: no %s exchangeability table named %q; register it or load a PAML-format file",
		sim.ErrInvalidParameter, alphabet, name)
}

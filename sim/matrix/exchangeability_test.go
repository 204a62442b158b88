package matrix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phylosim/phylosim/sim"
)

// pamlText renders a PAML-format amino acid table whose k-th lower-triangle value is k+1
// and whose i-th frequency is proportional to i+1, followed by trailing notes.
func pamlText(withFreqs bool) string {
	var sb strings.Builder
	k := 0
	for i := 1; i < 20; i++ {
		for j := 0; j < i; j++ {
			k++
			fmt.Fprintf(&sb, "%d ", k)
		}
		sb.WriteString("\n")
	}
	if withFreqs {
		sb.WriteString("\n")
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&sb, "%d ", i+1)
		}
		sb.WriteString("\n\nSynthetic table. Reference: none.\n")
	}
	return sb.String()
}

func aminoIndex(t *testing.T, s string) int {
	t.Helper()
	i, ok := sim.AminoAcid.Index(s)
	require.True(t, ok)
	return i
}

func TestReadPAML_PermutesIntoAlphabetOrder(t *testing.T) {
	// GIVEN a PAML table in ARNDCQEGHILKMFPSTWYV order
	table, err := ReadPAML(strings.NewReader(pamlText(true)), "synthetic", sim.AminoAcid, nil)
	require.NoError(t, err)

	// THEN entries land at the right alphabet indices, symmetrically
	a, r, n := aminoIndex(t, "A"), aminoIndex(t, "R"), aminoIndex(t, "N")
	assert.Equal(t, 1.0, table.Rates[r][a])
	assert.Equal(t, 1.0, table.Rates[a][r])
	assert.Equal(t, 2.0, table.Rates[n][a])
	assert.Equal(t, 3.0, table.Rates[n][r])
	assert.Equal(t, 0.0, table.Rates[a][a])

	// AND frequencies are normalized and permuted
	require.Len(t, table.Frequencies, 20)
	assert.InDelta(t, 1.0/210, table.Frequencies[a], 1e-15)
	assert.InDelta(t, 2.0/210, table.Frequencies[r], 1e-15)
	assert.InDelta(t, 20.0/210, table.Frequencies[aminoIndex(t, "V")], 1e-15)
}

func TestReadPAML_WithoutFrequencies(t *testing.T) {
	table, err := ReadPAML(strings.NewReader(pamlText(false)), "nofreq", sim.AminoAcid, nil)
	require.NoError(t, err)
	assert.Nil(t, table.Frequencies)

	// Builders then need explicit frequencies
	_, err = NewAminoAcidBuilder(AminoAcidParams{Table: table})
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)

	freqs := make([]float64, 20)
	for i := range freqs {
		freqs[i] = 0.05
	}
	_, err = NewAminoAcidBuilder(AminoAcidParams{Table: table, Frequencies: freqs})
	assert.NoError(t, err)
}

func TestReadPAML_Truncated(t *testing.T) {
	_, err := ReadPAML(strings.NewReader("1 2 3\n"), "short", sim.AminoAcid, nil)
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)

	_, err = ReadPAML(strings.NewReader("1 2 x 4\n"), "garbled", sim.AminoAcid, nil)
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)
}

func TestLoadPAML_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthetic.dat")
	require.NoError(t, os.WriteFile(path, []byte(pamlText(true)), 0o644))

	table, err := LoadPAML(path, "synthetic", sim.AminoAcid)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", table.Name)

	_, err = LoadPAML(filepath.Join(t.TempDir(), "missing.dat"), "missing", sim.AminoAcid)
	assert.Error(t, err)
}

func TestPAMLOrder_CodonsSkipStops(t *testing.T) {
	order := PAMLOrder(sim.Codon)
	require.Len(t, order, 61)
	assert.Equal(t, "TTT", order[0])
	assert.Equal(t, "GGG", order[60])
	assert.NotContains(t, order, "TAA")
}

func TestNewExchangeabilities_RejectsAsymmetric(t *testing.T) {
	rates := PoissonExchangeabilities(sim.AminoAcid).Rates
	rates[1][0] = 2
	_, err := NewExchangeabilities("bad", sim.AminoAcid, rates, nil)
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)
}

func TestRegistry_LookupAndRegister(t *testing.T) {
	// Built-ins are registered for amino acids and codons
	aa, err := Lookup(sim.AminoAcid, "Poisson")
	require.NoError(t, err)
	assert.Equal(t, sim.AminoAcid, aa.Alphabet)
	_, err = Lookup(sim.Codon, "poisson")
	require.NoError(t, err)

	_, err = Lookup(sim.AminoAcid, "wag")
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)

	table, err := ReadPAML(strings.NewReader(pamlText(true)), "registry-test", sim.AminoAcid, nil)
	require.NoError(t, err)
	require.NoError(t, Register(table))
	got, err := Lookup(sim.AminoAcid, "REGISTRY-TEST")
	require.NoError(t, err)
	assert.Same(t, table, got)
}

func TestAminoAcidBuilder_Poisson(t *testing.T) {
	table, err := Lookup(sim.AminoAcid, "poisson")
	require.NoError(t, err)
	b, err := NewAminoAcidBuilder(AminoAcidParams{Table: table})
	require.NoError(t, err)

	q, err := b.BuildQ()
	require.NoError(t, err)
	assert.InDelta(t, 1.0/19, q.At(0, 1), 1e-12)
	assert.InDelta(t, -1.0, q.At(5, 5), 1e-12)
}

func TestAminoAcidBuilder_WrongAlphabetTable(t *testing.T) {
	_, err := NewAminoAcidBuilder(AminoAcidParams{Table: PoissonExchangeabilities(sim.Codon)})
	assert.ErrorIs(t, err, sim.ErrInconsistent)

	_, err = NewAminoAcidBuilder(AminoAcidParams{})
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)
}

func TestAminoAcidBuilder_CustomFrequenciesOverrideTable(t *testing.T) {
	table, err := ReadPAML(strings.NewReader(pamlText(true)), "synthetic", sim.AminoAcid, nil)
	require.NoError(t, err)
	freqs := make([]float64, 20)
	for i := range freqs {
		freqs[i] = 0.05
	}
	b, err := NewAminoAcidBuilder(AminoAcidParams{Table: table, Frequencies: freqs})
	require.NoError(t, err)
	pi, err := b.Stationary()
	require.NoError(t, err)
	assert.Equal(t, freqs, pi)

	m, err := NewModel("synthetic", b, nil)
	require.NoError(t, err)
	assert.Equal(t, sim.MethodSymmetricEigen, m.Method())
}

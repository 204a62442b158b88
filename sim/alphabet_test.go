package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet_Sizes(t *testing.T) {
	assert.Equal(t, 4, Nucleotide.Size())
	assert.Equal(t, 20, AminoAcid.Size())
	assert.Equal(t, 61, Codon.Size())
	assert.Equal(t, 0, Alphabet(0).Size())
}

func TestAlphabet_CodonStatesExcludeStopsInACGTOrder(t *testing.T) {
	states := Codon.States()
	assert.Equal(t, "AAA", states[0])
	assert.Equal(t, "TTT", states[60])
	for _, stop := range []string{"TAA", "TAG", "TGA"} {
		assert.NotContains(t, states, stop)
		assert.True(t, IsStopCodon(stop))
	}
	for i := 1; i < len(states); i++ {
		assert.Less(t, states[i-1], states[i])
	}
}

func TestAlphabet_IndexIsCaseInsensitive(t *testing.T) {
	i, ok := Nucleotide.Index("g")
	require.True(t, ok)
	assert.Equal(t, 2, i)

	i, ok = Codon.Index("aaa")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = Codon.Index("TAA")
	assert.False(t, ok)
	_, ok = AminoAcid.Index("B")
	assert.False(t, ok)
}

func TestAlphabet_SymbolWidth(t *testing.T) {
	assert.Equal(t, 1, Nucleotide.SymbolWidth())
	assert.Equal(t, 1, AminoAcid.SymbolWidth())
	assert.Equal(t, 3, Codon.SymbolWidth())
}

func TestParseAlphabet(t *testing.T) {
	tests := map[string]Alphabet{
		"nuc": Nucleotide, "DNA": Nucleotide, "amino_acid": AminoAcid,
		"aa": AminoAcid, "protein": AminoAcid, "codon": Codon,
	}
	for name, want := range tests {
		got, err := ParseAlphabet(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseAlphabet("rna")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestGeneticCode(t *testing.T) {
	aa, ok := Translate("atg")
	require.True(t, ok)
	assert.Equal(t, "M", aa)

	assert.True(t, IsSynonymous("CTT", "TTA"))  // both L
	assert.False(t, IsSynonymous("ATG", "ATA")) // M vs I
	_, ok = Translate("NNN")
	assert.False(t, ok)
}

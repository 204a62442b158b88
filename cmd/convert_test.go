package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/scenario"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConvertAlignment_FASTAToPHYLIP(t *testing.T) {
	// GIVEN a two-sequence FASTA file
	path := writeTemp(t, "aln.fasta", ">a\nACGT\nAC\n>b\nTTTTGG\n")

	// WHEN converted to PHYLIP
	var buf bytes.Buffer
	require.NoError(t, convertAlignment(path, "phylip", &buf))

	// THEN the header counts sequences and sites
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, " 2 6", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.True(t, strings.HasSuffix(lines[2], "TTTTGG"))
}

func TestConvertAlignment_UnknownFormat(t *testing.T) {
	path := writeTemp(t, "aln.fasta", ">a\nACGT\n")
	err := convertAlignment(path, "nexus", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nexus")
}

func TestConvertTree_KeepsBranchLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, convertTree(testdataPath("heterogeneous.nwk"), &buf))

	out := buf.String()
	assert.Contains(t, out, "_m1_")
	assert.Contains(t, out, "_m2_")
	assert.True(t, strings.HasSuffix(out, ";\n"))
}

func TestConvertTree_RejectsNegativeBranch(t *testing.T) {
	path := writeTemp(t, "bad.nwk", "(a:0.1,b:-0.2);\n")
	assert.ErrorIs(t, convertTree(path, &bytes.Buffer{}), sim.ErrInvalidParameter)
}

func TestFrequencyBlock_CountsAndConverts(t *testing.T) {
	// GIVEN an alignment with A:C:G:T = 4:2:1:1
	path := writeTemp(t, "aln.fasta", ">a\nAACG\n>b\nAAC-T\n")

	// WHEN nucleotide frequencies are counted
	spec, err := frequencyBlock(path, "nucleotide", "")
	require.NoError(t, err)

	// THEN a custom block over nucleotides is produced, gaps skipped
	assert.Equal(t, scenario.FreqCustom, spec.Type)
	assert.Equal(t, "nucleotide", spec.By)
	assert.InDelta(t, 0.5, spec.Values["A"], 1e-12)
	assert.InDelta(t, 0.25, spec.Values["C"], 1e-12)

	// AND the block reads back as valid scenario YAML
	var buf bytes.Buffer
	writeYAML(&buf, map[string]*scenario.FrequencySpec{"frequencies": spec})
	var back map[string]scenario.FrequencySpec
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "custom", back["frequencies"].Type)

	// WHEN expressed over codons
	codon, err := frequencyBlock(path, "nucleotide", "codon")
	require.NoError(t, err)
	total := 0.0
	for _, f := range codon.Values {
		total += f
	}
	assert.Equal(t, "codon", codon.By)
	assert.InDelta(t, 1, total, 1e-9)
}

func TestFrequencyBlock_Errors(t *testing.T) {
	path := writeTemp(t, "aln.fasta", ">a\nACGT\n")
	_, err := frequencyBlock(path, "rna", "")
	assert.ErrorIs(t, err, sim.ErrInvalidParameter)
	_, err = frequencyBlock(filepath.Join(t.TempDir(), "missing.fasta"), "nucleotide", "")
	assert.Error(t, err)
}

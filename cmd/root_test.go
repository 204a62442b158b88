package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/scenario"
	"github.com/phylosim/phylosim/sim/seqio"
	"github.com/phylosim/phylosim/sim/trace"
)

// scenarioLeaves is the leaf order of the tree in testdata/scenario_basic.yaml.
var scenarioLeaves = []string{"t2", "t1", "t3", "t5", "t4"}

func testdataPath(name string) string {
	return filepath.Join("..", "testdata", name)
}

// newTestRunCmd returns a command carrying the run flags, parsed from args.
func newTestRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	registerRunFlags(c)
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func loadBasic(t *testing.T) *scenario.Scenario {
	t.Helper()
	s, err := scenario.Load(testdataPath("scenario_basic.yaml"))
	require.NoError(t, err)
	return s
}

func TestApplyOverrides_OnlyChangedFlags(t *testing.T) {
	// GIVEN a scenario with seed 42 and FASTA output
	s := loadBasic(t)

	// WHEN only --seqfmt is passed
	applyOverrides(s, newTestRunCmd(t, "--seqfmt", "phylip"))

	// THEN the seed and file names keep their scenario values
	assert.Equal(t, int64(42), s.Seed)
	assert.Equal(t, "phylip", s.Output.SeqFormat)
	assert.Equal(t, "site_rates.txt", s.Output.RateFile)
	assert.False(t, s.Output.WriteAncestors)
}

func TestApplyOverrides_AllFlags(t *testing.T) {
	s := loadBasic(t)
	applyOverrides(s, newTestRunCmd(t, "--seed", "7", "--seqfile", "a.phy", "--ratefile", "r.txt", "--write-anc"))

	assert.Equal(t, int64(7), s.Seed)
	assert.Equal(t, "a.phy", s.Output.SeqFile)
	assert.Equal(t, "r.txt", s.Output.RateFile)
	assert.True(t, s.Output.WriteAncestors)
}

func TestRun_WritesAlignmentAndRateLog(t *testing.T) {
	// GIVEN the basic scenario writing into a temp dir
	dir := t.TempDir()
	s := loadBasic(t)
	s.Output.SeqFile = filepath.Join(dir, "out.fasta")
	s.Output.RateFile = filepath.Join(dir, "rates.txt")

	// WHEN it is simulated and written
	result, err := simulate(s, 2)
	require.NoError(t, err)
	require.NoError(t, writeOutputs(s, result))

	// THEN the FASTA file holds the five leaves, each 22 sites long
	f, err := os.Open(s.Output.SeqFile)
	require.NoError(t, err)
	defer f.Close()
	records, err := seqio.ReadFASTA(f)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, scenarioLeaves[i], r.ID)
		assert.Len(t, r.Sequence, 22)
	}

	// AND the rate log has a header plus one line per site
	data, err := os.ReadFile(s.Output.RateFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 23)
	assert.Equal(t, trace.RateLogHeader, lines[0])
	assert.True(t, strings.HasPrefix(lines[22], "22\t2\t"), "last line %q", lines[22])
}

func TestRun_PhylipWithAncestors(t *testing.T) {
	dir := t.TempDir()
	s := loadBasic(t)
	s.Output.SeqFile = filepath.Join(dir, "out.phy")
	s.Output.SeqFormat = "phylip"
	s.Output.RateFile = ""
	s.Output.WriteAncestors = true

	result, err := simulate(s, 1)
	require.NoError(t, err)
	require.NoError(t, writeOutputs(s, result))

	data, err := os.ReadFile(s.Output.SeqFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, " 9 22", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "root "))
	assert.Len(t, lines, 10)
}

func TestValidate_Scenarios(t *testing.T) {
	require.NoError(t, validate(loadBasic(t)))

	s, err := scenario.Load(testdataPath("scenario_tree_file.yaml"))
	require.NoError(t, err)
	require.NoError(t, validate(s))

	// a tree label with no model in a branch-heterogeneous partition is inconsistent
	s.TreeFile = ""
	s.Tree = "((a:0.1_m9_,b:0.2):0.1,c:0.3);"
	err = validate(s)
	assert.ErrorIs(t, err, sim.ErrInconsistent)
}

func TestSimulate_SameSeedSameOutput(t *testing.T) {
	a, err := simulate(loadBasic(t), 1)
	require.NoError(t, err)
	b, err := simulate(loadBasic(t), 4)
	require.NoError(t, err)
	assert.Equal(t, a.Sequences, b.Sequences)
	assert.Equal(t, a.RateLog.Records, b.RateLog.Records)
}

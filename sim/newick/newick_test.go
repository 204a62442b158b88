package newick

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/internal/testutil"
)

func leafNames(tree *sim.Tree) []string {
	var names []string
	for _, n := range tree.Leaves() {
		names = append(names, n.Name)
	}
	return names
}

func TestParse_ScenarioTree(t *testing.T) {
	tree, err := Parse(testutil.ScenarioTree)
	require.NoError(t, err)

	assert.Equal(t, testutil.ScenarioLeaves, leafNames(tree))
	require.Len(t, tree.Root.Children, 2)
	assert.InDelta(t, 0.44, tree.Root.Children[0].BranchLength, 1e-15)
	assert.InDelta(t, 0.001, tree.Root.Children[0].Children[0].BranchLength, 1e-15)
	assert.Len(t, tree.PreOrder(), 9)
	assert.Empty(t, tree.ModelLabels())
}

func TestParse_BranchModelLabels(t *testing.T) {
	// GIVEN labels on an internal branch and a leaf branch
	tree, err := Parse("(((t2:0.36_m2_,t1:0.45):0.001,t3:0.77):0.44_m1_,(t5:0.77,t4:0.41):0.89);")
	require.NoError(t, err)

	// THEN the labels sit on the nodes whose branches carry them
	left := tree.Root.Children[0]
	assert.Equal(t, "m1", left.ModelLabel)
	assert.InDelta(t, 0.44, left.BranchLength, 1e-15)
	t2 := left.Children[0].Children[0]
	assert.Equal(t, "t2", t2.Name)
	assert.Equal(t, "m2", t2.ModelLabel)
	assert.Equal(t, []string{"m1", "m2"}, tree.ModelLabels())
}

func TestParse_NamesCommentsAndWhitespace(t *testing.T) {
	tree, err := Parse(" ( seq_1 : 1e-2 , 'two words':0.5 [comment] ) anc ; \n")
	require.NoError(t, err)
	assert.Equal(t, "anc", tree.Root.Name)
	assert.Equal(t, []string{"seq_1", "two words"}, leafNames(tree))
	assert.InDelta(t, 0.01, tree.Root.Children[0].BranchLength, 1e-15)
}

func TestParse_NegativeLengthIsLeftToValidation(t *testing.T) {
	tree, err := Parse("(a:-0.5,b:1);")
	require.NoError(t, err)
	assert.ErrorIs(t, tree.Validate(), sim.ErrInvalidParameter)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no semicolon", "(a:1,b:2)"},
		{"unbalanced", "((a:1,b:2);"},
		{"unnamed leaf", "(a:1,:2);"},
		{"bad length", "(a:x,b:2);"},
		{"unterminated label", "(a:1_m1,b:2);"},
		{"trailing text", "(a:1,b:2);c"},
		{"unterminated quote", "('a:1,b:2);"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input)
			assert.ErrorIs(t, err, sim.ErrInvalidParameter)
		})
	}
}

func TestFormat_ReparsesToSameTree(t *testing.T) {
	src := "(((t2:0.36_m2_,t1:0.45):0.001,t3:0.77):0.44_m1_,(t5:0.77,t4:0.41):0.89);"
	tree, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, src, Format(tree))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.nwk")
	require.NoError(t, os.WriteFile(path, []byte(testutil.ScenarioTree+"\n"), 0o644))

	tree, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, tree.Leaves(), 5)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.nwk"))
	assert.Error(t, err)
}

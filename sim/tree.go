package sim

import (
	"fmt"
	"math"
)

// Node is a vertex of a rooted phylogeny. Each node owns its children; the branch
// described by BranchLength and ModelLabel connects the node to its parent.
type Node struct {
	Name         string
	BranchLength float64
	// ModelLabel marks the start of a model region: this branch and every descendant
	// branch use the named model until a descendant carries its own label.
	ModelLabel string
	Children   []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Tree is a rooted binary or multifurcating phylogeny.
type Tree struct {
	Root *Node
}

// PreOrder returns all nodes parent-first, children in declaration order.
func (t *Tree) PreOrder() []*Node {
	if t == nil || t.Root == nil {
		return nil
	}
	var out []*Node
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

// Leaves returns the leaf nodes in pre-order.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, n := range t.PreOrder() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// ModelLabels returns the distinct branch-model labels in pre-order of first use.
// A label on the root is ignored since the root has no branch.
func (t *Tree) ModelLabels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range t.PreOrder() {
		if n != t.Root && n.ModelLabel != "" && !seen[n.ModelLabel] {
			seen[n.ModelLabel] = true
			out = append(out, n.ModelLabel)
		}
	}
	return out
}

// Validate checks that every non-root branch length is finite and non-negative.
// The root's own branch length is ignored.
func (t *Tree) Validate() error {
	if t == nil || t.Root == nil {
		return fmt.Errorf("%w: tree has no root", ErrInvalidParameter)
	}
	for _, n := range t.PreOrder() {
		if n == t.Root {
			continue
		}
		if n.BranchLength < 0 || math.IsNaN(n.BranchLength) || math.IsInf(n.BranchLength, 0) {
			return fmt.Errorf("%w: branch to %s has length %g; branch lengths must be finite and non-negative", ErrInvalidParameter, describeNode(n), n.BranchLength)
		}
	}
	return nil
}

// regionLabels resolves, once, the model region each node's branch belongs to.
// The root maps to "" (it has no branch); unlabeled branches outside any region also map to "".
func (t *Tree) regionLabels() map[*Node]string {
	out := make(map[*Node]string)
	var walk func(n *Node, inherited string)
	walk = func(n *Node, inherited string) {
		label := inherited
		if n != t.Root && n.ModelLabel != "" {
			label = n.ModelLabel
		}
		out[n] = label
		for _, c := range n.Children {
			walk(c, label)
		}
	}
	walk(t.Root, "")
	return out
}

func describeNode(n *Node) string {
	if n.Name != "" {
		return fmt.Sprintf("node %q", n.Name)
	}
	return "unnamed internal node"
}

package sim

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phylosim/phylosim/sim/seqio"
	"github.com/phylosim/phylosim/sim/trace"
)

// EvolverConfig groups simulation engine options.
type EvolverConfig struct {
	// Workers bounds how many partitions are simulated concurrently (<= 1 means sequential).
	// Output is identical for any value because each partition owns its RNG stream.
	Workers int
}

// Evolver simulates sequences for an ordered list of partitions along a tree.
type Evolver struct {
	partitions []*Partition
	config     EvolverConfig
}

// NewEvolver creates an Evolver over partitions, which are concatenated in order.
func NewEvolver(partitions []*Partition, config EvolverConfig) (*Evolver, error) {
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: at least one partition required", ErrInvalidParameter)
	}
	for i, p := range partitions {
		if p == nil {
			return nil, fmt.Errorf("%w: partition %d is nil", ErrInvalidParameter, i+1)
		}
	}
	return &Evolver{
		partitions: append([]*Partition(nil), partitions...),
		config:     config,
	}, nil
}

// NodeSequence is the simulated sequence at one tree node.
type NodeSequence struct {
	Name     string
	Leaf     bool
	Sequence string
}

// Result holds everything one simulation produced.
type Result struct {
	// Sequences lists every node in pre-order, ancestors included.
	Sequences []NodeSequence
	// RateLog records the rate category drawn for every site.
	RateLog *trace.RateLog
}

// Alignment returns the leaf sequences, plus internal nodes when includeAncestors is set,
// in tree pre-order.
func (r *Result) Alignment(includeAncestors bool) []seqio.Record {
	records := make([]seqio.Record, 0, len(r.Sequences))
	for _, s := range r.Sequences {
		if s.Leaf || includeAncestors {
			records = append(records, seqio.Record{ID: s.Name, Sequence: s.Sequence})
		}
	}
	return records
}

// Sequence looks up a node's sequence by name.
func (r *Result) Sequence(name string) (string, bool) {
	for _, s := range r.Sequences {
		if s.Name == name {
			return s.Sequence, true
		}
	}
	return "", false
}

// partitionRun is the per-partition simulation state: states[node][site] indexed
// by the node's pre-order position, and the 0-based category drawn for each site.
type partitionRun struct {
	states     [][]int
	categories []int
}

// plan is the validated, tree-specific view of a simulation: nodes in pre-order,
// their output names and parents, and the model every partition uses on each branch.
type plan struct {
	order    []*Node
	names    []string
	parents  []int
	bindings [][]*SubstitutionModel // [partition][pre-order node]
}

// Validate runs every check Simulate performs before sampling: tree shape and branch
// lengths, node naming, and that every branch label resolves to a model.
func (e *Evolver) Validate(tree *Tree) error {
	_, err := e.prepare(tree)
	return err
}

func (e *Evolver) prepare(tree *Tree) (*plan, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	order := tree.PreOrder()
	names, err := nodeNames(order)
	if err != nil {
		return nil, err
	}
	pl := &plan{order: order, names: names, parents: parentIndices(order)}
	pl.bindings = make([][]*SubstitutionModel, len(e.partitions))
	for i, p := range e.partitions {
		bound, err := p.bindModels(tree)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i+1, err)
		}
		pl.bindings[i] = make([]*SubstitutionModel, len(order))
		for k, n := range order {
			m := bound[n]
			pl.bindings[i][k] = m
			if k == 0 {
				continue
			}
			for _, c := range m.categories {
				if math.IsInf(n.BranchLength*c.Rate, 0) {
					return nil, fmt.Errorf("partition %d: %w: branch to %s has length %g, which overflows at rate %g",
						i+1, ErrInvalidParameter, describeNode(n), n.BranchLength, c.Rate)
				}
			}
		}
	}
	return pl, nil
}

// Simulate evolves every partition along tree. All validation happens before the first
// random draw: a run either completes for every partition or returns an error and no output.
func (e *Evolver) Simulate(tree *Tree, rng *PartitionedRNG) (*Result, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: a random number source is required", ErrInvalidParameter)
	}
	pl, err := e.prepare(tree)
	if err != nil {
		return nil, err
	}
	order := pl.order

	// Streams are derived up front: PartitionedRNG is not safe for concurrent use.
	streams := rng.PartitionStreams(len(e.partitions))

	runs := make([]*partitionRun, len(e.partitions))
	var g errgroup.Group
	if e.config.Workers > 1 {
		g.SetLimit(e.config.Workers)
	} else {
		g.SetLimit(1)
	}
	for i := range e.partitions {
		i := i
		g.Go(func() error {
			run, err := simulatePartition(e.partitions[i], order, pl.parents, pl.bindings[i], streams[i])
			if err != nil {
				return fmt.Errorf("partition %d: %w", i+1, err)
			}
			runs[i] = run
			logrus.Debugf("partition %d: simulated %d sites over %d nodes", i+1, e.partitions[i].Size(), len(order))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{RateLog: trace.NewRateLog()}
	for i, run := range runs {
		result.RateLog.AppendPartition(i+1, run.categories)
	}
	for k, n := range order {
		var sb strings.Builder
		for i, run := range runs {
			alphabet := e.partitions[i].Alphabet()
			for _, s := range run.states[k] {
				sb.WriteString(alphabet.Symbol(s))
			}
		}
		result.Sequences = append(result.Sequences, NodeSequence{Name: pl.names[k], Leaf: n.IsLeaf(), Sequence: sb.String()})
	}
	logrus.Infof("simulated %d partitions, %d sites, %d nodes", len(e.partitions), len(result.RateLog.Records), len(order))
	return result, nil
}

// simulatePartition assigns root states and categories, then walks the tree in pre-order
// sampling each child site from the parent's row of P(branch length).
func simulatePartition(p *Partition, order []*Node, parents []int, models []*SubstitutionModel, rng *rand.Rand) (*partitionRun, error) {
	root := p.RootModel()
	cats := root.RateCategories()
	weights := make([]float64, len(cats))
	for c, cat := range cats {
		weights[c] = cat.Probability
	}
	categorySampler := newCategoricalSampler(weights)
	rootSampler := newCategoricalSampler(root.Stationary())

	run := &partitionRun{
		states:     make([][]int, len(order)),
		categories: make([]int, p.Size()),
	}
	rootStates := make([]int, p.Size())
	for s := 0; s < p.Size(); s++ {
		run.categories[s] = categorySampler.Sample(rng)
		rootStates[s] = rootSampler.Sample(rng)
	}
	run.states[0] = rootStates

	type rowKey struct{ category, from int }
	for k := 1; k < len(order); k++ {
		model := models[k]
		length := order[k].BranchLength
		parentStates := run.states[parents[k]]
		rows := make(map[rowKey][]float64)
		states := make([]int, p.Size())
		for s := range states {
			key := rowKey{run.categories[s], parentStates[s]}
			row, ok := rows[key]
			if !ok {
				var err error
				row, err = model.TransitionRow(length, key.category, key.from)
				if err != nil {
					return nil, err
				}
				rows[key] = row
			}
			states[s] = sampleRow(row, rng)
		}
		run.states[k] = states
	}
	return run, nil
}

// nodeNames names nodes for output: leaves keep their tree names; unnamed internal nodes
// become "root" and "internal_node<N>" numbered in pre-order.
func nodeNames(order []*Node) ([]string, error) {
	names := make([]string, len(order))
	seen := make(map[string]bool, len(order))
	internal := 0
	for k, n := range order {
		name := n.Name
		switch {
		case name != "":
		case n.IsLeaf():
			return nil, fmt.Errorf("%w: leaf %d (pre-order) has no name", ErrInvalidParameter, k+1)
		case k == 0:
			name = "root"
		default:
			internal++
			name = fmt.Sprintf("internal_node%d", internal)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: node name %q appears more than once", ErrInconsistent, name)
		}
		seen[name] = true
		names[k] = name
	}
	return names, nil
}

// parentIndices maps each pre-order position to its parent's position (-1 for the root).
func parentIndices(order []*Node) []int {
	pos := make(map[*Node]int, len(order))
	for k, n := range order {
		pos[n] = k
	}
	parents := make([]int, len(order))
	parents[0] = -1
	for k, n := range order {
		for _, c := range n.Children {
			parents[pos[c]] = k
		}
	}
	return parents
}

package sim

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// f81Q builds Q_ij = pi_j (i != j) normalized to mean rate 1: reversible with respect to pi.
func f81Q(pi []float64) *mat.Dense {
	n := len(pi)
	q := mat.NewDense(n, n, nil)
	rate := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			if i != j {
				q.Set(i, j, pi[j])
				row += pi[j]
			}
		}
		q.Set(i, i, -row)
		rate += pi[i] * row
	}
	q.Scale(1/rate, q)
	return q
}

// cyclicQ is a non-reversible 4-state matrix: rate 2 to the next state, 1 to the
// previous. It is doubly stochastic, so its stationary distribution is uniform.
func cyclicQ() *mat.Dense {
	q := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		q.Set(i, (i+1)%4, 2)
		q.Set(i, (i+3)%4, 1)
		q.Set(i, i, -3)
	}
	return q
}

// chainQ is a defective matrix: A -> C -> G -> T at rate 1, T absorbing.
func chainQ() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		-1, 1, 0, 0,
		0, -1, 1, 0,
		0, 0, -1, 1,
		0, 0, 0, 0,
	})
}

// sinkQ drains every state into target at the given rate; target is absorbing.
func sinkQ(target int, rate float64) (*mat.Dense, []float64) {
	q := mat.NewDense(4, 4, nil)
	pi := make([]float64, 4)
	pi[target] = 1
	for i := 0; i < 4; i++ {
		if i != target {
			q.Set(i, target, rate)
			q.Set(i, i, -rate)
		}
	}
	return q, pi
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

// jcModel is the Jukes-Cantor nucleotide model.
func jcModel(t *testing.T, label string, cats []RateCategory) *SubstitutionModel {
	t.Helper()
	m, err := NewSubstitutionModel(label, Nucleotide, f81Q(uniform(4)), uniform(4), cats)
	if err != nil {
		t.Fatalf("jc model: %v", err)
	}
	return m
}

func sinkModel(t *testing.T, label string, target int) *SubstitutionModel {
	t.Helper()
	q, pi := sinkQ(target, 100)
	m, err := NewSubstitutionModel(label, Nucleotide, q, pi, nil)
	if err != nil {
		t.Fatalf("sink model: %v", err)
	}
	return m
}

// leaf and internal build trees by hand.
func leaf(name string, length float64, label string) *Node {
	return &Node{Name: name, BranchLength: length, ModelLabel: label}
}

func internal(length float64, label string, children ...*Node) *Node {
	return &Node{BranchLength: length, ModelLabel: label, Children: children}
}

// scenarioTree is (((t2:0.36,t1:0.45):0.001,t3:0.77):0.44,(t5:0.77,t4:0.41):0.89);
// with optional labels on the t2 branch and the branch above (t2,t1,t3).
func scenarioTree(leftLabel, t2Label string) *Tree {
	return &Tree{Root: internal(0, "",
		internal(0.44, leftLabel,
			internal(0.001, "", leaf("t2", 0.36, t2Label), leaf("t1", 0.45, "")),
			leaf("t3", 0.77, "")),
		internal(0.89, "", leaf("t5", 0.77, ""), leaf("t4", 0.41, "")),
	)}
}

// Package testutil provides shared test infrastructure for phylosim.
// It consolidates fixture loading and numeric assertion helpers used across
// sim/ and its sub-package tests.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// ScenarioTree is the five-taxon tree used throughout the tests.
const ScenarioTree = "(((t2:0.36,t1:0.45):0.001,t3:0.77):0.44,(t5:0.77,t4:0.41):0.89);"

// ScenarioLeaves lists ScenarioTree's leaves in pre-order.
var ScenarioLeaves = []string{"t2", "t1", "t3", "t5", "t4"}

// TestdataPath resolves name inside the repo root testdata/ directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func TestdataPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
}

// LoadTestdata reads a fixture from the repo root testdata/ directory.
func LoadTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(TestdataPath(t, name))
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", name, err)
	}
	return data
}

// AssertRowSums checks every row of m sums to want within absTol.
func AssertRowSums(t *testing.T, name string, m mat.Matrix, want, absTol float64) {
	t.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		if math.Abs(sum-want) > absTol {
			t.Errorf("%s: row %d sums to %v, want %v", name, i, sum, want)
		}
	}
}

// AssertMeanRate checks -sum_i pi_i Q_ii equals want within absTol.
func AssertMeanRate(t *testing.T, name string, q mat.Matrix, pi []float64, want, absTol float64) {
	t.Helper()
	rate := 0.0
	for i, p := range pi {
		rate -= p * q.At(i, i)
	}
	if math.Abs(rate-want) > absTol {
		t.Errorf("%s: mean rate %v, want %v", name, rate, want)
	}
}

// AssertDetailedBalance checks pi_i Q_ij = pi_j Q_ji for every pair within absTol.
func AssertDetailedBalance(t *testing.T, name string, q mat.Matrix, pi []float64, absTol float64) {
	t.Helper()
	for i := range pi {
		for j := i + 1; j < len(pi); j++ {
			if d := math.Abs(pi[i]*q.At(i, j) - pi[j]*q.At(j, i)); d > absTol {
				t.Errorf("%s: detailed balance off by %v at (%d,%d)", name, d, i, j)
				return
			}
		}
	}
}

// Uniform returns n equal probabilities.
func Uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

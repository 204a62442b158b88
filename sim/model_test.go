package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewSubstitutionModel_ReversibleUsesSymmetricEigen(t *testing.T) {
	// GIVEN an F81 matrix with unequal frequencies
	pi := []float64{0.1, 0.2, 0.3, 0.4}

	// WHEN the model is built
	m, err := NewSubstitutionModel("f81", Nucleotide, f81Q(pi), pi, nil)
	require.NoError(t, err)

	// THEN detailed balance selects the symmetric decomposition and one default category
	assert.Equal(t, MethodSymmetricEigen, m.Method())
	assert.Equal(t, 1, m.NumCategories())
	assert.Equal(t, "f81", m.Label())
}

func TestNewSubstitutionModel_NonReversibleUsesComplexEigen(t *testing.T) {
	// GIVEN a cyclic matrix with complex eigenvalues
	m, err := NewSubstitutionModel("cyc", Nucleotide, cyclicQ(), uniform(4), nil)
	require.NoError(t, err)

	// THEN the general decomposition is used
	assert.Equal(t, MethodComplexEigen, m.Method())

	// AND its rows agree with the Padé exponential
	pade := newPadeEngine(cyclicQ())
	want := make([]float64, 4)
	for _, bl := range []float64{0.05, 0.5, 2} {
		for from := 0; from < 4; from++ {
			got, err := m.TransitionRow(bl, 0, from)
			require.NoError(t, err)
			pade.row(bl, from, want)
			assert.InDeltaSlice(t, want, got, 1e-9, "t=%g from=%d", bl, from)
		}
	}
}

func TestTransitionRow_DefectiveMatrixMatchesClosedForm(t *testing.T) {
	// GIVEN a Jordan-block chain A -> C -> G -> T with T absorbing
	m, err := NewSubstitutionModel("chain", Nucleotide, chainQ(), []float64{0, 0, 0, 1}, nil)
	require.NoError(t, err)

	// WHEN the row from A is evaluated at t = 1
	row, err := m.TransitionRow(1, 0, 0)
	require.NoError(t, err)

	// THEN it matches e^-t, t e^-t, t^2/2 e^-t and the remainder
	e := math.Exp(-1)
	want := []float64{e, e, e / 2, 1 - 2.5*e}
	assert.InDeltaSlice(t, want, row, 1e-6)
	assert.NotEqual(t, MethodSymmetricEigen, m.Method())
}

func TestTransitionMatrix_ZeroAndLongBranches(t *testing.T) {
	pi := []float64{0.1, 0.2, 0.3, 0.4}
	m, err := NewSubstitutionModel("", Nucleotide, f81Q(pi), pi, nil)
	require.NoError(t, err)

	// WHEN t = 0
	p0, err := m.TransitionMatrix(0, 0)
	require.NoError(t, err)
	// THEN P is the identity
	assert.True(t, mat.EqualApprox(p0, mat.NewDiagDense(4, []float64{1, 1, 1, 1}), 1e-12))

	// WHEN t is very long
	pInf, err := m.TransitionMatrix(200, 0)
	require.NoError(t, err)
	// THEN every row converges to pi
	for i := 0; i < 4; i++ {
		assert.InDeltaSlice(t, pi, pInf.RawRowView(i), 1e-9, "row %d", i)
	}
}

func TestTransitionRow_ExtremeLengthsConvergeToStationary(t *testing.T) {
	// GIVEN reversible nucleotide and codon models and a non-reversible cyclic model
	pi := []float64{0.1, 0.2, 0.3, 0.4}
	f81, err := NewSubstitutionModel("f81", Nucleotide, f81Q(pi), pi, nil)
	require.NoError(t, err)
	codon, err := NewSubstitutionModel("codon", Codon, f81Q(uniform(61)), uniform(61), nil)
	require.NoError(t, err)
	cyclic, err := NewSubstitutionModel("cyclic", Nucleotide, cyclicQ(), uniform(4), nil)
	require.NoError(t, err)
	require.Equal(t, MethodComplexEigen, cyclic.Method())

	cases := []struct {
		model *SubstitutionModel
		pi    []float64
	}{
		{f81, pi},
		{codon, uniform(61)},
		{cyclic, uniform(4)},
	}
	for _, c := range cases {
		for _, bl := range []float64{1e6, 1e12, 1e100} {
			for _, from := range []int{0, c.model.Alphabet().Size() - 1} {
				// WHEN a row is evaluated at an enormous branch length
				row, err := c.model.TransitionRow(bl, 0, from)

				// THEN it is the stationary distribution rather than a numerical failure
				require.NoError(t, err, "%s t=%g", c.model.Label(), bl)
				assert.InDeltaSlice(t, c.pi, row, 1e-9, "%s t=%g from=%d", c.model.Label(), bl, from)
			}
		}
	}
}

func TestTransitionRow_OverflowingScaledLength(t *testing.T) {
	// GIVEN a category whose rate pushes a finite length past the float64 range
	m := jcModel(t, "jc", []RateCategory{{Rate: 4, Probability: 1}})

	// WHEN the row is requested
	_, err := m.TransitionRow(math.MaxFloat64/2, 0, 0)

	// THEN the length is rejected before any exponential is taken
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTransitionMatrix_RowsAreStochastic(t *testing.T) {
	models := map[string]*SubstitutionModel{}
	var err error
	models["jc"] = jcModel(t, "jc", nil)
	models["cyclic"], err = NewSubstitutionModel("cyclic", Nucleotide, cyclicQ(), uniform(4), nil)
	require.NoError(t, err)
	models["chain"], err = NewSubstitutionModel("chain", Nucleotide, chainQ(), []float64{0, 0, 0, 1}, nil)
	require.NoError(t, err)

	for name, m := range models {
		for _, bl := range []float64{1e-4, 0.1, 1, 10} {
			p, err := m.TransitionMatrix(bl, 0)
			require.NoError(t, err, name)
			for i := 0; i < 4; i++ {
				sum := 0.0
				for _, v := range p.RawRowView(i) {
					assert.GreaterOrEqual(t, v, 0.0, "%s t=%g", name, bl)
					sum += v
				}
				assert.InDelta(t, 1, sum, 1e-9, "%s t=%g row %d", name, bl, i)
			}
		}
	}
}

func TestTransitionRow_RateCategoriesScaleTime(t *testing.T) {
	// GIVEN categories with rates 0 and 2
	cats := []RateCategory{{Rate: 0, Probability: 0.5}, {Rate: 2, Probability: 0.5}}
	m := jcModel(t, "jc", cats)

	// THEN the rate-zero category never leaves the parent state
	row, err := m.TransitionRow(5, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, row)

	// AND the rate-two category at t equals the unit-rate process at 2t
	base := jcModel(t, "base", nil)
	fast, err := m.TransitionRow(0.3, 1, 1)
	require.NoError(t, err)
	slow, err := base.TransitionRow(0.6, 0, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, slow, fast, 1e-12)
}

func TestTransitionRow_Errors(t *testing.T) {
	m := jcModel(t, "jc", nil)
	tests := []struct {
		name     string
		length   float64
		category int
		from     int
		want     error
	}{
		{"negative length", -0.1, 0, 0, ErrInvalidParameter},
		{"NaN length", math.NaN(), 0, 0, ErrInvalidParameter},
		{"infinite length", math.Inf(1), 0, 0, ErrInvalidParameter},
		{"negative infinite length", math.Inf(-1), 0, 0, ErrInvalidParameter},
		{"category out of range", 0.1, 1, 0, ErrInconsistent},
		{"state out of range", 0.1, 0, 4, ErrInconsistent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.TransitionRow(tt.length, tt.category, tt.from)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewSubstitutionModel_Validation(t *testing.T) {
	negative := f81Q(uniform(4))
	negative.Set(0, 1, -0.1)

	unbalanced := f81Q(uniform(4))
	unbalanced.Set(2, 3, unbalanced.At(2, 3)+0.5)

	tests := []struct {
		name     string
		alphabet Alphabet
		q        mat.Matrix
		pi       []float64
		cats     []RateCategory
		want     error
	}{
		{"dimension mismatch", AminoAcid, f81Q(uniform(4)), uniform(20), nil, ErrInconsistent},
		{"negative off-diagonal", Nucleotide, negative, uniform(4), nil, ErrInvalidParameter},
		{"row does not sum to zero", Nucleotide, unbalanced, uniform(4), nil, ErrInvalidParameter},
		{"pi not stationary", Nucleotide, f81Q(uniform(4)), []float64{0.1, 0.2, 0.3, 0.4}, nil, ErrInconsistent},
		{"pi does not sum to one", Nucleotide, f81Q(uniform(4)), []float64{0.5, 0.5, 0.5, 0.5}, nil, ErrInvalidParameter},
		{"bad categories", Nucleotide, f81Q(uniform(4)), uniform(4), []RateCategory{{Rate: 1, Probability: 0.5}}, ErrInvalidParameter},
		{"unknown alphabet", Alphabet(0), f81Q(uniform(4)), uniform(4), nil, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSubstitutionModel("bad", tt.alphabet, tt.q, tt.pi, tt.cats)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubstitutionModel_AccessorsReturnCopies(t *testing.T) {
	m := jcModel(t, "jc", nil)

	q := m.Q()
	q.Set(0, 0, 99)
	pi := m.Stationary()
	pi[0] = 99
	cats := m.RateCategories()
	cats[0].Rate = 99

	assert.InDelta(t, -1, m.Q().At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, m.Stationary()[0], 1e-12)
	assert.Equal(t, 1.0, m.RateCategories()[0].Rate)
}

func TestInvertComplex_RecoversIdentity(t *testing.T) {
	// GIVEN a well-conditioned complex matrix
	a := []complex128{
		2 + 1i, 1, 0,
		0, 3, 1i,
		1, 0, 1 - 1i,
	}

	inv, err := invertComplex(a, 3)
	require.NoError(t, err)

	// THEN A * A^-1 = I
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s complex128
			for k := 0; k < 3; k++ {
				s += a[i*3+k] * inv[k*3+j]
			}
			want := complex(0, 0)
			if i == j {
				want = 1
			}
			assert.InDelta(t, real(want), real(s), 1e-12)
			assert.InDelta(t, imag(want), imag(s), 1e-12)
		}
	}
}

func TestInvertComplex_SingularFails(t *testing.T) {
	_, err := invertComplex([]complex128{1, 2, 2, 4}, 2)
	assert.Error(t, err)
}

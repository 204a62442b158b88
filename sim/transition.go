package sim

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/mat"
)

const (
	// rowSumTolerance is how far a row of P(t) may sum from 1 before the result is rejected.
	rowSumTolerance = 1e-6
	// reconstructionTolerance bounds |V diag(lambda) V^-1 - Q| relative to the largest |Q_ij|
	// before an eigendecomposition is considered unusable.
	reconstructionTolerance = 1e-8
	// detailedBalanceTolerance bounds |pi_i Q_ij - pi_j Q_ji| relative to the largest flux.
	detailedBalanceTolerance = 1e-10
	// zeroEigenTolerance is the distance from 0, relative to max |Q_ii|, within which an
	// eigenvalue is taken to be exactly 0.
	zeroEigenTolerance = 1e-10
)

var errDecomposition = errors.New("eigendecomposition unusable")

// expEngine evaluates rows of P(t) = exp(Q t) for a fixed Q.
type expEngine interface {
	// row writes P(t)[from, :] into dst (len n).
	row(t float64, from int, dst []float64)
	method() string
}

// Method names reported by SubstitutionModel.Method.
const (
	MethodSymmetricEigen = "symmetric-eigen"
	MethodComplexEigen   = "complex-eigen"
	MethodPade           = "pade"
)

// newExpEngine picks the cheapest exact method Q admits: a symmetric eigendecomposition
// when Q is reversible with respect to a strictly positive pi, a general (complex)
// eigendecomposition otherwise, and scaling-and-squaring Padé when Q is defective.
func newExpEngine(q *mat.Dense, pi []float64) expEngine {
	if reversible(q, pi) {
		if e, err := newSymmetricEngine(q, pi); err == nil {
			return e
		}
	}
	if e, err := newComplexEngine(q); err == nil {
		return e
	}
	return newPadeEngine(q)
}

// reversible reports whether pi is strictly positive and pi_i Q_ij = pi_j Q_ji for all i, j.
func reversible(q *mat.Dense, pi []float64) bool {
	n, _ := q.Dims()
	maxFlux := 0.0
	for i := 0; i < n; i++ {
		if pi[i] <= 0 {
			return false
		}
		for j := 0; j < n; j++ {
			if i != j {
				maxFlux = math.Max(maxFlux, pi[i]*q.At(i, j))
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(pi[i]*q.At(i, j)-pi[j]*q.At(j, i)) > detailedBalanceTolerance*math.Max(1, maxFlux) {
				return false
			}
		}
	}
	return true
}

// === Symmetric engine ===

// symmetricEngine diagonalizes S = D^1/2 Q D^-1/2 (D = diag(pi)), which is symmetric
// for reversible Q, so P(t) = D^-1/2 U exp(Lambda t) U^T D^1/2 with real arithmetic.
type symmetricEngine struct {
	n         int
	values    []float64
	vectors   *mat.Dense
	sqrtPi    []float64
	invSqrtPi []float64
	weights   sync.Pool
}

func newSymmetricEngine(q *mat.Dense, pi []float64) (*symmetricEngine, error) {
	n, _ := q.Dims()
	sqrtPi := make([]float64, n)
	invSqrtPi := make([]float64, n)
	for i, p := range pi {
		sqrtPi[i] = math.Sqrt(p)
		invSqrtPi[i] = 1 / sqrtPi[i]
	}
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sij := sqrtPi[i] * q.At(i, j) * invSqrtPi[j]
			sji := sqrtPi[j] * q.At(j, i) * invSqrtPi[i]
			s.SetSym(i, j, (sij+sji)/2)
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return nil, errDecomposition
	}
	vectors := mat.NewDense(n, n, nil)
	es.VectorsTo(vectors)
	values := es.Values(nil)
	tol := zeroEigenTolerance * maxDiagonal(q)
	for k, v := range values {
		// The spectrum of a rate matrix is non-positive; rounding drift above -tol
		// would otherwise grow or shrink without bound as t gets large.
		if v > -tol {
			values[k] = 0
		}
	}
	e := &symmetricEngine{
		n:         n,
		values:    values,
		vectors:   vectors,
		sqrtPi:    sqrtPi,
		invSqrtPi: invSqrtPi,
	}
	e.weights.New = func() any { return make([]float64, n) }
	return e, nil
}

func (e *symmetricEngine) row(t float64, from int, dst []float64) {
	w := e.weights.Get().([]float64)
	defer e.weights.Put(w)
	for k := 0; k < e.n; k++ {
		w[k] = e.vectors.At(from, k) * math.Exp(e.values[k]*t)
	}
	for j := 0; j < e.n; j++ {
		sum := 0.0
		for k := 0; k < e.n; k++ {
			sum += w[k] * e.vectors.At(j, k)
		}
		dst[j] = e.invSqrtPi[from] * sum * e.sqrtPi[j]
	}
}

func (e *symmetricEngine) method() string { return MethodSymmetricEigen }

// === Complex engine ===

// complexEngine handles non-reversible Q, whose eigenvalues may come in complex
// conjugate pairs. P(t) = Re(V exp(Lambda t) V^-1); the imaginary parts cancel
// analytically and are dropped.
type complexEngine struct {
	n       int
	values  []complex128
	vectors []complex128 // row-major n x n
	inverse []complex128 // row-major n x n
}

func newComplexEngine(q *mat.Dense) (*complexEngine, error) {
	n, _ := q.Dims()
	var eig mat.Eigen
	if ok := eig.Factorize(q, mat.EigenRight); !ok {
		return nil, errDecomposition
	}
	values := eig.Values(nil)
	var cv mat.CDense
	eig.VectorsTo(&cv)
	vectors := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			vectors[i*n+j] = cv.At(i, j)
		}
	}
	inverse, err := invertComplex(vectors, n)
	if err != nil {
		return nil, err
	}
	e := &complexEngine{n: n, values: values, vectors: vectors, inverse: inverse}
	if !e.reconstructs(q) {
		return nil, errDecomposition
	}
	tol := zeroEigenTolerance * maxDiagonal(q)
	for k, v := range values {
		switch {
		case math.Abs(real(v)) <= tol && math.Abs(imag(v)) <= tol:
			values[k] = 0
		case real(v) > 0:
			values[k] = complex(0, imag(v))
		}
	}
	return e, nil
}

// maxDiagonal returns max |Q_ii|, or 1 when Q has no non-zero diagonal entry.
func maxDiagonal(q *mat.Dense) float64 {
	n, _ := q.Dims()
	m := 0.0
	for i := 0; i < n; i++ {
		m = math.Max(m, math.Abs(q.At(i, i)))
	}
	if m == 0 {
		return 1
	}
	return m
}

// reconstructs checks V diag(lambda) V^-1 against Q; a defective Q yields a
// near-singular V whose product drifts far from Q.
func (e *complexEngine) reconstructs(q *mat.Dense) bool {
	n := e.n
	scale := 1.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scale = math.Max(scale, math.Abs(q.At(i, j)))
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += e.vectors[i*n+k] * e.values[k] * e.inverse[k*n+j]
			}
			if cmplx.IsNaN(sum) || cmplx.Abs(sum-complex(q.At(i, j), 0)) > reconstructionTolerance*scale {
				return false
			}
		}
	}
	return true
}

func (e *complexEngine) row(t float64, from int, dst []float64) {
	n := e.n
	w := make([]complex128, n)
	for k := 0; k < n; k++ {
		w[k] = e.vectors[from*n+k] * cmplx.Exp(e.values[k]*complex(t, 0))
	}
	for j := 0; j < n; j++ {
		var sum complex128
		for k := 0; k < n; k++ {
			sum += w[k] * e.inverse[k*n+j]
		}
		dst[j] = real(sum)
	}
}

func (e *complexEngine) method() string { return MethodComplexEigen }

// invertComplex inverts a row-major n x n complex matrix by Gauss-Jordan
// elimination with partial pivoting.
func invertComplex(a []complex128, n int) ([]complex128, error) {
	work := make([]complex128, n*2*n)
	w := 2 * n
	for i := 0; i < n; i++ {
		copy(work[i*w:i*w+n], a[i*n:(i+1)*n])
		work[i*w+n+i] = 1
	}
	for col := 0; col < n; col++ {
		pivot, best := col, cmplx.Abs(work[col*w+col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(work[r*w+col]); v > best {
				pivot, best = r, v
			}
		}
		if best < 1e-300 {
			return nil, errDecomposition
		}
		if pivot != col {
			for c := 0; c < w; c++ {
				work[col*w+c], work[pivot*w+c] = work[pivot*w+c], work[col*w+c]
			}
		}
		inv := 1 / work[col*w+col]
		for c := 0; c < w; c++ {
			work[col*w+c] *= inv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := work[r*w+col]
			if f == 0 {
				continue
			}
			for c := 0; c < w; c++ {
				work[r*w+c] -= f * work[col*w+c]
			}
		}
	}
	out := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		copy(out[i*n:(i+1)*n], work[i*w+n:(i+1)*w])
	}
	return out, nil
}

// === Padé engine ===

// padeEngine exponentiates Q t directly with gonum's scaling-and-squaring Padé
// approximant (degree 13, Higham 2005). Relative backward error is bounded by unit
// roundoff, so rows sum to 1 within about n * 1e-15 for well-scaled Q t. It costs
// O(n^3) per distinct t, so the most recent matrix is cached.
type padeEngine struct {
	q *mat.Dense

	mu    sync.Mutex
	lastT float64
	last  *mat.Dense
}

func newPadeEngine(q *mat.Dense) *padeEngine {
	return &padeEngine{q: q, lastT: math.NaN()}
}

func (e *padeEngine) row(t float64, from int, dst []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil || e.lastT != t {
		var qt, p mat.Dense
		qt.Scale(t, e.q)
		p.Exp(&qt)
		e.last, e.lastT = &p, t
	}
	copy(dst, e.last.RawRowView(from))
}

func (e *padeEngine) method() string { return MethodPade }

// checkStochasticRow clamps rounding noise below zero and reports whether row is a
// probability vector within rowSumTolerance.
func checkStochasticRow(row []float64) bool {
	sum := 0.0
	for j, p := range row {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < -rowSumTolerance {
			return false
		}
		if p < 0 {
			row[j] = 0
			p = 0
		}
		sum += p
	}
	return math.Abs(sum-1) <= rowSumTolerance
}

package core

import "math"

// Vec2 is a 2-vector.
type Vec2 [2]float64

// Mat2 is a 2x2 matrix, row-major.
type Mat2 [2][2]float64

// -----------------------------------------------------------------------------

// Identity2 returns the 2x2 identity.
func Identity2() Mat2 {
	return Mat2{{1, 0}, {0, 1}}
}

// Diag2 returns diag(a, b).
func Diag2(a, b float64) Mat2 {
	return Mat2{{a, 0}, {0, b}}
}

// -----------------------------------------------------------------------------

func (v Vec2) Add(w Vec2) Vec2 {
	return Vec2{v[0] + w[0], v[1] + w[1]}
}

func (v Vec2) Sub(w Vec2) Vec2 {
	return Vec2{v[0] - w[0], v[1] - w[1]}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v[0] * s, v[1] * s}
}

// Sum is C*v with C = [1, 1].
func (v Vec2) Sum() float64 {
	return v[0] + v[1]
}

// Outer returns v * w^T.
func (v Vec2) Outer(w Vec2) Mat2 {
	return Mat2{
		{v[0] * w[0], v[0] * w[1]},
		{v[1] * w[0], v[1] * w[1]},
	}
}

// Norm is the Euclidean norm.
func (v Vec2) Norm() float64 {
	return math.Hypot(v[0], v[1])
}

// -----------------------------------------------------------------------------

func (m Mat2) Add(n Mat2) Mat2 {
	return Mat2{
		{m[0][0] + n[0][0], m[0][1] + n[0][1]},
		{m[1][0] + n[1][0], m[1][1] + n[1][1]},
	}
}

func (m Mat2) Sub(n Mat2) Mat2 {
	return Mat2{
		{m[0][0] - n[0][0], m[0][1] - n[0][1]},
		{m[1][0] - n[1][0], m[1][1] - n[1][1]},
	}
}

func (m Mat2) Scale(s float64) Mat2 {
	return Mat2{
		{m[0][0] * s, m[0][1] * s},
		{m[1][0] * s, m[1][1] * s},
	}
}

func (m Mat2) Mul(n Mat2) Mat2 {
	return Mat2{
		{m[0][0]*n[0][0] + m[0][1]*n[1][0], m[0][0]*n[0][1] + m[0][1]*n[1][1]},
		{m[1][0]*n[0][0] + m[1][1]*n[1][0], m[1][0]*n[0][1] + m[1][1]*n[1][1]},
	}
}

func (m Mat2) MulVec(v Vec2) Vec2 {
	return Vec2{
		m[0][0]*v[0] + m[0][1]*v[1],
		m[1][0]*v[0] + m[1][1]*v[1],
	}
}

func (m Mat2) T() Mat2 {
	return Mat2{
		{m[0][0], m[1][0]},
		{m[0][1], m[1][1]},
	}
}

// Sandwich returns m * s * m^T.
func (m Mat2) Sandwich(s Mat2) Mat2 {
	return m.Mul(s).Mul(m.T())
}

func (m Mat2) Det() float64 {
	return m[0][0]*m[1][1] - m[0][1]*m[1][0]
}

func (m Mat2) Trace() float64 {
	return m[0][0] + m[1][1]
}

// Sum is C*m*C^T with C = [1, 1].
func (m Mat2) Sum() float64 {
	return m[0][0] + m[0][1] + m[1][0] + m[1][1]
}

// RowSum is m*C^T with C = [1, 1].
func (m Mat2) RowSum() Vec2 {
	return Vec2{m[0][0] + m[0][1], m[1][0] + m[1][1]}
}

// Sym averages the off-diagonal entries.
func (m Mat2) Sym() Mat2 {
	off := 0.5 * (m[0][1] + m[1][0])
	return Mat2{{m[0][0], off}, {off, m[1][1]}}
}

// Frobenius norm.
func (m Mat2) Norm() float64 {
	return math.Sqrt(m[0][0]*m[0][0] + m[0][1]*m[0][1] + m[1][0]*m[1][0] + m[1][1]*m[1][1])
}

// -----------------------------------------------------------------------------

// singularTol is the relative determinant below which Inv falls back to PInv.
const singularTol = 1e-14

// Inv returns the inverse of m. For a (near) singular m it returns the
// pseudo-inverse of the symmetric part instead, and ok is false.
func (m Mat2) Inv() (inv Mat2, ok bool) {
	det := m.Det()
	scale := math.Abs(m[0][0]) + math.Abs(m[1][1]) + math.Abs(m[0][1]) + math.Abs(m[1][0])
	if scale == 0 || math.Abs(det) <= singularTol*scale*scale {
		return m.PInv(), false
	}
	return Mat2{
		{m[1][1] / det, -m[0][1] / det},
		{-m[1][0] / det, m[0][0] / det},
	}, true
}

// PInv is the Moore-Penrose pseudo-inverse of the symmetric part of m,
// from its closed-form eigen decomposition.
func (m Mat2) PInv() Mat2 {
	s := m.Sym()
	a, b, d := s[0][0], s[0][1], s[1][1]
	half := 0.5 * (a + d)
	disc := math.Hypot(0.5*(a-d), b)
	l1, l2 := half+disc, half-disc

	var v1, v2 Vec2
	switch {
	case b != 0:
		v1 = Vec2{l1 - d, b}.Scale(1 / Vec2{l1 - d, b}.Norm())
		v2 = Vec2{-v1[1], v1[0]}
	case a >= d:
		v1, v2 = Vec2{1, 0}, Vec2{0, 1}
	default:
		v1, v2 = Vec2{0, 1}, Vec2{1, 0}
	}

	tol := 1e-12 * math.Max(math.Abs(l1), math.Abs(l2))
	var out Mat2
	if math.Abs(l1) > tol {
		out = out.Add(v1.Outer(v1).Scale(1 / l1))
	}
	if math.Abs(l2) > tol {
		out = out.Add(v2.Outer(v2).Scale(1 / l2))
	}
	return out
}

// IsSymmetric reports whether the off-diagonals agree within tol.
func (m Mat2) IsSymmetric(tol float64) bool {
	return math.Abs(m[0][1]-m[1][0]) <= tol*math.Max(1, math.Abs(m[0][1]))
}

// IsPSD reports whether the symmetric part of m is positive semi-definite
// up to tol. For 2x2 this is a non-negative diagonal and determinant.
func (m Mat2) IsPSD(tol float64) bool {
	s := m.Sym()
	if !s.IsFinite() {
		return false
	}
	return s[0][0] >= -tol && s[1][1] >= -tol && s.Det() >= -tol*math.Max(1, s.Trace()*s.Trace())
}

// IsFinite reports whether no entry is NaN or Inf.
func (m Mat2) IsFinite() bool {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// IsFinite reports whether no entry is NaN or Inf.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v[0]) && !math.IsInf(v[0], 0) && !math.IsNaN(v[1]) && !math.IsInf(v[1], 0)
}

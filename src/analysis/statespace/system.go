package statespace

import (
	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// System is the explicit time-varying state-space form of a parameter set
// over nBin*nDay observations. Slices are indexed by k = tau-1.
//
//	x[k+1] = A[k] x[k] + w[k],  w[k] ~ N(0, Q[k])
//	y[k]   = C x[k] + phi[k mod nBin] + v[k],  v[k] ~ N(0, R)
type System struct {
	NBin int
	NDay int
	A    []core.Mat2
	Q    []core.Mat2
	C    core.Vec2
	R    float64
	Phi  []float64
	X0   core.Vec2
	V0   core.Mat2
}

// -----------------------------------------------------------------------------

// IsDayBoundary reports whether 0-based index k is the last bin of a day
// (tau mod nBin == 0). The daily coefficient and variance act only there.
func IsDayBoundary(k, nBin int) bool {
	return (k+1)%nBin == 0
}

// BuildSystem derives the system matrices from par. It is pure: identical
// inputs yield identical matrices.
func BuildSystem(par models.MParameterSet, nBin, nDay int) (*System, error) {
	if nBin <= 0 || nDay <= 0 {
		return nil, helpers.NewConfigurationError("system dimensions must be positive, got %d bins x %d days", nBin, nDay)
	}
	if len(par.Phi) != nBin {
		return nil, helpers.NewConfigurationError("phi has %d entries, expected %d", len(par.Phi), nBin)
	}

	n := nBin * nDay
	sys := &System{
		NBin: nBin,
		NDay: nDay,
		A:    make([]core.Mat2, n),
		Q:    make([]core.Mat2, n),
		C:    core.Vec2{1, 1},
		R:    par.R,
		Phi:  append([]float64(nil), par.Phi...),
		X0:   core.Vec2(par.X0),
		V0:   core.Mat2(par.V0),
	}

	intraday := core.Diag2(1, par.AMu)
	intradayQ := core.Diag2(0, par.VarMu)
	boundary := core.Diag2(par.AEta, par.AMu)
	boundaryQ := core.Diag2(par.VarEta, par.VarMu)
	for k := 0; k < n; k++ {
		if IsDayBoundary(k, nBin) {
			sys.A[k] = boundary
			sys.Q[k] = boundaryQ
		} else {
			sys.A[k] = intraday
			sys.Q[k] = intradayQ
		}
	}
	return sys, nil
}

// Len is the number of observations covered.
func (s *System) Len() int {
	return s.NBin * s.NDay
}

// Offset returns the seasonal offset at index k.
func (s *System) Offset(k int) float64 {
	return s.Phi[k%s.NBin]
}

// Transition returns A at 1-based tau.
func (s *System) Transition(tau int) core.Mat2 {
	return s.A[tau-1]
}

// Noise returns Q at 1-based tau.
func (s *System) Noise(tau int) core.Mat2 {
	return s.Q[tau-1]
}

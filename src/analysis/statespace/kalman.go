package statespace

import (
	"math"

	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
)

// FilterResult holds the forward pass. Index k corresponds to tau = k+1.
type FilterResult struct {
	XPred  []core.Vec2 // x_{k|k-1}
	PPred  []core.Mat2 // P_{k|k-1}
	XFilt  []core.Vec2 // x_{k|k}
	PFilt  []core.Mat2 // P_{k|k}
	LogLik float64
	// Skipped lists indices whose update was skipped because the observation
	// was missing or the innovation variance was not positive.
	Skipped []int
}

// SmoothResult extends the forward pass with the RTS backward pass.
type SmoothResult struct {
	*FilterResult
	XSmooth []core.Vec2 // x_{k|N}
	PSmooth []core.Mat2 // P_{k|N}
	// PCross[k] is Cov(x_k, x_{k-1} | y_1..y_N); PCross[0] is zero.
	PCross []core.Mat2
}

// -----------------------------------------------------------------------------

var log2Pi = math.Log(2 * math.Pi)

// predictStep propagates a filtered state through one transition.
func predictStep(x core.Vec2, p core.Mat2, a, q core.Mat2) (core.Vec2, core.Mat2) {
	return a.MulVec(x), a.Sandwich(p).Add(q).Sym()
}

// updateStep conditions the predicted state on y. ok is false when the update
// was skipped; the prediction is then returned unchanged.
func updateStep(x core.Vec2, p core.Mat2, y, offset, r float64) (core.Vec2, core.Mat2, float64, bool) {
	if math.IsNaN(y) {
		return x, p, 0, false
	}
	s := p.Sum() + r
	if !(s > 0) || math.IsInf(s, 0) {
		return x, p, 0, false
	}

	pc := p.RowSum() // P C^T
	gain := pc.Scale(1 / s)
	innov := y - x.Sum() - offset

	xf := x.Add(gain.Scale(innov))
	pf := p.Sub(gain.Outer(pc)).Sym()
	ll := -0.5 * (log2Pi + math.Log(s) + innov*innov/s)
	return xf, pf, ll, true
}

// -----------------------------------------------------------------------------

// Filter runs the forward recursion over the log observations y.
func Filter(sys *System, y []float64) (*FilterResult, error) {
	n := sys.Len()
	if len(y) != n {
		return nil, helpers.NewConfigurationError("got %d observations for a system of length %d", len(y), n)
	}

	res := &FilterResult{
		XPred: make([]core.Vec2, n),
		PPred: make([]core.Mat2, n),
		XFilt: make([]core.Vec2, n),
		PFilt: make([]core.Mat2, n),
	}

	x, p := sys.X0, sys.V0.Sym()
	for k := 0; k < n; k++ {
		res.XPred[k], res.PPred[k] = x, p

		xf, pf, ll, ok := updateStep(x, p, y[k], sys.Offset(k), sys.R)
		if !ok {
			res.Skipped = append(res.Skipped, k)
		}
		res.LogLik += ll
		res.XFilt[k], res.PFilt[k] = xf, pf

		x, p = predictStep(xf, pf, sys.A[k], sys.Q[k])
	}
	return res, nil
}

// -----------------------------------------------------------------------------

// Smooth runs Filter and then the Rauch-Tung-Striebel backward recursion,
// including the lag-one covariances needed by the estimator.
func Smooth(sys *System, y []float64) (*SmoothResult, error) {
	f, err := Filter(sys, y)
	if err != nil {
		return nil, err
	}

	n := sys.Len()
	res := &SmoothResult{
		FilterResult: f,
		XSmooth:      make([]core.Vec2, n),
		PSmooth:      make([]core.Mat2, n),
		PCross:       make([]core.Mat2, n),
	}
	res.XSmooth[n-1] = f.XFilt[n-1]
	res.PSmooth[n-1] = f.PFilt[n-1]

	for k := n - 2; k >= 0; k-- {
		inv, _ := f.PPred[k+1].Inv()
		gain := f.PFilt[k].Mul(sys.A[k].T()).Mul(inv)

		res.XSmooth[k] = f.XFilt[k].Add(gain.MulVec(res.XSmooth[k+1].Sub(f.XPred[k+1])))
		res.PSmooth[k] = f.PFilt[k].Add(gain.Sandwich(res.PSmooth[k+1].Sub(f.PPred[k+1]))).Sym()
		res.PCross[k+1] = res.PSmooth[k+1].Mul(gain.T())
	}
	return res, nil
}

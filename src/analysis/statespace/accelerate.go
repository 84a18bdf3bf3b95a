package statespace

import (
	"math"

	"volume-observer/src/analysis/core"
	"volume-observer/src/models"
)

// emMap is one EM update: the next parameters and the log-likelihood at the input.
type emMap func(models.MParameterSet) (models.MParameterSet, float64, error)

// Accelerator turns EM updates into one estimator iteration.
type Accelerator interface {
	Step(par models.MParameterSet, free []string, em emMap) (models.MParameterSet, float64, error)
}

// -----------------------------------------------------------------------------

// PlainEM applies a single EM update per iteration.
type PlainEM struct{}

func (PlainEM) Step(par models.MParameterSet, _ []string, em emMap) (models.MParameterSet, float64, error) {
	return em(par)
}

// -----------------------------------------------------------------------------

// SquaremEM is the SQUAREM scheme with the SqS3 step length:
//
//	t1 = EM(t0), t2 = EM(t1), r = t1 - t0, v = t2 - t1 - r
//	alpha = -|r| / |v|, capped at -1
//	t' = t0 - 2 alpha r + alpha^2 v, followed by one stabilizing EM update.
//
// The plain iterate t2 is returned when t' leaves the parameter space or
// lowers the likelihood below that at t1.
type SquaremEM struct{}

func (SquaremEM) Step(par models.MParameterSet, free []string, em emMap) (models.MParameterSet, float64, error) {
	t1, ll0, err := em(par)
	if err != nil {
		return par, 0, err
	}
	t2, ll1, err := em(t1)
	if err != nil {
		return t1, ll0, nil
	}

	v0, v1, v2 := packFree(par, free), packFree(t1, free), packFree(t2, free)
	r := make([]float64, len(v0))
	v := make([]float64, len(v0))
	for i := range v0 {
		r[i] = v1[i] - v0[i]
		v[i] = v2[i] - v1[i] - r[i]
	}
	nr, nv := norm(r), norm(v)
	if nv == 0 || nr == 0 {
		return t2, ll1, nil
	}
	alpha := math.Min(-nr/nv, -1)

	ext := make([]float64, len(v0))
	for i := range v0 {
		ext[i] = v0[i] - 2*alpha*r[i] + alpha*alpha*v[i]
	}
	cand := unpackFree(par, free, ext)
	if !feasible(cand) {
		return t2, ll1, nil
	}

	stab, llc, err := em(cand)
	if err != nil || !feasible(stab) || math.IsNaN(llc) || llc < ll1 {
		return t2, ll1, nil
	}
	return stab, llc, nil
}

// -----------------------------------------------------------------------------

// packFree flattens the free parameters: a_eta, a_mu, var_eta, var_mu, r,
// phi..., x0[0], x0[1], V0[0][0], V0[0][1], V0[1][1].
func packFree(p models.MParameterSet, free []string) []float64 {
	var out []float64
	for _, name := range free {
		switch name {
		case models.ParamAEta:
			out = append(out, p.AEta)
		case models.ParamAMu:
			out = append(out, p.AMu)
		case models.ParamVarEta:
			out = append(out, p.VarEta)
		case models.ParamVarMu:
			out = append(out, p.VarMu)
		case models.ParamR:
			out = append(out, p.R)
		case models.ParamPhi:
			out = append(out, p.Phi...)
		case models.ParamX0:
			out = append(out, p.X0[0], p.X0[1])
		case models.ParamV0:
			out = append(out, p.V0[0][0], p.V0[0][1], p.V0[1][1])
		}
	}
	return out
}

// unpackFree is the inverse of packFree on top of base.
func unpackFree(base models.MParameterSet, free []string, vec []float64) models.MParameterSet {
	p := base.Clone()
	i := 0
	for _, name := range free {
		switch name {
		case models.ParamAEta:
			p.AEta = vec[i]
			i++
		case models.ParamAMu:
			p.AMu = vec[i]
			i++
		case models.ParamVarEta:
			p.VarEta = vec[i]
			i++
		case models.ParamVarMu:
			p.VarMu = vec[i]
			i++
		case models.ParamR:
			p.R = vec[i]
			i++
		case models.ParamPhi:
			copy(p.Phi, vec[i:i+len(p.Phi)])
			i += len(p.Phi)
		case models.ParamX0:
			p.X0 = [2]float64{vec[i], vec[i+1]}
			i += 2
		case models.ParamV0:
			p.V0 = [2][2]float64{{vec[i], vec[i+1]}, {vec[i+1], vec[i+2]}}
			i += 3
		}
	}
	return p
}

// feasible reports whether p satisfies the variance and PSD constraints.
func feasible(p models.MParameterSet) bool {
	for _, name := range models.ParamNames {
		if paramShape(p, name, len(p.Phi)) != "" {
			return false
		}
	}
	return core.Mat2(p.V0).IsPSD(0)
}

func norm(v []float64) float64 {
	ss := 0.0
	for _, x := range v {
		ss += x * x
	}
	return math.Sqrt(ss)
}

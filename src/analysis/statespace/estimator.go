package statespace

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/google/uuid"
)

// Defaults used when the control block leaves a field unset.
const (
	DefaultMaxIt  = 3000
	DefaultAbsTol = 1e-4
)

// Estimator refines the free parameters of a volume model by EM.
type Estimator struct {
	Control models.MFitControl
	// Verbose: 0 silent, 1 final status, 2 per-iteration deltas.
	Verbose     int
	Logger      *logger.Logger
	Accelerator Accelerator
	// Progress, when set, receives one event per iteration and a final DONE event.
	Progress func(models.MFitProgress)
}

// -----------------------------------------------------------------------------

func NewEstimator(control models.MFitControl, verbose int, log *logger.Logger) *Estimator {
	if control.MaxIt <= 0 {
		control.MaxIt = DefaultMaxIt
	}
	if control.AbsTol <= 0 {
		control.AbsTol = DefaultAbsTol
	}
	if log == nil {
		log = logger.NewLogger(nil, "Estimator")
	}
	var acc Accelerator = PlainEM{}
	if control.Acceleration {
		acc = SquaremEM{}
	}
	return &Estimator{
		Control:     control,
		Verbose:     verbose,
		Logger:      log,
		Accelerator: acc,
	}
}

// -----------------------------------------------------------------------------

// FitVolume specifies and fits a model in one call.
func FitVolume(data *models.MVolumeMatrix, fixed, init models.MParameterInput, verbose int, control models.MFitControl, log *logger.Logger) (*models.MFitResult, error) {
	model, warnings := SpecModel(fixed, init)
	res, err := NewEstimator(control, verbose, log).Fit(data, model)
	if res != nil {
		res.Warnings = append(warnings, res.Warnings...)
	}
	return res, err
}

// -----------------------------------------------------------------------------

// Fit estimates every parameter of model not marked converged. The input model
// is not modified; a nil model means nothing is fixed.
func (e *Estimator) Fit(data *models.MVolumeMatrix, model *models.MVolumeModel) (*models.MFitResult, error) {
	return e.FitContext(context.Background(), data, model)
}

// FitContext is Fit with cancellation checked between iterations.
func (e *Estimator) FitContext(ctx context.Context, data *models.MVolumeMatrix, model *models.MVolumeModel) (*models.MFitResult, error) {
	// 1. Clean and transform the data
	cleaned, warnings, err := CleanData(data)
	if err != nil {
		return nil, err
	}
	y, err := LogVolume(cleaned)
	if err != nil {
		return nil, err
	}
	nBin, nDay := cleaned.NBin(), cleaned.NDay()

	// 2. Complete the model with data-driven defaults
	var m *models.MVolumeModel
	if model == nil {
		m, _ = SpecModel(models.MParameterInput{}, models.MParameterInput{})
	} else {
		m = model.Clone()
	}
	if m.Present.Phi && len(m.Par.Phi) != nBin {
		if m.Converged.Phi {
			return nil, helpers.NewConfigurationError("fixed phi has %d entries but data has %d bins", len(m.Par.Phi), nBin)
		}
		warnings = append(warnings, validationWarning(models.ParamPhi,
			fmt.Sprintf("initial value for phi has %d entries but data has %d bins; a data-driven default will be used", len(m.Par.Phi), nBin)))
		m.Present.Phi = false
	}
	initDefaults(m, y, nBin)
	m.NBin = nBin
	if m.Symbol == "" {
		m.Symbol = cleaned.Symbol
	}
	if err := IsValidModel(m, nBin); err != nil {
		return nil, err
	}

	free := freeParams(m)
	res := &models.MFitResult{Model: m, Warnings: warnings}

	// 3. Nothing to estimate
	if len(free) == 0 {
		sys, err := BuildSystem(m.Par, nBin, nDay)
		if err != nil {
			return nil, err
		}
		f, err := Filter(sys, y)
		if err != nil {
			return nil, err
		}
		res.Status = models.FitConverged
		res.LogLikelihood = f.LogLik
		res.Warnings = append(res.Warnings, models.MWarning{
			Kind:    models.ConvergenceWarning,
			Message: "All parameters are fixed; nothing to estimate",
		})
		e.finish(res)
		if e.Verbose >= 1 {
			e.Logger.Info("All parameters are fixed; nothing to estimate")
		}
		return res, nil
	}

	// A single day has no day boundary, so a_eta and var_eta are not
	// identified; they keep their initial values and stay unconverged.
	if nDay < 2 && (containsName(free, models.ParamAEta) || containsName(free, models.ParamVarEta)) {
		var kept []string
		for _, name := range free {
			if name != models.ParamAEta && name != models.ParamVarEta {
				kept = append(kept, name)
			}
		}
		free = kept
		res.Warnings = append(res.Warnings, models.MWarning{
			Kind:    models.ConvergenceWarning,
			Field:   models.ParamAEta + "," + models.ParamVarEta,
			Message: "a single day carries no daily transition; a_eta and var_eta keep their initial values",
		})
	}

	// 4. Iterate
	em := func(par models.MParameterSet) (models.MParameterSet, float64, error) {
		return emStep(par, free, y, nBin, nDay)
	}
	status := models.FitIterating
	deltas := make(map[string]float64, len(free))
	iter := 0
	for iter < e.Control.MaxIt {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++
		next, ll, err := e.Accelerator.Step(m.Par, free, em)
		if err != nil {
			return nil, err
		}

		done := true
		for _, name := range free {
			deltas[name] = paramDelta(m.Par, next, name)
			if !(deltas[name] < e.Control.AbsTol) {
				done = false
			}
		}
		m.Par = next
		res.LogLikelihood = ll

		if e.Verbose >= 2 {
			e.Logger.Info("iteration %d: loglik=%.6f %s", iter, ll, formatDeltas(free, deltas))
		}
		e.publish(models.MFitProgress{
			Type:          "PROGRESS",
			Symbol:        m.Symbol,
			Iteration:     iter,
			LogLikelihood: ll,
			Deltas:        copyDeltas(deltas),
			Status:        models.FitIterating,
		})

		if done {
			status = models.FitConverged
			break
		}
	}
	if status == models.FitIterating {
		status = models.FitExhausted
	}

	// 5. Flags and warnings
	var unconverged []string
	for _, name := range free {
		ok := status == models.FitConverged || deltas[name] < e.Control.AbsTol
		m.Converged.Set(name, ok)
		if !ok {
			unconverged = append(unconverged, name)
		}
	}
	if status == models.FitExhausted {
		res.Warnings = append(res.Warnings, models.MWarning{
			Kind:    models.ConvergenceWarning,
			Field:   strings.Join(unconverged, ","),
			Message: fmt.Sprintf("Reached maxit before parameters converged (maxit = %d); unconverged: %s", e.Control.MaxIt, strings.Join(unconverged, ", ")),
		})
	}

	if sys, err := BuildSystem(m.Par, nBin, nDay); err == nil {
		if f, err := Filter(sys, y); err == nil {
			res.LogLikelihood = f.LogLik
		}
	}
	res.Status = status
	res.Iterations = iter
	res.Estimated = true
	e.finish(res)

	if e.Verbose >= 1 {
		if status == models.FitConverged {
			e.Logger.Info("Converged after %d iteration(s), loglik=%.6f", iter, res.LogLikelihood)
		} else {
			e.Logger.Warning("Reached maxit (%d) before parameters converged: %s", e.Control.MaxIt, strings.Join(unconverged, ", "))
		}
	}
	return res, nil
}

func (e *Estimator) finish(res *models.MFitResult) {
	res.Model.ID = uuid.NewString()
	res.Model.CreatedAt = time.Now().UTC()
	e.publish(models.MFitProgress{
		Type:          "DONE",
		Symbol:        res.Model.Symbol,
		Iteration:     res.Iterations,
		LogLikelihood: res.LogLikelihood,
		Status:        res.Status,
	})
}

func (e *Estimator) publish(p models.MFitProgress) {
	if e.Progress != nil {
		e.Progress(p)
	}
}

// -----------------------------------------------------------------------------

// emStep runs one E-step at par and returns the M-step update of the free
// parameters together with the log-likelihood at par.
func emStep(par models.MParameterSet, free []string, y []float64, nBin, nDay int) (models.MParameterSet, float64, error) {
	sys, err := BuildSystem(par, nBin, nDay)
	if err != nil {
		return par, 0, err
	}
	s, err := Smooth(sys, y)
	if err != nil {
		return par, 0, err
	}

	n := len(y)
	next := par.Clone()
	isFree := func(name string) bool { return containsName(free, name) }

	second := func(k int) core.Mat2 {
		return s.PSmooth[k].Add(s.XSmooth[k].Outer(s.XSmooth[k]))
	}
	cross := func(k int) core.Mat2 {
		return s.PCross[k].Add(s.XSmooth[k].Outer(s.XSmooth[k-1]))
	}

	// Initial state
	if isFree(models.ParamX0) {
		next.X0 = s.XSmooth[0]
	}
	if isFree(models.ParamV0) {
		dev := s.XSmooth[0].Sub(core.Vec2(next.X0))
		next.V0 = s.PSmooth[0].Add(dev.Outer(dev)).Sym()
	}

	// Daily component: transitions out of the last bin of each day
	var sEtaCross, sEtaPrev, sEtaCur float64
	nBoundary := 0
	// Intraday component: every transition
	var sMuCross, sMuPrev, sMuCur float64
	for k := 1; k < n; k++ {
		sk, sPrev, sc := second(k), second(k-1), cross(k)
		sMuCross += sc[1][1]
		sMuPrev += sPrev[1][1]
		sMuCur += sk[1][1]
		if IsDayBoundary(k-1, nBin) {
			sEtaCross += sc[0][0]
			sEtaPrev += sPrev[0][0]
			sEtaCur += sk[0][0]
			nBoundary++
		}
	}

	if nBoundary > 0 {
		if isFree(models.ParamAEta) && sEtaPrev > 0 {
			next.AEta = sEtaCross / sEtaPrev
		}
		if isFree(models.ParamVarEta) {
			a := next.AEta
			v := (sEtaCur + a*a*sEtaPrev - 2*a*sEtaCross) / float64(nBoundary)
			next.VarEta = math.Max(v, 0)
		}
	}
	if n > 1 {
		if isFree(models.ParamAMu) && sMuPrev > 0 {
			next.AMu = sMuCross / sMuPrev
		}
		if isFree(models.ParamVarMu) {
			a := next.AMu
			v := (sMuCur + a*a*sMuPrev - 2*a*sMuCross) / float64(n-1)
			next.VarMu = math.Max(v, 0)
		}
	}

	// Seasonal profile
	if isFree(models.ParamPhi) {
		for i := 0; i < nBin; i++ {
			acc := 0.0
			for t := 0; t < nDay; t++ {
				k := t*nBin + i
				acc += y[k] - s.XSmooth[k].Sum()
			}
			next.Phi[i] = acc / float64(nDay)
		}
	}

	// Observation noise
	if isFree(models.ParamR) {
		acc := 0.0
		for k := 0; k < n; k++ {
			e := y[k] - next.Phi[k%nBin] - s.XSmooth[k].Sum()
			acc += e*e + s.PSmooth[k].Sum()
		}
		next.R = math.Max(acc/float64(n), 0)
	}

	return next, s.LogLik, nil
}

// -----------------------------------------------------------------------------

func freeParams(m *models.MVolumeModel) []string {
	var free []string
	for _, name := range models.ParamNames {
		if !m.Converged.Get(name) {
			free = append(free, name)
		}
	}
	return free
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// paramDelta is the Euclidean (Frobenius for V0) distance of one parameter.
func paramDelta(a, b models.MParameterSet, name string) float64 {
	switch name {
	case models.ParamAEta:
		return math.Abs(a.AEta - b.AEta)
	case models.ParamAMu:
		return math.Abs(a.AMu - b.AMu)
	case models.ParamVarEta:
		return math.Abs(a.VarEta - b.VarEta)
	case models.ParamVarMu:
		return math.Abs(a.VarMu - b.VarMu)
	case models.ParamR:
		return math.Abs(a.R - b.R)
	case models.ParamPhi:
		if len(a.Phi) != len(b.Phi) {
			return math.Inf(1)
		}
		ss := 0.0
		for i := range a.Phi {
			d := a.Phi[i] - b.Phi[i]
			ss += d * d
		}
		return math.Sqrt(ss)
	case models.ParamX0:
		return core.Vec2(a.X0).Sub(core.Vec2(b.X0)).Norm()
	case models.ParamV0:
		return core.Mat2(a.V0).Sub(core.Mat2(b.V0)).Norm()
	}
	return 0
}

func formatDeltas(names []string, deltas map[string]float64) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("d(%s)=%.3g", n, deltas[n])
	}
	return strings.Join(parts, " ")
}

func copyDeltas(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"volume-observer/src/analysis/statespace"
	"volume-observer/src/helpers"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"
	"volume-observer/src/utils"

	"golang.org/x/sync/errgroup"
)

// maxParallelFits bounds FitAll.
const maxParallelFits = 4

type AnalysisFacade struct {
	Config *models.MConfig
	Logger *logger.Logger
	DB     interfaces.IDatabase      // optional
	Push   interfaces.IDataExchanger // optional, receives fit progress

	mu     sync.RWMutex
	latest map[string]*models.MVolumeModel
}

// -----------------------------------------------------------------------------

func NewAnalysisFacade(cfg *models.MConfig, log *logger.Logger, db interfaces.IDatabase, push interfaces.IDataExchanger) *AnalysisFacade {
	return &AnalysisFacade{
		Config: cfg,
		Logger: log,
		DB:     db,
		Push:   push,
		latest: make(map[string]*models.MVolumeModel),
	}
}

// -----------------------------------------------------------------------------

// Fit estimates a model for one symbol and keeps it as the symbol's latest.
func (a *AnalysisFacade) Fit(ctx context.Context, req models.MFitRequest) (*models.MFitResult, error) {
	// 1. Data
	data, err := a.resolveData(req.Symbol, req.Data)
	if err != nil {
		return nil, err
	}

	// 2. Parameter maps and control, request first then configuration
	fixedRaw, initRaw := a.Config.Model.Fixed, a.Config.Model.Init
	if req.Fixed != nil {
		fixedRaw = req.Fixed
	}
	if req.Init != nil {
		initRaw = req.Init
	}
	fixed, wf := statespace.ParseParameterMap(fixedRaw)
	init, wi := statespace.ParseParameterMap(initRaw)
	warnings := append(wf, wi...)

	control := models.MFitControl{
		MaxIt:        a.Config.Estimator.MaxIt,
		AbsTol:       a.Config.Estimator.AbsTol,
		Acceleration: a.Config.Estimator.Acceleration,
	}
	if req.Control != nil {
		control = *req.Control
	}
	verbose := a.Config.Estimator.Verbose
	if req.Verbose != nil {
		verbose = *req.Verbose
	}

	// 3. Calendar check of the day labels
	if a.Config.DataSource.CheckCalendar {
		warnings = append(warnings, CalendarWarnings(data)...)
	}

	// 4. Estimate
	model, specWarnings := statespace.SpecModel(fixed, init)
	warnings = append(warnings, specWarnings...)
	model.Symbol = req.Symbol

	est := statespace.NewEstimator(control, verbose, a.Logger.Named("Estimator["+req.Symbol+"]"))
	if a.Push != nil {
		est.Progress = func(p models.MFitProgress) { a.Push.Broadcast(p) }
	}
	res, err := est.FitContext(ctx, data, model)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	for _, w := range res.Warnings {
		a.Logger.Warning("%s: %s", req.Symbol, w.String())
	}

	// 5. Keep and persist
	a.mu.Lock()
	a.latest[req.Symbol] = res.Model.Clone()
	a.mu.Unlock()

	if a.DB != nil {
		if req.Data != nil {
			if err := a.DB.SaveVolumeMatrix(req.Data); err != nil {
				a.Logger.Error("Failed to save observations for %s: %v", req.Symbol, err)
			}
		}
		if err := a.DB.SaveModel(res.Model); err != nil {
			a.Logger.Error("Failed to save model for %s: %v", req.Symbol, err)
		}
	}

	a.Logger.Info("Fitted %s: status=%s iterations=%d loglik=%.4f", req.Symbol, res.Status, res.Iterations, res.LogLikelihood)
	return res, nil
}

// -----------------------------------------------------------------------------

// FitAll fits every symbol concurrently. The first error cancels the rest.
func (a *AnalysisFacade) FitAll(ctx context.Context, data map[string]*models.MVolumeMatrix) (map[string]*models.MFitResult, error) {
	symbols := make([]string, 0, len(data))
	for sym := range data {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]*models.MFitResult, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFits)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			res, err := a.Fit(gctx, models.MFitRequest{Symbol: sym, Data: data[sym]})
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*models.MFitResult, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Decompose splits a symbol's volumes under its latest model.
func (a *AnalysisFacade) Decompose(req models.MDecomposeRequest) (*models.MDecomposition, error) {
	model, err := a.Model(req.Symbol)
	if err != nil {
		return nil, err
	}
	data, err := a.resolveData(req.Symbol, req.Data)
	if err != nil {
		return nil, err
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = models.PurposeAnalysis
	}
	burnIn := a.Config.Estimator.BurnInDays
	if req.BurnInDays != nil {
		burnIn = *req.BurnInDays
	}

	dec, err := statespace.Decompose(purpose, model, data, burnIn)
	if err != nil {
		return nil, err
	}
	if a.Config.DataSource.CheckCalendar {
		dec.Warnings = append(dec.Warnings, CalendarWarnings(data)...)
	}
	return dec, nil
}

// -----------------------------------------------------------------------------

// Model returns the latest model of a symbol, from memory or storage.
func (a *AnalysisFacade) Model(symbol string) (*models.MVolumeModel, error) {
	a.mu.RLock()
	m, ok := a.latest[symbol]
	a.mu.RUnlock()
	if ok {
		return m.Clone(), nil
	}

	if a.DB != nil {
		m, err := a.DB.LoadModel(symbol)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.latest[symbol] = m.Clone()
		a.mu.Unlock()
		return m, nil
	}
	return nil, helpers.NewEmptyResultError("no model for %s", symbol)
}

// Symbols lists the symbols with a model in memory.
func (a *AnalysisFacade) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.latest))
	for sym := range a.latest {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Forecaster starts an online forecaster after the symbol's stored history.
func (a *AnalysisFacade) Forecaster(symbol string) (*statespace.OnlineForecaster, error) {
	model, err := a.Model(symbol)
	if err != nil {
		return nil, err
	}
	var history *models.MVolumeMatrix
	if a.DB != nil {
		if h, err := a.DB.LoadVolumeMatrix(symbol); err == nil {
			history = h
		}
	}
	return statespace.NewOnlineForecaster(model, history)
}

// ForecastNext runs the online filter over freshly observed bins.
func (a *AnalysisFacade) ForecastNext(req models.MForecastRequest) (*models.MForecast, error) {
	f, err := a.Forecaster(req.Symbol)
	if err != nil {
		return nil, err
	}

	out := &models.MForecast{Symbol: req.Symbol, Forecasts: make([]float64, 0, len(req.Volumes))}
	for i, v := range req.Volumes {
		out.Forecasts = append(out.Forecasts, f.Forecast())
		volume := math.NaN()
		if v != nil {
			volume = *v
		}
		if err := f.Observe(volume); err != nil {
			return nil, fmt.Errorf("volume %d: %w", i, err)
		}
	}
	out.NextBin = f.Bin() + 1
	out.Next = f.Forecast()
	return out, nil
}

// -----------------------------------------------------------------------------

func (a *AnalysisFacade) resolveData(symbol string, data *models.MVolumeMatrix) (*models.MVolumeMatrix, error) {
	if data != nil {
		if data.Symbol == "" {
			cp := *data
			cp.Symbol = symbol
			return &cp, nil
		}
		return data, nil
	}
	if a.DB == nil {
		return nil, helpers.NewInvalidInputError("no data given for %s and no storage configured", symbol)
	}
	return a.DB.LoadVolumeMatrix(symbol)
}

// -----------------------------------------------------------------------------

// CalendarWarnings flags day labels that fall on a weekend or exchange holiday.
func CalendarWarnings(data *models.MVolumeMatrix) []models.MWarning {
	bad := utils.GetCalendar(data.Symbol).NonTradingDays(data.DayLabels)
	if len(bad) == 0 {
		return nil
	}
	return []models.MWarning{{
		Kind:    models.CalendarWarning,
		Field:   strings.Join(bad, ","),
		Message: fmt.Sprintf("day(s) %s are not trading days on the %s calendar", strings.Join(bad, ", "), utils.MICForSymbol(data.Symbol)),
	}}
}

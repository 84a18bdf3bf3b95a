package statespace

import (
	"io"
	"math"
	"math/rand"
	"strconv"

	"volume-observer/src/logger"
	"volume-observer/src/models"
)

func quietLogger() *logger.Logger {
	l := logger.NewLogger(nil, "test")
	l.SetOutput(io.Discard)
	return l
}

// profile26 is a U-shaped intraday log profile for 26 fifteen-minute bins.
func profile26() []float64 {
	phi := make([]float64, 26)
	for i := range phi {
		u := (float64(i) - 12.5) / 12.5
		phi[i] = 0.6*u*u - 0.2
	}
	return phi
}

func trueParams(phi []float64) models.MParameterSet {
	return models.MParameterSet{
		AEta:   0.98,
		AMu:    0.6,
		VarEta: 0.05,
		VarMu:  0.03,
		R:      0.02,
		Phi:    phi,
		X0:     [2]float64{12, 0},
		V0:     [2][2]float64{{0.05, 0}, {0, 0.03}},
	}
}

// simulate draws volumes from the model with a fixed seed.
func simulate(par models.MParameterSet, nDay int, seed int64) *models.MVolumeMatrix {
	nBin := len(par.Phi)
	rng := rand.New(rand.NewSource(seed))

	values := make([][]float64, nBin)
	for i := range values {
		values[i] = make([]float64, nDay)
	}
	days := make([]string, nDay)

	eta := par.X0[0] + math.Sqrt(par.V0[0][0])*rng.NormFloat64()
	mu := par.X0[1] + math.Sqrt(par.V0[1][1])*rng.NormFloat64()
	for t := 0; t < nDay; t++ {
		days[t] = "2024-03-" + strconv.Itoa(t+1)
		for i := 0; i < nBin; i++ {
			y := eta + mu + par.Phi[i] + math.Sqrt(par.R)*rng.NormFloat64()
			values[i][t] = math.Exp(y)

			mu = par.AMu*mu + math.Sqrt(par.VarMu)*rng.NormFloat64()
			if i == nBin-1 {
				eta = par.AEta*eta + math.Sqrt(par.VarEta)*rng.NormFloat64()
			}
		}
	}
	return &models.MVolumeMatrix{Symbol: "TEST", DayLabels: days, Values: values}
}

func fixedAll(par models.MParameterSet) models.MParameterInput {
	return models.MParameterInput{
		AEta:   models.Float(par.AEta),
		AMu:    models.Float(par.AMu),
		VarEta: models.Float(par.VarEta),
		VarMu:  models.Float(par.VarMu),
		R:      models.Float(par.R),
		Phi:    append([]float64(nil), par.Phi...),
		X0:     []float64{par.X0[0], par.X0[1]},
		V0:     [][]float64{{par.V0[0][0], par.V0[0][1]}, {par.V0[1][0], par.V0[1][1]}},
	}
}

// fittedModel returns a fully converged model carrying par.
func fittedModel(par models.MParameterSet) *models.MVolumeModel {
	m, _ := SpecModel(fixedAll(par), models.MParameterInput{})
	m.NBin = len(par.Phi)
	return m
}

package models

// Decomposition purposes.
const (
	PurposeAnalysis = "analysis"
	PurposeForecast = "forecast"
)

// MComponents holds the multiplicative components on the volume scale.
type MComponents struct {
	Daily    []float64 `json:"daily"`
	Seasonal []float64 `json:"seasonal"`
	Dynamic  []float64 `json:"dynamic"`
	Residual []float64 `json:"residual"`
}

// MErrorMetrics compares the reconstructed signal against the original.
type MErrorMetrics struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
}

// MDecomposition is the output of decompose. Exactly one of SmoothSignal
// (analysis) and ForecastSignal (forecast) is populated.
type MDecomposition struct {
	Purpose        string        `json:"purpose"`
	OriginalSignal []float64     `json:"original_signal"`
	SmoothSignal   []float64     `json:"smooth_signal,omitempty"`
	ForecastSignal []float64     `json:"forecast_signal,omitempty"`
	Components     MComponents   `json:"components"`
	Error          MErrorMetrics `json:"error"`
	Warnings       []MWarning    `json:"warnings,omitempty"`
}

// Signal returns whichever reconstructed signal the purpose produced.
func (d *MDecomposition) Signal() []float64 {
	if d.Purpose == PurposeForecast {
		return d.ForecastSignal
	}
	return d.SmoothSignal
}

// MDecomposeRequest asks for a decomposition under the latest model of Symbol.
type MDecomposeRequest struct {
	Symbol     string         `json:"symbol" binding:"required"`
	Purpose    string         `json:"purpose"`
	BurnInDays *int           `json:"burn_in_days,omitempty"`
	Data       *MVolumeMatrix `json:"data,omitempty"`
}

// MForecastRequest feeds newly observed bins, in order, after the stored
// history of Symbol. A null volume is a missing bin.
type MForecastRequest struct {
	Symbol  string     `json:"symbol" binding:"required"`
	Volumes []*float64 `json:"volumes"`
}

// MForecast holds the one-bin-ahead forecast made before each observed bin
// and the forecast of the bin that follows them.
type MForecast struct {
	Symbol    string    `json:"symbol"`
	Forecasts []float64 `json:"forecasts"`
	NextBin   int       `json:"next_bin"` // 1-based bin of Next
	Next      float64   `json:"next"`
}

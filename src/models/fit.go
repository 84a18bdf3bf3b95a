package models

// MFitControl bounds the estimator.
type MFitControl struct {
	MaxIt        int     `json:"maxit"`
	AbsTol       float64 `json:"abstol"`
	Acceleration bool    `json:"acceleration"`
}

// Estimator terminal states.
const (
	FitIterating = "iterating"
	FitConverged = "converged"
	FitExhausted = "exhausted"
)

// MFitResult is what the estimator returns.
type MFitResult struct {
	Model         *MVolumeModel `json:"model"`
	Status        string        `json:"status"`
	Iterations    int           `json:"iterations"`
	LogLikelihood float64       `json:"log_likelihood"`
	Estimated     bool          `json:"estimated"` // false when every parameter was fixed
	Warnings      []MWarning    `json:"warnings,omitempty"`
}

// MFitProgress is published after every estimator iteration.
type MFitProgress struct {
	Type          string             `json:"type"` // "PROGRESS" or "DONE"
	Symbol        string             `json:"symbol"`
	Iteration     int                `json:"iteration"`
	LogLikelihood float64            `json:"log_likelihood"`
	Deltas        map[string]float64 `json:"deltas,omitempty"`
	Status        string             `json:"status"`
}

// MFitRequest asks for a fit of one symbol. Nil fields fall back to the
// service configuration; a nil Data means the stored observations.
type MFitRequest struct {
	Symbol  string                 `json:"symbol" binding:"required"`
	Data    *MVolumeMatrix         `json:"data,omitempty"`
	Fixed   map[string]interface{} `json:"fixed,omitempty"`
	Init    map[string]interface{} `json:"init,omitempty"`
	Control *MFitControl           `json:"control,omitempty"`
	Verbose *int                   `json:"verbose,omitempty"`
}

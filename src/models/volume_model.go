package models

import "time"

// MVolumeModel is a fitted (or partially specified) intraday volume model.
// Present marks which parameters carry a value; Converged marks which are
// fixed or have been estimated to tolerance.
type MVolumeModel struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	NBin      int               `json:"n_bin"`
	Par       MParameterSet     `json:"par"`
	Present   MParamFlags       `json:"present"`
	Converged MConvergenceFlags `json:"converged"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy so fitted models are never shared mutably.
func (m *MVolumeModel) Clone() *MVolumeModel {
	out := *m
	out.Par = m.Par.Clone()
	return &out
}

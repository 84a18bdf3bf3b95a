package models

// Warning kinds.
const (
	ValidationWarning  = "ValidationWarning"
	MissingDataWarning = "MissingDataWarning"
	ConvergenceWarning = "ConvergenceWarning"
	CalendarWarning    = "CalendarWarning"
)

// MWarning is a non-fatal diagnostic returned alongside a result.
type MWarning struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (w MWarning) String() string {
	if w.Field != "" {
		return w.Kind + " [" + w.Field + "]: " + w.Message
	}
	return w.Kind + ": " + w.Message
}

package models

// Recognized parameter names.
const (
	ParamAEta   = "a_eta"
	ParamAMu    = "a_mu"
	ParamVarEta = "var_eta"
	ParamVarMu  = "var_mu"
	ParamR      = "r"
	ParamPhi    = "phi"
	ParamX0     = "x0"
	ParamV0     = "V0"
)

// ParamNames lists the recognized parameters in canonical order.
var ParamNames = []string{ParamAEta, ParamAMu, ParamVarEta, ParamVarMu, ParamR, ParamPhi, ParamX0, ParamV0}

// IsParamName reports whether name is one of the recognized parameters.
func IsParamName(name string) bool {
	for _, n := range ParamNames {
		if n == name {
			return true
		}
	}
	return false
}

// MParameterSet holds the parameters of the two-state model
// (state = [log-daily, log-dynamic]).
type MParameterSet struct {
	AEta   float64       `json:"a_eta" yaml:"a_eta"`
	AMu    float64       `json:"a_mu" yaml:"a_mu"`
	VarEta float64       `json:"var_eta" yaml:"var_eta"`
	VarMu  float64       `json:"var_mu" yaml:"var_mu"`
	R      float64       `json:"r" yaml:"r"`
	Phi    []float64     `json:"phi" yaml:"phi"`
	X0     [2]float64    `json:"x0" yaml:"x0"`
	V0     [2][2]float64 `json:"V0" yaml:"V0"`
}

// Clone returns a deep copy.
func (p MParameterSet) Clone() MParameterSet {
	out := p
	out.Phi = append([]float64(nil), p.Phi...)
	return out
}

// MParamFlags is one boolean per recognized parameter.
type MParamFlags struct {
	AEta   bool `json:"a_eta"`
	AMu    bool `json:"a_mu"`
	VarEta bool `json:"var_eta"`
	VarMu  bool `json:"var_mu"`
	R      bool `json:"r"`
	Phi    bool `json:"phi"`
	X0     bool `json:"x0"`
	V0     bool `json:"V0"`
}

func (f *MParamFlags) ref(name string) *bool {
	switch name {
	case ParamAEta:
		return &f.AEta
	case ParamAMu:
		return &f.AMu
	case ParamVarEta:
		return &f.VarEta
	case ParamVarMu:
		return &f.VarMu
	case ParamR:
		return &f.R
	case ParamPhi:
		return &f.Phi
	case ParamX0:
		return &f.X0
	case ParamV0:
		return &f.V0
	}
	return nil
}

// Get returns the flag for name; unknown names report false.
func (f MParamFlags) Get(name string) bool {
	if b := f.ref(name); b != nil {
		return *b
	}
	return false
}

// Set assigns the flag for name. Unknown names are ignored.
func (f *MParamFlags) Set(name string, v bool) {
	if b := f.ref(name); b != nil {
		*b = v
	}
}

// All reports whether every flag is set.
func (f MParamFlags) All() bool {
	for _, n := range ParamNames {
		if !f.Get(n) {
			return false
		}
	}
	return true
}

// Missing returns the names whose flag is not set, in canonical order.
func (f MParamFlags) Missing() []string {
	var out []string
	for _, n := range ParamNames {
		if !f.Get(n) {
			out = append(out, n)
		}
	}
	return out
}

// MConvergenceFlags marks a parameter as fixed by the user or estimated and converged.
type MConvergenceFlags = MParamFlags

// MParameterInput is a partial assignment over the recognized parameters.
// Nil fields are absent.
type MParameterInput struct {
	AEta   *float64    `json:"a_eta,omitempty"`
	AMu    *float64    `json:"a_mu,omitempty"`
	VarEta *float64    `json:"var_eta,omitempty"`
	VarMu  *float64    `json:"var_mu,omitempty"`
	R      *float64    `json:"r,omitempty"`
	Phi    []float64   `json:"phi,omitempty"`
	X0     []float64   `json:"x0,omitempty"`
	V0     [][]float64 `json:"V0,omitempty"`
}

// Has reports whether name is present in the input.
func (in MParameterInput) Has(name string) bool {
	switch name {
	case ParamAEta:
		return in.AEta != nil
	case ParamAMu:
		return in.AMu != nil
	case ParamVarEta:
		return in.VarEta != nil
	case ParamVarMu:
		return in.VarMu != nil
	case ParamR:
		return in.R != nil
	case ParamPhi:
		return in.Phi != nil
	case ParamX0:
		return in.X0 != nil
	case ParamV0:
		return in.V0 != nil
	}
	return false
}

// Float returns a pointer to v, for building inputs literally.
func Float(v float64) *float64 {
	return &v
}

package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	Estimator  MEstimatorConfig  `yaml:"estimator"`
	Model      MModelConfig      `yaml:"model"`
	DataSource MDataSourceConfig `yaml:"data_source"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MEstimatorConfig struct {
	MaxIt        int     `yaml:"maxit"`
	AbsTol       float64 `yaml:"abstol"`
	Acceleration bool    `yaml:"acceleration"`
	Verbose      int     `yaml:"verbose"`
	BurnInDays   int     `yaml:"burn_in_days"`
	RefitOnClose bool    `yaml:"refit_on_close"` // serve mode: refit once every tracked market has closed
}

// MNetworkConfig bounds outgoing HTTP requests of remote sources.
type MNetworkConfig struct {
	RequestTimeout     int `yaml:"request_timeout"` // seconds
	MaxRetries         int `yaml:"max_retries"`
	ConcurrentRequests int `yaml:"concurrent_requests"`
}

// MModelConfig holds raw fixed/init parameter maps. Keys are checked against
// the recognized parameter names when the maps are parsed.
type MModelConfig struct {
	Fixed map[string]interface{} `yaml:"fixed"`
	Init  map[string]interface{} `yaml:"init"`
}

type MDataSourceConfig struct {
	Format         string   `yaml:"format"` // "csv", "xlsx", "ticks" or "yahoo"
	Path           string   `yaml:"path"`
	Sheet          string   `yaml:"sheet"`
	Symbols        []string `yaml:"symbols,omitempty"`
	BinsPerDay     int      `yaml:"bins_per_day"`
	SessionOpen    string   `yaml:"session_open"` // local "HH:MM", e.g. "09:30"
	SessionMinutes int      `yaml:"session_minutes"`
	CheckCalendar  bool     `yaml:"check_calendar"`
	Range          string   `yaml:"range"`    // yahoo history window, e.g. "60d"
	Interval       string   `yaml:"interval"` // yahoo bar size, e.g. "5m"
}

// LogLevelName returns the configured log level.
func (c *MConfig) LogLevelName() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"volume-observer/src/analysis/statespace"
	"volume-observer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds a validated Config from YAML bytes, filling defaults first.
func Parse(data []byte) (*Config, error) {
	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "volume-observer"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Estimator.MaxIt == 0 {
		c.Estimator.MaxIt = statespace.DefaultMaxIt
	}
	if c.Estimator.AbsTol == 0 {
		c.Estimator.AbsTol = statespace.DefaultAbsTol
	}
	if c.DataSource.Format == "" {
		c.DataSource.Format = "csv"
	}
	if c.DataSource.SessionOpen == "" {
		c.DataSource.SessionOpen = "09:30"
	}
	if c.DataSource.SessionMinutes == 0 {
		c.DataSource.SessionMinutes = 390
	}
	if c.DataSource.BinsPerDay == 0 {
		c.DataSource.BinsPerDay = 26
	}
	if c.DataSource.Format == "yahoo" {
		if c.DataSource.Range == "" {
			c.DataSource.Range = "60d"
		}
		if c.DataSource.Interval == "" {
			c.DataSource.Interval = "5m"
		}
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}
	if c.Network.ConcurrentRequests == 0 {
		c.Network.ConcurrentRequests = 4
	}
}

// yahooIntervals maps the accepted bar sizes to minutes.
var yahooIntervals = map[string]int{"1m": 1, "2m": 2, "5m": 5, "15m": 15, "30m": 30, "60m": 60}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARNING", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535 || c.GrpcPort == c.Port) {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Estimator
	if c.Estimator.MaxIt < 0 {
		return fmt.Errorf("maxit cannot be negative")
	}
	if c.Estimator.AbsTol < 0 {
		return fmt.Errorf("abstol cannot be negative")
	}
	if c.Estimator.Verbose < 0 || c.Estimator.Verbose > 2 {
		return fmt.Errorf("verbose must be 0, 1 or 2, got %d", c.Estimator.Verbose)
	}
	if c.Estimator.BurnInDays < 0 {
		return fmt.Errorf("burn_in_days cannot be negative")
	}

	// Data source
	switch c.DataSource.Format {
	case "csv", "xlsx", "ticks", "yahoo":
	default:
		return fmt.Errorf("unsupported data source format: %s", c.DataSource.Format)
	}
	if _, err := time.Parse("15:04", c.DataSource.SessionOpen); err != nil {
		return fmt.Errorf("invalid session_open %q: %w", c.DataSource.SessionOpen, err)
	}
	if c.DataSource.BinsPerDay <= 0 {
		return fmt.Errorf("bins_per_day must be greater than 0")
	}
	if c.DataSource.SessionMinutes%c.DataSource.BinsPerDay != 0 {
		return fmt.Errorf("session_minutes (%d) must be a multiple of bins_per_day (%d)", c.DataSource.SessionMinutes, c.DataSource.BinsPerDay)
	}
	if c.DataSource.Format == "yahoo" {
		barMinutes, ok := yahooIntervals[c.DataSource.Interval]
		if !ok {
			return fmt.Errorf("unsupported yahoo interval: %s", c.DataSource.Interval)
		}
		if (c.DataSource.SessionMinutes/c.DataSource.BinsPerDay)%barMinutes != 0 {
			return fmt.Errorf("interval %s does not divide the %d minute bins", c.DataSource.Interval, c.DataSource.SessionMinutes/c.DataSource.BinsPerDay)
		}
		if len(c.DataSource.Symbols) == 0 {
			return fmt.Errorf("yahoo source needs at least one symbol")
		}
	}
	if c.Network.RequestTimeout < 0 || c.Network.MaxRetries < 0 || c.Network.ConcurrentRequests < 0 {
		return fmt.Errorf("network settings cannot be negative")
	}
	for i, s := range c.DataSource.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("symbol %d cannot be empty", i)
		}
	}

	// Parameter maps: only the key names are checked here
	for _, block := range []map[string]interface{}{c.Model.Fixed, c.Model.Init} {
		for name := range block {
			if !models.IsParamName(name) {
				return fmt.Errorf("%q not allowed in parameter list", name)
			}
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Parameters parses the fixed and init maps of the model block.
func (c *Config) Parameters() (fixed, init models.MParameterInput, warnings []models.MWarning) {
	fixed, wf := statespace.ParseParameterMap(c.Model.Fixed)
	init, wi := statespace.ParseParameterMap(c.Model.Init)
	return fixed, init, append(wf, wi...)
}

// FitControl returns the estimator bounds.
func (c *Config) FitControl() models.MFitControl {
	return models.MFitControl{
		MaxIt:        c.Estimator.MaxIt,
		AbsTol:       c.Estimator.AbsTol,
		Acceleration: c.Estimator.Acceleration,
	}
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

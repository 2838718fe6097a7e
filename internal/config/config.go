package config

import (
	"os"
	"strconv"

	"nh3flux/internal/errors"
)

// Config represents the complete run configuration
type Config struct {
	Input    InputConfig
	Output   OutputConfig
	Sampling SamplingConfig
	Model    ModelConfig
	Debug    bool
}

// InputConfig holds dataset source settings
type InputConfig struct {
	Path    string // CSV or XLSX file
	Format  string // "csv" or "xlsx"; inferred from Path when empty
	Columns ColumnMap
}

// ColumnMap maps the logical fields onto the source columns
type ColumnMap struct {
	Timestamp   string
	DayIndex    string
	HourOfDay   string
	Temperature string
	WindSpeed   string
	RainEvent   string
	PostEvent   string
	NH3         string
	TimeFormat  string // layout for parsing the timestamp column
}

// OutputConfig holds artifact destinations
type OutputConfig struct {
	Dir        string // charts, report, sqlite store
	StoreFile  string // sqlite file name inside Dir
	ChartFile  string
	ReportFile string
}

// SamplingConfig holds stratified sampling settings
type SamplingConfig struct {
	Fraction float64 // in (0,1]
	Seed     int64
}

// ModelConfig holds GAMM hyperparameters
type ModelConfig struct {
	CyclicBasisDim int // basis dimension of the cyclic hour-of-day smooth
	SmoothBasisDim int // basis dimension of the wind/temperature/day smooths
	ARMAP          int
	ARMAQ          int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Input: InputConfig{
			Path:   getEnvOrDefault("NH3_INPUT", ""),
			Format: getEnvOrDefault("NH3_INPUT_FORMAT", ""),
			Columns: ColumnMap{
				Timestamp:   getEnvOrDefault("NH3_COL_TIMESTAMP", "timestamp"),
				DayIndex:    getEnvOrDefault("NH3_COL_DAY", "day"),
				HourOfDay:   getEnvOrDefault("NH3_COL_HOUR", "hour"),
				Temperature: getEnvOrDefault("NH3_COL_TEMP", "temperature"),
				WindSpeed:   getEnvOrDefault("NH3_COL_WIND", "wind_speed"),
				RainEvent:   getEnvOrDefault("NH3_COL_EVENT", "rain_event"),
				PostEvent:   getEnvOrDefault("NH3_COL_POST", "post_event"),
				NH3:         getEnvOrDefault("NH3_COL_NH3", "nh3"),
				TimeFormat:  getEnvOrDefault("NH3_TIME_FORMAT", "2006-01-02 15:04:05"),
			},
		},
		Output: OutputConfig{
			Dir:        getEnvOrDefault("NH3_OUTPUT_DIR", "out"),
			StoreFile:  getEnvOrDefault("NH3_STORE_FILE", "nh3flux.db"),
			ChartFile:  getEnvOrDefault("NH3_CHART_FILE", "trend.html"),
			ReportFile: getEnvOrDefault("NH3_REPORT_FILE", "report.html"),
		},
		Sampling: SamplingConfig{
			Fraction: getEnvFloatOrDefault("NH3_SAMPLE_FRACTION", 0.8),
			Seed:     getEnvInt64OrDefault("NH3_SEED", 42),
		},
		Model: ModelConfig{
			CyclicBasisDim: getEnvIntOrDefault("NH3_CYCLIC_DIM", 10),
			SmoothBasisDim: getEnvIntOrDefault("NH3_SMOOTH_DIM", 10),
			ARMAP:          getEnvIntOrDefault("NH3_ARMA_P", 2),
			ARMAQ:          getEnvIntOrDefault("NH3_ARMA_Q", 1),
		},
		Debug: getEnvBoolOrDefault("NH3_DEBUG", false),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Sampling.Fraction <= 0 || config.Sampling.Fraction > 1 {
		return errors.ConfigInvalid("sampling fraction must be in (0, 1]")
	}
	if config.Model.CyclicBasisDim < 4 {
		return errors.ConfigInvalid("cyclic basis dimension must be at least 4")
	}
	if config.Model.SmoothBasisDim < 4 {
		return errors.ConfigInvalid("smooth basis dimension must be at least 4")
	}
	if config.Model.ARMAP < 0 || config.Model.ARMAQ < 0 {
		return errors.ConfigInvalid("ARMA orders must be non-negative")
	}
	if config.Input.Format != "" && config.Input.Format != "csv" && config.Input.Format != "xlsx" {
		return errors.ConfigInvalid("input format must be csv or xlsx")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

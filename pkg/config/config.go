// Package config loads and validates the forecast pipeline's YAML
// configuration. Every subsystem gets an explicit typed struct; unknown keys
// are rejected at load time so downstream numeric code never discovers a
// half-populated configuration lazily.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Quantity names used as map keys throughout the pipeline.
const (
	AirTemperature   = "air_temperature"
	RelativeHumidity = "relative_humidity"
	CloudFraction    = "cloud_fraction"
	Wind             = "wind"
)

// MeteoQuantities lists the hourly meteorological quantities, in forcing file
// generation order.
var MeteoQuantities = []string{AirTemperature, RelativeHumidity, CloudFraction}

// Config is the top-level configuration object.
type Config struct {
	GetForcingData  bool           `yaml:"get_forcing_data"`
	RunSim          bool           `yaml:"run_sim"`
	RunStartDate    Date           `yaml:"run_start_date"`
	TimestepSeconds int            `yaml:"timestep_seconds"`
	DataDateFile    string         `yaml:"data_date_file"`
	Sim             SimConfig      `yaml:"sim"`
	Climate         ClimateConfig  `yaml:"climate"`
	Rivers          RiversConfig   `yaml:"rivers"`
	Ensemble        EnsembleConfig `yaml:"ensemble"`
	Logging         LoggingConfig  `yaml:"logging"`
	Report          ReportConfig   `yaml:"report"`
}

// SimConfig describes the external simulation program and its output files.
type SimConfig struct {
	Executable string        `yaml:"executable"`
	BaseInfile string        `yaml:"base_infile"`
	Results    ResultsConfig `yaml:"results"`
}

// ResultsConfig names the simulation output files and the result-file columns
// the bloom calculation reads.
type ResultsConfig struct {
	BioTimeseries  string `yaml:"bio_timeseries"`
	PhysTimeseries string `yaml:"phys_timeseries"`
	Hoffmueller    string `yaml:"hoffmueller"`
	NitrateField   string `yaml:"nitrate_field"`
	DiatomField    string `yaml:"diatom_field"`
}

// ClimateConfig holds the climate data web service settings shared by the
// meteorological and wind processors.
type ClimateConfig struct {
	URL    string            `yaml:"url"`
	Params map[string]string `yaml:"params"`
	Meteo  MeteoConfig       `yaml:"meteo"`
	Wind   WindConfig        `yaml:"wind"`
}

// MeteoConfig holds settings for the hourly meteorological quantities.
type MeteoConfig struct {
	StationID            string            `yaml:"station_id"`
	CloudFractionMapping string            `yaml:"cloud_fraction_mapping"`
	OutputFiles          map[string]string `yaml:"output_files"`
}

// WindConfig holds settings for the hourly wind quantity.
type WindConfig struct {
	StationID  string `yaml:"station_id"`
	OutputFile string `yaml:"output_file"`
}

// RiversConfig holds the river-gauge web service settings.
type RiversConfig struct {
	DataURL string            `yaml:"data_url"`
	Params  map[string]string `yaml:"params"`
	Rivers  []RiverConfig     `yaml:"gauges"`
}

// RiverConfig describes one river gauge. ScaleFactor multiplies raw readings
// before daily averaging; it substitutes a correlated gauge for a
// discontinued one and defaults to 1.
type RiverConfig struct {
	Name        string  `yaml:"name"`
	StationID   string  `yaml:"station_id"`
	ScaleFactor float64 `yaml:"scale_factor"`
	OutputFile  string  `yaml:"output_file"`
}

// EnsembleConfig holds the ensemble forecast settings.
type EnsembleConfig struct {
	StartYear            int               `yaml:"start_year"`
	EndYear              int               `yaml:"end_year"`
	MaxConcurrentJobs    int               `yaml:"max_concurrent_jobs"`
	PollIntervalSeconds  int               `yaml:"poll_interval_seconds"`
	BaseInfile           string            `yaml:"base_infile"`
	ForcingDataFileRoots map[string]string `yaml:"forcing_data_file_roots"`
}

// LoggingConfig holds the log sink settings.
type LoggingConfig struct {
	Debug            bool        `yaml:"debug"`
	LogFilename      string      `yaml:"log_filename"`
	LogMaxSizeMB     int         `yaml:"log_max_size_mb"`
	BloomDateLogFile string      `yaml:"bloom_date_log_filename"`
	Email            EmailConfig `yaml:"email"`
}

// EmailConfig holds the operator notification settings. Warnings and errors
// are duplicated to these addresses; an empty Host disables the sink.
type EmailConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
	Subject string   `yaml:"subject"`
}

// ReportConfig holds the HTML results page settings. An empty Path disables
// rendering.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// Date is a calendar date in YAML ("YYYY-MM-DD").
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

// ParseDate parses a "YYYY-MM-DD" date string as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD date, got: %s", raw)
	}
	return parsed, nil
}

// Load reads, parses, and validates the configuration file.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RunStartDate.IsZero() {
		return fmt.Errorf("run_start_date is required")
	}
	if c.TimestepSeconds <= 0 || 86400%c.TimestepSeconds != 0 {
		return fmt.Errorf(
			"timestep_seconds must be a positive divisor of 86400, got %d",
			c.TimestepSeconds)
	}
	if c.GetForcingData {
		if c.Climate.URL == "" {
			return fmt.Errorf("climate.url is required")
		}
		if c.Climate.Meteo.StationID == "" {
			return fmt.Errorf("climate.meteo.station_id is required")
		}
		if c.Climate.Meteo.CloudFractionMapping == "" {
			return fmt.Errorf("climate.meteo.cloud_fraction_mapping is required")
		}
		for _, qty := range MeteoQuantities {
			if c.Climate.Meteo.OutputFiles[qty] == "" {
				return fmt.Errorf("climate.meteo.output_files.%s is required", qty)
			}
		}
		if c.Climate.Wind.StationID == "" {
			return fmt.Errorf("climate.wind.station_id is required")
		}
		if c.Climate.Wind.OutputFile == "" {
			return fmt.Errorf("climate.wind.output_file is required")
		}
		if c.Rivers.DataURL == "" {
			return fmt.Errorf("rivers.data_url is required")
		}
		if len(c.Rivers.Rivers) == 0 {
			return fmt.Errorf("at least one rivers.gauges entry is required")
		}
		for i, river := range c.Rivers.Rivers {
			if river.Name == "" || river.StationID == "" || river.OutputFile == "" {
				return fmt.Errorf(
					"rivers.gauges[%d]: name, station_id and output_file are required", i)
			}
		}
	}
	if c.RunSim {
		if c.Sim.Executable == "" {
			return fmt.Errorf("sim.executable is required")
		}
		if c.Sim.BaseInfile == "" {
			return fmt.Errorf("sim.base_infile is required")
		}
	}
	if c.Sim.Results.BioTimeseries == "" {
		return fmt.Errorf("sim.results.bio_timeseries is required")
	}
	if c.Logging.BloomDateLogFile == "" {
		return fmt.Errorf("logging.bloom_date_log_filename is required")
	}
	if c.Ensemble.StartYear != 0 && c.Ensemble.EndYear < c.Ensemble.StartYear {
		return fmt.Errorf(
			"ensemble.end_year %d precedes start_year %d",
			c.Ensemble.EndYear, c.Ensemble.StartYear)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDateFile == "" {
		c.DataDateFile = "wind_data_date"
	}
	if c.Sim.Results.NitrateField == "" {
		c.Sim.Results.NitrateField = "3 m avg nitrate concentration"
	}
	if c.Sim.Results.DiatomField == "" {
		c.Sim.Results.DiatomField = "3 m avg micro phytoplankton biomass"
	}
	if c.Logging.LogMaxSizeMB == 0 {
		c.Logging.LogMaxSizeMB = 1
	}
	if c.Ensemble.MaxConcurrentJobs == 0 {
		c.Ensemble.MaxConcurrentJobs = 1
	}
	if c.Ensemble.PollIntervalSeconds == 0 {
		c.Ensemble.PollIntervalSeconds = 30
	}
	if c.Logging.Email.Subject == "" {
		c.Logging.Email.Subject = "Warning Message from bloomcast"
	}
	for i := range c.Rivers.Rivers {
		if c.Rivers.Rivers[i].ScaleFactor == 0 {
			c.Rivers.Rivers[i].ScaleFactor = 1
		}
	}
}

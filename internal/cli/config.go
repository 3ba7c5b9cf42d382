// Package cli provides command-line interface configuration and flag parsing functionality.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/report"
)

// Geolocation backends
const (
	BackendIPInfo  = "ipinfo"
	BackendMaxMind = "maxmind"
)

// Config holds all configuration options for the application.
type Config struct {
	CatalogDir        string           `yaml:"catalog"`
	Output            string           `yaml:"output"`
	DecimalComma      bool             `yaml:"decimal_comma"`
	SQLitePath        string           `yaml:"sqlite"`
	MetricsFile       string           `yaml:"metrics_file"`
	Timeout           int              `yaml:"timeout"`
	Count             int              `yaml:"count"`
	Workers           int              `yaml:"workers"`
	GeoWorkers        int              `yaml:"geo_workers"`
	GeoBackend        string           `yaml:"geo_backend"`
	IPInfoToken       string           `yaml:"ipinfo_token"`
	IPInfoURL         string           `yaml:"ipinfo_url"`
	MaxMindDB         string           `yaml:"maxmind_db"`
	MedianLowerMiddle bool             `yaml:"median_lower_middle"`
	LogLevel          logging.LogLevel `yaml:"-"`
	LogFile           string           `yaml:"log_file"`
}

// fileConfig is the YAML representation of Config
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is specified
func Default() Config {
	return Config{
		CatalogDir: ".",
		Output:     report.DefaultTSVPath,
		Timeout:    500,
		Count:      10,
		Workers:    25,
		GeoWorkers: 4,
		GeoBackend: BackendIPInfo,
		LogLevel:   logging.LogLevelInfo,
	}
}

// Flags returns the command-line flags of the application
func Flags() []cli.Flag {
	def := Default()
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML config file; flags given on the command line take precedence",
		},
		cli.StringFlag{
			Name:  "catalog,c",
			Value: def.CatalogDir,
			Usage: "directory with one <country-code>.json server list per country",
		},
		cli.StringFlag{
			Name:  "output,o",
			Value: def.Output,
			Usage: "tab-separated report file",
		},
		cli.BoolFlag{
			Name:  "decimal-comma",
			Usage: "use ',' as the decimal separator in the report file",
		},
		cli.StringFlag{
			Name:  "sqlite",
			Usage: "also store the report in this SQLite database",
		},
		cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write Prometheus metrics of the run to this file (textfile collector format)",
		},
		cli.IntFlag{
			Name:  "timeout,t",
			Value: def.Timeout,
			Usage: "ping timeout and RTT ceiling in milliseconds (range: 100-5000)",
		},
		cli.IntFlag{
			Name:  "count,n",
			Value: def.Count,
			Usage: "maximum number of pings per server (range: 1-100)",
		},
		cli.IntFlag{
			Name:  "workers,w",
			Value: def.Workers,
			Usage: "number of concurrent ping workers per country (range: 1-200)",
		},
		cli.IntFlag{
			Name:  "geo-workers",
			Value: def.GeoWorkers,
			Usage: "number of concurrent geolocation lookups (range: 1-200)",
		},
		cli.StringFlag{
			Name:  "geo-backend",
			Value: def.GeoBackend,
			Usage: "geolocation backend [ipinfo, maxmind]",
		},
		cli.StringFlag{
			Name:   "ipinfo-token",
			Usage:  "ipinfo.io access token",
			EnvVar: "IPINFO_TOKEN",
		},
		cli.StringFlag{
			Name:   "ipinfo-url",
			Usage:  "ipinfo.io API base URL",
			Hidden: true,
		},
		cli.StringFlag{
			Name:  "maxmind-db",
			Usage: "GeoLite2/GeoIP2 City or Country database for the maxmind backend",
		},
		cli.BoolFlag{
			Name:  "median-lower-middle",
			Usage: "use the lower of the two central values as the median of even-sized samples",
		},
		cli.StringFlag{
			Name:  "log-level,l",
			Value: def.LogLevel.String(),
			Usage: "set the logging level [debug, info, warning, error]",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "also write JSON logs to this file (rotated)",
		},
	}
}

// Load overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current value.
func Load(path string, cfg *Config) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.LogLevel != "" {
		level, err := logging.ParseLogLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		fc.Config.LogLevel = level
	}

	*cfg = fc.Config
	return nil
}

// FromContext builds the configuration from defaults, the optional config
// file and the flags explicitly set on the command line, in that order of
// increasing precedence, and validates it.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Default()

	if path := c.String("config"); path != "" {
		if err := Load(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	setString(c, "catalog", &cfg.CatalogDir)
	setString(c, "output", &cfg.Output)
	setBool(c, "decimal-comma", &cfg.DecimalComma)
	setString(c, "sqlite", &cfg.SQLitePath)
	setString(c, "metrics-file", &cfg.MetricsFile)
	setInt(c, "timeout", &cfg.Timeout)
	setInt(c, "count", &cfg.Count)
	setInt(c, "workers", &cfg.Workers)
	setInt(c, "geo-workers", &cfg.GeoWorkers)
	setString(c, "geo-backend", &cfg.GeoBackend)
	// IsSet also reports an empty IPINFO_TOKEN
	if token := c.String("ipinfo-token"); token != "" {
		cfg.IPInfoToken = token
	}
	setString(c, "ipinfo-url", &cfg.IPInfoURL)
	setString(c, "maxmind-db", &cfg.MaxMindDB)
	setBool(c, "median-lower-middle", &cfg.MedianLowerMiddle)
	setString(c, "log-file", &cfg.LogFile)

	if c.IsSet("log-level") {
		level, err := logging.ParseLogLevel(c.String("log-level"))
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and backend settings
func (c Config) Validate() error {
	if c.CatalogDir == "" {
		return fmt.Errorf("catalog directory must not be empty")
	}
	if c.Output == "" {
		return fmt.Errorf("output file must not be empty")
	}
	if c.Timeout < 100 || c.Timeout > 5000 {
		return fmt.Errorf("timeout must be between 100 and 5000")
	}
	if c.Count < 1 || c.Count > 100 {
		return fmt.Errorf("count must be between 1 and 100")
	}
	if c.Workers < 1 || c.Workers > 200 {
		return fmt.Errorf("workers must be between 1 and 200")
	}
	if c.GeoWorkers < 1 || c.GeoWorkers > 200 {
		return fmt.Errorf("geo-workers must be between 1 and 200")
	}

	switch strings.ToLower(c.GeoBackend) {
	case BackendIPInfo:
	case BackendMaxMind:
		if c.MaxMindDB == "" {
			return fmt.Errorf("maxmind backend requires --maxmind-db")
		}
	default:
		return fmt.Errorf("invalid geo backend: %s (must be one of: %s, %s)", c.GeoBackend, BackendIPInfo, BackendMaxMind)
	}
	return nil
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/isotope"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Constants       Constants          `yaml:"constants"`
	Anchors         map[string]float64 `yaml:"anchors"`
	WorkingGas      WorkingGas         `yaml:"working_gas"`
	Standardization Standardization    `yaml:"standardization"`
	Input           Input              `yaml:"input"`
	Output          Output             `yaml:"output"`
	Metrics         Metrics            `yaml:"metrics"`
	Logging         Logging            `yaml:"logging"`
}

type Constants struct {
	R13VPDB      float64 `yaml:"r13_vpdb"`
	R18VSMOW     float64 `yaml:"r18_vsmow"`
	R17VSMOW     float64 `yaml:"r17_vsmow"`
	Lambda17     float64 `yaml:"lambda_17"`
	Alpha18OAcid float64 `yaml:"alpha_18o_acid"`
}

type WorkingGas struct {
	Mode     string  `yaml:"mode"`
	Sample   string  `yaml:"sample"`
	D13CVPDB float64 `yaml:"d13c_vpdb"`
	D18OVPDB float64 `yaml:"d18o_vpdb"`
}

type Standardization struct {
	Method           string                       `yaml:"method"`
	LeveneReference  string                       `yaml:"levene_reference"`
	WeightedSessions [][]string                   `yaml:"weighted_sessions"`
	Drift            map[string]standardize.Drift `yaml:"drift"`
}

type Input struct {
	Separator string `yaml:"separator"`
}

type Output struct {
	DataDir      string `yaml:"data_dir"`
	ReportFormat string `yaml:"report_format"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for d47crunch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "d47crunch")
}

// DataDir returns the XDG data directory for d47crunch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "d47crunch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/d47crunch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'd47crunch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	c := isotope.Default()
	wg := dataset.DefaultWorkingGasOptions()
	cfg := &Config{
		Constants: Constants{
			R13VPDB:      c.R13VPDB,
			R18VSMOW:     c.R18VSMOW,
			R17VSMOW:     c.R17VSMOW,
			Lambda17:     c.Lambda17,
			Alpha18OAcid: c.Alpha18OAcid,
		},
		WorkingGas: WorkingGas{
			Mode:     string(wg.Mode),
			Sample:   wg.Sample,
			D13CVPDB: wg.D13CVPDB,
			D18OVPDB: wg.D18OVPDB,
		},
		Standardization: Standardization{
			Method:          string(standardize.Joint),
			LeveneReference: standardize.DefaultLeveneReference,
		},
		Output:  Output{ReportFormat: "md"},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Anchors) == 0 {
		cfg.Anchors = isotope.DefaultAnchors()
	}

	return cfg, nil
}

// IsotopeConstants builds the immutable constants of a run.
func (c *Config) IsotopeConstants() isotope.Constants {
	k := isotope.Default()
	k.R13VPDB = c.Constants.R13VPDB
	k.R18VSMOW = c.Constants.R18VSMOW
	k.R17VSMOW = c.Constants.R17VSMOW
	k.Lambda17 = c.Constants.Lambda17
	k.Alpha18OAcid = c.Constants.Alpha18OAcid
	return k.WithAnchors(c.Anchors)
}

// WorkingGasOptions returns the working gas settings.
func (c *Config) WorkingGasOptions() dataset.WorkingGasOptions {
	return dataset.WorkingGasOptions{
		Mode:     dataset.WorkingGasMode(c.WorkingGas.Mode),
		Sample:   c.WorkingGas.Sample,
		D13CVPDB: c.WorkingGas.D13CVPDB,
		D18OVPDB: c.WorkingGas.D18OVPDB,
	}
}

// StandardizeOptions returns the normalization settings.
func (c *Config) StandardizeOptions() standardize.Options {
	opts := standardize.DefaultOptions()
	opts.Method = standardize.Method(c.Standardization.Method)
	opts.LeveneReference = c.Standardization.LeveneReference
	opts.WeightedSessions = c.Standardization.WeightedSessions
	opts.Drift = c.Standardization.Drift
	return opts
}

// Separator returns the configured field separator, 0 meaning auto-detect.
func (c *Config) Separator() rune {
	switch strings.ToLower(c.Input.Separator) {
	case "", "auto":
		return 0
	case "tab", `\t`, "\t":
		return '\t'
	}
	return []rune(c.Input.Separator)[0]
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

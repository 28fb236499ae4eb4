package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/unfold"
)

// Defaults used when a field is left unset.
const (
	DefaultSeed          uint64 = 1
	DefaultMaxTruncation        = 5
	DefaultDBPath               = "smearceptance.db"
	DefaultLogLevel             = "ops"
	DefaultVariable             = "Momentum"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RunConfig holds the settings of a smearcept run. Nil fields fall back to
// the defaults returned by the Get* methods, so partial files are safe.
type RunConfig struct {
	// Component configuration
	Smearcepters *string  `json:"smearcepters,omitempty" yaml:"smearcepters,omitempty"` // path to the component config
	Smearcepter  *string  `json:"smearcepter,omitempty" yaml:"smearcepter,omitempty"`   // name of the component to run
	Plugins      []string `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Seed         *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Unfolding params
	Toys          *int    `json:"toys,omitempty" yaml:"toys,omitempty"`
	MaxTruncation *int    `json:"max_truncation,omitempty" yaml:"max_truncation,omitempty"`
	ThrowMode     *string `json:"throw_mode,omitempty" yaml:"throw_mode,omitempty"` // "gaussian" or "poisson"
	NoNegative    *bool   `json:"no_negative,omitempty" yaml:"no_negative,omitempty"`

	// Response binning
	Response *ResponseConfig `json:"response,omitempty" yaml:"response,omitempty"`

	DBPath   *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	LogLevel *string `json:"log_level,omitempty" yaml:"log_level,omitempty"` // quiet, ops, diag or trace
}

// ResponseConfig selects the variable and binning of a migration matrix.
type ResponseConfig struct {
	Variable *string   `json:"variable,omitempty" yaml:"variable,omitempty"`
	PDG      *int      `json:"pdg,omitempty" yaml:"pdg,omitempty"` // 0 selects the leading track
	Bins     []float64 `json:"bins,omitempty" yaml:"bins,omitempty"`
}

// envOverrides lists the settings that may be overridden from the
// environment.
type envOverrides struct {
	Seed          *uint64 `env:"SMEAR_SEED"`
	Toys          *int    `env:"SMEAR_TOYS"`
	MaxTruncation *int    `env:"SMEAR_MAX_TRUNCATION"`
	DBPath        *string `env:"SMEAR_DB"`
	LogLevel      *string `env:"SMEAR_LOG_LEVEL"`
}

// EmptyRunConfig returns a RunConfig with all fields unset.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a .json, .yaml or .yml file under
// 1MB, applies environment overrides and validates the result.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRunConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overwrites fields with any SMEAR_* environment variables that are
// set.
func (c *RunConfig) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Seed != nil {
		c.Seed = o.Seed
	}
	if o.Toys != nil {
		c.Toys = o.Toys
	}
	if o.MaxTruncation != nil {
		c.MaxTruncation = o.MaxTruncation
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.LogLevel != nil {
		c.LogLevel = o.LogLevel
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Toys != nil && *c.Toys < 2 {
		return fmt.Errorf("toys must be at least 2, got %d", *c.Toys)
	}
	if c.MaxTruncation != nil && *c.MaxTruncation < 0 {
		return fmt.Errorf("max_truncation must be non-negative, got %d", *c.MaxTruncation)
	}
	if c.ThrowMode != nil {
		if _, err := unfold.ParseThrowMode(*c.ThrowMode); err != nil {
			return err
		}
	}
	if c.LogLevel != nil {
		if _, err := ParseLogLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	if r := c.Response; r != nil {
		if r.Variable != nil {
			if _, err := particle.ParseKinVar(*r.Variable); err != nil {
				return fmt.Errorf("response: %w", err)
			}
		}
		if len(r.Bins) == 1 {
			return fmt.Errorf("response: bins need at least two edges")
		}
		for i := 1; i < len(r.Bins); i++ {
			if r.Bins[i] <= r.Bins[i-1] {
				return fmt.Errorf("response: bin edges must increase, got %g after %g", r.Bins[i], r.Bins[i-1])
			}
		}
	}
	return nil
}

// GetSeed returns the run seed or the default.
func (c *RunConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return DefaultSeed
	}
	return *c.Seed
}

// GetToys returns the number of toys or the default.
func (c *RunConfig) GetToys() int {
	if c.Toys == nil {
		return unfold.DefaultToys
	}
	return *c.Toys
}

// GetMaxTruncation returns the truncation cap or the default.
func (c *RunConfig) GetMaxTruncation() int {
	if c.MaxTruncation == nil {
		return DefaultMaxTruncation
	}
	return *c.MaxTruncation
}

// GetThrowMode returns the toy throw mode, Gaussian unless set.
func (c *RunConfig) GetThrowMode() unfold.ThrowMode {
	if c.ThrowMode == nil {
		return unfold.ThrowGaussian
	}
	m, err := unfold.ParseThrowMode(*c.ThrowMode)
	if err != nil {
		return unfold.ThrowGaussian
	}
	return m
}

// GetNoNegative returns the no_negative value or the default.
func (c *RunConfig) GetNoNegative() bool {
	if c.NoNegative == nil {
		return false
	}
	return *c.NoNegative
}

// GetDBPath returns the response database path or the default.
func (c *RunConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetLogLevel returns the parsed log level, LogOps on unset or bad input.
func (c *RunConfig) GetLogLevel() LogLevel {
	if c.LogLevel == nil {
		return LogOps
	}
	l, err := ParseLogLevel(*c.LogLevel)
	if err != nil {
		return LogOps
	}
	return l
}

// GetSmearcepters returns the component config path, empty when unset.
func (c *RunConfig) GetSmearcepters() string {
	if c.Smearcepters == nil {
		return ""
	}
	return *c.Smearcepters
}

// GetSmearcepter returns the component name, empty when unset.
func (c *RunConfig) GetSmearcepter() string {
	if c.Smearcepter == nil {
		return ""
	}
	return *c.Smearcepter
}

// GetVariable returns the response variable or Momentum.
func (c *RunConfig) GetVariable() particle.KinVar {
	name := DefaultVariable
	if c.Response != nil && c.Response.Variable != nil {
		name = *c.Response.Variable
	}
	k, err := particle.ParseKinVar(name)
	if err != nil {
		return particle.KinMomentum
	}
	return k
}

// GetResponsePDG returns the PDG code selected for the response, 0 when
// unset.
func (c *RunConfig) GetResponsePDG() int {
	if c.Response == nil || c.Response.PDG == nil {
		return 0
	}
	return *c.Response.PDG
}

// GetBins returns the response bin edges, ten 100 MeV bins from zero when
// unset.
func (c *RunConfig) GetBins() []float64 {
	if c.Response != nil && len(c.Response.Bins) > 1 {
		return c.Response.Bins
	}
	edges := make([]float64, 11)
	for i := range edges {
		edges[i] = float64(i) * 100
	}
	return edges
}

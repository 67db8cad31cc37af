package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/optim"
	"github.com/san-kum/pitchsim/internal/physics"
)

const (
	DefaultTrials       = 500
	DefaultPerturbation = 0.15
	DefaultSweepPoints  = 11
	DefaultKMin         = 2.0e6
	DefaultKMax         = 3.0e6
	DefaultCMin         = 1.8e5
	DefaultCMax         = 3.0e5
)

type Config struct {
	Params    physics.Params  `yaml:"params"`
	InitState InitStateConfig `yaml:"init_state"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Workers   int             `yaml:"workers"`
}

// InitStateConfig is the initial state in radians.
type InitStateConfig struct {
	Theta float64 `yaml:"theta"`
	Q     float64 `yaml:"q"`
	EInt  float64 `yaml:"e_int"`
}

type CampaignConfig struct {
	Trials       int                    `yaml:"trials"`
	Perturbation float64                `yaml:"perturbation"`
	Seed         int64                  `yaml:"seed"`
	Requirement  experiment.Requirement `yaml:"requirement"`
}

type SweepConfig struct {
	KMin    float64 `yaml:"k_min"`
	KMax    float64 `yaml:"k_max"`
	KPoints int     `yaml:"k_points"`
	CMin    float64 `yaml:"c_min"`
	CMax    float64 `yaml:"c_max"`
	CPoints int     `yaml:"c_points"`
}

func DefaultConfig() *Config {
	return &Config{
		Params: physics.DefaultParams(),
		Campaign: CampaignConfig{
			Trials:       DefaultTrials,
			Perturbation: DefaultPerturbation,
			Requirement:  experiment.DefaultRequirement(),
		},
		Sweep: SweepConfig{
			KMin:    DefaultKMin,
			KMax:    DefaultKMax,
			KPoints: DefaultSweepPoints,
			CMin:    DefaultCMin,
			CMax:    DefaultCMax,
			CPoints: DefaultSweepPoints,
		},
	}
}

// Load reads a YAML file over the defaults, so omitted keys keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.Merge(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overwrites c with the keys present in the YAML file at path.
func (c *Config) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("config: params: %w", err)
	}
	if !c.InitialState().IsValid() {
		return fmt.Errorf("config: init_state: %w", dynamo.ErrInvalidState)
	}
	if c.Campaign.Trials <= 0 {
		return fmt.Errorf("config: campaign: %w", dynamo.Invalid("trials must be positive, got %d", c.Campaign.Trials))
	}
	if f := c.Campaign.Perturbation; !(f >= 0 && f < 1) {
		return fmt.Errorf("config: campaign: %w", dynamo.Invalid("perturbation must be in [0, 1), got %g", f))
	}
	if err := c.Campaign.Requirement.Validate(); err != nil {
		return fmt.Errorf("config: campaign: %w", err)
	}
	if _, _, err := c.Sweep.Values(); err != nil {
		return fmt.Errorf("config: sweep: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: %w", dynamo.Invalid("workers must not be negative, got %d", c.Workers))
	}
	return nil
}

func (c *Config) InitialState() dynamo.State {
	return dynamo.State{c.InitState.Theta, c.InitState.Q, c.InitState.EInt}
}

// Values expands the sweep ranges into k and c value lists.
func (s SweepConfig) Values() (ks, cs []float64, err error) {
	if s.KMin <= 0 || s.KMax < s.KMin {
		return nil, nil, dynamo.Invalid("k range [%g, %g] must be positive and ordered", s.KMin, s.KMax)
	}
	if s.CMin < 0 || s.CMax < s.CMin {
		return nil, nil, dynamo.Invalid("c range [%g, %g] must be non-negative and ordered", s.CMin, s.CMax)
	}
	if ks, err = optim.Linspace(s.KMin, s.KMax, s.KPoints); err != nil {
		return nil, nil, err
	}
	if cs, err = optim.Linspace(s.CMin, s.CMax, s.CPoints); err != nil {
		return nil, nil, err
	}
	return ks, cs, nil
}

package terra

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/terra/observer"
	"github.com/gogpu/terra/terrain"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("terra: invalid config")

// RenderConfig controls the view and the compositing passes.
type RenderConfig struct {
	Width       uint32 `yaml:"width"`
	Height      uint32 `yaml:"height"`
	SampleCount uint32 `yaml:"sample_count"`

	Sky   bool `yaml:"sky"`
	Water bool `yaml:"water"`

	// FovY is the vertical field of view in degrees.
	FovY float32 `yaml:"fov_y"`
	Near float32 `yaml:"near"`
	Far  float32 `yaml:"far"`

	// Workers is the worker pool size. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// SPIRV feeds the backend naga SPIR-V instead of WGSL.
	SPIRV bool `yaml:"spirv"`
}

// Config is the complete App configuration.
type Config struct {
	Terrain  terrain.StreamConfig `yaml:"terrain"`
	Observer observer.Settings    `yaml:"observer"`
	Render   RenderConfig         `yaml:"render"`

	// Start is the observer's initial position.
	Start [3]float32 `yaml:"start"`
}

// DefaultConfig returns a 1280x720 4x MSAA view with sky and water,
// the default streaming footprint and the default controller tuning.
func DefaultConfig() Config {
	return Config{
		Terrain:  terrain.DefaultStreamConfig(),
		Observer: observer.DefaultSettings(),
		Render: RenderConfig{
			Width:       1280,
			Height:      720,
			SampleCount: 4,
			Sky:         true,
			Water:       true,
			FovY:        60,
			Near:        0.1,
			Far:         10000,
		},
		Start: [3]float32{0, 40, 0},
	}
}

// LoadConfig reads a YAML file over DefaultConfig, so omitted fields
// keep their defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := c.Terrain.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	r := c.Render
	switch {
	case r.Width == 0 || r.Height == 0:
		return fmt.Errorf("%w: render size %dx%d", ErrInvalidConfig, r.Width, r.Height)
	case r.SampleCount != 1 && r.SampleCount != 2 && r.SampleCount != 4 && r.SampleCount != 8:
		return fmt.Errorf("%w: sample count %d not in {1,2,4,8}", ErrInvalidConfig, r.SampleCount)
	case r.Water && r.SampleCount < 2:
		return fmt.Errorf("%w: water needs a multisampled depth target (sample count %d)", ErrInvalidConfig, r.SampleCount)
	case !(r.FovY > 0 && r.FovY < 180):
		return fmt.Errorf("%w: fov %v", ErrInvalidConfig, r.FovY)
	case !(r.Near > 0 && r.Far > r.Near):
		return fmt.Errorf("%w: depth range %v..%v", ErrInvalidConfig, r.Near, r.Far)
	case r.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, r.Workers)
	case !(c.Observer.MinSpeed > 0):
		return fmt.Errorf("%w: observer min speed %v", ErrInvalidConfig, c.Observer.MinSpeed)
	}
	return nil
}

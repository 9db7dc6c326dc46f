package grid

import (
	"fmt"
	"math"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a configuration matching the robot's built-in
// constants. LoadConfig starts from it, so a YAML file only needs the keys it
// changes.
func DefaultConfig() *Config {
	g := Grid{Size: DefaultGridSize}
	return &Config{
		Grid: g,
		Camera: CameraConfig{
			MountOffset: 0.1,
			FieldOfView: DefaultVisibilityConfig().FieldOfView,
			MaxNoise:    0.05,
		},
		Search: DefaultSearchConfig(g),
		Gates:  DefaultGates(),
		Loop:   LoopConfig{PeriodMs: 50},
		MQTT: MQTTConfig{
			ClientID:      "gridlock",
			WallsTopic:    "gridlock/camera/walls",
			TrackedTopic:  "gridlock/camera/tracked",
			PublishPrefix: "gridlock",
		},
		HTTP: HTTPConfig{Port: 4040},
		Simulation: SimulationConfig{
			Start:         Pose{X: 0.5 * g.Size, Y: 0.5 * g.Size},
			InitialDrift:  Pose{X: 0.002, Y: -0.002, Heading: 0.003},
			TurnRate:      0.05,
			FramePeriodMs: 100,
		},
	}
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks every section and reports all problems at once. The result
// wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs error

	errs = multierr.Append(errs, c.Grid.Validate())
	errs = multierr.Append(errs, c.Search.Validate())
	errs = multierr.Append(errs, c.Gates.Validate())

	if c.Camera.MountOffset < 0 || math.IsNaN(c.Camera.MountOffset) {
		errs = multierr.Append(errs, fmt.Errorf("camera.mountOffset must be non-negative, got %v", c.Camera.MountOffset))
	}
	if !(c.Camera.FieldOfView > 0 && c.Camera.FieldOfView <= 0.5) {
		errs = multierr.Append(errs, fmt.Errorf("camera.fieldOfView must be in (0, 0.5] turns, got %v", c.Camera.FieldOfView))
	}
	if c.Camera.MaxNoise < 0 || c.Camera.MaxNoise >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("camera.maxNoise must be in [0, 1), got %v", c.Camera.MaxNoise))
	}
	if c.Loop.PeriodMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("loop.periodMs must be positive, got %d", c.Loop.PeriodMs))
	}
	if c.MQTT.Broker != "" && c.MQTT.WallsTopic == "" {
		errs = multierr.Append(errs, fmt.Errorf("mqtt.wallsTopic is required when mqtt.broker is set"))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}
	if c.Simulation.FramePeriodMs < 0 {
		errs = multierr.Append(errs, fmt.Errorf("simulation.framePeriodMs must not be negative, got %d", c.Simulation.FramePeriodMs))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Visibility returns the line-of-sight settings for the configured camera
func (c *Config) Visibility() VisibilityConfig {
	v := DefaultVisibilityConfig()
	v.FieldOfView = c.Camera.FieldOfView
	return v
}

package physics

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the physics world. Zero values are not
// meaningful; start from DefaultConfig.
type Config struct {
	Gravity  float32 `yaml:"gravity"`
	Diameter float32 `yaml:"particle_diameter"`

	SpringK     float32 `yaml:"spring_k"`
	DampingK    float32 `yaml:"damping_k"`
	TangentialK float32 `yaml:"tangential_k"`

	Friction           float32 `yaml:"friction"`
	AngularFriction    float32 `yaml:"angular_friction"`
	LinearForceScalar  float32 `yaml:"linear_force_scalar"`
	AngularForceScalar float32 `yaml:"angular_force_scalar"`
	VelocityThreshold  float32 `yaml:"velocity_threshold"`
	MaxAngularSpeed    float32 `yaml:"max_angular_speed"`

	FixedTimestep    float64 `yaml:"fixed_timestep"`
	MaxStepsPerFrame int     `yaml:"max_steps_per_frame"`

	// Kinematic move-and-slide
	KinematicGravity    float32 `yaml:"kinematic_gravity"`
	CollisionIterations int     `yaml:"collision_iterations"`
	FloorThreshold      float32 `yaml:"floor_threshold"`
	GroundProbe         float32 `yaml:"ground_probe"`
	SnapDistance        float32 `yaml:"snap_distance"`

	// Fragment settling
	SettleFrames       int     `yaml:"settle_frames"`
	SettleVelocity     float32 `yaml:"settle_velocity"`
	MaxActiveFragments int     `yaml:"max_active_fragments"`

	// Broad phase
	GridDims        int `yaml:"grid_dims"`
	GridCapacity    int `yaml:"grid_capacity"`
	BroadPhaseLanes int `yaml:"broad_phase_lanes"`
}

// DefaultConfig returns the tuned constants.
func DefaultConfig() Config {
	return Config{
		Gravity:  9.8,
		Diameter: 1.0,

		SpringK:     500.0,
		DampingK:    10.0,
		TangentialK: 2.0,

		Friction:           0.9,
		AngularFriction:    0.3,
		LinearForceScalar:  1.0,
		AngularForceScalar: 1.0,
		VelocityThreshold:  1e-6,
		MaxAngularSpeed:    20.0,

		FixedTimestep:    1.0 / 60.0,
		MaxStepsPerFrame: 8,

		KinematicGravity:    9.8,
		CollisionIterations: 4,
		FloorThreshold:      0.7,
		GroundProbe:         0.05,
		SnapDistance:        0.2,

		SettleFrames:       60,
		SettleVelocity:     0.1,
		MaxActiveFragments: 32,

		GridDims:        64,
		GridCapacity:    4,
		BroadPhaseLanes: 1,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys missing from
// the file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read physics config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse physics config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid physics config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML so a tuned session can be reloaded with
// LoadConfig.
func SaveConfig(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save physics config: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal physics config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write physics config: %w", err)
	}
	return nil
}

// Validate rejects settings the stepper cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.FixedTimestep <= 0 {
		errs = append(errs, errors.New("fixed_timestep must be positive"))
	}
	if c.MaxStepsPerFrame <= 0 {
		errs = append(errs, errors.New("max_steps_per_frame must be positive"))
	}
	if c.Diameter <= 0 {
		errs = append(errs, errors.New("particle_diameter must be positive"))
	}
	if c.CollisionIterations <= 0 {
		errs = append(errs, errors.New("collision_iterations must be positive"))
	}
	if c.GridDims <= 0 || c.GridCapacity <= 0 {
		errs = append(errs, errors.New("grid_dims and grid_capacity must be positive"))
	}
	if c.MaxAngularSpeed <= 0 {
		errs = append(errs, errors.New("max_angular_speed must be positive"))
	}
	return errors.Join(errs...)
}

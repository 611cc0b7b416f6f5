package tmaze

import (
	"errors"
	"fmt"
	"strings"

	"tmaze/internal/goal"
	"tmaze/internal/physics"
)

// ObservationMode selects what Reset and Step return as the observation.
type ObservationMode string

const (
	ObserveProprio ObservationMode = "proprioceptive"
	ObserveVision  ObservationMode = "vision"
	ObserveBoth    ObservationMode = "both"
)

func ParseObservationMode(s string) (ObservationMode, error) {
	switch m := ObservationMode(strings.TrimSpace(strings.ToLower(s))); m {
	case ObserveProprio, ObserveVision, ObserveBoth:
		return m, nil
	case "", "proprio":
		return ObserveProprio, nil
	default:
		return "", fmt.Errorf("unsupported observation mode: %s", s)
	}
}

const (
	DefaultActionRepeats       = 6
	DefaultCollisionPunishment = 1.0
	DefaultZoom                = 2.0
	// WarmupSteps is the number of unactuated sub-steps run after spawning.
	WarmupSteps = 600
	// VehicleMaxSpeed is the forward speed at full throttle.
	VehicleMaxSpeed = 5.0
)

// Config is fixed for the lifetime of an Env.
type Config struct {
	RenderMode             string          `json:"render_mode" yaml:"render_mode"`
	ObservationMode        ObservationMode `json:"observation_mode" yaml:"observation_mode"`
	ActionRepeats          int             `json:"action_repeats" yaml:"action_repeats"`
	RewardScales           []float64       `json:"reward_scales" yaml:"reward_scales"`
	TargetSetting          string          `json:"target_setting" yaml:"target_setting"`
	InitPositionRandomness float64         `json:"init_position_randomness" yaml:"init_position_randomness"`
	ReturnDepth            bool            `json:"return_depth" yaml:"return_depth"`
	Seed                   uint64          `json:"seed" yaml:"seed"`
	CollisionPunishment    float64         `json:"collision_punishment" yaml:"collision_punishment"`
	Zoom                   float64         `json:"zoom" yaml:"zoom"`
}

func DefaultConfig() Config {
	return Config{
		RenderMode:             string(physics.ModeDirect),
		ObservationMode:        ObserveVision,
		ActionRepeats:          DefaultActionRepeats,
		RewardScales:           []float64{1000, 1000},
		TargetSetting:          string(goal.Either),
		InitPositionRandomness: 0,
		ReturnDepth:            false,
		Seed:                   0,
		CollisionPunishment:    DefaultCollisionPunishment,
		Zoom:                   DefaultZoom,
	}
}

func (c Config) Validate() error {
	if _, err := physics.ParseMode(c.RenderMode); err != nil {
		return err
	}
	if _, err := ParseObservationMode(string(c.ObservationMode)); err != nil {
		return err
	}
	if _, err := goal.ParsePolicy(c.TargetSetting); err != nil {
		return err
	}
	if c.ActionRepeats <= 0 {
		return fmt.Errorf("action repeats must be > 0, got %d", c.ActionRepeats)
	}
	if len(c.RewardScales) != 2 {
		return fmt.Errorf("reward scales must have two entries, got %d", len(c.RewardScales))
	}
	if c.Zoom <= 0 {
		return fmt.Errorf("zoom must be > 0, got %f", c.Zoom)
	}
	if c.InitPositionRandomness < 0 {
		return errors.New("init position randomness must be >= 0")
	}
	if c.CollisionPunishment < 0 {
		return errors.New("collision punishment must be >= 0")
	}
	return nil
}

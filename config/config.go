// Package config defines the structures to configure a multi-robot GBP simulation.
package config

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/gbpplanner/pathfinding"
	"go.viam.com/gbpplanner/schedule"
)

// Config describes the planner parameters, the environment and the robots to spawn.
type Config struct {
	ConfigFilePath string `json:"-"`

	GBP         GBP          `json:"gbp"`
	Robot       Robot        `json:"robot"`
	Simulation  Simulation   `json:"simulation"`
	Environment Environment  `json:"environment"`
	Robots      []RobotSpawn `json:"robots"`
}

// GBP holds the factor strengths and the message passing schedule.
type GBP struct {
	// Sigma of the priors pinning the current and horizon states.
	SigmaPoseFixed float64 `json:"sigma_pose_fixed"`
	// Process noise of the constant velocity model.
	SigmaFactorDynamics float64 `json:"sigma_factor_dynamics"`
	// Strength of the collision avoidance between robots.
	SigmaFactorInterRobot float64 `json:"sigma_factor_interrobot"`
	// Strength of the obstacle avoidance.
	SigmaFactorObstacle float64 `json:"sigma_factor_obstacle"`
	// Spacing between variable timesteps grows by this factor along the horizon.
	LookaheadMultiple int `json:"lookahead_multiple"`
	// Upper bound on the variables of each robot's horizon, current state included. Timesteps
	// past the bound are dropped except the horizon itself.
	Variables         int               `json:"variables"`
	IterationSchedule IterationSchedule `json:"iteration_schedule"`
	FactorsEnabled    FactorsEnabled    `json:"factors_enabled"`
}

// IterationSchedule selects how many internal and external GBP iterations run per tick and how
// they are laid out.
type IterationSchedule struct {
	Internal int           `json:"internal"`
	External int           `json:"external"`
	Schedule schedule.Kind `json:"schedule" jsonschema:"enum=centered,enum=soon-as-possible,enum=late-as-possible,enum=half-beginning-half-end,enum=interleave-evenly"`
}

// Counts returns the iteration counts.
func (s IterationSchedule) Counts() schedule.Config {
	return schedule.Config{Internal: s.Internal, External: s.External}
}

// FactorsEnabled toggles each factor kind.
type FactorsEnabled struct {
	Dynamic    bool `json:"dynamic"`
	InterRobot bool `json:"interrobot"`
	Obstacle   bool `json:"obstacle"`
	Pose       bool `json:"pose"`
}

// Robot holds the parameters shared by every robot.
type Robot struct {
	// Seconds of lookahead.
	PlanningHorizon float64       `json:"planning_horizon"`
	MaxSpeed        float64       `json:"max_speed"`
	Radius          float64       `json:"radius"`
	Communication   Communication `json:"communication"`
}

// Communication limits which robots can exchange messages.
type Communication struct {
	Radius float64 `json:"radius"`
	// Probability that a robot's radio is off for a tick.
	FailureRate float64 `json:"failure_rate" jsonschema:"minimum=0,maximum=1"`
}

// Simulation holds the time stepping parameters.
type Simulation struct {
	Hz float64 `json:"hz"`
	// Time between the current state and the first future variable.
	T0        float64 `json:"t0"`
	WorldSize float64 `json:"world_size"`
	PRNGSeed  int64   `json:"prng_seed"`
	// Simulated seconds after which a run stops. Zero runs until every robot arrives.
	MaxTime float64 `json:"max_time"`
}

// Environment describes the obstacles. At most one of SDF and Obstacles is set.
type Environment struct {
	// Path of a distance field image, white is free space.
	SDF string `json:"sdf,omitempty"`
	// Path of an obstacle mask, black is obstacle. A distance field is generated from it.
	Obstacles string `json:"obstacles,omitempty"`
	// Distance in pixels over which a generated field fades to free space.
	SDFRadius int `json:"sdf_radius,omitempty"`
	// Sigma of the gaussian blur applied to a generated field.
	SDFBlur float64 `json:"sdf_blur,omitempty"`
}

// Point is an [x, y] pair in world coordinates.
type Point [2]float64

// R2 converts to a geometric point.
func (p Point) R2() r2.Point {
	return r2.Point{X: p[0], Y: p[1]}
}

// RobotSpawn places one robot. The robot starts at the first waypoint and visits the rest in
// order.
type RobotSpawn struct {
	Waypoints []Point `json:"waypoints" jsonschema:"required,minItems=2"`
	// Simulated seconds before the robot appears.
	StartTime float64 `json:"start_time,omitempty"`
	// RRT* options. When set, the waypoints between the first and the last are replaced by a
	// planned path.
	Pathfinding map[string]interface{} `json:"pathfinding,omitempty"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		GBP: GBP{
			SigmaPoseFixed:        1e-15,
			SigmaFactorDynamics:   0.1,
			SigmaFactorInterRobot: 0.01,
			SigmaFactorObstacle:   0.01,
			LookaheadMultiple:     3,
			Variables:             10,
			IterationSchedule: IterationSchedule{
				Internal: 10,
				External: 10,
				Schedule: schedule.Centered,
			},
			FactorsEnabled: FactorsEnabled{Dynamic: true, InterRobot: true, Obstacle: true, Pose: true},
		},
		Robot: Robot{
			PlanningHorizon: 5,
			MaxSpeed:        4,
			Radius:          1,
			Communication:   Communication{Radius: 20, FailureRate: 0.2},
		},
		Simulation: Simulation{
			Hz:        60,
			T0:        0.25,
			WorldSize: 100,
		},
		Environment: Environment{SDFRadius: 8},
	}
}

// Ensure validates every section and normalises the schedule name. All problems are reported.
func (c *Config) Ensure() error {
	err := multierr.Combine(
		c.GBP.Validate("gbp"),
		c.Robot.Validate("robot"),
		c.Simulation.Validate("simulation"),
		c.Environment.Validate("environment"),
	)
	if kind, kindErr := schedule.ParseKind(string(c.GBP.IterationSchedule.Schedule)); kindErr == nil {
		c.GBP.IterationSchedule.Schedule = kind
	}
	for idx := range c.Robots {
		err = multierr.Append(err, c.Robots[idx].Validate(fmt.Sprintf("%s.%d", "robots", idx), c.Simulation.WorldSize))
	}
	return err
}

// Validate ensures all parts of the config are valid.
func (g *GBP) Validate(path string) error {
	var err error
	for field, sigma := range map[string]float64{
		"sigma_pose_fixed":        g.SigmaPoseFixed,
		"sigma_factor_dynamics":   g.SigmaFactorDynamics,
		"sigma_factor_interrobot": g.SigmaFactorInterRobot,
		"sigma_factor_obstacle":   g.SigmaFactorObstacle,
	} {
		if !(sigma > 0) || math.IsInf(sigma, 0) {
			err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Errorf("%s must be positive and finite, got %v", field, sigma)))
		}
	}
	if g.LookaheadMultiple < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("lookahead_multiple must be at least 1")))
	}
	if g.Variables < 2 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("variables must be at least 2")))
	}
	if g.IterationSchedule.Schedule == "" {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path+".iteration_schedule", "schedule"))
	} else if _, kindErr := schedule.ParseKind(string(g.IterationSchedule.Schedule)); kindErr != nil {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".iteration_schedule", kindErr))
	}
	if countErr := g.IterationSchedule.Counts().Validate(); countErr != nil {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".iteration_schedule", countErr))
	}
	return err
}

// Validate ensures all parts of the config are valid.
func (r *Robot) Validate(path string) error {
	var err error
	if r.PlanningHorizon <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("planning_horizon must be positive")))
	}
	if r.MaxSpeed <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_speed must be positive")))
	}
	if r.Radius <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("radius must be positive")))
	}
	if r.Communication.Radius < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".communication", errors.New("radius cannot be negative")))
	}
	if r.Communication.FailureRate < 0 || r.Communication.FailureRate > 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".communication",
			errors.Errorf("failure_rate must be between 0 and 1, got %v", r.Communication.FailureRate)))
	}
	return err
}

// Validate ensures all parts of the config are valid.
func (s *Simulation) Validate(path string) error {
	var err error
	if s.Hz <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("hz must be positive")))
	}
	if s.T0 <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("t0 must be positive")))
	}
	if s.WorldSize <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("world_size must be positive")))
	}
	if s.MaxTime < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_time cannot be negative")))
	}
	return err
}

// Validate ensures all parts of the config are valid.
func (e *Environment) Validate(path string) error {
	if e.SDF != "" && e.Obstacles != "" {
		return utils.NewConfigValidationError(path, errors.New("only one of sdf and obstacles can be set"))
	}
	if e.Obstacles != "" && e.SDFRadius <= 0 {
		return utils.NewConfigValidationError(path, errors.New("sdf_radius must be positive to generate a field"))
	}
	if e.SDFBlur < 0 {
		return utils.NewConfigValidationError(path, errors.New("sdf_blur cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid. Waypoints must lie inside the world.
func (r *RobotSpawn) Validate(path string, worldSize float64) error {
	if len(r.Waypoints) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "waypoints")
	}
	if len(r.Waypoints) < 2 {
		return utils.NewConfigValidationError(path, errors.New("waypoints needs a start and at least one goal"))
	}
	half := worldSize / 2
	for i, wp := range r.Waypoints {
		if math.Abs(wp[0]) > half || math.Abs(wp[1]) > half {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.waypoints.%d", path, i),
				errors.Errorf("(%v, %v) is outside the world", wp[0], wp[1]))
		}
	}
	if r.StartTime < 0 {
		return utils.NewConfigValidationError(path, errors.New("start_time cannot be negative"))
	}
	if r.Pathfinding != nil {
		if _, err := pathfinding.OptionsFromMap(r.Pathfinding); err != nil {
			return utils.NewConfigValidationError(path+".pathfinding", err)
		}
	}
	return nil
}

// PathfindingOptions decodes the RRT* options, or returns nil when pathfinding is off.
func (r *RobotSpawn) PathfindingOptions() (*pathfinding.Options, error) {
	if r.Pathfinding == nil {
		return nil, nil
	}
	return pathfinding.OptionsFromMap(r.Pathfinding)
}

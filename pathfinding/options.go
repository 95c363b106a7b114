package pathfinding

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

const (
	// Number of planner iterations before giving up.
	defaultPlanIter = 10000

	// Length of each new branch.
	defaultStepSize = 1.0

	// The number of nearest neighbors to consider when adding a new sample to the tree.
	defaultNeighborhoodSize = 10

	// Probability of sampling the goal instead of a random point.
	defaultGoalBias = 0.05

	// SDF values below this are obstacles.
	defaultFreeThreshold = 128

	// Number of random shortcut attempts once a path is found.
	defaultSmoothIter = 100
)

// Options controls a single invocation of the planner. All values are pre-set to reasonable
// defaults, but can be tweaked if needed.
type Options struct {
	// Number of planner iterations before giving up.
	PlanIter int `json:"plan_iter"`

	// Length of each new branch in world units.
	StepSize float64 `json:"step_size"`

	// The number of nearest neighbors to consider when adding a new sample to the tree.
	NeighborhoodSize int `json:"neighborhood_size"`

	// Probability in [0, 1) of sampling the goal.
	GoalBias float64 `json:"goal_bias"`

	// Distance between collision checks along a segment. Defaults to a quarter step.
	Resolution float64 `json:"resolution,omitempty"`

	// SDF values below this threshold are treated as obstacles.
	FreeThreshold uint8 `json:"free_threshold"`

	// Number of shortcut attempts on the found path. Zero disables smoothing.
	SmoothIter int `json:"smooth_iter"`

	// Seed of the sampler.
	Seed int64 `json:"seed"`
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		PlanIter:         defaultPlanIter,
		StepSize:         defaultStepSize,
		NeighborhoodSize: defaultNeighborhoodSize,
		GoalBias:         defaultGoalBias,
		FreeThreshold:    defaultFreeThreshold,
		SmoothIter:       defaultSmoothIter,
	}
}

// OptionsFromMap overlays extra on the defaults.
func OptionsFromMap(extra map[string]interface{}) (*Options, error) {
	opts := NewOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: opts})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(extra); err != nil {
		return nil, errors.Wrap(err, "decoding pathfinding options")
	}
	return opts, opts.validate()
}

func (o *Options) validate() error {
	switch {
	case o.PlanIter <= 0:
		return errors.Errorf("plan_iter must be positive, got %d", o.PlanIter)
	case o.StepSize <= 0:
		return errors.Errorf("step_size must be positive, got %v", o.StepSize)
	case o.NeighborhoodSize <= 0:
		return errors.Errorf("neighborhood_size must be positive, got %d", o.NeighborhoodSize)
	case o.GoalBias < 0 || o.GoalBias >= 1:
		return errors.Errorf("goal_bias must be in [0, 1), got %v", o.GoalBias)
	case o.Resolution < 0:
		return errors.Errorf("resolution cannot be negative, got %v", o.Resolution)
	}
	return nil
}

func (o *Options) resolution() float64 {
	if o.Resolution > 0 {
		return o.Resolution
	}
	return o.StepSize / 4
}

package pathfinding

import "github.com/pkg/errors"

// ErrPathfindingExhausted is returned when the planner hits its iteration bound without reaching
// the goal.
var ErrPathfindingExhausted = errors.New("pathfinding exhausted its iterations")

// NewPathfindingExhaustedError returns an error wrapping ErrPathfindingExhausted.
func NewPathfindingExhaustedError(iterations int) error {
	return errors.Wrapf(ErrPathfindingExhausted, "no path after %d iterations", iterations)
}

// NewBlockedEndpointError returns an error for a start or goal inside an obstacle.
func NewBlockedEndpointError(which string) error {
	return errors.Errorf("%s position is inside an obstacle", which)
}

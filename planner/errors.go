package planner

import (
	"github.com/pkg/errors"

	"go.viam.com/gbpplanner/factorgraph"
)

// ErrNoWaypoints is returned when a robot is built without a start and a goal.
var ErrNoWaypoints = errors.New("robot needs a start and at least one waypoint")

// NewRobotNotFoundError returns an error for a robot id that is not simulated.
func NewRobotNotFoundError(id factorgraph.GraphID) error {
	return errors.Errorf("robot %d not found", id)
}

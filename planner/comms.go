package planner

import (
	"slices"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/gbpplanner/factorgraph"
)

// updateNeighbours recomputes, for every robot, the robots whose current state is within the
// communication radius.
func (s *Simulation) updateNeighbours() {
	radius := s.cfg.Robot.Communication.Radius
	robots := s.orderedRobots()
	for _, robot := range robots {
		position := robot.Position()
		robot.neighbours = lo.FilterMap(robots, func(other *Robot, _ int) (factorgraph.GraphID, bool) {
			return other.id, other.id != robot.id && position.Sub(other.Position()).Norm() <= radius
		})
	}
}

// updateInterRobotFactors deletes the inter-robot factors toward robots that left communication
// range and creates them toward robots that entered it. Each new neighbour gets one factor per
// future variable, pairing variables of the same timestep.
func (s *Simulation) updateInterRobotFactors() error {
	var err error
	for _, robot := range s.orderedRobots() {
		lost, _ := lo.Difference(robot.connected, robot.neighbours)
		for _, other := range lost {
			err = multierr.Append(err, s.registry.Disconnect(robot.id, other))
			robot.connected = slices.DeleteFunc(robot.connected, func(id factorgraph.GraphID) bool { return id == other })
		}
		if !s.cfg.GBP.FactorsEnabled.InterRobot {
			continue
		}
		_, found := lo.Difference(robot.connected, robot.neighbours)
		for _, otherID := range found {
			other, ok := s.robots[otherID]
			if !ok {
				continue
			}
			if connectErr := s.connectRobots(robot, other); connectErr != nil {
				err = multierr.Append(err, connectErr)
				continue
			}
			idx, _ := slices.BinarySearch(robot.connected, otherID)
			robot.connected = slices.Insert(robot.connected, idx, otherID)
		}
	}
	return err
}

func (s *Simulation) connectRobots(robot, other *Robot) error {
	n := min(len(robot.variables), len(other.variables))
	for i := 1; i < n; i++ {
		model := factorgraph.NewInterRobotFactor(robot.radius, s.cfg.GBP.SigmaFactorInterRobot, other.id)
		if _, err := s.registry.ConnectInterRobot(robot.id, robot.variables[i], other.variables[i], model); err != nil {
			return err
		}
	}
	s.logger.Debugw("connected robots", "robot", robot.id, "other", other.id)
	return nil
}

// updateFailedComms switches each robot's radio off for this tick with probability failure_rate.
func (s *Simulation) updateFailedComms() {
	rate := s.cfg.Robot.Communication.FailureRate
	for _, robot := range s.orderedRobots() {
		robot.graph.SetCommsActive(s.rng.Float64() >= rate)
	}
}

package planner

import (
	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"go.viam.com/gbpplanner/factorgraph"
)

// RobotSnapshot is what a renderer needs of one robot.
type RobotSnapshot struct {
	ID          factorgraph.GraphID
	Position    r2.Point
	Velocity    r2.Point
	Horizon     r2.Point
	Waypoints   []r2.Point
	Neighbours  []factorgraph.GraphID
	CommsActive bool
	Variables   []factorgraph.VariableState
}

// Snapshot returns the state of every robot in id order.
func (s *Simulation) Snapshot() []RobotSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.orderedRobots(), func(robot *Robot, _ int) RobotSnapshot {
		return RobotSnapshot{
			ID:          robot.id,
			Position:    robot.Position(),
			Velocity:    robot.Velocity(),
			Horizon:     robot.Horizon(),
			Waypoints:   robot.waypoints.Points(),
			Neighbours:  robot.Neighbours(),
			CommsActive: robot.graph.CommsActive(),
			Variables:   robot.graph.VariableStates(),
		}
	})
}

// Counters holds the message counts of the last tick and of the whole run.
type Counters struct {
	Ticks int
	Last  factorgraph.MessageCounts
	Total factorgraph.MessageCounts
}

// Counters returns the message counters.
func (s *Simulation) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{Ticks: s.ticks, Last: s.last, Total: s.total}
}

// Stats summarises the current beliefs of every robot.
type Stats struct {
	Robots  int
	Pending int
	Arrived int
	// Over every valid variable of every robot.
	MeanPositionVariance float64
	MaxPositionVariance  float64
	InvalidVariables     int
	// Over the current state of every robot.
	MeanSpeed float64
}

// Stats computes summary statistics of the current beliefs.
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{Robots: len(s.robots), Pending: len(s.pending), Arrived: s.arrived}

	var variances, speeds stats.Float64Data
	for _, robot := range s.orderedRobots() {
		speeds = append(speeds, robot.Velocity().Norm())
		for _, state := range robot.graph.VariableStates() {
			if !state.Valid {
				out.InvalidVariables++
				continue
			}
			variances = append(variances, state.PositionVariance())
		}
	}
	if len(variances) > 0 {
		// Mean and Max only fail on empty input.
		out.MeanPositionVariance, _ = variances.Mean()
		out.MaxPositionVariance, _ = variances.Max()
	}
	if len(speeds) > 0 {
		out.MeanSpeed, _ = speeds.Mean()
	}
	return out
}

// Trails returns the positions each robot's current state has taken, one per tick, including
// robots that already arrived.
func (s *Simulation) Trails() map[factorgraph.GraphID][]r2.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[factorgraph.GraphID][]r2.Point, len(s.trails))
	for id, trail := range s.trails {
		out[id] = append([]r2.Point(nil), trail...)
	}
	return out
}

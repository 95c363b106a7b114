// Package planner drives a multi-robot simulation in which every robot plans its trajectory with
// gaussian belief propagation over its own factor graph, exchanging messages with nearby robots.
package planner

import (
	"math"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/gbpplanner/config"
	"go.viam.com/gbpplanner/factorgraph"
	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/pathfinding"
	"go.viam.com/gbpplanner/sdf"
)

// Robot is one planning agent. Its factor graph spans the horizon from the current state to the
// horizon state; graph id and robot id are the same.
type Robot struct {
	id     factorgraph.GraphID
	graph  *factorgraph.FactorGraph
	logger logging.Logger

	radius    float64
	maxSpeed  float64
	goal      r2.Point
	waypoints *WaypointQueue

	// variables in timestep order; the first is the current state and the last the horizon.
	variables []factorgraph.VariableID
	pose      *factorgraph.PoseFactor

	neighbours []factorgraph.GraphID
	connected  []factorgraph.GraphID

	task *pathfinding.Task
}

// NewRobot builds a robot starting at waypoints[0] and heading for the rest in order. One
// variable is placed per timestep along the straight line toward the first goal, at most
// planning_horizon*max_speed away. The current and horizon variables are pinned by a tight prior,
// the others have none.
func NewRobot(
	id factorgraph.GraphID,
	waypoints []r2.Point,
	timesteps []int,
	cfg *config.Config,
	field sdf.Sampler,
	logger logging.Logger,
) (*Robot, error) {
	if len(waypoints) < 2 {
		return nil, ErrNoWaypoints
	}
	if len(timesteps) < 2 {
		return nil, errors.Errorf("robot needs at least 2 timesteps, got %d", len(timesteps))
	}

	start, goal := waypoints[0], waypoints[1]
	direction := goal.Sub(start).Normalize()
	velocity := direction.Mul(cfg.Robot.MaxSpeed)
	reach := math.Min(goal.Sub(start).Norm(), cfg.Robot.PlanningHorizon*cfg.Robot.MaxSpeed)
	horizon := start.Add(direction.Mul(reach))

	r := &Robot{
		id:        id,
		graph:     factorgraph.NewFactorGraph(id),
		logger:    logger,
		radius:    cfg.Robot.Radius,
		maxSpeed:  cfg.Robot.MaxSpeed,
		goal:      waypoints[len(waypoints)-1],
		waypoints: NewWaypointQueue(waypoints[1:]),
	}

	last := float64(timesteps[len(timesteps)-1])
	fixed := 1 / (cfg.GBP.SigmaPoseFixed * cfg.GBP.SigmaPoseFixed)
	for i, timestep := range timesteps {
		mean := stateVector(start.Add(horizon.Sub(start).Mul(float64(timestep)/last)), velocity)
		precision := math.Inf(1)
		if i == 0 || i == len(timesteps)-1 {
			precision = fixed
		}
		variableID, err := r.graph.AddVariable(mean, diagonal(precision))
		if err != nil {
			return nil, err
		}
		r.variables = append(r.variables, variableID)
	}

	enabled := cfg.GBP.FactorsEnabled
	if enabled.Dynamic {
		for i := 0; i+1 < len(timesteps); i++ {
			deltaT := cfg.Simulation.T0 * float64(timesteps[i+1]-timesteps[i])
			factorID := r.graph.AddFactor(factorgraph.NewDynamicFactor(deltaT, cfg.GBP.SigmaFactorDynamics))
			if err := r.connect(factorID, r.variables[i], r.variables[i+1]); err != nil {
				return nil, err
			}
		}
	}
	if enabled.Obstacle && field != nil {
		for _, variableID := range r.variables[1 : len(r.variables)-1] {
			factorID := r.graph.AddFactor(factorgraph.NewObstacleFactor(field, cfg.GBP.SigmaFactorObstacle))
			if err := r.connect(factorID, variableID); err != nil {
				return nil, err
			}
		}
	}
	if enabled.Pose {
		pose, err := factorgraph.NewPoseFactor(stateVector(horizon, velocity), cfg.GBP.SigmaPoseFixed)
		if err != nil {
			return nil, err
		}
		if err := r.connect(r.graph.AddFactor(pose), r.horizonVariable()); err != nil {
			return nil, err
		}
		r.pose = pose
	}
	return r, nil
}

func (r *Robot) connect(factorID factorgraph.FactorID, variables ...factorgraph.VariableID) error {
	for _, variableID := range variables {
		if err := r.graph.AddInternalEdge(factorID, variableID); err != nil {
			return errors.Wrapf(err, "robot %d", r.id)
		}
	}
	return nil
}

// ID returns the robot id.
func (r *Robot) ID() factorgraph.GraphID {
	return r.id
}

// Graph returns the robot's factor graph.
func (r *Robot) Graph() *factorgraph.FactorGraph {
	return r.graph
}

// Waypoints returns the queue of remaining waypoints.
func (r *Robot) Waypoints() *WaypointQueue {
	return r.waypoints
}

// Goal returns the final waypoint.
func (r *Robot) Goal() r2.Point {
	return r.goal
}

// Radius returns the robot's radius.
func (r *Robot) Radius() float64 {
	return r.radius
}

// Variables returns the horizon's variable ids in timestep order.
func (r *Robot) Variables() []factorgraph.VariableID {
	return r.variables
}

// Neighbours returns the robots within communication range at the last tick.
func (r *Robot) Neighbours() []factorgraph.GraphID {
	return slices.Clone(r.neighbours)
}

// Connected returns the robots this robot holds inter-robot factors toward.
func (r *Robot) Connected() []factorgraph.GraphID {
	return slices.Clone(r.connected)
}

// Position returns the mean position of the current state.
func (r *Robot) Position() r2.Point {
	return position(r.currentVariable().Mean())
}

// Velocity returns the mean velocity of the current state.
func (r *Robot) Velocity() r2.Point {
	mean := r.currentVariable().Mean()
	return r2.Point{X: mean.AtVec(2), Y: mean.AtVec(3)}
}

// Horizon returns the mean position of the horizon state.
func (r *Robot) Horizon() r2.Point {
	return position(r.variable(r.horizonVariable()).Mean())
}

// Arrived reports whether every waypoint has been visited and the current state is within one
// radius of the final goal.
func (r *Robot) Arrived() bool {
	return r.waypoints.Len() == 0 && r.Position().Sub(r.goal).Norm() < r.radius
}

func (r *Robot) horizonVariable() factorgraph.VariableID {
	return r.variables[len(r.variables)-1]
}

func (r *Robot) currentVariable() *factorgraph.Variable {
	return r.variable(r.variables[0])
}

func (r *Robot) variable(id factorgraph.VariableID) *factorgraph.Variable {
	v, ok := r.graph.Variable(id)
	if !ok {
		// variables of the horizon are never deleted
		panic(errors.Errorf("robot %d lost variable %v", r.id, id))
	}
	return v
}

// updateHorizon moves the horizon state toward the active waypoint at up to max speed, slowing
// down when close. The waypoint is popped once the horizon is within one radius of it.
func (r *Robot) updateHorizon(deltaT float64) error {
	goal, ok := r.waypoints.Front()
	if !ok {
		return nil
	}
	horizon := r.variable(r.horizonVariable())
	estimated := position(horizon.Mean())
	toGoal := goal.Sub(estimated)
	distance := toGoal.Norm()

	velocity := toGoal.Normalize().Mul(math.Min(r.maxSpeed, distance))
	mean := stateVector(estimated.Add(velocity.Mul(deltaT)), velocity)
	if err := horizon.ChangePrior(mean); err != nil {
		return errors.Wrapf(err, "robot %d horizon", r.id)
	}
	if r.pose != nil {
		if err := r.pose.Retarget(mean); err != nil {
			return err
		}
	}

	if distance < r.radius {
		r.waypoints.Pop()
		r.logger.Debugw("horizon reached waypoint", "robot", r.id, "waypoint", goal, "remaining", r.waypoints.Len())
	}
	return nil
}

// updateCurrent advances the current state toward the next variable by scale, the fraction of t0
// that has passed.
func (r *Robot) updateCurrent(scale float64) error {
	current := r.currentVariable()
	next := r.variable(r.variables[1])

	var change mat.VecDense
	change.SubVec(next.Mean(), current.Mean())
	change.ScaleVec(scale, &change)
	var mean mat.VecDense
	mean.AddVec(current.Mean(), &change)
	return errors.Wrapf(current.ChangePrior(&mean), "robot %d current state", r.id)
}

// replacePath swaps the waypoints for a planned path. The first point of the path is the start.
func (r *Robot) replacePath(path []r2.Point) {
	if len(path) < 2 {
		return
	}
	r.waypoints.Replace(path[1:])
	r.goal = path[len(path)-1]
}

func (r *Robot) closeTask() {
	if r.task != nil {
		r.task.Close()
		r.task = nil
	}
}

func stateVector(p, v r2.Point) *mat.VecDense {
	return mat.NewVecDense(factorgraph.DOFS, []float64{p.X, p.Y, v.X, v.Y})
}

func position(mean mat.Vector) r2.Point {
	return r2.Point{X: mean.AtVec(0), Y: mean.AtVec(1)}
}

func diagonal(v float64) *mat.Dense {
	d := mat.NewDense(factorgraph.DOFS, factorgraph.DOFS, nil)
	for i := 0; i < factorgraph.DOFS; i++ {
		d.Set(i, i, v)
	}
	return d
}

package planner

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-graphviz"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/gbpplanner/config"
	"go.viam.com/gbpplanner/factorgraph"
	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/pathfinding"
	"go.viam.com/gbpplanner/schedule"
	"go.viam.com/gbpplanner/sdf"
	"go.viam.com/gbpplanner/telemetry"
	"go.viam.com/gbpplanner/utils"
)

// Option configures a Simulation.
type Option func(*Simulation)

// WithClock drives Run from the given clock instead of the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Simulation) {
		s.clock = clk
	}
}

// WithMetrics publishes per-tick counters to metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *Simulation) {
		s.metrics = metrics
	}
}

type pendingSpawn struct {
	index int
	spawn config.RobotSpawn
}

// Simulation owns every robot and advances them in lockstep. Each tick spawns due robots, updates
// the communication graph, runs the GBP schedule across all factor graphs, then moves every
// robot's current and horizon states.
type Simulation struct {
	cfg       *config.Config
	logger    logging.Logger
	clock     clock.Clock
	field     sdf.Sampler
	schedule  schedule.Schedule
	timesteps []int
	metrics   *telemetry.Metrics
	rng       *rand.Rand

	mu       sync.Mutex
	registry *factorgraph.GraphRegistry
	robots   map[factorgraph.GraphID]*Robot
	pending  []pendingSpawn
	nextID   factorgraph.GraphID
	elapsed  float64
	ticks    int
	arrived  int
	last     factorgraph.MessageCounts
	total    factorgraph.MessageCounts
	trails   map[factorgraph.GraphID][]r2.Point
}

// NewSimulation returns a simulation of the robots in cfg. A nil field means no obstacles.
func NewSimulation(cfg *config.Config, field sdf.Sampler, logger logging.Logger, opts ...Option) (*Simulation, error) {
	sched, err := schedule.New(cfg.GBP.IterationSchedule.Schedule)
	if err != nil {
		return nil, err
	}
	if field == nil {
		field = sdf.Clear{Size: cfg.Simulation.WorldSize}
	}
	horizon := int(cfg.Robot.PlanningHorizon/cfg.Simulation.T0 + 0.5)

	s := &Simulation{
		cfg:       cfg,
		logger:    logger,
		clock:     clock.New(),
		field:     field,
		schedule:  sched,
		timesteps: VariableTimesteps(horizon, cfg.GBP.LookaheadMultiple, cfg.GBP.Variables),
		//nolint:gosec
		rng:      rand.New(rand.NewSource(cfg.Simulation.PRNGSeed)),
		registry: factorgraph.NewGraphRegistry(),
		robots:   make(map[factorgraph.GraphID]*Robot),
		trails:   make(map[factorgraph.GraphID][]r2.Point),
	}
	for _, opt := range opts {
		opt(s)
	}
	for idx, spawn := range cfg.Robots {
		s.pending = append(s.pending, pendingSpawn{index: idx, spawn: spawn})
	}
	slices.SortStableFunc(s.pending, func(a, b pendingSpawn) int {
		switch {
		case a.spawn.StartTime < b.spawn.StartTime:
			return -1
		case a.spawn.StartTime > b.spawn.StartTime:
			return 1
		default:
			return 0
		}
	})
	logger.Debugw("simulation created", "robots", len(cfg.Robots), "timesteps", s.timesteps, "schedule", sched.Kind())
	return s, nil
}

// Registry returns the registry of all factor graphs.
func (s *Simulation) Registry() *factorgraph.GraphRegistry {
	return s.registry
}

// Robot returns the robot with the given id.
func (s *Simulation) Robot(id factorgraph.GraphID) (*Robot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	robot, ok := s.robots[id]
	if !ok {
		return nil, NewRobotNotFoundError(id)
	}
	return robot, nil
}

// Timesteps returns the variable timesteps shared by every robot.
func (s *Simulation) Timesteps() []int {
	return slices.Clone(s.timesteps)
}

// Elapsed returns the simulated time in seconds.
func (s *Simulation) Elapsed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Done reports whether every robot has spawned and arrived.
func (s *Simulation) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.robots) == 0 && len(s.pending) == 0
}

func (s *Simulation) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Simulation.MaxTime > 0 && s.elapsed >= s.cfg.Simulation.MaxTime
}

func (s *Simulation) orderedRobots() []*Robot {
	return lo.Map(s.registry.IDs(), func(id factorgraph.GraphID, _ int) *Robot { return s.robots[id] })
}

// Tick advances the simulation by 1/hz seconds. Only structural errors, such as an edge to a
// missing node, fail a tick; numerical trouble stays inside the affected node.
func (s *Simulation) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	deltaT := 1 / s.cfg.Simulation.Hz

	if err := s.spawnDue(ctx); err != nil {
		return err
	}
	s.pollPathfinding()
	s.updateNeighbours()
	if err := s.updateInterRobotFactors(); err != nil {
		return errors.Wrap(err, "updating inter-robot factors")
	}
	s.updateFailedComms()
	if err := s.iterate(ctx); err != nil {
		return err
	}
	if err := s.updatePriors(ctx, deltaT); err != nil {
		return err
	}

	counts, invalid := s.collectCounts()
	s.last = counts
	s.total = s.total.Add(counts)
	for _, robot := range s.orderedRobots() {
		s.trails[robot.id] = append(s.trails[robot.id], robot.Position())
	}
	robots := len(s.robots)
	s.despawnArrived()

	s.elapsed += deltaT
	s.ticks++
	s.metrics.ObserveTick(counts, robots, invalid, s.clock.Since(start))
	return nil
}

// Advance runs n ticks back to back, stopping early once the simulation is done.
func (s *Simulation) Advance(ctx context.Context, n int) error {
	for i := 0; i < n && !s.Done(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run ticks at hz until every robot has arrived, max_time has passed or ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / s.cfg.Simulation.Hz)
	ticker := s.clock.Ticker(period)
	defer ticker.Stop()
	for {
		if s.Done() || s.expired() {
			s.logger.Infow("simulation finished", "elapsed", s.Elapsed(), "arrived", s.Stats().Arrived)
			return nil
		}
		if !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
			return ctx.Err()
		}
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
}

// Close stops every background pathfinding task.
func (s *Simulation) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, robot := range s.robots {
		robot.closeTask()
	}
}

// WriteGraphviz renders every robot's factor graph.
func (s *Simulation) WriteGraphviz(ctx context.Context, w io.Writer, format graphviz.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return factorgraph.WriteGraphviz(ctx, w, s.registry.Graphs(), format)
}

func (s *Simulation) spawnDue(ctx context.Context) error {
	for len(s.pending) > 0 && s.pending[0].spawn.StartTime <= s.elapsed {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.spawn(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) spawn(ctx context.Context, next pendingSpawn) error {
	id := s.nextID
	waypoints := lo.Map(next.spawn.Waypoints, func(p config.Point, _ int) r2.Point { return p.R2() })
	logger := s.logger.Sublogger(fmt.Sprintf("robot-%d", id))
	robot, err := NewRobot(id, waypoints, s.timesteps, s.cfg, s.field, logger)
	if err != nil {
		return errors.Wrapf(err, "spawning robots.%d", next.index)
	}
	if err := s.registry.Add(robot.graph); err != nil {
		return err
	}
	s.nextID++
	s.robots[id] = robot

	opts, err := next.spawn.PathfindingOptions()
	if err != nil {
		return errors.Wrapf(err, "robots.%d", next.index)
	}
	if opts != nil {
		problem := pathfinding.Problem{Start: waypoints[0], Goal: robot.goal, Field: s.field}
		robot.task = pathfinding.Start(ctx, logger, problem, opts)
	}
	logger.Infow("robot spawned", "robot", id, "start", waypoints[0], "goal", robot.goal, "time", s.elapsed)
	return nil
}

func (s *Simulation) pollPathfinding() {
	for _, robot := range s.orderedRobots() {
		if robot.task == nil {
			continue
		}
		result, ok := robot.task.Poll()
		if !ok {
			continue
		}
		robot.task = nil
		if result.Err != nil {
			if errors.Is(result.Err, pathfinding.ErrPathfindingExhausted) {
				robot.logger.Warnw("pathfinding gave up, keeping waypoints", "robot", robot.id, "error", result.Err)
			} else {
				robot.logger.Errorw("pathfinding failed, keeping waypoints", "robot", robot.id, "error", result.Err)
			}
			continue
		}
		robot.replacePath(result.Path)
		robot.logger.Infow("pathfinding found a path", "robot", robot.id, "waypoints", len(result.Path)-1)
	}
}

// iterate runs the schedule's sub-steps. Each sub-step is two barriers across all robots: every
// factor pass completes before any variable pass starts, so a graph never reads another graph's
// nodes while they are written.
func (s *Simulation) iterate(ctx context.Context) error {
	for _, step := range s.schedule.Steps(s.cfg.GBP.IterationSchedule.Counts()) {
		if step.Internal {
			if err := s.passes(ctx, factorgraph.Internal); err != nil {
				return err
			}
		}
		if step.External {
			if err := s.passes(ctx, factorgraph.External); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulation) passes(ctx context.Context, mode factorgraph.MessagePassingMode) error {
	graphs := s.registry.Graphs()
	for _, pass := range []func(*factorgraph.FactorGraph, factorgraph.MessagePassingMode, factorgraph.GraphView) error{
		(*factorgraph.FactorGraph).FactorPass,
		(*factorgraph.FactorGraph).VariablePass,
	} {
		group, _ := errgroup.WithContext(ctx)
		for _, g := range graphs {
			group.Go(func() error {
				return pass(g, mode, s.registry)
			})
		}
		if err := group.Wait(); err != nil {
			return errors.Wrapf(err, "%v message passing", mode)
		}
	}
	return nil
}

func (s *Simulation) updatePriors(ctx context.Context, deltaT float64) error {
	scale := deltaT / s.cfg.Simulation.T0
	fs := lo.Map(s.orderedRobots(), func(robot *Robot, _ int) utils.SimpleFunc {
		return func(context.Context) error {
			if err := robot.updateHorizon(deltaT); err != nil {
				return err
			}
			return robot.updateCurrent(scale)
		}
	})
	_, err := utils.RunInParallel(ctx, fs)
	return err
}

func (s *Simulation) collectCounts() (factorgraph.MessageCounts, int) {
	var counts factorgraph.MessageCounts
	invalid := 0
	for _, g := range s.registry.Graphs() {
		counts = counts.Add(g.Counts())
		g.ResetCounts()
		invalid += lo.CountBy(g.VariableStates(), func(state factorgraph.VariableState) bool { return !state.Valid })
	}
	return counts, invalid
}

func (s *Simulation) despawnArrived() {
	for _, robot := range s.orderedRobots() {
		if !robot.Arrived() {
			continue
		}
		if err := s.registry.Remove(robot.id); err != nil {
			s.logger.Errorw("cannot despawn robot", "robot", robot.id, "error", err)
			continue
		}
		robot.closeTask()
		delete(s.robots, robot.id)
		s.arrived++
		robot.logger.Infow("robot arrived", "robot", robot.id, "time", s.elapsed)
	}
}

// Package pathfinding plans collision-free 2D paths through a signed distance field with RRT*.
package pathfinding

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/golang/geo/r2"

	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/sdf"
	"go.viam.com/gbpplanner/utils"
)

// Problem is a single path query.
type Problem struct {
	Start r2.Point
	Goal  r2.Point
	Field sdf.Sampler
}

type node struct {
	p      r2.Point
	cost   float64
	parent *node
}

type neighbor struct {
	dist float64
	node *node
}

type rrtStar struct {
	problem  Problem
	opts     *Options
	logger   logging.Logger
	randseed *rand.Rand
	half     float64
}

// Plan runs RRT* until the goal is connected to the tree or the iteration bound is reached. The
// returned path starts at Start and ends at Goal.
func Plan(ctx context.Context, logger logging.Logger, problem Problem, opts *Options) ([]r2.Point, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	mp := &rrtStar{
		problem:  problem,
		opts:     opts,
		logger:   logger,
		randseed: rand.New(rand.NewSource(opts.Seed)), //nolint:gosec
		half:     problem.Field.WorldSize() / 2,
	}
	if !mp.free(problem.Start) {
		return nil, NewBlockedEndpointError("start")
	}
	if !mp.free(problem.Goal) {
		return nil, NewBlockedEndpointError("goal")
	}
	if mp.checkPath(problem.Start, problem.Goal) {
		return []r2.Point{problem.Start, problem.Goal}, nil
	}

	tree := []*node{{p: problem.Start}}
	logIteration := max(opts.PlanIter/10, 1)
	for i := 1; i <= opts.PlanIter; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sample := mp.sample()
		target := mp.steer(mp.nearest(tree, sample).p, sample)
		if added := mp.extend(&tree, target); added != nil {
			if added.p.Sub(problem.Goal).Norm() <= opts.StepSize && mp.checkPath(added.p, problem.Goal) {
				path := mp.smoothPath(append(pathTo(added), problem.Goal))
				mp.logger.Debugw("path found", "iterations", i, "nodes", len(tree), "waypoints", len(path))
				return path, nil
			}
		}

		if i%logIteration == 0 {
			mp.logger.Debugf("RRT* progress: %d%%\ttree size: %d", 100*i/opts.PlanIter, len(tree))
		}
	}
	return nil, NewPathfindingExhaustedError(opts.PlanIter)
}

func (mp *rrtStar) sample() r2.Point {
	if mp.randseed.Float64() < mp.opts.GoalBias {
		return mp.problem.Goal
	}
	return r2.Point{
		X: utils.SampleRandomFloatRange(-mp.half, mp.half, mp.randseed),
		Y: utils.SampleRandomFloatRange(-mp.half, mp.half, mp.randseed),
	}
}

// steer moves at most one step from near toward target.
func (mp *rrtStar) steer(near, target r2.Point) r2.Point {
	d := target.Sub(near)
	if n := d.Norm(); n > mp.opts.StepSize {
		return near.Add(d.Mul(mp.opts.StepSize / n))
	}
	return target
}

func (mp *rrtStar) nearest(tree []*node, target r2.Point) *node {
	bestDist := math.Inf(1)
	var best *node
	for _, n := range tree {
		if dist := n.p.Sub(target).Norm(); dist < bestDist {
			bestDist = dist
			best = n
		}
	}
	return best
}

func (mp *rrtStar) kNearestNeighbors(tree []*node, target r2.Point) []*neighbor {
	kNeighbors := min(mp.opts.NeighborhoodSize, len(tree))

	allCosts := make([]*neighbor, 0, len(tree))
	for _, n := range tree {
		allCosts = append(allCosts, &neighbor{dist: n.p.Sub(target).Norm(), node: n})
	}
	sort.Slice(allCosts, func(i, j int) bool {
		return allCosts[i].dist < allCosts[j].dist
	})
	return allCosts[:kNeighbors]
}

// extend adds target to the tree under its cheapest reachable neighbor and rewires the
// neighborhood through it. It returns nil when no neighbor can reach target.
func (mp *rrtStar) extend(tree *[]*node, target r2.Point) *node {
	if !mp.free(target) {
		return nil
	}

	// iterate over the k nearest neighbors and find the minimum cost to connect the target node to the tree
	neighbors := mp.kNearestNeighbors(*tree, target)
	minCost := math.Inf(1)
	minIndex := -1
	for i, neighbor := range neighbors {
		cost := neighbor.node.cost + neighbor.dist
		if cost < minCost && mp.checkPath(neighbor.node.p, target) {
			minIndex = i
			minCost = cost
		}
	}
	if minIndex < 0 {
		return nil
	}

	// add new node to tree as a child of the minimum cost neighbor node
	targetNode := &node{p: target, cost: minCost, parent: neighbors[minIndex].node}
	*tree = append(*tree, targetNode)

	// rewire the tree
	for i, neighbor := range neighbors {
		if i == minIndex {
			continue
		}
		cost := targetNode.cost + neighbor.dist
		if cost < neighbor.node.cost && mp.checkPath(target, neighbor.node.p) {
			mp.reparent(*tree, neighbor.node, targetNode, cost)
		}
	}
	return targetNode
}

// reparent moves n under parent and propagates the cost change to its descendants.
func (mp *rrtStar) reparent(tree []*node, n, parent *node, cost float64) {
	delta := cost - n.cost
	n.parent = parent
	n.cost = cost
	for _, other := range tree {
		if other != n && descendsFrom(other, n) {
			other.cost += delta
		}
	}
}

func descendsFrom(n, ancestor *node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func pathTo(n *node) []r2.Point {
	var path []r2.Point
	for ; n != nil; n = n.parent {
		path = append(path, n.p)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// smoothPath removes random intermediate waypoints whose neighbors see each other.
func (mp *rrtStar) smoothPath(path []r2.Point) []r2.Point {
	for iter := 0; iter < mp.opts.SmoothIter && len(path) > 2; iter++ {
		j := 2 + mp.randseed.Intn(len(path)-2)
		i := mp.randseed.Intn(j - 1)
		if mp.checkPath(path[i], path[j]) {
			path = append(path[:i+1], path[j:]...)
		}
	}
	return path
}

func (mp *rrtStar) free(p r2.Point) bool {
	if math.Abs(p.X) > mp.half || math.Abs(p.Y) > mp.half {
		return false
	}
	v, ok := mp.problem.Field.Sample(p.X, p.Y)
	return !ok || v >= mp.opts.FreeThreshold
}

func (mp *rrtStar) checkPath(from, to r2.Point) bool {
	d := to.Sub(from)
	steps := int(math.Ceil(d.Norm() / mp.opts.resolution()))
	for s := 0; s <= steps; s++ {
		t := 1.0
		if steps > 0 {
			t = float64(s) / float64(steps)
		}
		if !mp.free(from.Add(d.Mul(t))) {
			return false
		}
	}
	return true
}

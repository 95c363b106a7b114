package pathfinding

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/sdf"
)

// wallField is a 100x100 world with a vertical wall through x=0. The wall has a gap for
// 30 <= y < 46 unless closed is set.
func wallField(t *testing.T, closed bool) sdf.Sampler {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for row := 0; row < 100; row++ {
		if !closed && row >= 5 && row < 20 {
			continue
		}
		for col := 48; col <= 52; col++ {
			img.SetGray(col, row, color.Gray{Y: 0})
		}
	}
	field, err := sdf.NewImage(img, 100)
	test.That(t, err, test.ShouldBeNil)
	return field
}

func segmentsFree(problem Problem, opts *Options, path []r2.Point) bool {
	mp := &rrtStar{problem: problem, opts: opts, half: problem.Field.WorldSize() / 2}
	for i := 1; i < len(path); i++ {
		if !mp.checkPath(path[i-1], path[i]) {
			return false
		}
	}
	return true
}

func TestPlanStraightLine(t *testing.T) {
	logger := logging.NewTestLogger(t)
	problem := Problem{Start: r2.Point{X: -10, Y: -10}, Goal: r2.Point{X: 20, Y: 5}, Field: sdf.Clear{Size: 100}}
	path, err := Plan(context.Background(), logger, problem, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldResemble, []r2.Point{problem.Start, problem.Goal})
}

func TestPlanAroundWall(t *testing.T) {
	logger := logging.NewTestLogger(t)
	field := wallField(t, false)
	problem := Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 30, Y: 0}, Field: field}
	opts := NewOptions()
	opts.StepSize = 3
	opts.PlanIter = 20000
	opts.Seed = 7

	path, err := Plan(context.Background(), logger, problem, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(path), test.ShouldBeGreaterThan, 2)
	test.That(t, path[0], test.ShouldResemble, problem.Start)
	test.That(t, path[len(path)-1], test.ShouldResemble, problem.Goal)
	test.That(t, segmentsFree(problem, opts, path), test.ShouldBeTrue)

	crossed := false
	for _, p := range path {
		if p.Y > 25 {
			crossed = true
		}
	}
	test.That(t, crossed, test.ShouldBeTrue)
}

func TestPlanExhausted(t *testing.T) {
	logger := logging.NewTestLogger(t)
	problem := Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 30, Y: 0}, Field: wallField(t, true)}
	opts := NewOptions()
	opts.PlanIter = 300
	opts.StepSize = 3

	_, err := Plan(context.Background(), logger, problem, opts)
	test.That(t, errors.Is(err, ErrPathfindingExhausted), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "300")
}

func TestPlanBlockedEndpoints(t *testing.T) {
	logger := logging.NewTestLogger(t)
	field := wallField(t, true)

	_, err := Plan(context.Background(), logger, Problem{Start: r2.Point{X: 0, Y: 0}, Goal: r2.Point{X: 30, Y: 0}, Field: field}, nil)
	test.That(t, err, test.ShouldBeError, NewBlockedEndpointError("start"))

	_, err = Plan(context.Background(), logger, Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 0, Y: 10}, Field: field}, nil)
	test.That(t, err, test.ShouldBeError, NewBlockedEndpointError("goal"))

	_, err = Plan(context.Background(), logger, Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 80, Y: 0}, Field: field}, nil)
	test.That(t, err, test.ShouldBeError, NewBlockedEndpointError("goal"))
}

func TestTask(t *testing.T) {
	logger := logging.NewTestLogger(t)
	problem := Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 30, Y: 0}, Field: sdf.Clear{Size: 100}}
	task := Start(context.Background(), logger, problem, nil)
	defer task.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Err, test.ShouldBeNil)
	test.That(t, res.Path, test.ShouldHaveLength, 2)

	polled, ok := task.Poll()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, polled, test.ShouldResemble, res)
}

func TestTaskClose(t *testing.T) {
	logger := logging.NewTestLogger(t)
	problem := Problem{Start: r2.Point{X: -30, Y: 0}, Goal: r2.Point{X: 30, Y: 0}, Field: wallField(t, true)}
	opts := NewOptions()
	opts.PlanIter = 1 << 30

	task := Start(context.Background(), logger, problem, opts)
	_, ok := task.Poll()
	test.That(t, ok, test.ShouldBeFalse)

	task.Close()
	res, ok := task.Poll()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, errors.Is(res.Err, context.Canceled), test.ShouldBeTrue)
}

func TestOptionsFromMap(t *testing.T) {
	opts, err := OptionsFromMap(map[string]interface{}{"plan_iter": 50, "goal_bias": 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.PlanIter, test.ShouldEqual, 50)
	test.That(t, opts.GoalBias, test.ShouldEqual, 0.5)
	test.That(t, opts.StepSize, test.ShouldEqual, defaultStepSize)
	test.That(t, opts.NeighborhoodSize, test.ShouldEqual, defaultNeighborhoodSize)

	_, err = OptionsFromMap(map[string]interface{}{"goal_bias": 1.5})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = OptionsFromMap(map[string]interface{}{"step_size": "far"})
	test.That(t, err, test.ShouldNotBeNil)
}

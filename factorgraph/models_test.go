package factorgraph

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/gbpplanner/sdf"
)

func TestInterRobotSkip(t *testing.T) {
	model := NewInterRobotFactor(1, 0.01, 1)
	safety := model.SafetyDistance()
	test.That(t, safety, test.ShouldAlmostEqual, 2.2)

	at := func(d float64) *mat.VecDense {
		return vec(0, 0, 0, 0, d, 0, 0, 0)
	}

	test.That(t, model.Skip(at(safety+1e-3)), test.ShouldBeTrue)
	test.That(t, model.Skip(at(safety-1e-3)), test.ShouldBeFalse)

	h := model.Measure(at(safety - 1e-3)).AtVec(0)
	test.That(t, h, test.ShouldBeGreaterThan, 0)
	test.That(t, h, test.ShouldBeLessThan, 1)

	previous := h
	for _, d := range []float64{2, 1.5, 1, 0.5, 0.1} {
		next := model.Measure(at(d)).AtVec(0)
		test.That(t, next, test.ShouldBeGreaterThan, previous)
		test.That(t, next, test.ShouldBeLessThan, 1)
		previous = next
	}

	test.That(t, model.Measure(at(10)).AtVec(0), test.ShouldEqual, 0.)
	test.That(t, model.Neighbours(), test.ShouldEqual, 2)
	test.That(t, model.Linear(), test.ShouldBeFalse)
}

func TestInterRobotJacobian(t *testing.T) {
	model := NewInterRobotFactor(1, 0.01, 1)
	x := vec(0, 0, 0, 0, 1, 0, 0, 0)

	jac := model.Jacobian(x)
	r, c := jac.Dims()
	test.That(t, r, test.ShouldEqual, 1)
	test.That(t, c, test.ShouldEqual, 2*DOFS)
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 1/2.2, 1e-5)
	test.That(t, jac.At(0, DOFS), test.ShouldAlmostEqual, -1/2.2, 1e-5)

	numeric := FirstOrderJacobian(model, x)
	test.That(t, mat.EqualApprox(jac, numeric, 1e-2), test.ShouldBeTrue)

	// the coincidence offset keeps the jacobian finite for overlapping robots
	test.That(t, allFinite(model.Jacobian(vec(3, 3, 0, 0, 3, 3, 0, 0))), test.ShouldBeTrue)
}

func TestInterRobotCoincidentWithFirstGraph(t *testing.T) {
	model := NewInterRobotFactor(1, 0.01, 0)
	x := vec(3, 3, 0, 0, 3, 3, 0, 0)

	test.That(t, model.Skip(x), test.ShouldBeFalse)
	h := model.Measure(x)
	test.That(t, h.AtVec(0), test.ShouldBeLessThan, 1)
	test.That(t, h.AtVec(0), test.ShouldAlmostEqual, 1, 1e-5)
	jac := model.Jacobian(x)
	test.That(t, allFinite(jac), test.ShouldBeTrue)
	test.That(t, jac.At(0, 0), test.ShouldNotEqual, 0.)
}

func TestDynamicFactor(t *testing.T) {
	model := NewDynamicFactor(0.5, 0.1)
	test.That(t, model.DeltaT(), test.ShouldEqual, 0.5)

	a := model.Jacobian(vec(0, 0, 1, 0, 0.5, 0, 1, 0))
	b := model.Jacobian(vec(9, -3, 2, 7, 1, 1, 1, 1))
	r, c := a.Dims()
	test.That(t, r, test.ShouldEqual, DOFS)
	test.That(t, c, test.ShouldEqual, 2*DOFS)
	test.That(t, mat.Equal(a, b), test.ShouldBeTrue)
	test.That(t, model.Linear(), test.ShouldBeTrue)

	precision := model.MeasurementPrecision()
	test.That(t, precision.At(0, 0), test.ShouldAlmostEqual, 9600)
	test.That(t, precision.At(0, 2), test.ShouldAlmostEqual, -2400)
	test.That(t, precision.At(3, 1), test.ShouldAlmostEqual, -2400)
	test.That(t, precision.At(2, 2), test.ShouldAlmostEqual, 800)
	test.That(t, precision.At(0, 1), test.ShouldEqual, 0.)

	// consistent with constant velocity
	h := model.Measure(vec(0, 0, 1, 0, 0.5, 0, 1, 0))
	test.That(t, mat.Norm(h, 2), test.ShouldAlmostEqual, 0)
	h = model.Measure(vec(0, 0, 1, 0, 0, 0, 1, 0))
	test.That(t, h.AtVec(0), test.ShouldAlmostEqual, 0.5)

	test.That(t, mat.EqualApprox(FirstOrderJacobian(model, vec(1, 2, 3, 4, 5, 6, 7, 8)), a, 1e-4), test.ShouldBeTrue)
}

func TestObstacleFactor(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(5, 4, color.Gray{Y: 0})
	field, err := sdf.NewImage(img, 10)
	test.That(t, err, test.ShouldBeNil)

	model := NewObstacleFactor(field, 0.01)
	test.That(t, model.JacobianDelta(), test.ShouldAlmostEqual, 1)
	test.That(t, model.Neighbours(), test.ShouldEqual, 1)

	// pixel (5, 4) covers x in [0, 1), y in (0, 1]
	test.That(t, model.Measure(vec(0.5, 0.5, 0, 0)).AtVec(0), test.ShouldAlmostEqual, 1)
	test.That(t, model.Measure(vec(-3, -3, 0, 0)).AtVec(0), test.ShouldAlmostEqual, 0)

	for _, p := range [][2]float64{{5.5, 0}, {-5.5, 0}, {0, 5.5}, {0, -5.5}, {100, 100}} {
		test.That(t, model.Measure(vec(p[0], p[1], 0, 0)).AtVec(0), test.ShouldEqual, 0.)
	}

	jac := model.Jacobian(vec(-0.5, 0.5, 0, 0))
	r, c := jac.Dims()
	test.That(t, r, test.ShouldEqual, 1)
	test.That(t, c, test.ShouldEqual, DOFS)
	// one pixel to the right is the obstacle
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 1)

	clear := NewObstacleFactor(sdf.Clear{Size: 10}, 0.01)
	test.That(t, clear.Measure(vec(0, 0, 0, 0)).AtVec(0), test.ShouldEqual, 0.)
}

func TestPoseFactor(t *testing.T) {
	model, err := NewPoseFactor(vec(1, 2, 3, 4), 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(model.Measure(vec(4, 3, 2, 1)), vec(4, 3, 2, 1)), test.ShouldBeTrue)
	test.That(t, model.MeasurementPrecision().At(1, 1), test.ShouldAlmostEqual, 0.25)

	test.That(t, model.Retarget(vec(0, 0, 0, 0)), test.ShouldBeNil)
	test.That(t, mat.Norm(model.Measurement(), 2), test.ShouldEqual, 0.)
	test.That(t, model.Retarget(vec(0, 0)), test.ShouldNotBeNil)

	_, err = NewPoseFactor(vec(1), 1)
	test.That(t, err, test.ShouldNotBeNil)
}

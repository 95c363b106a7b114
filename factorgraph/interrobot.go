package factorgraph

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	interRobotJacobianDelta = 1e-2
	// safetyMargin is added on top of the two radii.
	safetyMargin = 0.2
	// coincidenceOffset separates exactly coincident robots, scaled by one plus the other graph's
	// id so it is never zero.
	coincidenceOffset = 1e-6
)

// InterRobotFactor repels two variables of different robots once they are closer than the safety
// distance. With d the separation, h(x) = 1 - |d|/safety inside the safety distance and 0 outside.
type InterRobotFactor struct {
	safetyDistance float64
	other          GraphID
	precision      *mat.Dense
	measurement    *mat.VecDense
}

// NewInterRobotFactor returns a factor for robots of the given radius, connecting to a variable in
// the graph other.
func NewInterRobotFactor(radius, strength float64, other GraphID) *InterRobotFactor {
	return &InterRobotFactor{
		safetyDistance: 2*radius + safetyMargin*radius,
		other:          other,
		precision:      isotropicPrecision(1, strength),
		measurement:    mat.NewVecDense(1, nil),
	}
}

// SafetyDistance returns the separation below which the factor contributes.
func (f *InterRobotFactor) SafetyDistance() float64 {
	return f.safetyDistance
}

// Other returns the graph of the external variable.
func (f *InterRobotFactor) Other() GraphID {
	return f.other
}

func (f *InterRobotFactor) separation(x *mat.VecDense) (dx, dy float64) {
	offset := coincidenceOffset * float64(f.other+1)
	dx = x.AtVec(0) - x.AtVec(DOFS) + offset
	dy = x.AtVec(1) - x.AtVec(DOFS+1) + offset
	return dx, dy
}

// Kind is InterRobotKind.
func (f *InterRobotFactor) Kind() Kind { return InterRobotKind }

// Measure returns 1 - |d|/safety inside the safety distance, else 0.
func (f *InterRobotFactor) Measure(x *mat.VecDense) *mat.VecDense {
	dx, dy := f.separation(x)
	r := math.Hypot(dx, dy)
	if r > f.safetyDistance {
		return mat.NewVecDense(1, []float64{0})
	}
	return mat.NewVecDense(1, []float64{1 - r/f.safetyDistance})
}

// Jacobian is the unit separation scaled by -1/(safety*|d|) for the first variable and its
// negation for the second.
func (f *InterRobotFactor) Jacobian(x *mat.VecDense) *mat.Dense {
	jac := mat.NewDense(1, 2*DOFS, nil)
	dx, dy := f.separation(x)
	r := math.Hypot(dx, dy)
	if r > f.safetyDistance {
		return jac
	}
	scale := -1 / f.safetyDistance / r
	jac.Set(0, 0, scale*dx)
	jac.Set(0, 1, scale*dy)
	jac.Set(0, DOFS, -scale*dx)
	jac.Set(0, DOFS+1, -scale*dy)
	return jac
}

// Skip is true while the robots are at least the safety distance apart.
func (f *InterRobotFactor) Skip(x *mat.VecDense) bool {
	dx, dy := f.separation(x)
	return dx*dx+dy*dy >= f.safetyDistance*f.safetyDistance
}

// Neighbours is 2.
func (f *InterRobotFactor) Neighbours() int { return 2 }

// Linear is false.
func (f *InterRobotFactor) Linear() bool { return false }

// JacobianDelta is the finite difference step.
func (f *InterRobotFactor) JacobianDelta() float64 { return interRobotJacobianDelta }

// Measurement is zero.
func (f *InterRobotFactor) Measurement() *mat.VecDense { return f.measurement }

// MeasurementPrecision is 1/strength^2.
func (f *InterRobotFactor) MeasurementPrecision() *mat.Dense { return f.precision }

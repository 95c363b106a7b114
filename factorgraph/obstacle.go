package factorgraph

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/gbpplanner/sdf"
)

// ObstacleFactor is a unary penalty on a variable's position sampled from a signed distance field.
// Dark pixels are obstacles: h(x) = 1 - intensity/255, and 0 outside the field.
type ObstacleFactor struct {
	field       sdf.Sampler
	precision   *mat.Dense
	measurement *mat.VecDense
}

// NewObstacleFactor returns an obstacle factor sampling field with the given noise strength.
func NewObstacleFactor(field sdf.Sampler, strength float64) *ObstacleFactor {
	return &ObstacleFactor{
		field:       field,
		precision:   isotropicPrecision(1, strength),
		measurement: mat.NewVecDense(1, nil),
	}
}

// Kind is ObstacleKind.
func (f *ObstacleFactor) Kind() Kind { return ObstacleKind }

// Measure samples the field at the position part of x.
func (f *ObstacleFactor) Measure(x *mat.VecDense) *mat.VecDense {
	intensity, ok := f.field.Sample(x.AtVec(0), x.AtVec(1))
	if !ok {
		return mat.NewVecDense(1, []float64{0})
	}
	return mat.NewVecDense(1, []float64{1 - float64(intensity)/255})
}

// Jacobian is approximated by finite differences one pixel wide.
func (f *ObstacleFactor) Jacobian(x *mat.VecDense) *mat.Dense {
	return FirstOrderJacobian(f, x)
}

// Skip is always false.
func (f *ObstacleFactor) Skip(*mat.VecDense) bool { return false }

// Neighbours is 1.
func (f *ObstacleFactor) Neighbours() int { return 1 }

// Linear is false.
func (f *ObstacleFactor) Linear() bool { return false }

// JacobianDelta is the world size of one pixel, since the field is constant within a pixel.
func (f *ObstacleFactor) JacobianDelta() float64 {
	width := f.field.Bounds().X
	if width <= 0 {
		return f.field.WorldSize()
	}
	return f.field.WorldSize() / float64(width)
}

// Measurement is zero.
func (f *ObstacleFactor) Measurement() *mat.VecDense { return f.measurement }

// MeasurementPrecision is 1/strength^2.
func (f *ObstacleFactor) MeasurementPrecision() *mat.Dense { return f.precision }

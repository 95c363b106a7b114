package factorgraph

import (
	"gonum.org/v1/gonum/mat"
)

const poseJacobianDelta = 1e-8

// PoseFactor is a unary soft prior on a variable's full state. h(x) = x.
type PoseFactor struct {
	target    *mat.VecDense
	precision *mat.Dense
	jacobian  *mat.Dense
}

// NewPoseFactor returns a pose factor pulling toward target with the given noise strength.
func NewPoseFactor(target *mat.VecDense, strength float64) (*PoseFactor, error) {
	if target.Len() != DOFS {
		return nil, NewDimensionMismatchError(DOFS, target.Len())
	}
	identity := mat.NewDense(DOFS, DOFS, nil)
	for i := 0; i < DOFS; i++ {
		identity.Set(i, i, 1)
	}
	return &PoseFactor{
		target:    mat.VecDenseCopyOf(target),
		precision: isotropicPrecision(DOFS, strength),
		jacobian:  identity,
	}, nil
}

// Retarget moves the target state.
func (f *PoseFactor) Retarget(target *mat.VecDense) error {
	if target.Len() != DOFS {
		return NewDimensionMismatchError(DOFS, target.Len())
	}
	f.target = mat.VecDenseCopyOf(target)
	return nil
}

// Target returns the target state.
func (f *PoseFactor) Target() *mat.VecDense {
	return f.target
}

// Kind is PoseKind.
func (f *PoseFactor) Kind() Kind { return PoseKind }

// Measure returns x.
func (f *PoseFactor) Measure(x *mat.VecDense) *mat.VecDense {
	return mat.VecDenseCopyOf(x)
}

// Jacobian returns the identity.
func (f *PoseFactor) Jacobian(*mat.VecDense) *mat.Dense {
	return f.jacobian
}

// Skip is always false.
func (f *PoseFactor) Skip(*mat.VecDense) bool { return false }

// Neighbours is 1.
func (f *PoseFactor) Neighbours() int { return 1 }

// Linear is true.
func (f *PoseFactor) Linear() bool { return true }

// JacobianDelta is the finite difference step.
func (f *PoseFactor) JacobianDelta() float64 { return poseJacobianDelta }

// Measurement is the target state.
func (f *PoseFactor) Measurement() *mat.VecDense { return f.target }

// MeasurementPrecision is I/strength^2.
func (f *PoseFactor) MeasurementPrecision() *mat.Dense { return f.precision }

package factorgraph

import (
	"gonum.org/v1/gonum/mat"
)

const dynamicJacobianDelta = 1e-8

// DynamicFactor is a constant-velocity process model between two consecutive variables of one
// robot. With x = [p0, v0, p1, v1], h(x) = [p0 + dt*v0 - p1, v0 - v1].
type DynamicFactor struct {
	deltaT      float64
	precision   *mat.Dense
	jacobian    *mat.Dense
	measurement *mat.VecDense
}

// NewDynamicFactor returns a dynamic factor for the time step deltaT between its two variables
// and process noise strength.
func NewDynamicFactor(deltaT, strength float64) *DynamicFactor {
	const half = DOFS / 2
	qcInv := 1 / (strength * strength)

	// Noise precision of the constant velocity model, one 2x2 isotropic block per coefficient.
	precision := mat.NewDense(DOFS, DOFS, nil)
	dt2, dt3 := deltaT*deltaT, deltaT*deltaT*deltaT
	for i := 0; i < half; i++ {
		precision.Set(i, i, 12/dt3*qcInv)
		precision.Set(i, half+i, -6/dt2*qcInv)
		precision.Set(half+i, i, -6/dt2*qcInv)
		precision.Set(half+i, half+i, 4/deltaT*qcInv)
	}

	jacobian := mat.NewDense(DOFS, 2*DOFS, nil)
	for i := 0; i < half; i++ {
		// position row: p0 + dt*v0 - p1
		jacobian.Set(i, i, 1)
		jacobian.Set(i, half+i, deltaT)
		jacobian.Set(i, DOFS+i, -1)
		// velocity row: v0 - v1
		jacobian.Set(half+i, half+i, 1)
		jacobian.Set(half+i, DOFS+half+i, -1)
	}

	return &DynamicFactor{
		deltaT:      deltaT,
		precision:   precision,
		jacobian:    jacobian,
		measurement: mat.NewVecDense(DOFS, nil),
	}
}

// DeltaT returns the time step between the two variables.
func (f *DynamicFactor) DeltaT() float64 {
	return f.deltaT
}

// Kind is DynamicKind.
func (f *DynamicFactor) Kind() Kind { return DynamicKind }

// Measure returns J*x.
func (f *DynamicFactor) Measure(x *mat.VecDense) *mat.VecDense {
	var h mat.VecDense
	h.MulVec(f.jacobian, x)
	return &h
}

// Jacobian returns the fixed block matrix built from deltaT.
func (f *DynamicFactor) Jacobian(*mat.VecDense) *mat.Dense {
	return f.jacobian
}

// Skip is always false.
func (f *DynamicFactor) Skip(*mat.VecDense) bool { return false }

// Neighbours is 2.
func (f *DynamicFactor) Neighbours() int { return 2 }

// Linear is true.
func (f *DynamicFactor) Linear() bool { return true }

// JacobianDelta is the finite difference step.
func (f *DynamicFactor) JacobianDelta() float64 { return dynamicJacobianDelta }

// Measurement is zero.
func (f *DynamicFactor) Measurement() *mat.VecDense { return f.measurement }

// MeasurementPrecision is the constant velocity noise precision.
func (f *DynamicFactor) MeasurementPrecision() *mat.Dense { return f.precision }

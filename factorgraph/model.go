package factorgraph

import (
	"gonum.org/v1/gonum/mat"
)

// DOFS is the number of degrees of freedom of every variable: [x, y, vx, vy].
const DOFS = 4

// Kind enumerates the factor models.
type Kind int

const (
	// PoseKind is a unary prior pulling a variable toward a target state.
	PoseKind Kind = iota
	// DynamicKind is a constant-velocity process model between consecutive variables.
	DynamicKind
	// ObstacleKind is a unary penalty sampled from a signed distance field.
	ObstacleKind
	// InterRobotKind is a binary repulsion between variables of two robots.
	InterRobotKind
)

func (k Kind) String() string {
	switch k {
	case PoseKind:
		return "pose"
	case DynamicKind:
		return "dynamic"
	case ObstacleKind:
		return "obstacle"
	case InterRobotKind:
		return "interrobot"
	default:
		return "unknown"
	}
}

// Model is the measurement model of a factor. `x` is always the concatenation of the adjacent
// variables' linearisation points, in ascending variable order.
type Model interface {
	Kind() Kind
	// Measure is the measurement function h(x).
	Measure(x *mat.VecDense) *mat.VecDense
	// Jacobian of h at x, analytic or by finite differences.
	Jacobian(x *mat.VecDense) *mat.Dense
	// Skip reports whether the factor has nothing to contribute at x.
	Skip(x *mat.VecDense) bool
	// Neighbours is the arity of the factor.
	Neighbours() int
	// Linear reports whether h is linear in x, allowing the Jacobian to be cached.
	Linear() bool
	// JacobianDelta is the perturbation used for finite differences.
	JacobianDelta() float64
	// Measurement is the target measurement z.
	Measurement() *mat.VecDense
	// MeasurementPrecision is the precision of the measurement noise.
	MeasurementPrecision() *mat.Dense
}

// FirstOrderJacobian approximates the Jacobian of m at x with forward differences of size
// m.JacobianDelta().
func FirstOrderJacobian(m Model, x *mat.VecDense) *mat.Dense {
	h0 := m.Measure(x)
	delta := m.JacobianDelta()
	jac := mat.NewDense(h0.Len(), x.Len(), nil)
	perturbed := mat.VecDenseCopyOf(x)
	for i := 0; i < x.Len(); i++ {
		perturbed.SetVec(i, x.AtVec(i)+delta)
		var diff mat.VecDense
		diff.SubVec(m.Measure(perturbed), h0)
		diff.ScaleVec(1/delta, &diff)
		jac.SetCol(i, diff.RawVector().Data)
		perturbed.SetVec(i, x.AtVec(i))
	}
	return jac
}

// isotropicPrecision returns I/strength^2 of the given size.
func isotropicPrecision(dim int, strength float64) *mat.Dense {
	out := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		out.Set(i, i, 1/(strength*strength))
	}
	return out
}

package factorgraph

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is a multivariate normal distribution in information form.
type Gaussian struct {
	information *mat.VecDense
	precision   *mat.Dense
}

// ZeroGaussian returns a Gaussian carrying no information.
func ZeroGaussian(dofs int) Gaussian {
	return Gaussian{
		information: mat.NewVecDense(dofs, nil),
		precision:   mat.NewDense(dofs, dofs, nil),
	}
}

// NewGaussian returns a Gaussian from an information vector and a precision matrix.
func NewGaussian(information *mat.VecDense, precision *mat.Dense) (Gaussian, error) {
	r, c := precision.Dims()
	if r != c {
		return Gaussian{}, errors.Wrapf(ErrDimensionMismatch, "precision matrix is %dx%d", r, c)
	}
	if information.Len() != r {
		return Gaussian{}, NewDimensionMismatchError(r, information.Len())
	}
	return Gaussian{information: information, precision: precision}, nil
}

// Dofs returns the number of degrees of freedom.
func (g Gaussian) Dofs() int {
	if g.information == nil {
		return 0
	}
	return g.information.Len()
}

// Information returns the information vector, precision times mean.
func (g Gaussian) Information() *mat.VecDense {
	return g.information
}

// Precision returns the precision matrix, the inverse covariance.
func (g Gaussian) Precision() *mat.Dense {
	return g.precision
}

// Clone returns a deep copy.
func (g Gaussian) Clone() Gaussian {
	return Gaussian{
		information: mat.VecDenseCopyOf(g.information),
		precision:   mat.DenseCopyOf(g.precision),
	}
}

// Add returns the element-wise sum of both the information vectors and the precision matrices.
func (g Gaussian) Add(other Gaussian) (Gaussian, error) {
	if g.Dofs() != other.Dofs() {
		return Gaussian{}, NewDimensionMismatchError(g.Dofs(), other.Dofs())
	}
	out := ZeroGaussian(g.Dofs())
	out.information.AddVec(g.information, other.information)
	out.precision.Add(g.precision, other.precision)
	return out, nil
}

// Sub returns the element-wise difference of both the information vectors and the precision
// matrices.
func (g Gaussian) Sub(other Gaussian) (Gaussian, error) {
	if g.Dofs() != other.Dofs() {
		return Gaussian{}, NewDimensionMismatchError(g.Dofs(), other.Dofs())
	}
	out := ZeroGaussian(g.Dofs())
	out.information.SubVec(g.information, other.information)
	out.precision.Sub(g.precision, other.precision)
	return out, nil
}

// Covariance returns the inverse of the precision matrix. ErrSingularPrecision is returned when
// the inverse does not exist or is not finite.
func (g Gaussian) Covariance() (*mat.Dense, error) {
	return invert(g.precision)
}

// Mean returns covariance times information.
func (g Gaussian) Mean() (*mat.VecDense, error) {
	cov, err := g.Covariance()
	if err != nil {
		return nil, err
	}
	var mean mat.VecDense
	mean.MulVec(cov, g.information)
	return &mean, nil
}

// invert inverts a square matrix. An ill-conditioned but finite inverse is accepted.
func invert(m mat.Matrix) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errors.Wrap(ErrSingularPrecision, err.Error())
		}
	}
	if !allFinite(&inv) {
		return nil, ErrSingularPrecision
	}
	return &inv, nil
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

package factorgraph

import (
	"errors"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

func diag(values ...float64) *mat.Dense {
	out := mat.NewDense(len(values), len(values), nil)
	for i, v := range values {
		out.Set(i, i, v)
	}
	return out
}

func TestGaussianAddSub(t *testing.T) {
	a, err := NewGaussian(vec(1, 2), mat.NewDense(2, 2, []float64{2, 0.5, 0.5, 3}))
	test.That(t, err, test.ShouldBeNil)
	b, err := NewGaussian(vec(-4, 0.25), mat.NewDense(2, 2, []float64{1, 0.1, 0.1, 7}))
	test.That(t, err, test.ShouldBeNil)

	sum, err := a.Add(b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sum.Information().AtVec(0), test.ShouldAlmostEqual, -3)
	test.That(t, sum.Precision().At(1, 1), test.ShouldAlmostEqual, 10)

	back, err := sum.Sub(b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(back.Information(), a.Information(), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(back.Precision(), a.Precision(), 1e-12), test.ShouldBeTrue)

	// operands are untouched
	test.That(t, a.Information().AtVec(0), test.ShouldEqual, 1.)
}

func TestGaussianDimensionMismatch(t *testing.T) {
	_, err := ZeroGaussian(2).Add(ZeroGaussian(4))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	_, err = ZeroGaussian(4).Sub(ZeroGaussian(2))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	_, err = NewGaussian(vec(1, 2, 3), diag(1, 1))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	_, err = NewGaussian(vec(1, 2), mat.NewDense(2, 3, nil))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestGaussianMeanCovariance(t *testing.T) {
	g, err := NewGaussian(vec(2, 8), diag(2, 4))
	test.That(t, err, test.ShouldBeNil)

	mean, err := g.Mean()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mean.AtVec(0), test.ShouldAlmostEqual, 1)
	test.That(t, mean.AtVec(1), test.ShouldAlmostEqual, 2)

	cov, err := g.Covariance()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cov.At(0, 0), test.ShouldAlmostEqual, 0.5)
	test.That(t, cov.At(1, 1), test.ShouldAlmostEqual, 0.25)

	_, err = ZeroGaussian(DOFS).Mean()
	test.That(t, errors.Is(err, ErrSingularPrecision), test.ShouldBeTrue)
	_, err = ZeroGaussian(DOFS).Covariance()
	test.That(t, errors.Is(err, ErrSingularPrecision), test.ShouldBeTrue)
}

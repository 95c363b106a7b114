package factorgraph

import (
	"errors"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestMessageTake(t *testing.T) {
	eta := vec(0.1, 0.2, 0.3, 0.4)
	lam := diag(1, 2, 3, 4)
	mu := vec(0.1, 0.1, 0.1, 0.1)
	msg, err := NewMessage(eta, lam, mu)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.IsEmpty(), test.ShouldBeFalse)
	test.That(t, msg.Dofs(), test.ShouldEqual, DOFS)

	taken := msg.Take()
	test.That(t, msg.IsEmpty(), test.ShouldBeTrue)
	test.That(t, msg.Dofs(), test.ShouldEqual, DOFS)

	gotEta, ok := taken.Information()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mat.Equal(gotEta, eta), test.ShouldBeTrue)
	gotLam, ok := taken.Precision()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mat.Equal(gotLam, lam), test.ShouldBeTrue)
	gotMu, ok := taken.Mean()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mat.Equal(gotMu, mu), test.ShouldBeTrue)

	again := msg.Take()
	test.That(t, again.IsEmpty(), test.ShouldBeTrue)
}

func TestEmptyMessage(t *testing.T) {
	msg := EmptyMessage(DOFS)
	test.That(t, msg.IsEmpty(), test.ShouldBeTrue)
	test.That(t, msg.Dofs(), test.ShouldEqual, DOFS)

	_, ok := msg.Information()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = msg.Precision()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = msg.Mean()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = msg.Gaussian()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestNewMessageDimensionMismatch(t *testing.T) {
	_, err := NewMessage(vec(1, 2, 3, 4), diag(1, 1, 1, 1), vec(1, 2))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	_, err = NewMessage(vec(1, 2), diag(1, 1, 1, 1), vec(1, 2, 3, 4))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

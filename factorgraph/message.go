package factorgraph

import (
	"gonum.org/v1/gonum/mat"
)

// Message is what one node tells a neighbour. An empty message means the sender has nothing to
// say; receivers skip it rather than treating it as a zero-information Gaussian.
type Message struct {
	payload *payload
	dofs    int
}

type payload struct {
	gaussian Gaussian
	mean     *mat.VecDense
}

// EmptyMessage returns a message without payload.
func EmptyMessage(dofs int) Message {
	return Message{dofs: dofs}
}

// NewMessage returns a message carrying a Gaussian. The mean is cached alongside the information
// form so receivers do not need to invert the precision matrix.
func NewMessage(information *mat.VecDense, precision *mat.Dense, mean *mat.VecDense) (Message, error) {
	gaussian, err := NewGaussian(information, precision)
	if err != nil {
		return Message{}, err
	}
	if mean.Len() != gaussian.Dofs() {
		return Message{}, NewDimensionMismatchError(gaussian.Dofs(), mean.Len())
	}
	return Message{payload: &payload{gaussian: gaussian, mean: mean}, dofs: gaussian.Dofs()}, nil
}

// IsEmpty reports whether the message has no payload.
func (m Message) IsEmpty() bool {
	return m.payload == nil
}

// Dofs returns the degrees of freedom of the message.
func (m Message) Dofs() int {
	return m.dofs
}

// Take returns the message and leaves the receiver empty.
func (m *Message) Take() Message {
	out := *m
	m.payload = nil
	return out
}

// Gaussian returns the payload, if any.
func (m Message) Gaussian() (Gaussian, bool) {
	if m.payload == nil {
		return Gaussian{}, false
	}
	return m.payload.gaussian, true
}

// Information returns the information vector of the payload, if any.
func (m Message) Information() (*mat.VecDense, bool) {
	if m.payload == nil {
		return nil, false
	}
	return m.payload.gaussian.information, true
}

// Precision returns the precision matrix of the payload, if any.
func (m Message) Precision() (*mat.Dense, bool) {
	if m.payload == nil {
		return nil, false
	}
	return m.payload.gaussian.precision, true
}

// Mean returns the cached mean of the payload, if any.
func (m Message) Mean() (*mat.VecDense, bool) {
	if m.payload == nil {
		return nil, false
	}
	return m.payload.mean, true
}

package factorgraph

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// precisionThreshold is the value some precision entry must exceed before the belief is inverted.
// Negative entries do not count. Below it the variable has no usable information and keeps its
// last mean.
const precisionThreshold = 1e-6

// Variable is a variable node holding a robot's estimated state at one planning horizon.
type Variable struct {
	id     VariableID
	prior  Gaussian
	belief Gaussian

	mean       *mat.VecDense
	covariance *mat.Dense
	valid      bool

	inbox  *mailbox[FactorID]
	outbox *mailbox[FactorID]
	counts MessageCounts
}

// newVariable returns a variable with a prior. Non-finite prior precision entries mean "no prior"
// and are replaced by zero.
func newVariable(id VariableID, priorMean *mat.VecDense, priorPrecision *mat.Dense) (*Variable, error) {
	r, c := priorPrecision.Dims()
	if r != DOFS || c != DOFS {
		return nil, NewDimensionMismatchError(DOFS, r)
	}
	if priorMean.Len() != DOFS {
		return nil, NewDimensionMismatchError(DOFS, priorMean.Len())
	}
	precision := mat.DenseCopyOf(priorPrecision)
	precision.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}, precision)

	var information mat.VecDense
	information.MulVec(precision, priorMean)
	prior := Gaussian{information: &information, precision: precision}

	v := &Variable{
		id:     id,
		prior:  prior,
		belief: prior.Clone(),
		mean:   mat.VecDenseCopyOf(priorMean),
		inbox:  newMailbox[FactorID](),
		outbox: newMailbox[FactorID](),
	}
	if cov, err := prior.Covariance(); err == nil {
		v.covariance = cov
		v.valid = true
	} else {
		v.covariance = mat.NewDense(DOFS, DOFS, nil)
	}
	return v, nil
}

// ID returns the variable's id.
func (v *Variable) ID() VariableID {
	return v.id
}

// Mean returns the estimated state.
func (v *Variable) Mean() *mat.VecDense {
	return v.mean
}

// Covariance returns the covariance of the belief.
func (v *Variable) Covariance() *mat.Dense {
	return v.covariance
}

// Valid reports whether the covariance is finite.
func (v *Variable) Valid() bool {
	return v.valid
}

// Belief returns the belief in information form.
func (v *Variable) Belief() Gaussian {
	return v.belief
}

// Prior returns the prior in information form.
func (v *Variable) Prior() Gaussian {
	return v.prior
}

// Factors returns the adjacent factors in ascending order.
func (v *Variable) Factors() []FactorID {
	return v.inbox.ids()
}

// Counts returns the messages sent and received by this variable.
func (v *Variable) Counts() MessageCounts {
	return v.counts
}

// Outgoing returns the message currently addressed to factor.
func (v *Variable) Outgoing(factor FactorID) (Message, bool) {
	return v.outbox.get(factor)
}

// Incoming returns the message last received from factor.
func (v *Variable) Incoming(factor FactorID) (Message, bool) {
	return v.inbox.get(factor)
}

// AddFactor connects the variable to a factor. The variable starts by telling the factor its
// current belief.
func (v *Variable) AddFactor(factor FactorID) {
	v.inbox.set(factor, EmptyMessage(DOFS))
	v.outbox.set(factor, v.beliefMessage())
}

// RemoveFactor disconnects the variable from a factor.
func (v *Variable) RemoveFactor(factor FactorID) bool {
	v.outbox.remove(factor)
	return v.inbox.remove(factor)
}

func (v *Variable) receive(factor FactorID, msg Message) error {
	if msg.Dofs() != DOFS {
		return NewDimensionMismatchError(DOFS, msg.Dofs())
	}
	if _, ok := v.inbox.get(factor); !ok {
		return NewNodeNotFoundError(factor)
	}
	if !msg.IsEmpty() {
		v.counts.of(modeBetween(v.id.Graph, factor.Graph)).Received++
	}
	v.inbox.set(factor, msg)
	return nil
}

// ChangePrior moves the prior to mean while keeping its precision. The belief takes the new mean,
// every adjacent factor is sent the belief, and the inbox is cleared.
func (v *Variable) ChangePrior(mean *mat.VecDense) error {
	if mean.Len() != DOFS {
		return NewDimensionMismatchError(DOFS, mean.Len())
	}
	var information mat.VecDense
	information.MulVec(v.prior.precision, mean)
	v.prior.information = &information
	v.mean = mat.VecDenseCopyOf(mean)

	for _, factor := range v.inbox.ids() {
		msg := v.beliefMessage()
		if !msg.IsEmpty() {
			v.counts.of(modeBetween(v.id.Graph, factor.Graph)).Sent++
		}
		v.outbox.set(factor, msg)
		v.inbox.take(factor)
	}
	return nil
}

func (v *Variable) beliefMessage() Message {
	return Message{
		payload: &payload{gaussian: v.belief.Clone(), mean: mat.VecDenseCopyOf(v.mean)},
		dofs:    DOFS,
	}
}

// update recomputes the belief from the prior and the inbox, then fills the outbox with the
// belief minus what each factor contributed.
func (v *Variable) update() error {
	belief := v.prior.Clone()
	for _, factor := range v.inbox.ids() {
		msg, _ := v.inbox.get(factor)
		gaussian, ok := msg.Gaussian()
		if !ok {
			continue
		}
		if gaussian.Dofs() != DOFS {
			return NewDimensionMismatchError(DOFS, gaussian.Dofs())
		}
		belief.information.AddVec(belief.information, gaussian.information)
		belief.precision.Add(belief.precision, gaussian.precision)
	}
	v.belief = belief

	if hasInformation(belief.precision) {
		cov, err := invert(belief.precision)
		v.valid = err == nil
		if v.valid {
			v.covariance = cov
			var mean mat.VecDense
			mean.MulVec(cov, belief.information)
			v.mean = &mean
		}
	}

	for _, factor := range v.inbox.ids() {
		in, _ := v.inbox.get(factor)
		out := v.beliefMessage()
		if gaussian, ok := in.Gaussian(); ok {
			diff, err := belief.Sub(gaussian)
			if err != nil {
				return err
			}
			out = Message{payload: &payload{gaussian: diff, mean: mat.VecDenseCopyOf(v.mean)}, dofs: DOFS}
		}
		v.counts.of(modeBetween(v.id.Graph, factor.Graph)).Sent++
		v.outbox.set(factor, out)
	}
	return nil
}

func hasInformation(precision *mat.Dense) bool {
	r, c := precision.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if precision.At(i, j) > precisionThreshold {
				return true
			}
		}
	}
	return false
}

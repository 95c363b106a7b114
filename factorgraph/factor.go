package factorgraph

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Factor is a factor node: a measurement model linearised about the states of its adjacent
// variables.
type Factor struct {
	id        FactorID
	model     Model
	variables []VariableID

	linearisationPoint *mat.VecDense
	jacobian           *mat.Dense

	inbox  *mailbox[VariableID]
	outbox *mailbox[VariableID]
	counts MessageCounts
}

func newFactor(id FactorID, model Model) *Factor {
	return &Factor{
		id:     id,
		model:  model,
		inbox:  newMailbox[VariableID](),
		outbox: newMailbox[VariableID](),
	}
}

// ID returns the factor's id.
func (f *Factor) ID() FactorID {
	return f.id
}

// Model returns the measurement model.
func (f *Factor) Model() Model {
	return f.model
}

// Kind returns the kind of the measurement model.
func (f *Factor) Kind() Kind {
	return f.model.Kind()
}

// Variables returns the adjacent variables in ascending order.
func (f *Factor) Variables() []VariableID {
	return f.variables
}

// LinearisationPoint returns the concatenated states the model is linearised about.
func (f *Factor) LinearisationPoint() *mat.VecDense {
	return f.linearisationPoint
}

// Counts returns the messages sent and received by this factor.
func (f *Factor) Counts() MessageCounts {
	return f.counts
}

// Outgoing returns the message currently addressed to variable.
func (f *Factor) Outgoing(variable VariableID) (Message, bool) {
	return f.outbox.get(variable)
}

// Skipped reports whether the model has nothing to contribute at the current linearisation point.
func (f *Factor) Skipped() bool {
	return f.linearisationPoint != nil && f.model.Skip(f.linearisationPoint)
}

// addVariable connects the factor to a variable whose current state is mean.
func (f *Factor) addVariable(variable VariableID, mean *mat.VecDense) error {
	if len(f.variables) >= f.model.Neighbours() {
		return errors.Errorf("%v %s factor already has %d variables", f.id, f.model.Kind(), len(f.variables))
	}
	if mean.Len() != DOFS {
		return NewDimensionMismatchError(DOFS, mean.Len())
	}
	idx, found := slices.BinarySearchFunc(f.variables, variable, compareIDs[VariableID])
	if found {
		return errors.Errorf("%v already connected to %v", f.id, variable)
	}
	f.variables = slices.Insert(f.variables, idx, variable)

	point := mat.NewVecDense(DOFS*len(f.variables), nil)
	if f.linearisationPoint != nil {
		old := f.linearisationPoint.RawVector().Data
		copy(point.RawVector().Data[:DOFS*idx], old[:DOFS*idx])
		copy(point.RawVector().Data[DOFS*(idx+1):], old[DOFS*idx:])
	}
	point.SliceVec(DOFS*idx, DOFS*(idx+1)).(*mat.VecDense).CopyVec(mean)
	f.linearisationPoint = point

	f.inbox.set(variable, EmptyMessage(DOFS))
	f.outbox.set(variable, EmptyMessage(DOFS))
	return nil
}

func (f *Factor) receive(variable VariableID, msg Message) error {
	if msg.Dofs() != DOFS {
		return NewDimensionMismatchError(DOFS, msg.Dofs())
	}
	if _, ok := f.inbox.get(variable); !ok {
		return NewNodeNotFoundError(variable)
	}
	if !msg.IsEmpty() {
		f.counts.of(modeBetween(f.id.Graph, variable.Graph)).Received++
	}
	f.inbox.set(variable, msg)
	return nil
}

// update relinearises the model about the latest variable means and computes one message per
// adjacent variable. Numerical failures produce empty messages, never errors.
func (f *Factor) update() error {
	for i, variable := range f.variables {
		msg, _ := f.inbox.get(variable)
		if mean, ok := msg.Mean(); ok {
			f.linearisationPoint.SliceVec(DOFS*i, DOFS*(i+1)).(*mat.VecDense).CopyVec(mean)
		}
	}

	if len(f.variables) != f.model.Neighbours() || f.model.Skip(f.linearisationPoint) {
		for _, variable := range f.variables {
			f.outbox.set(variable, EmptyMessage(DOFS))
		}
		return nil
	}

	x := f.linearisationPoint
	jac := f.jacobianAt(x)
	rows, cols := jac.Dims()
	if cols != x.Len() || rows != f.model.Measurement().Len() {
		return errors.Wrapf(ErrDimensionMismatch, "%v %s jacobian is %dx%d", f.id, f.model.Kind(), rows, cols)
	}

	var jtl mat.Dense
	jtl.Mul(jac.T(), f.model.MeasurementPrecision())
	var precision mat.Dense
	precision.Mul(&jtl, jac)

	// information = J^T Λ (J x + z - h(x))
	var residual mat.VecDense
	residual.MulVec(jac, x)
	residual.AddVec(&residual, f.model.Measurement())
	residual.SubVec(&residual, f.model.Measure(x))
	var information mat.VecDense
	information.MulVec(&jtl, &residual)

	for i, variable := range f.variables {
		msg := f.marginalise(i, &information, &precision)
		if !msg.IsEmpty() {
			f.counts.of(modeBetween(f.id.Graph, variable.Graph)).Sent++
		}
		f.outbox.set(variable, msg)
	}
	return nil
}

func (f *Factor) jacobianAt(x *mat.VecDense) *mat.Dense {
	if f.model.Linear() && f.jacobian != nil {
		return f.jacobian
	}
	jac := f.model.Jacobian(x)
	if f.model.Linear() {
		f.jacobian = jac
	}
	return jac
}

// marginalise folds the other variables' messages into the factor potential and takes the Schur
// complement onto the block of variable target.
func (f *Factor) marginalise(target int, information *mat.VecDense, precision *mat.Dense) Message {
	zeroMean := mat.NewVecDense(DOFS, nil)
	if len(f.variables) == 1 {
		return Message{
			payload: &payload{
				gaussian: Gaussian{information: mat.VecDenseCopyOf(information), precision: mat.DenseCopyOf(precision)},
				mean:     zeroMean,
			},
			dofs: DOFS,
		}
	}

	eta := mat.VecDenseCopyOf(information)
	lam := mat.DenseCopyOf(precision)
	var keep, drop []int
	for j, variable := range f.variables {
		block := blockIndices(j)
		if j == target {
			keep = block
			continue
		}
		drop = append(drop, block...)
		msg, _ := f.inbox.get(variable)
		gaussian, ok := msg.Gaussian()
		if !ok {
			continue
		}
		for a, ia := range block {
			eta.SetVec(ia, eta.AtVec(ia)+gaussian.information.AtVec(a))
			for b, ib := range block {
				lam.Set(ia, ib, lam.At(ia, ib)+gaussian.precision.At(a, b))
			}
		}
	}

	lamBBInv, err := invert(gather(lam, drop, drop))
	if err != nil {
		return EmptyMessage(DOFS)
	}
	lamAB := gather(lam, keep, drop)

	var gain mat.Dense
	gain.Mul(lamAB, lamBBInv)

	var etaM mat.VecDense
	etaM.MulVec(&gain, gatherVec(eta, drop))
	etaM.SubVec(gatherVec(eta, keep), &etaM)

	var lamM mat.Dense
	lamM.Mul(&gain, gather(lam, drop, keep))
	lamM.Sub(gather(lam, keep, keep), &lamM)

	if !allFinite(&lamM) || !allFinite(&etaM) {
		return EmptyMessage(DOFS)
	}
	return Message{payload: &payload{gaussian: Gaussian{information: &etaM, precision: &lamM}, mean: zeroMean}, dofs: DOFS}
}

func blockIndices(block int) []int {
	out := make([]int, DOFS)
	for i := range out {
		out[i] = block*DOFS + i
	}
	return out
}

func gather(m mat.Matrix, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, m.At(r, c))
		}
	}
	return out
}

func gatherVec(v mat.Vector, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, k := range idx {
		out.SetVec(i, v.AtVec(k))
	}
	return out
}

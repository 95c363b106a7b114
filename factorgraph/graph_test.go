package factorgraph

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/goccy/go-graphviz"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func scaledIdentity(s float64) *mat.Dense {
	return diag(s, s, s, s)
}

func noPrior() *mat.Dense {
	inf := math.Inf(1)
	return diag(inf, inf, inf, inf)
}

func TestNodeOrdering(t *testing.T) {
	test.That(t, NodeID{Graph: 0, Index: 9}.Compare(NodeID{Graph: 1, Index: 0}), test.ShouldEqual, -1)
	test.That(t, NodeID{Graph: 1, Index: 2}.Compare(NodeID{Graph: 1, Index: 1}), test.ShouldEqual, 1)
	test.That(t, VariableID{Graph: 3, Index: 4}.Compare(VariableID{Graph: 3, Index: 4}), test.ShouldEqual, 0)

	g := NewFactorGraph(2)
	v0, err := g.AddVariable(vec(0, 0, 0, 0), scaledIdentity(1))
	test.That(t, err, test.ShouldBeNil)
	f := g.AddFactor(NewDynamicFactor(1, 1))
	v1, err := g.AddVariable(vec(1, 0, 0, 0), scaledIdentity(1))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, v0, test.ShouldResemble, VariableID{Graph: 2, Index: 0})
	test.That(t, f, test.ShouldResemble, FactorID{Graph: 2, Index: 1})
	test.That(t, v1, test.ShouldResemble, VariableID{Graph: 2, Index: 2})
	test.That(t, g.VariableIDs(), test.ShouldResemble, []VariableID{v0, v1})

	// edges land in ascending variable order regardless of insertion order
	test.That(t, g.AddInternalEdge(f, v1), test.ShouldBeNil)
	test.That(t, g.AddInternalEdge(f, v0), test.ShouldBeNil)
	factor, ok := g.Factor(f)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, factor.Variables(), test.ShouldResemble, []VariableID{v0, v1})
	test.That(t, factor.LinearisationPoint().AtVec(DOFS), test.ShouldEqual, 1.)

	test.That(t, g.AddInternalEdge(f, v0), test.ShouldNotBeNil)
}

func TestVariablePriorOnly(t *testing.T) {
	g := NewFactorGraph(0)
	id, err := g.AddVariable(vec(1, 2, 0, 0), scaledIdentity(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Iterate(Internal, NewGraphRegistry()), test.ShouldBeNil)

	v, _ := g.Variable(id)
	test.That(t, v.Valid(), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(v.Mean(), vec(1, 2, 0, 0), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.Equal(v.Belief().Precision(), v.Prior().Precision()), test.ShouldBeTrue)

	_, err = g.AddVariable(vec(1, 2), scaledIdentity(1))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestPoseFactorPullsVariable(t *testing.T) {
	g := NewFactorGraph(0)
	v, err := g.AddVariable(vec(0, 0, 0, 0), noPrior())
	test.That(t, err, test.ShouldBeNil)
	variable, _ := g.Variable(v)
	test.That(t, variable.Valid(), test.ShouldBeFalse)

	pose, err := NewPoseFactor(vec(3, 4, 0, 0), 1)
	test.That(t, err, test.ShouldBeNil)
	f := g.AddFactor(pose)
	test.That(t, g.AddInternalEdge(f, v), test.ShouldBeNil)

	test.That(t, g.Iterate(Internal, NewGraphRegistry()), test.ShouldBeNil)
	test.That(t, variable.Valid(), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(variable.Mean(), vec(3, 4, 0, 0), 1e-9), test.ShouldBeTrue)
	test.That(t, variable.Covariance().At(0, 0), test.ShouldAlmostEqual, 1)

	counts := g.Counts()
	test.That(t, counts.External, test.ShouldResemble, MessageCount{})
	test.That(t, counts.Internal.Received, test.ShouldEqual, 2)
	test.That(t, counts.Internal.Sent, test.ShouldEqual, 2)

	g.ResetCounts()
	test.That(t, g.Counts(), test.ShouldResemble, MessageCounts{})
}

func TestDynamicChain(t *testing.T) {
	g := NewFactorGraph(0)
	v0, err := g.AddVariable(vec(0, 0, 1, 0), scaledIdentity(1e6))
	test.That(t, err, test.ShouldBeNil)
	v1, err := g.AddVariable(vec(0, 0, 0, 0), noPrior())
	test.That(t, err, test.ShouldBeNil)
	f := g.AddFactor(NewDynamicFactor(0.5, 0.1))
	test.That(t, g.AddInternalEdge(f, v0), test.ShouldBeNil)
	test.That(t, g.AddInternalEdge(f, v1), test.ShouldBeNil)

	for i := 0; i < 5; i++ {
		test.That(t, g.Iterate(Internal, NewGraphRegistry()), test.ShouldBeNil)
	}
	first, _ := g.Variable(v0)
	second, _ := g.Variable(v1)
	test.That(t, second.Valid(), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(first.Mean(), vec(0, 0, 1, 0), 1e-6), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(second.Mean(), vec(0.5, 0, 1, 0), 1e-6), test.ShouldBeTrue)
	test.That(t, second.Covariance().At(0, 0), test.ShouldBeGreaterThan, first.Covariance().At(0, 0))
}

func TestSingularBeliefMarksInvalid(t *testing.T) {
	g := NewFactorGraph(0)
	id, err := g.AddVariable(vec(7, 7, 0, 0), diag(1, 0, 0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Iterate(Internal, NewGraphRegistry()), test.ShouldBeNil)

	v, _ := g.Variable(id)
	test.That(t, v.Valid(), test.ShouldBeFalse)
	test.That(t, mat.Equal(v.Mean(), vec(7, 7, 0, 0)), test.ShouldBeTrue)
}

func TestHasInformation(t *testing.T) {
	test.That(t, hasInformation(diag(0, 0, 0, 0)), test.ShouldBeFalse)
	test.That(t, hasInformation(diag(0, 0, 2e-6, 0)), test.ShouldBeTrue)

	offDiagonal := mat.NewDense(DOFS, DOFS, nil)
	offDiagonal.Set(0, 1, -5)
	offDiagonal.Set(1, 0, -5)
	test.That(t, hasInformation(offDiagonal), test.ShouldBeFalse)
}

func TestChangePrior(t *testing.T) {
	g := NewFactorGraph(0)
	v, err := g.AddVariable(vec(0, 0, 0, 0), scaledIdentity(2))
	test.That(t, err, test.ShouldBeNil)
	pose, err := NewPoseFactor(vec(1, 1, 0, 0), 1)
	test.That(t, err, test.ShouldBeNil)
	f := g.AddFactor(pose)
	test.That(t, g.AddInternalEdge(f, v), test.ShouldBeNil)
	test.That(t, g.Iterate(Internal, NewGraphRegistry()), test.ShouldBeNil)

	variable, _ := g.Variable(v)
	in, _ := variable.Incoming(f)
	test.That(t, in.IsEmpty(), test.ShouldBeFalse)

	test.That(t, variable.ChangePrior(vec(5, 5, 0, 0)), test.ShouldBeNil)
	test.That(t, mat.Equal(variable.Mean(), vec(5, 5, 0, 0)), test.ShouldBeTrue)
	test.That(t, variable.Prior().Information().AtVec(0), test.ShouldEqual, 10.)
	in, _ = variable.Incoming(f)
	test.That(t, in.IsEmpty(), test.ShouldBeTrue)
	out, _ := variable.Outgoing(f)
	mean, ok := out.Mean()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mean.AtVec(0), test.ShouldEqual, 5.)

	test.That(t, errors.Is(variable.ChangePrior(vec(1)), ErrDimensionMismatch), test.ShouldBeTrue)
}

// twoRobots builds two single-variable graphs and an inter-robot factor owned by graph 0.
func twoRobots(t *testing.T, separation float64) (*GraphRegistry, VariableID, VariableID, FactorID) {
	t.Helper()
	a := NewFactorGraph(0)
	b := NewFactorGraph(1)
	va, err := a.AddVariable(vec(0, 0, 0, 0), scaledIdentity(1e3))
	test.That(t, err, test.ShouldBeNil)
	vb, err := b.AddVariable(vec(separation, 0, 0, 0), scaledIdentity(1e3))
	test.That(t, err, test.ShouldBeNil)

	registry := NewGraphRegistry()
	test.That(t, registry.Add(b), test.ShouldBeNil)
	test.That(t, registry.Add(a), test.ShouldBeNil)
	test.That(t, registry.IDs(), test.ShouldResemble, []GraphID{0, 1})
	test.That(t, registry.Add(a), test.ShouldNotBeNil)

	f, err := registry.ConnectInterRobot(0, va, vb, NewInterRobotFactor(1, 0.01, 1))
	test.That(t, err, test.ShouldBeNil)
	return registry, va, vb, f
}

func TestSkipRule(t *testing.T) {
	registry, va, vb, f := twoRobots(t, 1)
	a, _ := registry.Graph(0)
	b, _ := registry.Graph(1)
	factor, _ := a.Factor(f)

	test.That(t, a.FactorPass(Internal, registry), test.ShouldBeNil)
	test.That(t, factor.Counts().Internal.Received, test.ShouldEqual, 1)
	test.That(t, factor.Counts().External.Received, test.ShouldEqual, 0)

	test.That(t, a.FactorPass(External, registry), test.ShouldBeNil)
	test.That(t, factor.Counts().External.Received, test.ShouldEqual, 1)

	test.That(t, b.VariablePass(Internal, registry), test.ShouldBeNil)
	vbNode, _ := b.Variable(vb)
	test.That(t, vbNode.Counts().External.Received, test.ShouldEqual, 0)

	test.That(t, b.VariablePass(External, registry), test.ShouldBeNil)
	test.That(t, vbNode.Counts().External.Received, test.ShouldEqual, 1)

	// pushed apart along x
	test.That(t, a.VariablePass(Internal, registry), test.ShouldBeNil)
	vaNode, _ := a.Variable(va)
	test.That(t, vaNode.Mean().AtVec(0), test.ShouldBeLessThan, 0)
	test.That(t, vbNode.Mean().AtVec(0), test.ShouldBeGreaterThan, 1)

	// with comms down nothing crosses
	b.SetCommsActive(false)
	before := vbNode.Counts()
	test.That(t, b.VariablePass(External, registry), test.ShouldBeNil)
	test.That(t, vbNode.Counts().External.Received, test.ShouldEqual, before.External.Received)
}

func TestInterRobotSkippedWhenFar(t *testing.T) {
	registry, _, vb, f := twoRobots(t, 10)
	a, _ := registry.Graph(0)
	b, _ := registry.Graph(1)

	for _, g := range registry.Graphs() {
		test.That(t, g.FactorPass(External, registry), test.ShouldBeNil)
	}
	factor, _ := a.Factor(f)
	test.That(t, factor.Skipped(), test.ShouldBeTrue)
	out, _ := factor.Outgoing(vb)
	test.That(t, out.IsEmpty(), test.ShouldBeTrue)

	for _, g := range registry.Graphs() {
		test.That(t, g.VariablePass(External, registry), test.ShouldBeNil)
	}
	vbNode, _ := b.Variable(vb)
	test.That(t, vbNode.Counts().External.Received, test.ShouldEqual, 0)
	test.That(t, mat.EqualApprox(vbNode.Mean(), vec(10, 0, 0, 0), 1e-9), test.ShouldBeTrue)
}

func TestRegistryDisconnect(t *testing.T) {
	registry, va, vb, _ := twoRobots(t, 1)
	a, _ := registry.Graph(0)
	b, _ := registry.Graph(1)
	test.That(t, registry.Connected(0, 1), test.ShouldBeTrue)
	test.That(t, len(b.ExternalFactorsOf(0)[vb]), test.ShouldEqual, 1)

	test.That(t, registry.Remove(1), test.ShouldBeNil)
	_, ok := registry.Graph(1)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, registry.Connected(0, 1), test.ShouldBeFalse)
	vaNode, _ := a.Variable(va)
	test.That(t, vaNode.Factors(), test.ShouldBeEmpty)
	_, factors := a.Len()
	test.That(t, factors, test.ShouldEqual, 0)
	test.That(t, a.Iterate(External, registry), test.ShouldBeNil)

	test.That(t, registry.Remove(1), test.ShouldNotBeNil)
}

func TestConnectInterRobotFailureLeavesNoFactor(t *testing.T) {
	registry, va, vb, _ := twoRobots(t, 1)
	a, _ := registry.Graph(0)
	_, before := a.Len()

	missing := VariableID{Graph: 1, Index: vb.Index + 10}
	_, err := registry.ConnectInterRobot(0, va, missing, NewInterRobotFactor(1, 0.01, 1))
	test.That(t, errors.Is(err, ErrNodeNotFound), test.ShouldBeTrue)

	_, after := a.Len()
	test.That(t, after, test.ShouldEqual, before)
	vaNode, _ := a.Variable(va)
	test.That(t, len(vaNode.Factors()), test.ShouldEqual, 1)
	test.That(t, len(a.InterRobotFactorsConnectedTo(1)), test.ShouldEqual, 1)
}

func TestMissingExternalGraph(t *testing.T) {
	registry, _, _, _ := twoRobots(t, 1)
	a, _ := registry.Graph(0)
	err := a.FactorPass(External, NewGraphRegistry())
	test.That(t, errors.Is(err, ErrNodeNotFound), test.ShouldBeTrue)
}

func TestExport(t *testing.T) {
	registry, va, vb, f := twoRobots(t, 2)
	a, _ := registry.Graph(0)

	exported := a.Export()
	test.That(t, len(exported.Nodes), test.ShouldEqual, 2)
	test.That(t, exported.Nodes[0].Kind, test.ShouldEqual, VariableNode)
	test.That(t, exported.Nodes[1].Kind, test.ShouldEqual, NodeKind("interrobot"))
	test.That(t, exported.Nodes[1].Position.X, test.ShouldAlmostEqual, 1)
	test.That(t, exported.Edges, test.ShouldResemble, []ExportedEdge{{Factor: f, Variable: va}, {Factor: f, Variable: vb}})

	states := a.VariableStates()
	test.That(t, len(states), test.ShouldEqual, 1)
	test.That(t, states[0].Valid, test.ShouldBeTrue)
	test.That(t, states[0].PositionVariance(), test.ShouldAlmostEqual, 2e-3)

	var buf bytes.Buffer
	test.That(t, WriteGraphviz(context.Background(), &buf, registry.Graphs(), graphviz.XDOT), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "cluster_0")
	test.That(t, buf.String(), test.ShouldContainSubstring, "interrobot")
}

func TestDeleteVariable(t *testing.T) {
	g := NewFactorGraph(0)
	v0, err := g.AddVariable(vec(0, 0, 0, 0), scaledIdentity(1))
	test.That(t, err, test.ShouldBeNil)
	v1, err := g.AddVariable(vec(1, 0, 0, 0), scaledIdentity(1))
	test.That(t, err, test.ShouldBeNil)
	dynamic := g.AddFactor(NewDynamicFactor(1, 1))
	test.That(t, g.AddInternalEdge(dynamic, v0), test.ShouldBeNil)
	test.That(t, g.AddInternalEdge(dynamic, v1), test.ShouldBeNil)
	pose, err := NewPoseFactor(vec(1, 0, 0, 0), 1)
	test.That(t, err, test.ShouldBeNil)
	anchor := g.AddFactor(pose)
	test.That(t, g.AddInternalEdge(anchor, v1), test.ShouldBeNil)
	test.That(t, g.FactorIDs(), test.ShouldResemble, []FactorID{dynamic, anchor})

	test.That(t, g.DeleteVariable(v0), test.ShouldBeNil)
	variables, factors := g.Len()
	test.That(t, variables, test.ShouldEqual, 1)
	test.That(t, factors, test.ShouldEqual, 1)
	test.That(t, g.VariableIDs(), test.ShouldResemble, []VariableID{v1})
	test.That(t, g.FactorIDs(), test.ShouldResemble, []FactorID{anchor})
	remaining, _ := g.Variable(v1)
	test.That(t, remaining.Factors(), test.ShouldResemble, []FactorID{anchor})

	err = g.DeleteVariable(v0)
	test.That(t, errors.Is(err, ErrNodeNotFound), test.ShouldBeTrue)
}

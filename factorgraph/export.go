package factorgraph

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// VariableState is what the outside world sees of a variable.
type VariableState struct {
	ID         VariableID
	Position   r2.Point
	Velocity   r2.Point
	Covariance *mat.Dense
	Valid      bool
}

// PositionVariance returns the trace of the position block of the covariance.
func (s VariableState) PositionVariance() float64 {
	if s.Covariance == nil {
		return 0
	}
	return s.Covariance.At(0, 0) + s.Covariance.At(1, 1)
}

// VariableStates returns the state of every variable in ascending order.
func (g *FactorGraph) VariableStates() []VariableState {
	out := make([]VariableState, 0, len(g.variableOrder))
	for _, id := range g.variableOrder {
		v := g.variables[id]
		out = append(out, VariableState{
			ID:         id,
			Position:   r2.Point{X: v.mean.AtVec(0), Y: v.mean.AtVec(1)},
			Velocity:   r2.Point{X: v.mean.AtVec(2), Y: v.mean.AtVec(3)},
			Covariance: mat.DenseCopyOf(v.covariance),
			Valid:      v.valid,
		})
	}
	return out
}

// NodeKind labels exported nodes.
type NodeKind string

// VariableNode is the kind of every exported variable. Factors use their model's Kind.
const VariableNode NodeKind = "variable"

// ExportedNode is one node of an exported graph.
type ExportedNode struct {
	ID       NodeID
	Kind     NodeKind
	Position r2.Point
}

// ExportedEdge connects a factor to a variable, possibly of another graph.
type ExportedEdge struct {
	Factor   FactorID
	Variable VariableID
}

// Exported is the topology of a graph for external visualisation tools.
type Exported struct {
	Nodes []ExportedNode
	Edges []ExportedEdge
}

// Export returns every node and edge of the graph. Factors are placed at the mean position of
// their linearisation point.
func (g *FactorGraph) Export() Exported {
	var out Exported
	for _, state := range g.VariableStates() {
		out.Nodes = append(out.Nodes, ExportedNode{ID: NodeID(state.ID), Kind: VariableNode, Position: state.Position})
	}
	for _, id := range g.factorOrder {
		f := g.factors[id]
		var center r2.Point
		for i := range f.variables {
			center = center.Add(r2.Point{
				X: f.linearisationPoint.AtVec(DOFS * i),
				Y: f.linearisationPoint.AtVec(DOFS*i + 1),
			})
		}
		if n := len(f.variables); n > 0 {
			center = center.Mul(1 / float64(n))
		}
		out.Nodes = append(out.Nodes, ExportedNode{ID: NodeID(id), Kind: NodeKind(f.Kind().String()), Position: center})
		for _, variable := range f.variables {
			out.Edges = append(out.Edges, ExportedEdge{Factor: id, Variable: variable})
		}
	}
	return out
}

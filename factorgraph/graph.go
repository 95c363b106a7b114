package factorgraph

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// GraphView resolves graph ids to graphs. External passes only read through it.
type GraphView interface {
	Graph(id GraphID) (*FactorGraph, bool)
}

// FactorGraph owns the variable and factor nodes of one robot. Node indices are allocated from one
// counter shared by both node kinds and are never reused.
type FactorGraph struct {
	id        GraphID
	nextIndex int

	variables     map[VariableID]*Variable
	variableOrder []VariableID
	factors       map[FactorID]*Factor
	factorOrder   []FactorID

	// commsActive gates external passes; a robot whose radio is down neither reads nor updates
	// edges to other graphs.
	commsActive bool
}

// NewFactorGraph returns an empty graph.
func NewFactorGraph(id GraphID) *FactorGraph {
	return &FactorGraph{
		id:          id,
		variables:   make(map[VariableID]*Variable),
		factors:     make(map[FactorID]*Factor),
		commsActive: true,
	}
}

// ID returns the graph's id.
func (g *FactorGraph) ID() GraphID {
	return g.id
}

// SetCommsActive enables or disables external message passing for this graph.
func (g *FactorGraph) SetCommsActive(active bool) {
	g.commsActive = active
}

// CommsActive reports whether external message passing is enabled.
func (g *FactorGraph) CommsActive() bool {
	return g.commsActive
}

// AddVariable adds a variable with the given prior and returns its id.
func (g *FactorGraph) AddVariable(priorMean *mat.VecDense, priorPrecision *mat.Dense) (VariableID, error) {
	id := VariableID{Graph: g.id, Index: g.nextIndex}
	v, err := newVariable(id, priorMean, priorPrecision)
	if err != nil {
		return VariableID{}, err
	}
	g.nextIndex++
	g.variables[id] = v
	g.variableOrder = append(g.variableOrder, id)
	return id, nil
}

// AddFactor adds an unconnected factor and returns its id.
func (g *FactorGraph) AddFactor(model Model) FactorID {
	id := FactorID{Graph: g.id, Index: g.nextIndex}
	g.nextIndex++
	g.factors[id] = newFactor(id, model)
	g.factorOrder = append(g.factorOrder, id)
	return id
}

// AddInternalEdge connects a factor and a variable of this graph.
func (g *FactorGraph) AddInternalEdge(factorID FactorID, variableID VariableID) error {
	factor, ok := g.factors[factorID]
	if !ok {
		return NewNodeNotFoundError(factorID)
	}
	variable, ok := g.variables[variableID]
	if !ok {
		return NewNodeNotFoundError(variableID)
	}
	if err := factor.addVariable(variableID, variable.Mean()); err != nil {
		return err
	}
	variable.AddFactor(factorID)
	return nil
}

// AddExternalEdge connects a factor of this graph to a variable of another graph. Both ends are
// updated, so this must not run concurrently with an iteration of either graph.
func (g *FactorGraph) AddExternalEdge(factorID FactorID, variableID VariableID, other *FactorGraph) error {
	if other == nil || other.id != variableID.Graph || other.id == g.id {
		return errors.Errorf("external edge %v -> %v needs the graph of the variable", factorID, variableID)
	}
	factor, ok := g.factors[factorID]
	if !ok {
		return NewNodeNotFoundError(factorID)
	}
	variable, ok := other.variables[variableID]
	if !ok {
		return NewNodeNotFoundError(variableID)
	}
	if err := factor.addVariable(variableID, variable.Mean()); err != nil {
		return err
	}
	variable.AddFactor(factorID)
	return nil
}

// DeleteFactor removes a factor and its edges to variables of this graph. Edges to variables of
// other graphs are returned so the caller can detach them with DetachFactor.
func (g *FactorGraph) DeleteFactor(factorID FactorID) ([]VariableID, error) {
	factor, ok := g.factors[factorID]
	if !ok {
		return nil, NewNodeNotFoundError(factorID)
	}
	var external []VariableID
	for _, variableID := range factor.variables {
		if variableID.Graph != g.id {
			external = append(external, variableID)
			continue
		}
		if variable, ok := g.variables[variableID]; ok {
			variable.RemoveFactor(factorID)
		}
	}
	delete(g.factors, factorID)
	g.factorOrder = slices.DeleteFunc(g.factorOrder, func(id FactorID) bool { return id == factorID })
	return external, nil
}

// DetachFactor removes the edge between a variable of this graph and a factor of another graph.
func (g *FactorGraph) DetachFactor(variableID VariableID, factorID FactorID) bool {
	variable, ok := g.variables[variableID]
	if !ok {
		return false
	}
	return variable.RemoveFactor(factorID)
}

// DeleteVariable removes a variable together with every factor of this graph connected to it.
func (g *FactorGraph) DeleteVariable(variableID VariableID) error {
	variable, ok := g.variables[variableID]
	if !ok {
		return NewNodeNotFoundError(variableID)
	}
	for _, factorID := range slices.Clone(variable.Factors()) {
		if factorID.Graph != g.id {
			continue
		}
		if _, err := g.DeleteFactor(factorID); err != nil {
			return err
		}
	}
	delete(g.variables, variableID)
	g.variableOrder = slices.DeleteFunc(g.variableOrder, func(id VariableID) bool { return id == variableID })
	return nil
}

// InterRobotFactorsConnectedTo returns the inter-robot factors of this graph whose external
// variable lives in graph other.
func (g *FactorGraph) InterRobotFactorsConnectedTo(other GraphID) []FactorID {
	var out []FactorID
	for _, id := range g.factorOrder {
		if model, ok := g.factors[id].model.(*InterRobotFactor); ok && model.Other() == other {
			out = append(out, id)
		}
	}
	return out
}

// ExternalFactorsOf returns the factors of other graphs connected to variables of this graph,
// grouped by the graph that owns them.
func (g *FactorGraph) ExternalFactorsOf(other GraphID) map[VariableID][]FactorID {
	out := make(map[VariableID][]FactorID)
	for _, variableID := range g.variableOrder {
		for _, factorID := range g.variables[variableID].Factors() {
			if factorID.Graph == other {
				out[variableID] = append(out[variableID], factorID)
			}
		}
	}
	return out
}

// Variable returns the variable with the given id.
func (g *FactorGraph) Variable(id VariableID) (*Variable, bool) {
	v, ok := g.variables[id]
	return v, ok
}

// Factor returns the factor with the given id.
func (g *FactorGraph) Factor(id FactorID) (*Factor, bool) {
	f, ok := g.factors[id]
	return f, ok
}

// VariableIDs returns the variable ids in ascending order.
func (g *FactorGraph) VariableIDs() []VariableID {
	return g.variableOrder
}

// FactorIDs returns the factor ids in ascending order.
func (g *FactorGraph) FactorIDs() []FactorID {
	return g.factorOrder
}

// Len returns the number of variables and factors.
func (g *FactorGraph) Len() (variables, factors int) {
	return len(g.variables), len(g.factors)
}

// Counts sums the message counts of every node.
func (g *FactorGraph) Counts() MessageCounts {
	var out MessageCounts
	for _, v := range g.variables {
		out = out.Add(v.counts)
	}
	for _, f := range g.factors {
		out = out.Add(f.counts)
	}
	return out
}

// ResetCounts zeroes the message counts of every node.
func (g *FactorGraph) ResetCounts() {
	for _, v := range g.variables {
		v.counts = MessageCounts{}
	}
	for _, f := range g.factors {
		f.counts = MessageCounts{}
	}
}

// participates applies the skip rule: same-graph pairs take part in internal passes, cross-graph
// pairs in external passes while comms are up.
func (g *FactorGraph) participates(mode MessagePassingMode, other GraphID) bool {
	if other == g.id {
		return mode == Internal
	}
	return mode == External && g.commsActive
}

// FactorPass reads every participating variable's message into the factors' inboxes, then updates
// every factor, in ascending factor order. Only this graph's factors are written.
func (g *FactorGraph) FactorPass(mode MessagePassingMode, view GraphView) error {
	for _, factorID := range g.factorOrder {
		factor := g.factors[factorID]
		for _, variableID := range factor.variables {
			if !g.participates(mode, variableID.Graph) {
				continue
			}
			variable, err := g.lookupVariable(variableID, view)
			if err != nil {
				return err
			}
			msg, ok := variable.outbox.get(factorID)
			if !ok {
				return errors.Wrapf(ErrNodeNotFound, "%v has no edge to %v", variableID, factorID)
			}
			if err := factor.receive(variableID, msg); err != nil {
				return err
			}
		}
		if err := factor.update(); err != nil {
			return err
		}
	}
	return nil
}

// VariablePass reads every participating factor's message into the variables' inboxes, then
// updates every variable, in ascending variable order. Only this graph's variables are written.
func (g *FactorGraph) VariablePass(mode MessagePassingMode, view GraphView) error {
	for _, variableID := range g.variableOrder {
		variable := g.variables[variableID]
		for _, factorID := range variable.Factors() {
			if !g.participates(mode, factorID.Graph) {
				continue
			}
			factor, err := g.lookupFactor(factorID, view)
			if err != nil {
				return err
			}
			msg, ok := factor.outbox.get(variableID)
			if !ok {
				return errors.Wrapf(ErrNodeNotFound, "%v has no edge to %v", factorID, variableID)
			}
			if err := variable.receive(factorID, msg); err != nil {
				return err
			}
		}
		if err := variable.update(); err != nil {
			return err
		}
	}
	return nil
}

// Iterate runs one GBP iteration: a factor pass followed by a variable pass. When several graphs
// iterate together every graph must finish its factor pass before any starts its variable pass.
func (g *FactorGraph) Iterate(mode MessagePassingMode, view GraphView) error {
	if err := g.FactorPass(mode, view); err != nil {
		return err
	}
	return g.VariablePass(mode, view)
}

func (g *FactorGraph) lookupVariable(id VariableID, view GraphView) (*Variable, error) {
	owner := g
	if id.Graph != g.id {
		other, ok := view.Graph(id.Graph)
		if !ok {
			return nil, NewNodeNotFoundError(id)
		}
		owner = other
	}
	v, ok := owner.variables[id]
	if !ok {
		return nil, NewNodeNotFoundError(id)
	}
	return v, nil
}

func (g *FactorGraph) lookupFactor(id FactorID, view GraphView) (*Factor, error) {
	owner := g
	if id.Graph != g.id {
		other, ok := view.Graph(id.Graph)
		if !ok {
			return nil, NewNodeNotFoundError(id)
		}
		owner = other
	}
	f, ok := owner.factors[id]
	if !ok {
		return nil, NewNodeNotFoundError(id)
	}
	return f, nil
}

package factorgraph

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// GraphRegistry owns every robot's factor graph. Cross-graph edges store ids only and are resolved
// through the registry, so graphs never reference each other directly.
type GraphRegistry struct {
	graphs map[GraphID]*FactorGraph
	order  []GraphID
}

// NewGraphRegistry returns an empty registry.
func NewGraphRegistry() *GraphRegistry {
	return &GraphRegistry{graphs: make(map[GraphID]*FactorGraph)}
}

// Add registers a graph.
func (r *GraphRegistry) Add(g *FactorGraph) error {
	if _, ok := r.graphs[g.id]; ok {
		return errors.Errorf("graph %d already registered", g.id)
	}
	r.graphs[g.id] = g
	idx, _ := slices.BinarySearch(r.order, g.id)
	r.order = slices.Insert(r.order, idx, g.id)
	return nil
}

// Remove unregisters a graph after detaching every edge between it and the remaining graphs.
func (r *GraphRegistry) Remove(id GraphID) error {
	removed, ok := r.graphs[id]
	if !ok {
		return errors.Errorf("graph %d not registered", id)
	}
	for _, otherID := range r.order {
		if otherID == id {
			continue
		}
		if err := r.Disconnect(otherID, id); err != nil {
			return err
		}
		if err := r.Disconnect(id, otherID); err != nil {
			return err
		}
	}
	delete(r.graphs, removed.id)
	r.order = slices.DeleteFunc(r.order, func(g GraphID) bool { return g == id })
	return nil
}

// Graph returns the graph with the given id.
func (r *GraphRegistry) Graph(id GraphID) (*FactorGraph, bool) {
	g, ok := r.graphs[id]
	return g, ok
}

// IDs returns the registered graph ids in ascending order.
func (r *GraphRegistry) IDs() []GraphID {
	return r.order
}

// Graphs returns the registered graphs in ascending id order.
func (r *GraphRegistry) Graphs() []*FactorGraph {
	return lo.Map(r.order, func(id GraphID, _ int) *FactorGraph { return r.graphs[id] })
}

// ConnectInterRobot adds an inter-robot factor to graph owner between its variable own and the
// variable external of another graph.
func (r *GraphRegistry) ConnectInterRobot(owner GraphID, own, external VariableID, model *InterRobotFactor) (FactorID, error) {
	g, ok := r.graphs[owner]
	if !ok {
		return FactorID{}, NewNodeNotFoundError(owner)
	}
	other, ok := r.graphs[external.Graph]
	if !ok {
		return FactorID{}, NewNodeNotFoundError(external)
	}
	if own.Graph != owner || model.Other() != external.Graph {
		return FactorID{}, errors.Errorf("inter-robot factor %v -> %v does not match its model", own, external)
	}
	factorID := g.AddFactor(model)
	if err := g.AddInternalEdge(factorID, own); err != nil {
		return FactorID{}, g.discard(factorID, err)
	}
	if err := g.AddExternalEdge(factorID, external, other); err != nil {
		return FactorID{}, g.discard(factorID, err)
	}
	return factorID, nil
}

// Disconnect deletes the inter-robot factors graph owner holds toward graph other, detaching
// them from other's variables.
func (r *GraphRegistry) Disconnect(owner, other GraphID) error {
	g, ok := r.graphs[owner]
	if !ok {
		return NewNodeNotFoundError(owner)
	}
	for _, factorID := range g.InterRobotFactorsConnectedTo(other) {
		external, err := g.DeleteFactor(factorID)
		if err != nil {
			return err
		}
		for _, variableID := range external {
			if otherGraph, ok := r.graphs[variableID.Graph]; ok {
				otherGraph.DetachFactor(variableID, factorID)
			}
		}
	}
	return nil
}

// Connected reports whether graph owner holds inter-robot factors toward graph other.
func (r *GraphRegistry) Connected(owner, other GraphID) bool {
	g, ok := r.graphs[owner]
	return ok && len(g.InterRobotFactorsConnectedTo(other)) > 0
}

// discard deletes a factor left half connected by a failed edge and returns cause.
func (g *FactorGraph) discard(factorID FactorID, cause error) error {
	_, err := g.DeleteFactor(factorID)
	return multierr.Combine(cause, err)
}

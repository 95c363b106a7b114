package factorgraph

import (
	"cmp"
	"fmt"
)

// GraphID identifies one robot's factor graph.
type GraphID uint32

// NodeID identifies a node within the set of all graphs. IDs are ordered first by graph, then by
// index within the graph, and every pass over nodes follows this order.
type NodeID struct {
	Graph GraphID
	Index int
}

// Compare returns -1, 0 or 1 as id sorts before, equal to or after other.
func (id NodeID) Compare(other NodeID) int {
	if c := cmp.Compare(id.Graph, other.Graph); c != 0 {
		return c
	}
	return cmp.Compare(id.Index, other.Index)
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d", id.Graph, id.Index)
}

// VariableID is the NodeID of a variable node.
type VariableID NodeID

// Compare orders variable ids by their NodeID.
func (id VariableID) Compare(other VariableID) int {
	return NodeID(id).Compare(NodeID(other))
}

func (id VariableID) String() string {
	return "v" + NodeID(id).String()
}

// FactorID is the NodeID of a factor node.
type FactorID NodeID

// Compare orders factor ids by their NodeID.
func (id FactorID) Compare(other FactorID) int {
	return NodeID(id).Compare(NodeID(other))
}

func (id FactorID) String() string {
	return "f" + NodeID(id).String()
}

package factorgraph

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var kindColors = map[NodeKind]string{
	VariableNode: "#eff1f5",
	"interrobot": "#a6da95",
	"dynamic":    "#8aadf4",
	"obstacle":   "#ee99a0",
	"pose":       "#f4a15a",
}

// WriteGraphviz renders the graphs as one graphviz document in the given format, one cluster per
// graph. Nodes are pinned at their exported positions.
func WriteGraphviz(ctx context.Context, w io.Writer, graphs []*FactorGraph, format graphviz.Format) (err error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return errors.Wrap(err, "starting graphviz")
	}
	root, err := gv.Graph()
	if err != nil {
		return multierr.Combine(errors.Wrap(err, "creating graphviz graph"), gv.Close())
	}
	defer func() {
		err = multierr.Combine(err, root.Close(), gv.Close())
	}()

	nodes := make(map[NodeID]*cgraph.Node)
	var edges []ExportedEdge
	for _, g := range graphs {
		exported := g.Export()
		cluster, err := root.CreateSubGraphByName(fmt.Sprintf("cluster_%d", g.ID()))
		if err != nil {
			return errors.Wrapf(err, "creating cluster for graph %d", g.ID())
		}
		cluster.SetLabel(fmt.Sprintf("robot %d", g.ID()))
		for _, node := range exported.Nodes {
			n, err := cluster.CreateNodeByName(node.ID.String())
			if err != nil {
				return errors.Wrapf(err, "creating node %v", node.ID)
			}
			n.SetLabel(string(node.Kind))
			n.SetStyle(cgraph.FilledNodeStyle)
			n.SetFillColor(kindColors[node.Kind])
			n.SetPos(node.Position.X, node.Position.Y)
			if node.Kind == VariableNode {
				n.SetShape(cgraph.CircleShape).SetWidth(0.8)
			} else {
				n.SetShape(cgraph.SquareShape).SetWidth(0.2)
			}
			nodes[node.ID] = n
		}
		edges = append(edges, exported.Edges...)
	}

	for _, edge := range edges {
		from, ok := nodes[NodeID(edge.Factor)]
		if !ok {
			continue
		}
		to, ok := nodes[NodeID(edge.Variable)]
		if !ok {
			continue
		}
		if _, err := root.CreateEdgeByName(edge.Factor.String()+"-"+edge.Variable.String(), from, to); err != nil {
			return errors.Wrapf(err, "creating edge %v -> %v", edge.Factor, edge.Variable)
		}
	}
	return gv.Render(ctx, root, format, w)
}

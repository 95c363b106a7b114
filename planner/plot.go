package planner

import (
	"fmt"
	"io"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/gbpplanner/factorgraph"
)

// plotSize is the side length of a rendered trajectory plot.
const plotSize = 16 * vg.Centimeter

// WriteTrajectoryPlot renders the trail of every robot over the world as a PNG.
func (s *Simulation) WriteTrajectoryPlot(w io.Writer) error {
	trails := s.Trails()
	half := s.cfg.Simulation.WorldSize / 2

	p := plot.New()
	p.Title.Text = fmt.Sprintf("trajectories after %.2fs", s.Elapsed())
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.X.Min, p.X.Max = -half, half
	p.Y.Min, p.Y.Max = -half, half
	p.Add(plotter.NewGrid())

	ids := lo.Keys(trails)
	slices.Sort(ids)
	for i, id := range ids {
		trail := trails[id]
		if len(trail) == 0 {
			continue
		}
		line, err := plotter.NewLine(toXYs(trail))
		if err != nil {
			return errors.Wrapf(err, "plotting robot %d", id)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(robotLabel(id), line)
	}

	writer, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		return errors.Wrap(err, "rendering trajectory plot")
	}
	_, err = writer.WriteTo(w)
	return err
}

func toXYs(points []r2.Point) plotter.XYs {
	return lo.Map(points, func(p r2.Point, _ int) plotter.XY { return plotter.XY{X: p.X, Y: p.Y} })
}

func robotLabel(id factorgraph.GraphID) string {
	return fmt.Sprintf("robot %d", id)
}

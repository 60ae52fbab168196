package sim

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Series is one labelled curve on the tail-probability plot,
// typically one per Z value.
type Series struct {
	Label string
	Dist  Distribution
}

// RenderTailPlot renders P[size(S) > R] against R for each series on a
// log-scale Y axis and saves the result to outPath (format chosen by
// extension, e.g. .png or .pdf). Zero-probability points are dropped,
// as they have no finite position on a log axis.
func RenderTailPlot(series []Series, outPath string) error {
	p := plot.New()
	p.Title.Text = "Path ORAM Stash Size Probability"
	p.X.Label.Text = "Required stash size R"
	p.Y.Label.Text = "Pr[size(S) > R]"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	plotted := 0
	for i, s := range series {
		rs, ps := s.Dist.Points()
		pts := make(plotter.XYs, 0, len(rs))
		for j := range rs {
			if ps[j] > 0 {
				pts = append(pts, plotter.XY{X: float64(rs[j]), Y: ps[j]})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("series %q: %w", s.Label, err)
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(s.Label, line, points)
		plotted++
	}
	if plotted == 0 {
		return errors.New("no nonzero tail probabilities to plot")
	}

	return p.Save(7*vg.Inch, 5*vg.Inch, outPath)
}

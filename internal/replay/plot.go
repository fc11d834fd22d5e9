package replay

import (
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/courtvision/repcount/internal/rep"
)

// PlotTrajectory renders the smoothed vertical trajectory of a replayed
// session to a PNG, with a marker at each counted repetition. The Y
// axis is inverted to match the screen convention (top of frame at the
// top of the plot).
func PlotTrajectory(samples []rep.Sample, repTimes []time.Time, path string) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = "Tracked vertical position"
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = "normalized Y (frame top = 0)"
	// Y grows downward in frame coordinates; flip the axis so upward
	// motion plots upward.
	p.Y.Min, p.Y.Max = 1, 0

	t0 := samples[0].At
	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		if !s.HasSignal {
			continue
		}
		pts = append(pts, plotter.XY{
			X: s.At.Sub(t0).Seconds(),
			Y: s.SmoothedY,
		})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("trajectory line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("smoothed Y", line)

	if len(repTimes) > 0 {
		marks := make(plotter.XYs, 0, len(repTimes))
		for _, rt := range repTimes {
			y := nearestY(samples, rt)
			marks = append(marks, plotter.XY{X: rt.Sub(t0).Seconds(), Y: y})
		}
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return fmt.Errorf("rep markers: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add("rep", scatter)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// nearestY returns the smoothed Y of the sample closest in time to t.
func nearestY(samples []rep.Sample, t time.Time) float64 {
	bestY := samples[0].SmoothedY
	bestDelta := time.Duration(1<<63 - 1)
	for _, s := range samples {
		if !s.HasSignal {
			continue
		}
		d := s.At.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < bestDelta {
			bestDelta = d
			bestY = s.SmoothedY
		}
	}
	return bestY
}

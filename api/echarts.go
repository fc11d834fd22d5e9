package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/courtvision/repcount/internal/httputil"
)

// DebugMux returns the debugging routes. These render go-echarts HTML
// directly so the trajectory can be inspected without any frontend.
func (s *Server) DebugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/trajectory", s.handleTrajectoryChart)
	return mux
}

// handleTrajectoryChart renders the recent smoothed-Y trajectory and
// the running count as a line chart.
func (s *Server) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	samples := s.recentSamples()
	if len(samples) == 0 {
		httputil.NotFound(w, "no samples buffered yet")
		return
	}

	t0 := samples[0].At
	x := make([]string, 0, len(samples))
	yPos := make([]opts.LineData, 0, len(samples))
	yCount := make([]opts.LineData, 0, len(samples))
	for _, sm := range samples {
		x = append(x, fmt.Sprintf("%.2f", sm.At.Sub(t0).Seconds()))
		if sm.HasSignal {
			yPos = append(yPos, opts.LineData{Value: sm.SmoothedY})
		} else {
			yPos = append(yPos, opts.LineData{Value: nil})
		}
		yCount = append(yCount, opts.LineData{Value: sm.Count})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Rep Trajectory", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tracked vertical position",
			Subtitle: fmt.Sprintf("samples=%d reps=%d", len(samples), samples[len(samples)-1].Count),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "normalized Y"}),
	)
	line.SetXAxis(x).
		AddSeries("smoothed Y", yPos).
		AddSeries("rep count", yCount)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Command session-chart renders a stored drill session as a standalone
// HTML chart: cumulative rep count over time plus the inter-rep
// interval per rep.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/courtvision/repcount/internal/session"
)

var (
	dbFile    = flag.String("db", "sessions.db", "Session database path")
	sessionID = flag.String("session", "", "Session id to chart (defaults to most recent)")
	outFile   = flag.String("out", "session.html", "Output HTML path")
)

func main() {
	flag.Parse()

	store, err := session.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open session database: %v", err)
	}
	defer store.Close()

	id := *sessionID
	if id == "" {
		sessions, err := store.ListSessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no sessions recorded")
		}
		id = sessions[0].SessionID
	}

	sess, err := store.GetSession(id)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	reps, err := store.Reps(id)
	if err != nil {
		log.Fatalf("failed to load rep events: %v", err)
	}
	if len(reps) == 0 {
		log.Fatalf("session %s has no rep events", id)
	}

	summary := session.Summarize(sess, reps)

	x := make([]string, 0, len(reps))
	counts := make([]opts.LineData, 0, len(reps))
	intervals := make([]opts.BarData, 0, len(reps))
	for i, ev := range reps {
		x = append(x, fmt.Sprintf("%.1fs", float64(ev.UnixNanos-sess.StartUnixNanos)/float64(time.Second)))
		counts = append(counts, opts.LineData{Value: ev.Seq})
		if i == 0 {
			intervals = append(intervals, opts.BarData{Value: nil})
		} else {
			intervals = append(intervals, opts.BarData{
				Value: float64(ev.UnixNanos-reps[i-1].UnixNanos) / float64(time.Millisecond),
			})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Drill Session", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s (%s)", sess.Drill, sess.SessionID),
			Subtitle: fmt.Sprintf("%d reps, %.1f reps/min, cadence %.2f",
				summary.RepCount, summary.RepsPerMinute, summary.CadenceScore),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("rep count", counts)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Inter-rep interval (ms)"}),
	)
	bar.SetXAxis(x).AddSeries("interval", intervals)

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render count chart: %v", err)
	}
	if err := bar.Render(f); err != nil {
		log.Fatalf("failed to render interval chart: %v", err)
	}

	fmt.Printf("wrote %s\n", *outFile)
}

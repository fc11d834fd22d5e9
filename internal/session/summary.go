package session

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary holds the statistics computed over one session's rep events.
type Summary struct {
	SessionID        string  `json:"session_id"`
	RepCount         int     `json:"rep_count"`
	DurationSec      float64 `json:"duration_sec"`
	RepsPerMinute    float64 `json:"reps_per_minute"`
	MeanIntervalMs   float64 `json:"mean_interval_ms"`
	StddevIntervalMs float64 `json:"stddev_interval_ms"`
	// CadenceScore is 1 for perfectly even rep spacing, approaching 0
	// as intervals get erratic (1 minus the coefficient of variation,
	// floored at 0).
	CadenceScore float64 `json:"cadence_score"`
}

// Summarize computes summary statistics for a session. A session with
// fewer than two reps yields only count and duration; interval
// statistics need at least two events.
func Summarize(sess *Session, reps []RepEvent) Summary {
	sum := Summary{
		SessionID: sess.SessionID,
		RepCount:  len(reps),
	}

	end := sess.EndUnixNanos
	if end == 0 && len(reps) > 0 {
		end = reps[len(reps)-1].UnixNanos
	}
	if end > sess.StartUnixNanos {
		sum.DurationSec = float64(end-sess.StartUnixNanos) / float64(time.Second)
	}
	if sum.DurationSec > 0 {
		sum.RepsPerMinute = float64(len(reps)) / sum.DurationSec * 60
	}

	if len(reps) < 2 {
		return sum
	}

	intervals := make([]float64, 0, len(reps)-1)
	for i := 1; i < len(reps); i++ {
		intervals = append(intervals, float64(reps[i].UnixNanos-reps[i-1].UnixNanos)/float64(time.Millisecond))
	}

	mean := stat.Mean(intervals, nil)
	var std float64
	if len(intervals) >= 2 {
		std = stat.StdDev(intervals, nil)
	}
	sum.MeanIntervalMs = mean
	sum.StddevIntervalMs = std
	if mean > 0 {
		score := 1 - std/mean
		if score < 0 {
			score = 0
		}
		sum.CadenceScore = score
	}
	return sum
}

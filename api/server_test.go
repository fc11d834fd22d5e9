package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtvision/repcount/internal/rep"
	"github.com/courtvision/repcount/internal/session"
	"github.com/courtvision/repcount/internal/vision"
)

func newTestServer(t *testing.T) (*Server, *rep.Pipeline) {
	t.Helper()

	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pipe, err := rep.NewPipeline(rep.Config{
		Model: vision.ModelSpec{Format: vision.FormatYOLO, NumDetections: 1, ValuesPerDetection: 6},
		Mode:  rep.ModeObject,
	})
	require.NoError(t, err)

	return NewServer(pipe, store, "dribble", "object"), pipe
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// oneBounce pushes a high-low-high ball trajectory through the pipeline,
// worth exactly one repetition.
func oneBounce(p *rep.Pipeline, start time.Time) {
	now := start
	for _, y := range []float64{0.2, 0.2, 0.2, 0.8, 0.8, 0.8, 0.8, 0.2, 0.2, 0.2} {
		objs := []vision.DetectedObject{{
			Label:      "basketball",
			Confidence: 0.9,
			Box:        vision.BoundingBox{X: 0.45, Y: y - 0.05, Width: 0.1, Height: 0.1},
		}}
		p.ProcessFrameAt(objs, nil, now)
		now = now.Add(33 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s, pipe := newTestServer(t)
	mux := s.ServeMux()

	// Start a session.
	rec := doRequest(t, mux, http.MethodPost, "/session/start?drill=crossover")
	require.Equal(t, http.StatusOK, rec.Code)

	var started session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, "crossover", started.Drill)
	assert.True(t, pipe.IsTracking())

	// A second start without stopping is rejected.
	rec = doRequest(t, mux, http.MethodPost, "/session/start")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	oneBounce(pipe, time.Now())

	rec = doRequest(t, mux, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st rep.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Count)
	assert.True(t, st.Tracking)

	// Stop stamps the final count.
	rec = doRequest(t, mux, http.MethodPost, "/session/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.Equal(t, started.SessionID, stopped.SessionID)
	assert.Equal(t, 1, stopped.RepCount)
	assert.NotZero(t, stopped.EndUnixNanos)
	assert.False(t, pipe.IsTracking())

	// Stopping again with no active session is an error.
	rec = doRequest(t, mux, http.MethodPost, "/session/stop")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHistoryAndSummary(t *testing.T) {
	t.Parallel()

	s, pipe := newTestServer(t)
	mux := s.ServeMux()

	rec := doRequest(t, mux, http.MethodPost, "/session/start")
	require.Equal(t, http.StatusOK, rec.Code)
	var started session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	oneBounce(pipe, time.Now())
	require.Equal(t, http.StatusOK, doRequest(t, mux, http.MethodPost, "/session/stop").Code)

	rec = doRequest(t, mux, http.MethodGet, "/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, started.SessionID, sessions[0].SessionID)
	assert.Equal(t, 1, sessions[0].RepCount)

	rec = doRequest(t, mux, http.MethodGet, "/sessions/summary?id="+started.SessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, started.SessionID, sum.SessionID)
	assert.Equal(t, 1, sum.RepCount)

	assert.Equal(t, http.StatusBadRequest,
		doRequest(t, mux, http.MethodGet, "/sessions/summary").Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, mux, http.MethodGet, "/sessions/summary?id=no-such-session").Code)
}

func TestRepEventsArePersisted(t *testing.T) {
	t.Parallel()

	s, pipe := newTestServer(t)
	mux := s.ServeMux()

	rec := doRequest(t, mux, http.MethodPost, "/session/start")
	require.Equal(t, http.StatusOK, rec.Code)
	var started session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	now := time.Now()
	oneBounce(pipe, now)
	oneBounce(pipe, now.Add(2*time.Second))

	reps, err := s.store.Reps(started.SessionID)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, 1, reps[0].Seq)
	assert.Equal(t, 2, reps[1].Seq)
	assert.Greater(t, reps[1].UnixNanos, reps[0].UnixNanos)
}

func TestResetClearsCountAndTrajectory(t *testing.T) {
	t.Parallel()

	s, pipe := newTestServer(t)
	mux := s.ServeMux()

	require.Equal(t, http.StatusOK, doRequest(t, mux, http.MethodPost, "/session/start").Code)
	oneBounce(pipe, time.Now())
	require.Equal(t, 1, pipe.Count())
	require.NotEmpty(t, s.recentSamples())

	rec := doRequest(t, mux, http.MethodPost, "/session/reset")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0, pipe.Count())
	assert.Empty(t, s.recentSamples())
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	mux := s.ServeMux()

	cases := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/session/start"},
		{http.MethodGet, "/session/stop"},
		{http.MethodGet, "/session/reset"},
		{http.MethodPost, "/status"},
		{http.MethodPost, "/sessions"},
		{http.MethodPost, "/sessions/summary"},
		{http.MethodPost, "/live"},
	}
	for _, tc := range cases {
		rec := doRequest(t, mux, tc.method, tc.target)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.target)
	}
}

func TestTrajectoryRingBufferIsBounded(t *testing.T) {
	t.Parallel()

	s, pipe := newTestServer(t)
	require.Equal(t, http.StatusOK,
		doRequest(t, s.ServeMux(), http.MethodPost, "/session/start").Code)

	now := time.Now()
	for i := 0; i < trajectoryBufferSize+100; i++ {
		pipe.ProcessFrameAt(nil, nil, now)
		now = now.Add(33 * time.Millisecond)
	}
	assert.Len(t, s.recentSamples(), trajectoryBufferSize)
}

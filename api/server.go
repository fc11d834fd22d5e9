// Package api exposes the session-controller HTTP surface: lifecycle
// endpoints the drill UI calls, read-only status and history, a live
// SSE count stream, and a debugging chart of the tracked trajectory.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/courtvision/repcount/internal/httputil"
	"github.com/courtvision/repcount/internal/monitoring"
	"github.com/courtvision/repcount/internal/rep"
	"github.com/courtvision/repcount/internal/session"
)

// trajectoryBufferSize is how many recent samples the server retains
// for the debug chart: one minute at 30fps.
const trajectoryBufferSize = 1800

// Server wires the counting pipeline to HTTP. It owns the mapping from
// pipeline lifecycle to persisted sessions: starting a session creates
// a row, each rep event is recorded as it is counted, stopping stamps
// the final count.
//
// Lock order: the pipeline's internal lock is below s.mu. Handlers
// never call into the pipeline while holding s.mu; pipeline callbacks
// (which run under the pipeline lock) may take s.mu.
type Server struct {
	pipe  *rep.Pipeline
	store *session.Store
	drill string
	mode  string

	mu      sync.Mutex
	current *session.Session
	// lastY is the most recent smoothed position with a defined signal,
	// recorded onto rep events as they are counted.
	lastY float64

	// Recent samples for the debug trajectory chart, ring-buffered.
	samples []rep.Sample

	// SSE subscribers keyed by id; events are dropped, not blocked on,
	// when a subscriber is slow.
	subscribers map[int]chan rep.Sample
	nextSubID   int
}

// NewServer builds a server and registers itself for the pipeline's
// rep and sample callbacks.
func NewServer(pipe *rep.Pipeline, store *session.Store, drill, mode string) *Server {
	s := &Server{
		pipe:        pipe,
		store:       store,
		drill:       drill,
		mode:        mode,
		subscribers: make(map[int]chan rep.Sample),
	}
	pipe.OnRep(s.handleRep)
	pipe.OnSample(s.handleSample)
	return s
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/start", s.handleStart)
	mux.HandleFunc("/session/stop", s.handleStop)
	mux.HandleFunc("/session/reset", s.handleReset)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/summary", s.handleSummary)
	mux.HandleFunc("/live", s.handleLive)
	return mux
}

// handleRep runs on the frame path when a repetition is counted.
func (s *Server) handleRep(count int, at time.Time) {
	s.mu.Lock()
	current := s.current
	y := s.lastY
	s.mu.Unlock()
	if current == nil || s.store == nil {
		return
	}

	if err := s.store.RecordRep(session.RepEvent{
		SessionID: current.SessionID,
		Seq:       count,
		UnixNanos: at.UnixNano(),
		SmoothedY: y,
	}); err != nil {
		monitoring.Logf("failed to record rep %d: %v", count, err)
	}
}

// handleSample runs on the frame path for every processed frame.
func (s *Server) handleSample(sample rep.Sample) {
	s.mu.Lock()
	if sample.HasSignal {
		s.lastY = sample.SmoothedY
	}
	s.samples = append(s.samples, sample)
	if len(s.samples) > trajectoryBufferSize {
		s.samples = s.samples[len(s.samples)-trajectoryBufferSize:]
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- sample:
		default: // slow subscriber, drop
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	drill := r.FormValue("drill")
	if drill == "" {
		drill = s.drill
	}

	sess := &session.Session{Drill: drill, Mode: s.mode}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		httputil.BadRequest(w, "session already active; stop it first")
		return
	}
	if s.store != nil {
		if err := s.store.CreateSession(sess); err != nil {
			s.mu.Unlock()
			httputil.InternalServerError(w, fmt.Sprintf("failed to create session: %v", err))
			return
		}
	}
	s.current = sess
	s.mu.Unlock()

	s.pipe.Reset()
	s.pipe.Start()

	monitoring.Logf("session %s started (drill=%s)", sess.SessionID, drill)
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.pipe.Stop()
	count := s.pipe.Count()
	endNanos := time.Now().UnixNano()

	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		httputil.BadRequest(w, "no active session")
		return
	}

	sess.EndUnixNanos = endNanos
	sess.RepCount = count
	if s.store != nil {
		if err := s.store.FinishSession(sess.SessionID, endNanos, count); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to finish session: %v", err))
			return
		}
	}

	monitoring.Logf("session %s stopped with %d reps", sess.SessionID, count)
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipe.Reset()

	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()

	httputil.WriteJSONOK(w, s.pipe.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.pipe.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no session store configured")
		return
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no session store configured")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing id parameter")
		return
	}

	sess, err := s.store.GetSession(id)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	reps, err := s.store.Reps(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load rep events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, session.Summarize(sess, reps))
}

// handleLive streams per-frame samples as server-sent events until the
// client disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.subscribe()
	defer s.unsubscribe(id)

	for {
		select {
		case sample := <-ch:
			fmt.Fprintf(w, "data: {\"count\":%d,\"phase\":%q,\"smoothed_y\":%g}\n\n",
				sample.Count, sample.Phase, sample.SmoothedY)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) subscribe() (int, chan rep.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan rep.Sample, 64)
	s.subscribers[id] = ch
	return id, ch
}

func (s *Server) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// recentSamples returns a copy of the trajectory ring buffer.
func (s *Server) recentSamples() []rep.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rep.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

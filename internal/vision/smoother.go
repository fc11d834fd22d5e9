package vision

import (
	"fmt"
	"math"
	"time"
)

// Smoother defaults, tuned for a 30fps camera: ten kept frames is about
// a third of a second of detection drop-out tolerance.
const (
	DefaultMaxFramesToKeep = 10
	DefaultDecay           = 0.8
)

// Smoother bridges momentary detection drop-outs. When a frame arrives
// empty, the last known detection is re-emitted with exponentially
// decayed confidence until the keep window runs out. Decay is per
// elapsed frame, not wall-clock, so the counting pipeline behaves the
// same on a replayed log as it did live.
type Smoother struct {
	maxFramesToKeep int
	decay           float64

	last *DetectedObject
	// lastConfidence is the originally observed confidence. Decayed
	// output always derives from this value rather than a previously
	// decayed one, so absence never compounds.
	lastConfidence  float64
	framesSinceSeen int
}

// NewSmoother validates the smoothing parameters at construction.
// decay must lie in (0,1); maxFramesToKeep must be non-negative.
func NewSmoother(maxFramesToKeep int, decay float64) (*Smoother, error) {
	if maxFramesToKeep < 0 {
		return nil, fmt.Errorf("maxFramesToKeep must be non-negative, got %d", maxFramesToKeep)
	}
	if decay <= 0 || decay >= 1 {
		return nil, fmt.Errorf("decay must be in (0,1), got %f", decay)
	}
	return &Smoother{maxFramesToKeep: maxFramesToKeep, decay: decay}, nil
}

// Apply folds one frame's detections into the smoother state and
// returns the effective detection list to feed forward.
func (s *Smoother) Apply(frame []DetectedObject) []DetectedObject {
	if len(frame) > 0 {
		// Top-ranked detection becomes the new last-known verbatim.
		det := frame[0]
		s.last = &det
		s.lastConfidence = det.Confidence
		s.framesSinceSeen = 0
		return frame
	}

	s.framesSinceSeen++
	if s.last == nil || s.framesSinceSeen > s.maxFramesToKeep {
		return nil
	}
	held := *s.last
	held.Confidence = s.lastConfidence * math.Pow(s.decay, float64(s.framesSinceSeen))
	return []DetectedObject{held}
}

// FramesSinceSeen reports how many consecutive frames have arrived
// without a direct observation.
func (s *Smoother) FramesSinceSeen() int {
	return s.framesSinceSeen
}

// Reset drops all smoother state. Called on session start and reset,
// never implicitly.
func (s *Smoother) Reset() {
	s.last = nil
	s.lastConfidence = 0
	s.framesSinceSeen = 0
}

// DisplayHold is the looser, wall-clock persistence tier used only for
// overlay rendering, so boxes do not flicker on screen during one-frame
// drop-outs. It is deliberately a separate type from Smoother: its
// state must never feed the counting pipeline.
type DisplayHold struct {
	window time.Duration
	last   []DetectedObject
	seenAt time.Time
}

// NewDisplayHold creates a hold with the given persistence window.
func NewDisplayHold(window time.Duration) *DisplayHold {
	return &DisplayHold{window: window}
}

// Apply returns the detections to display for this frame.
func (h *DisplayHold) Apply(now time.Time, frame []DetectedObject) []DetectedObject {
	if len(frame) > 0 {
		h.last = frame
		h.seenAt = now
		return frame
	}
	if h.last != nil && now.Sub(h.seenAt) <= h.window {
		return h.last
	}
	return nil
}

// Reset drops the held detections.
func (h *DisplayHold) Reset() {
	h.last = nil
	h.seenAt = time.Time{}
}

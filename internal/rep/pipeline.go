package rep

import (
	"fmt"
	"sync"
	"time"

	"github.com/courtvision/repcount/internal/pose"
	"github.com/courtvision/repcount/internal/vision"
)

// Config assembles a pipeline. Tuning may be nil, in which case every
// parameter takes its default.
type Config struct {
	Tuning *TuningConfig
	Model  vision.ModelSpec
	Mode   Mode
	Side   SidePolicy

	// Now overrides the pipeline clock; nil means time.Now. Replay and
	// tests drive frames through ProcessFrameAt instead.
	Now func() time.Time
}

// Sample is one frame's observable pipeline output, forwarded to the
// OnSample callback for live charting.
type Sample struct {
	At        time.Time `json:"at"`
	SmoothedY float64   `json:"smoothed_y"`
	HasSignal bool      `json:"has_signal"`
	Phase     Phase     `json:"phase"`
	Count     int       `json:"count"`
}

// Status is a consistent snapshot of the pipeline's UI-visible state.
type Status struct {
	Count      int     `json:"count"`
	Tracking   bool    `json:"tracking"`
	Phase      Phase   `json:"phase"`
	ActiveSide string  `json:"active_side,omitempty"`
	SmoothedY  float64 `json:"smoothed_y"`
	HasSignal  bool    `json:"has_signal"`
}

// Pipeline composes normalizer, smoother, position tracker, phase
// machine and the repetition counter for one drill session. One
// instance serves exactly one session; frames must arrive serialized,
// one at a time, in temporal order.
//
// All processing is synchronous and bounded-cost per frame. Callbacks
// run on the frame path and must not call back into the pipeline.
type Pipeline struct {
	mu sync.Mutex

	normalizer *vision.Normalizer
	smoother   *vision.Smoother
	hold       *vision.DisplayHold
	tracker    *PositionTracker
	machine    *PhaseMachine

	count    int
	tracking bool
	now      func() time.Time

	onObjects func([]vision.DetectedObject)
	onPose    func(*pose.Pose)
	onRep     func(count int, at time.Time)
	onSample  func(Sample)
}

// NewPipeline validates configuration and builds an idle pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = EmptyTuningConfig()
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeObject, ModePose, ModeHybrid:
	default:
		return nil, fmt.Errorf("unknown tracking mode %q", cfg.Mode)
	}
	side := cfg.Side
	if side == "" {
		side = SideAuto
	}
	switch side {
	case SideAuto, SideLeft, SideRight:
	default:
		return nil, fmt.Errorf("unknown side policy %q", side)
	}

	smoother, err := vision.NewSmoother(tuning.GetMaxFramesToKeep(), tuning.GetSmoothingDecay())
	if err != nil {
		return nil, err
	}
	machine, err := NewPhaseMachine(tuning.GetDownThreshold(), tuning.GetUpThreshold(), tuning.GetMinEventInterval())
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		normalizer: vision.NewNormalizer(cfg.Model, tuning.GetMinConfidence(), tuning.GetTargetClass()),
		smoother:   smoother,
		hold:       vision.NewDisplayHold(tuning.GetDisplayHold()),
		tracker: NewPositionTracker(cfg.Mode, side,
			tuning.GetSmoothingAlphaObject(), tuning.GetSmoothingAlphaPose(), tuning.GetMinVisibility()),
		machine: machine,
		now:     now,
	}, nil
}

// OnObjects registers the overlay passthrough for detections. The
// slice passed has been through the display-hold tier only, never the
// counting smoother.
func (p *Pipeline) OnObjects(fn func([]vision.DetectedObject)) { p.onObjects = fn }

// OnPose registers the overlay passthrough for poses.
func (p *Pipeline) OnPose(fn func(*pose.Pose)) { p.onPose = fn }

// OnRep registers the repetition event callback.
func (p *Pipeline) OnRep(fn func(count int, at time.Time)) { p.onRep = fn }

// OnSample registers the per-frame sample callback.
func (p *Pipeline) OnSample(fn func(Sample)) { p.onSample = fn }

// Start arms the pipeline and re-initializes the smoother, tracker and
// phase machine to their zero state so detections from before the
// session began cannot leak in. The count is preserved; pause/resume is
// Stop then Start.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetStateLocked()
	p.tracking = true
}

// Stop freezes processing without clearing the count. Frames delivered
// after Stop returns do not mutate any state.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracking = false
}

// Reset clears both pipeline state and the count. Calling it twice in a
// row is the same as calling it once.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetStateLocked()
	p.count = 0
}

func (p *Pipeline) resetStateLocked() {
	p.smoother.Reset()
	p.hold.Reset()
	p.tracker.Reset()
	p.machine.Reset()
}

// ProcessRawFrame normalizes one frame of raw model output and feeds it
// through the pipeline with the pipeline clock.
func (p *Pipeline) ProcessRawFrame(raw vision.RawFrame, ps *pose.Pose) {
	p.ProcessFrameAt(p.normalizer.Normalize(raw), ps, p.now())
}

// ProcessFrame feeds already-normalized detections with the pipeline
// clock.
func (p *Pipeline) ProcessFrame(objects []vision.DetectedObject, ps *pose.Pose) {
	p.ProcessFrameAt(objects, ps, p.now())
}

// ProcessFrameAt feeds one frame stamped with an explicit time. Replay
// uses this to reproduce a recorded session exactly.
func (p *Pipeline) ProcessFrameAt(objects []vision.DetectedObject, ps *pose.Pose, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Overlay passthrough stays live even while paused; it carries no
	// counting state.
	display := p.hold.Apply(now, objects)
	if p.onObjects != nil {
		p.onObjects(display)
	}
	if p.onPose != nil {
		p.onPose(ps)
	}

	// Armed check before any counting-state mutation, so in-flight
	// frames arriving after Stop are discarded.
	if !p.tracking {
		return
	}

	effective := p.smoother.Apply(objects)
	var det *vision.DetectedObject
	if len(effective) > 0 {
		det = &effective[0]
	}

	y, ok := p.tracker.Observe(det, ps)
	if ok && p.machine.Observe(y, now) {
		p.count++
		if p.onRep != nil {
			p.onRep(p.count, now)
		}
	}

	if p.onSample != nil {
		p.onSample(Sample{
			At:        now,
			SmoothedY: y,
			HasSignal: ok,
			Phase:     p.machine.Phase(),
			Count:     p.count,
		})
	}
}

// Count returns the monotonic repetition count for the session.
func (p *Pipeline) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// IsTracking reports whether the pipeline is armed.
func (p *Pipeline) IsTracking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracking
}

// Snapshot returns a consistent view of the UI-visible state.
func (p *Pipeline) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Count:    p.count,
		Tracking: p.tracking,
		Phase:    p.machine.Phase(),
	}
	if side, ok := p.tracker.ActiveSide(); ok {
		st.ActiveSide = string(side)
	}
	st.SmoothedY, st.HasSignal = p.tracker.SmoothedY()
	return st
}

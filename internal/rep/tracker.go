package rep

import (
	"math"

	"github.com/courtvision/repcount/internal/pose"
	"github.com/courtvision/repcount/internal/vision"
)

// Mode selects which signal feeds the position tracker. The three hook
// variants of the original app (ball-only, pose-only, combined)
// collapse into this one parameterized pipeline.
type Mode string

const (
	// ModeObject tracks the detected object's box center (ball drills).
	ModeObject Mode = "object"
	// ModePose tracks a wrist keypoint (bodyweight drills).
	ModePose Mode = "pose"
	// ModeHybrid tracks the wrist when visible and falls back to the
	// object; the object's X also steers wrist side selection.
	ModeHybrid Mode = "hybrid"
)

// SidePolicy controls wrist selection in pose and hybrid modes.
type SidePolicy string

const (
	SideAuto  SidePolicy = "auto"
	SideLeft  SidePolicy = "left"
	SideRight SidePolicy = "right"
)

// PositionTracker extracts and exponentially smooths the vertical
// coordinate of the tracked target across frames. The update rule is
//
//	smoothedY = smoothedY*alpha + rawY*(1-alpha)
//
// with alpha the history weight, seeded directly from the first
// observation after a reset.
type PositionTracker struct {
	mode          Mode
	sidePolicy    SidePolicy
	alphaObject   float64
	alphaPose     float64
	minVisibility float64

	smoothedY float64
	seen      bool

	activeSide pose.Side
	hasSide    bool
}

// NewPositionTracker builds a tracker. Alpha bounds are validated
// upstream by TuningConfig.Validate.
func NewPositionTracker(mode Mode, sidePolicy SidePolicy, alphaObject, alphaPose, minVisibility float64) *PositionTracker {
	return &PositionTracker{
		mode:          mode,
		sidePolicy:    sidePolicy,
		alphaObject:   alphaObject,
		alphaPose:     alphaPose,
		minVisibility: minVisibility,
	}
}

// Observe folds one frame's effective detection and pose into the
// smoothed position. It returns the updated smoothedY and whether a
// defined signal existed this frame; with no signal the tracker holds
// its state unchanged.
func (t *PositionTracker) Observe(det *vision.DetectedObject, p *pose.Pose) (float64, bool) {
	rawY, alpha, ok := t.selectSignal(det, p)
	if !ok {
		return t.smoothedY, false
	}

	if !t.seen {
		t.smoothedY = rawY
		t.seen = true
	} else {
		t.smoothedY = t.smoothedY*alpha + rawY*(1-alpha)
	}
	return t.smoothedY, true
}

func (t *PositionTracker) selectSignal(det *vision.DetectedObject, p *pose.Pose) (rawY, alpha float64, ok bool) {
	switch t.mode {
	case ModeObject:
		if det == nil {
			return 0, 0, false
		}
		return det.Box.CenterY(), t.alphaObject, true

	case ModePose:
		kp, found := t.selectWrist(p, nil)
		if !found {
			return 0, 0, false
		}
		return kp.Y, t.alphaPose, true

	case ModeHybrid:
		if kp, found := t.selectWrist(p, det); found {
			return kp.Y, t.alphaPose, true
		}
		if det != nil {
			return det.Box.CenterY(), t.alphaObject, true
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// selectWrist applies the side policy. Auto picks the wrist whose X is
// nearest the ball's X, or the lower wrist (larger Y) when no ball is
// present. Ties keep the previously selected side so the choice does
// not flap frame to frame.
func (t *PositionTracker) selectWrist(p *pose.Pose, det *vision.DetectedObject) (pose.Keypoint, bool) {
	if p == nil {
		return pose.Keypoint{}, false
	}

	switch t.sidePolicy {
	case SideLeft:
		return t.takeSide(p, pose.SideLeft)
	case SideRight:
		return t.takeSide(p, pose.SideRight)
	}

	left, lok := p.Wrist(pose.SideLeft, t.minVisibility)
	right, rok := p.Wrist(pose.SideRight, t.minVisibility)

	switch {
	case lok && rok:
		if t.preferLeft(left, right, det) {
			return t.setSide(pose.SideLeft, left)
		}
		return t.setSide(pose.SideRight, right)
	case lok:
		return t.setSide(pose.SideLeft, left)
	case rok:
		return t.setSide(pose.SideRight, right)
	}
	return pose.Keypoint{}, false
}

func (t *PositionTracker) preferLeft(left, right pose.Keypoint, det *vision.DetectedObject) bool {
	if det != nil {
		ballX := det.Box.CenterX()
		dl := math.Abs(left.X - ballX)
		dr := math.Abs(right.X - ballX)
		if dl != dr {
			return dl < dr
		}
	} else if left.Y != right.Y {
		// Lower wrist is the proxy for the active dribbling hand.
		return left.Y > right.Y
	}
	// Tie: stick with the previous selection.
	return t.hasSide && t.activeSide == pose.SideLeft
}

func (t *PositionTracker) takeSide(p *pose.Pose, side pose.Side) (pose.Keypoint, bool) {
	kp, ok := p.Wrist(side, t.minVisibility)
	if !ok {
		return pose.Keypoint{}, false
	}
	return t.setSide(side, kp)
}

func (t *PositionTracker) setSide(side pose.Side, kp pose.Keypoint) (pose.Keypoint, bool) {
	t.activeSide = side
	t.hasSide = true
	return kp, true
}

// SmoothedY returns the smoothed position; the second result is false
// until at least one observation has been folded in since reset.
func (t *PositionTracker) SmoothedY() (float64, bool) {
	return t.smoothedY, t.seen
}

// ActiveSide reports the tracker's current wrist-side decision.
func (t *PositionTracker) ActiveSide() (pose.Side, bool) {
	return t.activeSide, t.hasSide
}

// Reset clears the smoothed position and side selection.
func (t *PositionTracker) Reset() {
	t.smoothedY = 0
	t.seen = false
	t.activeSide = ""
	t.hasSide = false
}

package rep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtvision/repcount/internal/pose"
	"github.com/courtvision/repcount/internal/vision"
)

func ballAt(x, y float64) *vision.DetectedObject {
	return &vision.DetectedObject{
		Label:      "basketball",
		Confidence: 0.9,
		Box:        vision.BoundingBox{X: x - 0.05, Y: y - 0.05, Width: 0.1, Height: 0.1},
	}
}

func poseWithWrists(leftX, leftY, rightX, rightY, vis float64) *pose.Pose {
	pts := make([]pose.Keypoint, pose.CocoNumKeypoints)
	pts[pose.CocoLeftWrist] = pose.Keypoint{X: leftX, Y: leftY, Visibility: vis}
	pts[pose.CocoRightWrist] = pose.Keypoint{X: rightX, Y: rightY, Visibility: vis}
	return &pose.Pose{Convention: pose.COCO17, Points: pts}
}

func TestPositionTrackerObjectSmoothing(t *testing.T) {
	t.Parallel()

	tr := NewPositionTracker(ModeObject, SideAuto, 0.5, 0.35, 0.3)

	// First observation seeds directly.
	y, ok := tr.Observe(ballAt(0.5, 0.4), nil)
	require.True(t, ok)
	assert.InDelta(t, 0.4, y, 1e-9)

	// Then smoothedY = smoothedY*alpha + rawY*(1-alpha).
	y, ok = tr.Observe(ballAt(0.5, 0.8), nil)
	require.True(t, ok)
	assert.InDelta(t, 0.4*0.5+0.8*0.5, y, 1e-9)

	y, ok = tr.Observe(ballAt(0.5, 0.8), nil)
	require.True(t, ok)
	assert.InDelta(t, 0.6*0.5+0.8*0.5, y, 1e-9)
}

func TestPositionTrackerHoldsWithoutSignal(t *testing.T) {
	t.Parallel()

	tr := NewPositionTracker(ModeObject, SideAuto, 0.1, 0.35, 0.3)

	_, ok := tr.Observe(nil, nil)
	assert.False(t, ok)
	_, seen := tr.SmoothedY()
	assert.False(t, seen)

	tr.Observe(ballAt(0.5, 0.4), nil)
	y, ok := tr.Observe(nil, nil)
	assert.False(t, ok)
	assert.InDelta(t, 0.4, y, 1e-9, "smoothed value holds across gaps")

	// The next real observation resumes smoothing from the held value,
	// it does not re-seed.
	y, ok = tr.Observe(ballAt(0.5, 0.8), nil)
	require.True(t, ok)
	assert.InDelta(t, 0.4*0.1+0.8*0.9, y, 1e-9)
}

func TestPositionTrackerPoseMode(t *testing.T) {
	t.Parallel()

	t.Run("fixed side", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModePose, SideLeft, 0.1, 0.35, 0.3)

		y, ok := tr.Observe(nil, poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9))
		require.True(t, ok)
		assert.InDelta(t, 0.42, y, 1e-9)

		side, has := tr.ActiveSide()
		require.True(t, has)
		assert.Equal(t, pose.SideLeft, side)
	})

	t.Run("auto picks the lower wrist without a ball", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModePose, SideAuto, 0.1, 0.35, 0.3)

		y, ok := tr.Observe(nil, poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9))
		require.True(t, ok)
		assert.InDelta(t, 0.55, y, 1e-9)

		side, _ := tr.ActiveSide()
		assert.Equal(t, pose.SideRight, side)
	})

	t.Run("auto tie keeps the previous side", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModePose, SideAuto, 0.1, 0.35, 0.3)

		tr.Observe(nil, poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9))
		side, _ := tr.ActiveSide()
		require.Equal(t, pose.SideRight, side)

		// Both wrists at the same height: no flapping.
		tr.Observe(nil, poseWithWrists(0.3, 0.50, 0.7, 0.50, 0.9))
		side, _ = tr.ActiveSide()
		assert.Equal(t, pose.SideRight, side)
	})

	t.Run("low visibility wrist is skipped", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModePose, SideAuto, 0.1, 0.35, 0.3)

		p := poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9)
		p.Points[pose.CocoRightWrist].Visibility = 0.1

		y, ok := tr.Observe(nil, p)
		require.True(t, ok)
		assert.InDelta(t, 0.42, y, 1e-9, "falls back to the visible wrist")

		p.Points[pose.CocoLeftWrist].Visibility = 0.1
		_, ok = tr.Observe(nil, p)
		assert.False(t, ok)
	})
}

func TestPositionTrackerHybridMode(t *testing.T) {
	t.Parallel()

	t.Run("ball X steers wrist selection", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModeHybrid, SideAuto, 0.1, 0.35, 0.3)

		// Right wrist is lower, but the ball sits under the left hand.
		y, ok := tr.Observe(ballAt(0.32, 0.6), poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9))
		require.True(t, ok)
		assert.InDelta(t, 0.42, y, 1e-9)

		side, _ := tr.ActiveSide()
		assert.Equal(t, pose.SideLeft, side)
	})

	t.Run("falls back to the ball when no wrist qualifies", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModeHybrid, SideAuto, 0.1, 0.35, 0.3)

		y, ok := tr.Observe(ballAt(0.5, 0.6), poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.1))
		require.True(t, ok)
		assert.InDelta(t, 0.6, y, 1e-9)
	})

	t.Run("no signal at all", func(t *testing.T) {
		t.Parallel()
		tr := NewPositionTracker(ModeHybrid, SideAuto, 0.1, 0.35, 0.3)

		_, ok := tr.Observe(nil, nil)
		assert.False(t, ok)
	})
}

func TestPositionTrackerReset(t *testing.T) {
	t.Parallel()

	tr := NewPositionTracker(ModePose, SideAuto, 0.1, 0.35, 0.3)
	tr.Observe(nil, poseWithWrists(0.3, 0.42, 0.7, 0.55, 0.9))

	tr.Reset()

	_, seen := tr.SmoothedY()
	assert.False(t, seen)
	_, has := tr.ActiveSide()
	assert.False(t, has)

	// First observation after reset seeds again.
	y, ok := tr.Observe(nil, poseWithWrists(0.3, 0.9, 0.7, 0.2, 0.9))
	require.True(t, ok)
	assert.InDelta(t, 0.9, y, 1e-9)
}

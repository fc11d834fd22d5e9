package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ball(conf float64) DetectedObject {
	return DetectedObject{
		Label:      "basketball",
		Confidence: conf,
		Box:        BoundingBox{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2},
	}
}

func TestNewSmootherValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSmoother(-1, 0.8)
	assert.Error(t, err)

	_, err = NewSmoother(10, 0)
	assert.Error(t, err)

	_, err = NewSmoother(10, 1)
	assert.Error(t, err)

	_, err = NewSmoother(10, 0.8)
	assert.NoError(t, err)
}

func TestSmootherPersistence(t *testing.T) {
	t.Parallel()

	t.Run("keep window expires after maxFramesToKeep", func(t *testing.T) {
		t.Parallel()
		s, err := NewSmoother(10, 0.8)
		require.NoError(t, err)

		// Detection present for 3 frames, then absent.
		for i := 0; i < 3; i++ {
			out := s.Apply([]DetectedObject{ball(0.9)})
			require.Len(t, out, 1)
		}

		for i := 1; i <= 10; i++ {
			out := s.Apply(nil)
			require.Len(t, out, 1, "frame %d of absence should still emit", i)
		}

		// The 11th absent frame is beyond the keep window.
		out := s.Apply(nil)
		assert.Empty(t, out)
	})

	t.Run("decayed confidence derives from the original observation", func(t *testing.T) {
		t.Parallel()
		s, err := NewSmoother(10, 0.8)
		require.NoError(t, err)

		s.Apply([]DetectedObject{ball(1.0)})

		prev := 1.0
		for i := 1; i <= 10; i++ {
			out := s.Apply(nil)
			require.Len(t, out, 1)
			// Bounded by the original confidence and strictly decreasing.
			assert.Less(t, out[0].Confidence, prev, "frame %d", i)
			prev = out[0].Confidence
		}
		// After 10 frames: 1.0 * 0.8^10.
		assert.InDelta(t, 0.1073741824, prev, 1e-9)
	})

	t.Run("fresh detection resets the absence counter", func(t *testing.T) {
		t.Parallel()
		s, err := NewSmoother(2, 0.8)
		require.NoError(t, err)

		s.Apply([]DetectedObject{ball(0.9)})
		s.Apply(nil)
		s.Apply(nil)
		assert.Equal(t, 2, s.FramesSinceSeen())

		s.Apply([]DetectedObject{ball(0.7)})
		assert.Equal(t, 0, s.FramesSinceSeen())

		out := s.Apply(nil)
		require.Len(t, out, 1)
		// Decay restarts from the new observation's confidence.
		assert.InDelta(t, 0.7*0.8, out[0].Confidence, 1e-9)
	})

	t.Run("reset forgets the last detection", func(t *testing.T) {
		t.Parallel()
		s, err := NewSmoother(10, 0.8)
		require.NoError(t, err)

		s.Apply([]DetectedObject{ball(0.9)})
		s.Reset()
		assert.Empty(t, s.Apply(nil))
		assert.Equal(t, 1, s.FramesSinceSeen())
	})
}

func TestDisplayHold(t *testing.T) {
	t.Parallel()

	h := NewDisplayHold(300 * time.Millisecond)
	t0 := time.Now()

	frame := []DetectedObject{ball(0.9)}
	assert.Len(t, h.Apply(t0, frame), 1)

	// Within the window the held detections come back.
	assert.Len(t, h.Apply(t0.Add(100*time.Millisecond), nil), 1)
	assert.Len(t, h.Apply(t0.Add(300*time.Millisecond), nil), 1)

	// Beyond the window the hold is empty.
	assert.Empty(t, h.Apply(t0.Add(301*time.Millisecond), nil))

	h.Apply(t0.Add(400*time.Millisecond), frame)
	h.Reset()
	assert.Empty(t, h.Apply(t0.Add(401*time.Millisecond), nil))
}

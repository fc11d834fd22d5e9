// Package vision converts raw on-device model output into uniform
// detection samples and smooths them over time. It is the front half of
// the rep-counting pipeline: everything here operates per-frame on
// normalized [0,1] coordinates and never blocks.
package vision

// Coordinate convention: (0,0) is the top-left of the model's square
// input frame, Y grows downward. All box values are normalized to the
// frame dimension.

const (
	// MinBoxExtent is the floor applied to box width/height so a
	// detection never degenerates to a zero-area box.
	MinBoxExtent = 0.01
)

// BoundingBox is a top-left anchored box in normalized coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CenterX returns the horizontal center of the box.
func (b BoundingBox) CenterX() float64 {
	return b.X + b.Width/2
}

// CenterY returns the vertical center of the box.
func (b BoundingBox) CenterY() float64 {
	return b.Y + b.Height/2
}

// DetectedObject is one detection instance for one frame. Instances are
// immutable once emitted by the normalizer; the smoother copies rather
// than mutates them.
type DetectedObject struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"boundingBox"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampExtent(v float64) float64 {
	if v < MinBoxExtent {
		return MinBoxExtent
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampBox applies the normalization clamp policy: position to [0,1],
// extents to [MinBoxExtent,1].
func clampBox(b BoundingBox) BoundingBox {
	return BoundingBox{
		X:      clamp01(b.X),
		Y:      clamp01(b.Y),
		Width:  clampExtent(b.Width),
		Height: clampExtent(b.Height),
	}
}

package vision

import "math"

// OutputFormat identifies how the active model lays out its raw output
// tensors.
type OutputFormat string

const (
	// FormatYOLO is a single flat tensor of fixed-size records,
	// [x1,y1,x2,y2,confidence,classId] per detection slot, coordinates
	// already normalized to [0,1].
	FormatYOLO OutputFormat = "yolo"
	// FormatAnchorBased is the EfficientDet-style mobile export:
	// parallel boxes/classes/scores tensors plus a valid-detection
	// count. Boxes arrive as (y1,x1,y2,x2) in model-input pixel space.
	FormatAnchorBased OutputFormat = "anchor-based"
	// FormatMultiHead is parallel boxes/classes/scores tensors with
	// normalized corner-form (x1,y1,x2,y2) boxes and no count tensor.
	FormatMultiHead OutputFormat = "multi-head"
)

// BoxForm says how a single-tensor record encodes its box.
type BoxForm int

const (
	BoxCorner BoxForm = iota // x1,y1,x2,y2
	BoxCenter                // cx,cy,w,h
)

// ModelSpec describes the output contract of the active model. It is
// fixed for the lifetime of a pipeline.
type ModelSpec struct {
	Format             OutputFormat
	NumDetections      int
	ValuesPerDetection int
	// InputSize is the model's square input edge in pixels. Anchor-based
	// exports emit pixel-space boxes that must be divided by this.
	InputSize int
	// Form applies to single-tensor formats only.
	Form   BoxForm
	Labels []string
}

// RawFrame carries one frame's raw inference output. Exactly one of the
// tensor layouts is populated depending on the model format.
type RawFrame struct {
	// Tensor holds the flat single-tensor output (yolo).
	Tensor []float32
	// Boxes/Classes/Scores hold the multi-tensor outputs, indexed by
	// detection slot; Boxes has 4 values per slot.
	Boxes   []float32
	Classes []float32
	Scores  []float32
	// Count is the valid-detection count tensor, where the model
	// provides one. Negative or oversized counts are clamped.
	Count int
}

// Normalizer converts raw model output into at most one DetectedObject
// per frame: the highest-confidence candidate that meets the confidence
// threshold and the optional class restriction. Malformed frames (wrong
// buffer length for the declared format) yield zero detections; a
// record containing NaN is skipped. Nothing here returns an error --
// inference glitches must never propagate past this boundary.
type Normalizer struct {
	spec          ModelSpec
	minConfidence float64
	// targetClass restricts selection to one class id; -1 accepts any.
	targetClass int
}

// NewNormalizer builds a normalizer for the given model. targetClass of
// -1 disables class filtering.
func NewNormalizer(spec ModelSpec, minConfidence float64, targetClass int) *Normalizer {
	return &Normalizer{spec: spec, minConfidence: minConfidence, targetClass: targetClass}
}

// Normalize selects the best detection from one frame of raw output.
// The returned slice has length zero or one.
func (n *Normalizer) Normalize(frame RawFrame) []DetectedObject {
	switch n.spec.Format {
	case FormatYOLO:
		return n.normalizeSingleTensor(frame.Tensor)
	case FormatAnchorBased, FormatMultiHead:
		return n.normalizeMultiTensor(frame)
	default:
		return nil
	}
}

type candidate struct {
	box        BoundingBox
	confidence float64
	classID    int
}

func (n *Normalizer) normalizeSingleTensor(tensor []float32) []DetectedObject {
	vpd := n.spec.ValuesPerDetection
	if vpd < 6 || len(tensor) != n.spec.NumDetections*vpd {
		return nil // malformed buffer: treat as zero detections
	}

	best, ok := candidate{}, false
	for i := 0; i < n.spec.NumDetections; i++ {
		rec := tensor[i*vpd : i*vpd+vpd]
		if hasNaN(rec[:6]) {
			continue
		}
		conf := float64(rec[4])
		classID := int(rec[5])
		if !n.accept(conf, classID) || (ok && conf <= best.confidence) {
			continue
		}
		var box BoundingBox
		if n.spec.Form == BoxCenter {
			box = centerToBox(float64(rec[0]), float64(rec[1]), float64(rec[2]), float64(rec[3]))
		} else {
			box = cornersToBox(float64(rec[0]), float64(rec[1]), float64(rec[2]), float64(rec[3]))
		}
		best, ok = candidate{box: box, confidence: conf, classID: classID}, true
	}
	return n.emit(best, ok)
}

func (n *Normalizer) normalizeMultiTensor(frame RawFrame) []DetectedObject {
	slots := len(frame.Scores)
	if slots == 0 || len(frame.Boxes) != slots*4 || len(frame.Classes) != slots {
		return nil
	}
	if n.spec.Format == FormatAnchorBased {
		// The count tensor limits the valid slots; anything beyond it is
		// garbage left over from the fixed-size export.
		if frame.Count >= 0 && frame.Count < slots {
			slots = frame.Count
		}
	}

	best, ok := candidate{}, false
	for i := 0; i < slots; i++ {
		rec := frame.Boxes[i*4 : i*4+4]
		if hasNaN(rec) || math.IsNaN(float64(frame.Scores[i])) {
			continue
		}
		conf := float64(frame.Scores[i])
		classID := int(frame.Classes[i])
		if !n.accept(conf, classID) || (ok && conf <= best.confidence) {
			continue
		}
		var box BoundingBox
		if n.spec.Format == FormatAnchorBased {
			// (y1,x1,y2,x2) pixel-space order from the mobile export.
			size := float64(n.spec.InputSize)
			if size <= 0 {
				return nil
			}
			box = cornersToBox(
				float64(rec[1])/size, float64(rec[0])/size,
				float64(rec[3])/size, float64(rec[2])/size,
			)
		} else {
			box = cornersToBox(float64(rec[0]), float64(rec[1]), float64(rec[2]), float64(rec[3]))
		}
		best, ok = candidate{box: box, confidence: conf, classID: classID}, true
	}
	return n.emit(best, ok)
}

func (n *Normalizer) accept(conf float64, classID int) bool {
	if math.IsNaN(conf) || conf < n.minConfidence {
		return false
	}
	return n.targetClass < 0 || classID == n.targetClass
}

func (n *Normalizer) emit(c candidate, ok bool) []DetectedObject {
	if !ok {
		return nil
	}
	return []DetectedObject{{
		Label:      Label(n.spec.Labels, c.classID),
		Confidence: c.confidence,
		Box:        clampBox(c.box),
	}}
}

func cornersToBox(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func centerToBox(cx, cy, w, h float64) BoundingBox {
	return BoundingBox{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

func hasNaN(vals []float32) bool {
	for _, v := range vals {
		if math.IsNaN(float64(v)) {
			return true
		}
	}
	return false
}

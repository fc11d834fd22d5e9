// Package pose models the keypoint output of on-device pose estimators.
// Two conventions are supported: the 17-point COCO skeleton
// (MoveNet-style exports) and the 33-point BlazePose skeleton.
package pose

// COCO 17-keypoint indices.
const (
	CocoNose          = 0
	CocoLeftEye       = 1
	CocoRightEye      = 2
	CocoLeftEar       = 3
	CocoRightEar      = 4
	CocoLeftShoulder  = 5
	CocoRightShoulder = 6
	CocoLeftElbow     = 7
	CocoRightElbow    = 8
	CocoLeftWrist     = 9
	CocoRightWrist    = 10
	CocoLeftHip       = 11
	CocoRightHip      = 12
	CocoLeftKnee      = 13
	CocoRightKnee     = 14
	CocoLeftAnkle     = 15
	CocoRightAnkle    = 16
	CocoNumKeypoints  = 17
)

// BlazePose 33-keypoint indices (the subset this package reads).
const (
	BlazeLeftShoulder  = 11
	BlazeRightShoulder = 12
	BlazeLeftElbow     = 13
	BlazeRightElbow    = 14
	BlazeLeftWrist     = 15
	BlazeRightWrist    = 16
	BlazeLeftHip       = 23
	BlazeRightHip      = 24
	BlazeNumKeypoints  = 33
)

// Convention identifies the skeleton layout of a Pose.
type Convention int

const (
	COCO17 Convention = iota
	BlazePose33
)

// Side names a body side for keypoint selection.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Keypoint is one named 2D point in normalized frame coordinates with
// an optional visibility/confidence scalar.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Pose is one frame's keypoint estimate for a single person.
type Pose struct {
	Convention Convention `json:"convention"`
	Points     []Keypoint `json:"points"`
}

// wristIndex maps a side to the wrist slot for the pose's convention.
func (p *Pose) wristIndex(side Side) int {
	switch p.Convention {
	case BlazePose33:
		if side == SideLeft {
			return BlazeLeftWrist
		}
		return BlazeRightWrist
	default:
		if side == SideLeft {
			return CocoLeftWrist
		}
		return CocoRightWrist
	}
}

// Wrist returns the wrist keypoint for the given side. A point missing
// from the buffer or below minVisibility is treated as absent for the
// frame.
func (p *Pose) Wrist(side Side, minVisibility float64) (Keypoint, bool) {
	if p == nil {
		return Keypoint{}, false
	}
	idx := p.wristIndex(side)
	if idx >= len(p.Points) {
		return Keypoint{}, false
	}
	kp := p.Points[idx]
	if kp.Visibility < minVisibility {
		return Keypoint{}, false
	}
	return kp, true
}

package gesture

import "github.com/ayusman/mudra/internal/detector"

// FingerState holds whether each digit is extended (1) or flexed (0).
type FingerState struct {
	Thumb  int `json:"thumb"`
	Index  int `json:"index"`
	Middle int `json:"middle"`
	Ring   int `json:"ring"`
	Pinky  int `json:"pinky"`
}

// Vector returns the state as [thumb, index, middle, ring, pinky].
func (f FingerState) Vector() [5]int {
	return [5]int{f.Thumb, f.Index, f.Middle, f.Ring, f.Pinky}
}

var (
	fingerTips = [4]int{detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip}
	fingerPips = [4]int{detector.IndexPIP, detector.MiddlePIP, detector.RingPIP, detector.PinkyPIP}
)

// ExtractFingers derives the finger state of the first hand in hands, or nil
// when there is none.
//
// The thumb counts as extended when its tip lies right of the IP joint, which
// holds for a right hand on a mirrored front camera. Handedness is not
// consulted, so a left hand's thumb reads inverted. The other fingers are
// extended when the tip lies above its PIP joint in image space.
func ExtractFingers(hands []detector.HandLandmarks) *FingerState {
	if len(hands) == 0 {
		return nil
	}
	p := hands[0].Points

	var fs FingerState
	if p[detector.ThumbTip].X > p[detector.ThumbIP].X {
		fs.Thumb = 1
	}

	digits := [4]*int{&fs.Index, &fs.Middle, &fs.Ring, &fs.Pinky}
	for i, d := range digits {
		if p[fingerTips[i]].Y < p[fingerPips[i]].Y {
			*d = 1
		}
	}

	return &fs
}

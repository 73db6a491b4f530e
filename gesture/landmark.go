// Package gesture turns hand-landmark frames into string-pluck triggers.
package gesture

import "math"

// LandmarkCount is the number of landmarks in a complete hand.
const LandmarkCount = 21

// Wrist is the landmark every finger is measured from.
const Wrist = 0

// FingerCount is the number of tracked fingers per hand; the thumb is ignored.
const FingerCount = 4

var (
	tipIndex = [FingerCount]int{8, 12, 16, 20}
	pipIndex = [FingerCount]int{6, 10, 14, 18}
)

// OpennessRatio is how much farther from the wrist a fingertip must be
// than its PIP joint for the finger to count as extended.
const OpennessRatio = 0.9

// Landmark is a normalized image-space point.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Hand is the 21 landmarks of one detected hand.
type Hand []Landmark

// Frame is one detector result.
type Frame struct {
	TimestampMs float64 `json:"timestamp_ms"`
	Hands       []Hand  `json:"hands"`
}

// Tip returns the fingertip landmark of finger f (0 = index).
func (h Hand) Tip(f int) Landmark { return h[tipIndex[f]] }

// PIP returns the middle joint landmark of finger f.
func (h Hand) PIP(f int) Landmark { return h[pipIndex[f]] }

// Valid reports whether h has every landmark the tracker reads, all finite.
func (h Hand) Valid() bool {
	if len(h) < LandmarkCount {
		return false
	}
	if !finite(h[Wrist]) {
		return false
	}
	for f := 0; f < FingerCount; f++ {
		if !finite(h[tipIndex[f]]) || !finite(h[pipIndex[f]]) {
			return false
		}
	}
	return true
}

// IsOpen reports whether finger f is extended. The test is memoryless.
func (h Hand) IsOpen(f int) bool {
	w := h[Wrist]
	return dist(w, h.Tip(f)) > OpennessRatio*dist(w, h.PIP(f))
}

func dist(a, b Landmark) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func finite(l Landmark) bool {
	return !math.IsNaN(l.X) && !math.IsInf(l.X, 0) && !math.IsNaN(l.Y) && !math.IsInf(l.Y, 0)
}

// PointingHand builds a hand whose index fingertip sits at mirrored position
// (x, y), extended or curled. The other fingers are curled.
func PointingHand(x, y float64, extended bool) Hand {
	raw := 1 - x
	h := make(Hand, LandmarkCount)
	for i := range h {
		h[i] = Landmark{X: raw, Y: y + 0.3}
	}
	for f := 0; f < FingerCount; f++ {
		h[pipIndex[f]] = Landmark{X: raw, Y: y + 0.15}
		h[tipIndex[f]] = Landmark{X: raw, Y: y + 0.25}
	}
	if extended {
		h[tipIndex[0]] = Landmark{X: raw, Y: y}
	}
	return h
}

// Package analysis measures rendered plucks: pitch, decay and a distance
// between two recordings used when fitting a synth config.
package analysis

import "math"

// EnvelopeFrame and EnvelopeHop are the RMS envelope window sizes in samples.
const (
	EnvelopeFrame = 256
	EnvelopeHop   = 128
)

// Envelope returns the framed RMS of x.
func Envelope(x []float64, frame, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := range out {
		start := i * hop
		out[i] = RMS(x[start : start+frame])
	}
	return out
}

// RMS is the root mean square of x, 0 for empty input.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

// Peak is the largest absolute sample.
func Peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// DB converts a linear amplitude to dB with a -240 dB floor.
func DB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20 * math.Log10(x)
}

// DecaySlope fits a line to the envelope in dB from its peak down to 60 dB
// below it and returns the slope in dB per second. NaN means the envelope is
// too short to fit.
func DecaySlope(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peakIdx := 0
	for i, v := range env {
		if v > env[peakIdx] {
			peakIdx = i
		}
	}
	peak := DB(env[peakIdx])
	start := peakIdx + 1
	end := len(env)
	for i := start; i < len(env); i++ {
		if DB(env[i]) < peak-60 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}

	var sx, sy, sxx, sxy float64
	n := float64(end - start)
	for i := start; i < end; i++ {
		t := float64(i-start) * hopSec
		y := DB(env[i])
		sx += t
		sy += y
		sxx += t * t
		sxy += t * y
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

// Onset returns the first sample whose magnitude reaches rel times the peak,
// or -1 when x is silent.
func Onset(x []float64, rel float64) int {
	p := Peak(x)
	if p == 0 {
		return -1
	}
	th := p * rel
	for i, v := range x {
		if math.Abs(v) >= th {
			return i
		}
	}
	return -1
}

// AttackTime is the time from onset (10% of peak) to the envelope peak.
func AttackTime(x []float64, sampleRate int) float64 {
	on := Onset(x, 0.1)
	if on < 0 || sampleRate <= 0 {
		return 0
	}
	env := Envelope(x[on:], EnvelopeFrame/4, EnvelopeHop/4)
	if len(env) == 0 {
		return 0
	}
	peakIdx := 0
	for i, v := range env {
		if v > env[peakIdx] {
			peakIdx = i
		}
	}
	return float64(peakIdx*EnvelopeHop/4) / float64(sampleRate)
}

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Package dsp holds the per-sample building blocks of the audio graph: the
// voice lowpass, the shared feedback delay, the master limiter and the
// offline room convolver.
package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// flush zeroes denormal values before they are stored as filter state.
func flush(v float32) float32 {
	return float32(dspcore.FlushDenormals(float64(v)))
}

// Biquad is a second-order IIR section in Direct Form I with coefficients
// normalized by a0.
type Biquad struct {
	b0, b1, b2, a1, a2 float32
	in1, in2           float32
	out1, out2         float32
}

// NewBiquad returns a section with the given normalized coefficients.
func NewBiquad(b0, b1, b2, a1, a2 float32) *Biquad {
	return &Biquad{b0: b0, b1: b1, b2: b2, a1: a1, a2: a2}
}

// Process filters one sample.
func (f *Biquad) Process(x float32) float32 {
	y := flush(f.b0*x + f.b1*f.in1 + f.b2*f.in2 - f.a1*f.out1 - f.a2*f.out2)
	f.in1, f.in2 = x, f.in1
	f.out1, f.out2 = y, f.out1
	return y
}

// Reset clears the filter history.
func (f *Biquad) Reset() {
	f.in1, f.in2, f.out1, f.out2 = 0, 0, 0, 0
}

// NewLowpass returns an RBJ cookbook lowpass. Cutoffs at or above Nyquist are
// pulled to 99% of it, and q <= 0 selects a Butterworth response.
func NewLowpass(cutoff, sampleRate, q float32) *Biquad {
	cutoff = min(max(cutoff, 1), 0.495*sampleRate)
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	w := 2 * math.Pi * float64(cutoff) / float64(sampleRate)
	sin, cos := math.Sincos(w)
	alpha := sin / (2 * float64(q))
	norm := 1 / (1 + alpha)
	side := (1 - cos) / 2 * norm
	return NewBiquad(
		float32(side),
		float32(2*side),
		float32(side),
		float32(-2*cos*norm),
		float32((1-alpha)*norm),
	)
}

// FeedbackDelay is a fixed delay whose output re-enters its input scaled by a
// gain in [0, 1), so any impulse dies away.
type FeedbackDelay struct {
	ring     []float32
	pos      int
	feedback float32
}

// NewFeedbackDelay returns nil and false when feedback is outside [0, 1).
// Delays shorter than one sample are raised to one.
func NewFeedbackDelay(delaySamples int, feedback float32) (*FeedbackDelay, bool) {
	if !(feedback >= 0 && feedback < 1) {
		return nil, false
	}
	return &FeedbackDelay{
		ring:     make([]float32, max(delaySamples, 1)),
		feedback: feedback,
	}, true
}

// Process pushes one input sample into the loop and returns the wet output,
// which is the loop content from exactly one delay ago.
func (d *FeedbackDelay) Process(x float32) float32 {
	wet := d.ring[d.pos]
	d.ring[d.pos] = flush(x + wet*d.feedback)
	d.pos++
	if d.pos == len(d.ring) {
		d.pos = 0
	}
	return wet
}

// Len returns the delay in samples.
func (d *FeedbackDelay) Len() int { return len(d.ring) }

// Feedback returns the loop gain.
func (d *FeedbackDelay) Feedback() float32 { return d.feedback }

// Reset silences the loop.
func (d *FeedbackDelay) Reset() {
	clear(d.ring)
	d.pos = 0
}

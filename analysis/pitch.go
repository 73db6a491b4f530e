package analysis

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
)

// ErrNoPitch is returned when no periodicity is found.
var ErrNoPitch = errors.New("analysis: no pitch found")

// Pitch search limits.
const (
	MinPitchHz    = 30.0
	MaxPitchHz    = 4000.0
	pitchWindow   = 8192
	peakTolerance = 0.9
	minClarity    = 0.3
)

// EstimatePitch returns the fundamental of x in Hz. It autocorrelates up to
// pitchWindow samples from the onset and picks the first autocorrelation peak
// within 90% of the strongest one, refined by parabolic interpolation.
func EstimatePitch(x []float64, sampleRate int) (float64, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("analysis: sample rate must be > 0")
	}
	on := Onset(x, 0.1)
	if on < 0 {
		return 0, ErrNoPitch
	}
	seg := x[on:]
	if len(seg) > pitchWindow {
		seg = seg[:pitchWindow]
	}
	minLag := int(float64(sampleRate) / MaxPitchHz)
	maxLag := int(float64(sampleRate) / MinPitchHz)
	if minLag < 2 {
		minLag = 2
	}
	if maxLag > len(seg)-2 {
		maxLag = len(seg) - 2
	}
	if maxLag <= minLag {
		return 0, fmt.Errorf("%w: %d samples is too short", ErrNoPitch, len(seg))
	}

	ac, err := autocorrelate(seg)
	if err != nil {
		return 0, err
	}
	if ac[0] <= 0 {
		return 0, ErrNoPitch
	}

	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if isLocalPeak(ac, lag) && ac[lag] > best {
			best = ac[lag]
		}
	}
	if best < minClarity*ac[0] {
		return 0, ErrNoPitch
	}
	for lag := minLag; lag <= maxLag; lag++ {
		if isLocalPeak(ac, lag) && ac[lag] >= peakTolerance*best {
			return float64(sampleRate) / refineLag(ac, lag), nil
		}
	}
	return 0, ErrNoPitch
}

// autocorrelate returns the biased autocorrelation of x for lags >= 0,
// computed as an FFT convolution of x with its reverse.
func autocorrelate(x []float64) ([]float64, error) {
	n := len(x)
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	a := make([]float32, n)
	b := make([]float32, n)
	for i, v := range x {
		a[i] = float32(v - mean)
		b[n-1-i] = a[i]
	}
	full := make([]float32, 2*n-1)
	if err := algofft.ConvolveReal(full, a, b); err != nil {
		return nil, fmt.Errorf("autocorrelate: %w", err)
	}
	out := make([]float64, n)
	for lag := range out {
		out[lag] = float64(full[n-1+lag])
	}
	return out, nil
}

func isLocalPeak(ac []float64, i int) bool {
	return ac[i] > ac[i-1] && ac[i] >= ac[i+1]
}

func refineLag(ac []float64, i int) float64 {
	y0, y1, y2 := ac[i-1], ac[i], ac[i+1]
	den := y0 - 2*y1 + y2
	if den == 0 {
		return float64(i)
	}
	return float64(i) + 0.5*(y0-y2)/den
}

// CentsOff returns the nearest MIDI note to hz and the deviation in cents.
func CentsOff(hz float64) (int, float64) {
	if hz <= 0 {
		return -1, 0
	}
	m := 69 + 12*math.Log2(hz/440)
	midi := int(math.Round(m))
	return midi, (m - float64(midi)) * 100
}

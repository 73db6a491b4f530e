package dsp

import (
	"math"
	"testing"
)

func sineRMSThrough(f *Biquad, freq float64, sampleRate float64) float64 {
	const n = 8192
	var sum float64
	for i := 0; i < n; i++ {
		x := float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
		y := f.Process(x)
		if i >= n/2 {
			sum += float64(y) * float64(y)
		}
	}
	return math.Sqrt(sum / float64(n/2))
}

func TestLowpassPassesLowAndCutsHigh(t *testing.T) {
	const sr = 48000
	low := sineRMSThrough(NewLowpass(1000, sr, 1), 100, sr)
	high := sineRMSThrough(NewLowpass(1000, sr, 1), 10000, sr)
	if low < 0.6 {
		t.Fatalf("expected 100Hz to pass a 1kHz lowpass, rms=%.3f", low)
	}
	if high > 0.05 {
		t.Fatalf("expected 10kHz to be attenuated, rms=%.3f", high)
	}
}

func TestLowpassClampsCutoffAboveNyquist(t *testing.T) {
	f := NewLowpass(40000, 48000, 1)
	for i := 0; i < 4096; i++ {
		y := f.Process(1)
		if math.IsNaN(float64(y)) || math.IsInf(float64(y), 0) {
			t.Fatalf("unstable output at %d: %v", i, y)
		}
	}
}

func TestBiquadReset(t *testing.T) {
	f := NewLowpass(500, 48000, 1)
	for i := 0; i < 100; i++ {
		f.Process(1)
	}
	f.Reset()
	if y := f.Process(0); y != 0 {
		t.Fatalf("expected silent output after reset, got %v", y)
	}
}

func TestFeedbackDelayResetSilencesLoop(t *testing.T) {
	d, ok := NewFeedbackDelay(0, 0.9)
	if !ok {
		t.Fatalf("NewFeedbackDelay failed")
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want delays below one sample raised to 1", d.Len())
	}
	d.Process(1)
	d.Reset()
	for i := 0; i < 4; i++ {
		if y := d.Process(0); y != 0 {
			t.Fatalf("sample %d after reset = %v, want 0", i, y)
		}
	}
}

func TestFeedbackDelayRejectsUnstableGain(t *testing.T) {
	for _, fb := range []float32{1, 1.5, -0.1} {
		if _, ok := NewFeedbackDelay(10, fb); ok {
			t.Fatalf("feedback %v should be rejected", fb)
		}
	}
	if _, ok := NewFeedbackDelay(10, 0.999); !ok {
		t.Fatalf("feedback 0.999 should be accepted")
	}
}

func TestFeedbackDelayEchoesDecay(t *testing.T) {
	const delay = 10
	d, ok := NewFeedbackDelay(delay, 0.5)
	if !ok {
		t.Fatalf("NewFeedbackDelay failed")
	}
	out := make([]float32, delay*5+1)
	for i := range out {
		in := float32(0)
		if i == 0 {
			in = 1
		}
		out[i] = d.Process(in)
	}
	want := []float32{1, 0.5, 0.25, 0.125}
	for k, w := range want {
		if got := out[delay*(k+1)]; math.Abs(float64(got-w)) > 1e-6 {
			t.Fatalf("echo %d = %v, want %v", k+1, got, w)
		}
	}
	if out[0] != 0 || out[delay-1] != 0 {
		t.Fatalf("expected no output before the first echo")
	}
}

func TestLimiterPassesQuietSignal(t *testing.T) {
	l, err := NewLimiter(48000, DefaultLimiterParams())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	for i := 0; i < 4800; i++ {
		x := float32(0.05 * math.Sin(2*math.Pi*440*float64(i)/48000))
		if y := l.Process(x); math.Abs(float64(y-x)) > 1e-6 {
			t.Fatalf("quiet sample %d altered: in=%v out=%v", i, x, y)
		}
	}
}

func TestLimiterControlsLoudSignal(t *testing.T) {
	l, err := NewLimiter(48000, DefaultLimiterParams())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	var peak float64
	for i := 0; i < 48000; i++ {
		x := float32(4 * math.Sin(2*math.Pi*220*float64(i)/48000))
		y := l.Process(x)
		if i > 4800 {
			peak = math.Max(peak, math.Abs(float64(y)))
		}
	}
	if peak >= 1 {
		t.Fatalf("expected a +12dBFS signal to be held below full scale, peak=%.3f", peak)
	}
	if l.ReductionDB() >= 0 {
		t.Fatalf("expected active gain reduction")
	}
}

func TestLimiterRejectsInvalidParams(t *testing.T) {
	bad := []LimiterParams{
		{ThresholdDB: 3, KneeDB: 6, Ratio: 4, AttackMs: 1, ReleaseMs: 10},
		{ThresholdDB: -6, KneeDB: 6, Ratio: 0.5, AttackMs: 1, ReleaseMs: 10},
		{ThresholdDB: -6, KneeDB: 6, Ratio: 4, AttackMs: 0, ReleaseMs: 10},
		{ThresholdDB: -6, KneeDB: -1, Ratio: 4, AttackMs: 1, ReleaseMs: 10},
	}
	for i, p := range bad {
		if _, err := NewLimiter(48000, p); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, p)
		}
	}
	if _, err := NewLimiter(0, DefaultLimiterParams()); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestRoomConvolverIdentityPreservesEnergy(t *testing.T) {
	c := NewRoomConvolver(48000)
	const frames = 128 * 8
	in := make([]float32, frames*2)
	for i := 0; i < frames/2; i++ {
		v := float32(math.Sin(2 * math.Pi * 300 * float64(i) / 48000))
		in[i*2] = v
		in[i*2+1] = -v
	}
	out := c.Process(in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	var eIn, eOut float64
	for i := range in {
		eIn += float64(in[i]) * float64(in[i])
		eOut += float64(out[i]) * float64(out[i])
	}
	if math.Abs(eOut-eIn)/eIn > 0.01 {
		t.Fatalf("identity convolution changed energy: in=%.3f out=%.3f", eIn, eOut)
	}
}

package analysis

import (
	"errors"
	"math"
	"testing"
)

func makePluck(sr int, freq, durationSec, decaySec float64) []float64 {
	n := int(float64(sr) * durationSec)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sr)
		out[i] = math.Exp(-t/decaySec) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func TestEstimatePitch(t *testing.T) {
	const sr = 48000
	for _, freq := range []float64{110, 261.63, 440, 1046.5} {
		got, err := EstimatePitch(makePluck(sr, freq, 0.5, 0.4), sr)
		if err != nil {
			t.Fatalf("%v Hz: %v", freq, err)
		}
		if math.Abs(got-freq)/freq > 0.005 {
			t.Fatalf("EstimatePitch(%v Hz) = %v", freq, got)
		}
	}
}

func TestEstimatePitchAfterLeadingSilence(t *testing.T) {
	const sr = 44100
	x := append(make([]float64, 3000), makePluck(sr, 330, 0.4, 0.3)...)
	got, err := EstimatePitch(x, sr)
	if err != nil {
		t.Fatalf("EstimatePitch: %v", err)
	}
	if math.Abs(got-330) > 2 {
		t.Fatalf("pitch = %v, want 330", got)
	}
}

func TestEstimatePitchSilence(t *testing.T) {
	if _, err := EstimatePitch(make([]float64, 4096), 48000); !errors.Is(err, ErrNoPitch) {
		t.Fatalf("err = %v, want ErrNoPitch", err)
	}
	if _, err := EstimatePitch([]float64{1, 0, -1}, 48000); !errors.Is(err, ErrNoPitch) {
		t.Fatalf("short input err = %v, want ErrNoPitch", err)
	}
}

func TestCentsOff(t *testing.T) {
	midi, cents := CentsOff(440)
	if midi != 69 || math.Abs(cents) > 1e-9 {
		t.Fatalf("CentsOff(440) = %d, %v", midi, cents)
	}
	midi, cents = CentsOff(440 * math.Pow(2, 0.1/12))
	if midi != 69 || math.Abs(cents-10) > 1e-6 {
		t.Fatalf("CentsOff(+10c) = %d, %v", midi, cents)
	}
	if midi, _ := CentsOff(0); midi != -1 {
		t.Fatalf("CentsOff(0) = %d", midi)
	}
}

func TestDecaySlope(t *testing.T) {
	const sr = 48000
	// exp(-t/0.5) falls 20*log10(e)/0.5 = 17.37 dB per second
	x := makePluck(sr, 440, 2, 0.5)
	env := Envelope(x, EnvelopeFrame, EnvelopeHop)
	got := DecaySlope(env, float64(EnvelopeHop)/sr)
	if math.Abs(got+17.37) > 0.5 {
		t.Fatalf("DecaySlope = %v dB/s, want about -17.37", got)
	}
	if !math.IsNaN(DecaySlope(env[:4], 0.01)) {
		t.Fatalf("short envelope should be NaN")
	}
}

func TestEnvelopeAndRMS(t *testing.T) {
	x := []float64{1, -1, 1, -1, 0.5, -0.5, 0.5, -0.5}
	env := Envelope(x, 4, 4)
	if len(env) != 2 || env[0] != 1 || env[1] != 0.5 {
		t.Fatalf("Envelope = %v", env)
	}
	if Envelope(x[:3], 4, 4) != nil {
		t.Fatalf("expected nil for input shorter than a frame")
	}
	if RMS(nil) != 0 {
		t.Fatalf("RMS(nil) != 0")
	}
}

func TestOnset(t *testing.T) {
	x := make([]float64, 100)
	if Onset(x, 0.1) != -1 {
		t.Fatalf("silent onset should be -1")
	}
	x[40] = 0.05
	x[60] = 1
	if got := Onset(x, 0.1); got != 60 {
		t.Fatalf("Onset = %d, want 60", got)
	}
}

func TestCompareIdenticalPlucks(t *testing.T) {
	const sr = 48000
	x := makePluck(sr, 440, 1.5, 0.4)
	m := Compare(x, x, sr)
	if m.Score > 0.01 {
		t.Fatalf("identical score = %v", m.Score)
	}
	if m.Similarity < 0.95 {
		t.Fatalf("identical similarity = %v", m.Similarity)
	}
}

func TestCompareIgnoresOffsetAndLevel(t *testing.T) {
	const sr = 48000
	x := makePluck(sr, 440, 1.5, 0.4)
	y := make([]float64, 1000, 1000+len(x))
	for _, v := range x {
		y = append(y, 0.25*v)
	}
	m := Compare(x, y, sr)
	if m.LagSamples < 1000 || m.LagSamples > 1010 {
		t.Fatalf("lag = %d", m.LagSamples)
	}
	if m.Score > 0.05 {
		t.Fatalf("shifted and scaled copy scored %v", m.Score)
	}
}

func TestCompareDifferentPlucks(t *testing.T) {
	const sr = 48000
	a := makePluck(sr, 261.63, 1.8, 0.8)
	b := makePluck(sr, 523.25, 1.8, 0.1)
	near := makePluck(sr, 261.63, 1.8, 0.7)
	far := Compare(a, b, sr)
	nearBy := Compare(a, near, sr)
	if far.Score < 0.25 {
		t.Fatalf("different plucks scored %v", far.Score)
	}
	if nearBy.Score >= far.Score {
		t.Fatalf("near score %v should beat far score %v", nearBy.Score, far.Score)
	}
}

func TestCompareDegenerateInput(t *testing.T) {
	x := makePluck(48000, 440, 1, 0.4)
	for name, m := range map[string]Metrics{
		"silent":  Compare(make([]float64, 48000), x, 48000),
		"short":   Compare(x[:100], x, 48000),
		"no rate": Compare(x, x, 0),
	} {
		if m.Score != 1 || m.Similarity != 0 {
			t.Fatalf("%s: %+v", name, m)
		}
	}
}

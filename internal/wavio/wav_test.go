package wavio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWriteReadMonoRoundTripLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tone.wav")
	const sampleRate = 8000
	data := make([]float32, sampleRate/4)
	for i := range data {
		data[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}
	if err := WriteMono(path, data, sampleRate); err != nil {
		t.Fatalf("WriteMono: %v", err)
	}
	got, rate, err := ReadMono(path)
	if err != nil {
		t.Fatalf("ReadMono: %v", err)
	}
	if rate != sampleRate {
		t.Fatalf("rate = %d, want %d", rate, sampleRate)
	}
	if len(got) != len(data) {
		t.Fatalf("frames = %d, want %d", len(got), len(data))
	}
	if rms := RMS(data); math.Abs(rms-rmsOf(got)) > 0.01 {
		t.Fatalf("rms drifted: wrote %.4f read %.4f", rms, rmsOf(got))
	}
}

func TestReadMonoRejectsMissingFile(t *testing.T) {
	if _, _, err := ReadMono(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStereoToMono64(t *testing.T) {
	got := StereoToMono64([]float32{1, 0, 0.5, 0.5, -1, 1})
	want := []float64{0.5, 0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
	if StereoToMono64([]float32{1}) != nil {
		t.Fatalf("expected nil for short input")
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []float64{1, 2, 3}
	out, err := Resample(in, 48000, 48000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if &out[0] != &in[0] {
		t.Fatalf("expected the input slice back unchanged")
	}
}

func TestDBFSToLinear(t *testing.T) {
	if got := DBFSToLinear(-20); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("DBFSToLinear(-20) = %v", got)
	}
}

func rmsOf(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestSplitInterleaveRoundTrip(t *testing.T) {
	st := []float32{1, -1, 2, -2, 3, -3, 9}
	chans := split(st, 2)
	if len(chans) != 2 || len(chans[0]) != 3 {
		t.Fatalf("split shape = %d x %d", len(chans), len(chans[0]))
	}
	if chans[1][2] != -3 {
		t.Fatalf("right[2] = %v, want -3", chans[1][2])
	}
	got := interleave(chans)
	for i := range got {
		if got[i] != st[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], st[i])
		}
	}
}

func TestResampleInterleavedChangesLength(t *testing.T) {
	st := make([]float32, 2*4800)
	for i := 0; i < 4800; i++ {
		v := float32(math.Sin(2 * math.Pi * 200 * float64(i) / 48000))
		st[2*i], st[2*i+1] = v, -v
	}
	out, err := ResampleInterleaved(st, 48000, 24000)
	if err != nil {
		t.Fatalf("ResampleInterleaved: %v", err)
	}
	if len(out)%2 != 0 {
		t.Fatalf("odd output length %d", len(out))
	}
	frames := len(out) / 2
	if frames < 2200 || frames > 2600 {
		t.Fatalf("frames = %d, want about 2400", frames)
	}
}

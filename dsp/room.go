package dsp

import (
	"fmt"
	"math"
	"math/rand"
)

// RoomIRParams shape a synthetic stereo room response.
type RoomIRParams struct {
	Duration    float64 // seconds
	Seed        int64
	Reflections int     // early reflections in the first 40 ms
	TailLevel   float64 // diffuse tail level relative to the reflections
	Width       float64 // 0 = mono, 1 = hard-panned reflections
	DecayLow    float64 // tail decay time constant below the split, seconds
	DecayHigh   float64 // tail decay time constant above the split, seconds
	Peak        float64 // output is normalized to this peak
}

// DefaultRoomIRParams is a small, slightly dark room.
func DefaultRoomIRParams() RoomIRParams {
	return RoomIRParams{
		Duration:    0.8,
		Seed:        1,
		Reflections: 16,
		TailLevel:   0.08,
		Width:       0.5,
		DecayLow:    0.35,
		DecayHigh:   0.12,
		Peak:        0.9,
	}
}

func (p RoomIRParams) Validate() error {
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if p.Reflections < 0 {
		return fmt.Errorf("reflections must be >= 0")
	}
	if p.TailLevel < 0 {
		return fmt.Errorf("tail level must be >= 0")
	}
	if p.Width < 0 || p.Width > 1 {
		return fmt.Errorf("width must be in [0,1]")
	}
	if p.DecayLow <= 0 || p.DecayHigh <= 0 {
		return fmt.Errorf("decay times must be > 0")
	}
	if p.Peak <= 0 {
		return fmt.Errorf("peak must be > 0")
	}
	return nil
}

// roomSplitHz separates the slow and fast decaying halves of the tail.
const roomSplitHz = 1500

// SynthRoomIR builds a deterministic stereo impulse response: a direct
// impulse, seeded early reflections and a two-band noise tail.
func SynthRoomIR(sampleRate int, p RoomIRParams) ([]float32, []float32, error) {
	if sampleRate < 8000 {
		return nil, nil, fmt.Errorf("sample rate too low: %d", sampleRate)
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	n := max(1, int(math.Round(p.Duration*float64(sampleRate))))
	sr := float64(sampleRate)
	left := make([]float64, n)
	right := make([]float64, n)
	left[0], right[0] = 1, 1

	rng := rand.New(rand.NewSource(p.Seed))
	for i := 0; i < p.Reflections; i++ {
		t := 0.002 + 0.038*rng.Float64()
		idx := int(t * sr)
		if idx >= n {
			continue
		}
		amp := (0.15 + 0.35*rng.Float64()) * math.Exp(-t*25)
		if rng.Intn(2) == 0 {
			amp = -amp
		}
		pan := (2*rng.Float64() - 1) * p.Width
		left[idx] += amp * (1 - pan)
		right[idx] += amp * (1 + pan)
	}

	if p.TailLevel > 0 {
		lpL := NewLowpass(roomSplitHz, float32(sr), 0.707)
		lpR := NewLowpass(roomSplitHz, float32(sr), 0.707)
		for i := 1; i < n; i++ {
			t := float64(i) / sr
			nL, nR := rng.NormFloat64(), rng.NormFloat64()
			lowL := float64(lpL.Process(float32(nL)))
			lowR := float64(lpR.Process(float32(nR)))
			envLow := math.Exp(-t / p.DecayLow)
			envHigh := math.Exp(-t / p.DecayHigh)
			left[i] += p.TailLevel * (envLow*lowL + envHigh*(nL-lowL))
			right[i] += p.TailLevel * (envLow*lowR + envHigh*(nR-lowR))
		}
	}

	fade := min(n, int(0.005*sr))
	for i := 0; i < fade; i++ {
		g := 0.5 + 0.5*math.Cos(math.Pi*float64(i+1)/float64(fade))
		left[n-fade+i] *= g
		right[n-fade+i] *= g
	}

	peak := 1e-12
	for i := range left {
		peak = math.Max(peak, math.Max(math.Abs(left[i]), math.Abs(right[i])))
	}
	s := p.Peak / peak
	outL := make([]float32, n)
	outR := make([]float32, n)
	for i := range left {
		outL[i] = float32(left[i] * s)
		outR[i] = float32(right[i] * s)
	}
	return outL, outR, nil
}

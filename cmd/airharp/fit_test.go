package main

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-airharp/internal/wavio"
	"github.com/cwbudde/algo-airharp/synth"
)

func TestNewMayflyConfig(t *testing.T) {
	tests := []struct {
		variant string
		wantErr bool
	}{
		{variant: "ma"},
		{variant: "desma"},
		{variant: "olce"},
		{variant: "eobbma"},
		{variant: "gsasma"},
		{variant: "mpma"},
		{variant: "aoblmoa"},
		{variant: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			cfg, err := newMayflyConfig(tt.variant, 10, len(fitKnobs), 20)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("newMayflyConfig(%q) expected error", tt.variant)
				}
				return
			}
			if err != nil {
				t.Fatalf("newMayflyConfig(%q) unexpected error: %v", tt.variant, err)
			}
			if cfg.ProblemSize != len(fitKnobs) || cfg.NPop != 10 || cfg.MaxIterations != 20 {
				t.Fatalf("cfg = size %d pop %d iters %d", cfg.ProblemSize, cfg.NPop, cfg.MaxIterations)
			}
		})
	}
}

func TestReserveEvalCapsAtMax(t *testing.T) {
	const (
		maxEvals = 47
		workers  = 8
	)

	var evals int64
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := reserveEval(&evals, maxEvals); !ok {
					return
				}
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&granted); got != maxEvals {
		t.Fatalf("granted evaluations = %d, want %d", got, maxEvals)
	}
}

func TestFromNormalized(t *testing.T) {
	lo := fromNormalized([]float64{0, 0, 0, 0, 0, 0}, fitKnobs)
	hi := fromNormalized([]float64{1, 1, 1, 1, 1, 1}, fitKnobs)
	for i, d := range fitKnobs {
		if math.Abs(lo[i]-d.Min) > 1e-9 || math.Abs(hi[i]-d.Max) > 1e-9 {
			t.Fatalf("%s: range %v..%v, want %v..%v", d.Name, lo[i], hi[i], d.Min, d.Max)
		}
	}
	mid := fromNormalized([]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, fitKnobs)
	if mid[0] != 2 {
		t.Fatalf("waveform at 0.5 = %v, want 2", mid[0])
	}
	// geometric midpoint of a log knob
	if want := math.Sqrt(200 * 12000); math.Abs(mid[5]-want) > 1e-6 {
		t.Fatalf("cutoff at 0.5 = %v, want %v", mid[5], want)
	}
	if clamped := fromNormalized([]float64{-1, 2}, fitKnobs); clamped[0] != 0 || clamped[1] != 0.5 || clamped[2] != fitKnobs[2].Min {
		t.Fatalf("clamped = %v", clamped)
	}
}

func TestApplyKnobsRoundTrip(t *testing.T) {
	base := synth.DefaultConfig()
	base.Detune = -4
	cfg := applyKnobs(base, []float64{1, 0.02, 0.5, 0.4, 0.8, 3000})
	if cfg.Waveform != synth.Square || cfg.Attack != 0.02 || cfg.FilterCutoff != 3000 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Detune != -4 || cfg.Gain != base.Gain || cfg.DelayMix != base.DelayMix {
		t.Fatalf("untouched fields changed: %+v", cfg)
	}
	vals := knobValues(cfg)
	if back := applyKnobs(base, vals); back != cfg {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestDetectNote(t *testing.T) {
	const sr = 16000
	st, err := renderNote(synth.DefaultConfig(), "E4", sr, -80, 3)
	if err != nil {
		t.Fatalf("renderNote: %v", err)
	}
	note, cents, err := detectNote(wavio.StereoToMono64(st), sr)
	if err != nil {
		t.Fatalf("detectNote: %v", err)
	}
	if note != "E4" || math.Abs(cents) > 20 {
		t.Fatalf("detected %s %+.1f cents, want E4", note, cents)
	}
}

func TestRunFitImprovesOnStart(t *testing.T) {
	const sr = 8000
	target := synth.DefaultConfig()
	target.Waveform = synth.Sine
	target.Decay = 0.15
	target.Sustain = 0.1
	target.Release = 0.3
	ref, err := renderNote(target, "A4", sr, -80, 3)
	if err != nil {
		t.Fatalf("renderNote: %v", err)
	}

	start := synth.DefaultConfig()
	start.Waveform = synth.Sawtooth
	start.Attack = 0.3
	start.Release = 2
	res, err := runFit(fitSettings{
		reference:  wavio.StereoToMono64(ref),
		sampleRate: sr,
		note:       "A4",
		base:       start,
		variant:    "ma",
		pop:        6,
		roundEvals: 40,
		maxEvals:   40,
		timeBudget: 60,
		workers:    2,
		seed:       3,
		topK:       3,
		maxSeconds: 3,
	})
	if err != nil {
		t.Fatalf("runFit: %v", err)
	}
	if res.Evals > 40 {
		t.Fatalf("evals = %d, budget 40", res.Evals)
	}
	if res.Metrics.Score > res.Start.Score {
		t.Fatalf("best %v worse than start %v", res.Metrics.Score, res.Start.Score)
	}
	if err := res.Config.Validate(); err != nil {
		t.Fatalf("fitted config invalid: %v", err)
	}
	if len(res.Top) == 0 || len(res.Top) > 3 {
		t.Fatalf("top = %d entries", len(res.Top))
	}
	for i := 1; i < len(res.Top); i++ {
		if res.Top[i].Score < res.Top[i-1].Score {
			t.Fatalf("top not sorted: %+v", res.Top)
		}
	}
}

func TestRunFitRejectsBadSettings(t *testing.T) {
	if _, err := runFit(fitSettings{pop: 1, variant: "ma"}); err == nil {
		t.Fatalf("expected error for tiny population")
	}
	if _, err := runFit(fitSettings{pop: 6, variant: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

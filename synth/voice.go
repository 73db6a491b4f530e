package synth

import (
	"math"

	"github.com/cwbudde/algo-approx"

	"github.com/cwbudde/algo-airharp/dsp"
	"github.com/cwbudde/algo-airharp/notes"
)

const (
	// InstantAttack is the attack below which the envelope jumps straight
	// to the configured gain.
	InstantAttack = 0.005
	// EnvelopeFloor is the smallest level exponential ramps may target.
	EnvelopeFloor = 0.001
	// TailMargin keeps a voice alive past its release end.
	TailMargin = 0.1
	// FilterQ is the fixed resonance of the per-voice lowpass.
	FilterQ = 1.0
)

// Voice is one triggered note: oscillator, lowpass and gain envelope,
// alive from its start time until its stop time.
type Voice struct {
	id       uint64
	note     string
	freq     float64
	waveform Waveform
	cfg      Config

	phase    float64
	phaseInc float64

	filter *dsp.Biquad
	gain   *Param

	start float64
	stop  float64
	ended bool
}

// newVoice schedules a voice starting at t with cfg captured by value.
func newVoice(id uint64, note string, cfg Config, t float64, sampleRate int) *Voice {
	freq := notes.Resolve(note) * centsToRatio(cfg.Detune)
	v := &Voice{
		id:       id,
		note:     note,
		freq:     freq,
		waveform: cfg.Waveform,
		cfg:      cfg,
		phaseInc: freq / float64(sampleRate),
		filter:   dsp.NewLowpass(float32(cfg.FilterCutoff), float32(sampleRate), FilterQ),
		gain:     NewParam(0),
		start:    t,
		stop:     t + cfg.Lifetime(),
	}
	scheduleEnvelope(v.gain, cfg, t)
	return v
}

func scheduleEnvelope(p *Param, cfg Config, t float64) {
	attackEnd := t + cfg.Attack
	decayEnd := attackEnd + cfg.Decay
	releaseEnd := decayEnd + cfg.Release

	p.SetValueAtTime(0, t)
	if cfg.Attack < InstantAttack {
		p.SetValueAtTime(cfg.Gain, t)
		p.SetValueAtTime(cfg.Gain, attackEnd)
	} else {
		p.LinearRampToValueAtTime(cfg.Gain, attackEnd)
	}
	p.ExponentialRampToValueAtTime(math.Max(cfg.Gain*cfg.Sustain, EnvelopeFloor), decayEnd)
	p.ExponentialRampToValueAtTime(EnvelopeFloor, releaseEnd)
}

func centsToRatio(cents float64) float64 {
	if cents == 0 {
		return 1
	}
	return float64(approx.FastExp(float32(cents / 1200 * math.Ln2)))
}

// ID is unique per engine.
func (v *Voice) ID() uint64 { return v.id }

// Note is the name the voice was triggered with.
func (v *Voice) Note() string { return v.note }

// Freq is the oscillator frequency after detune.
func (v *Voice) Freq() float64 { return v.freq }

// Config is the timbre captured when the voice started.
func (v *Voice) Config() Config { return v.cfg }

func (v *Voice) StartTime() float64 { return v.start }
func (v *Voice) StopTime() float64  { return v.stop }

// Gain exposes the envelope for inspection.
func (v *Voice) Gain() *Param { return v.gain }

// Ended reports whether the voice has passed its stop time.
func (v *Voice) Ended() bool { return v.ended }

func (v *Voice) oscillate() float64 {
	p := v.phase
	v.phase += v.phaseInc
	if v.phase >= 1 {
		v.phase -= math.Floor(v.phase)
	}
	switch v.waveform {
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*p - 1
	case Triangle:
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

// render mixes the voice into dst, whose first sample sits at time t0.
// It marks the voice ended once a sample reaches the stop time.
func (v *Voice) render(dst []float32, t0, dt float64) {
	if v.ended {
		return
	}
	for i := range dst {
		t := t0 + float64(i)*dt
		if t < v.start {
			continue
		}
		if t >= v.stop {
			v.ended = true
			return
		}
		x := v.filter.Process(float32(v.oscillate()))
		dst[i] += x * float32(v.gain.ValueAt(t))
	}
	if t0+float64(len(dst))*dt >= v.stop {
		v.ended = true
	}
}

// dispose drops the voice-local nodes once it has left the graph.
func (v *Voice) dispose() {
	v.filter = nil
	v.gain = nil
}

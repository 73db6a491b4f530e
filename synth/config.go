package synth

import (
	"fmt"
	"strings"
)

// Waveform selects the voice oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

var waveformNames = [...]string{"sine", "square", "sawtooth", "triangle"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform accepts the canonical names plus "saw" and "tri".
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine":
		return Sine, nil
	case "square":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "triangle", "tri":
		return Triangle, nil
	}
	return Sine, fmt.Errorf("unknown waveform %q (valid: sine, square, sawtooth, triangle)", s)
}

func (w Waveform) MarshalText() ([]byte, error) {
	if w < 0 || int(w) >= len(waveformNames) {
		return nil, fmt.Errorf("invalid waveform %d", int(w))
	}
	return []byte(waveformNames[w]), nil
}

func (w *Waveform) UnmarshalText(b []byte) error {
	v, err := ParseWaveform(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Config is the timbre of newly triggered voices. It is a value: updates
// replace the whole struct.
type Config struct {
	Waveform     Waveform `json:"waveform"`
	Attack       float64  `json:"attack"`        // seconds
	Decay        float64  `json:"decay"`         // seconds
	Sustain      float64  `json:"sustain"`       // 0..1 of Gain
	Release      float64  `json:"release"`       // seconds
	Gain         float64  `json:"gain"`          // 0..1
	FilterCutoff float64  `json:"filter_cutoff"` // Hz
	DelayMix     float64  `json:"delay_mix"`     // 0..1
	Detune       float64  `json:"detune,omitempty"`
}

// DefaultConfig is a soft plucked-harp tone.
func DefaultConfig() Config {
	return Config{
		Waveform:     Triangle,
		Attack:       0.01,
		Decay:        0.3,
		Sustain:      0.3,
		Release:      1.2,
		Gain:         0.5,
		FilterCutoff: 2400,
		DelayMix:     0.25,
	}
}

// Lifetime is the scheduled duration of a voice using this config.
func (c Config) Lifetime() float64 {
	return c.Attack + c.Decay + c.Release + TailMargin
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.Waveform < Sine || c.Waveform > Triangle:
		return fmt.Errorf("waveform %d out of range", int(c.Waveform))
	case c.Attack <= 0:
		return fmt.Errorf("attack must be > 0")
	case c.Decay <= 0:
		return fmt.Errorf("decay must be > 0")
	case c.Release <= 0:
		return fmt.Errorf("release must be > 0")
	case c.Sustain < 0 || c.Sustain > 1:
		return fmt.Errorf("sustain must be in [0,1]")
	case c.Gain < 0 || c.Gain > 1:
		return fmt.Errorf("gain must be in [0,1]")
	case c.FilterCutoff <= 0:
		return fmt.Errorf("filter_cutoff must be > 0")
	case c.DelayMix < 0 || c.DelayMix > 1:
		return fmt.Errorf("delay_mix must be in [0,1]")
	}
	return nil
}

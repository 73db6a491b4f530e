package instrument

import "github.com/cwbudde/algo-airharp/synth"

// DefaultNotes is a C major scale over an octave and a half.
var DefaultNotes = []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5", "D5", "E5", "F5", "G5"}

func builtin(name, desc string, notes []string, cfg synth.Config) State {
	return State{
		ID:          IDFor(name),
		Name:        name,
		Description: desc,
		Notes:       append([]string(nil), notes...),
		Synth:       cfg,
	}
}

// Builtins returns the bundled instruments. The first one is the default.
func Builtins() []State {
	return []State{
		builtin("Air Harp", "Soft plucked triangle strings.", DefaultNotes, synth.DefaultConfig()),
		builtin("Crystal Pad", "Slow sine swells with a long echo.",
			[]string{"A3", "C4", "E4", "G4", "A4", "C5", "E5", "G5", "A5", "C6", "E6", "G6"},
			synth.Config{
				Waveform: synth.Sine, Attack: 0.4, Decay: 0.8, Sustain: 0.6, Release: 2.5,
				Gain: 0.45, FilterCutoff: 5000, DelayMix: 0.5,
			}),
		builtin("Retro Square", "Chiptune pentatonic lead.",
			[]string{"C4", "D4", "E4", "G4", "A4", "C5", "D5", "E5", "G5", "A5", "C6", "D6"},
			synth.Config{
				Waveform: synth.Square, Attack: 0.002, Decay: 0.12, Sustain: 0.4, Release: 0.25,
				Gain: 0.3, FilterCutoff: 3200, DelayMix: 0.2,
			}),
		builtin("Warm Saw", "Filtered sawtooth in D dorian.",
			[]string{"D3", "E3", "F3", "G3", "A3", "B3", "C4", "D4", "E4", "F4", "G4", "A4"},
			synth.Config{
				Waveform: synth.Sawtooth, Attack: 0.03, Decay: 0.4, Sustain: 0.5, Release: 1.0,
				Gain: 0.35, FilterCutoff: 1200, DelayMix: 0.3, Detune: -6,
			}),
		builtin("Marimba", "Short percussive sine bars.",
			[]string{"F3", "G3", "A3", "C4", "D4", "F4", "G4", "A4", "C5", "D5", "F5", "G5"},
			synth.Config{
				Waveform: synth.Sine, Attack: 0.001, Decay: 0.25, Sustain: 0.05, Release: 0.3,
				Gain: 0.7, FilterCutoff: 4000, DelayMix: 0.1,
			}),
	}
}

// Default returns the first built-in instrument.
func Default() State {
	return Builtins()[0]
}

package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/synth"
)

// ErrInvalid marks a preset file that parsed but failed validation.
var ErrInvalid = errors.New("invalid preset")

// File is the JSON schema for instrument presets.
type File struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Notes       []string      `json:"notes,omitempty"`
	Synth       *SynthSetting `json:"synth,omitempty"`
}

// SynthSetting is a partial voice config override.
type SynthSetting struct {
	Waveform     *string  `json:"waveform,omitempty"`
	Attack       *float64 `json:"attack,omitempty"`
	Decay        *float64 `json:"decay,omitempty"`
	Sustain      *float64 `json:"sustain,omitempty"`
	Release      *float64 `json:"release,omitempty"`
	Gain         *float64 `json:"gain,omitempty"`
	FilterCutoff *float64 `json:"filter_cutoff,omitempty"`
	DelayMix     *float64 `json:"delay_mix,omitempty"`
	Detune       *float64 `json:"detune,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of the default
// instrument.
func LoadJSON(path string) (*instrument.State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s := Template()
	if err := ApplyFile(&s, &f); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalid, path, err)
	}
	return &s, nil
}

// Template is the base a preset file is applied over: the default notes and
// voice config, with no identity.
func Template() instrument.State {
	return instrument.State{
		Notes: append([]string(nil), instrument.DefaultNotes...),
		Synth: synth.DefaultConfig(),
	}
}

// ApplyFile applies a parsed preset file onto an existing instrument.
func ApplyFile(dst *instrument.State, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination instrument")
	}
	if f == nil {
		return nil
	}

	if name := strings.TrimSpace(f.Name); name != "" {
		dst.Name = name
	}
	if f.Description != "" {
		dst.Description = strings.TrimSpace(f.Description)
	}
	if f.Notes != nil {
		notes := make([]string, len(f.Notes))
		for i, n := range f.Notes {
			n = strings.TrimSpace(n)
			if n == "" {
				return fmt.Errorf("notes[%d] must not be empty", i)
			}
			notes[i] = n
		}
		dst.Notes = notes
	}
	if f.Synth != nil {
		if err := applySynth(&dst.Synth, f.Synth); err != nil {
			return err
		}
	}

	switch {
	case f.ID != "":
		dst.ID = strings.TrimSpace(f.ID)
	case dst.ID == "":
		dst.ID = instrument.IDFor(dst.Name)
	}
	return dst.Validate()
}

func applySynth(dst *synth.Config, s *SynthSetting) error {
	if s.Waveform != nil {
		w, err := synth.ParseWaveform(*s.Waveform)
		if err != nil {
			return err
		}
		dst.Waveform = w
	}
	if s.Attack != nil {
		if *s.Attack <= 0 {
			return fmt.Errorf("synth.attack must be > 0")
		}
		dst.Attack = *s.Attack
	}
	if s.Decay != nil {
		if *s.Decay <= 0 {
			return fmt.Errorf("synth.decay must be > 0")
		}
		dst.Decay = *s.Decay
	}
	if s.Sustain != nil {
		if *s.Sustain < 0 || *s.Sustain > 1 {
			return fmt.Errorf("synth.sustain must be in [0,1]")
		}
		dst.Sustain = *s.Sustain
	}
	if s.Release != nil {
		if *s.Release <= 0 {
			return fmt.Errorf("synth.release must be > 0")
		}
		dst.Release = *s.Release
	}
	if s.Gain != nil {
		if *s.Gain < 0 || *s.Gain > 1 {
			return fmt.Errorf("synth.gain must be in [0,1]")
		}
		dst.Gain = *s.Gain
	}
	if s.FilterCutoff != nil {
		if *s.FilterCutoff <= 0 {
			return fmt.Errorf("synth.filter_cutoff must be > 0")
		}
		dst.FilterCutoff = *s.FilterCutoff
	}
	if s.DelayMix != nil {
		if *s.DelayMix < 0 || *s.DelayMix > 1 {
			return fmt.Errorf("synth.delay_mix must be in [0,1]")
		}
		dst.DelayMix = *s.DelayMix
	}
	if s.Detune != nil {
		dst.Detune = *s.Detune
	}
	return nil
}

// FromState is the fully populated file form of s.
func FromState(s instrument.State) File {
	w := s.Synth.Waveform.String()
	c := s.Synth
	return File{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Notes:       append([]string(nil), s.Notes...),
		Synth: &SynthSetting{
			Waveform:     &w,
			Attack:       &c.Attack,
			Decay:        &c.Decay,
			Sustain:      &c.Sustain,
			Release:      &c.Release,
			Gain:         &c.Gain,
			FilterCutoff: &c.FilterCutoff,
			DelayMix:     &c.DelayMix,
			Detune:       &c.Detune,
		},
	}
}

// SaveJSON writes s as an indented preset file, creating parent directories.
func SaveJSON(path string, s instrument.State) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	b, err := json.MarshalIndent(FromState(s), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// LoadDir loads every *.json preset in dir, ordered by file name. Duplicate
// ids are rejected.
func LoadDir(dir string) ([]instrument.State, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]instrument.State, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadJSON(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("%w: %s and %s share id %s", ErrInvalid, prev, p, s.ID)
		}
		seen[s.ID] = p
		out = append(out, *s)
	}
	return out, nil
}

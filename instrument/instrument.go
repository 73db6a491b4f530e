// Package instrument holds instrument presets: a note layout plus a voice
// config.
package instrument

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-airharp/synth"
)

// namespace seeds name-derived preset ids.
var namespace = uuid.MustParse("6f1c9a52-3d0e-4b7a-9a64-2a3c1f0d8e11")

// State is a complete instrument. Notes are addressed modulo their length.
type State struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Notes       []string     `json:"notes"`
	Synth       synth.Config `json:"synth"`
}

// IDFor derives a stable id from a preset name.
func IDFor(name string) string {
	return uuid.NewSHA1(namespace, []byte(strings.ToLower(strings.TrimSpace(name)))).String()
}

// NewID returns a fresh random id.
func NewID() string {
	return uuid.NewString()
}

// NoteFor maps a string index to a note name. It reports false when the
// instrument has no notes.
func (s State) NoteFor(stringIndex int) (string, bool) {
	n := len(s.Notes)
	if n == 0 {
		return "", false
	}
	i := stringIndex % n
	if i < 0 {
		i += n
	}
	return s.Notes[i], true
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	s.Notes = append([]string(nil), s.Notes...)
	return s
}

// Validate checks the name, the note list and the voice config.
func (s State) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	for i, n := range s.Notes {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("notes[%d] must not be empty", i)
		}
	}
	if err := s.Synth.Validate(); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	return nil
}

// Find returns the instrument with the given id.
func Find(list []State, id string) (State, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}
